package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/seantiz/electric/internal/mdi"
	"github.com/seantiz/electric/internal/scenario"
)

// ErrConfiguration is returned for a missing or malformed startup option.
var ErrConfiguration = errors.New("configuration error")

const (
	defaultScenario = scenario.NameField
	defaultEngines  = 1
	defaultNAtoms   = 10
	defaultNPoles   = 3
	dotEnvFile      = ".env"

	envScenario    = "ELECTRIC_SCENARIO"
	envSteps       = "ELECTRIC_STEPS"
	envProbes      = "ELECTRIC_PROBES"
	envEngines     = "ELECTRIC_ENGINES"
	envLogLevel    = "ELECTRIC_LOG_LEVEL"
	envJournalPath = "ELECTRIC_JOURNAL_PATH"
	envListenAddr  = "ELECTRIC_LISTEN_ADDR"
	envNAtoms      = "ELECTRIC_ENGINE_NATOMS"
	envNPoles      = "ELECTRIC_ENGINE_NPOLES"
)

// Config holds the driver configuration: the -mdi option string from the
// command line and everything else from the environment.
type Config struct {
	MDI      mdi.Options
	Scenario string

	// Steps overrides the scenario step count; negative keeps the default.
	Steps   int
	Probes  []int32
	Engines int

	LogLevel slog.Level

	// JournalPath and ListenAddr enable the run journal and the status
	// server when set.
	JournalPath string
	ListenAddr  string
}

// Params returns the scenario parameters carried by cfg.
func (c Config) Params() scenario.Params {
	return scenario.Params{Steps: c.Steps, Probes: c.Probes, Engines: c.Engines}
}

// Load parses the driver's arguments and reads the environment, seeded from
// a .env file in the working directory when one exists.
func Load(args []string) (Config, error) {
	if err := loadDotEnv(dotEnvFile); err != nil {
		return Config{}, err
	}

	opts, err := ParseArgs(args, mdi.RoleDriver)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		MDI:      opts,
		Scenario: defaultScenario,
		Steps:    -1,
		Probes:   scenario.DefaultProbes,
		Engines:  defaultEngines,
		LogLevel: slog.LevelInfo,
	}

	if v := os.Getenv(envScenario); v != "" {
		cfg.Scenario = v
	}
	if v := os.Getenv(envSteps); v != "" {
		n, err := parseCount(envSteps, v)
		if err != nil {
			return Config{}, err
		}
		cfg.Steps = n
	}
	if v := os.Getenv(envProbes); v != "" {
		probes, err := parseProbes(v)
		if err != nil {
			return Config{}, err
		}
		cfg.Probes = probes
	}
	if v := os.Getenv(envEngines); v != "" {
		n, err := parseCount(envEngines, v)
		if err != nil {
			return Config{}, err
		}
		if n < 1 {
			return Config{}, fmt.Errorf("%w: %s must be at least 1", ErrConfiguration, envEngines)
		}
		cfg.Engines = n
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
	cfg.JournalPath = os.Getenv(envJournalPath)
	cfg.ListenAddr = os.Getenv(envListenAddr)

	return cfg, nil
}

// EngineConfig configures the stub engine binary.
type EngineConfig struct {
	MDI      mdi.Options
	NAtoms   int
	NPoles   int
	LogLevel slog.Level
}

// LoadEngine parses the stub engine's arguments and environment.
func LoadEngine(args []string) (EngineConfig, error) {
	if err := loadDotEnv(dotEnvFile); err != nil {
		return EngineConfig{}, err
	}

	opts, err := ParseArgs(args, mdi.RoleEngine)
	if err != nil {
		return EngineConfig{}, err
	}

	cfg := EngineConfig{
		MDI:      opts,
		NAtoms:   defaultNAtoms,
		NPoles:   defaultNPoles,
		LogLevel: slog.LevelInfo,
	}
	if v := os.Getenv(envNAtoms); v != "" {
		if cfg.NAtoms, err = parseCount(envNAtoms, v); err != nil {
			return EngineConfig{}, err
		}
	}
	if v := os.Getenv(envNPoles); v != "" {
		if cfg.NPoles, err = parseCount(envNPoles, v); err != nil {
			return EngineConfig{}, err
		}
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
	return cfg, nil
}

// ParseArgs parses the command line. -mdi is the only flag and is required;
// its option string must name the given role.
func ParseArgs(args []string, role string) (mdi.Options, error) {
	fs := flag.NewFlagSet("electric", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	spec := fs.String("mdi", "", "MDI option string, e.g. \"-role DRIVER -name driver -method TCP -port 8021\"")

	if err := fs.Parse(args); err != nil {
		return mdi.Options{}, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	if fs.NArg() > 0 {
		return mdi.Options{}, fmt.Errorf("%w: unexpected argument %q", ErrConfiguration, fs.Arg(0))
	}

	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "mdi" {
			set = true
		}
	})
	if !set {
		return mdi.Options{}, fmt.Errorf("%w: -mdi flag is required", ErrConfiguration)
	}

	opts, err := mdi.ParseOptions(*spec)
	if err != nil {
		return mdi.Options{}, fmt.Errorf("%w: -mdi: %w", ErrConfiguration, err)
	}
	if opts.Role != role {
		return mdi.Options{}, fmt.Errorf("%w: -mdi role is %s, want %s", ErrConfiguration, opts.Role, role)
	}
	return opts, nil
}

func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("%w: load %s: %w", ErrConfiguration, path, err)
}

func parseCount(name, v string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s=%q is not a non-negative integer", ErrConfiguration, name, v)
	}
	return n, nil
}

// parseProbes reads a list of atom indices separated by spaces or commas.
func parseProbes(v string) ([]int32, error) {
	fields := strings.FieldsFunc(v, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	probes := make([]int32, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.ParseInt(f, 10, 32)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: %s entry %q is not a non-negative atom index", ErrConfiguration, envProbes, f)
		}
		probes = append(probes, int32(n))
	}
	return probes, nil
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
