package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/seantiz/electric/internal/model"

	_ "modernc.org/sqlite"
)

const createRunsTable = `
CREATE TABLE IF NOT EXISTS runs (
    id          TEXT PRIMARY KEY,
    scenario    TEXT NOT NULL,
    status      TEXT NOT NULL,
    engines     TEXT NOT NULL DEFAULT '',
    steps       INTEGER NOT NULL,
    error       TEXT NOT NULL DEFAULT '',
    duration_ms INTEGER,
    created_at  DATETIME NOT NULL,
    started_at  DATETIME,
    finished_at DATETIME
)`

const createExchangesTable = `
CREATE TABLE IF NOT EXISTS exchanges (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id      TEXT NOT NULL REFERENCES runs(id),
    seq         INTEGER NOT NULL,
    role        TEXT NOT NULL,
    command     TEXT NOT NULL,
    step        INTEGER NOT NULL,
    elements    INTEGER NOT NULL,
    duration_us INTEGER NOT NULL,
    created_at  DATETIME NOT NULL,
    UNIQUE (run_id, seq)
)`

// ErrNotFound is returned when a run is not found.
var ErrNotFound = errors.New("run not found")

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection keeps ":memory:" databases shared across queries.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	for name, ddl := range map[string]string{"runs": createRunsTable, "exchanges": createExchangesTable} {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return nil, fmt.Errorf("create %s table: %w", name, err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Ping checks that the journal database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping journal: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const runColumns = `id, scenario, status, engines, steps, error,
	duration_ms, created_at, started_at, finished_at`

// CreateRun inserts a new run record.
func (s *SQLiteStore) CreateRun(ctx context.Context, r *model.Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Scenario, r.Status, joinEngines(r.Engines), r.Steps, r.Error,
		r.DurationMS, r.CreatedAt, r.StartedAt, r.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*model.Run, error) {
	r := &model.Run{}
	var engines string
	if err := sc.Scan(
		&r.ID, &r.Scenario, &r.Status, &engines, &r.Steps, &r.Error,
		&r.DurationMS, &r.CreatedAt, &r.StartedAt, &r.FinishedAt,
	); err != nil {
		return nil, err
	}
	r.Engines = splitEngines(engines)
	return r, nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	r, err := scanRun(s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// ListRuns returns a paginated list of runs, newest first, along with the
// total count of all runs.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*model.Run, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count runs: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY id DESC LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate runs: %w", err)
	}

	return runs, total, nil
}

// UpdateRunStatus moves a run to status. Moving to running sets started_at.
func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, id, status string) error {
	r, err := s.GetRun(ctx, id)
	if err != nil {
		return err
	}
	if !model.ValidTransition(r.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, status)
	}

	if status == model.StatusRunning {
		_, err = s.db.ExecContext(ctx,
			"UPDATE runs SET status = ?, started_at = ? WHERE id = ?",
			status, time.Now().UTC(), id,
		)
	} else {
		_, err = s.db.ExecContext(ctx,
			"UPDATE runs SET status = ? WHERE id = ?",
			status, id,
		)
	}
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	return nil
}

// SetRunEngines records the engine names bound for a run.
func (s *SQLiteStore) SetRunEngines(ctx context.Context, id string, engines []string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE runs SET engines = ? WHERE id = ?",
		joinEngines(engines), id,
	)
	if err != nil {
		return fmt.Errorf("set run engines: %w", err)
	}
	return checkAffected(result)
}

// FinishRun moves a run to a terminal status, recording the error message,
// finished_at and the duration since started_at.
func (s *SQLiteStore) FinishRun(ctx context.Context, id, status, errMsg string) error {
	if !model.Terminal(status) {
		return fmt.Errorf("%w: %s is not terminal", ErrInvalidTransition, status)
	}
	r, err := s.GetRun(ctx, id)
	if err != nil {
		return err
	}
	if !model.ValidTransition(r.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, status)
	}

	now := time.Now().UTC()
	var durationMS *int
	if r.StartedAt != nil {
		ms := int(now.Sub(*r.StartedAt).Milliseconds())
		durationMS = &ms
	}

	_, err = s.db.ExecContext(ctx,
		"UPDATE runs SET status = ?, error = ?, finished_at = ?, duration_ms = ? WHERE id = ?",
		status, errMsg, now, durationMS, id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// InsertExchange appends one exchange to a run's transcript and sets x.ID.
func (s *SQLiteStore) InsertExchange(ctx context.Context, x *model.Exchange) error {
	if x.CreatedAt.IsZero() {
		x.CreatedAt = time.Now().UTC()
	}
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO exchanges (run_id, seq, role, command, step, elements, duration_us, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		x.RunID, x.Seq, x.Role, x.Command, x.Step, x.Elements, x.DurationUS, x.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert exchange: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("exchange id: %w", err)
	}
	x.ID = id
	return nil
}

// GetExchanges returns a run's transcript in sequence order.
func (s *SQLiteStore) GetExchanges(ctx context.Context, runID string) ([]model.Exchange, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, seq, role, command, step, elements, duration_us, created_at
		FROM exchanges WHERE run_id = ? ORDER BY seq`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("get exchanges: %w", err)
	}
	defer rows.Close()

	var out []model.Exchange
	for rows.Next() {
		var x model.Exchange
		if err := rows.Scan(&x.ID, &x.RunID, &x.Seq, &x.Role, &x.Command, &x.Step, &x.Elements, &x.DurationUS, &x.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan exchange: %w", err)
		}
		out = append(out, x)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exchanges: %w", err)
	}
	return out, nil
}

func checkAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func joinEngines(engines []string) string {
	return strings.Join(engines, ",")
}

func splitEngines(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, ",")
}
