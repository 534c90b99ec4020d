// Package driver runs one coupled simulation end to end: it resolves the
// connecting engines, runs the configured scenario, prints the result,
// terminates the engines and crosses the shutdown barrier.
package driver

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/seantiz/electric/internal/engine"
	"github.com/seantiz/electric/internal/mdi"
	"github.com/seantiz/electric/internal/model"
	"github.com/seantiz/electric/internal/report"
	"github.com/seantiz/electric/internal/scenario"
	"github.com/seantiz/electric/internal/session"
	"github.com/seantiz/electric/internal/store"
	"github.com/seantiz/electric/internal/world"
)

// Option configures a Driver.
type Option func(*Driver)

// WithJournal records every run and its transcript in s.
func WithJournal(s store.Store) Option {
	return func(d *Driver) {
		d.journal = s
	}
}

// WithBroker publishes every exchange to b.
func WithBroker(b *EventBroker) Option {
	return func(d *Driver) {
		d.broker = b
	}
}

// WithOutput sends the console report to w instead of stdout.
func WithOutput(w io.Writer) Option {
	return func(d *Driver) {
		d.out = w
	}
}

// WithGroup sets the process group whose barrier is crossed at shutdown.
func WithGroup(g world.Group) Option {
	return func(d *Driver) {
		d.group = g
	}
}

// Driver orchestrates a single scenario run.
type Driver struct {
	scenario *scenario.Scenario
	logger   *slog.Logger
	group    world.Group
	out      io.Writer
	journal  store.Store
	broker   *EventBroker
}

// New creates a driver for sc.
func New(sc *scenario.Scenario, logger *slog.Logger, opts ...Option) *Driver {
	d := &Driver{
		scenario: sc,
		logger:   logger,
		group:    world.NewLocal(),
		out:      os.Stdout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Accepter adapts a transport to the registry's accept function.
func Accepter(t *mdi.Transport) engine.AcceptFunc {
	return func(ctx context.Context) (mdi.Channel, error) {
		c, err := t.Accept(ctx)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// Run resolves the engines delivered by accept and runs the scenario. Any
// error aborts the run: bound engines are closed without EXIT and the
// barrier is not crossed.
func (d *Driver) Run(ctx context.Context, accept engine.AcceptFunc) (err error) {
	sc := d.scenario
	runID := model.NewID()
	logger := d.logger.With("run_id", runID, "scenario", sc.Name)
	start := time.Now()

	d.createRun(ctx, logger, runID)
	defer func() {
		status := model.StatusCompleted
		if err != nil {
			status = model.StatusFailed
			logger.Error("run failed", "error", err)
		} else {
			logger.Info("run completed", "duration_ms", time.Since(start).Milliseconds())
		}
		runsTotal.WithLabelValues(status).Inc()
		d.finishRun(ctx, logger, runID, status, err)
		if d.broker != nil {
			d.broker.Close(runID)
		}
	}()

	logger.Info("waiting for engines", "engines", sc.Engines, "rank", d.group.Rank(), "size", d.group.Size())
	reg := engine.NewRegistry(logger, sc.Roles...)
	bindings, err := reg.Resolve(ctx, accept, sc.Engines)
	if err != nil {
		return fmt.Errorf("resolve engines: %w", err)
	}
	if err := report.Engines(d.out, bindings); err != nil {
		bindings.Close()
		return fmt.Errorf("report engines: %w", err)
	}
	d.startRun(ctx, logger, runID, bindings)

	sess := session.New(bindings, logger, session.WithExchangeHook(d.exchangeHook(ctx, logger, runID)))
	res, err := sess.Run(ctx, sc)
	if err != nil {
		sess.Close()
		return fmt.Errorf("run scenario %s: %w", sc.Name, err)
	}
	if err := report.Result(d.out, res); err != nil {
		sess.Close()
		return fmt.Errorf("report result: %w", err)
	}

	if err := sess.Terminate(); err != nil {
		return fmt.Errorf("terminate engines: %w", err)
	}
	if err := d.group.Barrier(ctx); err != nil {
		return fmt.Errorf("shutdown barrier: %w", err)
	}
	return nil
}

// exchangeHook journals and publishes each exchange. Journal failures are
// logged and never abort the run.
func (d *Driver) exchangeHook(ctx context.Context, logger *slog.Logger, runID string) func(session.Exchange) {
	seq := 0
	return func(x session.Exchange) {
		rec := model.Exchange{
			RunID:      runID,
			Seq:        seq,
			Role:       x.Role.String(),
			Command:    string(x.Command),
			Step:       x.Step,
			Elements:   x.Elements,
			DurationUS: x.Duration.Microseconds(),
			CreatedAt:  time.Now().UTC(),
		}
		seq++

		if d.journal != nil {
			if err := d.journal.InsertExchange(ctx, &rec); err != nil {
				logger.Warn("journal exchange", "command", rec.Command, "error", err)
			}
		}
		if d.broker != nil {
			d.broker.Publish(rec)
		}
	}
}

func (d *Driver) createRun(ctx context.Context, logger *slog.Logger, runID string) {
	if d.journal == nil {
		return
	}
	r := &model.Run{
		ID:        runID,
		Scenario:  d.scenario.Name,
		Status:    model.StatusPending,
		Engines:   []string{},
		Steps:     d.scenario.Steps,
		CreatedAt: time.Now().UTC(),
	}
	if err := d.journal.CreateRun(ctx, r); err != nil {
		logger.Warn("journal run", "error", err)
	}
}

func (d *Driver) startRun(ctx context.Context, logger *slog.Logger, runID string, b *engine.Bindings) {
	if d.journal == nil {
		return
	}
	var names []string
	for _, r := range b.Roles() {
		names = append(names, r.String())
	}
	if err := d.journal.SetRunEngines(ctx, runID, names); err != nil {
		logger.Warn("journal engines", "error", err)
	}
	if err := d.journal.UpdateRunStatus(ctx, runID, model.StatusRunning); err != nil {
		logger.Warn("journal status", "status", model.StatusRunning, "error", err)
	}
}

func (d *Driver) finishRun(ctx context.Context, logger *slog.Logger, runID, status string, runErr error) {
	if d.journal == nil {
		return
	}
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	// The run context may already be cancelled; the final status still lands.
	if err := d.journal.FinishRun(context.WithoutCancel(ctx), runID, status, msg); err != nil {
		logger.Warn("journal finish", "status", status, "error", err)
	}
}
