package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/seantiz/electric/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func makeTestRun() *model.Run {
	return &model.Run{
		ID:        model.NewID(),
		Scenario:  "field",
		Status:    model.StatusPending,
		Engines:   []string{},
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func TestCreateAndGetRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := makeTestRun()
	r.Steps = 500

	if err := s.CreateRun(ctx, r); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	got, err := s.GetRun(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.ID != r.ID {
		t.Errorf("ID = %q, want %q", got.ID, r.ID)
	}
	if got.Scenario != r.Scenario {
		t.Errorf("Scenario = %q, want %q", got.Scenario, r.Scenario)
	}
	if got.Status != model.StatusPending {
		t.Errorf("Status = %q, want pending", got.Status)
	}
	if got.Steps != 500 {
		t.Errorf("Steps = %d, want 500", got.Steps)
	}
	if len(got.Engines) != 0 {
		t.Errorf("Engines = %v, want empty", got.Engines)
	}
	if got.StartedAt != nil || got.FinishedAt != nil {
		t.Error("new run has timestamps set")
	}
}

func TestGetRunNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetRun(context.Background(), "nonexistent"); err != ErrNotFound {
		t.Errorf("GetRun error = %v, want ErrNotFound", err)
	}
}

func TestListRunsPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		r := makeTestRun()
		if err := s.CreateRun(ctx, r); err != nil {
			t.Fatalf("CreateRun[%d]: %v", i, err)
		}
		ids = append(ids, r.ID)
	}

	runs, total, err := s.ListRuns(ctx, 2, 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(runs) != 2 {
		t.Fatalf("len(runs) = %d, want 2", len(runs))
	}
	if runs[0].ID != ids[4] {
		t.Errorf("first run = %s, want newest %s", runs[0].ID, ids[4])
	}

	runs, _, err = s.ListRuns(ctx, 2, 4)
	if err != nil {
		t.Fatalf("ListRuns page 3: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != ids[0] {
		t.Errorf("last page = %v, want only the oldest run", runs)
	}
}

func TestListRunsEmpty(t *testing.T) {
	s := newTestStore(t)
	runs, total, err := s.ListRuns(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if total != 0 || len(runs) != 0 {
		t.Errorf("got %d runs, total %d; want none", len(runs), total)
	}
}

func TestRunLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := makeTestRun()
	if err := s.CreateRun(ctx, r); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	if err := s.UpdateRunStatus(ctx, r.ID, model.StatusRunning); err != nil {
		t.Fatalf("UpdateRunStatus(running): %v", err)
	}
	if err := s.SetRunEngines(ctx, r.ID, []string{"EWALD", "NOEWALD"}); err != nil {
		t.Fatalf("SetRunEngines: %v", err)
	}
	if err := s.FinishRun(ctx, r.ID, model.StatusCompleted, ""); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	got, err := s.GetRun(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != model.StatusCompleted {
		t.Errorf("Status = %q, want completed", got.Status)
	}
	if len(got.Engines) != 2 || got.Engines[0] != "EWALD" || got.Engines[1] != "NOEWALD" {
		t.Errorf("Engines = %v", got.Engines)
	}
	if got.StartedAt == nil || got.FinishedAt == nil {
		t.Fatal("timestamps not set")
	}
	if got.DurationMS == nil || *got.DurationMS < 0 {
		t.Errorf("DurationMS = %v", got.DurationMS)
	}
}

func TestFinishRunRecordsError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := makeTestRun()
	if err := s.CreateRun(ctx, r); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	if err := s.FinishRun(ctx, r.ID, model.StatusFailed, "duplicate engine"); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	got, _ := s.GetRun(ctx, r.ID)
	if got.Error != "duplicate engine" {
		t.Errorf("Error = %q", got.Error)
	}
	if got.DurationMS != nil {
		t.Errorf("DurationMS = %d for a run that never started", *got.DurationMS)
	}
}

func TestInvalidTransitions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := makeTestRun()
	if err := s.CreateRun(ctx, r); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	if err := s.FinishRun(ctx, r.ID, model.StatusCompleted, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("pending -> completed error = %v, want ErrInvalidTransition", err)
	}
	if err := s.FinishRun(ctx, r.ID, model.StatusRunning, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("FinishRun(running) error = %v, want ErrInvalidTransition", err)
	}

	if err := s.FinishRun(ctx, r.ID, model.StatusFailed, "x"); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	if err := s.UpdateRunStatus(ctx, r.ID, model.StatusRunning); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("failed -> running error = %v, want ErrInvalidTransition", err)
	}
}

func TestUpdateRunNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpdateRunStatus(ctx, "nonexistent", model.StatusRunning); err != ErrNotFound {
		t.Errorf("UpdateRunStatus error = %v, want ErrNotFound", err)
	}
	if err := s.SetRunEngines(ctx, "nonexistent", nil); err != ErrNotFound {
		t.Errorf("SetRunEngines error = %v, want ErrNotFound", err)
	}
	if err := s.FinishRun(ctx, "nonexistent", model.StatusFailed, ""); err != ErrNotFound {
		t.Errorf("FinishRun error = %v, want ErrNotFound", err)
	}
}

func TestInsertAndGetExchanges(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := makeTestRun()
	if err := s.CreateRun(ctx, r); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	other := makeTestRun()
	if err := s.CreateRun(ctx, other); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	cmds := []string{"<NATOMS", "@INIT_MD", "@FORCES", "EXIT"}
	// Insert out of order; reads come back by seq.
	for _, i := range []int{2, 0, 3, 1} {
		x := &model.Exchange{RunID: r.ID, Seq: i, Role: "EWALD", Command: cmds[i], Step: -1, Elements: i}
		if err := s.InsertExchange(ctx, x); err != nil {
			t.Fatalf("InsertExchange[%d]: %v", i, err)
		}
		if x.ID == 0 {
			t.Errorf("exchange %d has no ID", i)
		}
	}
	if err := s.InsertExchange(ctx, &model.Exchange{RunID: other.ID, Seq: 0, Role: "NO_EWALD", Command: "<FIELD"}); err != nil {
		t.Fatalf("InsertExchange other: %v", err)
	}

	got, err := s.GetExchanges(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetExchanges: %v", err)
	}
	if len(got) != len(cmds) {
		t.Fatalf("got %d exchanges, want %d", len(got), len(cmds))
	}
	for i, x := range got {
		if x.Seq != i || x.Command != cmds[i] {
			t.Errorf("exchange %d = seq %d %s, want %s", i, x.Seq, x.Command, cmds[i])
		}
		if x.CreatedAt.IsZero() {
			t.Errorf("exchange %d has no created_at", i)
		}
	}
}

func TestInsertExchangeDuplicateSeq(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := makeTestRun()
	if err := s.CreateRun(ctx, r); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	x := model.Exchange{RunID: r.ID, Seq: 0, Role: "EWALD", Command: "<NATOMS"}
	if err := s.InsertExchange(ctx, &x); err != nil {
		t.Fatalf("InsertExchange: %v", err)
	}
	dup := x
	if err := s.InsertExchange(ctx, &dup); err == nil {
		t.Error("duplicate seq accepted")
	}
}

func TestGetExchangesEmpty(t *testing.T) {
	s := newTestStore(t)
	got, err := s.GetExchanges(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("GetExchanges: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d exchanges, want 0", len(got))
	}
}

func TestReopenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	s1, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	r := makeTestRun()
	if err := s1.CreateRun(ctx, r); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	s1.Close()

	s2, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer s2.Close()
	if _, err := s2.GetRun(ctx, r.ID); err != nil {
		t.Fatalf("GetRun after reopen: %v", err)
	}
}

func TestPing(t *testing.T) {
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	s.Close()
	if err := s.Ping(context.Background()); err == nil {
		t.Fatal("Ping succeeded on a closed journal")
	}
}
