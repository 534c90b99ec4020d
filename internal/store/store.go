package store

import (
	"context"
	"errors"

	"github.com/seantiz/electric/internal/model"
)

// ErrInvalidTransition is returned when a run status transition is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

// Store defines the persistence operations of the run journal.
type Store interface {
	CreateRun(ctx context.Context, r *model.Run) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*model.Run, int, error)
	UpdateRunStatus(ctx context.Context, id, status string) error
	SetRunEngines(ctx context.Context, id string, engines []string) error
	FinishRun(ctx context.Context, id, status, errMsg string) error
	InsertExchange(ctx context.Context, x *model.Exchange) error
	GetExchanges(ctx context.Context, runID string) ([]model.Exchange, error)
	Ping(ctx context.Context) error
	Close() error
}
