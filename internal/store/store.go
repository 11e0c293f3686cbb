package store

import (
	"context"

	"github.com/me/gdcmaf/pkg/model"
)

// Store persists the history of collection runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, run *model.Run) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, limit int) ([]*model.Run, error)
	FinishRun(ctx context.Context, run *model.Run) error

	// Failure records of a run
	AddFailures(ctx context.Context, runID string, records []model.FailureRecord) error
	ListFailures(ctx context.Context, runID string) ([]model.FailureRecord, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
