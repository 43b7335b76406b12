package execution

import (
	"context"
	"time"
)

type Repository interface {
	Get(ctx context.Context, executionID string) (*Record, error)
	// Insert stores a running record. It reports false without error when a
	// record with the same execution id already exists.
	Insert(ctx context.Context, rec *Record) (bool, error)
	// UpdateProgress replaces the progress of a record that is still running.
	UpdateProgress(ctx context.Context, executionID string, progress *AsyncStatus) error
	// Finish applies t only if the record is still running and reports
	// whether it did.
	Finish(ctx context.Context, executionID string, t *Terminal) (bool, error)
	// FailStale finishes every record started before cutoff that is still running.
	FailStale(ctx context.Context, cutoff time.Time, t *Terminal) (int64, error)
}
