package compare

import (
	"context"
	"errors"
	"sync/atomic"

	"go.uber.org/zap"

	"paramlens/internal/grid"
)

// ErrRunInProgress is returned when a second batch run is started while one
// is still in flight. A run is exclusive; callers retry after completion.
var ErrRunInProgress = errors.New("comparison run already in progress")

// ProgressFunc receives batch progress. It is a UI hook, not part of the
// comparison contract; a nil hook is a no-op.
type ProgressFunc func(done, total int)

// progressStride is how often the progress hook fires.
const progressStride = 10

// Runner executes batch comparisons over fully materialized record sets.
type Runner struct {
	logger   *zap.Logger
	progress ProgressFunc
	running  atomic.Bool
}

// NewRunner creates a batch runner. logger and progress may be nil.
func NewRunner(logger *zap.Logger, progress ProgressFunc) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{logger: logger, progress: progress}
}

// Run compares every record against its baseline field and returns the
// flagged records in input order. selected restricts the compared field IDs
// (empty means all). Zero records yield an empty result. Cancellation is
// honored between records; a canceled run returns no partial result.
func (r *Runner) Run(ctx context.Context, records []grid.Record, fields []grid.Field, selected []string) ([]RecordComparison, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer r.running.Store(false)

	selectedSet := make(map[string]bool, len(selected))
	for _, id := range selected {
		selectedSet[id] = true
	}

	var results []RecordComparison
	total := len(records)
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		infos := ExtractRecord(rec, fields)
		if rc := CompareRecord(rec, infos, selectedSet); rc != nil {
			results = append(results, *rc)
		}

		if r.progress != nil && (i+1)%progressStride == 0 {
			r.progress(i+1, total)
		}
	}
	if r.progress != nil {
		r.progress(total, total)
	}

	r.logger.Info("comparison run finished",
		zap.Int("records", total),
		zap.Int("flagged", len(results)))
	return results, nil
}
