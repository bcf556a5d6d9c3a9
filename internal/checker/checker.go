// Package checker orchestrates a full consistency check: fetch the
// datasheet, run the batch comparison, persist the run. It is the single
// boundary where host failures are caught and turned into reported errors;
// nothing below it talks to the platform.
package checker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"paramlens/internal/compare"
	"paramlens/internal/grid"
	"paramlens/internal/store"
	"paramlens/internal/subst"
)

// HostClient is the slice of the fusion API the checker needs.
type HostClient interface {
	Fields(ctx context.Context, datasheetID string) ([]grid.Field, error)
	Records(ctx context.Context, datasheetID string) ([]grid.Record, error)
	UpdateRecord(ctx context.Context, datasheetID, recordID string, cells map[string][]grid.Segment) error
}

// Result is one finished check.
type Result struct {
	RunID       string
	Datasheet   string
	Fields      []grid.Field
	Records     []grid.Record
	Comparisons []compare.RecordComparison
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Checker runs checks and applies fixes. History may be nil to disable
// persistence.
type Checker struct {
	client  HostClient
	runner  *compare.Runner
	history *store.HistoryStore
	logger  *zap.Logger
}

// New creates a checker. logger may be nil.
func New(client HostClient, runner *compare.Runner, history *store.HistoryStore, logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{client: client, runner: runner, history: history, logger: logger}
}

// Check fetches the datasheet and compares every record. fieldNames
// restricts comparison to the named fields (empty = all); an unknown name
// is a configuration error, not a silent skip. Any host failure aborts the
// run with no partial result.
func (c *Checker) Check(ctx context.Context, datasheetID string, fieldNames []string) (*Result, error) {
	started := time.Now()

	var fields []grid.Field
	var records []grid.Record
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		fields, err = c.client.Fields(gctx, datasheetID)
		return err
	})
	g.Go(func() error {
		var err error
		records, err = c.client.Records(gctx, datasheetID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fetch datasheet %s: %w", datasheetID, err)
	}

	selected, err := resolveFieldIDs(fields, fieldNames)
	if err != nil {
		return nil, err
	}

	comparisons, err := c.runner.Run(ctx, records, fields, selected)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Datasheet:   datasheetID,
		Fields:      fields,
		Records:     records,
		Comparisons: comparisons,
		StartedAt:   started,
		FinishedAt:  time.Now(),
	}

	if c.history != nil {
		run := toRun(result)
		if err := c.history.SaveRun(run); err != nil {
			// History is best effort; the check itself succeeded.
			c.logger.Warn("failed to persist run", zap.Error(err))
		} else {
			result.RunID = run.ID
		}
	}
	return result, nil
}

// ApplyMapping validates, resolves and applies one parameter group's
// substitution mapping, writing every field of the group back in a single
// record update. The returned flag reports whether a cyclic mapping was
// auto-resolved. Validation failures happen before any host write.
func (c *Checker) ApplyMapping(ctx context.Context, datasheetID string, rc *compare.RecordComparison, group compare.ParameterGroup, entries map[int]string) (bool, error) {
	mapping, err := subst.ParseMapping(entries)
	if err != nil {
		return false, err
	}
	resolved, fixed := subst.Resolve(mapping)

	cells := make(map[string][]grid.Segment, len(group.Fields))
	for _, f := range group.Fields {
		cells[f.FieldID] = []grid.Segment{grid.TextSegment(subst.Apply(f.Text, resolved))}
	}

	if err := c.client.UpdateRecord(ctx, datasheetID, rc.RecordID, cells); err != nil {
		return fixed, fmt.Errorf("save record %s: %w", rc.RecordID, err)
	}
	c.logger.Info("applied substitution",
		zap.String("record", rc.RecordID),
		zap.Int("fields", len(group.Fields)),
		zap.Bool("cycle_fixed", fixed))
	return fixed, nil
}

func resolveFieldIDs(fields []grid.Field, names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}
	byName := make(map[string]string, len(fields))
	for _, f := range fields {
		byName[f.Name] = f.ID
	}
	ids := make([]string, 0, len(names))
	for _, name := range names {
		id, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("selected field %q does not exist in the datasheet", name)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func toRun(r *Result) *store.Run {
	run := &store.Run{
		Datasheet:      r.Datasheet,
		StartedAt:      r.StartedAt,
		FinishedAt:     r.FinishedAt,
		RecordsChecked: len(r.Records),
		Flagged:        len(r.Comparisons),
	}
	for _, rc := range r.Comparisons {
		for _, d := range rc.Differences {
			run.Findings = append(run.Findings, store.Finding{
				RecordID:   rc.RecordID,
				RecordName: rc.RecordName,
				FieldName:  d.FieldName,
				Parameters: d.Parameters,
			})
		}
	}
	return run
}
