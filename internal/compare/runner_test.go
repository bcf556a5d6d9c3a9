package compare

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paramlens/internal/grid"
)

func TestRunnerEndToEnd(t *testing.T) {
	records := []grid.Record{
		textRecord("rec1", map[string]string{"fldA": "no tokens"}),
		textRecord("rec2", map[string]string{"fldA": "{1}{2}", "fldB": "{2}{1}"}),
		textRecord("rec3", map[string]string{"fldA": "{1}{2}", "fldB": "{1}{3}"}),
	}

	runner := NewRunner(nil, nil)
	results, err := runner.Run(context.Background(), records, testFields, nil)
	require.NoError(t, err)

	require.Len(t, results, 1, "only the record with a real discrepancy is flagged")
	assert.Equal(t, "rec3", results[0].RecordID)
}

func TestRunnerEmptyInput(t *testing.T) {
	runner := NewRunner(nil, nil)
	results, err := runner.Run(context.Background(), nil, testFields, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRunnerPreservesRecordOrder(t *testing.T) {
	var records []grid.Record
	for _, id := range []string{"recC", "recA", "recB"} {
		records = append(records, textRecord(id, map[string]string{
			"fldA": "{1}",
			"fldB": "{2}",
		}))
	}

	runner := NewRunner(nil, nil)
	results, err := runner.Run(context.Background(), records, testFields, nil)
	require.NoError(t, err)

	require.Len(t, results, 3)
	assert.Equal(t, "recC", results[0].RecordID)
	assert.Equal(t, "recA", results[1].RecordID)
	assert.Equal(t, "recB", results[2].RecordID)
}

func TestRunnerProgressCadence(t *testing.T) {
	var calls [][2]int
	progress := func(done, total int) {
		calls = append(calls, [2]int{done, total})
	}

	records := make([]grid.Record, 25)
	for i := range records {
		records[i] = textRecord("rec", map[string]string{"fldA": "x"})
	}

	runner := NewRunner(nil, progress)
	_, err := runner.Run(context.Background(), records, testFields, nil)
	require.NoError(t, err)

	assert.Equal(t, [][2]int{{10, 25}, {20, 25}, {25, 25}}, calls)
}

func TestRunnerExclusive(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	runner := NewRunner(nil, func(done, total int) {
		once.Do(func() {
			close(started)
			<-release
		})
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		records := make([]grid.Record, 10)
		for i := range records {
			records[i] = textRecord("rec", map[string]string{"fldA": "x"})
		}
		_, err := runner.Run(context.Background(), records, testFields, nil)
		assert.NoError(t, err)
	}()

	<-started
	_, err := runner.Run(context.Background(), nil, testFields, nil)
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(release)
	wg.Wait()

	// Once the first run completes the runner is available again.
	_, err = runner.Run(context.Background(), nil, testFields, nil)
	assert.NoError(t, err)
}

func TestRunnerCancellationDiscardsPartialResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	records := make([]grid.Record, 30)
	for i := range records {
		records[i] = textRecord("rec", map[string]string{
			"fldA": "{1}",
			"fldB": "{2}",
		})
	}

	runner := NewRunner(nil, func(done, total int) {
		if done == 10 {
			cancel()
		}
	})

	results, err := runner.Run(ctx, records, testFields, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, results, "a canceled run must not hand back partial aggregation")
}
