package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"paramlens/cmd/paramlens/ui"
	"paramlens/internal/checker"
	"paramlens/internal/compare"
	"paramlens/internal/grid"
	"paramlens/internal/store"
)

// checkCmd runs a single batch comparison and prints the flagged records.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run a consistency check over the configured datasheet",
	Long: `Fetches every record of the datasheet, compares each field's parameter
tokens against the record's baseline field (the first token-bearing field
in view order) and lists the records whose fields disagree. The run is
persisted to the local history database unless history is disabled.`,
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	c, cleanup := buildChecker(showProgress)
	defer cleanup()

	result, err := c.Check(cmd.Context(), cfg.Datasheet.ID, cfg.Datasheet.Fields)
	fmt.Fprint(os.Stderr, "\n")
	if err != nil {
		return err
	}

	styles := ui.DefaultStyles()
	if len(result.Comparisons) == 0 {
		fmt.Printf("checked %d records: all consistent\n", len(result.Records))
		return nil
	}

	table := ui.NewTable(
		fmt.Sprintf("Flagged records · %s", cfg.Datasheet.ID),
		"Record", "Name", "Field", "Tokens")
	for _, rc := range result.Comparisons {
		for _, d := range rc.Differences {
			table.AddRow(rc.RecordID, rc.RecordName, d.FieldName, fmt.Sprintf("%v", d.Parameters))
		}
	}
	fmt.Print(table.View(styles))

	fmt.Printf("checked %d records, %d flagged\n", len(result.Records), len(result.Comparisons))
	if result.RunID != "" {
		fmt.Printf("run saved as %s\n", result.RunID)
	}
	return nil
}

func showProgress(done, total int) {
	fmt.Fprintf(os.Stderr, "\rcomparing records %d/%d", done, total)
}

// buildChecker wires the host client, batch runner and history store from
// the loaded config. A history store that fails to open is logged and left
// out rather than failing the command. The returned cleanup closes the
// history database.
func buildChecker(progress compare.ProgressFunc) (*checker.Checker, func()) {
	clientCfg := grid.Config{
		Token:    cfg.API.Token,
		BaseURL:  cfg.API.BaseURL,
		Timeout:  cfg.GetAPITimeout(),
		PageSize: cfg.API.PageSize,
	}
	client := grid.NewClient(clientCfg, logger)
	runner := compare.NewRunner(logger, progress)

	var history *store.HistoryStore
	cleanup := func() {}
	if cfg.History.Enabled {
		var err error
		history, err = store.Open(cfg.History.Path)
		if err != nil {
			// History must not block checking; log and continue without it.
			logger.Warn("history store unavailable", zap.Error(err))
		} else {
			cleanup = func() { _ = history.Close() }
		}
	}

	return checker.New(client, runner, history, logger), cleanup
}
