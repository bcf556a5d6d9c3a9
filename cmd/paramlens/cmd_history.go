package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"paramlens/cmd/paramlens/ui"
	"paramlens/internal/store"
)

var historyLimit int

// historyCmd lists past runs.
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past check runs",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum number of runs to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	if !cfg.History.Enabled {
		return fmt.Errorf("history is disabled in the config")
	}
	history, err := store.Open(cfg.History.Path)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer history.Close()

	runs, err := history.ListRuns(historyLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs recorded yet")
		return nil
	}

	table := ui.NewTable("Check history", "Run", "Datasheet", "When", "Records", "Flagged")
	for _, r := range runs {
		table.AddRow(
			r.ID,
			r.Datasheet,
			r.StartedAt.Format("2006-01-02 15:04"),
			fmt.Sprintf("%d", r.RecordsChecked),
			fmt.Sprintf("%d", r.Flagged),
		)
	}
	fmt.Print(table.View(ui.DefaultStyles()))
	fmt.Println("use 'paramlens report --run <id>' for details")
	return nil
}
