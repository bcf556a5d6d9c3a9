package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"paramlens/internal/store"
)

var (
	reportRunID string
	reportRaw   bool
)

// reportCmd renders a stored run as a markdown report.
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Render a past run as a markdown report",
	Long: `Renders the findings of a stored run. Without --run the most recent run
is used. --raw writes plain markdown suitable for piping into a file.`,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportRunID, "run", "", "run ID (default: latest)")
	reportCmd.Flags().BoolVar(&reportRaw, "raw", false, "emit raw markdown without terminal styling")
}

func runReport(cmd *cobra.Command, args []string) error {
	if !cfg.History.Enabled {
		return fmt.Errorf("history is disabled in the config; nothing to report on")
	}
	history, err := store.Open(cfg.History.Path)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer history.Close()

	run, err := history.GetRun(reportRunID)
	if err != nil {
		return err
	}

	md := buildReport(run)
	if reportRaw {
		fmt.Print(md)
		return nil
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		// Styling is a nicety; fall back to the raw markdown.
		fmt.Print(md)
		return nil
	}
	out, err := renderer.Render(md)
	if err != nil {
		fmt.Print(md)
		return nil
	}
	fmt.Fprint(os.Stdout, out)
	return nil
}

// buildReport formats one run as markdown, findings grouped by record.
func buildReport(run *store.Run) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Parameter check · %s\n\n", run.Datasheet)
	fmt.Fprintf(&b, "- **Run:** `%s`\n", run.ID)
	fmt.Fprintf(&b, "- **Started:** %s\n", run.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "- **Duration:** %s\n", run.FinishedAt.Sub(run.StartedAt).Round(10*time.Millisecond))
	fmt.Fprintf(&b, "- **Records checked:** %d\n", run.RecordsChecked)
	fmt.Fprintf(&b, "- **Flagged:** %d\n\n", run.Flagged)

	if len(run.Findings) == 0 {
		b.WriteString("All records carry consistent parameter tokens.\n")
		return b.String()
	}

	byRecord := make(map[string][]store.Finding)
	var order []string
	for _, f := range run.Findings {
		if _, seen := byRecord[f.RecordID]; !seen {
			order = append(order, f.RecordID)
		}
		byRecord[f.RecordID] = append(byRecord[f.RecordID], f)
	}

	b.WriteString("## Findings\n\n")
	for _, id := range order {
		findings := byRecord[id]
		name := findings[0].RecordName
		if name == "" {
			name = id
		}
		fmt.Fprintf(&b, "### %s\n\n", name)
		fmt.Fprintf(&b, "| Field | Parameters |\n|---|---|\n")
		for _, f := range findings {
			fmt.Fprintf(&b, "| %s | `%s` |\n", f.FieldName, formatParams(f.Parameters))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func formatParams(params []int) string {
	sorted := append([]int(nil), params...)
	sort.Ints(sorted)
	parts := make([]string, len(sorted))
	for i, p := range sorted {
		parts[i] = fmt.Sprintf("{%d}", p)
	}
	return strings.Join(parts, " ")
}
