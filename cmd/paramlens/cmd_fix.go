package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"paramlens/cmd/paramlens/ui"
	"paramlens/internal/config"
)

// fixCmd opens the interactive screen: results table, arrow-key record
// selection, per-group substitution editing.
var fixCmd = &cobra.Command{
	Use:   "fix",
	Short: "Interactively review and renumber inconsistent records",
	RunE:  runFix,
}

func runFix(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	c, cleanup := buildChecker(nil)
	defer cleanup()

	model := ui.NewModel(c, cfg.Datasheet.ID, cfg.Datasheet.Fields)
	p := tea.NewProgram(model, tea.WithAltScreen())

	// Live reload of the field selection while the session runs.
	watcher, err := config.NewWatcher(cfgPath, func(next *config.Config) {
		p.Send(ui.ConfigReloadedMsg{FieldNames: next.Datasheet.Fields})
	}, logger)
	if err != nil {
		logger.Warn("config watching disabled", zap.Error(err))
	} else if err := watcher.Start(); err != nil {
		logger.Warn("config watching disabled", zap.Error(err))
	} else {
		defer watcher.Stop()
	}

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("terminal session failed: %w", err)
	}
	return nil
}
