package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"paramlens/internal/config"
)

var initForce bool

// initCmd writes a starter config file.
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file",
	Long: `Writes a config file with defaults to the --config path. Fill in the API
token and datasheet ID afterwards, or set PARAMLENS_TOKEN and
PARAMLENS_DATASHEET in the environment.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite an existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(cfgPath); err == nil && !initForce {
		return fmt.Errorf("%s already exists, use --force to overwrite", cfgPath)
	}

	starter := config.DefaultConfig()
	if datasheet != "" {
		starter.Datasheet.ID = datasheet
	}
	if err := starter.Save(cfgPath); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", cfgPath)
	fmt.Println("set api.token and datasheet.id before running a check")
	return nil
}
