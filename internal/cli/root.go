// Package cli implements the command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/op/go-logging"
	"github.com/spf13/cobra"

	"github.com/loftdb/loft/internal/config"
	"github.com/loftdb/loft/internal/store"
	"github.com/loftdb/loft/internal/ui"
)

var (
	// Global flags
	dbPathFlag string
	tableFlag  string
	configPath string
	jsonOutput bool

	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "loft",
	Short: "Loft - an embedded JSON document database",
	Long: `Loft is a document-oriented embedded database: versioned JSON
documents in a single SQLite file, queried with a JSON-encoded query
language that compiles to SQL.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch cmd.Name() {
		case "completion", "help", "version":
			return nil
		}

		var err error
		if configPath != "" {
			cfg, err = config.LoadFrom(configPath)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		ui.ConfigureTheme(cfg.UI.Accent)
		return nil
	},
}

func init() {
	switch os.Getenv("LOFT_LOG_LEVEL") {
	case "DEBUG":
		logging.SetLevel(logging.DEBUG, "loft.store")
	case "INFO":
		logging.SetLevel(logging.INFO, "loft.store")
	default:
		logging.SetLevel(logging.WARNING, "loft.store")
	}

	rootCmd.PersistentFlags().StringVar(&dbPathFlag, "db", "", "database file path")
	rootCmd.PersistentFlags().StringVar(&tableFlag, "table", "", "documents table name")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "JSON output")
}

// openStore opens the store selected by flags and config.
func openStore() (*store.Store, error) {
	path := dbPathFlag
	if path == "" {
		path = cfg.DatabasePath()
	}
	table := tableFlag
	if table == "" {
		table = cfg.TableName()
	}
	return store.OpenTable(path, table)
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(ui.Errorf("%v", err))
		return err
	}
	return nil
}
