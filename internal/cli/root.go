// Package cli implements the mollyctl operator commands.
package cli

import (
	"fmt"
	"os"

	"github.com/5kyf4ll/molly-project/internal/config"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags at build time)
	Version   = "dev"
	GitCommit = "unknown"

	// Global flags
	cfgFile      string
	outputFormat string
	noColor      bool

	cfg *config.Config
)

// NewRootCommand creates and returns the root command
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "mollyctl",
		Short: "Molly security assistant operator CLI",
		Long: `Molly - Conversational Security Assessment Assistant

mollyctl inspects the local Molly installation:
  - List scan sessions and their status
  - Show a scan's summary and report location

Configuration precedence: flags > environment variables > config file > defaults

Environment Variables:
  MOLLY_CONFIG         Path to config file
  MOLLY_DATABASE_PATH  Scan database location
  MOLLY_REPORTS_ROOT   PDF report root directory`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			path := cfgFile
			if path == "" {
				path = os.Getenv("MOLLY_CONFIG")
			}
			var err error
			cfg, err = config.Init(path)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default .molly.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "output format (table, json)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(newScansCommand())
	rootCmd.AddCommand(newReportCommand())
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("mollyctl %s (commit %s)\n", Version, GitCommit)
		},
	}
}
