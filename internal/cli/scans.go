package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/5kyf4ll/molly-project/internal/store"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newScansCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "scans",
		Short: "List scan sessions",
		Long:  "List every scan session in the local database with its status, target, and timing.",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := store.Open(cfg.Database.Path, zap.NewNop())
			if err != nil {
				return fmt.Errorf("failed to open scan database: %w", err)
			}
			defer db.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			scans, err := db.GetAllScans(ctx)
			if err != nil {
				return fmt.Errorf("failed to list scans: %w", err)
			}

			opts := NewOutputOptions(outputFormat, noColor)
			return FormatScans(opts, scans)
		},
	}
}

func newReportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "report <scan-id>",
		Short: "Show a scan's summary and report location",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scanID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid scan id %q", args[0])
			}

			db, err := store.Open(cfg.Database.Path, zap.NewNop())
			if err != nil {
				return fmt.Errorf("failed to open scan database: %w", err)
			}
			defer db.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			scan, err := db.GetScan(ctx, scanID)
			if err != nil {
				return fmt.Errorf("scan %d not found", scanID)
			}

			fmt.Printf("Session:  %s\n", scan.SessionName)
			fmt.Printf("Target:   %s\n", scan.Target)
			fmt.Printf("Status:   %s\n", statusColor(scan.Status)(scan.Status.String()))
			if scan.Summary != "" {
				fmt.Printf("\n%s\n", scan.Summary)
			}
			if scan.ResultsPath != "" {
				fmt.Printf("\nReport:   %s\n", scan.ResultsPath)
			} else {
				fmt.Println("\nNo PDF report available for this scan.")
			}
			return nil
		},
	}
}

func statusColor(status store.ScanStatus) func(a ...interface{}) string {
	switch status {
	case store.ScanStatusCompleted:
		return color.New(color.FgGreen).SprintFunc()
	case store.ScanStatusFailed:
		return color.New(color.FgRed).SprintFunc()
	default:
		return color.New(color.FgYellow).SprintFunc()
	}
}
