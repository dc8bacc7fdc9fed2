package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/5kyf4ll/molly-project/internal/store"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/olekukonko/tablewriter"
)

// OutputFormat represents the supported output formats
type OutputFormat string

const (
	FormatJSON  OutputFormat = "json"
	FormatTable OutputFormat = "table"
)

// OutputOptions controls output formatting behavior
type OutputOptions struct {
	Format     OutputFormat
	Writer     io.Writer
	IsTerminal bool
}

// NewOutputOptions creates output options with sensible defaults
func NewOutputOptions(format string, noColor bool) *OutputOptions {
	opts := &OutputOptions{
		Format: FormatTable,
		Writer: os.Stdout,
	}

	if f, ok := opts.Writer.(*os.File); ok {
		opts.IsTerminal = isatty.IsTerminal(f.Fd())
	}

	if strings.EqualFold(format, "json") {
		opts.Format = FormatJSON
	}

	if !opts.IsTerminal || noColor {
		color.NoColor = true
	}

	return opts
}

// FormatScans renders a scan session listing in the selected format
func FormatScans(opts *OutputOptions, scans []store.Scan) error {
	switch opts.Format {
	case FormatJSON:
		enc := json.NewEncoder(opts.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(scans)
	case FormatTable:
		return formatScansTable(opts, scans)
	default:
		return fmt.Errorf("unsupported format: %s", opts.Format)
	}
}

func formatScansTable(opts *OutputOptions, scans []store.Scan) error {
	if len(scans) == 0 {
		fmt.Fprintln(opts.Writer, "No scan sessions found.")
		return nil
	}

	table := tablewriter.NewWriter(opts.Writer)
	table.SetHeader([]string{"ID", "Session", "Target", "Status", "Started", "Report"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)

	for _, scan := range scans {
		report := ""
		if scan.ResultsPath != "" {
			report = "yes"
		}
		table.Append([]string{
			fmt.Sprintf("%d", scan.ID),
			scan.SessionName,
			scan.Target,
			statusColor(scan.Status)(scan.Status.String()),
			scan.StartTime.Format("2006-01-02 15:04"),
			report,
		})
	}

	table.Render()
	return nil
}
