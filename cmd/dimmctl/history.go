package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mscrnt/dimmctl/pkg/db"
)

type historyFlags struct {
	device string
	label  string
	since  time.Duration
	limit  int
}

func (f *historyFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.device, "device", "", "Only readings of this device description")
	cmd.Flags().StringVar(&f.label, "label", "", "Only readings with this label, e.g. Temperature")
	cmd.Flags().DurationVar(&f.since, "since", 0, "Only readings newer than this, e.g. 24h")
}

func (f *historyFlags) filter(bus string) db.ReadingFilter {
	filter := db.ReadingFilter{
		Device: f.device,
		Bus:    bus,
		Label:  f.label,
		Limit:  f.limit,
	}
	if f.since > 0 {
		since := time.Now().Add(-f.since)
		filter.Since = &since
	}
	return filter
}

func historyCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect the readings recorded by monitor",
	}

	cmd.AddCommand(historyListCmd(a))
	cmd.AddCommand(historyExportCmd(a))
	cmd.AddCommand(historyPruneCmd(a))

	return cmd
}

func historyListCmd(a *app) *cobra.Command {
	var flags historyFlags

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show recorded readings, newest first",
		Long: `Show recorded readings, newest first.

Examples:
  # Last 20 readings
  dimmctl history list --limit 20

  # Temperatures of the last day
  dimmctl history list --label Temperature --since 24h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			database, err := a.openDB()
			if err != nil {
				return err
			}
			defer func() { _ = database.Close() }()

			readings, err := database.ListReadings(flags.filter(a.bus))
			if err != nil {
				return fmt.Errorf("failed to list readings: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(readings) == 0 {
				fprintf(out, "No readings recorded\n")
				return nil
			}
			for _, r := range readings {
				fprintf(out, "%s\n", r)
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().IntVarP(&flags.limit, "limit", "n", 50, "Maximum number of readings (0 for all)")

	return cmd
}

func historyExportCmd(a *app) *cobra.Command {
	var (
		flags  historyFlags
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export recorded readings as CSV or JSON",
		Long: `Export recorded readings.

Examples:
  # All readings to CSV on stdout
  dimmctl history export

  # Last week as JSON
  dimmctl history export --format json --since 168h --out week.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != "csv" && format != "json" {
				return fmt.Errorf("unknown format %q, should be csv or json", format)
			}

			database, err := a.openDB()
			if err != nil {
				return err
			}
			defer func() { _ = database.Close() }()

			out := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output) // #nosec G304 -- output is a user-specified file path from command line flag
				if err != nil {
					return fmt.Errorf("failed to create output file: %w", err)
				}
				defer func() { _ = f.Close() }()
				out = f
			}

			filter := flags.filter(a.bus)
			if format == "json" {
				err = database.ExportJSON(out, filter)
			} else {
				err = database.ExportCSV(out, filter)
			}
			if err != nil {
				return fmt.Errorf("failed to export readings: %w", err)
			}

			if output != "" {
				fprintf(cmd.ErrOrStderr(), "Exported readings to %s\n", output)
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&format, "format", "csv", "Output format: csv or json")
	cmd.Flags().StringVarP(&output, "out", "o", "", "Output file (default: stdout)")

	return cmd
}

func historyPruneCmd(a *app) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old readings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}

			database, err := a.openDB()
			if err != nil {
				return err
			}
			defer func() { _ = database.Close() }()

			n, err := database.Prune(time.Now().Add(-olderThan))
			if err != nil {
				return fmt.Errorf("failed to prune readings: %w", err)
			}
			fprintf(cmd.OutOrStdout(), "Deleted %d readings\n", n)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 7*24*time.Hour, "Delete readings older than this")

	return cmd
}
