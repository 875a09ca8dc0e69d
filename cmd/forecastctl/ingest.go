package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"accident-forecast/internal/app"
	"accident-forecast/internal/repository"
	"accident-forecast/internal/services"
	"accident-forecast/migrations"
	"accident-forecast/pkg/logging"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load CSV datasets into the observation database",
	Long: `Load one CSV file (--file) or every *.csv file in a directory (--dir)
into the observation database. Directory files become one series each,
named after the file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		dir, _ := cmd.Flags().GetString("dir")
		series, _ := cmd.Flags().GetString("series")
		batchSize, _ := cmd.Flags().GetInt("batch-size")

		if (file == "") == (dir == "") {
			return fmt.Errorf("exactly one of --file or --dir is required")
		}
		if series == "" {
			series = cfg.Dataset.Series
		}

		ctx := cmd.Context()
		db, err := app.OpenDatabase(ctx, cfg, logger, metricsCollector)
		if err != nil {
			return err
		}
		defer db.Close()

		repo := repository.NewObservationRepository(db, logger, metricsCollector)
		ingestion := services.NewIngestionService(repo, app.CSVOptions(cfg.Dataset), logger, metricsCollector)

		var result *services.IngestionResult
		if file != "" {
			result, err = ingestion.IngestFile(ctx, file, series, batchSize)
		} else {
			result, err = ingestion.IngestDirectory(ctx, dir, batchSize)
		}
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, strings.Repeat("=", 80))
		fmt.Fprintln(out, "INGESTION COMPLETE")
		fmt.Fprintln(out, strings.Repeat("=", 80))
		fmt.Fprintf(out, "Total Files:        %d\n", result.TotalFiles)
		fmt.Fprintf(out, "Total Records:      %d\n", result.TotalRecords)
		fmt.Fprintf(out, "Successful Records: %d\n", result.SuccessfulRecords)
		fmt.Fprintf(out, "Series:             %s\n", strings.Join(result.Series, ", "))
		fmt.Fprintf(out, "Duration:           %v\n", result.Duration)

		if len(result.Errors) > 0 {
			fmt.Fprintf(out, "\nErrors (%d):\n", len(result.Errors))
			for i, errMsg := range result.Errors {
				if i == 10 {
					fmt.Fprintf(out, "  ... and %d more errors\n", len(result.Errors)-10)
					break
				}
				fmt.Fprintf(out, "  - %s\n", errMsg)
			}
		}

		logger.Info(ctx, "[INGESTER_COMPLETE] Ingestion finished", logging.Fields{
			"total_records":      result.TotalRecords,
			"successful_records": result.SuccessfulRecords,
			"errors":             len(result.Errors),
			"duration_seconds":   result.Duration.Seconds(),
		})
		return nil
	},
}

func init() {
	ingestCmd.Flags().String("file", "", "CSV file to ingest")
	ingestCmd.Flags().String("dir", "", "directory of CSV files to ingest")
	ingestCmd.Flags().String("series", "", "series name for --file (default: dataset.series)")
	ingestCmd.Flags().Int("batch-size", 500, "observations written per transaction")
}

var seriesCmd = &cobra.Command{
	Use:   "series",
	Short: "List the series stored in the observation database",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, err := app.OpenDatabase(ctx, cfg, logger, metricsCollector)
		if err != nil {
			return err
		}
		defer db.Close()

		series, err := repository.NewObservationRepository(db, logger, metricsCollector).ListSeries(ctx)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), series)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the embedded schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		direction, _ := cmd.Flags().GetString("direction")

		ctx := cmd.Context()
		db, err := app.OpenDatabase(ctx, cfg, logger, metricsCollector)
		if err != nil {
			return err
		}
		defer db.Close()

		applied, err := migrations.Apply(ctx, db, migrations.Direction(direction))
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Applied %d %s migration(s) on %s\n", applied, direction, db.DriverName())
		return nil
	},
}

func init() {
	migrateCmd.Flags().String("direction", "up", "migration direction: up or down")
}
