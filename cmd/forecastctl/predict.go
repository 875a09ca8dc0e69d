package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"accident-forecast/internal/app"
	"accident-forecast/internal/models"
	"accident-forecast/internal/services"
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Forecast the accident count for a month",
	Long: `Load the configured dataset, fit the model and print the forecast for
the requested month.

Examples:
  forecastctl predict --year 2021 --month 1
  FORECAST_DATASET_PATH=data.csv forecastctl predict --year 2022 --month 6`,
	RunE: func(cmd *cobra.Command, args []string) error {
		year, _ := cmd.Flags().GetInt("year")
		month, _ := cmd.Flags().GetInt("month")

		ctx := cmd.Context()
		svc := app.Bootstrap(ctx, cfg, logger, metricsCollector)

		prediction, err := svc.Predict(ctx, models.PredictionRequest{Year: year, Month: month})
		if err != nil {
			return fmt.Errorf("%s: %w", models.KindOf(err), err)
		}

		return printJSON(cmd.OutOrStdout(), map[string]interface{}{
			"prediction":  prediction.Value,
			"target_date": prediction.TargetDate.Format("2006-01-02"),
			"horizon":     prediction.Horizon,
		})
	},
}

func init() {
	predictCmd.Flags().Int("year", 0, "target year")
	predictCmd.Flags().Int("month", 0, "target month (1-12)")
	predictCmd.MarkFlagRequired("year")
	predictCmd.MarkFlagRequired("month")
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Fit the model and print its readiness and summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := app.Bootstrap(cmd.Context(), cfg, logger, metricsCollector)
		return printJSON(cmd.OutOrStdout(), svc.Status())
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print descriptive statistics of the configured dataset",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		svc := app.Bootstrap(ctx, cfg, logger, metricsCollector)

		stats := services.NewStatisticsService(logger, metricsCollector).Describe(ctx, svc.Series())
		if stats == nil {
			return fmt.Errorf("no dataset loaded: %s", svc.GetStatus().Detail)
		}
		return printJSON(cmd.OutOrStdout(), stats)
	},
}
