package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/miradorstack/mirador-forecast/internal/models"
)

var (
	forecastSKU     string
	forecastHorizon int
	forecastFormat  string
)

var forecastCmd = &cobra.Command{
	Use:   "forecast",
	Short: "Forecast one SKU with every enabled model",
	Long: `Generate forecasts for a SKU using the selected cached parameters where
they are still valid for the SKU's data, falling back to the model pack.

Examples:
  forecast-engine forecast --sku A-100
  forecast-engine forecast --sku A-100 --horizon 12 --format json`,
	RunE: runForecast,
}

func init() {
	rootCmd.AddCommand(forecastCmd)
	forecastCmd.Flags().StringVar(&forecastSKU, "sku", "", "SKU to forecast")
	forecastCmd.Flags().IntVar(&forecastHorizon, "horizon", 0, "Periods to forecast; 0 uses the configured default")
	forecastCmd.Flags().StringVar(&forecastFormat, "format", "table", "Output format: table, json")
	_ = forecastCmd.MarkFlagRequired("sku")
}

func runForecast(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()
	a.restore(ctx)
	results, err := a.service.Generate(ctx, forecastSKU, forecastHorizon)
	if err != nil {
		return err
	}

	switch forecastFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	case "table":
		return printForecastTable(results)
	default:
		return fmt.Errorf("unsupported format %q", forecastFormat)
	}
}

func printForecastTable(results []models.ForecastResult) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tSOURCE\tACCURACY\tMAPE\tPREDICTIONS")
	for _, r := range results {
		source := string(r.Method)
		if source == "" {
			source = "config"
		}
		if r.Error != "" {
			fmt.Fprintf(w, "%s\t%s\t-\t-\terror: %s\n", r.ModelID, source, r.Error)
			continue
		}
		preds := make([]string, len(r.Predictions))
		for i, p := range r.Predictions {
			preds[i] = fmt.Sprintf("%.2f", p)
		}
		fmt.Fprintf(w, "%s\t%s\t%.1f\t%.2f\t%s\n", r.ModelID, source, r.Accuracy, r.MAPE, strings.Join(preds, " "))
	}
	return w.Flush()
}
