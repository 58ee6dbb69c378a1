package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/miradorstack/mirador-forecast/internal/engine"
)

var (
	optimizeSKUs   []string
	optimizeReason string
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Run one optimisation pass and persist the cache snapshot",
	Long: `Queue the given SKUs (or every SKU in the dataset), run grid and advisory
optimisation for every model whose cached proposal is missing or stale, and
write the cache snapshot to the configured backend.

Examples:
  forecast-engine optimize
  forecast-engine optimize --sku A-100 --sku B-200`,
	RunE: runOptimize,
}

func init() {
	rootCmd.AddCommand(optimizeCmd)
	optimizeCmd.Flags().StringSliceVar(&optimizeSKUs, "sku", nil, "SKU to optimise (repeatable); defaults to all")
	optimizeCmd.Flags().StringVar(&optimizeReason, "reason", "cli", "Reason recorded on the queue item")
}

func runOptimize(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()
	a.restore(ctx)
	if _, err := a.service.Enqueue(ctx, optimizeSKUs, optimizeReason); err != nil {
		return err
	}
	report, err := a.orchestrator.Drain(ctx)
	if err != nil {
		return err
	}
	if err := a.cache.Persist(ctx, a.provider); err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Report       engine.DrainReport `json:"report"`
		CacheVersion uint64             `json:"cacheVersion"`
	}{Report: report, CacheVersion: a.cache.Version()})
}
