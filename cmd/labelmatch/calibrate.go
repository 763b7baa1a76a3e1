package main

import (
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"yashubustudio/labelmatch/labelmatch"
)

var calibrateOpts struct {
	catalog string
	out     string
	compact bool
}

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Recompute per-label thresholds of a catalog",
	Long: `Recompute every label threshold from the similarities between labels of the
same group. The catalog is rewritten only if every group succeeds.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		in := calibrateOpts.catalog
		if in == "" {
			in = cfg.CatalogPath
		}
		cat, err := labelmatch.LoadFile(in)
		if err != nil {
			return err
		}
		calibrated, err := labelmatch.NewCalibrator(cfg.Calibration.Workers, logger).Calibrate(cmd.Context(), cat)
		if err != nil {
			return fmt.Errorf("calibrate: %w", err)
		}
		out := calibrateOpts.out
		if out == "" {
			out = in
		}
		if err := calibrated.SaveFile(out, labelmatch.SaveOptions{Compact: calibrateOpts.compact}); err != nil {
			return err
		}
		lo, hi := thresholdRange(calibrated)
		fmt.Fprintf(cmd.OutOrStdout(), "calibrated %d groups, %d labels (thresholds %.3f-%.3f) to %s\n",
			len(calibrated.Groups), calibrated.LabelCount(), lo, hi, out)
		return nil
	},
}

func init() {
	calibrateCmd.Flags().StringVar(&calibrateOpts.catalog, "catalog", "", "catalog to calibrate (default: config catalogPath)")
	calibrateCmd.Flags().StringVarP(&calibrateOpts.out, "out", "o", "", "output path (default: overwrite the input)")
	calibrateCmd.Flags().BoolVar(&calibrateOpts.compact, "compact", false, "store embeddings as base64 float32")
}

func thresholdRange(cat *labelmatch.Catalog) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, g := range cat.Groups {
		for _, l := range g.Labels {
			lo = math.Min(lo, l.Threshold)
			hi = math.Max(hi, l.Threshold)
		}
	}
	return lo, hi
}
