package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"yashubustudio/labelmatch/labelmatch"
)

var generateOpts struct {
	definitions string
	out         string
	compact     bool
	calibrate   bool
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Embed label definitions into a catalog",
	Long: `Embed every label of the definitions file (or the built-in job-application
definitions) and write the resulting catalog. Any label that fails to embed aborts
the run; nothing is written.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		defs, err := loadDefinitions(generateOpts.definitions)
		if err != nil {
			return err
		}
		provider := newProvider(cfg.Embedder, logger)
		defer provider.Close()

		cat, err := labelmatch.NewGenerator(provider, cfg.Embedder.BatchSize, logger).Generate(ctx, defs)
		if err != nil {
			return fmt.Errorf("generate: %w", err)
		}
		if generateOpts.calibrate {
			cat, err = labelmatch.NewCalibrator(cfg.Calibration.Workers, logger).Calibrate(ctx, cat)
			if err != nil {
				return fmt.Errorf("calibrate: %w", err)
			}
		}
		out := generateOpts.out
		if out == "" {
			out = cfg.CatalogPath
		}
		if err := cat.SaveFile(out, labelmatch.SaveOptions{Compact: generateOpts.compact}); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %d groups, %d labels, %d dimensions to %s\n",
			len(cat.Groups), cat.LabelCount(), cat.Dimensions, out)
		return nil
	},
}

func init() {
	generateCmd.Flags().StringVar(&generateOpts.definitions, "definitions", "", "YAML label definitions (default: config definitionsPath, then built-in)")
	generateCmd.Flags().StringVarP(&generateOpts.out, "out", "o", "", "catalog output path (default: config catalogPath)")
	generateCmd.Flags().BoolVar(&generateOpts.compact, "compact", false, "store embeddings as base64 float32")
	generateCmd.Flags().BoolVar(&generateOpts.calibrate, "calibrate", false, "calibrate thresholds before writing")
}

func loadDefinitions(path string) (*labelmatch.Definitions, error) {
	if path == "" {
		path = cfg.DefinitionsPath
	}
	if path == "" {
		return labelmatch.DefaultDefinitions(), nil
	}
	return labelmatch.LoadDefinitionsFile(path)
}
