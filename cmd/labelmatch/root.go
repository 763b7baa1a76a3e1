package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"yashubustudio/labelmatch/labelmatch"
)

var (
	cfgFile string
	cfg     labelmatch.Config
	logger  *log.Logger
)

var rootCmd = &cobra.Command{
	Use:   "labelmatch",
	Short: "Match job-application form labels to known question concepts",
	Long: `labelmatch builds and queries a catalog of question concepts (email, visa status,
work authorization, ...) so that a label discovered on an application form can be
resolved to the answer it asks for.

Typical flow:
  labelmatch generate        embed the label definitions into a catalog
  labelmatch calibrate       derive per-label thresholds from the catalog
  labelmatch match --label   resolve a discovered label`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig(cmd)
	},
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.json)")
	rootCmd.PersistentFlags().Bool("debug", false, "log every exact and semantic hit")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(calibrateCmd)
	rootCmd.AddCommand(matchCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
}

// initConfig reads the config file and LABELMATCH_ environment overrides.
func initConfig(cmd *cobra.Command) error {
	v := labelmatch.NewViper()
	if err := v.BindPFlag("match.debug", cmd.Root().PersistentFlags().Lookup("debug")); err != nil {
		return fmt.Errorf("bind debug flag: %w", err)
	}
	loaded, err := labelmatch.LoadConfigWith(v, cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg = loaded
	labelmatch.SetColumnCandidates(cfg.Columns)
	// stdout is reserved for command output and protocol frames.
	logger = log.New(os.Stderr, "labelmatch: ", log.LstdFlags)
	if cfg.Debug() {
		logger.Printf("config: backend=%s catalog=%s", cfg.Embedder.Backend, cfg.CatalogPath)
	}
	return nil
}
