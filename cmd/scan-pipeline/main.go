// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the scan-pipeline CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/scan-pipeline/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds credentials loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// modelServerToken returns the bearer token for the remote model
// server, empty when none is configured.
func modelServerToken() string {
	return loadedSecrets["model-server-token"]
}

// rootCmd is the base command for the scan-pipeline CLI.
var rootCmd = &cobra.Command{
	Use:   "scan-pipeline",
	Short: "Volumetric scan analysis pipeline",
	Long: `scan-pipeline analyzes volumetric scans in five stages: per-slice 2D
detection, 3D region-of-interest aggregation, crop and intensity
normalization, patch-wise 3D segmentation with overlap blending, and
geometric quantification of the segmented organs.

Each scan's progress is persisted; an interrupted run resumes at the
first stage whose artifact is missing. Scans live under
<data-dir>/scans/<scan-id>/ as slice image stacks, results are written
to <data-dir>/results/<scan-id>/.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./scan-pipeline.yaml or ~/.config/scan-pipeline/config.yaml)")
	rootCmd.PersistentFlags().String("data-dir", "", "data directory (overrides storage.data_dir)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("scan-pipeline")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "scan-pipeline"))
		}
	}

	viper.SetEnvPrefix("SCAN_PIPELINE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
