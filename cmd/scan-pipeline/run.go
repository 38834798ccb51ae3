// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pdiddy/scan-pipeline/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run [scan-id...]",
	Short: "Run the pipeline for one or more scans",
	Long: `Run executes all pipeline stages for each named scan: detection,
aggregation, normalization, segmentation, and quantification. Stages
whose artifacts already exist are skipped, so re-running a scan is
cheap. A configuration change invalidates all existing artifacts and
restarts the scan from the first stage.

Interrupting a run (Ctrl-C) leaves the completed stages' artifacts in
place; the next run or resume continues from where it stopped.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	return executeScans(cmd, args)
}

// executeScans drives the orchestrator for each scan in order,
// stopping at the first hard failure. Shared by run and resume.
func executeScans(cmd *cobra.Command, scanIDs []string) error {
	cfg := loadConfig(cmd)

	store, err := pipeline.NewStore(cfg.Storage.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	orch, err := pipeline.New(cfg, store, modelServerToken(), os.Stdout)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, scanID := range scanIDs {
		if _, err := orch.Run(ctx, scanID); err != nil {
			return fmt.Errorf("scan %s: %w", scanID, err)
		}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(runCmd)
}
