// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/scan-pipeline/internal/pipeline"
	"github.com/pdiddy/scan-pipeline/pkg/types"
)

var statusCmd = &cobra.Command{
	Use:   "status [scan-id]",
	Short: "Show run state for all scans or one scan",
	Long: `Status lists every known run with its lifecycle state, current stage,
and last update time. With a scan id, only that run is shown. Failed
runs include the failed stage and the error message.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg := loadConfig(cmd)

	store, err := pipeline.NewStore(cfg.Storage.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	var runs []*types.PipelineRun
	if len(args) == 1 {
		run, err := store.GetRun(ctx, args[0])
		if err != nil {
			return err
		}
		if run == nil {
			return fmt.Errorf("no run found for scan %q", args[0])
		}
		runs = append(runs, run)
	} else {
		if runs, err = store.ListRuns(ctx); err != nil {
			return err
		}
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}

	if len(runs) == 0 {
		fmt.Println("No runs found.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-24s  %-12s  %-12s  %-20s  %s\n",
		"Scan", "Status", "Stage", "Updated", "Error")
	for _, run := range runs {
		stage := string(run.Stage)
		errText := ""
		if run.Status == types.StatusStageFailed {
			stage = string(run.FailedStage)
			errText = run.Error
		}
		fmt.Fprintf(os.Stdout, "%-24s  %-12s  %-12s  %-20s  %s\n",
			run.ScanID, run.Status, stage,
			run.UpdatedAt.Local().Format("2006-01-02 15:04:05"), errText)
	}
	fmt.Fprintf(os.Stdout, "\n%d run(s)\n", len(runs))
	return nil
}

func init() {
	statusCmd.Flags().Bool("json", false, "output runs as JSON")
	rootCmd.AddCommand(statusCmd)
}
