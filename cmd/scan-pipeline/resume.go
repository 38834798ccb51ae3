// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume [scan-id...]",
	Short: "Resume interrupted or failed runs",
	Long: `Resume continues each named scan at the first stage whose artifact is
missing. A scan that failed is retried from the failed stage; a scan
that completed under the current configuration is left untouched.

Resume and run are the same operation: run skips completed stages by
the same artifact check.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResume,
}

func runResume(cmd *cobra.Command, args []string) error {
	return executeScans(cmd, args)
}

func init() {
	rootCmd.AddCommand(resumeCmd)
}
