package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of scan-pipeline",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("scan-pipeline %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
