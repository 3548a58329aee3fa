package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oakbyte/labpanel/internal/version"
)

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the labpanel version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Version)
	},
}
