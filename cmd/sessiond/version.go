package main

import (
	"fmt"

	"github.com/mediaforge/sessiond"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of sessiond",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("sessiond version %s\n", sessiond.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
