package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sessiond",
	Short: "sessiond coordinates asset-generation workflow sessions",
	Long: `sessiond is the session coordination service for the asset-generation
pipeline. It owns one mutable session per (user, thread) pair, guards every
mutation with a distributed lock, and reaps idle sessions.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")
}
