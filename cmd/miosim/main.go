package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string

	rootCmd = &cobra.Command{
		Use:   "miosim",
		Short: "Run the mios kernel on a hosted machine",
		Long:  "miosim boots the mios scheduler on goroutine-backed contexts, runs demo workloads and traces every scheduling decision.",
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yml", "YAML configuration file, defaults apply when missing")
	rootCmd.AddCommand(runCmd, configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
