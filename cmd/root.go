package cmd

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "relay",
	Short: "Relay - consultation request processing core",
	Long: `Relay schedules and executes chat consultation requests: a priority
message queue with retry handling in front of an intent-driven execution
pipeline.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "relay.yaml", "path to the config file")
}

func Execute() error {
	return rootCmd.Execute()
}
