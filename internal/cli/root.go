package cli

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "engram",
	Short: "Entity memory graph for journaling assistants",
	Long:  "Engram ingests free-form notes, extracts the people, places, and projects they mention, and maintains a living memory graph with supersession, decay, and inference.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(maintainCmd)
}
