// Command mealkitd serves the attendance engine and runs its maintenance
// tasks.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/PaulFidika/mealkit/config"
)

const programName = "mealkitd"

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:          programName,
		Short:        "Hostel dining attendance verification engine",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().
		StringVar(&configFile, "config", os.Getenv("MEALKIT_CONFIG"), "path to YAML config file")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cmd.SetContext(config.WithContext(cmd.Context(), cfg))
		return nil
	}

	rootCmd.AddCommand(serveCommand())
	rootCmd.AddCommand(migrateCommand())
	rootCmd.AddCommand(issueBeaconCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
