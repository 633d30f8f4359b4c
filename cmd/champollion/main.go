// Command champollion runs the establishment synthesis backend.
package main

import (
	"fmt"
	"os"

	"github.com/SocialGouv/champollion-go/pkg/config"
	"github.com/spf13/cobra"
)

var envFile string

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "champollion",
	Short: "Establishment synthesis backend",
	Long: `champollion serves the establishment synthesis: identity, establishment
card, last headcount and public holidays first, then the headcount, contract
nature and job proportion indicators as they become available.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file loaded before reading the environment")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(syntheseCmd)
	rootCmd.AddCommand(tokenCmd)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, fmt.Errorf("configuration: %w", err)
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
