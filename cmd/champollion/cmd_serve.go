package main

import (
	"log"

	"github.com/SocialGouv/champollion-go/internal/application/startup"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := startup.Initialize(cfg); err != nil {
			return err
		}
		log.Println("Application has shut down gracefully.")
		return nil
	},
}
