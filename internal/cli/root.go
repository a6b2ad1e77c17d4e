package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	dbPath     string
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "pagesplit",
	Short: "pagesplit - A/B experiment allocation and scoring for landing pages",
	Long: `pagesplit assigns landing-page visitors to content variants, tracks
impressions and conversions, and determines winners once a variant has
enough data. Single Go binary, embedded SQLite.

Running without a subcommand starts the server (same as 'pagesplit serve').`,
	RunE: runServe, // Default action is to start the server
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", getEnvOrDefault("PAGESPLIT_DB_PATH", "./pagesplit.db"), "database path")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "./pagesplit.toml", "config file path")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
