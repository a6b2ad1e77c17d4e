package cli

import (
	"fmt"
	"path/filepath"

	"github.com/pagesplit/pagesplit/internal/config"
	"github.com/pagesplit/pagesplit/internal/engine"
	"github.com/pagesplit/pagesplit/internal/server"
	"github.com/pagesplit/pagesplit/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	port    int
	verbose bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the pagesplit HTTP server.

The server provides:
  - Assignment and conversion endpoints for the page-render path
  - Admin JSON API for experiment management
  - Token-protected dashboard
  - Health check endpoint

Example:
  pagesplit serve --port 8080`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides config)")
	serveCmd.Flags().BoolVar(&verbose, "verbose", false, "debug-level logging")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if port != 0 {
		cfg.Port = port
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}

	logCfg := zap.NewProductionConfig()
	if verbose {
		logCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	logger, err := logCfg.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()

	s, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	eng := engine.New(s, engine.Config{
		ColdStartConversions: cfg.Engine.ColdStartConversions,
		MinWinnerImpressions: cfg.Engine.MinWinnerImpressions,
	}, engine.WithLogger(logger))

	tokenFile := filepath.Join(filepath.Dir(cfg.DBPath), ".pagesplit-token")

	srv := server.New(s, eng, cfg.Port, tokenFile, logger)

	fmt.Println()
	fmt.Printf("pagesplit running on http://localhost:%d\n", cfg.Port)
	fmt.Printf("Dashboard: http://localhost:%d/dashboard?token=%s\n", cfg.Port, srv.Token())
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop")

	return srv.Start()
}
