package cli

import (
	"fmt"

	"github.com/pagesplit/pagesplit/internal/config"
	"github.com/pagesplit/pagesplit/internal/engine"
	"github.com/pagesplit/pagesplit/internal/store"
)

// withStore opens the database, executes the function, and handles cleanup.
func withStore(fn func(*store.SQLiteStore) error) error {
	s, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	return fn(s)
}

// withEngine additionally builds an engine with thresholds from config.
func withEngine(fn func(*store.SQLiteStore, *engine.Engine) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	return withStore(func(s *store.SQLiteStore) error {
		eng := engine.New(s, engine.Config{
			ColdStartConversions: cfg.Engine.ColdStartConversions,
			MinWinnerImpressions: cfg.Engine.MinWinnerImpressions,
		})
		return fn(s, eng)
	})
}

func formatPercent(rate float64) string {
	if rate == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.2f%%", rate*100)
}
