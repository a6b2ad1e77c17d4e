// Package config loads pagesplit configuration from an optional TOML
// file, with environment variables taking precedence over file values.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"
)

const (
	DefaultDBPath = "./pagesplit.db"
	DefaultPort   = 8080
)

type Config struct {
	DBPath string `toml:"db_path"`
	Port   int    `toml:"port"`
	Engine Engine `toml:"engine"`
}

// Engine carries the allocation policy thresholds. They encode business
// risk tolerance, so operators can tune them per deployment.
type Engine struct {
	ColdStartConversions int64 `toml:"cold_start_conversions"`
	MinWinnerImpressions int64 `toml:"min_winner_impressions"`
}

func Default() Config {
	return Config{
		DBPath: DefaultDBPath,
		Port:   DefaultPort,
		Engine: Engine{
			ColdStartConversions: 10,
			MinWinnerImpressions: 100,
		},
	}
}

// Load reads the config file at path, falling back to defaults when path
// is empty or the file does not exist. PAGESPLIT_DB_PATH and
// PAGESPLIT_PORT override file values.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if v := os.Getenv("PAGESPLIT_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("PAGESPLIT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}

	// Zero or negative thresholds would disable the gates entirely;
	// treat them as unset.
	if cfg.Engine.ColdStartConversions <= 0 {
		cfg.Engine.ColdStartConversions = 10
	}
	if cfg.Engine.MinWinnerImpressions <= 0 {
		cfg.Engine.MinWinnerImpressions = 100
	}

	return cfg, nil
}
