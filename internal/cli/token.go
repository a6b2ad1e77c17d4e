package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pagesplit/pagesplit/internal/config"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Show dashboard URL with access token",
	Long: `Show the dashboard URL with your access token.

Use this when you've scrolled past the startup message or need to
share the dashboard link.

Example:
  pagesplit token`,
	RunE: runToken,
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	tokenFile := getTokenFilePath()

	data, err := os.ReadFile(tokenFile)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no server running. Start with: pagesplit serve")
		}
		return fmt.Errorf("failed to read token file: %w", err)
	}

	token := string(data)
	if token == "" {
		return fmt.Errorf("token file is empty. Restart the server with: pagesplit serve")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	fmt.Printf("Dashboard: http://localhost:%d/dashboard?token=%s\n", cfg.Port, token)
	fmt.Println()
	fmt.Println("Tip: Bookmark this URL or run 'pagesplit token' anytime.")
	return nil
}

// getTokenFilePath returns the path to the token file, stored alongside
// the database.
func getTokenFilePath() string {
	dir := filepath.Dir(dbPath)
	return filepath.Join(dir, ".pagesplit-token")
}
