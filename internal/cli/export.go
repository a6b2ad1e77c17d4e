package cli

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/pagesplit/pagesplit/internal/store"
	"github.com/spf13/cobra"
)

var exportFormat string

var exportCmd = &cobra.Command{
	Use:   "export <experiment-id>",
	Short: "Export per-variant counter data",
	Long: `Export per-variant impression and conversion counters in CSV or JSON.

Examples:
  pagesplit export 4f7a9c12-... --format csv > experiment.csv
  pagesplit export 4f7a9c12-... --format json > experiment.json`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "output format (csv or json)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	experimentID := args[0]

	if exportFormat != "csv" && exportFormat != "json" {
		return fmt.Errorf("invalid format: must be 'csv' or 'json'")
	}

	return withStore(func(s *store.SQLiteStore) error {
		exp, err := s.GetExperiment(context.Background(), experimentID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("experiment '%s' not found", experimentID)
			}
			return fmt.Errorf("failed to get experiment: %w", err)
		}

		if exportFormat == "csv" {
			return exportCSV(exp)
		}
		return exportJSON(exp)
	})
}

func exportCSV(exp *store.Experiment) error {
	w := csv.NewWriter(os.Stdout)
	defer w.Flush()

	if err := w.Write([]string{"variant_id", "title", "impressions", "conversions", "conversion_rate"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i := range exp.Variants {
		v := &exp.Variants[i]
		row := []string{
			v.ID,
			v.Content.Title,
			strconv.FormatInt(v.Impressions, 10),
			strconv.FormatInt(v.Conversions, 10),
			strconv.FormatFloat(v.Rate(), 'f', 6, 64),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	return nil
}

func exportJSON(exp *store.Experiment) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(exp)
}
