package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pagesplit/pagesplit/internal/engine"
	"github.com/pagesplit/pagesplit/internal/stats"
	"github.com/pagesplit/pagesplit/internal/store"
	"github.com/spf13/cobra"
)

var resultsCmd = &cobra.Command{
	Use:   "results <experiment-id>",
	Short: "Show detailed results for an experiment",
	Long:  `Show per-variant impressions, conversions, conversion rates and confidence intervals.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runResults,
}

func init() {
	rootCmd.AddCommand(resultsCmd)
}

func runResults(cmd *cobra.Command, args []string) error {
	experimentID := args[0]

	return withEngine(func(s *store.SQLiteStore, eng *engine.Engine) error {
		exp, err := eng.GetResults(context.Background(), experimentID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("experiment '%s' not found", experimentID)
			}
			return fmt.Errorf("failed to get results: %w", err)
		}

		result := stats.Analyze(exp)

		fmt.Printf("EXPERIMENT: %s\n", exp.ID)
		fmt.Printf("PAGE: %s\n", exp.LandingPageID)
		fmt.Printf("STATUS: %s\n", exp.Status)
		if exp.WinningVariantID != "" {
			fmt.Printf("WINNER: %s\n", exp.WinningVariantID)
		}
		fmt.Printf("STARTED: %s\n", exp.StartDate.Format("2006-01-02"))
		if exp.EndDate != nil {
			fmt.Printf("ENDED: %s\n", exp.EndDate.Format("2006-01-02"))
		}
		fmt.Println()

		fmt.Println("VARIANT      TITLE             IMPRESSIONS  CONVERSIONS  RATE     95% CI")
		fmt.Println(strings.Repeat("─", 78))

		for _, v := range result.Variants {
			indicator := ""
			if v.Ordinal == result.LeadingVariant && exp.Status == store.StatusActive {
				indicator = " ← LEADING"
			}
			if v.VariantID == exp.WinningVariantID {
				indicator = " ← WINNER"
			}

			ciStr := fmt.Sprintf("[%.1f%%, %.1f%%]", v.CILower*100, v.CIUpper*100)
			if v.Impressions == 0 {
				ciStr = "N/A"
			}

			title := v.Title
			if len(title) > 16 {
				title = title[:13] + "..."
			}

			fmt.Printf("%-11s  %-16s  %-11d  %-11d  %-7s  %s%s\n",
				v.VariantID,
				title,
				v.Impressions,
				v.Conversions,
				formatPercent(v.Rate),
				ciStr,
				indicator,
			)
		}

		fmt.Println()

		if exp.Status == store.StatusActive && len(result.Variants) > 1 {
			leadingTitle := result.Variants[result.LeadingVariant].Title
			confPct := result.ConfidenceLevel * 100

			if result.Confident {
				fmt.Printf("Statistical significance: %.1f%% confident \"%s\" is the winner\n", confPct, leadingTitle)
			} else if confPct >= 90 {
				fmt.Printf("Statistical significance: %.1f%% confident \"%s\" beats control (not yet significant)\n", confPct, leadingTitle)
			} else {
				fmt.Println("Statistical significance: Not enough data to determine a winner")
			}
		}

		return nil
	})
}
