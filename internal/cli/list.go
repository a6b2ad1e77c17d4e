package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/pagesplit/pagesplit/internal/store"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all experiments",
	Long:  `List all experiments with their status and traffic totals.`,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	return withStore(func(s *store.SQLiteStore) error {
		ctx := context.Background()

		experiments, err := s.ListExperiments(ctx)
		if err != nil {
			return fmt.Errorf("failed to list experiments: %w", err)
		}

		if len(experiments) == 0 {
			fmt.Println("No experiments yet.")
			fmt.Println()
			fmt.Println("Create one with: pagesplit create <landing-page-id> --titles \"A,B\"")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tPAGE\tSTATUS\tVARIANTS\tIMPRESSIONS\tCONVERSIONS\tSTARTED")

		for _, exp := range experiments {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
				shortID(exp.ID),
				exp.LandingPageID,
				strings.ToUpper(string(exp.Status)),
				len(exp.Variants),
				exp.TotalImpressions(),
				exp.TotalConversions(),
				exp.StartDate.Format("2006-01-02"),
			)
		}

		w.Flush()
		return nil
	})
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
