package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/manifoldco/promptui"
	"github.com/pagesplit/pagesplit/internal/engine"
	"github.com/pagesplit/pagesplit/internal/store"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newWinnerCmd())
}

func newWinnerCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "winner <experiment-id>",
		Short: "Determine the winner of an experiment",
		Long: `Evaluate the stopping criteria for an experiment and, if a variant
qualifies, freeze the experiment with that variant as the winner.

A variant qualifies once it has the minimum number of impressions
(100 by default); among qualifying variants the highest conversion
rate wins. If no variant qualifies the experiment stays active.

Example:
  pagesplit winner 4f7a9c12-...`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			experimentID := args[0]

			return withEngine(func(s *store.SQLiteStore, eng *engine.Engine) error {
				ctx := context.Background()

				exp, err := s.GetExperiment(ctx, experimentID)
				if err != nil {
					if errors.Is(err, store.ErrNotFound) {
						return fmt.Errorf("experiment '%s' not found", experimentID)
					}
					return err
				}
				if exp.Status != store.StatusActive {
					return fmt.Errorf("experiment is not active (current status: %s)", exp.Status)
				}

				if !yes {
					prompt := promptui.Prompt{
						Label:     fmt.Sprintf("Determine winner for page '%s' and freeze the experiment", exp.LandingPageID),
						IsConfirm: true,
					}
					if _, err := prompt.Run(); err != nil {
						fmt.Println("Aborted.")
						return nil
					}
				}

				winner, err := eng.DetermineWinner(ctx, experimentID)
				if err != nil {
					return fmt.Errorf("failed to determine winner: %w", err)
				}

				if winner == nil {
					fmt.Println("No winner yet: no variant has enough impressions.")
					fmt.Println("The experiment stays active.")
					return nil
				}

				fmt.Printf("Winner for page '%s': %s (\"%s\") at %s\n",
					exp.LandingPageID, winner.ID, winner.Content.Title, formatPercent(winner.Rate()))
				fmt.Println("Experiment has been completed.")

				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")

	return cmd
}
