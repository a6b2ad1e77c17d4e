package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/pagesplit/pagesplit/internal/store"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newCreateCmd())
}

func newCreateCmd() *cobra.Command {
	var (
		variantsFile string
		titles       string
	)

	cmd := &cobra.Command{
		Use:   "create <landing-page-id>",
		Short: "Create a new experiment for a landing page",
		Long: `Create a new experiment with two or more content variants.
The first variant is by convention the existing (control) content.

Variants come from a JSON file (an array of content payloads) or from
the --titles shorthand, which builds title-only payloads.

Examples:
  pagesplit create lp_42 --file variants.json
  pagesplit create lp_42 --titles "Ship Faster,Build Better"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			landingPageID := args[0]

			contents, err := loadVariantContents(variantsFile, titles)
			if err != nil {
				return err
			}

			return withStore(func(s *store.SQLiteStore) error {
				exp, err := s.CreateExperiment(context.Background(), landingPageID, contents)
				if err != nil {
					return fmt.Errorf("failed to create experiment: %w", err)
				}

				fmt.Printf("Created experiment %s for page '%s' with %d variants:\n",
					exp.ID, exp.LandingPageID, len(exp.Variants))
				for i, v := range exp.Variants {
					label := ""
					if i == 0 {
						label = " (control)"
					}
					fmt.Printf("  %s%s: %s\n", v.ID, label, v.Content.Title)
				}

				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&variantsFile, "file", "f", "", "JSON file with an array of content payloads")
	cmd.Flags().StringVarP(&titles, "titles", "t", "", "comma-separated variant titles (shorthand)")

	return cmd
}

func loadVariantContents(variantsFile, titles string) ([]store.ContentPayload, error) {
	if variantsFile != "" && titles != "" {
		return nil, fmt.Errorf("use --file OR --titles, not both")
	}

	if variantsFile != "" {
		data, err := os.ReadFile(variantsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read variants file: %w", err)
		}
		var contents []store.ContentPayload
		if err := json.Unmarshal(data, &contents); err != nil {
			return nil, fmt.Errorf("failed to parse variants file: %w", err)
		}
		return contents, nil
	}

	if titles == "" {
		return nil, fmt.Errorf("variants required. Use --file variants.json or --titles \"A,B\"")
	}

	parts := strings.Split(titles, ",")
	contents := make([]store.ContentPayload, 0, len(parts))
	for _, p := range parts {
		contents = append(contents, store.ContentPayload{Title: strings.TrimSpace(p)})
	}
	if len(contents) < 2 {
		return nil, fmt.Errorf("need at least 2 variants. Example: --titles \"A,B\"")
	}

	return contents, nil
}
