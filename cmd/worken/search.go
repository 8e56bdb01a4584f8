package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Noctocode/worken-ai/internal/apperr"
	"github.com/Noctocode/worken-ai/internal/vectorstore"
)

var (
	searchProject string
	searchQuery   string
	searchK       int
)

func init() {
	searchCmd.Flags().StringVar(&searchProject, "project", "", "project id (required)")
	searchCmd.Flags().StringVarP(&searchQuery, "query", "q", "", "search query (required)")
	searchCmd.Flags().IntVarP(&searchK, "k", "k", vectorstore.DefaultK, "number of chunks to return")
	_ = searchCmd.MarkFlagRequired("project")
	_ = searchCmd.MarkFlagRequired("query")
	rootCmd.AddCommand(searchCmd)
}

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search a project's knowledge",
	Long: `Print the chunks of a project most similar to a query.

Results are ordered by cosine similarity, highest first.

Examples:
  worken search --project 6f1c... --query "refund window"
  worken search --project 6f1c... -q "onboarding" -k 10`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := bootstrap(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()
		d, err := a.services(ctx)
		if err != nil {
			return err
		}

		results, err := d.documents.Search(ctx, searchProject, searchQuery, searchK)
		if err != nil {
			return fmt.Errorf("%s", apperr.MessageOf(err))
		}

		out := cmd.OutOrStdout()
		if len(results) == 0 {
			fmt.Fprintln(out, "No documents found")
			return nil
		}
		for i, r := range results {
			fmt.Fprintf(out, "%d. [%.4f] %s\n", i+1, r.Similarity, r.Title)
			fmt.Fprintf(out, "   %s\n", preview(r.Content, 200))
		}
		return nil
	},
}

// preview flattens whitespace and truncates to n runes.
func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
