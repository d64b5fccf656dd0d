// ABOUTME: Similarity context commands for the local vector index
// ABOUTME: Indexed passages are injected when vector context is enabled
package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harper/sidekick-pipeline/internal/util"
)

var errNoIndex = errors.New("similarity search needs OPENAI_API_KEY for embeddings")

// NewContextCmd creates the context command group
func NewContextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Manage passages for similarity context",
		Long: `Manage passages in the local similarity index.

Passages are embedded and stored in SQLite. When vector context is
enabled, passages similar to the latest user message are injected
into the prompt.`,
	}

	cmd.AddCommand(newContextAddCmd())
	cmd.AddCommand(newContextSearchCmd())
	cmd.AddCommand(newContextCollectionsCmd())

	return cmd
}

func newContextAddCmd() *cobra.Command {
	var collection string

	cmd := &cobra.Command{
		Use:     "add <text>",
		Short:   "Embed and index a passage",
		Example: `  sidekick context add "The northern pass closes in winter."`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				if a.index == nil {
					return errNoIndex
				}
				if collection == "" {
					collection = a.pipeline.Settings().Vector.Collection
				}
				hash := util.ContentHash(args[0])
				if err := a.index.Insert(cmd.Context(), collection, args[0], hash, nil, ""); err != nil {
					return fmt.Errorf("failed to index passage: %w", err)
				}
				if !quiet {
					fmt.Fprintf(cmd.OutOrStdout(), "Indexed into %s\n", collection)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&collection, "collection", "", "Collection name (default: configured vector collection)")

	return cmd
}

func newContextSearchCmd() *cobra.Command {
	var (
		collection string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search indexed passages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validatePositiveInt(limit, "limit"); err != nil {
				return err
			}
			return withApp(cmd.Context(), func(a *app) error {
				if a.index == nil {
					return errNoIndex
				}
				cfg := a.pipeline.Settings().Vector
				if collection == "" {
					collection = cfg.Collection
				}
				hits, err := a.index.Query(cmd.Context(), collection, args[0], limit, cfg.Threshold, "")
				if err != nil {
					return fmt.Errorf("search failed: %w", err)
				}

				w := cmd.OutOrStdout()
				if jsonOutput() {
					return printJSON(w, hits)
				}
				if len(hits) == 0 {
					fmt.Fprintln(w, "No matches found")
					return nil
				}
				for i, h := range hits {
					fmt.Fprintf(w, "%d. [%.2f] %s\n", i+1, h.Score, truncate(h.Text, 100))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&collection, "collection", "", "Collection name (default: configured vector collection)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 5, "Maximum number of results")

	return cmd
}

func newContextCollectionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "collections",
		Short: "List indexed collections",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				if a.index == nil {
					return errNoIndex
				}
				names, err := a.index.ListCollections(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to list collections: %w", err)
				}
				w := cmd.OutOrStdout()
				if jsonOutput() {
					return printJSON(w, names)
				}
				for _, n := range names {
					fmt.Fprintln(w, n)
				}
				return nil
			})
		},
	}
}
