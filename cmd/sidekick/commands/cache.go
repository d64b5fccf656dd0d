// ABOUTME: Summary cache commands for filling, inspecting, and editing entries
// ABOUTME: Entries are two-level summaries keyed by item uid
package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/harper/sidekick-pipeline/internal/core"
	"github.com/harper/sidekick-pipeline/internal/models"
)

// NewCacheCmd creates the cache command group
func NewCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the summary cache",
		Long: `Manage the two-level summary cache.

Each content item is summarized once into a detailed level1 summary
of two or three sentences and a one-sentence level2 summary. Unchanged content is served from the cache;
changed content is summarized again.`,
	}

	cmd.AddCommand(newCacheFillCmd())
	cmd.AddCommand(newCacheStatsCmd())
	cmd.AddCommand(newCacheListCmd())
	cmd.AddCommand(newCacheEditCmd())
	cmd.AddCommand(newCacheDeleteCmd())
	cmd.AddCommand(newCacheClearCmd())

	return cmd
}

func newCacheFillCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fill <items.json>",
		Short: "Summarize items, reusing cached summaries",
		Long: `Summarize a JSON array of {uid, content, tags} items.

Press Ctrl-C to cancel; items already summarized stay cached.`,
		Example: `  sidekick cache fill lore.json`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var items []models.CacheItem
			if err := readJSONFile(args[0], cmd.InOrStdin(), &items); err != nil {
				return err
			}
			for i, item := range items {
				if item.UID == "" {
					return fmt.Errorf("item %d has no uid", i)
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			report := a.pipeline.FillCache(ctx, items)
			if jsonOutput() {
				return printJSON(cmd.OutOrStdout(), report)
			}
			fmt.Fprintln(cmd.OutOrStdout(), report.Status)
			return nil
		},
	}
}

func newCacheStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show hit and miss counts from the last fill",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				stats := a.pipeline.CacheStats()
				w := cmd.OutOrStdout()
				if jsonOutput() {
					return printJSON(w, stats)
				}
				fmt.Fprintf(w, "Entries:     %d\n", stats.Entries)
				fmt.Fprintf(w, "Hits:        %d\n", stats.Hits)
				fmt.Fprintf(w, "Misses:      %d\n", stats.Misses)
				fmt.Fprintf(w, "Last update: %s\n", formatTime(stats.LastUpdate))
				return nil
			})
		},
	}
}

func newCacheListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cached summaries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				entries := a.pipeline.Cache().Entries()
				out := cmd.OutOrStdout()
				if jsonOutput() {
					return printJSON(out, entries)
				}
				if len(entries) == 0 {
					fmt.Fprintln(out, "Cache is empty")
					return nil
				}

				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "UID\tSUMMARY\tEDITED\tUPDATED")
				for _, e := range entries {
					edited := ""
					if e.ManuallyEdited {
						edited = "yes"
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.UID, truncate(e.Level1, 60), edited, formatTime(e.Timestamp))
				}
				return w.Flush()
			})
		},
	}
}

func newCacheEditCmd() *cobra.Command {
	var level1, level2 string

	cmd := &cobra.Command{
		Use:   "edit <uid>",
		Short: "Overwrite the summaries of an entry",
		Long: `Overwrite both summary levels of a cached entry.

Edited entries survive 'cache clear --keep-edited' but are still
replaced when the underlying content changes.`,
		Example: `  sidekick cache edit lore:dragon --level1 "A red dragon." --level2 "An old red dragon guarding the pass."`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if level1 == "" && level2 == "" {
				return fmt.Errorf("at least one of --level1 or --level2 is required")
			}
			return withApp(cmd.Context(), func(a *app) error {
				cache := a.pipeline.Cache()
				for _, e := range cache.Entries() {
					if e.UID != args[0] {
						continue
					}
					if level1 == "" {
						level1 = e.Level1
					}
					if level2 == "" {
						level2 = e.Level2
					}
				}
				if err := cache.Edit(cmd.Context(), args[0], level1, level2); err != nil {
					if errors.Is(err, core.ErrEntryNotFound) {
						return fmt.Errorf("no cached entry with uid %q", args[0])
					}
					return err
				}
				if !quiet {
					fmt.Fprintf(cmd.OutOrStdout(), "Updated %s\n", args[0])
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&level1, "level1", "", "Short summary")
	cmd.Flags().StringVar(&level2, "level2", "", "Detailed summary")

	return cmd
}

func newCacheDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <uid>",
		Short: "Delete one cached entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				if !a.pipeline.Cache().Delete(cmd.Context(), args[0]) {
					return fmt.Errorf("no cached entry with uid %q", args[0])
				}
				if !quiet {
					fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
				}
				return nil
			})
		},
	}
}

func newCacheClearCmd() *cobra.Command {
	var keepEdited bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove cached entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				removed := a.pipeline.Cache().Clear(cmd.Context(), keepEdited)
				if !quiet {
					fmt.Fprintf(cmd.OutOrStdout(), "Removed %d entries\n", removed)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&keepEdited, "keep-edited", false, "Keep manually edited entries")

	return cmd
}

// withApp opens the app, runs fn, and closes it
func withApp(ctx context.Context, fn func(a *app) error) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
