// ABOUTME: Table memory commands for managing structured rows
// ABOUTME: Rows are ranked for relevance and injected into prompts
package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/harper/sidekick-pipeline/internal/models"
)

// NewTableCmd creates the table command group
func NewTableCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "table",
		Short: "Manage table memory rows",
		Long: `Manage table memory rows.

Rows are short facts grouped by collection (a character sheet, a
location list, a rules table). When table memory is enabled the rows
most relevant to the latest user message are injected into the prompt.`,
	}

	cmd.AddCommand(newTableAddCmd())
	cmd.AddCommand(newTableListCmd())
	cmd.AddCommand(newTableRemoveCmd())

	return cmd
}

func newTableAddCmd() *cobra.Command {
	var group string

	cmd := &cobra.Command{
		Use:   "add <collection> <key> <text>",
		Short: "Add or replace a row",
		Example: `  sidekick table add characters mira "Mira is a cartographer who fears deep water"
  sidekick table add places cave "The cave floods at high tide" --group Coast`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				row := models.Candidate{
					Collection: args[0],
					Key:        args[1],
					Group:      group,
					Text:       args[2],
				}
				if err := a.rows.Put(cmd.Context(), row); err != nil {
					return fmt.Errorf("failed to save row: %w", err)
				}
				if !quiet {
					fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", row.Identity())
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&group, "group", "", "Heading the row is listed under (default: collection)")

	return cmd
}

func newTableListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				rows, err := a.rows.Rows(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to list rows: %w", err)
				}
				out := cmd.OutOrStdout()
				if jsonOutput() {
					return printJSON(out, rows)
				}
				if len(rows) == 0 {
					fmt.Fprintln(out, "No rows found")
					return nil
				}

				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "COLLECTION\tKEY\tGROUP\tTEXT")
				for _, r := range rows {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Collection, r.Key, r.Group, truncate(r.Text, 60))
				}
				return w.Flush()
			})
		},
	}
}

func newTableRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <collection> <key>",
		Short: "Remove a row",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				if err := a.rows.Delete(cmd.Context(), args[0], args[1]); err != nil {
					return fmt.Errorf("failed to remove row: %w", err)
				}
				if !quiet {
					fmt.Fprintf(cmd.OutOrStdout(), "Removed %s/%s\n", args[0], args[1])
				}
				return nil
			})
		},
	}
}
