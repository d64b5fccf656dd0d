// ABOUTME: CLI command to show the stored compaction state of a conversation
// ABOUTME: Prints the rendered memory block and any extraction issues
package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewStateCmd creates the state command
func NewStateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state [conversation]",
		Short: "Show the last extracted state",
		Long: `Show the last extracted state for a conversation.

Prints the memory block injected into prompts, the turn at which
compaction last ran, and any issues found while parsing the summary.`,
		Example: `  sidekick state demo
  sidekick state demo --format json`,
		Args: cobra.MaximumNArgs(1),
		RunE: runState,
	}

	return cmd
}

func runState(cmd *cobra.Command, args []string) error {
	conversationID := "default"
	if len(args) == 1 {
		conversationID = args[0]
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.pipeline.State(cmd.Context(), conversationID)
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}

	w := cmd.OutOrStdout()
	if jsonOutput() {
		return printJSON(w, st)
	}
	if st == nil {
		fmt.Fprintln(w, "(no state yet)")
		return nil
	}

	fmt.Fprintf(w, "Conversation: %s\n", conversationID)
	fmt.Fprintf(w, "Updated:      %s\n", formatTime(st.UpdatedAt))
	fmt.Fprintf(w, "Compacted at: turn %d (%.0f%% occupancy)\n", st.LastCompactedTurn, st.LastOccupancy*100)
	fmt.Fprintln(w)
	fmt.Fprintln(w, st.Digest)
	if len(st.Issues) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Issues:")
		for _, issue := range st.Issues {
			fmt.Fprintf(w, "  - %s\n", issue)
		}
	}
	return nil
}
