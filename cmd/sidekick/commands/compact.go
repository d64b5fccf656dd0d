// ABOUTME: CLI command to run the compaction trigger on a transcript file
// ABOUTME: Summarizes older history into structured state when the window is full
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harper/sidekick-pipeline/internal/core"
	"github.com/harper/sidekick-pipeline/internal/models"
)

var (
	compactConversation string
	compactCapacity     int
	compactRunType      string
	compactForce        bool
)

// NewCompactCmd creates the compact command
func NewCompactCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compact <transcript.json>",
		Short: "Summarize older transcript history into state",
		Long: `Evaluate a transcript and summarize older history into structured state.

The transcript is a JSON array of messages, each with "text" plus
"role" (user, assistant, system) or the is_user/is_system flags.
Compaction only fires when occupancy reaches the configured threshold
and enough turns have passed since the last run, unless --force is set.`,
		Example: `  sidekick compact chat.json --conversation demo --capacity 8192
  sidekick compact chat.json --conversation demo --force
  cat chat.json | sidekick compact - --conversation demo`,
		Args: cobra.ExactArgs(1),
		RunE: runCompact,
	}

	cmd.Flags().StringVarP(&compactConversation, "conversation", "c", "default", "Conversation identifier")
	cmd.Flags().IntVar(&compactCapacity, "capacity", 8192, "Context window size in tokens")
	cmd.Flags().StringVar(&compactRunType, "run-type", "normal", "Generation type (normal, continue, regenerate, swipe, quiet, impersonate)")
	cmd.Flags().BoolVarP(&compactForce, "force", "f", false, "Summarize regardless of occupancy and cooldown")

	return cmd
}

func runCompact(cmd *cobra.Command, args []string) error {
	if err := validatePositiveInt(compactCapacity, "capacity"); err != nil {
		return err
	}

	var transcript []models.Message
	if err := readJSONFile(args[0], cmd.InOrStdin(), &transcript); err != nil {
		return err
	}
	for i := range transcript {
		transcript[i].Index = i
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	req := core.CompactRequest{
		ConversationID: compactConversation,
		Transcript:     transcript,
		Capacity:       compactCapacity,
		RunType:        models.ParseRunType(compactRunType),
	}

	var out core.CompactOutcome
	if compactForce {
		out = a.pipeline.ForceCompact(cmd.Context(), req)
	} else {
		out = a.pipeline.OnGenerationRequested(cmd.Context(), req)
	}

	w := cmd.OutOrStdout()
	if jsonOutput() {
		result := map[string]any{
			"fired":  out.Fired,
			"status": out.Status,
		}
		if out.State != nil {
			result["issues"] = out.State.Issues
			result["digest"] = out.State.Digest
			result["last_compacted_turn"] = out.State.LastCompactedTurn
		}
		return printJSON(w, result)
	}

	if out.Status != "" && !quiet {
		fmt.Fprintln(w, out.Status)
	}
	if out.State != nil && verbose {
		fmt.Fprintln(w)
		fmt.Fprintln(w, out.State.Digest)
	}
	return nil
}
