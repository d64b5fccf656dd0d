// ABOUTME: CLI command to simulate one generation turn against a prompt
// ABOUTME: Runs the trigger on the transcript, then rewrites the outgoing prompt
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harper/sidekick-pipeline/internal/core"
	"github.com/harper/sidekick-pipeline/internal/models"
)

var (
	assembleDryRun bool
)

// turnRequest is the file format read by the assemble command
type turnRequest struct {
	ConversationID string                 `json:"conversation_id"`
	RunType        string                 `json:"run_type"`
	Capacity       int                    `json:"capacity"`
	Transcript     []models.Message       `json:"transcript"`
	Messages       []models.PromptMessage `json:"messages"`
}

// NewAssembleCmd creates the assemble command
func NewAssembleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assemble <turn.json>",
		Short: "Rewrite an outgoing prompt with stored memory",
		Long: `Simulate one generation turn and print the rewritten prompt.

The turn file holds the conversation transcript and the outgoing prompt:

  {
    "conversation_id": "demo",
    "run_type": "normal",
    "capacity": 8192,
    "transcript": [{"role": "user", "text": "..."}],
    "messages": [{"role": "system", "content": "..."}]
  }

The compaction trigger runs on the transcript first, exactly as a host
would before generation. The prompt is then filtered, memory blocks
are injected, and compacted history is trimmed.`,
		Example: `  sidekick assemble turn.json
  sidekick assemble turn.json --dry-run --format json`,
		Args: cobra.ExactArgs(1),
		RunE: runAssemble,
	}

	cmd.Flags().BoolVar(&assembleDryRun, "dry-run", false, "Report without modifying the prompt")

	return cmd
}

func runAssemble(cmd *cobra.Command, args []string) error {
	var turn turnRequest
	if err := readJSONFile(args[0], cmd.InOrStdin(), &turn); err != nil {
		return err
	}
	if turn.ConversationID == "" {
		turn.ConversationID = "default"
	}
	if turn.Capacity <= 0 {
		turn.Capacity = 8192
	}
	for i := range turn.Transcript {
		turn.Transcript[i].Index = i
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	runType := models.ParseRunType(turn.RunType)
	out := a.pipeline.OnGenerationRequested(cmd.Context(), core.CompactRequest{
		ConversationID: turn.ConversationID,
		Transcript:     turn.Transcript,
		Capacity:       turn.Capacity,
		RunType:        runType,
	})
	if out.Status != "" {
		a.logger.Info(out.Status)
	}

	prompt := &models.Prompt{Messages: turn.Messages}
	report := a.pipeline.OnPromptFinalized(cmd.Context(), core.AssembleRequest{
		ConversationID: turn.ConversationID,
		Prompt:         prompt,
		DryRun:         assembleDryRun,
	})

	w := cmd.OutOrStdout()
	if jsonOutput() {
		return printJSON(w, map[string]any{
			"compaction":       out.Status,
			"skipped":          report.Skipped,
			"messages":         prompt.Messages,
			"slots":            prompt.Slots,
			"removed_lines":    report.RemovedLines,
			"removed_messages": report.RemovedMessages,
			"table_rows":       report.TableRows,
			"vector_hits":      report.VectorHits,
		})
	}

	if report.Skipped != "" {
		fmt.Fprintf(w, "Skipped: %s\n", report.Skipped)
	}
	for _, name := range report.Slots {
		fmt.Fprintf(w, "--- %s ---\n%s\n\n", name, prompt.Slot(name))
	}
	for _, m := range prompt.Messages {
		fmt.Fprintf(w, "[%s] %s\n", m.Role, m.Content)
	}
	if !quiet {
		fmt.Fprintf(w, "\nRemoved %d instruction lines and %d history messages\n", report.RemovedLines, report.RemovedMessages)
	}
	return nil
}
