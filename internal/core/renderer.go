// ABOUTME: Renders extracted state into the memory block injected into prompts
// ABOUTME: Sections are omitted when empty and capped to fixed sizes
package core

import (
	"strings"

	"github.com/harper/sidekick-pipeline/internal/models"
)

const (
	memoryHeader = "[Pipeline Memory v1]"
	writerRules  = "Writer rules: Use this memory as authoritative facts/state. Do not invent inventory/stat changes; reflect only what is in state unless the user explicitly changes it in their message."

	maxPlotBeats = 18
	maxInventory = 40
	maxStatus    = 20
	maxQuests    = 10
	maxOpenLoops = 12
)

// RenderState formats state as prompt text. Nil state renders as empty.
func RenderState(st *models.ExtractedState) string {
	if st == nil {
		return ""
	}

	lines := []string{memoryHeader}

	if len(st.RollingSummary) > 0 {
		lines = append(lines, "Plot beats:")
		for _, s := range head(st.RollingSummary, maxPlotBeats) {
			lines = append(lines, "- "+s)
		}
	}

	facts := st.FactsState
	if len(facts.Inventory) > 0 {
		lines = append(lines, "Inventory: "+strings.Join(head(facts.Inventory, maxInventory), ", "))
	}

	if len(facts.Status) > 0 {
		status := facts.Status
		if len(status) > maxStatus {
			status = status[:maxStatus]
		}
		pairs := make([]string, len(status))
		for i, e := range status {
			pairs[i] = e.Key + ": " + e.Value
		}
		lines = append(lines, "Status: "+strings.Join(pairs, " | "))
	}

	if len(facts.Quests) > 0 {
		lines = append(lines, "Quests:")
		quests := facts.Quests
		if len(quests) > maxQuests {
			quests = quests[:maxQuests]
		}
		for _, q := range quests {
			name := q.Name
			if name == "" {
				name = "Quest"
			}
			line := "- " + name + ": " + q.Stage
			if q.NextStep != "" {
				line += " (next: " + q.NextStep + ")"
			}
			lines = append(lines, line)
		}
	}

	if len(st.OpenLoops) > 0 {
		lines = append(lines, "Open loops:")
		for _, o := range head(st.OpenLoops, maxOpenLoops) {
			lines = append(lines, "- "+o)
		}
	}

	lines = append(lines, writerRules)
	return strings.Join(lines, "\n")
}

func head(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}
