// ABOUTME: Splits a transcript into messages to summarize and a preserved tail
// ABOUTME: Serializes the summarize set into index-tagged chunk lines
package core

import (
	"fmt"
	"strings"

	"github.com/harper/sidekick-pipeline/internal/models"
)

const (
	// DefaultPreserveLast is used when no preserve count is configured
	DefaultPreserveLast = 8
	minPreserveLast     = 2
	maxPreserveLast     = 50

	// surplusMessages is how many messages beyond the preserved tail must exist
	surplusMessages = 2
)

// ClampPreserve bounds the preserved tail to [2,50]. Zero or negative means the default.
func ClampPreserve(n int) int {
	if n <= 0 {
		n = DefaultPreserveLast
	}
	if n < minPreserveLast {
		return minPreserveLast
	}
	if n > maxPreserveLast {
		return maxPreserveLast
	}
	return n
}

// Selection holds transcript indices split into summarize and preserve sets
type Selection struct {
	Summarize      []int
	Preserve       []int
	PreserveCount  int
	NonSystemCount int
}

// CanSummarize reports whether there is enough surplus history to compact
func (s Selection) CanSummarize() bool {
	return len(s.Summarize) > 0 && s.NonSystemCount > s.PreserveCount+surplusMessages
}

// SelectChunks indexes non-system messages with text and splits off the last preserveLast of them
func SelectChunks(transcript []models.Message, preserveLast int) Selection {
	preserveCount := ClampPreserve(preserveLast)

	var nonSystem []int
	for i, m := range transcript {
		if m.Text == "" || m.IsSystemMessage() {
			continue
		}
		nonSystem = append(nonSystem, i)
	}

	sel := Selection{
		PreserveCount:  preserveCount,
		NonSystemCount: len(nonSystem),
	}
	cutoff := len(nonSystem) - preserveCount
	if cutoff < 0 {
		cutoff = 0
	}
	sel.Preserve = nonSystem[cutoff:]
	if len(nonSystem) > preserveCount+surplusMessages {
		sel.Summarize = nonSystem[:cutoff]
	}
	return sel
}

// BuildChunkText renders the summarize set as "[index] (role:name) text" lines
func BuildChunkText(transcript []models.Message, sel Selection) string {
	rows := make([]string, 0, len(sel.Summarize))
	for _, i := range sel.Summarize {
		if i < 0 || i >= len(transcript) {
			continue
		}
		m := transcript[i]
		if m.IsSystemMessage() {
			continue
		}
		content := strings.TrimSpace(m.Text)
		if content == "" {
			continue
		}

		role := "assistant"
		if m.IsUserMessage() {
			role = "user"
		}
		tag := role
		if name := strings.Join(strings.Fields(m.Name), " "); name != "" {
			tag = role + ":" + name
		}
		rows = append(rows, fmt.Sprintf("[%d] (%s) %s", i, tag, content))
	}
	return strings.Join(rows, "\n")
}

// nonSystemText joins the text of every non-system message for token counting
func nonSystemText(transcript []models.Message) string {
	parts := make([]string, 0, len(transcript))
	for _, m := range transcript {
		if m.Text == "" || m.IsSystemMessage() {
			continue
		}
		parts = append(parts, m.Text)
	}
	return strings.Join(parts, "\n")
}
