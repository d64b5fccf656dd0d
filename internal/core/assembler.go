// ABOUTME: Rewrites the outgoing prompt just before generation
// ABOUTME: Filters chores, injects memory blocks, and trims compacted history
package core

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/harper/sidekick-pipeline/internal/config"
	"github.com/harper/sidekick-pipeline/internal/models"
)

// Prompt slots written by the assembler
const (
	SlotMemory        = "memory"
	SlotTableMemory   = "table_memory"
	SlotVectorContext = "vector_context"
)

// AssembleRequest is one prompt-finalized event
type AssembleRequest struct {
	ConversationID string
	Prompt         *models.Prompt
	DryRun         bool
}

// AssembleReport describes what changed in the prompt
type AssembleReport struct {
	Skipped         string
	RemovedLines    int
	TableRows       int
	VectorHits      int
	RemovedMessages int
	Slots           []string
}

// Assembler applies the prompt stages in a fixed order
type Assembler struct {
	meta      *MetadataStore
	sessions  *Sessions
	relevance *RelevanceFilter
	tables    TableMemory
	tablesCap *Capability
	sim       Similarity
	simCap    *Capability
	logger    Logger
}

// NewAssembler creates an Assembler. Nil collaborators disable their stages.
func NewAssembler(meta *MetadataStore, sessions *Sessions, relevance *RelevanceFilter, tables TableMemory, tablesCap *Capability, sim Similarity, simCap *Capability, logger Logger) *Assembler {
	return &Assembler{
		meta:      meta,
		sessions:  sessions,
		relevance: relevance,
		tables:    tables,
		tablesCap: tablesCap,
		sim:       sim,
		simCap:    simCap,
		logger:    orNoop(logger),
	}
}

// Assemble rewrites req.Prompt in place
func (a *Assembler) Assemble(ctx context.Context, req AssembleRequest, cfg config.Settings) AssembleReport {
	var report AssembleReport
	if !cfg.Enabled {
		report.Skipped = "disabled"
		return report
	}
	run, ok := a.sessions.LastRun(req.ConversationID)
	if !ok || !run.RunType.Eligible() {
		report.Skipped = "no eligible run"
		return report
	}
	if req.DryRun {
		report.Skipped = "dry run"
		return report
	}
	if req.Prompt == nil {
		report.Skipped = "no prompt"
		return report
	}
	p := req.Prompt

	state, err := a.meta.Load(ctx, req.ConversationID)
	if err != nil {
		a.logger.Warn("could not load compaction state", "conversation", req.ConversationID, "error", err)
	}
	if state != nil {
		p.SetSlot(SlotMemory, state.Digest)
		report.Slots = append(report.Slots, SlotMemory)
	}

	if cfg.FilterOperationalInstructions {
		report.RemovedLines = FilterInstructions(p.Messages, CompilePatterns(cfg.InstructionFilterPatterns))
	}

	query, _ := p.LatestUserMessage()

	if cfg.TableMemory.Enabled && a.tables != nil && a.tablesCap.Available(ctx) {
		report.TableRows = a.injectTables(ctx, p, query, cfg)
		report.Slots = append(report.Slots, SlotTableMemory)
	}

	if cfg.Vector.Enabled && a.sim != nil && a.simCap.Available(ctx) {
		report.VectorHits = a.injectSimilar(ctx, p, query, cfg)
		report.Slots = append(report.Slots, SlotVectorContext)
	}

	if cfg.ReduceHistory && state != nil && state.State != nil &&
		state.LastMessageHash != "" && state.LastMessageHash == run.LastMessageHash {
		keep := state.PreserveCount
		if keep <= 0 {
			keep = cfg.PreserveLastMessages
		}
		report.RemovedMessages = ReduceHistory(p, keep)
	}

	if cfg.Debug && (report.RemovedLines > 0 || report.RemovedMessages > 0) {
		a.logger.Debug("prompt assembled",
			"conversation", req.ConversationID,
			"filtered_lines", report.RemovedLines,
			"removed_messages", report.RemovedMessages,
		)
	}
	return report
}

func (a *Assembler) injectTables(ctx context.Context, p *models.Prompt, query string, cfg config.Settings) int {
	rows, err := a.tables.Rows(ctx)
	if err != nil {
		a.logger.Warn("table memory unavailable", "error", err)
		p.SetSlot(SlotTableMemory, "")
		return 0
	}

	res := a.relevance.Rank(ctx, RankRequest{
		Candidates:      rows,
		Query:           query,
		Limit:           cfg.TableMemory.MaxRows,
		Mode:            cfg.Relevance.Mode,
		Threshold:       cfg.Relevance.Threshold,
		EmbeddingSource: cfg.Vector.EmbeddingSource,
	})
	if res.Outcome != Selected {
		p.SetSlot(SlotTableMemory, "")
		return 0
	}
	p.SetSlot(SlotTableMemory, RenderTableRows(res.Items))
	return len(res.Items)
}

func (a *Assembler) injectSimilar(ctx context.Context, p *models.Prompt, query string, cfg config.Settings) int {
	if strings.TrimSpace(query) == "" {
		p.SetSlot(SlotVectorContext, "")
		return 0
	}
	hits, err := a.sim.Query(ctx, cfg.Vector.Collection, query, cfg.Vector.TopK, cfg.Vector.Threshold, cfg.Vector.EmbeddingSource)
	if err != nil {
		a.logger.Warn("similarity query failed", "collection", cfg.Vector.Collection, "error", err)
		p.SetSlot(SlotVectorContext, "")
		return 0
	}
	if len(hits) > cfg.Vector.TopK {
		hits = hits[:cfg.Vector.TopK]
	}
	p.SetSlot(SlotVectorContext, RenderSimilar(hits))
	return len(hits)
}

// RenderTableRows groups rows by owner in first-seen order
func RenderTableRows(rows []models.Candidate) string {
	if len(rows) == 0 {
		return ""
	}
	var order []string
	groups := make(map[string][]string)
	for _, r := range rows {
		owner := r.Owner()
		if _, ok := groups[owner]; !ok {
			order = append(order, owner)
		}
		groups[owner] = append(groups[owner], strings.TrimSpace(r.Text))
	}

	var b strings.Builder
	b.WriteString("[Table Memory]")
	for _, owner := range order {
		fmt.Fprintf(&b, "\n## %s", owner)
		for _, text := range groups[owner] {
			b.WriteString("\n- " + text)
		}
	}
	return b.String()
}

// RenderSimilar renders similarity hits as a bulleted digest
func RenderSimilar(hits []models.SimilarityHit) string {
	lines := make([]string, 0, len(hits)+1)
	lines = append(lines, "[Related Context]")
	for _, h := range hits {
		text := strings.TrimSpace(h.Text)
		if text == "" {
			continue
		}
		lines = append(lines, "- "+text)
	}
	if len(lines) == 1 {
		return ""
	}
	return strings.Join(lines, "\n")
}

// CompilePatterns compiles filter patterns, skipping ones that do not compile
func CompilePatterns(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			continue
		}
		out = append(out, re)
	}
	return out
}

// FilterInstructions drops every system-message line matched by any pattern.
// It returns the number of lines removed.
func FilterInstructions(messages []models.PromptMessage, patterns []*regexp.Regexp) int {
	if len(patterns) == 0 {
		return 0
	}
	removed := 0
	for i := range messages {
		if messages[i].Role != models.RoleSystem {
			continue
		}
		lines := strings.Split(messages[i].Content, "\n")
		kept := lines[:0]
		for _, line := range lines {
			if matchesAny(patterns, line) {
				removed++
				continue
			}
			kept = append(kept, line)
		}
		messages[i].Content = strings.Join(kept, "\n")
	}
	return removed
}

func matchesAny(patterns []*regexp.Regexp, line string) bool {
	for _, re := range patterns {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// ReduceHistory drops the oldest user and assistant messages beyond keepLast.
// System messages stay in place. Nothing is removed unless more than keepLast+2 remain.
func ReduceHistory(p *models.Prompt, keepLast int) int {
	if p == nil {
		return 0
	}
	preserve := ClampPreserve(keepLast)

	var convo []int
	for i, m := range p.Messages {
		if m.Role == models.RoleUser || m.Role == models.RoleAssistant {
			convo = append(convo, i)
		}
	}
	if len(convo) <= preserve+surplusMessages {
		return 0
	}

	drop := make(map[int]struct{}, len(convo)-preserve)
	for _, i := range convo[:len(convo)-preserve] {
		drop[i] = struct{}{}
	}
	kept := make([]models.PromptMessage, 0, len(p.Messages)-len(drop))
	for i, m := range p.Messages {
		if _, ok := drop[i]; ok {
			continue
		}
		kept = append(kept, m)
	}
	p.Messages = kept
	return len(drop)
}
