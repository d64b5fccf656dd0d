// ABOUTME: Content-addressed cache of two-level summaries keyed by item uid
// ABOUTME: Entries are reused while the content hash matches and refreshed otherwise
package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/harper/sidekick-pipeline/internal/models"
	"github.com/harper/sidekick-pipeline/internal/storage"
	"github.com/harper/sidekick-pipeline/internal/util"
)

const summarySystemPrompt = `Summarize the provided content at two levels of detail.
Return VALID JSON ONLY (no markdown) with exactly these keys:
{"level1": "a summary of 2-3 sentences with the concrete details", "level2": "one short sentence"}
Do not invent facts.`

// FillOptions tunes a cache fill pass
type FillOptions struct {
	Model         string
	Endpoint      string
	Temperature   float64
	MaxTokens     int
	Pacing        time.Duration
	SnippetLength int
}

// FillReport summarizes one fill pass
type FillReport struct {
	Total     int
	Processed int
	Hits      int
	Misses    int
	Updated   int
	Failed    int
	Cancelled bool
	Status    string
}

type cacheDocument struct {
	Entries map[string]*models.CacheEntry `json:"entries"`
	Stats   models.CacheStats             `json:"stats"`
}

// SummaryCache holds summaries for arbitrary content items
type SummaryCache struct {
	completer Completer
	store     BlobStore
	logger    Logger
	debounce  *util.Debouncer

	mu      sync.Mutex
	entries map[string]*models.CacheEntry
	stats   models.CacheStats
}

// NewSummaryCache creates an empty cache. Call Load to read a persisted document.
func NewSummaryCache(completer Completer, store BlobStore, logger Logger, delay time.Duration) *SummaryCache {
	return &SummaryCache{
		completer: completer,
		store:     store,
		logger:    orNoop(logger),
		debounce:  util.NewDebouncer(delay),
		entries:   make(map[string]*models.CacheEntry),
	}
}

// Load replaces the in-memory cache with the persisted document, if any
func (c *SummaryCache) Load(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	data, err := c.store.Load(ctx, storage.CacheKey)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if len(data) == 0 {
		return nil
	}

	var doc cacheDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		c.logger.Warn("discarding unreadable summary cache", "error", err)
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*models.CacheEntry, len(doc.Entries))
	for uid, e := range doc.Entries {
		if e != nil {
			c.entries[uid] = e
		}
	}
	c.stats = doc.Stats
	c.stats.Entries = len(c.entries)
	return nil
}

// Fill summarizes every item whose cached entry is missing or stale
func (c *SummaryCache) Fill(ctx context.Context, items []models.CacheItem, opts FillOptions) FillReport {
	report := FillReport{Total: len(items)}

	for i, item := range items {
		if ctx.Err() != nil {
			report.Cancelled = true
			break
		}
		report.Processed++

		hash := util.ContentHash(item.Content)
		if c.Lookup(item.UID, item.Content) != nil {
			report.Hits++
			continue
		}
		report.Misses++

		if c.completer == nil {
			report.Failed++
			continue
		}

		// Let an in-flight request finish so a cancel never strands a half-written entry
		raw, err := c.completer.Complete(context.WithoutCancel(ctx), models.CompletionRequest{
			System:      summarySystemPrompt,
			User:        item.Content,
			Model:       opts.Model,
			Endpoint:    opts.Endpoint,
			Temperature: opts.Temperature,
			MaxTokens:   opts.MaxTokens,
		})
		if err == nil {
			var l1, l2 string
			l1, l2, err = parseSummaries(raw)
			if err == nil {
				c.put(&models.CacheEntry{
					UID:         item.UID,
					ContentHash: hash,
					Level1:      l1,
					Level2:      l2,
					Snippet:     snippet(item.Content, opts.SnippetLength),
					Tags:        append([]string(nil), item.Tags...),
					Timestamp:   time.Now().UTC(),
				})
				report.Updated++
			}
		}
		if err != nil {
			report.Failed++
			c.logger.Warn("cache summary failed", "uid", item.UID, "error", err)
		}

		if i < len(items)-1 && util.Sleep(ctx, opts.Pacing) != nil {
			report.Cancelled = true
			break
		}
	}

	c.mu.Lock()
	c.stats = models.CacheStats{
		Hits:       report.Hits,
		Misses:     report.Misses,
		Entries:    len(c.entries),
		LastUpdate: time.Now().UTC(),
	}
	c.mu.Unlock()
	c.persist(ctx)

	report.Status = fillStatus(report)
	return report
}

func fillStatus(r FillReport) string {
	prefix := "Sidekick: cache filled"
	if r.Cancelled {
		prefix = "Sidekick: cache fill cancelled"
	}
	msg := fmt.Sprintf("%s (%d/%d processed, %d hits, %d updated", prefix, r.Processed, r.Total, r.Hits, r.Updated)
	if r.Failed > 0 {
		msg += fmt.Sprintf(", %d failed", r.Failed)
	}
	return msg + ")."
}

func parseSummaries(raw string) (string, string, error) {
	obj, ok := locateObject(raw)
	if !ok {
		return "", "", fmt.Errorf("summary response is not a JSON object")
	}
	l1 := strings.TrimSpace(obj.Get("level1").String())
	l2 := strings.TrimSpace(obj.Get("level2").String())
	if l1 == "" && l2 == "" {
		return "", "", fmt.Errorf("summary response has no level1 or level2")
	}
	return l1, l2, nil
}

func snippet(content string, n int) string {
	content = strings.Join(strings.Fields(content), " ")
	if n <= 0 {
		return content
	}
	r := []rune(content)
	if len(r) <= n {
		return content
	}
	return string(r[:n]) + "..."
}

// Lookup returns the entry for uid when it was built from exactly this content
func (c *SummaryCache) Lookup(uid, content string) *models.CacheEntry {
	hash := util.ContentHash(content)
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entries[uid]
	if !e.Matches(hash) {
		return nil
	}
	cp := *e
	return &cp
}

// Edit overwrites both summary levels of an existing entry
func (c *SummaryCache) Edit(ctx context.Context, uid, level1, level2 string) error {
	c.mu.Lock()
	e, ok := c.entries[uid]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrEntryNotFound, uid)
	}
	e.Level1 = level1
	e.Level2 = level2
	e.ManuallyEdited = true
	e.Timestamp = time.Now().UTC()
	c.mu.Unlock()

	c.persist(ctx)
	return nil
}

// Delete removes one entry and reports whether it existed
func (c *SummaryCache) Delete(ctx context.Context, uid string) bool {
	c.mu.Lock()
	_, ok := c.entries[uid]
	delete(c.entries, uid)
	c.stats.Entries = len(c.entries)
	c.mu.Unlock()

	if ok {
		c.persist(ctx)
	}
	return ok
}

// Clear drops entries, keeping manually edited ones when preserveEdited is set.
// It returns the number removed.
func (c *SummaryCache) Clear(ctx context.Context, preserveEdited bool) int {
	c.mu.Lock()
	removed := 0
	for uid, e := range c.entries {
		if preserveEdited && e.ManuallyEdited {
			continue
		}
		delete(c.entries, uid)
		removed++
	}
	c.stats.Entries = len(c.entries)
	c.mu.Unlock()

	c.persist(ctx)
	return removed
}

// Entries returns copies of all entries sorted by uid
func (c *SummaryCache) Entries() []models.CacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.CacheEntry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out
}

// Stats returns the last fill snapshot with the live entry count
func (c *SummaryCache) Stats() models.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = len(c.entries)
	return s
}

// Flush writes any pending cache document now
func (c *SummaryCache) Flush() {
	c.debounce.Flush()
}

func (c *SummaryCache) put(e *models.CacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[e.UID] = e
	c.stats.Entries = len(c.entries)
}

func (c *SummaryCache) persist(ctx context.Context) {
	if c.store == nil {
		return
	}
	c.mu.Lock()
	doc := cacheDocument{Entries: c.entries, Stats: c.stats}
	doc.Stats.Entries = len(c.entries)
	data, err := json.Marshal(doc)
	c.mu.Unlock()
	if err != nil {
		c.logger.Error("failed to encode summary cache", "error", err)
		return
	}

	c.debounce.Trigger(storage.CacheKey, func() {
		if err := c.store.Store(context.WithoutCancel(ctx), storage.CacheKey, data); err != nil {
			c.logger.Error("failed to persist summary cache", "error", err)
		}
	})
}
