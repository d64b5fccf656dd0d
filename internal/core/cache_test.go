// ABOUTME: Tests for the content-addressed summary cache
// ABOUTME: Covers hits, invalidation, cancellation, edits, and persistence
package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/harper/sidekick-pipeline/internal/models"
	"github.com/harper/sidekick-pipeline/internal/storage"
)

const summaryJSON = `{"level1":"A longer summary. It keeps the details.","level2":"short"}`

func cacheItems(n int) []models.CacheItem {
	items := make([]models.CacheItem, n)
	for i := range items {
		items[i] = models.CacheItem{UID: fmt.Sprintf("item-%d", i), Content: fmt.Sprintf("content %d", i)}
	}
	return items
}

func TestSummaryCache_PromptAsksForLevels(t *testing.T) {
	completer := &fakeCompleter{response: summaryJSON}
	cache := NewSummaryCache(completer, storage.NewMemoryStore(), nil, 0)
	cache.Fill(context.Background(), cacheItems(1), FillOptions{})

	if len(completer.requests) != 1 {
		t.Fatalf("requests = %d, want 1", len(completer.requests))
	}
	system := completer.requests[0].System
	for _, want := range []string{`"level1": "a summary of 2-3 sentences`, `"level2": "one short sentence"`} {
		if !strings.Contains(system, want) {
			t.Errorf("system prompt missing %q:\n%s", want, system)
		}
	}
}

func TestSummaryCache_SecondPassHits(t *testing.T) {
	completer := &fakeCompleter{response: summaryJSON}
	cache := NewSummaryCache(completer, storage.NewMemoryStore(), nil, 0)
	items := cacheItems(3)

	first := cache.Fill(context.Background(), items, FillOptions{})
	if first.Misses != 3 || first.Updated != 3 || first.Hits != 0 {
		t.Fatalf("first pass = %+v", first)
	}
	before := completer.callCount()

	second := cache.Fill(context.Background(), items, FillOptions{})
	if second.Hits != 3 || second.Misses != 0 {
		t.Errorf("second pass = %+v", second)
	}
	if calls := completer.callCount() - before; calls != 0 {
		t.Errorf("second pass made %d completion calls, want 0", calls)
	}

	stats := cache.Stats()
	if stats.Hits != 3 || stats.Misses != 0 || stats.Entries != 3 || stats.LastUpdate.IsZero() {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestSummaryCache_ContentChangeInvalidates(t *testing.T) {
	completer := &fakeCompleter{response: summaryJSON}
	cache := NewSummaryCache(completer, nil, nil, 0)
	items := cacheItems(1)
	cache.Fill(context.Background(), items, FillOptions{})

	if cache.Lookup("item-0", "content 0") == nil {
		t.Fatal("Lookup() = nil for fresh content")
	}
	if cache.Lookup("item-0", "content changed") != nil {
		t.Error("Lookup() returned entry for changed content")
	}

	if err := cache.Edit(context.Background(), "item-0", "mine", "my words"); err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	items[0].Content = "content changed"
	report := cache.Fill(context.Background(), items, FillOptions{})
	if report.Misses != 1 || report.Updated != 1 {
		t.Errorf("report = %+v", report)
	}

	e := cache.Lookup("item-0", "content changed")
	if e == nil || e.ManuallyEdited || e.Level1 != "A longer summary. It keeps the details." {
		t.Errorf("entry = %+v, want refreshed summary", e)
	}
}

func TestSummaryCache_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	completer := &fakeCompleter{response: summaryJSON}
	completer.onCall = func(n int) {
		if n == 2 {
			cancel()
		}
	}
	cache := NewSummaryCache(completer, nil, nil, 0)

	report := cache.Fill(ctx, cacheItems(5), FillOptions{Pacing: time.Millisecond})
	if !report.Cancelled {
		t.Fatalf("report = %+v, want cancelled", report)
	}
	if report.Processed != 2 || report.Updated != 2 {
		t.Errorf("report = %+v, want 2 processed and updated", report)
	}
	if completer.callCount() != 2 {
		t.Errorf("completer calls = %d, want 2", completer.callCount())
	}
	if got := len(cache.Entries()); got != 2 {
		t.Errorf("entries = %d, want 2", got)
	}
	if cache.Stats().Misses != 2 {
		t.Errorf("Stats() = %+v, want partial counts", cache.Stats())
	}
}

func TestSummaryCache_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	completer := &fakeCompleter{response: summaryJSON}
	cache := NewSummaryCache(completer, nil, nil, 0)
	report := cache.Fill(ctx, cacheItems(3), FillOptions{})
	if !report.Cancelled || report.Processed != 0 || completer.callCount() != 0 {
		t.Errorf("report = %+v, calls = %d", report, completer.callCount())
	}
}

func TestSummaryCache_FailuresCounted(t *testing.T) {
	tests := []struct {
		name      string
		completer *fakeCompleter
	}{
		{"transport", &fakeCompleter{err: errors.New("503")}},
		{"bad json", &fakeCompleter{response: "no summary here"}},
		{"empty levels", &fakeCompleter{response: `{"level1":"","level2":" "}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := NewSummaryCache(tt.completer, nil, nil, 0)
			report := cache.Fill(context.Background(), cacheItems(2), FillOptions{})
			if report.Failed != 2 || report.Updated != 0 || report.Cancelled {
				t.Errorf("report = %+v", report)
			}
			if len(cache.Entries()) != 0 {
				t.Error("failed summaries were stored")
			}
		})
	}
}

func TestSummaryCache_EditDeleteClear(t *testing.T) {
	ctx := context.Background()
	cache := NewSummaryCache(&fakeCompleter{response: summaryJSON}, nil, nil, 0)
	cache.Fill(ctx, cacheItems(3), FillOptions{})

	if err := cache.Edit(ctx, "missing", "a", "b"); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("Edit(missing) error = %v, want ErrEntryNotFound", err)
	}
	if err := cache.Edit(ctx, "item-1", "pinned", "pinned text"); err != nil {
		t.Fatalf("Edit() error = %v", err)
	}

	if !cache.Delete(ctx, "item-0") {
		t.Error("Delete(item-0) = false")
	}
	if cache.Delete(ctx, "item-0") {
		t.Error("second Delete(item-0) = true")
	}
	if cache.Stats().Entries != 2 {
		t.Errorf("Entries = %d, want 2", cache.Stats().Entries)
	}

	if removed := cache.Clear(ctx, true); removed != 1 {
		t.Errorf("Clear(true) removed %d, want 1", removed)
	}
	entries := cache.Entries()
	if len(entries) != 1 || entries[0].UID != "item-1" || !entries[0].ManuallyEdited {
		t.Errorf("entries = %+v", entries)
	}

	if removed := cache.Clear(ctx, false); removed != 1 {
		t.Errorf("Clear(false) removed %d, want 1", removed)
	}
	if cache.Stats().Entries != 0 {
		t.Errorf("Entries = %d, want 0", cache.Stats().Entries)
	}
}

func TestSummaryCache_PersistAndLoad(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	cache := NewSummaryCache(&fakeCompleter{response: summaryJSON}, store, nil, time.Hour)
	cache.Fill(ctx, cacheItems(2), FillOptions{SnippetLength: 4})

	if data, _ := store.Load(ctx, storage.CacheKey); data != nil {
		t.Fatal("cache written before debounce elapsed")
	}
	cache.Flush()

	reloaded := NewSummaryCache(nil, store, nil, 0)
	if err := reloaded.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	e := reloaded.Lookup("item-1", "content 1")
	if e == nil {
		t.Fatal("entry missing after reload")
	}
	if e.Snippet != "cont..." || e.Level2 != "short" {
		t.Errorf("entry = %+v", e)
	}
	if reloaded.Stats().Misses != 2 || reloaded.Stats().Entries != 2 {
		t.Errorf("Stats() = %+v", reloaded.Stats())
	}
}

func TestSummaryCache_LoadIgnoresCorruptDocument(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	_ = store.Store(ctx, storage.CacheKey, []byte("{broken"))

	cache := NewSummaryCache(nil, store, nil, 0)
	if err := cache.Load(ctx); err != nil {
		t.Errorf("Load() error = %v", err)
	}
	if len(cache.Entries()) != 0 {
		t.Error("corrupt document produced entries")
	}
}
