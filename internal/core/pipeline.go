// ABOUTME: Pipeline facade wiring settings, stores, collaborators, and stages
// ABOUTME: Host hooks enter here and never panic back into the host
package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/harper/sidekick-pipeline/internal/config"
	"github.com/harper/sidekick-pipeline/internal/models"
	"github.com/harper/sidekick-pipeline/internal/storage"
	"github.com/harper/sidekick-pipeline/internal/util"
)

// Options configures a Pipeline. Only Settings is required.
type Options struct {
	Settings      config.Settings
	Store         BlobStore
	Completer     Completer
	TokenCounter  TokenCounter
	Similarity    Similarity
	TableMemory   TableMemory
	Logger        Logger
	DebounceDelay time.Duration
}

// Pipeline is the single entry point a host talks to
type Pipeline struct {
	store    BlobStore
	logger   Logger
	debounce *util.Debouncer

	mu       sync.RWMutex
	settings config.Settings

	sessions  *Sessions
	meta      *MetadataStore
	cache     *SummaryCache
	simCap    *Capability
	tablesCap *Capability
	compactor *Compactor
	assembler *Assembler
}

// New wires a Pipeline from opts
func New(opts Options) (*Pipeline, error) {
	settings := opts.Settings
	settings.Normalize()
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	store := opts.Store
	if store == nil {
		store = storage.NewMemoryStore()
	}
	logger := orNoop(opts.Logger)

	p := &Pipeline{
		store:    store,
		logger:   logger,
		debounce: util.NewDebouncer(opts.DebounceDelay),
		settings: settings,
		sessions: NewSessions(),
		meta:     NewMetadataStore(store, opts.DebounceDelay, logger),
		cache:    NewSummaryCache(opts.Completer, store, logger, opts.DebounceDelay),
	}

	var tables TableMemory
	if opts.TableMemory != nil {
		tables = opts.TableMemory
		p.tablesCap = NewCapability("table_memory", collaboratorProbe(opts.TableMemory))
	}
	var sim Similarity
	if opts.Similarity != nil {
		sim = opts.Similarity
		p.simCap = NewCapability("similarity", similarityProbe(opts.Similarity))
	}

	relevance := NewRelevanceFilter(sim, p.simCap, logger)
	p.compactor = NewCompactor(opts.Completer, opts.TokenCounter, p.meta, p.sessions, logger)
	p.assembler = NewAssembler(p.meta, p.sessions, relevance, tables, p.tablesCap, sim, p.simCap, logger)
	return p, nil
}

// Settings returns the current settings
func (p *Pipeline) Settings() config.Settings {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.settings
}

// UpdateSettings normalizes, validates, and persists s
func (p *Pipeline) UpdateSettings(ctx context.Context, s config.Settings) error {
	s.Normalize()
	if err := s.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	data, err := config.EncodeSettings(s)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.settings = s
	p.mu.Unlock()

	p.debounce.Trigger(storage.SettingsKey, func() {
		if err := p.store.Store(context.WithoutCancel(ctx), storage.SettingsKey, data); err != nil {
			p.logger.Error("failed to persist settings", "error", err)
		}
	})
	return nil
}

// LoadSettings reads persisted settings and the summary cache.
// Missing documents leave the current values in place.
func (p *Pipeline) LoadSettings(ctx context.Context) error {
	data, err := p.store.Load(ctx, storage.SettingsKey)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if len(data) > 0 {
		s, err := config.DecodeSettings(data)
		if err != nil {
			p.logger.Warn("ignoring unreadable settings", "error", err)
		} else if err := s.Validate(); err != nil {
			p.logger.Warn("ignoring invalid settings", "error", err)
		} else {
			p.mu.Lock()
			p.settings = s
			p.mu.Unlock()
		}
	}
	return p.cache.Load(ctx)
}

// OnGenerationRequested runs the trigger for an ordinary generation
func (p *Pipeline) OnGenerationRequested(ctx context.Context, req CompactRequest) (out CompactOutcome) {
	defer p.recoverOutcome("generation requested", &out)
	req.Force = false
	return p.compactor.MaybeCompact(ctx, req, p.Settings())
}

// ForceCompact runs the trigger bypassing the occupancy and cooldown gates
func (p *Pipeline) ForceCompact(ctx context.Context, req CompactRequest) (out CompactOutcome) {
	defer p.recoverOutcome("force compact", &out)
	req.Force = true
	return p.compactor.MaybeCompact(ctx, req, p.Settings())
}

// OnPromptFinalized rewrites the outgoing prompt in place
func (p *Pipeline) OnPromptFinalized(ctx context.Context, req AssembleRequest) (out AssembleReport) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("prompt assembly panicked", "conversation", req.ConversationID, "panic", r)
			out = AssembleReport{Skipped: fmt.Sprintf("Sidekick: prompt assembly failed: %v", r)}
		}
	}()
	return p.assembler.Assemble(ctx, req, p.Settings())
}

// OnMessageReceived caches a micro-summary of one received message when enabled
func (p *Pipeline) OnMessageReceived(ctx context.Context, conversationID string, msg models.Message) (status string) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("message hook panicked", "conversation", conversationID, "panic", r)
			status = fmt.Sprintf("Sidekick: message hook failed: %v", r)
		}
	}()

	cfg := p.Settings()
	if !cfg.Enabled || !cfg.MicroSummaries || !cfg.Cache.Enabled {
		return ""
	}
	if msg.IsSystemMessage() || msg.Text == "" {
		return ""
	}

	item := models.CacheItem{
		UID:     MessageUID(conversationID, msg.Index),
		Content: msg.Text,
		Tags:    []string{"message", msg.Speaker()},
	}
	report := p.cache.Fill(ctx, []models.CacheItem{item}, p.fillOptions(cfg, 0))
	return report.Status
}

// MessageUID is the cache uid of a transcript message
func MessageUID(conversationID string, index int) string {
	return fmt.Sprintf("message:%s:%d", conversationID, index)
}

// State returns the stored compaction state, or nil when none exists
func (p *Pipeline) State(ctx context.Context, conversationID string) (*models.CompactionState, error) {
	return p.meta.Load(ctx, conversationID)
}

// FillCache summarizes items through the cache with the configured pacing
func (p *Pipeline) FillCache(ctx context.Context, items []models.CacheItem) (out FillReport) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("cache fill panicked", "panic", r)
			out = FillReport{Total: len(items), Status: fmt.Sprintf("Sidekick: cache fill failed: %v", r)}
		}
	}()

	cfg := p.Settings()
	if !cfg.Cache.Enabled {
		return FillReport{Total: len(items), Status: "Sidekick: cache disabled."}
	}
	return p.cache.Fill(ctx, items, p.fillOptions(cfg, time.Duration(cfg.Cache.PacingMillis)*time.Millisecond))
}

func (p *Pipeline) fillOptions(cfg config.Settings, pacing time.Duration) FillOptions {
	return FillOptions{
		Model:         cfg.Completion.Model,
		Endpoint:      cfg.Completion.URL,
		Temperature:   cfg.Completion.Temperature,
		MaxTokens:     cfg.Completion.MaxTokens,
		Pacing:        pacing,
		SnippetLength: cfg.Cache.SnippetLength,
	}
}

// Cache exposes the summary cache
func (p *Pipeline) Cache() *SummaryCache {
	return p.cache
}

// CacheStats returns the latest cache snapshot
func (p *Pipeline) CacheStats() models.CacheStats {
	return p.cache.Stats()
}

// RefreshCapabilities forces optional collaborators to be probed again
func (p *Pipeline) RefreshCapabilities() {
	p.simCap.Refresh()
	p.tablesCap.Refresh()
}

// Close writes every pending document
func (p *Pipeline) Close() error {
	p.meta.Flush()
	p.cache.Flush()
	p.debounce.Flush()
	return nil
}

func (p *Pipeline) recoverOutcome(hook string, out *CompactOutcome) {
	r := recover()
	if r == nil {
		return
	}
	p.logger.Error("hook panicked", "hook", hook, "panic", r)
	*out = CompactOutcome{
		Status: fmt.Sprintf("Sidekick: %s failed: %v", hook, r),
		Err:    fmt.Errorf("panic in %s: %v", hook, r),
	}
}
