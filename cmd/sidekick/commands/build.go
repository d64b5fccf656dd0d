// ABOUTME: Builds the pipeline and its collaborators from environment configuration
// ABOUTME: Shared by every command that touches state, the cache, or the backends
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	charmlog "github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	openai "github.com/sashabaranov/go-openai"

	"github.com/harper/sidekick-pipeline/internal/charm"
	"github.com/harper/sidekick-pipeline/internal/config"
	"github.com/harper/sidekick-pipeline/internal/core"
	"github.com/harper/sidekick-pipeline/internal/llm"
	"github.com/harper/sidekick-pipeline/internal/storage"
	"github.com/harper/sidekick-pipeline/internal/storage/sqlite"
	"github.com/harper/sidekick-pipeline/internal/vector"
)

// app bundles an open pipeline with the resources backing it
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	pipeline *core.Pipeline
	db       *sqlite.DB
	rows     *sqlite.RowStore
	index    *vector.Index
	charm    *charm.Client
}

// newLogger returns a charm-styled slog logger on stderr.
// The global flags win over the debug setting.
func newLogger(debug bool) *slog.Logger {
	level := charmlog.InfoLevel
	if debug || verbose {
		level = charmlog.DebugLevel
	}
	if quiet {
		level = charmlog.ErrorLevel
	}
	handler := charmlog.NewWithOptions(os.Stderr, charmlog.Options{
		Level:           level,
		Prefix:          "sidekick",
		ReportTimestamp: true,
	})
	return slog.New(handler)
}

// openApp loads configuration and wires the pipeline
func openApp(ctx context.Context) (*app, error) {
	// Load .env file if it exists (for API keys)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	a := &app{cfg: cfg, logger: newLogger(cfg.Settings.Debug)}

	store, err := a.openStorage()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.rows = sqlite.NewRowStore(a.db)

	opts := core.Options{
		Settings:      cfg.Settings,
		Store:         store,
		TableMemory:   a.rows,
		Logger:        a.logger,
		DebounceDelay: cfg.DebounceDelay,
	}
	a.wireCompletion(&opts)
	if idx := a.openIndex(); idx != nil {
		a.index = idx
		opts.Similarity = idx
	}

	p, err := core.New(opts)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.pipeline = p

	if err := p.LoadSettings(ctx); err != nil {
		a.logger.Warn("could not load persisted settings", "error", err)
	}
	return a, nil
}

// openStorage opens the SQLite database and picks the blob store.
// Table rows and vectors always live in SQLite; an in-memory database backs the memory store.
func (a *app) openStorage() (core.BlobStore, error) {
	if a.cfg.Store == config.StoreMemory {
		db, err := sqlite.OpenInMemory()
		if err != nil {
			return nil, fmt.Errorf("failed to open in-memory database: %w", err)
		}
		a.db = db
		return storage.NewMemoryStore(), nil
	}

	path := a.cfg.DBPath
	if path == "" {
		path = sqlite.DefaultDBPath()
	}
	db, err := sqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	a.db = db

	if a.cfg.Store == config.StoreCharm {
		client, err := charm.NewClient(&charm.Config{
			Host:     a.cfg.CharmHost,
			DBName:   a.cfg.CharmDBName,
			AutoSync: a.cfg.AutoSync,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Charm: %w", err)
		}
		a.charm = client
		return client, nil
	}
	a.logger.Debug("using sqlite store", "path", db.Path())
	return sqlite.NewBlobStore(db), nil
}

// wireCompletion picks the completion backend and token counter for the configured provider
func (a *app) wireCompletion(opts *core.Options) {
	s := a.cfg.Settings.Completion
	switch s.Provider {
	case config.ProviderAnthropic:
		if a.cfg.AnthropicKey == "" {
			a.logger.Warn("ANTHROPIC_API_KEY not set - summarization is unavailable")
			return
		}
		client := llm.NewAnthropicClient(a.cfg.AnthropicKey, s.Model)
		opts.Completer = client
		opts.TokenCounter = client
	default:
		clientCfg := llm.DefaultConfig(a.cfg.OpenAIKey, s.URL)
		clientCfg.ChatModel = s.Model
		clientCfg.MaxRetries = a.cfg.MaxRetries
		clientCfg.RetryDelay = a.cfg.RetryDelay
		clientCfg.Timeout = a.cfg.Timeout
		client, err := llm.NewOpenAIClient(clientCfg)
		if err != nil {
			a.logger.Warn("summarization is unavailable", "error", err)
			return
		}
		opts.Completer = client
	}
}

// openIndex builds the similarity index when an embedding key is configured
func (a *app) openIndex() *vector.Index {
	if a.cfg.OpenAIKey == "" {
		a.logger.Debug("OPENAI_API_KEY not set - similarity search disabled")
		return nil
	}
	clientCfg := llm.DefaultConfig(a.cfg.OpenAIKey, "")
	clientCfg.EmbeddingModel = openai.EmbeddingModel(a.cfg.EmbeddingModel)
	clientCfg.MaxRetries = a.cfg.MaxRetries
	clientCfg.RetryDelay = a.cfg.RetryDelay
	clientCfg.Timeout = a.cfg.Timeout
	embedder, err := llm.NewOpenAIClient(clientCfg)
	if err != nil {
		a.logger.Warn("similarity search disabled", "error", err)
		return nil
	}
	return vector.NewIndex(sqlite.NewVectorStore(a.db), a.cfg.Settings.Vector.EmbeddingSource, embedder)
}

// Close flushes pending writes and releases every resource
func (a *app) Close() {
	if a.pipeline != nil {
		_ = a.pipeline.Close()
	}
	if a.charm != nil {
		if err := a.charm.Close(); err != nil {
			a.logger.Warn("error closing charm store", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("error closing database", "error", err)
		}
	}
}
