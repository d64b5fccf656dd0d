// ABOUTME: Pipeline settings with defaults, normalization, and validation
// ABOUTME: Decoded from JSON blobs or YAML files on top of the defaults
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Relevance modes
const (
	ModeKeyword     = "keyword"
	ModeVector      = "vector"
	ModeHybrid      = "hybrid"
	ModePassthrough = "passthrough"
)

// Completion providers
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// DefaultAnthropicModel replaces the local model default when the provider is anthropic
const DefaultAnthropicModel = "claude-3-5-haiku-latest"

// DefaultInstructionFilterPatterns strip bookkeeping chores from system prompts
var DefaultInstructionFilterPatterns = []string{
	`(?im)^\s*(you must|you should|always|never)\s+.*(track|update|calculate|compute|manage)\b.*$`,
	`(?im)^\s*\[?(inventory|stats|status|system|quest|objective)\]?\s*:?\s*(update|calculate|compute|track)\b.*$`,
	`(?im)\b(update|calculate|compute|track|manage)\b.*\b(inventory|stats|status|numbers|hp|mana|gold|coins)\b`,
}

// Settings is the process-wide pipeline configuration
type Settings struct {
	Enabled                       bool                `json:"enabled" yaml:"enabled"`
	FilterOperationalInstructions bool                `json:"filterOperationalInstructions" yaml:"filter_operational_instructions"`
	ReduceHistory                 bool                `json:"reduceHistory" yaml:"reduce_history"`
	Debug                         bool                `json:"debug" yaml:"debug"`
	Completion                    CompletionSettings  `json:"completion" yaml:"completion"`
	PreserveLastMessages          int                 `json:"preserveLastMessages" yaml:"preserve_last_messages"`
	Thresholds                    Thresholds          `json:"thresholds" yaml:"thresholds"`
	InstructionFilterPatterns     []string            `json:"instructionFilterPatterns" yaml:"instruction_filter_patterns"`
	MicroSummaries                bool                `json:"microSummaries" yaml:"micro_summaries"`
	Cache                         CacheSettings       `json:"cache" yaml:"cache"`
	Relevance                     RelevanceSettings   `json:"relevance" yaml:"relevance"`
	TableMemory                   TableMemorySettings `json:"tableMemory" yaml:"table_memory"`
	Vector                        VectorSettings      `json:"vector" yaml:"vector"`
}

// CompletionSettings selects the summarization backend
type CompletionSettings struct {
	Provider    string  `json:"provider" yaml:"provider"`
	URL         string  `json:"url" yaml:"url"`
	Model       string  `json:"model" yaml:"model"`
	Temperature float64 `json:"temperature" yaml:"temperature"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens"`
}

// Thresholds gate when compaction fires
type Thresholds struct {
	StartOccupancy  float64 `json:"startOccupancy" yaml:"start_occupancy"`
	MinTurnsBetween int     `json:"minTurnsBetween" yaml:"min_turns_between"`
}

// CacheSettings controls per-item summary caching
type CacheSettings struct {
	Enabled       bool `json:"enabled" yaml:"enabled"`
	PacingMillis  int  `json:"pacingMillis" yaml:"pacing_millis"`
	SnippetLength int  `json:"snippetLength" yaml:"snippet_length"`
}

// RelevanceSettings controls ranking of injected candidates
type RelevanceSettings struct {
	Mode      string  `json:"mode" yaml:"mode"`
	Threshold float64 `json:"threshold" yaml:"threshold"`
}

// TableMemorySettings controls table-memory injection
type TableMemorySettings struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	MaxRows int  `json:"maxRows" yaml:"max_rows"`
}

// VectorSettings controls similarity-context injection
type VectorSettings struct {
	Enabled         bool    `json:"enabled" yaml:"enabled"`
	Collection      string  `json:"collection" yaml:"collection"`
	TopK            int     `json:"topK" yaml:"top_k"`
	Threshold       float64 `json:"threshold" yaml:"threshold"`
	EmbeddingSource string  `json:"embeddingSource" yaml:"embedding_source"`
}

// Defaults returns the built-in settings
func Defaults() Settings {
	patterns := make([]string, len(DefaultInstructionFilterPatterns))
	copy(patterns, DefaultInstructionFilterPatterns)

	return Settings{
		Enabled:                       true,
		FilterOperationalInstructions: true,
		ReduceHistory:                 true,
		Debug:                         false,
		Completion: CompletionSettings{
			Provider:    ProviderOpenAI,
			URL:         "http://localhost:11434/v1",
			Model:       "qwen3:8b",
			Temperature: 0.2,
			MaxTokens:   1400,
		},
		PreserveLastMessages: 8,
		Thresholds: Thresholds{
			StartOccupancy:  0.78,
			MinTurnsBetween: 6,
		},
		InstructionFilterPatterns: patterns,
		Cache: CacheSettings{
			Enabled:       true,
			PacingMillis:  750,
			SnippetLength: 240,
		},
		Relevance: RelevanceSettings{
			Mode: ModeKeyword,
		},
		TableMemory: TableMemorySettings{
			Enabled: false,
			MaxRows: 8,
		},
		Vector: VectorSettings{
			Enabled:         false,
			Collection:      "sidekick-context",
			TopK:            5,
			Threshold:       0.25,
			EmbeddingSource: ProviderOpenAI,
		},
	}
}

// Normalize replaces missing or zero numeric fields with defaults.
// A nil pattern list falls back to the defaults; an explicit empty list is kept.
func (s *Settings) Normalize() {
	d := Defaults()

	if s.Completion.Provider == "" {
		s.Completion.Provider = d.Completion.Provider
	}
	if s.Completion.Provider == ProviderAnthropic {
		// The local endpoint and model defaults only make sense for OpenAI-compatible servers
		if s.Completion.URL == d.Completion.URL {
			s.Completion.URL = ""
		}
		if s.Completion.Model == "" || s.Completion.Model == d.Completion.Model {
			s.Completion.Model = DefaultAnthropicModel
		}
	} else {
		if s.Completion.URL == "" {
			s.Completion.URL = d.Completion.URL
		}
		if s.Completion.Model == "" {
			s.Completion.Model = d.Completion.Model
		}
	}
	if s.Completion.Temperature <= 0 {
		s.Completion.Temperature = d.Completion.Temperature
	}
	if s.Completion.MaxTokens <= 0 {
		s.Completion.MaxTokens = d.Completion.MaxTokens
	}
	if s.PreserveLastMessages <= 0 {
		s.PreserveLastMessages = d.PreserveLastMessages
	}
	if s.Thresholds.StartOccupancy <= 0 {
		s.Thresholds.StartOccupancy = d.Thresholds.StartOccupancy
	}
	if s.Thresholds.MinTurnsBetween <= 0 {
		s.Thresholds.MinTurnsBetween = d.Thresholds.MinTurnsBetween
	}
	if s.InstructionFilterPatterns == nil {
		s.InstructionFilterPatterns = d.InstructionFilterPatterns
	}
	if s.Cache.PacingMillis < 0 {
		s.Cache.PacingMillis = 0
	}
	if s.Cache.SnippetLength <= 0 {
		s.Cache.SnippetLength = d.Cache.SnippetLength
	}
	if s.Relevance.Mode == "" {
		s.Relevance.Mode = d.Relevance.Mode
	}
	if s.TableMemory.MaxRows <= 0 {
		s.TableMemory.MaxRows = d.TableMemory.MaxRows
	}
	if s.Vector.Collection == "" {
		s.Vector.Collection = d.Vector.Collection
	}
	if s.Vector.TopK <= 0 {
		s.Vector.TopK = d.Vector.TopK
	}
	if s.Vector.Threshold < 0 {
		s.Vector.Threshold = 0
	}
	if s.Vector.EmbeddingSource == "" {
		s.Vector.EmbeddingSource = d.Vector.EmbeddingSource
	}
}

// Validate reports settings that cannot be normalized into range
func (s *Settings) Validate() error {
	switch s.Completion.Provider {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("completion provider must be %q or %q, got %q", ProviderOpenAI, ProviderAnthropic, s.Completion.Provider)
	}
	if s.Completion.Temperature > 2 {
		return fmt.Errorf("completion temperature must be 0-2, got %f", s.Completion.Temperature)
	}
	if s.Thresholds.StartOccupancy > 1 {
		return fmt.Errorf("start occupancy must be 0-1, got %f", s.Thresholds.StartOccupancy)
	}
	switch s.Relevance.Mode {
	case ModeKeyword, ModeVector, ModeHybrid, ModePassthrough:
	default:
		return fmt.Errorf("unknown relevance mode %q", s.Relevance.Mode)
	}
	if s.Relevance.Threshold < 0 || s.Relevance.Threshold > 1 {
		return fmt.Errorf("relevance threshold must be 0-1, got %f", s.Relevance.Threshold)
	}
	if s.Vector.Threshold > 1 {
		return fmt.Errorf("vector threshold must be 0-1, got %f", s.Vector.Threshold)
	}
	return nil
}

// DecodeSettings reads a JSON settings blob over the defaults.
// Keys absent from the blob keep their default values.
func DecodeSettings(data []byte) (Settings, error) {
	s := Defaults()
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return Defaults(), fmt.Errorf("failed to decode settings: %w", err)
	}
	s.Normalize()
	return s, nil
}

// EncodeSettings serializes settings as a JSON blob
func EncodeSettings(s Settings) ([]byte, error) {
	return json.Marshal(s)
}

// LoadSettingsFile reads a YAML settings file over the defaults
func LoadSettingsFile(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Defaults(), fmt.Errorf("failed to read settings file: %w", err)
	}

	s := Defaults()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Defaults(), fmt.Errorf("failed to parse settings file %s: %w", path, err)
	}
	s.Normalize()
	return s, nil
}
