// ABOUTME: Relevance candidates drawn from table memory and similarity hits
// ABOUTME: Identity is the source collection plus the item key
package models

// Candidate is one retrievable item considered for prompt injection
type Candidate struct {
	Collection string         `json:"collection"`
	Key        string         `json:"key"`
	Group      string         `json:"group,omitempty"`
	Text       string         `json:"text"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Score      float64        `json:"score,omitempty"`
}

// Identity returns the stable identity of the candidate
func (c Candidate) Identity() string {
	return c.Collection + "/" + c.Key
}

// Owner returns the grouping name, falling back to the collection
func (c Candidate) Owner() string {
	if c.Group != "" {
		return c.Group
	}
	return c.Collection
}

// SimilarityHit is one result returned by a similarity backend
type SimilarityHit struct {
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Score    float64        `json:"score"`
}

// MetadataString returns a string metadata field
func (h SimilarityHit) MetadataString(key string) string {
	if h.Metadata == nil {
		return ""
	}
	if s, ok := h.Metadata[key].(string); ok {
		return s
	}
	return ""
}

// CompletionRequest is a single-turn chat completion
type CompletionRequest struct {
	System      string
	User        string
	Model       string
	Endpoint    string
	Temperature float64
	MaxTokens   int
}
