// ABOUTME: Structured story state extracted from chat chunks and persisted per conversation
// ABOUTME: Status keeps key order so re-renders stay byte-identical
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/tidwall/gjson"
)

// MetadataVersion tags persisted compaction state
const MetadataVersion = "pipeline_meta.v1"

// ExtractedState is the decoded output of the state extraction model
type ExtractedState struct {
	Version           string          `json:"version,omitempty"`
	RollingSummary    []string        `json:"rolling_summary"`
	Anchors           []string        `json:"anchors"`
	FactsState        FactsState      `json:"facts_state"`
	OpenLoops         []string        `json:"open_loops"`
	SafetyConstraints []string        `json:"safety_constraints"`
	Provenance        json.RawMessage `json:"provenance,omitempty"`
}

// Quest is one tracked quest entry
type Quest struct {
	Name     string `json:"name"`
	Stage    string `json:"stage,omitempty"`
	NextStep string `json:"next_step,omitempty"`
}

// StatusEntry is a single key/value in the status map
type StatusEntry struct {
	Key   string
	Value string
}

// StatusList is an insertion-ordered status map
type StatusList []StatusEntry

// Get returns the value for key
func (s StatusList) Get(key string) (string, bool) {
	for _, e := range s {
		if e.Key == key {
			return e.Value, true
		}
	}
	return "", false
}

// MarshalJSON writes the entries as a JSON object in insertion order
func (s StatusList) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(e.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object keeping its key order
func (s *StatusList) UnmarshalJSON(data []byte) error {
	result := gjson.ParseBytes(data)
	if result.Type == gjson.Null {
		*s = nil
		return nil
	}
	if !result.IsObject() {
		return fmt.Errorf("status must be an object, got %s", result.Type)
	}
	list := StatusList{}
	result.ForEach(func(key, value gjson.Result) bool {
		list = append(list, StatusEntry{Key: key.String(), Value: ScalarText(value)})
		return true
	})
	*s = list
	return nil
}

// ScalarText renders a JSON value as display text. Strings are unquoted and
// composite values keep their raw JSON form.
func ScalarText(v gjson.Result) string {
	switch v.Type {
	case gjson.Null:
		return ""
	case gjson.String, gjson.Number, gjson.True, gjson.False:
		return v.String()
	default:
		return v.Raw
	}
}

// FactsState holds inventory, status and quests plus any unknown keys
type FactsState struct {
	Inventory []string
	Status    StatusList
	Quests    []Quest
	Extra     map[string]json.RawMessage
}

// IsEmpty reports whether no facts are tracked
func (f FactsState) IsEmpty() bool {
	return len(f.Inventory) == 0 && len(f.Status) == 0 && len(f.Quests) == 0 && len(f.Extra) == 0
}

// MarshalJSON inlines Extra keys next to the known facts
func (f FactsState) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(f.Extra)+3)
	for k, v := range f.Extra {
		out[k] = v
	}
	if f.Inventory != nil {
		raw, err := json.Marshal(f.Inventory)
		if err != nil {
			return nil, err
		}
		out["inventory"] = raw
	}
	if f.Status != nil {
		raw, err := json.Marshal(f.Status)
		if err != nil {
			return nil, err
		}
		out["status"] = raw
	}
	if f.Quests != nil {
		raw, err := json.Marshal(f.Quests)
		if err != nil {
			return nil, err
		}
		out["quests"] = raw
	}
	return json.Marshal(out)
}

// UnmarshalJSON splits known facts from unknown keys
func (f *FactsState) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*f = FactsState{}
	for k, v := range raw {
		var err error
		switch k {
		case "inventory":
			err = json.Unmarshal(v, &f.Inventory)
		case "status":
			err = json.Unmarshal(v, &f.Status)
		case "quests":
			err = json.Unmarshal(v, &f.Quests)
		default:
			if f.Extra == nil {
				f.Extra = make(map[string]json.RawMessage)
			}
			f.Extra[k] = v
		}
		if err != nil {
			return fmt.Errorf("facts_state.%s: %w", k, err)
		}
	}
	return nil
}

// ExtraKeys returns the unknown fact keys in sorted order
func (f FactsState) ExtraKeys() []string {
	keys := make([]string, 0, len(f.Extra))
	for k := range f.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CompactionState is the per-conversation record written after each compaction
type CompactionState struct {
	Version           string          `json:"version"`
	RunID             string          `json:"run_id,omitempty"`
	LastCompactedTurn int             `json:"last_compacted_turn"`
	LastTokenCount    int             `json:"last_token_count"`
	LastContextSize   int             `json:"last_context_size"`
	LastOccupancy     float64         `json:"last_occupancy"`
	PreserveCount     int             `json:"preserve_last_messages"`
	LastMessageHash   string          `json:"last_message_hash"`
	State             *ExtractedState `json:"last_state"`
	Digest            string          `json:"digest,omitempty"`
	Issues            []string        `json:"last_issues"`
	UpdatedAt         time.Time       `json:"updated_at"`
}
