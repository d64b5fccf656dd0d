// ABOUTME: Conversation and prompt message types shared across the pipeline
// ABOUTME: Covers host transcripts, assembled prompts, and run classification
package models

import "strings"

// Role identifies who authored a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one entry of a host conversation transcript
type Message struct {
	Index    int    `json:"index"`
	Role     Role   `json:"role,omitempty"`
	Name     string `json:"name,omitempty"`
	Text     string `json:"text"`
	IsUser   bool   `json:"is_user,omitempty"`
	IsSystem bool   `json:"is_system,omitempty"`
}

// IsSystemMessage reports whether the message is system-authored.
// Either the explicit flag or the role marks it.
func (m Message) IsSystemMessage() bool {
	return m.IsSystem || m.Role == RoleSystem
}

// IsUserMessage reports whether the user wrote the message
func (m Message) IsUserMessage() bool {
	return m.IsUser || m.Role == RoleUser
}

// Speaker returns the role label used in chunk lines
func (m Message) Speaker() string {
	if m.IsSystemMessage() {
		return string(RoleSystem)
	}
	if m.IsUserMessage() {
		return string(RoleUser)
	}
	return string(RoleAssistant)
}

// DisplayName returns the author name, falling back to the speaker role
func (m Message) DisplayName() string {
	if name := strings.TrimSpace(m.Name); name != "" {
		return name
	}
	return m.Speaker()
}

// PromptMessage is one role/content pair in an assembled prompt
type PromptMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Prompt is the mutable prompt a host hands over just before generation.
// Slots hold named injected blocks; setting a slot replaces its previous text.
type Prompt struct {
	Messages []PromptMessage   `json:"messages"`
	Slots    map[string]string `json:"slots,omitempty"`
}

// SetSlot replaces the text at a named slot. Empty text clears the slot.
func (p *Prompt) SetSlot(name, text string) {
	if strings.TrimSpace(text) == "" {
		delete(p.Slots, name)
		return
	}
	if p.Slots == nil {
		p.Slots = make(map[string]string)
	}
	p.Slots[name] = text
}

// Slot returns the text at a named slot
func (p *Prompt) Slot(name string) string {
	return p.Slots[name]
}

// LatestUserMessage returns the last user-authored message content
func (p *Prompt) LatestUserMessage() (string, bool) {
	for i := len(p.Messages) - 1; i >= 0; i-- {
		if p.Messages[i].Role == RoleUser {
			return p.Messages[i].Content, true
		}
	}
	return "", false
}

// RunType classifies a generation request
type RunType string

const (
	RunNormal       RunType = "normal"
	RunRegenerate   RunType = "regenerate"
	RunSwipe        RunType = "swipe"
	RunContinue     RunType = "continue"
	RunContinuation RunType = "continuation"
	RunQuiet        RunType = "quiet"
	RunImpersonate  RunType = "impersonate"
)

// Eligible reports whether compaction and prompt assembly may act on this run.
// "continuation" is accepted as an alias of "continue".
func (r RunType) Eligible() bool {
	switch r {
	case RunNormal, RunContinue, RunContinuation:
		return true
	default:
		return false
	}
}

// ParseRunType normalizes host-provided run type strings. Empty means normal.
func ParseRunType(s string) RunType {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return RunNormal
	}
	return RunType(s)
}
