// ABOUTME: Negotiate-once availability probes for optional collaborators
// ABOUTME: The result is cached until Refresh is called
package core

import (
	"context"
	"sync"
)

// Capability caches whether an optional collaborator can be used
type Capability struct {
	name  string
	probe func(ctx context.Context) bool

	mu        sync.Mutex
	probed    bool
	available bool
}

// NewCapability creates a capability. A nil probe means unavailable.
func NewCapability(name string, probe func(ctx context.Context) bool) *Capability {
	return &Capability{name: name, probe: probe}
}

// Name returns the capability name
func (c *Capability) Name() string {
	if c == nil {
		return ""
	}
	return c.name
}

// Available probes on first use and returns the cached answer afterwards
func (c *Capability) Available(ctx context.Context) bool {
	if c == nil || c.probe == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.probed {
		c.available = c.probe(ctx)
		c.probed = true
	}
	return c.available
}

// Refresh forces the next Available call to probe again
func (c *Capability) Refresh() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probed = false
}

// similarityProbe reports whether the backend answers ListCollections
func similarityProbe(s Similarity) func(ctx context.Context) bool {
	if s == nil {
		return nil
	}
	return func(ctx context.Context) bool {
		_, err := s.ListCollections(ctx)
		return err == nil
	}
}

// collaboratorProbe uses Prober when implemented and otherwise trusts presence
func collaboratorProbe(c any) func(ctx context.Context) bool {
	if c == nil {
		return nil
	}
	return func(ctx context.Context) bool {
		if p, ok := c.(Prober); ok {
			return p.Probe(ctx) == nil
		}
		return true
	}
}
