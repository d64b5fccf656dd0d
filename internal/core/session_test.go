// ABOUTME: Tests for per-conversation run records and capability probing
package core

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/harper/sidekick-pipeline/internal/models"
)

func TestSessions_RecordAndForget(t *testing.T) {
	s := NewSessions()
	if _, ok := s.LastRun("a"); ok {
		t.Fatal("LastRun() found a run in an empty registry")
	}

	s.Record("a", RunRecord{RunType: models.RunNormal, LastMessageHash: "h"})
	s.Record("b", RunRecord{RunType: models.RunSwipe})

	run, ok := s.LastRun("a")
	if !ok || run.LastMessageHash != "h" || run.RecordedAt.IsZero() {
		t.Errorf("LastRun(a) = %+v, %v", run, ok)
	}

	s.Forget("a")
	if _, ok := s.LastRun("a"); ok {
		t.Error("run still present after Forget")
	}
	if run, _ := s.LastRun("b"); run.RunType != models.RunSwipe {
		t.Errorf("LastRun(b) = %+v", run)
	}
}

func TestSessions_ConcurrentRecord(t *testing.T) {
	s := NewSessions()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Record("a", RunRecord{RunType: models.RunNormal})
			s.LastRun("a")
		}()
	}
	wg.Wait()
	if _, ok := s.LastRun("a"); !ok {
		t.Error("LastRun() missing after concurrent records")
	}
}

func TestCapability_ProbesOnce(t *testing.T) {
	probes := 0
	c := NewCapability("x", func(context.Context) bool {
		probes++
		return true
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if !c.Available(ctx) {
			t.Fatal("Available() = false")
		}
	}
	if probes != 1 {
		t.Errorf("probes = %d, want 1", probes)
	}

	c.Refresh()
	c.Available(ctx)
	if probes != 2 {
		t.Errorf("probes after Refresh = %d, want 2", probes)
	}
	if c.Name() != "x" {
		t.Errorf("Name() = %q", c.Name())
	}
}

func TestCapability_NilAndProbes(t *testing.T) {
	var c *Capability
	if c.Available(context.Background()) {
		t.Error("nil capability reported available")
	}
	c.Refresh()

	if NewCapability("none", nil).Available(context.Background()) {
		t.Error("capability without probe reported available")
	}

	sim := newFakeSimilarity()
	sim.failList = true
	if NewCapability("sim", similarityProbe(sim)).Available(context.Background()) {
		t.Error("failing similarity reported available")
	}

	if !NewCapability("plain", collaboratorProbe(struct{}{})).Available(context.Background()) {
		t.Error("collaborator without Probe reported unavailable")
	}
	if NewCapability("tables", collaboratorProbe(&fakeTables{probeErr: errors.New("down")})).Available(context.Background()) {
		t.Error("failing Probe reported available")
	}
}
