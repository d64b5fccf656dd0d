// ABOUTME: Hand-written collaborator fakes shared by core tests
// ABOUTME: Completion, similarity, and table-memory doubles that record calls

package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/harper/sidekick-pipeline/internal/models"
	"github.com/harper/sidekick-pipeline/internal/util"
)

type fakeCompleter struct {
	mu       sync.Mutex
	response string
	err      error
	calls    int
	requests []models.CompletionRequest
	onCall   func(n int)
	panicMsg string
}

func (f *fakeCompleter) Complete(ctx context.Context, req models.CompletionRequest) (string, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.requests = append(f.requests, req)
	hook := f.onCall
	f.mu.Unlock()

	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if hook != nil {
		hook(n)
	}
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func (f *fakeCompleter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeCounter struct {
	tokens int
	err    error
}

func (f fakeCounter) CountTokens(context.Context, string) (int, error) {
	return f.tokens, f.err
}

type fakeDoc struct {
	text     string
	hash     string
	metadata map[string]any
}

// fakeSimilarity scores documents by the share of query words they contain
type fakeSimilarity struct {
	mu          sync.Mutex
	collections map[string]map[string]fakeDoc // collection -> item key -> doc
	inserts     int
	queries     []int // topK per query
	failQuery   bool
	failList    bool
}

func newFakeSimilarity() *fakeSimilarity {
	return &fakeSimilarity{collections: make(map[string]map[string]fakeDoc)}
}

func (f *fakeSimilarity) Insert(_ context.Context, collection, text, hash string, metadata map[string]any, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.collections[collection] == nil {
		f.collections[collection] = make(map[string]fakeDoc)
	}
	key, _ := metadata["key"].(string)
	if key == "" {
		key = hash
	}
	f.collections[collection][key] = fakeDoc{text: text, hash: hash, metadata: metadata}
	f.inserts++
	return nil
}

func (f *fakeSimilarity) Hashes(_ context.Context, collection string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string)
	for key, doc := range f.collections[collection] {
		out[key] = doc.hash
	}
	return out, nil
}

func (f *fakeSimilarity) Query(_ context.Context, collection, text string, topK int, threshold float64, _ string) ([]models.SimilarityHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, topK)
	if f.failQuery {
		return nil, errors.New("similarity backend down")
	}

	words := strings.Fields(strings.ToLower(text))
	var hits []models.SimilarityHit
	for _, doc := range f.collections[collection] {
		lower := strings.ToLower(doc.text)
		matched := 0
		for _, w := range words {
			if strings.Contains(lower, w) {
				matched++
			}
		}
		if len(words) == 0 {
			continue
		}
		score := float64(matched) / float64(len(words))
		if score <= threshold || score == 0 {
			continue
		}
		hits = append(hits, models.SimilarityHit{Text: doc.text, Metadata: doc.metadata, Score: score})
	}
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (f *fakeSimilarity) ListCollections(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failList {
		return nil, errors.New("similarity backend down")
	}
	out := make([]string, 0, len(f.collections))
	for name := range f.collections {
		out = append(out, name)
	}
	return out, nil
}

type fakeTables struct {
	rows     []models.Candidate
	err      error
	probeErr error
}

func (f *fakeTables) Rows(context.Context) ([]models.Candidate, error) {
	return f.rows, f.err
}

func (f *fakeTables) Probe(context.Context) error {
	return f.probeErr
}

// transcript builds n alternating user/assistant messages
func transcript(n int) []models.Message {
	msgs := make([]models.Message, n)
	for i := range msgs {
		role := models.RoleAssistant
		if i%2 == 0 {
			role = models.RoleUser
		}
		msgs[i] = models.Message{
			Index:  i,
			Role:   role,
			Name:   string(role),
			Text:   fmt.Sprintf("message number %d with some story text", i),
			IsUser: role == models.RoleUser,
		}
	}
	return msgs
}

func lastHash(msgs []models.Message) string {
	return util.ContentHash(msgs[len(msgs)-1].Text)
}

const validExtraction = `{
  "version": "state.v1",
  "rolling_summary": ["The hero entered the cave.", "The hero found a map."],
  "anchors": [],
  "facts_state": {"inventory": ["map", "torch"], "status": {"hp": 10}, "quests": [{"name": "Find the dragon", "stage": "started", "next_step": "follow the map"}]},
  "open_loops": ["Who drew the map?"],
  "safety_constraints": [],
  "provenance": {"source": "test"}
}`
