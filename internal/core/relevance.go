// ABOUTME: Ranks retrievable candidates against a free-text query
// ABOUTME: Keyword, vector, hybrid, and passthrough modes with safe fallbacks
package core

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/harper/sidekick-pipeline/internal/config"
	"github.com/harper/sidekick-pipeline/internal/models"
	"github.com/harper/sidekick-pipeline/internal/util"
)

const (
	maxKeywordTokens = 20
	minKeywordLen    = 4
	hybridPoolCap    = 20

	collectionPrefix = "sidekick_"
)

var (
	nonWordPattern  = regexp.MustCompile(`[^\p{L}\p{N}_]+`)
	slugUnsafeChars = regexp.MustCompile(`[^a-z0-9_]+`)
)

// RankOutcome distinguishes an empty pool from a pool with nothing worth injecting
type RankOutcome int

const (
	NoCandidates RankOutcome = iota
	NoneRelevant
	Selected
)

func (o RankOutcome) String() string {
	switch o {
	case NoCandidates:
		return "no_candidates"
	case NoneRelevant:
		return "none_relevant"
	default:
		return "selected"
	}
}

// RankRequest is one ranking call
type RankRequest struct {
	Candidates      []models.Candidate
	Query           string
	Limit           int
	Mode            string
	Threshold       float64
	EmbeddingSource string
}

// RankResult holds at most Limit items
type RankResult struct {
	Outcome RankOutcome
	Items   []models.Candidate
}

// RelevanceFilter ranks candidates. The similarity backend is optional.
type RelevanceFilter struct {
	sim    Similarity
	cap    *Capability
	logger Logger

	mu      sync.Mutex
	indexed map[string]map[string]struct{} // collection -> identity|hash
	seeded  map[string]bool
}

// NewRelevanceFilter creates a filter. A nil capability means the backend is never used.
func NewRelevanceFilter(sim Similarity, capability *Capability, logger Logger) *RelevanceFilter {
	return &RelevanceFilter{
		sim:     sim,
		cap:     capability,
		logger:  orNoop(logger),
		indexed: make(map[string]map[string]struct{}),
		seeded:  make(map[string]bool),
	}
}

// Rank selects up to req.Limit candidates according to req.Mode
func (f *RelevanceFilter) Rank(ctx context.Context, req RankRequest) RankResult {
	if len(req.Candidates) == 0 {
		return RankResult{Outcome: NoCandidates}
	}
	if req.Limit <= 0 {
		return RankResult{Outcome: NoneRelevant}
	}

	var items []models.Candidate
	switch req.Mode {
	case config.ModeKeyword:
		items = KeywordRank(req.Candidates, req.Query, req.Limit)
	case config.ModeVector:
		items = f.vectorRank(ctx, req.Candidates, req)
	case config.ModeHybrid:
		pool := KeywordRank(req.Candidates, req.Query, min(hybridPoolCap, len(req.Candidates)))
		if len(pool) == 0 {
			pool = req.Candidates
		}
		items = f.vectorRank(ctx, pool, req)
	default:
		items = firstK(req.Candidates, req.Limit)
	}

	if len(items) == 0 {
		return RankResult{Outcome: NoneRelevant}
	}
	return RankResult{Outcome: Selected, Items: items}
}

// KeywordTokens lowercases the query and returns up to 20 distinct tokens longer than three characters
func KeywordTokens(query string) []string {
	cleaned := nonWordPattern.ReplaceAllString(strings.ToLower(query), " ")
	seen := make(map[string]struct{})
	var tokens []string
	for _, tok := range strings.Fields(cleaned) {
		if utf8.RuneCountInString(tok) < minKeywordLen {
			continue
		}
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		tokens = append(tokens, tok)
		if len(tokens) == maxKeywordTokens {
			break
		}
	}
	return tokens
}

// KeywordRank scores candidates by the number of distinct query tokens they contain
func KeywordRank(candidates []models.Candidate, query string, limit int) []models.Candidate {
	tokens := KeywordTokens(query)
	if len(tokens) == 0 || limit <= 0 {
		return nil
	}

	scored := make([]models.Candidate, 0, len(candidates))
	for _, c := range candidates {
		text := strings.ToLower(c.Text)
		score := 0
		for _, tok := range tokens {
			if strings.Contains(text, tok) {
				score++
			}
		}
		if score == 0 {
			continue
		}
		c.Score = float64(score)
		scored = append(scored, c)
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	return firstK(scored, limit)
}

func firstK(candidates []models.Candidate, k int) []models.Candidate {
	if k > len(candidates) {
		k = len(candidates)
	}
	if k <= 0 {
		return nil
	}
	out := make([]models.Candidate, k)
	copy(out, candidates[:k])
	return out
}

// CollectionFor maps an owning group onto a similarity collection id
func CollectionFor(owner string) string {
	slug := slugUnsafeChars.ReplaceAllString(strings.ToLower(owner), "_")
	slug = strings.Trim(slug, "_")
	if slug == "" {
		slug = "default"
	}
	return collectionPrefix + slug
}

// rankKey scopes a candidate identity to the similarity collection it is indexed in
func rankKey(collection, identity string) string {
	return collection + "|" + identity
}

// vectorRank never fails. Any backend problem degrades to the first K of pool.
func (f *RelevanceFilter) vectorRank(ctx context.Context, pool []models.Candidate, req RankRequest) []models.Candidate {
	if f.sim == nil || !f.cap.Available(ctx) {
		return firstK(pool, req.Limit)
	}

	existing, err := f.sim.ListCollections(ctx)
	if err != nil {
		f.logger.Warn("similarity backend unavailable, using candidate order", "error", err)
		return firstK(pool, req.Limit)
	}
	live := make(map[string]bool, len(existing))
	for _, name := range existing {
		live[name] = true
	}

	byCollection := make(map[string][]models.Candidate)
	var order []string
	for _, c := range pool {
		col := CollectionFor(c.Owner())
		if _, ok := byCollection[col]; !ok {
			order = append(order, col)
		}
		byCollection[col] = append(byCollection[col], c)
	}

	byIdentity := make(map[string]models.Candidate, len(pool))
	for _, col := range order {
		if live[col] {
			f.seed(ctx, col)
		} else {
			f.forget(col)
		}
		for _, c := range byCollection[col] {
			byIdentity[rankKey(col, c.Identity())] = c
			if err := f.ensureIndexed(ctx, col, c, req.EmbeddingSource); err != nil {
				f.logger.Warn("similarity insert failed, using candidate order", "collection", col, "error", err)
				return firstK(pool, req.Limit)
			}
		}
	}

	best := make(map[string]float64)
	for _, col := range order {
		topK := max(req.Limit, f.indexedCount(col))
		hits, err := f.sim.Query(ctx, col, req.Query, topK, req.Threshold, req.EmbeddingSource)
		if err != nil {
			f.logger.Warn("similarity query failed, using candidate order", "collection", col, "error", err)
			return firstK(pool, req.Limit)
		}
		for _, h := range hits {
			id := rankKey(col, h.MetadataString("key"))
			if _, ok := byIdentity[id]; !ok {
				continue
			}
			if s, seen := best[id]; !seen || h.Score > s {
				best[id] = h.Score
			}
		}
	}

	ranked := make([]models.Candidate, 0, len(best))
	for _, c := range pool {
		id := rankKey(CollectionFor(c.Owner()), c.Identity())
		score, ok := best[id]
		if !ok {
			continue
		}
		delete(best, id)
		c.Score = score
		ranked = append(ranked, c)
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	return firstK(ranked, req.Limit)
}

// seed loads the markers of a live collection once per filter, so items stored
// by an earlier process are not embedded again
func (f *RelevanceFilter) seed(ctx context.Context, collection string) {
	f.mu.Lock()
	done := f.seeded[collection]
	f.mu.Unlock()
	if done {
		return
	}
	inv, ok := f.sim.(SimilarityInventory)
	if !ok {
		return
	}
	hashes, err := inv.Hashes(ctx, collection)
	if err != nil {
		f.logger.Debug("could not read stored similarity items", "collection", collection, "error", err)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.indexed[collection] == nil {
		f.indexed[collection] = make(map[string]struct{})
	}
	for key, hash := range hashes {
		f.indexed[collection][key+"|"+hash] = struct{}{}
	}
	f.seeded[collection] = true
}

func (f *RelevanceFilter) ensureIndexed(ctx context.Context, collection string, c models.Candidate, source string) error {
	identity := c.Identity()
	hash := util.ContentHash(c.Text)
	marker := identity + "|" + hash

	f.mu.Lock()
	_, done := f.indexed[collection][marker]
	f.mu.Unlock()
	if done {
		return nil
	}

	meta := map[string]any{"key": identity, "group": c.Owner()}
	if err := f.sim.Insert(ctx, collection, c.Text, hash, meta, source); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.indexed[collection] == nil {
		f.indexed[collection] = make(map[string]struct{})
	}
	f.indexed[collection][marker] = struct{}{}
	return nil
}

func (f *RelevanceFilter) indexedCount(collection string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.indexed[collection])
}

func (f *RelevanceFilter) forget(collection string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.indexed, collection)
	delete(f.seeded, collection)
}
