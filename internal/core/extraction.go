// ABOUTME: Validates and repairs the JSON state returned by the summarization model
// ABOUTME: Partial objects are kept and every missing required key is reported
package core

import (
	"encoding/json"
	"strings"

	"github.com/harper/sidekick-pipeline/internal/models"
	"github.com/tidwall/gjson"
	"github.com/tidwall/jsonc"
)

// InvalidJSONIssue is recorded when no JSON object can be recovered
const InvalidJSONIssue = "Invalid JSON from sidekick"

// RequiredStateFields are the top-level keys every extraction must carry
var RequiredStateFields = []string{
	"version",
	"rolling_summary",
	"anchors",
	"facts_state",
	"open_loops",
	"safety_constraints",
	"provenance",
}

// ParseExtraction decodes raw model output into state plus diagnostic issues.
// A nil state always comes with exactly one InvalidJSONIssue.
func ParseExtraction(raw string) (*models.ExtractedState, []string) {
	obj, ok := locateObject(raw)
	if !ok {
		return nil, []string{InvalidJSONIssue}
	}

	issues := []string{}
	for _, field := range RequiredStateFields {
		if !obj.Get(field).Exists() {
			issues = append(issues, "Missing field: "+field)
		}
	}
	return decodeState(obj), issues
}

// locateObject finds a JSON object in raw: the whole text, then the outermost
// brace slice, then that slice after stripping comments and trailing commas
func locateObject(raw string) (gjson.Result, bool) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return gjson.Result{}, false
	}
	if r, ok := parseObject(text); ok {
		return r, true
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return gjson.Result{}, false
	}
	slice := text[start : end+1]
	if r, ok := parseObject(slice); ok {
		return r, true
	}
	return parseObject(string(jsonc.ToJSON([]byte(slice))))
}

func parseObject(text string) (gjson.Result, bool) {
	if !gjson.Valid(text) {
		return gjson.Result{}, false
	}
	r := gjson.Parse(text)
	if !r.IsObject() {
		return gjson.Result{}, false
	}
	return r, true
}

// decodeState reads each known field leniently. Wrong types decode as empty.
func decodeState(obj gjson.Result) *models.ExtractedState {
	st := &models.ExtractedState{
		RollingSummary:    stringList(obj.Get("rolling_summary")),
		Anchors:           stringList(obj.Get("anchors")),
		OpenLoops:         stringList(obj.Get("open_loops")),
		SafetyConstraints: stringList(obj.Get("safety_constraints")),
		FactsState:        decodeFacts(obj.Get("facts_state")),
	}
	if v := obj.Get("version"); v.Type == gjson.String {
		st.Version = v.String()
	}
	if p := obj.Get("provenance"); p.Exists() {
		st.Provenance = json.RawMessage(p.Raw)
	}
	return st
}

func decodeFacts(r gjson.Result) models.FactsState {
	var facts models.FactsState
	if !r.IsObject() {
		return facts
	}

	r.ForEach(func(key, value gjson.Result) bool {
		switch key.String() {
		case "inventory":
			facts.Inventory = stringList(value)
		case "status":
			if value.IsObject() {
				status := models.StatusList{}
				value.ForEach(func(k, v gjson.Result) bool {
					status = append(status, models.StatusEntry{Key: k.String(), Value: models.ScalarText(v)})
					return true
				})
				facts.Status = status
			}
		case "quests":
			facts.Quests = decodeQuests(value)
		default:
			if facts.Extra == nil {
				facts.Extra = make(map[string]json.RawMessage)
			}
			facts.Extra[key.String()] = json.RawMessage(value.Raw)
		}
		return true
	})
	return facts
}

func decodeQuests(r gjson.Result) []models.Quest {
	if !r.IsArray() {
		return nil
	}
	var quests []models.Quest
	for _, q := range r.Array() {
		if !q.IsObject() {
			continue
		}
		quests = append(quests, models.Quest{
			Name:     models.ScalarText(q.Get("name")),
			Stage:    models.ScalarText(q.Get("stage")),
			NextStep: models.ScalarText(q.Get("next_step")),
		})
	}
	return quests
}

// stringList renders each array element as text, skipping nulls
func stringList(r gjson.Result) []string {
	if !r.IsArray() {
		return []string{}
	}
	out := []string{}
	for _, item := range r.Array() {
		if item.Type == gjson.Null {
			continue
		}
		out = append(out, models.ScalarText(item))
	}
	return out
}
