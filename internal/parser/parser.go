// Package parser turns raw generator text into typed work items. Parsing
// never fails as a whole: a bad element degrades to an ErrorRecord in its
// source position and the rest of the collection survives.
package parser

import (
	"encoding/json"
	"fmt"
	"strings"

	"ticketsmith/internal/logging"
	"ticketsmith/internal/sanitize"
	"ticketsmith/internal/types"
)

// ErrorRecord marks one element (or the whole payload) that failed
// validation. Index is the zero-based source position of the element, or
// -1 for payload-level failures such as a missing or non-array top level.
type ErrorRecord struct {
	Index  int
	Kind   types.Kind
	Reason string
}

func (e ErrorRecord) String() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s payload: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("%s element %d: %s", e.Kind, e.Index, e.Reason)
}

// fieldRule is one row of a per-kind validation table. Rules run in order;
// assign receives the raw decoded value, or nil when the key is absent.
type fieldRule struct {
	key      string
	required bool
	assign   func(w *types.WorkItem, v any)
}

var defaultPoints = 3

func setTitle(w *types.WorkItem, v any)       { w.Title = cleanText(types.AsString(v)) }
func setDescription(w *types.WorkItem, v any) { w.Description = cleanText(types.AsString(v)) }
func setDomain(w *types.WorkItem, v any)      { w.TechnicalDomain = cleanText(types.AsString(v)) }
func setComplexity(w *types.WorkItem, v any)  { w.Complexity = types.CoerceLevel(v) }
func setBusiness(w *types.WorkItem, v any)    { w.BusinessValue = types.CoerceLevel(v) }
func setSkills(w *types.WorkItem, v any)      { w.RequiredSkills = types.AsStringSlice(v) }
func setDeps(w *types.WorkItem, v any)        { w.Dependencies = types.AsStringSlice(v) }
func setCriteria(w *types.WorkItem, v any)    { w.AcceptanceCriteria = types.AsStringSlice(v) }

func setPoints(w *types.WorkItem, v any) {
	if _, ok := types.AsFloat(v); !ok {
		w.EffortPoints = defaultPoints
		return
	}
	w.EffortPoints = types.SnapPoints(v)
}

func setAssignee(w *types.WorkItem, v any) {
	if s := cleanText(types.AsString(v)); s != "" {
		w.SuggestedAssignee = s
		return
	}
	w.SuggestedAssignee = "Unassigned"
}

var storyRules = []fieldRule{
	{"title", true, setTitle},
	{"description", true, setDescription},
	{"technical_domain", true, setDomain},
	{"complexity", false, setComplexity},
	{"business_value", false, setBusiness},
	{"story_points", false, setPoints},
	{"required_skills", false, setSkills},
	{"dependencies", false, setDeps},
	{"acceptance_criteria", false, setCriteria},
	{"suggested_assignee", false, setAssignee},
}

var taskRules = []fieldRule{
	{"title", true, setTitle},
	{"description", true, setDescription},
	{"technical_domain", true, setDomain},
	{"complexity", false, setComplexity},
	{"business_value", false, setBusiness},
	{"story_points", false, setPoints},
	{"required_skills", false, setSkills},
	{"dependencies", false, setDeps},
	{"acceptance_criteria", false, setCriteria},
	{"suggested_assignee", false, setAssignee},
	{"implementation_approach", false, func(w *types.WorkItem, v any) {
		s := cleanText(types.AsString(v))
		if s == "" {
			return
		}
		if w.Enrichment == nil {
			w.Enrichment = &types.EnrichmentBundle{}
		}
		w.Enrichment.ImplementationApproach = s
	}},
}

var subtaskRules = []fieldRule{
	{"title", true, setTitle},
	{"description", true, setDescription},
	{"technical_domain", false, setDomain},
	{"story_points", false, setPoints},
	{"required_skills", false, setSkills},
	{"dependencies", false, setDeps},
	{"acceptance_criteria", false, setCriteria},
	{"suggested_assignee", false, setAssignee},
}

func rulesFor(kind types.Kind) []fieldRule {
	switch kind {
	case types.KindTechnicalTask:
		return taskRules
	case types.KindSubTask:
		return subtaskRules
	default:
		return storyRules
	}
}

// ParseUserStories parses a generated user-story collection.
func ParseUserStories(text string) ([]types.WorkItem, []ErrorRecord) {
	return ParseItems(types.KindUserStory, text)
}

// ParseTechnicalTasks parses a generated technical-task collection.
func ParseTechnicalTasks(text string) ([]types.WorkItem, []ErrorRecord) {
	return ParseItems(types.KindTechnicalTask, text)
}

// ParseSubTasks parses a generated subtask collection.
func ParseSubTasks(text string) ([]types.WorkItem, []ErrorRecord) {
	return ParseItems(types.KindSubTask, text)
}

// ParseItems parses an array-of-objects payload into work items of the
// given kind. Invalid elements become ErrorRecords at their source index;
// a missing or non-array top level becomes a single ErrorRecord with
// index -1 and an empty item slice.
func ParseItems(kind types.Kind, text string) ([]types.WorkItem, []ErrorRecord) {
	arr, errRec := decodeArray(kind, text)
	if errRec != nil {
		return nil, []ErrorRecord{*errRec}
	}

	rules := rulesFor(kind)
	items := make([]types.WorkItem, 0, len(arr))
	var errs []ErrorRecord

	for i, el := range arr {
		obj, ok := el.(map[string]any)
		if !ok {
			errs = append(errs, ErrorRecord{Index: i, Kind: kind, Reason: "element is not an object"})
			continue
		}
		item, reason := applyRules(kind, rules, obj)
		if reason != "" {
			logging.ParserDebug("%s element %d rejected: %s", kind, i, reason)
			errs = append(errs, ErrorRecord{Index: i, Kind: kind, Reason: reason})
			continue
		}
		items = append(items, item)
	}

	logging.Parser("parsed %d/%d %s elements (%d errors)", len(items), len(arr), kind, len(errs))
	return items, errs
}

func applyRules(kind types.Kind, rules []fieldRule, obj map[string]any) (types.WorkItem, string) {
	w := types.WorkItem{Kind: kind}
	for _, r := range rules {
		v, present := obj[r.key]
		if r.required && (!present || cleanText(types.AsString(v)) == "") {
			return types.WorkItem{}, fmt.Sprintf("missing required field %q", r.key)
		}
		if !present {
			v = nil
		}
		r.assign(&w, v)
	}
	return w, ""
}

// decodeArray sanitizes the text and decodes it, requiring a top-level
// JSON array.
func decodeArray(kind types.Kind, text string) ([]any, *ErrorRecord) {
	v, errRec := decodeValue(kind, text)
	if errRec != nil {
		return nil, errRec
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, &ErrorRecord{Index: -1, Kind: kind, Reason: "top-level value is not an array"}
	}
	return arr, nil
}

func decodeValue(kind types.Kind, text string) (any, *ErrorRecord) {
	candidate, ok := sanitize.Sanitize(text)
	if !ok {
		return nil, &ErrorRecord{Index: -1, Kind: kind, Reason: "no JSON payload found"}
	}
	var v any
	if err := json.Unmarshal([]byte(candidate), &v); err != nil {
		return nil, &ErrorRecord{Index: -1, Kind: kind, Reason: "payload does not parse: " + err.Error()}
	}
	return v, nil
}

// cleanText collapses runs of whitespace into single spaces.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
