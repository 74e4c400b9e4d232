// Package revision implements natural-language revisions against
// persisted work items: interpret the request, derive a ChangeSet, and
// apply it as a pure merge.
package revision

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"ticketsmith/internal/logging"
	"ticketsmith/internal/types"
)

// The generator is asked to answer with a single JSON object wrapped in
// <changes> tags. The object may carry three sections: field_updates
// (scalar overwrites), list_append and list_remove (string lists keyed
// by field name).

var (
	changesTag = regexp.MustCompile(`(?s)<changes>\s*(\{.*\})\s*</changes>`)

	// Fallback patterns, one per section. Section values never contain
	// nested objects, so a flat brace match is sufficient.
	sectionPatterns = map[string]*regexp.Regexp{
		"field_updates": regexp.MustCompile(`"field_updates"\s*:\s*(\{[^{}]*\})`),
		"list_append":   regexp.MustCompile(`"list_append"\s*:\s*(\{[^{}]*\})`),
		"list_remove":   regexp.MustCompile(`"list_remove"\s*:\s*(\{[^{}]*\})`),
	}
)

// ParseChangeSet extracts a ChangeSet from generator output. The primary
// path decodes the JSON between <changes> tags; if that fails, an
// independent regex pass extracts each section by position. Both paths
// produce the same shape, never a partial merge of the two.
func ParseChangeSet(text string) (types.ChangeSet, error) {
	if m := changesTag.FindStringSubmatch(text); m != nil {
		var cs types.ChangeSet
		if err := json.Unmarshal([]byte(m[1]), &cs); err == nil {
			normalize(&cs)
			return cs, nil
		}
		logging.Revision("structured changeset parse failed, trying section fallback")
	}
	return parseSections(text)
}

func parseSections(text string) (types.ChangeSet, error) {
	cs := types.ChangeSet{}
	found := false

	if m := sectionPatterns["field_updates"].FindStringSubmatch(text); m != nil {
		var updates map[string]any
		if err := json.Unmarshal([]byte(m[1]), &updates); err == nil && len(updates) > 0 {
			cs.FieldUpdates = updates
			found = true
		}
	}
	for key, dst := range map[string]*map[string][]string{
		"list_append": &cs.ListAppends,
		"list_remove": &cs.ListRemovals,
	} {
		m := sectionPatterns[key].FindStringSubmatch(text)
		if m == nil {
			continue
		}
		var lists map[string][]string
		if err := json.Unmarshal([]byte(m[1]), &lists); err == nil && len(lists) > 0 {
			*dst = lists
			found = true
		}
	}

	if !found {
		return types.ChangeSet{}, fmt.Errorf("no changeset sections found in response")
	}
	normalize(&cs)
	return cs, nil
}

func normalize(cs *types.ChangeSet) {
	if cs.FieldUpdates == nil {
		cs.FieldUpdates = map[string]any{}
	}
	if cs.ListAppends == nil {
		cs.ListAppends = map[string][]string{}
	}
	if cs.ListRemovals == nil {
		cs.ListRemovals = map[string][]string{}
	}
}

// Apply merges a ChangeSet into a work item and returns the result. The
// input item is not modified. Scalar updates overwrite, appends skip
// values already present (so re-applying a changeset is harmless), and
// removals filter by exact equality. Unknown field names are logged and
// skipped.
func Apply(item types.WorkItem, cs types.ChangeSet) types.WorkItem {
	out := item
	out.RequiredSkills = clone(item.RequiredSkills)
	out.Dependencies = clone(item.Dependencies)
	out.AcceptanceCriteria = clone(item.AcceptanceCriteria)

	for field, v := range cs.FieldUpdates {
		if !applyScalar(&out, field, v) {
			logging.Revision("ignoring update to unknown field %q", field)
		}
	}
	for field, values := range cs.ListAppends {
		list := listField(&out, field)
		if list == nil {
			logging.Revision("ignoring append to unknown list field %q", field)
			continue
		}
		for _, v := range values {
			if v = strings.TrimSpace(v); v != "" && !contains(*list, v) {
				*list = append(*list, v)
			}
		}
	}
	for field, values := range cs.ListRemovals {
		list := listField(&out, field)
		if list == nil {
			logging.Revision("ignoring removal from unknown list field %q", field)
			continue
		}
		kept := (*list)[:0:0]
		for _, existing := range *list {
			if !contains(values, existing) {
				kept = append(kept, existing)
			}
		}
		*list = kept
	}
	return out
}

func applyScalar(item *types.WorkItem, field string, v any) bool {
	switch field {
	case "title":
		item.Title = types.AsString(v)
	case "description":
		item.Description = types.AsString(v)
	case "technical_domain":
		item.TechnicalDomain = types.AsString(v)
	case "complexity":
		item.Complexity = types.CoerceLevel(v)
	case "business_value":
		item.BusinessValue = types.CoerceLevel(v)
	case "story_points":
		item.EffortPoints = types.SnapPoints(v)
	case "suggested_assignee":
		item.SuggestedAssignee = types.AsString(v)
	default:
		return false
	}
	return true
}

func listField(item *types.WorkItem, field string) *[]string {
	switch field {
	case "required_skills":
		return &item.RequiredSkills
	case "dependencies":
		return &item.Dependencies
	case "acceptance_criteria":
		return &item.AcceptanceCriteria
	default:
		return nil
	}
}

func clone(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

func contains(list []string, v string) bool {
	for _, e := range list {
		if e == v {
			return true
		}
	}
	return false
}
