package parser

import (
	"strings"

	"ticketsmith/internal/logging"
	"ticketsmith/internal/types"
)

// Enrichment payloads degrade internally instead of producing
// ErrorRecords: a bad enrichment never blocks the item it belongs to.

// ParseResearchSummary parses a research-summary object. Returns ok=false
// when the payload is malformed or a field is missing; the caller
// substitutes its default.
func ParseResearchSummary(text string) (*types.ResearchSummary, bool) {
	v, errRec := decodeValue(types.KindResearchSummary, text)
	if errRec != nil {
		logging.ParserDebug("%s", errRec)
		return nil, false
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	for _, key := range []string{"pain_points", "success_metrics", "similar_implementations", "modern_practices"} {
		if _, present := obj[key]; !present {
			logging.ParserDebug("research summary missing %q", key)
			return nil, false
		}
	}
	return &types.ResearchSummary{
		PainPoints:             cleanJoined(obj["pain_points"]),
		SuccessMetrics:         cleanJoined(obj["success_metrics"]),
		SimilarImplementations: cleanJoined(obj["similar_implementations"]),
		ModernPractices:        cleanJoined(obj["modern_practices"]),
	}, true
}

// ParseCodeExamples parses an array of code blocks. On any failure it
// falls back to a single plain-text block holding the raw response, so
// the generated material is never silently lost.
func ParseCodeExamples(text string) []types.CodeExample {
	fallback := []types.CodeExample{{
		Language:    "text",
		Description: "Raw generator response (parsing failed)",
		Code:        strings.TrimSpace(text),
	}}

	arr, errRec := decodeArray(types.KindCodeExample, text)
	if errRec != nil {
		logging.ParserDebug("%s", errRec)
		return fallback
	}

	var blocks []types.CodeExample
	for _, el := range arr {
		obj, ok := el.(map[string]any)
		if !ok {
			continue
		}
		lang := strings.ToLower(cleanText(types.AsString(obj["language"])))
		desc := cleanText(types.AsString(obj["description"]))
		code := strings.TrimSpace(types.AsString(obj["code"]))
		if lang == "" || desc == "" || code == "" {
			continue
		}
		blocks = append(blocks, types.CodeExample{Language: lang, Description: desc, Code: code})
	}
	if len(blocks) == 0 {
		return fallback
	}
	return blocks
}

// ParseTestPlan parses a test-plan object.
func ParseTestPlan(text string) (*types.TestPlan, bool) {
	v, errRec := decodeValue(types.KindTestPlan, text)
	if errRec != nil {
		logging.ParserDebug("%s", errRec)
		return nil, false
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	plan := &types.TestPlan{
		UnitTests:        types.AsStringSlice(obj["unit_tests"]),
		IntegrationTests: types.AsStringSlice(obj["integration_tests"]),
		EdgeCases:        types.AsStringSlice(obj["edge_cases"]),
	}
	if len(plan.UnitTests) == 0 && len(plan.IntegrationTests) == 0 && len(plan.EdgeCases) == 0 {
		return nil, false
	}
	return plan, true
}

var scenarioKeywords = map[string]bool{
	"Given": true,
	"When":  true,
	"Then":  true,
	"And":   true,
}

// ParseScenarios parses an array of behavior scenarios. Steps with an
// unknown keyword are dropped; scenarios left with no steps are dropped.
func ParseScenarios(text string) ([]types.Scenario, bool) {
	arr, errRec := decodeArray(types.KindScenario, text)
	if errRec != nil {
		logging.ParserDebug("scenarios: %s", errRec.Reason)
		return nil, false
	}

	var scenarios []types.Scenario
	for _, el := range arr {
		obj, ok := el.(map[string]any)
		if !ok {
			continue
		}
		name := cleanText(types.AsString(obj["name"]))
		rawSteps, _ := obj["steps"].([]any)
		if name == "" || len(rawSteps) == 0 {
			continue
		}
		var steps []types.ScenarioStep
		for _, rs := range rawSteps {
			stepObj, ok := rs.(map[string]any)
			if !ok {
				continue
			}
			keyword := capitalize(cleanText(types.AsString(stepObj["keyword"])))
			stepText := cleanText(types.AsString(stepObj["text"]))
			if !scenarioKeywords[keyword] || stepText == "" {
				continue
			}
			steps = append(steps, types.ScenarioStep{Keyword: keyword, Text: stepText})
		}
		if len(steps) == 0 {
			continue
		}
		scenarios = append(scenarios, types.Scenario{Name: name, Steps: steps})
	}
	return scenarios, len(scenarios) > 0
}

func capitalize(s string) string {
	s = strings.ToLower(s)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// cleanJoined normalizes a field that may arrive as a string or a list.
func cleanJoined(v any) string {
	if list, ok := v.([]any); ok {
		parts := make([]string, 0, len(list))
		for _, e := range list {
			if s := cleanText(strings.ReplaceAll(types.AsString(e), "**", "")); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "\n")
	}
	return cleanText(strings.ReplaceAll(types.AsString(v), "**", ""))
}
