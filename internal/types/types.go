// Package types defines the work-item domain model shared by the breakdown
// pipeline, the revision subsystem, and the persistence layer.
package types

import "time"

// Kind identifies the level of a work item in the breakdown hierarchy.
type Kind string

const (
	KindEpic          Kind = "Epic"
	KindUserStory     Kind = "User Story"
	KindTechnicalTask Kind = "Technical Task"
	KindSubTask       Kind = "Sub-task"
	KindScenario      Kind = "Scenario"
)

// Enrichment payload labels. They name parse sources in error records and
// logs; items of these kinds are never created and they get no registry ids.
const (
	KindResearchSummary Kind = "Research Summary"
	KindCodeExample     Kind = "Code Example"
	KindTestPlan        Kind = "Test Plan"
)

// Prefix returns the identifier prefix used by the entity registry,
// e.g. "USER-STORY" for "USER-STORY-3".
func (k Kind) Prefix() string {
	switch k {
	case KindEpic:
		return "EPIC"
	case KindUserStory:
		return "USER-STORY"
	case KindTechnicalTask:
		return "TECHNICAL-TASK"
	case KindSubTask:
		return "SUB-TASK"
	case KindScenario:
		return "SCENARIO"
	default:
		return "ITEM"
	}
}

// Level is a three-valued rating used for complexity and business value.
type Level string

const (
	LevelLow    Level = "Low"
	LevelMedium Level = "Medium"
	LevelHigh   Level = "High"
)

// EffortScale is the closed set of allowed effort point values.
// Every parsed or revised point value is snapped onto this scale.
var EffortScale = []int{1, 2, 3, 5, 8, 13}

// WorkItem is one generated unit of planned work. High-level items
// (stories, technical tasks) carry free-text dependency names until the
// registry resolves them to assigned IDs.
type WorkItem struct {
	ID                 string   `json:"id" yaml:"id"`
	Kind               Kind     `json:"kind" yaml:"type"`
	Title              string   `json:"title" yaml:"title"`
	Description        string   `json:"description" yaml:"description"`
	TechnicalDomain    string   `json:"technical_domain" yaml:"technical_domain"`
	Complexity         Level    `json:"complexity" yaml:"complexity"`
	BusinessValue      Level    `json:"business_value" yaml:"business_value"`
	EffortPoints       int      `json:"story_points" yaml:"story_points"`
	RequiredSkills     []string `json:"required_skills" yaml:"required_skills"`
	Dependencies       []string `json:"dependencies" yaml:"dependencies"`
	AcceptanceCriteria []string `json:"acceptance_criteria" yaml:"acceptance_criteria"`
	SuggestedAssignee  string   `json:"suggested_assignee,omitempty" yaml:"suggested_assignee,omitempty"`
	ParentID           string   `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`

	Enrichment *EnrichmentBundle `json:"enrichment,omitempty" yaml:"enrichment,omitempty"`
}

// EnrichmentBundle is optional side-data attached to a work item. Each part
// is independently feature-toggled; a missing part never blocks core-field
// parsing.
type EnrichmentBundle struct {
	ResearchSummary        *ResearchSummary `json:"research_summary,omitempty" yaml:"research_summary,omitempty"`
	CodeExamples           []CodeExample    `json:"code_examples,omitempty" yaml:"code_examples,omitempty"`
	TestPlan               *TestPlan        `json:"test_plan,omitempty" yaml:"test_plan,omitempty"`
	ImplementationApproach string           `json:"implementation_approach,omitempty" yaml:"implementation_approach,omitempty"`
	Scenarios              []Scenario       `json:"scenarios,omitempty" yaml:"scenarios,omitempty"`
}

// Empty reports whether the bundle carries no content at all.
func (b *EnrichmentBundle) Empty() bool {
	if b == nil {
		return true
	}
	return b.ResearchSummary == nil && len(b.CodeExamples) == 0 &&
		b.TestPlan == nil && b.ImplementationApproach == "" && len(b.Scenarios) == 0
}

// ResearchSummary captures prior-art findings for a story.
type ResearchSummary struct {
	PainPoints             string `json:"pain_points" yaml:"pain_points"`
	SuccessMetrics         string `json:"success_metrics" yaml:"success_metrics"`
	SimilarImplementations string `json:"similar_implementations" yaml:"similar_implementations"`
	ModernPractices        string `json:"modern_practices" yaml:"modern_practices"`
}

// CodeExample is one illustrative code block for a work item.
type CodeExample struct {
	Language    string `json:"language" yaml:"language"`
	Description string `json:"description" yaml:"description"`
	Code        string `json:"code" yaml:"code"`
}

// TestPlan lists the suggested verification work for an item.
type TestPlan struct {
	UnitTests        []string `json:"unit_tests" yaml:"unit_tests"`
	IntegrationTests []string `json:"integration_tests" yaml:"integration_tests"`
	EdgeCases        []string `json:"edge_cases" yaml:"edge_cases"`
}

// Scenario is a Gherkin-style behavior scenario.
type Scenario struct {
	ID    string         `json:"id,omitempty" yaml:"id,omitempty"`
	Name  string         `json:"name" yaml:"name"`
	Steps []ScenarioStep `json:"steps" yaml:"steps"`
}

// ScenarioStep is a single Given/When/Then/And step.
type ScenarioStep struct {
	Keyword string `json:"keyword" yaml:"keyword"`
	Text    string `json:"text" yaml:"text"`
}

// EpicAnalysis is the structured result of the analyze stage.
type EpicAnalysis struct {
	MainObjective    string   `json:"main_objective" yaml:"main_objective"`
	Stakeholders     []string `json:"stakeholders" yaml:"stakeholders"`
	CoreRequirements []string `json:"core_requirements" yaml:"core_requirements"`
	TechnicalDomains []string `json:"technical_domains" yaml:"technical_domains"`
	Dependencies     []string `json:"dependencies" yaml:"dependencies"`
	Challenges       []string `json:"challenges" yaml:"challenges"`
}

// Empty reports whether the analysis carries nothing useful. An empty
// analysis short-circuits story generation.
func (a EpicAnalysis) Empty() bool {
	return a.MainObjective == "" && len(a.TechnicalDomains) == 0 &&
		len(a.CoreRequirements) == 0
}

// ChangeSet is the atomic update unit produced by the revision subsystem.
// Field names in the maps are the JSON field names of WorkItem.
type ChangeSet struct {
	FieldUpdates map[string]any      `json:"field_updates"`
	ListAppends  map[string][]string `json:"list_append"`
	ListRemovals map[string][]string `json:"list_remove"`
}

// Empty reports whether the changeset would change nothing.
func (c ChangeSet) Empty() bool {
	return len(c.FieldUpdates) == 0 && len(c.ListAppends) == 0 && len(c.ListRemovals) == 0
}

// RevisionStatus tracks the revision lifecycle:
// PENDING -> ACCEPTED|REJECTED, ACCEPTED -> APPLIED.
type RevisionStatus string

const (
	RevisionPending  RevisionStatus = "PENDING"
	RevisionAccepted RevisionStatus = "ACCEPTED"
	RevisionRejected RevisionStatus = "REJECTED"
	RevisionApplied  RevisionStatus = "APPLIED"
)

// RevisionRequest is one natural-language change request against a
// persisted entity.
type RevisionRequest struct {
	RevisionID            string         `json:"revision_id"`
	ExecutionID           string         `json:"execution_id"`
	TargetEntityID        string         `json:"target_entity_id"`
	RawChangeText         string         `json:"raw_change_text"`
	InterpretedChangeText string         `json:"interpreted_change_text"`
	Status                RevisionStatus `json:"status"`
	CreatedAt             time.Time      `json:"created_at"`
	DecidedAt             *time.Time     `json:"decided_at,omitempty"`
}

// ExecutionStatus is the state of one breakdown run. IN_PROGRESS is the
// only non-terminal state.
type ExecutionStatus string

const (
	ExecutionInProgress ExecutionStatus = "IN_PROGRESS"
	ExecutionSuccess    ExecutionStatus = "SUCCESS"
	ExecutionFailed     ExecutionStatus = "FAILED"
	ExecutionFatal      ExecutionStatus = "FATAL_ERROR"
)

// ExecutionRecord summarizes one breakdown run for later lookup and reruns.
type ExecutionRecord struct {
	ExecutionID       string          `json:"execution_id"`
	EpicKey           string          `json:"epic_key"`
	Status            ExecutionStatus `json:"status"`
	ParentExecutionID string          `json:"parent_execution_id,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}
