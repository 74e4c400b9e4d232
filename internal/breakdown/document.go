package breakdown

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"ticketsmith/internal/types"
)

// Artifact names under which a run checkpoints itself.
const (
	ArtifactProposedTickets = "proposed_tickets"
	ArtifactFatalError      = "fatal_error"
)

// ProposedDocument is the per-execution checkpoint: every high-level
// item with its assigned id and resolved dependencies, subtasks grouped
// by parent title, and the registry counters so a rerun can continue the
// id sequence.
type ProposedDocument struct {
	ExecutionID    string                      `yaml:"execution_id"`
	EpicKey        string                      `yaml:"epic_key"`
	Analysis       types.EpicAnalysis          `yaml:"analysis"`
	UserStories    []types.WorkItem            `yaml:"user_stories"`
	TechnicalTasks []types.WorkItem            `yaml:"technical_tasks"`
	Subtasks       map[string][]types.WorkItem `yaml:"subtasks"`
	IDCounters     map[string]int              `yaml:"id_counters"`
}

// Marshal renders the document as YAML.
func (d *ProposedDocument) Marshal() (string, error) {
	data, err := yaml.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("failed to marshal proposed document: %w", err)
	}
	return string(data), nil
}

// LoadProposedDocument parses a checkpoint artifact.
func LoadProposedDocument(content string) (*ProposedDocument, error) {
	var doc ProposedDocument
	if err := yaml.Unmarshal([]byte(content), &doc); err != nil {
		return nil, fmt.Errorf("failed to parse proposed document: %w", err)
	}
	if doc.Subtasks == nil {
		doc.Subtasks = map[string][]types.WorkItem{}
	}
	if doc.IDCounters == nil {
		doc.IDCounters = map[string]int{}
	}
	return &doc, nil
}

// HighLevelItems returns stories then tasks as one slice of pointers,
// the order dependency resolution and fan-out both use.
func (d *ProposedDocument) HighLevelItems() []*types.WorkItem {
	items := make([]*types.WorkItem, 0, len(d.UserStories)+len(d.TechnicalTasks))
	for i := range d.UserStories {
		items = append(items, &d.UserStories[i])
	}
	for i := range d.TechnicalTasks {
		items = append(items, &d.TechnicalTasks[i])
	}
	return items
}
