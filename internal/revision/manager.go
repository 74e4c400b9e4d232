package revision

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ticketsmith/internal/llm"
	"ticketsmith/internal/logging"
	"ticketsmith/internal/store"
	"ticketsmith/internal/types"
)

// Manager drives the revision lifecycle:
// PENDING -> ACCEPTED|REJECTED, ACCEPTED -> APPLIED.
type Manager struct {
	client llm.Client
	store  *store.Store
}

// NewManager creates a revision manager.
func NewManager(client llm.Client, st *store.Store) *Manager {
	return &Manager{client: client, store: st}
}

// Request interprets a raw change request against its target entity and
// records a PENDING revision. The interpreted text is prose meant for a
// human reviewer, not yet a ChangeSet.
func (m *Manager) Request(ctx context.Context, executionID, entityID, rawText string) (types.RevisionRequest, error) {
	entity, err := m.store.GetEntityByExecutionAndID(executionID, entityID)
	if err != nil {
		return types.RevisionRequest{}, err
	}

	interpreted, err := m.client.Generate(ctx, interpretPrompt(entity, rawText), llm.Options{
		Temperature: 0.2,
		MaxTokens:   2048,
	})
	if err != nil {
		return types.RevisionRequest{}, fmt.Errorf("failed to interpret revision: %w", err)
	}

	rev := types.RevisionRequest{
		RevisionID:            uuid.NewString(),
		ExecutionID:           executionID,
		TargetEntityID:        entityID,
		RawChangeText:         rawText,
		InterpretedChangeText: interpreted,
		Status:                types.RevisionPending,
		CreatedAt:             time.Now().UTC(),
	}
	if err := m.store.SaveRevision(rev); err != nil {
		return types.RevisionRequest{}, err
	}
	logging.Revision("created revision %s for %s/%s", rev.RevisionID, executionID, entityID)
	return rev, nil
}

// Accept moves a PENDING revision to ACCEPTED.
func (m *Manager) Accept(revisionID string) error {
	return m.transition(revisionID, types.RevisionPending, types.RevisionAccepted)
}

// Reject moves a PENDING revision to REJECTED.
func (m *Manager) Reject(revisionID string) error {
	return m.transition(revisionID, types.RevisionPending, types.RevisionRejected)
}

func (m *Manager) transition(revisionID string, from, to types.RevisionStatus) error {
	rev, err := m.store.GetRevision(revisionID)
	if err != nil {
		return err
	}
	if rev.Status != from {
		return fmt.Errorf("revision %s is %s, expected %s", revisionID, rev.Status, from)
	}
	return m.store.UpdateRevisionStatus(revisionID, to)
}

// Apply turns an ACCEPTED revision into a ChangeSet, merges it into the
// target entity and persists the result. Any failure after acceptance
// leaves the revision ACCEPTED so the apply can be retried.
func (m *Manager) Apply(ctx context.Context, revisionID string) (types.WorkItem, error) {
	rev, err := m.store.GetRevision(revisionID)
	if err != nil {
		return types.WorkItem{}, err
	}
	if rev.Status != types.RevisionAccepted {
		return types.WorkItem{}, fmt.Errorf("revision %s is %s, expected %s", revisionID, rev.Status, types.RevisionAccepted)
	}

	entity, err := m.store.GetEntityByExecutionAndID(rev.ExecutionID, rev.TargetEntityID)
	if err != nil {
		return types.WorkItem{}, err
	}

	response, err := m.client.Generate(ctx, changeSetPrompt(entity, rev.InterpretedChangeText), llm.Options{
		Temperature: 0.1,
		MaxTokens:   2048,
	})
	if err != nil {
		return types.WorkItem{}, fmt.Errorf("failed to derive changeset: %w", err)
	}

	cs, err := ParseChangeSet(response)
	if err != nil {
		return types.WorkItem{}, fmt.Errorf("revision %s: %w", revisionID, err)
	}
	if cs.Empty() {
		return types.WorkItem{}, fmt.Errorf("revision %s produced an empty changeset", revisionID)
	}

	updated := Apply(entity, cs)
	if err := m.store.UpdateEntity(rev.ExecutionID, updated); err != nil {
		// Revision stays ACCEPTED; the caller may retry the apply.
		return types.WorkItem{}, fmt.Errorf("failed to persist revised entity: %w", err)
	}
	if err := m.store.UpdateRevisionStatus(revisionID, types.RevisionApplied); err != nil {
		return types.WorkItem{}, err
	}
	logging.Revision("applied revision %s to %s", revisionID, rev.TargetEntityID)
	return updated, nil
}

func interpretPrompt(entity types.WorkItem, rawText string) string {
	snapshot, _ := json.MarshalIndent(entity, "", "  ")
	return fmt.Sprintf(`You review change requests against planned work items.

Current work item:
%s

Requested change:
%s

Restate, in two or three plain sentences, exactly what should change on
this work item. Mention only fields that exist on the item. Do not
produce JSON or apply the change.`, snapshot, rawText)
}

func changeSetPrompt(entity types.WorkItem, interpreted string) string {
	snapshot, _ := json.MarshalIndent(entity, "", "  ")
	return fmt.Sprintf(`Translate an approved change into a machine-readable diff.

Current work item:
%s

Approved change:
%s

Answer with exactly one <changes> block containing a single JSON object:

<changes>
{
  "field_updates": {"<field>": <new value>},
  "list_append": {"<list field>": ["<value>"]},
  "list_remove": {"<list field>": ["<value>"]}
}
</changes>

Scalar fields: title, description, technical_domain, complexity,
business_value, story_points, suggested_assignee.
List fields: required_skills, dependencies, acceptance_criteria.
Omit sections you do not need. No commentary outside the tags.`, snapshot, interpreted)
}
