package breakdown

import (
	"context"
	"time"

	"github.com/google/uuid"

	"ticketsmith/internal/logging"
	"ticketsmith/internal/registry"
	"ticketsmith/internal/types"
)

// Rerun continues a previous execution from its checkpoint. High-level
// items are carried over unchanged with their ids; only parents that
// contributed no subtasks are decomposed again. The id counters are
// restored so the new subtasks continue the sequence instead of reusing
// numbers.
func (o *Orchestrator) Rerun(ctx context.Context, parentExecutionID string) (*Result, error) {
	content, err := o.store.LoadExecutionArtifact(parentExecutionID, ArtifactProposedTickets)
	if err != nil {
		return nil, err
	}
	doc, err := LoadProposedDocument(content)
	if err != nil {
		return nil, err
	}

	executionID := uuid.NewString()
	if err := o.store.CreateExecution(types.ExecutionRecord{
		ExecutionID:       executionID,
		EpicKey:           doc.EpicKey,
		Status:            types.ExecutionInProgress,
		ParentExecutionID: parentExecutionID,
		CreatedAt:         time.Now().UTC(),
	}); err != nil {
		return nil, err
	}

	reg := registry.New()
	reg.Restore(doc.IDCounters)

	var pending []*types.WorkItem
	for _, item := range doc.HighLevelItems() {
		if len(doc.Subtasks[item.Title]) == 0 {
			pending = append(pending, item)
		}
	}
	logging.Breakdown("rerun %s of %s: %d of %d parents pending",
		executionID, parentExecutionID, len(pending), len(doc.UserStories)+len(doc.TechnicalTasks))

	redone := o.enrichAndDecompose(ctx, reg, pending)
	for title, subs := range redone {
		doc.Subtasks[title] = subs
	}

	doc.ExecutionID = executionID
	doc.IDCounters = reg.Counters()
	if err := o.checkpoint(executionID, doc); err != nil {
		o.fatal(executionID, "Checkpoint", err)
		return nil, err
	}
	if err := o.store.UpdateExecutionStatus(executionID, types.ExecutionSuccess); err != nil {
		return nil, err
	}

	return &Result{
		ExecutionID: executionID,
		Analysis:    doc.Analysis,
		Stories:     doc.UserStories,
		Tasks:       doc.TechnicalTasks,
		Subtasks:    doc.Subtasks,
	}, nil
}
