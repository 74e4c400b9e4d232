// Package store persists executions, their artifacts, generated entities
// and revision requests in a local SQLite database.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"ticketsmith/internal/logging"
	"ticketsmith/internal/types"
)

// Store wraps the SQLite database. database/sql serializes access; no
// extra locking is needed here.
type Store struct {
	db     *sql.DB
	dbPath string
}

// Open initializes the SQLite database at the given path, creating the
// directory and schema as needed.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS executions (
		execution_id TEXT PRIMARY KEY,
		epic_key TEXT NOT NULL,
		status TEXT NOT NULL,
		parent_execution_id TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_executions_epic ON executions(epic_key);

	CREATE TABLE IF NOT EXISTS artifacts (
		execution_id TEXT NOT NULL,
		name TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (execution_id, name)
	);

	CREATE TABLE IF NOT EXISTS entities (
		execution_id TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		title TEXT NOT NULL,
		payload TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (execution_id, entity_id)
	);

	CREATE TABLE IF NOT EXISTS revisions (
		revision_id TEXT PRIMARY KEY,
		execution_id TEXT NOT NULL,
		target_entity_id TEXT NOT NULL,
		raw_change_text TEXT NOT NULL,
		interpreted_change_text TEXT,
		status TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		decided_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_revisions_execution ON revisions(execution_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateExecution records a new breakdown run.
func (s *Store) CreateExecution(rec types.ExecutionRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO executions (execution_id, epic_key, status, parent_execution_id, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.ExecutionID, rec.EpicKey, string(rec.Status), nullable(rec.ParentExecutionID), rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create execution %s: %w", rec.ExecutionID, err)
	}
	logging.Store("created execution %s for epic %s", rec.ExecutionID, rec.EpicKey)
	return nil
}

// UpdateExecutionStatus sets the terminal status of a run.
func (s *Store) UpdateExecutionStatus(executionID string, status types.ExecutionStatus) error {
	res, err := s.db.Exec(`UPDATE executions SET status = ? WHERE execution_id = ?`, string(status), executionID)
	if err != nil {
		return fmt.Errorf("failed to update execution %s: %w", executionID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("execution %s not found", executionID)
	}
	logging.Store("execution %s -> %s", executionID, status)
	return nil
}

// GetExecution loads one execution record.
func (s *Store) GetExecution(executionID string) (types.ExecutionRecord, error) {
	var rec types.ExecutionRecord
	var parent sql.NullString
	var status string
	err := s.db.QueryRow(
		`SELECT execution_id, epic_key, status, parent_execution_id, created_at
		 FROM executions WHERE execution_id = ?`, executionID,
	).Scan(&rec.ExecutionID, &rec.EpicKey, &status, &parent, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return rec, fmt.Errorf("execution %s not found", executionID)
	}
	if err != nil {
		return rec, fmt.Errorf("failed to load execution %s: %w", executionID, err)
	}
	rec.Status = types.ExecutionStatus(status)
	rec.ParentExecutionID = parent.String
	return rec, nil
}

// ListExecutions returns the runs recorded for an epic, newest first.
func (s *Store) ListExecutions(epicKey string) ([]types.ExecutionRecord, error) {
	rows, err := s.db.Query(
		`SELECT execution_id, epic_key, status, parent_execution_id, created_at
		 FROM executions WHERE epic_key = ? ORDER BY created_at DESC, execution_id`, epicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions for %s: %w", epicKey, err)
	}
	defer rows.Close()

	var recs []types.ExecutionRecord
	for rows.Next() {
		var rec types.ExecutionRecord
		var parent sql.NullString
		var status string
		if err := rows.Scan(&rec.ExecutionID, &rec.EpicKey, &status, &parent, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Status = types.ExecutionStatus(status)
		rec.ParentExecutionID = parent.String
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// SaveExecutionArtifact stores (or replaces) one named artifact of a run,
// such as the proposed-tickets checkpoint or a fatal-error report.
func (s *Store) SaveExecutionArtifact(executionID, name, content string) error {
	_, err := s.db.Exec(
		`INSERT INTO artifacts (execution_id, name, content) VALUES (?, ?, ?)
		 ON CONFLICT(execution_id, name) DO UPDATE SET content = excluded.content, created_at = CURRENT_TIMESTAMP`,
		executionID, name, content,
	)
	if err != nil {
		return fmt.Errorf("failed to save artifact %s/%s: %w", executionID, name, err)
	}
	logging.Store("saved artifact %s/%s (%d bytes)", executionID, name, len(content))
	return nil
}

// LoadExecutionArtifact retrieves one named artifact of a run.
func (s *Store) LoadExecutionArtifact(executionID, name string) (string, error) {
	var content string
	err := s.db.QueryRow(
		`SELECT content FROM artifacts WHERE execution_id = ? AND name = ?`, executionID, name,
	).Scan(&content)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("artifact %s/%s not found", executionID, name)
	}
	if err != nil {
		return "", fmt.Errorf("failed to load artifact %s/%s: %w", executionID, name, err)
	}
	return content, nil
}

// SaveEntity upserts one generated work item under its execution.
func (s *Store) SaveEntity(executionID string, item types.WorkItem) error {
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to encode entity %s: %w", item.ID, err)
	}
	_, err = s.db.Exec(
		`INSERT INTO entities (execution_id, entity_id, kind, title, payload) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(execution_id, entity_id) DO UPDATE SET
		   kind = excluded.kind, title = excluded.title, payload = excluded.payload, updated_at = CURRENT_TIMESTAMP`,
		executionID, item.ID, string(item.Kind), item.Title, string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to save entity %s/%s: %w", executionID, item.ID, err)
	}
	return nil
}

// SaveEntities upserts a batch of work items in one transaction.
func (s *Store) SaveEntities(executionID string, items []types.WorkItem) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO entities (execution_id, entity_id, kind, title, payload) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(execution_id, entity_id) DO UPDATE SET
		   kind = excluded.kind, title = excluded.title, payload = excluded.payload, updated_at = CURRENT_TIMESTAMP`)
	if err != nil {
		return fmt.Errorf("failed to prepare entity insert: %w", err)
	}
	defer stmt.Close()

	for _, item := range items {
		payload, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("failed to encode entity %s: %w", item.ID, err)
		}
		if _, err := stmt.Exec(executionID, item.ID, string(item.Kind), item.Title, string(payload)); err != nil {
			return fmt.Errorf("failed to save entity %s/%s: %w", executionID, item.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit entities: %w", err)
	}
	logging.Store("saved %d entities for execution %s", len(items), executionID)
	return nil
}

// GetEntityByExecutionAndID loads one work item.
func (s *Store) GetEntityByExecutionAndID(executionID, entityID string) (types.WorkItem, error) {
	var payload string
	err := s.db.QueryRow(
		`SELECT payload FROM entities WHERE execution_id = ? AND entity_id = ?`, executionID, entityID,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return types.WorkItem{}, fmt.Errorf("entity %s/%s not found", executionID, entityID)
	}
	if err != nil {
		return types.WorkItem{}, fmt.Errorf("failed to load entity %s/%s: %w", executionID, entityID, err)
	}
	var item types.WorkItem
	if err := json.Unmarshal([]byte(payload), &item); err != nil {
		return types.WorkItem{}, fmt.Errorf("failed to decode entity %s/%s: %w", executionID, entityID, err)
	}
	return item, nil
}

// UpdateEntity replaces the stored payload of an existing work item.
func (s *Store) UpdateEntity(executionID string, item types.WorkItem) error {
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to encode entity %s: %w", item.ID, err)
	}
	res, err := s.db.Exec(
		`UPDATE entities SET kind = ?, title = ?, payload = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE execution_id = ? AND entity_id = ?`,
		string(item.Kind), item.Title, string(payload), executionID, item.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update entity %s/%s: %w", executionID, item.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("entity %s/%s not found", executionID, item.ID)
	}
	return nil
}

// ListEntities returns all work items of a run, ordered by entity id.
func (s *Store) ListEntities(executionID string) ([]types.WorkItem, error) {
	rows, err := s.db.Query(
		`SELECT payload FROM entities WHERE execution_id = ? ORDER BY entity_id`, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities for %s: %w", executionID, err)
	}
	defer rows.Close()

	var items []types.WorkItem
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var item types.WorkItem
		if err := json.Unmarshal([]byte(payload), &item); err != nil {
			return nil, fmt.Errorf("failed to decode entity payload: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// SaveRevision inserts a new revision request.
func (s *Store) SaveRevision(rev types.RevisionRequest) error {
	_, err := s.db.Exec(
		`INSERT INTO revisions (revision_id, execution_id, target_entity_id, raw_change_text,
		   interpreted_change_text, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rev.RevisionID, rev.ExecutionID, rev.TargetEntityID, rev.RawChangeText,
		rev.InterpretedChangeText, string(rev.Status), rev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save revision %s: %w", rev.RevisionID, err)
	}
	logging.Store("saved revision %s (%s)", rev.RevisionID, rev.Status)
	return nil
}

// GetRevision loads one revision request.
func (s *Store) GetRevision(revisionID string) (types.RevisionRequest, error) {
	var rev types.RevisionRequest
	var status string
	var interpreted sql.NullString
	var decided sql.NullTime
	err := s.db.QueryRow(
		`SELECT revision_id, execution_id, target_entity_id, raw_change_text,
		   interpreted_change_text, status, created_at, decided_at
		 FROM revisions WHERE revision_id = ?`, revisionID,
	).Scan(&rev.RevisionID, &rev.ExecutionID, &rev.TargetEntityID, &rev.RawChangeText,
		&interpreted, &status, &rev.CreatedAt, &decided)
	if err == sql.ErrNoRows {
		return rev, fmt.Errorf("revision %s not found", revisionID)
	}
	if err != nil {
		return rev, fmt.Errorf("failed to load revision %s: %w", revisionID, err)
	}
	rev.InterpretedChangeText = interpreted.String
	rev.Status = types.RevisionStatus(status)
	if decided.Valid {
		t := decided.Time
		rev.DecidedAt = &t
	}
	return rev, nil
}

// UpdateRevisionStatus moves a revision through its lifecycle, stamping
// the decision time for ACCEPTED and REJECTED.
func (s *Store) UpdateRevisionStatus(revisionID string, status types.RevisionStatus) error {
	var decided any
	if status == types.RevisionAccepted || status == types.RevisionRejected {
		decided = time.Now().UTC()
	}
	res, err := s.db.Exec(
		`UPDATE revisions SET status = ?, decided_at = COALESCE(?, decided_at) WHERE revision_id = ?`,
		string(status), decided, revisionID,
	)
	if err != nil {
		return fmt.Errorf("failed to update revision %s: %w", revisionID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("revision %s not found", revisionID)
	}
	logging.Store("revision %s -> %s", revisionID, status)
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
