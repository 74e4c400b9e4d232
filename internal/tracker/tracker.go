// Package tracker integrates with the issue tracker that owns the epics
// being broken down. The wire format and auth are confined here; the
// pipeline only sees Items and opaque ids.
package tracker

import "context"

// Item is the tracker-side view of a work item.
type Item struct {
	ID          string
	Key         string
	Summary     string
	Description string
	Type        string
	Status      string
}

// Client is the minimal surface the pipeline needs.
type Client interface {
	// GetItem fetches an issue by key or id.
	GetItem(ctx context.Context, id string) (Item, error)
	// CreateItem creates an issue of the given type and returns its key.
	CreateItem(ctx context.Context, itemType string, fields map[string]any) (string, error)
	// UpdateItem applies a partial field update to an existing issue.
	UpdateItem(ctx context.Context, id string, fields map[string]any) error
}
