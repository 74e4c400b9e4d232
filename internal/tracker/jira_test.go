package tracker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketsmith/internal/types"
)

func newTestJira(t *testing.T, handler http.HandlerFunc) *Jira {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	j, err := NewJira(srv.URL, "dev@example.com", "token", "PROJ")
	require.NoError(t, err)
	return j
}

func TestGetItem(t *testing.T) {
	j := newTestJira(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/api/2/issue/PROJ-1", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "dev@example.com", user)
		assert.Equal(t, "token", pass)

		json.NewEncoder(w).Encode(map[string]any{
			"id":  "10001",
			"key": "PROJ-1",
			"fields": map[string]any{
				"summary":     "The epic",
				"description": "Long form",
				"issuetype":   map[string]any{"name": "Epic"},
				"status":      map[string]any{"name": "To Do"},
			},
		})
	})

	item, err := j.GetItem(context.Background(), "PROJ-1")
	require.NoError(t, err)
	assert.Equal(t, "PROJ-1", item.Key)
	assert.Equal(t, "The epic", item.Summary)
	assert.Equal(t, "Epic", item.Type)
}

func TestCreateItemInjectsProjectAndType(t *testing.T) {
	j := newTestJira(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		fields := body["fields"].(map[string]any)
		assert.Equal(t, "PROJ", fields["project"].(map[string]any)["key"])
		assert.Equal(t, "Story", fields["issuetype"].(map[string]any)["name"])
		assert.Equal(t, "Login", fields["summary"])

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{"key": "PROJ-7"})
	})

	key, err := j.CreateItem(context.Background(), "Story", map[string]any{"summary": "Login"})
	require.NoError(t, err)
	assert.Equal(t, "PROJ-7", key)
}

func TestUpdateItemErrorSurfacesBody(t *testing.T) {
	j := newTestJira(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errorMessages":["field invalid"]}`, http.StatusBadRequest)
	})

	err := j.UpdateItem(context.Background(), "PROJ-1", map[string]any{"summary": "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "field invalid")
}

func TestItemFields(t *testing.T) {
	fields := ItemFields(types.WorkItem{
		Title:              "Login",
		Description:        "As a user...",
		TechnicalDomain:    "Backend",
		EffortPoints:       5,
		AcceptanceCriteria: []string{"valid creds succeed"},
		Dependencies:       []string{"TECHNICAL-TASK-1"},
	}, "PROJ-1")

	assert.Equal(t, "Login", fields["summary"])
	desc := fields["description"].(string)
	assert.Contains(t, desc, "valid creds succeed")
	assert.Contains(t, desc, "TECHNICAL-TASK-1")
	assert.Contains(t, desc, "Effort points: 5")
	assert.Equal(t, map[string]any{"key": "PROJ-1"}, fields["parent"])
}
