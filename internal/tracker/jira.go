package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ticketsmith/internal/logging"
	"ticketsmith/internal/types"
)

const requestTimeout = 30 * time.Second

// Jira talks to the Jira Cloud REST API v2 with basic auth.
type Jira struct {
	baseURL    string
	email      string
	apiToken   string
	projectKey string
	httpClient *http.Client
}

// NewJira creates a Jira client.
func NewJira(baseURL, email, apiToken, projectKey string) (*Jira, error) {
	if baseURL == "" || email == "" || apiToken == "" {
		return nil, fmt.Errorf("jira base URL, email and API token are required")
	}
	return &Jira{
		baseURL:    strings.TrimRight(baseURL, "/"),
		email:      email,
		apiToken:   apiToken,
		projectKey: projectKey,
		httpClient: &http.Client{Timeout: requestTimeout},
	}, nil
}

type jiraIssue struct {
	ID     string `json:"id"`
	Key    string `json:"key"`
	Fields struct {
		Summary     string `json:"summary"`
		Description string `json:"description"`
		IssueType   struct {
			Name string `json:"name"`
		} `json:"issuetype"`
		Status struct {
			Name string `json:"name"`
		} `json:"status"`
	} `json:"fields"`
}

// GetItem fetches an issue by key or id.
func (j *Jira) GetItem(ctx context.Context, id string) (Item, error) {
	var issue jiraIssue
	if err := j.do(ctx, http.MethodGet, "/rest/api/2/issue/"+id, nil, &issue); err != nil {
		return Item{}, err
	}
	return Item{
		ID:          issue.ID,
		Key:         issue.Key,
		Summary:     issue.Fields.Summary,
		Description: issue.Fields.Description,
		Type:        issue.Fields.IssueType.Name,
		Status:      issue.Fields.Status.Name,
	}, nil
}

// CreateItem creates an issue and returns its key.
func (j *Jira) CreateItem(ctx context.Context, itemType string, fields map[string]any) (string, error) {
	body := map[string]any{"fields": mergeFields(fields, map[string]any{
		"project":   map[string]any{"key": j.projectKey},
		"issuetype": map[string]any{"name": itemType},
	})}

	var created struct {
		Key string `json:"key"`
	}
	if err := j.do(ctx, http.MethodPost, "/rest/api/2/issue", body, &created); err != nil {
		return "", err
	}
	logging.Tracker("created %s %s", itemType, created.Key)
	return created.Key, nil
}

// UpdateItem applies a partial field update.
func (j *Jira) UpdateItem(ctx context.Context, id string, fields map[string]any) error {
	if err := j.do(ctx, http.MethodPut, "/rest/api/2/issue/"+id, map[string]any{"fields": fields}, nil); err != nil {
		return err
	}
	logging.Tracker("updated %s", id)
	return nil
}

func (j *Jira) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, j.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.SetBasicAuth(j.email, j.apiToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := j.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("jira request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read jira response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("jira %s %s returned %d: %s", method, path, resp.StatusCode, string(respBody))
	}
	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode jira response: %w", err)
		}
	}
	return nil
}

func mergeFields(base, overrides map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(overrides))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

// ItemFields renders a work item into Jira issue fields. Dependencies,
// skills and acceptance criteria are folded into the description since
// they have no standard Jira field.
func ItemFields(item types.WorkItem, parentKey string) map[string]any {
	var b strings.Builder
	b.WriteString(item.Description)

	writeList := func(heading string, values []string) {
		if len(values) == 0 {
			return
		}
		b.WriteString("\n\nh3. " + heading + "\n")
		for _, v := range values {
			b.WriteString("* " + v + "\n")
		}
	}
	writeList("Acceptance Criteria", item.AcceptanceCriteria)
	writeList("Required Skills", item.RequiredSkills)
	writeList("Dependencies", item.Dependencies)

	if item.TechnicalDomain != "" {
		b.WriteString("\nTechnical domain: " + item.TechnicalDomain)
	}
	b.WriteString(fmt.Sprintf("\nEffort points: %d", item.EffortPoints))

	fields := map[string]any{
		"summary":     item.Title,
		"description": b.String(),
	}
	if parentKey != "" {
		fields["parent"] = map[string]any{"key": parentKey}
	}
	return fields
}
