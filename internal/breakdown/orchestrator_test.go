package breakdown

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"ticketsmith/internal/config"
	"ticketsmith/internal/llm"
	"ticketsmith/internal/registry"
	"ticketsmith/internal/store"
	"ticketsmith/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// opencensus starts a global stats worker in its package init;
		// it is not created by the code under test.
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)
}

const analysisResponse = `<analysis>
<main_objective>Ship onboarding</main_objective>
<stakeholders>
- Product
</stakeholders>
<core_requirements>
- Signup form
</core_requirements>
<technical_domains>
- Backend
</technical_domains>
</analysis>`

const storiesResponse = `[
	{"title": "Story A", "description": "As a user, I want to sign up, so that I can use the product", "technical_domain": "Backend", "story_points": 5},
	{"title": "Story B", "description": "As a user, I want to verify my email, so that my account is trusted", "technical_domain": "Backend", "dependencies": ["Story A", "None"]}
]`

const tasksResponse = `[
	{"title": "Provision mail service", "description": "Set up outbound email", "technical_domain": "Infra", "dependencies": ["Story A"]}
]`

const subtasksResponse = `[
	{"title": "Write handler", "description": "HTTP endpoint", "story_points": 2},
	{"title": "Add migration", "description": "users table", "story_points": 1}
]`

const researchResponse = `{
	"pain_points": "Teams underestimate verification flows",
	"success_metrics": "Signup conversion above 40%",
	"similar_implementations": "Auth0 onboarding",
	"modern_practices": "Magic links over passwords"
}`

const testPlanResponse = `{"unit_tests": ["validates email format"], "integration_tests": ["end to end signup"], "edge_cases": ["duplicate email"]}`

const scenariosResponse = `[
	{"name": "Successful signup", "steps": [
		{"keyword": "Given", "text": "a new visitor"},
		{"keyword": "When", "text": "they submit the form"},
		{"keyword": "Then", "text": "an account exists"}
	]},
	{"name": "Duplicate email", "steps": [
		{"keyword": "Given", "text": "an existing account"},
		{"keyword": "Then", "text": "signup is refused"}
	]}
]`

// stubClient answers by prompt family and tracks concurrent calls.
type stubClient struct {
	inflight    atomic.Int32
	maxInflight atomic.Int32
	calls       atomic.Int32
	failWhen    func(prompt string) bool
}

func (s *stubClient) Generate(ctx context.Context, prompt string, opts llm.Options) (string, error) {
	s.calls.Add(1)
	cur := s.inflight.Add(1)
	defer s.inflight.Add(-1)
	for {
		max := s.maxInflight.Load()
		if cur <= max || s.maxInflight.CompareAndSwap(max, cur) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond) // force units to overlap

	if s.failWhen != nil && s.failWhen(prompt) {
		return "", fmt.Errorf("stubbed generation failure")
	}
	switch {
	case strings.Contains(prompt, "Analyze the following epic"):
		return analysisResponse, nil
	case strings.Contains(prompt, "Break this epic into user stories"):
		return storiesResponse, nil
	case strings.Contains(prompt, "Identify the technical tasks"):
		return tasksResponse, nil
	case strings.Contains(prompt, "Decompose this"):
		return subtasksResponse, nil
	case strings.Contains(prompt, "Research prior art"):
		return researchResponse, nil
	case strings.Contains(prompt, "Draft a test plan"):
		return testPlanResponse, nil
	case strings.Contains(prompt, "Write behavior scenarios"):
		return scenariosResponse, nil
	default:
		return "", fmt.Errorf("unexpected prompt: %.60s", prompt)
	}
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Breakdown.ConcurrencyLimit = 2
	cfg.Breakdown.EnableResearch = false
	cfg.Breakdown.EnableCodeBlocks = false
	cfg.Breakdown.EnableTestPlans = false
	cfg.Breakdown.EnableScenarios = false
	return cfg
}

func newTestOrchestrator(t *testing.T, client llm.Client) (*Orchestrator, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(client, st, nil, testConfig()), st
}

func TestRunHappyPath(t *testing.T) {
	o, st := newTestOrchestrator(t, &stubClient{})

	res, err := o.Run(context.Background(), "PROJ-1", "Onboarding", "Users need to sign up")
	require.NoError(t, err)

	assert.Equal(t, "Ship onboarding", res.Analysis.MainObjective)
	require.Len(t, res.Stories, 2)
	require.Len(t, res.Tasks, 1)
	assert.Equal(t, "USER-STORY-1", res.Stories[0].ID)
	assert.Equal(t, "USER-STORY-2", res.Stories[1].ID)
	assert.Equal(t, "TECHNICAL-TASK-1", res.Tasks[0].ID)

	// "None" dropped, "Story A" resolved to its id.
	assert.Equal(t, []string{"USER-STORY-1"}, res.Stories[1].Dependencies)
	assert.Equal(t, []string{"USER-STORY-1"}, res.Tasks[0].Dependencies)

	// Every parent decomposed; subtasks carry their parent's id.
	require.Len(t, res.Subtasks, 3)
	for title, subs := range res.Subtasks {
		require.Len(t, subs, 2, "parent %s", title)
		for _, sub := range subs {
			assert.Equal(t, types.KindSubTask, sub.Kind)
			assert.NotEmpty(t, sub.ID)
			assert.NotEmpty(t, sub.ParentID)
		}
	}

	rec, err := st.GetExecution(res.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, types.ExecutionSuccess, rec.Status)

	content, err := st.LoadExecutionArtifact(res.ExecutionID, ArtifactProposedTickets)
	require.NoError(t, err)
	doc, err := LoadProposedDocument(content)
	require.NoError(t, err)
	assert.Len(t, doc.UserStories, 2)
	assert.Len(t, doc.Subtasks, 3)
	assert.Equal(t, 2, doc.IDCounters["USER-STORY"])
	assert.Equal(t, 6, doc.IDCounters["SUB-TASK"])

	// Entities queryable individually.
	item, err := st.GetEntityByExecutionAndID(res.ExecutionID, "USER-STORY-2")
	require.NoError(t, err)
	assert.Equal(t, "Story B", item.Title)
}

func TestRunStoryFailureIsFatal(t *testing.T) {
	client := &stubClient{failWhen: func(prompt string) bool {
		return strings.Contains(prompt, "Break this epic into user stories")
	}}
	o, st := newTestOrchestrator(t, client)

	_, err := o.Run(context.Background(), "PROJ-1", "Onboarding", "desc")
	require.Error(t, err)

	execs, err := st.ListExecutions("PROJ-1")
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, types.ExecutionFatal, execs[0].Status)

	report, err := st.LoadExecutionArtifact(execs[0].ExecutionID, ArtifactFatalError)
	require.NoError(t, err)
	assert.Contains(t, report, "GenerateStories")
}

func TestFanOutIsolatesFailingUnit(t *testing.T) {
	client := &stubClient{failWhen: func(prompt string) bool {
		return strings.Contains(prompt, "Decompose this") && strings.Contains(prompt, "Unit 3")
	}}
	o, _ := newTestOrchestrator(t, client)

	parents := make([]*types.WorkItem, 5)
	for i := range parents {
		parents[i] = &types.WorkItem{
			ID:    fmt.Sprintf("USER-STORY-%d", i+1),
			Kind:  types.KindUserStory,
			Title: fmt.Sprintf("Unit %d", i+1),
		}
	}

	out := o.enrichAndDecompose(context.Background(), registry.New(), parents)

	require.Len(t, out, 4)
	for _, n := range []int{1, 2, 4, 5} {
		assert.Contains(t, out, fmt.Sprintf("Unit %d", n))
	}
	assert.NotContains(t, out, "Unit 3")
	assert.LessOrEqual(t, client.maxInflight.Load(), int32(2), "limiter must cap concurrent units")
}

func TestRerunDecomposesOnlyPendingParents(t *testing.T) {
	client := &stubClient{}
	o, st := newTestOrchestrator(t, client)

	doc := &ProposedDocument{
		ExecutionID: "exec-old",
		EpicKey:     "PROJ-1",
		UserStories: []types.WorkItem{
			{ID: "USER-STORY-1", Kind: types.KindUserStory, Title: "Done before",
				Description: "already decomposed"},
			{ID: "USER-STORY-2", Kind: types.KindUserStory, Title: "Still pending",
				Description: "never decomposed"},
		},
		Subtasks: map[string][]types.WorkItem{
			"Done before": {{ID: "SUB-TASK-1", Kind: types.KindSubTask, Title: "existing", ParentID: "USER-STORY-1"}},
		},
		IDCounters: map[string]int{"USER-STORY": 2, "SUB-TASK": 1},
	}
	content, err := doc.Marshal()
	require.NoError(t, err)
	require.NoError(t, st.CreateExecution(types.ExecutionRecord{
		ExecutionID: "exec-old", EpicKey: "PROJ-1", Status: types.ExecutionFailed, CreatedAt: time.Now().UTC(),
	}))
	require.NoError(t, st.SaveExecutionArtifact("exec-old", ArtifactProposedTickets, content))

	res, err := o.Rerun(context.Background(), "exec-old")
	require.NoError(t, err)

	// The already-decomposed parent is untouched, the pending one filled.
	assert.Equal(t, "SUB-TASK-1", res.Subtasks["Done before"][0].ID)
	require.Len(t, res.Subtasks["Still pending"], 2)
	// Restored counters mean new ids continue after SUB-TASK-1.
	assert.Equal(t, "SUB-TASK-2", res.Subtasks["Still pending"][0].ID)

	rec, err := st.GetExecution(res.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, "exec-old", rec.ParentExecutionID)
	assert.Equal(t, types.ExecutionSuccess, rec.Status)
}

func TestScenarioIDsUniqueAcrossUnits(t *testing.T) {
	o, _ := newTestOrchestrator(t, &stubClient{})
	o.cfg.EnableScenarios = true

	parents := []*types.WorkItem{
		{ID: "USER-STORY-1", Kind: types.KindUserStory, Title: "Signup"},
		{ID: "USER-STORY-2", Kind: types.KindUserStory, Title: "Verification"},
	}
	reg := registry.New()
	out := o.enrichAndDecompose(context.Background(), reg, parents)
	require.Len(t, out, 2)

	seen := map[string]bool{}
	for _, parent := range parents {
		require.NotNil(t, parent.Enrichment, "parent %s", parent.Title)
		require.Len(t, parent.Enrichment.Scenarios, 2, "parent %s", parent.Title)
		for _, sc := range parent.Enrichment.Scenarios {
			assert.Regexp(t, `^SCENARIO-\d+$`, sc.ID)
			assert.False(t, seen[sc.ID], "scenario id %s assigned twice", sc.ID)
			seen[sc.ID] = true
		}
	}
	assert.Len(t, seen, 4)
	assert.Equal(t, 4, reg.Counters()["SCENARIO"])
}

func TestEnrichmentFailureLeavesSlotEmpty(t *testing.T) {
	client := &stubClient{failWhen: func(prompt string) bool {
		return strings.Contains(prompt, "Research prior art")
	}}
	o, _ := newTestOrchestrator(t, client)
	o.cfg.EnableResearch = true
	o.cfg.EnableScenarios = true

	parents := []*types.WorkItem{{ID: "USER-STORY-1", Kind: types.KindUserStory, Title: "Signup"}}
	out := o.enrichAndDecompose(context.Background(), registry.New(), parents)

	// The failed research slot stays empty; the unit and its other
	// enrichments survive.
	require.Len(t, out["Signup"], 2)
	require.NotNil(t, parents[0].Enrichment)
	assert.Nil(t, parents[0].Enrichment.ResearchSummary)
	assert.NotEmpty(t, parents[0].Enrichment.Scenarios)
}

func TestTestPlansAttachToItemAndSubtasks(t *testing.T) {
	o, _ := newTestOrchestrator(t, &stubClient{})
	o.cfg.EnableTestPlans = true

	parents := []*types.WorkItem{{ID: "USER-STORY-1", Kind: types.KindUserStory, Title: "Signup"}}
	out := o.enrichAndDecompose(context.Background(), registry.New(), parents)

	require.NotNil(t, parents[0].Enrichment)
	require.NotNil(t, parents[0].Enrichment.TestPlan)
	assert.Equal(t, []string{"validates email format"}, parents[0].Enrichment.TestPlan.UnitTests)

	subs := out["Signup"]
	require.Len(t, subs, 2)
	for _, sub := range subs {
		require.NotNil(t, sub.Enrichment, "subtask %s", sub.Title)
		require.NotNil(t, sub.Enrichment.TestPlan, "subtask %s", sub.Title)
		assert.Equal(t, []string{"duplicate email"}, sub.Enrichment.TestPlan.EdgeCases)
	}
}

func TestEnrichmentTogglesOffMeansNoExtraCalls(t *testing.T) {
	client := &stubClient{}
	o, _ := newTestOrchestrator(t, client)

	parents := []*types.WorkItem{{ID: "USER-STORY-1", Kind: types.KindUserStory, Title: "Only unit"}}
	out := o.enrichAndDecompose(context.Background(), registry.New(), parents)

	require.Len(t, out, 1)
	// One subtask-generation call and nothing else.
	assert.Equal(t, int32(1), client.calls.Load())
}
