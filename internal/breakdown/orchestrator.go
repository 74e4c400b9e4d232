// Package breakdown orchestrates the staged decomposition of an epic
// into user stories, technical tasks and subtasks.
package breakdown

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"ticketsmith/internal/config"
	"ticketsmith/internal/formatfix"
	"ticketsmith/internal/llm"
	"ticketsmith/internal/logging"
	"ticketsmith/internal/parser"
	"ticketsmith/internal/registry"
	"ticketsmith/internal/store"
	"ticketsmith/internal/tracker"
	"ticketsmith/internal/types"
)

// Orchestrator runs the breakdown pipeline:
// AnalyzeEpic -> GenerateStories -> GenerateTasks -> EnrichAndDecompose.
// Failures in story or task generation are fatal to the run; failures
// inside one decomposition unit only cost that unit its subtasks.
type Orchestrator struct {
	client  llm.Client
	fixer   *formatfix.Fixer
	store   *store.Store
	tracker tracker.Client // nil when the integration is disabled
	cfg     config.BreakdownConfig
	opts    llm.Options
}

// Result is the aggregate output of one run.
type Result struct {
	ExecutionID string
	Analysis    types.EpicAnalysis
	Stories     []types.WorkItem
	Tasks       []types.WorkItem
	Subtasks    map[string][]types.WorkItem // keyed by parent title
}

// New creates an orchestrator from loaded configuration.
func New(client llm.Client, st *store.Store, trk tracker.Client, cfg *config.Config) *Orchestrator {
	return &Orchestrator{
		client:  client,
		fixer:   formatfix.New(client, cfg.Breakdown.FormatFixAttempts),
		store:   st,
		tracker: trk,
		cfg:     cfg.Breakdown,
		opts: llm.Options{
			Temperature: cfg.LLM.Temperature,
			TopP:        cfg.LLM.TopP,
			TopK:        cfg.LLM.TopK,
			MaxTokens:   cfg.LLM.MaxTokens,
		},
	}
}

// Run breaks the epic down end to end and checkpoints the result.
func (o *Orchestrator) Run(ctx context.Context, epicKey, summary, description string) (*Result, error) {
	executionID := uuid.NewString()
	reg := registry.New()

	if err := o.store.CreateExecution(types.ExecutionRecord{
		ExecutionID: executionID,
		EpicKey:     epicKey,
		Status:      types.ExecutionInProgress,
		CreatedAt:   time.Now().UTC(),
	}); err != nil {
		return nil, err
	}
	logging.Breakdown("execution %s started for epic %s", executionID, epicKey)

	// Stage 1: analysis informs later prompts but is never fatal.
	analysis := o.analyzeEpic(ctx, summary, description)

	// Stage 2: user stories. A failure here aborts the run.
	stories, err := o.generateStories(ctx, summary, analysis)
	if err != nil {
		o.fatal(executionID, "GenerateStories", err)
		return nil, err
	}
	for i := range stories {
		stories[i].ID = reg.Assign(types.KindUserStory)
		stories[i].ParentID = epicKey
	}

	// Stage 3: technical tasks. Same fatality as stage 2.
	tasks, err := o.generateTasks(ctx, summary, stories)
	if err != nil {
		o.fatal(executionID, "GenerateTasks", err)
		return nil, err
	}
	for i := range tasks {
		tasks[i].ID = reg.Assign(types.KindTechnicalTask)
		tasks[i].ParentID = epicKey
	}

	doc := &ProposedDocument{
		ExecutionID:    executionID,
		EpicKey:        epicKey,
		Analysis:       analysis,
		UserStories:    stories,
		TechnicalTasks: tasks,
		Subtasks:       map[string][]types.WorkItem{},
	}

	// Sequential join point: every high-level item now has an id, so
	// free-text dependencies can be resolved before fan-out begins.
	registry.ResolveDependencies(doc.HighLevelItems())

	doc.IDCounters = reg.Counters()
	if err := o.checkpoint(executionID, doc); err != nil {
		o.fatal(executionID, "Checkpoint", err)
		return nil, err
	}

	// Stage 4: concurrent enrichment and decomposition.
	doc.Subtasks = o.enrichAndDecompose(ctx, reg, doc.HighLevelItems())
	doc.IDCounters = reg.Counters()

	if err := o.checkpoint(executionID, doc); err != nil {
		o.fatal(executionID, "Checkpoint", err)
		return nil, err
	}
	o.publish(ctx, doc)

	if err := o.store.UpdateExecutionStatus(executionID, types.ExecutionSuccess); err != nil {
		return nil, err
	}
	logging.Breakdown("execution %s finished: %d stories, %d tasks, %d decomposed parents",
		executionID, len(doc.UserStories), len(doc.TechnicalTasks), len(doc.Subtasks))

	return &Result{
		ExecutionID: executionID,
		Analysis:    analysis,
		Stories:     doc.UserStories,
		Tasks:       doc.TechnicalTasks,
		Subtasks:    doc.Subtasks,
	}, nil
}

func (o *Orchestrator) analyzeEpic(ctx context.Context, summary, description string) types.EpicAnalysis {
	resp, err := o.client.Generate(ctx, analysisPrompt(summary, description), o.opts)
	if err != nil {
		logging.BreakdownWarn("epic analysis call failed, continuing without analysis: %v", err)
		return types.EpicAnalysis{}
	}

	fixed := o.fixer.Fix(ctx, resp, formatfix.Target{
		Kind:  "epic analysis",
		Shape: analysisShape,
		Parse: func(text string) (any, string) {
			a, ok := parser.ParseEpicAnalysis(text)
			if !ok {
				return nil, "response is not a complete <analysis> document"
			}
			return a, ""
		},
	})
	if fixed == nil {
		logging.BreakdownWarn("epic analysis unfixable, continuing without analysis")
		return types.EpicAnalysis{}
	}
	return fixed.(types.EpicAnalysis)
}

func (o *Orchestrator) generateStories(ctx context.Context, summary string, analysis types.EpicAnalysis) ([]types.WorkItem, error) {
	resp, err := o.client.Generate(ctx, storiesPrompt(summary, analysis), o.opts)
	if err != nil {
		return nil, fmt.Errorf("story generation failed: %w", err)
	}
	items := o.fixItems(ctx, resp, "user stories", storyShape, types.KindUserStory)
	if items == nil {
		return nil, fmt.Errorf("story generation produced no parseable stories")
	}
	return items, nil
}

func (o *Orchestrator) generateTasks(ctx context.Context, summary string, stories []types.WorkItem) ([]types.WorkItem, error) {
	resp, err := o.client.Generate(ctx, tasksPrompt(summary, stories), o.opts)
	if err != nil {
		return nil, fmt.Errorf("task generation failed: %w", err)
	}
	items := o.fixItems(ctx, resp, "technical tasks", taskShape, types.KindTechnicalTask)
	if items == nil {
		return nil, fmt.Errorf("task generation produced no parseable tasks")
	}
	return items, nil
}

// fixItems runs an array payload through the fixer. Element-level errors
// are tolerated as long as at least one item survives; payload-level
// errors make the attempt incomplete.
func (o *Orchestrator) fixItems(ctx context.Context, text, kindName, shape string, kind types.Kind) []types.WorkItem {
	v := o.fixer.Fix(ctx, text, formatfix.Target{
		Kind:  kindName,
		Shape: shape,
		Parse: func(t string) (any, string) {
			items, errs := parser.ParseItems(kind, t)
			for _, e := range errs {
				if e.Index < 0 {
					return nil, e.Reason
				}
			}
			if len(items) == 0 {
				return nil, "no valid elements in array"
			}
			for _, e := range errs {
				logging.BreakdownWarn("dropped %s", e)
			}
			return items, ""
		},
	})
	if v == nil {
		return nil
	}
	return v.([]types.WorkItem)
}

// enrichAndDecompose fans out one unit per high-level item, bounded by
// the configured limiter (default min(GOMAXPROCS, item count)). A unit
// failure contributes zero subtasks and never aborts siblings; the
// aggregation is order-insensitive.
func (o *Orchestrator) enrichAndDecompose(ctx context.Context, reg *registry.Registry, parents []*types.WorkItem) map[string][]types.WorkItem {
	if len(parents) == 0 {
		return map[string][]types.WorkItem{}
	}
	limit := o.cfg.ConcurrencyLimit
	if limit <= 0 {
		limit = min(runtime.GOMAXPROCS(0), len(parents))
	}
	sem := semaphore.NewWeighted(int64(limit))

	var (
		mu  sync.Mutex
		out = make(map[string][]types.WorkItem, len(parents))
		wg  sync.WaitGroup
	)
	for _, parent := range parents {
		parent := parent
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				logging.BreakdownWarn("unit %s never started: %v", parent.Title, err)
				return
			}
			defer sem.Release(1)

			subs := o.processUnit(ctx, reg, parent)
			if len(subs) == 0 {
				return
			}
			mu.Lock()
			out[parent.Title] = subs
			mu.Unlock()
		}()
	}
	wg.Wait()
	return out
}

// processUnit is the private catch boundary of one fan-out unit: any
// failure, including a panic, degrades to zero subtasks.
func (o *Orchestrator) processUnit(ctx context.Context, reg *registry.Registry, parent *types.WorkItem) (subs []types.WorkItem) {
	defer func() {
		if r := recover(); r != nil {
			logging.BreakdownWarn("unit %q panicked: %v", parent.Title, r)
			subs = nil
		}
	}()

	o.enrich(ctx, reg, parent)

	resp, err := o.client.Generate(ctx, subtasksPrompt(*parent), o.opts)
	if err != nil {
		logging.BreakdownWarn("subtask generation for %q failed: %v", parent.Title, err)
		return nil
	}
	subs = o.fixItems(ctx, resp, "subtasks", subtaskShape, types.KindSubTask)
	if subs == nil {
		logging.BreakdownWarn("subtasks for %q unparseable, contributing none", parent.Title)
		return nil
	}

	for i := range subs {
		subs[i].ID = reg.Assign(types.KindSubTask)
		subs[i].ParentID = parent.ID
		if subs[i].TechnicalDomain == "" {
			subs[i].TechnicalDomain = parent.TechnicalDomain
		}
	}

	// Second-level fan-out: per-subtask test plans, bounded separately
	// so one slow unit cannot monopolize the generator.
	if o.cfg.EnableTestPlans {
		g := new(errgroup.Group)
		g.SetLimit(2)
		for i := range subs {
			i := i
			g.Go(func() error {
				if plan := o.testPlan(ctx, subs[i]); plan != nil {
					if subs[i].Enrichment == nil {
						subs[i].Enrichment = &types.EnrichmentBundle{}
					}
					subs[i].Enrichment.TestPlan = plan
				}
				return nil
			})
		}
		g.Wait()
	}
	return subs
}

// enrich requests the feature-flagged enrichments for one high-level
// item in parallel. Each enrichment failure leaves its slot empty; the
// goroutines write disjoint fields of the bundle. Scenario ids come from
// the execution registry so they stay unique across items.
func (o *Orchestrator) enrich(ctx context.Context, reg *registry.Registry, item *types.WorkItem) {
	bundle := item.Enrichment
	if bundle == nil {
		bundle = &types.EnrichmentBundle{}
	}

	g := new(errgroup.Group)
	if o.cfg.EnableResearch {
		g.Go(func() error {
			resp, err := o.client.Generate(ctx, researchPrompt(*item), o.opts)
			if err != nil {
				logging.BreakdownWarn("research for %q failed: %v", item.Title, err)
				return nil
			}
			if rs, ok := parser.ParseResearchSummary(resp); ok {
				bundle.ResearchSummary = rs
			}
			return nil
		})
	}
	if o.cfg.EnableCodeBlocks {
		g.Go(func() error {
			resp, err := o.client.Generate(ctx, codeExamplesPrompt(*item), o.opts)
			if err != nil {
				logging.BreakdownWarn("code examples for %q failed: %v", item.Title, err)
				return nil
			}
			bundle.CodeExamples = parser.ParseCodeExamples(resp)
			return nil
		})
	}
	if o.cfg.EnableTestPlans {
		g.Go(func() error {
			resp, err := o.client.Generate(ctx, testPlanPrompt(*item), o.opts)
			if err != nil {
				logging.BreakdownWarn("test plan for %q failed: %v", item.Title, err)
				return nil
			}
			if plan, ok := parser.ParseTestPlan(resp); ok {
				bundle.TestPlan = plan
			}
			return nil
		})
	}
	if o.cfg.EnableScenarios {
		g.Go(func() error {
			resp, err := o.client.Generate(ctx, scenariosPrompt(*item), o.opts)
			if err != nil {
				logging.BreakdownWarn("scenarios for %q failed: %v", item.Title, err)
				return nil
			}
			if scenarios, ok := parser.ParseScenarios(resp); ok {
				for i := range scenarios {
					scenarios[i].ID = reg.Assign(types.KindScenario)
				}
				bundle.Scenarios = scenarios
			}
			return nil
		})
	}
	g.Wait()

	if !bundle.Empty() {
		item.Enrichment = bundle
	}
}

func (o *Orchestrator) testPlan(ctx context.Context, item types.WorkItem) *types.TestPlan {
	resp, err := o.client.Generate(ctx, testPlanPrompt(item), o.opts)
	if err != nil {
		logging.BreakdownWarn("test plan for %q failed: %v", item.Title, err)
		return nil
	}
	plan, ok := parser.ParseTestPlan(resp)
	if !ok {
		return nil
	}
	return plan
}

// checkpoint writes the proposed document artifact and upserts every
// item as an entity.
func (o *Orchestrator) checkpoint(executionID string, doc *ProposedDocument) error {
	content, err := doc.Marshal()
	if err != nil {
		return err
	}
	if err := o.store.SaveExecutionArtifact(executionID, ArtifactProposedTickets, content); err != nil {
		return err
	}

	items := make([]types.WorkItem, 0, len(doc.UserStories)+len(doc.TechnicalTasks))
	items = append(items, doc.UserStories...)
	items = append(items, doc.TechnicalTasks...)
	for _, subs := range doc.Subtasks {
		items = append(items, subs...)
	}
	return o.store.SaveEntities(executionID, items)
}

// publish mirrors the finished breakdown into the issue tracker, best
// effort: a tracker error is logged and skipped, never fatal.
func (o *Orchestrator) publish(ctx context.Context, doc *ProposedDocument) {
	if o.tracker == nil {
		return
	}

	trackerKeys := make(map[string]string) // entity id -> tracker key
	create := func(itemType string, item types.WorkItem, parentKey string) {
		key, err := o.tracker.CreateItem(ctx, itemType, tracker.ItemFields(item, parentKey))
		if err != nil {
			logging.BreakdownWarn("tracker create for %q failed: %v", item.Title, err)
			return
		}
		trackerKeys[item.ID] = key
	}

	for _, s := range doc.UserStories {
		create("Story", s, doc.EpicKey)
	}
	for _, t := range doc.TechnicalTasks {
		create("Task", t, doc.EpicKey)
	}
	for _, subs := range doc.Subtasks {
		for _, sub := range subs {
			create("Sub-task", sub, trackerKeys[sub.ParentID])
		}
	}
}

func (o *Orchestrator) fatal(executionID, stage string, cause error) {
	logging.Get(logging.CategoryBreakdown).Error("execution %s fatal at %s: %v", executionID, stage, cause)
	report := fmt.Sprintf("stage: %s\nerror: %v\ntime: %s\n", stage, cause, time.Now().UTC().Format(time.RFC3339))
	if err := o.store.SaveExecutionArtifact(executionID, ArtifactFatalError, report); err != nil {
		logging.Get(logging.CategoryBreakdown).Error("failed to record fatal artifact: %v", err)
	}
	if err := o.store.UpdateExecutionStatus(executionID, types.ExecutionFatal); err != nil {
		logging.Get(logging.CategoryBreakdown).Error("failed to mark execution fatal: %v", err)
	}
}
