// ticketsmith breaks epics down into user stories, technical tasks and
// subtasks using an LLM, checkpoints every run locally, and optionally
// mirrors the result into Jira.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"ticketsmith/internal/breakdown"
	"ticketsmith/internal/config"
	"ticketsmith/internal/llm"
	"ticketsmith/internal/logging"
	"ticketsmith/internal/revision"
	"ticketsmith/internal/store"
	"ticketsmith/internal/tracker"
	"ticketsmith/internal/types"
)

var version = "0.3.0"

var (
	configPath string
	workspace  string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "ticketsmith",
	Short: "ticketsmith - LLM-driven epic breakdown",
	Long: `ticketsmith turns an epic into a reviewed set of user stories,
technical tasks and subtasks. Every run is checkpointed so it can be
continued, revised and pushed to the issue tracker later.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		if logger, err = zapCfg.Build(); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
		if verbose {
			cfg.Logging.Debug = true
			if cfg.Logging.Level == "" {
				cfg.Logging.Level = "debug"
			}
		}
		return logging.Initialize(workspace, logging.Options{
			DebugMode: cfg.Logging.Debug,
			Level:     cfg.Logging.Level,
		})
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var breakdownCmd = &cobra.Command{
	Use:   "breakdown [epic-key]",
	Short: "Break an epic down into stories, tasks and subtasks",
	Long: `Runs the full pipeline against one epic. With the tracker enabled the
epic summary and description are fetched from Jira; otherwise pass them
with --summary and --description.`,
	Args: cobra.ExactArgs(1),
	RunE: runBreakdown,
}

var rerunCmd = &cobra.Command{
	Use:   "rerun [execution-id]",
	Short: "Continue a previous run from its checkpoint",
	Long: `Loads the checkpoint of a previous execution and decomposes only the
items that did not get subtasks, keeping all assigned ids.`,
	Args: cobra.ExactArgs(1),
	RunE: runRerun,
}

var executionsCmd = &cobra.Command{
	Use:   "executions [epic-key]",
	Short: "List recorded runs for an epic",
	Args:  cobra.ExactArgs(1),
	RunE:  runExecutions,
}

var reviseCmd = &cobra.Command{
	Use:   "revise",
	Short: "Revise generated work items through change requests",
}

var reviseRequestCmd = &cobra.Command{
	Use:   "request [execution-id] [entity-id] [change text]",
	Short: "File a change request against a generated item",
	Args:  cobra.MinimumNArgs(3),
	RunE:  runReviseRequest,
}

var reviseAcceptCmd = &cobra.Command{
	Use:   "accept [revision-id]",
	Short: "Accept a pending revision",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return runReviseDecision(args[0], true) },
}

var reviseRejectCmd = &cobra.Command{
	Use:   "reject [revision-id]",
	Short: "Reject a pending revision",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return runReviseDecision(args[0], false) },
}

var reviseApplyCmd = &cobra.Command{
	Use:   "apply [revision-id]",
	Short: "Apply an accepted revision to its target item",
	Args:  cobra.ExactArgs(1),
	RunE:  runReviseApply,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ticketsmith %s\n", version)
	},
}

var (
	epicSummary     string
	epicDescription string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "ticketsmith.yaml", "path to config file")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", ".", "workspace directory for logs and state")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug output")

	breakdownCmd.Flags().StringVar(&epicSummary, "summary", "", "epic summary (when not fetched from the tracker)")
	breakdownCmd.Flags().StringVar(&epicDescription, "description", "", "epic description (when not fetched from the tracker)")

	reviseCmd.AddCommand(reviseRequestCmd, reviseAcceptCmd, reviseRejectCmd, reviseApplyCmd)
	rootCmd.AddCommand(breakdownCmd, rerunCmd, executionsCmd, reviseCmd, versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func openStore() (*store.Store, error) {
	return store.Open(cfg.Store.DatabasePath)
}

func newGenerator(ctx context.Context) (llm.Client, error) {
	if cfg.LLM.APIKey == "" {
		return nil, fmt.Errorf("llm.api_key is required (or set GEMINI_API_KEY)")
	}
	return llm.NewGemini(ctx, cfg.LLM.APIKey, cfg.LLM.Model)
}

func newTracker() (tracker.Client, error) {
	if !cfg.Tracker.Enabled {
		return nil, nil
	}
	return tracker.NewJira(cfg.Tracker.BaseURL, cfg.Tracker.Email, cfg.Tracker.APIToken, cfg.Tracker.ProjectKey)
}

func runBreakdown(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	epicKey := args[0]
	ctx := cmd.Context()

	client, err := newGenerator(ctx)
	if err != nil {
		return err
	}
	trk, err := newTracker()
	if err != nil {
		return err
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	summary, description := epicSummary, epicDescription
	if trk != nil && summary == "" {
		epic, err := trk.GetItem(ctx, epicKey)
		if err != nil {
			return fmt.Errorf("failed to fetch epic %s: %w", epicKey, err)
		}
		summary, description = epic.Summary, epic.Description
	}
	if summary == "" {
		return fmt.Errorf("no epic summary: enable the tracker or pass --summary")
	}

	logger.Info("starting breakdown", zap.String("epic", epicKey))
	res, err := breakdown.New(client, st, trk, cfg).Run(ctx, epicKey, summary, description)
	if err != nil {
		logger.Error("breakdown failed", zap.Error(err))
		return err
	}

	printResult(res)
	return nil
}

func runRerun(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	ctx := cmd.Context()

	client, err := newGenerator(ctx)
	if err != nil {
		return err
	}
	trk, err := newTracker()
	if err != nil {
		return err
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	res, err := breakdown.New(client, st, trk, cfg).Rerun(ctx, args[0])
	if err != nil {
		logger.Error("rerun failed", zap.Error(err))
		return err
	}
	printResult(res)
	return nil
}

func runExecutions(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	recs, err := st.ListExecutions(args[0])
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Printf("no executions recorded for %s\n", args[0])
		return nil
	}
	for _, rec := range recs {
		line := fmt.Sprintf("%s  %-11s  %s", rec.CreatedAt.Format("2006-01-02 15:04"), rec.Status, rec.ExecutionID)
		if rec.ParentExecutionID != "" {
			line += "  (rerun of " + rec.ParentExecutionID + ")"
		}
		fmt.Println(line)
	}
	return nil
}

func runReviseRequest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	client, err := newGenerator(ctx)
	if err != nil {
		return err
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	executionID, entityID := args[0], args[1]
	rawText := joinArgs(args[2:])

	rev, err := revision.NewManager(client, st).Request(ctx, executionID, entityID, rawText)
	if err != nil {
		return err
	}
	fmt.Printf("revision %s created (%s)\n\ninterpretation:\n%s\n", rev.RevisionID, rev.Status, rev.InterpretedChangeText)
	fmt.Println("\naccept with: ticketsmith revise accept", rev.RevisionID)
	return nil
}

func runReviseDecision(revisionID string, accept bool) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	m := revision.NewManager(nil, st)
	if accept {
		if err := m.Accept(revisionID); err != nil {
			return err
		}
		fmt.Printf("revision %s accepted; apply with: ticketsmith revise apply %s\n", revisionID, revisionID)
		return nil
	}
	if err := m.Reject(revisionID); err != nil {
		return err
	}
	fmt.Printf("revision %s rejected\n", revisionID)
	return nil
}

func runReviseApply(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	client, err := newGenerator(ctx)
	if err != nil {
		return err
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	updated, err := revision.NewManager(client, st).Apply(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("applied: %s (%s)\n", updated.ID, updated.Title)
	return nil
}

func printResult(res *breakdown.Result) {
	fmt.Printf("\nexecution %s\n\n", res.ExecutionID)
	if res.Analysis.MainObjective != "" {
		fmt.Printf("objective: %s\n\n", res.Analysis.MainObjective)
	}

	printItems := func(heading string, items []types.WorkItem) {
		if len(items) == 0 {
			return
		}
		fmt.Printf("%s:\n", heading)
		for _, it := range items {
			fmt.Printf("  %-18s %s (%d pts)\n", it.ID, it.Title, it.EffortPoints)
			for _, sub := range res.Subtasks[it.Title] {
				fmt.Printf("    %-16s %s\n", sub.ID, sub.Title)
			}
		}
		fmt.Println()
	}
	printItems("user stories", res.Stories)
	printItems("technical tasks", res.Tasks)
}

func joinArgs(args []string) string {
	out := ""
	for i, a := range args {
		if i > 0 {
			out += " "
		}
		out += a
	}
	return out
}
