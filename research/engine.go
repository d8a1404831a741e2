package research

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/scout/llm"
)

// MetricsRecorder receives run and sub-task outcomes. The metrics
// package provides the Prometheus implementation.
type MetricsRecorder interface {
	RunStarted()
	RunCompleted(path string, duration time.Duration)
	SubTaskCompleted(kind string, success bool, duration time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) RunStarted()                                  {}
func (nopMetrics) RunCompleted(string, time.Duration)           {}
func (nopMetrics) SubTaskCompleted(string, bool, time.Duration) {}

// Archiver persists completed runs. The storage package provides the
// JetStream KV implementation. Archiving is best-effort: failures are
// logged and never affect the run result.
type Archiver interface {
	SaveRun(ctx context.Context, state *RunState) error
}

// EngineConfig carries the planning defaults.
type EngineConfig struct {
	// DefaultEntities is the fallback entity set. Must be non-empty;
	// the plan-never-empty invariant depends on it.
	DefaultEntities []string

	// Identifiers maps lowercased entity names to ticker symbols.
	Identifiers map[string]string
}

// Engine is the single entry point for research runs. Construct one per
// process and call Run for each request.
type Engine struct {
	planner     *Planner
	executor    *Executor
	synthesizer *Synthesizer
	logger      *slog.Logger
	metrics     MetricsRecorder
	archiver    Archiver
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics installs a metrics recorder.
func WithMetrics(m MetricsRecorder) EngineOption {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithArchiver installs a run archiver.
func WithArchiver(a Archiver) EngineOption {
	return func(e *Engine) {
		e.archiver = a
	}
}

// NewEngine builds an engine. llmc may be nil: every LLM-dependent stage
// then takes its documented degraded path (default plan, fallback
// report). Runners missing for a kind likewise degrade to per-task
// failure placeholders at run time. The only construction failure is an
// empty default entity set, which would break the plan-never-empty
// invariant.
func NewEngine(llmc Completer, cfg EngineConfig, runners []Runner, opts ...EngineOption) (*Engine, error) {
	if len(cfg.DefaultEntities) == 0 {
		return nil, fmt.Errorf("default entity set must not be empty")
	}

	e := &Engine{
		logger:  slog.Default(),
		metrics: nopMetrics{},
	}

	for _, opt := range opts {
		opt(e)
	}

	plannerCfg := PlannerConfig{
		DefaultEntities: cfg.DefaultEntities,
		Identifiers:     cfg.Identifiers,
	}

	e.planner = NewPlanner(llmc, plannerCfg, e.logger)
	e.executor = NewExecutor(runners, e.logger)
	e.executor.setMetrics(e.metrics)
	e.synthesizer = NewSynthesizer(llmc, e.logger)

	return e, nil
}

// Run executes one research run: plan, fan out, synthesize. The observer
// is optional; nil means progress is discarded. Run always returns a
// RunState with an artifact. The error is non-nil only when the run
// aborted in the orchestrator itself, and even then the state carries a
// best-effort artifact describing the failure.
func (e *Engine) Run(ctx context.Context, request string, obs Observer) (state *RunState, err error) {
	started := time.Now()
	runID := uuid.New().String()

	state = &RunState{
		RunID:     runID,
		Request:   request,
		StartedAt: started,
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("run aborted", "run_id", runID, "panic", r)
			state.Artifact = fmt.Sprintf("# Research Run Failed\n\nRun %s aborted unexpectedly: %v\n", runID, r)
			state.Path = PathFallback
			state.CompletedAt = time.Now()
			err = fmt.Errorf("run aborted: %v", r)
		}
	}()

	ctx = llm.WithTraceContext(ctx, llm.TraceContext{RunID: runID})

	e.logger.Info("run started", "run_id", runID, "request", request)
	e.metrics.RunStarted()

	if obs != nil {
		obs = runTagger{run: runID, next: obs}
	}
	progress := NewEmitter(obs, e.logger)
	defer progress.Close()

	state.Plan = e.planner.Plan(ctx, request, progress)
	state.Results = e.executor.Execute(ctx, state.Plan, progress)
	state.Artifact, state.Path = e.synthesizer.Synthesize(ctx, request, state.Plan, state.Results, progress)
	state.CompletedAt = time.Now()

	duration := state.CompletedAt.Sub(started)
	e.metrics.RunCompleted(string(state.Path), duration)
	e.logger.Info("run completed",
		"run_id", runID,
		"path", state.Path,
		"entities", len(state.Plan.Entities()),
		"duration", duration)

	e.archive(ctx, state)

	return state, nil
}

// runTagger stamps the run ID onto events on their way to the caller's
// observer.
type runTagger struct {
	run  string
	next Observer
}

func (t runTagger) OnProgress(e Event) {
	e.Run = t.run
	t.next.OnProgress(e)
}

// archive saves the run if an archiver is configured.
func (e *Engine) archive(ctx context.Context, state *RunState) {
	if e.archiver == nil {
		return
	}

	if err := e.archiver.SaveRun(ctx, state); err != nil {
		e.logger.Warn("failed to archive run", "run_id", state.RunID, "error", err)
	}
}
