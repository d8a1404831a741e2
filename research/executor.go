package research

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/c360studio/scout/llm"
)

// Executor runs every planned sub-task concurrently and waits for all of
// them to reach a terminal state. Sub-tasks are fault-isolated: an error
// or panic in one becomes that task's failure placeholder and never
// cancels or corrupts a sibling. The executor itself never retries;
// retry budgets live inside the collaborators' individual external calls.
type Executor struct {
	runners map[TaskKind]Runner
	logger  *slog.Logger
	metrics MetricsRecorder
}

// NewExecutor creates an executor over the given runners. A kind with no
// runner is not an error here: executing it yields a failure placeholder,
// the same as a runner that fails at runtime.
func NewExecutor(runners []Runner, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}

	byKind := make(map[TaskKind]Runner, len(runners))
	for _, r := range runners {
		byKind[r.Kind()] = r
	}

	return &Executor{runners: byKind, logger: logger, metrics: nopMetrics{}}
}

// setMetrics installs a recorder for sub-task outcomes.
func (e *Executor) setMetrics(m MetricsRecorder) {
	if m != nil {
		e.metrics = m
	}
}

// Execute fans out the plan's sub-tasks, blocks until every one has
// finished, and returns a result for every planned kind. Progress events
// per kind follow pending -> running -> done/failed; completions are
// reported in whatever order they occur.
func (e *Executor) Execute(ctx context.Context, plan *TaskPlan, progress *Emitter) map[TaskKind]*SubTaskResult {
	for _, task := range plan.Tasks {
		progress.Emit(string(task.Kind), StatusPending, task.Description)
	}

	// Each goroutine owns exactly one slot; no lock needed until fan-in.
	results := make([]*SubTaskResult, len(plan.Tasks))

	var wg sync.WaitGroup
	for i, task := range plan.Tasks {
		wg.Add(1)
		go func(i int, task SubTaskSpec) {
			defer wg.Done()
			results[i] = e.runOne(ctx, task, progress)
		}(i, task)
	}
	wg.Wait()

	out := make(map[TaskKind]*SubTaskResult, len(results))
	for _, r := range results {
		out[r.Kind] = r
	}
	return out
}

// runOne executes a single sub-task to a terminal result. All failure
// modes, including panics in the runner, end as a failure placeholder.
func (e *Executor) runOne(ctx context.Context, task SubTaskSpec, progress *Emitter) (result *SubTaskResult) {
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("sub-task panicked",
				"kind", task.Kind,
				"panic", r)
			result = e.fail(task.Kind, started, fmt.Sprintf("panic: %v", r), progress)
		}
	}()

	progress.Emit(string(task.Kind), StatusRunning, "analysis started")

	runner, ok := e.runners[task.Kind]
	if !ok {
		e.logger.Error("no runner for sub-task kind", "kind", task.Kind)
		return e.fail(task.Kind, started, "collaborator unavailable for this task kind", progress)
	}

	tc := llm.GetTraceContext(ctx)
	tc.Stage = string(task.Kind)
	taskCtx := llm.WithTraceContext(ctx, tc)

	output, err := runner.Run(taskCtx, task)
	if err != nil {
		e.logger.Warn("sub-task failed",
			"kind", task.Kind,
			"duration", time.Since(started),
			"error", err)
		return e.fail(task.Kind, started, err.Error(), progress)
	}

	duration := time.Since(started)
	e.logger.Info("sub-task completed",
		"kind", task.Kind,
		"duration", duration,
		"calls", len(output.Trace))

	e.metrics.SubTaskCompleted(string(task.Kind), true, duration)
	progress.Emit(string(task.Kind), StatusDone, "analysis complete")

	return &SubTaskResult{
		Kind:     task.Kind,
		Status:   ResultSuccess,
		Output:   output,
		Duration: duration,
	}
}

// fail builds a failure placeholder and emits the failed event.
func (e *Executor) fail(kind TaskKind, started time.Time, detail string, progress *Emitter) *SubTaskResult {
	duration := time.Since(started)
	e.metrics.SubTaskCompleted(string(kind), false, duration)
	progress.Emit(string(kind), StatusFailed, detail)

	return &SubTaskResult{
		Kind:     kind,
		Status:   ResultFailure,
		Error:    detail,
		Duration: duration,
	}
}
