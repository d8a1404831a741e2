package research_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/scout/research"
)

// fakeRunner is a scriptable sub-task runner.
type fakeRunner struct {
	kind research.TaskKind
	run  func(ctx context.Context, task research.SubTaskSpec) (*research.TaskOutput, error)
}

func (r *fakeRunner) Kind() research.TaskKind { return r.kind }

func (r *fakeRunner) Run(ctx context.Context, task research.SubTaskSpec) (*research.TaskOutput, error) {
	return r.run(ctx, task)
}

func okRunner(kind research.TaskKind, analysis string) *fakeRunner {
	return &fakeRunner{kind: kind, run: func(context.Context, research.SubTaskSpec) (*research.TaskOutput, error) {
		return &research.TaskOutput{Analysis: analysis}, nil
	}}
}

func failRunner(kind research.TaskKind, msg string) *fakeRunner {
	return &fakeRunner{kind: kind, run: func(context.Context, research.SubTaskSpec) (*research.TaskOutput, error) {
		return nil, fmt.Errorf("%s", msg)
	}}
}

func twoTaskPlan() *research.TaskPlan {
	return &research.TaskPlan{
		Tasks: []research.SubTaskSpec{
			{Kind: research.KindMetrics, Description: "metrics task", Entities: []string{"A"}},
			{Kind: research.KindPositioning, Description: "positioning task", Entities: []string{"A"}},
		},
	}
}

// execute runs the plan and returns results plus observed events.
func execute(t *testing.T, plan *research.TaskPlan, runners ...research.Runner) (map[research.TaskKind]*research.SubTaskResult, *eventCollector) {
	t.Helper()

	collector := &eventCollector{}
	emitter := research.NewEmitter(collector, nil)

	executor := research.NewExecutor(runners, nil)
	results := executor.Execute(context.Background(), plan, emitter)
	emitter.Close()

	return results, collector
}

func TestExecutor_AllSucceed(t *testing.T) {
	results, _ := execute(t, twoTaskPlan(),
		okRunner(research.KindMetrics, "metrics analysis"),
		okRunner(research.KindPositioning, "positioning analysis"),
	)

	require.Len(t, results, 2)

	metrics := results[research.KindMetrics]
	require.True(t, metrics.Succeeded())
	assert.Equal(t, "metrics analysis", metrics.Output.Analysis)

	positioning := results[research.KindPositioning]
	require.True(t, positioning.Succeeded())
	assert.Equal(t, "positioning analysis", positioning.Output.Analysis)
}

func TestExecutor_TasksRunConcurrently(t *testing.T) {
	// Each runner signals its start and then waits for the other; if the
	// executor ran tasks serially this would time out rather than finish.
	metricsStarted := make(chan struct{})
	positioningStarted := make(chan struct{})

	awaitPeer := func(mine, peer chan struct{}) error {
		close(mine)
		select {
		case <-peer:
			return nil
		case <-time.After(5 * time.Second):
			return fmt.Errorf("peer task never started")
		}
	}

	runners := []research.Runner{
		&fakeRunner{kind: research.KindMetrics, run: func(context.Context, research.SubTaskSpec) (*research.TaskOutput, error) {
			if err := awaitPeer(metricsStarted, positioningStarted); err != nil {
				return nil, err
			}
			return &research.TaskOutput{Analysis: "m"}, nil
		}},
		&fakeRunner{kind: research.KindPositioning, run: func(context.Context, research.SubTaskSpec) (*research.TaskOutput, error) {
			if err := awaitPeer(positioningStarted, metricsStarted); err != nil {
				return nil, err
			}
			return &research.TaskOutput{Analysis: "p"}, nil
		}},
	}

	results, _ := execute(t, twoTaskPlan(), runners...)

	assert.True(t, results[research.KindMetrics].Succeeded())
	assert.True(t, results[research.KindPositioning].Succeeded())
}

func TestExecutor_FailureIsolated(t *testing.T) {
	results, _ := execute(t, twoTaskPlan(),
		failRunner(research.KindMetrics, "quote API unreachable"),
		okRunner(research.KindPositioning, "positioning analysis"),
	)

	metrics := results[research.KindMetrics]
	require.NotNil(t, metrics)
	assert.Equal(t, research.ResultFailure, metrics.Status)
	assert.Contains(t, metrics.Error, "quote API unreachable")
	assert.Nil(t, metrics.Output)

	positioning := results[research.KindPositioning]
	require.True(t, positioning.Succeeded(), "sibling task must be unaffected")
	assert.Equal(t, "positioning analysis", positioning.Output.Analysis)
}

func TestExecutor_PanicBecomesFailure(t *testing.T) {
	panicking := &fakeRunner{kind: research.KindMetrics, run: func(context.Context, research.SubTaskSpec) (*research.TaskOutput, error) {
		panic("index out of range")
	}}

	results, collector := execute(t, twoTaskPlan(),
		panicking,
		okRunner(research.KindPositioning, "fine"),
	)

	metrics := results[research.KindMetrics]
	require.NotNil(t, metrics)
	assert.Equal(t, research.ResultFailure, metrics.Status)
	assert.Contains(t, metrics.Error, "panic")
	assert.Contains(t, metrics.Error, "index out of range")

	assert.True(t, results[research.KindPositioning].Succeeded())

	got := statuses(collector.byStage(string(research.KindMetrics)))
	assert.Equal(t, []research.Status{
		research.StatusPending,
		research.StatusRunning,
		research.StatusFailed,
	}, got)
}

func TestExecutor_MissingRunnerIsFailure(t *testing.T) {
	results, collector := execute(t, twoTaskPlan(),
		okRunner(research.KindMetrics, "metrics analysis"),
		// No positioning runner registered.
	)

	positioning := results[research.KindPositioning]
	require.NotNil(t, positioning)
	assert.Equal(t, research.ResultFailure, positioning.Status)
	assert.Contains(t, positioning.Error, "collaborator unavailable")

	assert.True(t, results[research.KindMetrics].Succeeded())

	got := statuses(collector.byStage(string(research.KindPositioning)))
	assert.Equal(t, []research.Status{
		research.StatusPending,
		research.StatusRunning,
		research.StatusFailed,
	}, got, "a missing runner still walks the full event sequence")
}

func TestExecutor_EventOrderPerKind(t *testing.T) {
	slow := &fakeRunner{kind: research.KindMetrics, run: func(context.Context, research.SubTaskSpec) (*research.TaskOutput, error) {
		time.Sleep(50 * time.Millisecond)
		return &research.TaskOutput{Analysis: "slow"}, nil
	}}

	_, collector := execute(t, twoTaskPlan(),
		slow,
		okRunner(research.KindPositioning, "fast"),
	)

	for _, kind := range research.AllKinds {
		got := statuses(collector.byStage(string(kind)))
		assert.Equal(t, []research.Status{
			research.StatusPending,
			research.StatusRunning,
			research.StatusDone,
		}, got, "kind %s must move pending -> running -> done", kind)
	}
}

func TestExecutor_WaitsForAllTasks(t *testing.T) {
	done := make(chan struct{})
	slow := &fakeRunner{kind: research.KindPositioning, run: func(context.Context, research.SubTaskSpec) (*research.TaskOutput, error) {
		time.Sleep(100 * time.Millisecond)
		close(done)
		return &research.TaskOutput{Analysis: "eventually"}, nil
	}}

	results, _ := execute(t, twoTaskPlan(),
		failRunner(research.KindMetrics, "fails immediately"),
		slow,
	)

	select {
	case <-done:
	default:
		t.Fatal("Execute returned before the slow task finished")
	}

	assert.True(t, results[research.KindPositioning].Succeeded())
	assert.Equal(t, research.ResultFailure, results[research.KindMetrics].Status)
}

func TestExecutor_ResultPerPlannedKind(t *testing.T) {
	results, _ := execute(t, twoTaskPlan())

	require.Len(t, results, 2, "every planned kind gets a result even with no runners")
	for kind, result := range results {
		assert.Equal(t, kind, result.Kind)
		assert.Equal(t, research.ResultFailure, result.Status)
	}
}

func TestExecutor_RecordsDuration(t *testing.T) {
	slow := &fakeRunner{kind: research.KindMetrics, run: func(context.Context, research.SubTaskSpec) (*research.TaskOutput, error) {
		time.Sleep(30 * time.Millisecond)
		return &research.TaskOutput{Analysis: "x"}, nil
	}}

	results, _ := execute(t, &research.TaskPlan{
		Tasks: []research.SubTaskSpec{{Kind: research.KindMetrics, Entities: []string{"A"}}},
	}, slow)

	assert.GreaterOrEqual(t, results[research.KindMetrics].Duration, 30*time.Millisecond)
}
