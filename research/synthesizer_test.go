package research_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/scout/llm/testutil"
	"github.com/c360studio/scout/research"
)

func mixedResults() map[research.TaskKind]*research.SubTaskResult {
	return map[research.TaskKind]*research.SubTaskResult{
		research.KindMetrics: {
			Kind:   research.KindMetrics,
			Status: research.ResultSuccess,
			Output: &research.TaskOutput{
				Analysis: "DataDog trades at a premium multiple.",
				Trace:    []research.ToolCall{{Tool: "market_quote", Input: "DDOG"}},
			},
		},
		research.KindPositioning: {
			Kind:   research.KindPositioning,
			Status: research.ResultFailure,
			Error:  "search API unreachable",
		},
	}
}

func allSuccessResults() map[research.TaskKind]*research.SubTaskResult {
	return map[research.TaskKind]*research.SubTaskResult{
		research.KindMetrics: {
			Kind:   research.KindMetrics,
			Status: research.ResultSuccess,
			Output: &research.TaskOutput{Analysis: "metrics findings"},
		},
		research.KindPositioning: {
			Kind:   research.KindPositioning,
			Status: research.ResultSuccess,
			Output: &research.TaskOutput{Analysis: "positioning findings"},
		},
	}
}

// synthesize runs the synthesizer and returns the artifact, path, and events.
func synthesize(t *testing.T, mock research.Completer, results map[research.TaskKind]*research.SubTaskResult) (string, research.SynthesisPath, *eventCollector) {
	t.Helper()

	collector := &eventCollector{}
	emitter := research.NewEmitter(collector, nil)

	plan := twoTaskPlan()
	s := research.NewSynthesizer(mock, nil)
	artifact, path := s.Synthesize(context.Background(), "Compare A and B", plan, results, emitter)
	emitter.Close()

	require.NotEmpty(t, artifact, "the synthesizer always returns an artifact")
	return artifact, path, collector
}

func TestSynthesizer_LLMPath(t *testing.T) {
	mock := &testutil.MockClient{}
	mock.QueueResponse("# Final Report\n\nEverything considered.")

	artifact, path, collector := synthesize(t, mock, allSuccessResults())

	assert.Equal(t, research.PathLLM, path)
	assert.Equal(t, "# Final Report\n\nEverything considered.", artifact)

	got := statuses(collector.byStage(research.StageSynthesize))
	assert.Equal(t, []research.Status{research.StatusRunning, research.StatusDone}, got)
}

func TestSynthesizer_SendsDegradedSectionsToLLM(t *testing.T) {
	mock := &testutil.MockClient{}
	mock.QueueResponse("report acknowledging the gap")

	_, path, _ := synthesize(t, mock, mixedResults())
	assert.Equal(t, research.PathLLM, path)

	reqs := mock.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "synthesize", reqs[0].Capability)

	user := reqs[0].Messages[len(reqs[0].Messages)-1].Content
	assert.Contains(t, user, "premium multiple", "successful output reaches the synthesizer")
	assert.Contains(t, user, "NOT AVAILABLE", "failed tasks reach it as explicit gaps")
	assert.Contains(t, user, "search API unreachable")
}

func TestSynthesizer_FallbackOnError(t *testing.T) {
	mock := &testutil.MockClient{Err: fmt.Errorf("all endpoints failed")}

	artifact, path, collector := synthesize(t, mock, mixedResults())

	assert.Equal(t, research.PathFallback, path)
	assert.Contains(t, artifact, "premium multiple", "successful content survives")
	assert.Contains(t, artifact, "not available", "failed kind gets an explicit marker")
	assert.Contains(t, artifact, "search API unreachable")

	got := collector.byStage(research.StageSynthesize)
	require.Len(t, got, 2)
	assert.Equal(t, research.StatusDone, got[1].Status, "fallback still ends done")
	assert.Contains(t, got[1].Detail, "unavailable")
}

func TestSynthesizer_FallbackOnEmptyResponse(t *testing.T) {
	mock := &testutil.MockClient{}
	mock.QueueResponse("   \n  ")

	_, path, _ := synthesize(t, mock, allSuccessResults())
	assert.Equal(t, research.PathFallback, path)
}

func TestSynthesizer_NilClientFallsBack(t *testing.T) {
	artifact, path, _ := synthesize(t, nil, allSuccessResults())

	assert.Equal(t, research.PathFallback, path)
	assert.Contains(t, artifact, "metrics findings")
	assert.Contains(t, artifact, "positioning findings")
}

func TestSynthesizer_AllFailedStillProducesArtifact(t *testing.T) {
	mock := &testutil.MockClient{Err: fmt.Errorf("down")}

	results := map[research.TaskKind]*research.SubTaskResult{
		research.KindMetrics: {
			Kind: research.KindMetrics, Status: research.ResultFailure, Error: "boom one",
		},
		research.KindPositioning: {
			Kind: research.KindPositioning, Status: research.ResultFailure, Error: "boom two",
		},
	}

	artifact, path, _ := synthesize(t, mock, results)

	assert.Equal(t, research.PathFallback, path)
	assert.Contains(t, artifact, "boom one")
	assert.Contains(t, artifact, "boom two")
	assert.Contains(t, artifact, "not available")
}

func TestSections_PlanOrderAndMarkers(t *testing.T) {
	sections := research.Sections(twoTaskPlan(), mixedResults())

	require.Len(t, sections, 2)
	assert.Equal(t, "metrics", sections[0].Kind)
	assert.Equal(t, "Financial Metrics", sections[0].Title)
	assert.True(t, sections[0].Available)
	require.Len(t, sections[0].Calls, 1)
	assert.Equal(t, "market_quote", sections[0].Calls[0].Tool)
	assert.True(t, sections[0].Calls[0].OK)

	assert.Equal(t, "positioning", sections[1].Kind)
	assert.False(t, sections[1].Available)
	assert.Equal(t, "search API unreachable", sections[1].Body)
}

func TestSections_MissingResult(t *testing.T) {
	sections := research.Sections(twoTaskPlan(), map[research.TaskKind]*research.SubTaskResult{})

	require.Len(t, sections, 2)
	for _, s := range sections {
		assert.False(t, s.Available)
		assert.Equal(t, "no result produced", s.Body)
	}
}
