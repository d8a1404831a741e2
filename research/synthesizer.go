package research

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/c360studio/scout/llm"
	"github.com/c360studio/scout/report"
)

var (
	errNoSynthesizer  = errors.New("no synthesis collaborator configured")
	errEmptySynthesis = errors.New("synthesis returned empty content")
)

// Synthesizer combines sub-task results into the final artifact. It
// prefers the synthesis collaborator; any failure there degrades to a
// deterministic concatenation of whatever sub-task output exists. It
// never returns an error: some artifact always comes back, along with
// the path that produced it.
type Synthesizer struct {
	llm    Completer
	logger *slog.Logger
}

// NewSynthesizer creates a synthesizer.
func NewSynthesizer(llmc Completer, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{llm: llmc, logger: logger}
}

// Synthesize produces the final artifact from the complete result map,
// emitting synthesize-stage progress running -> done around the attempt.
// Failed sub-tasks reach the collaborator as explicit absence markers so
// the report can acknowledge gaps instead of inventing data.
func (s *Synthesizer) Synthesize(ctx context.Context, request string, plan *TaskPlan, results map[TaskKind]*SubTaskResult, progress *Emitter) (string, SynthesisPath) {
	progress.Emit(StageSynthesize, StatusRunning, "writing report")

	sections := Sections(plan, results)
	entities := plan.Entities()

	artifact, err := s.trySynthesis(ctx, request, entities, sections)
	if err != nil {
		s.logger.Warn("synthesis failed, falling back to concatenated report",
			"error", err)

		artifact = report.Fallback(request, entities, sections)
		progress.Emit(StageSynthesize, StatusDone, "synthesis unavailable, sub-task output concatenated")
		return artifact, PathFallback
	}

	progress.Emit(StageSynthesize, StatusDone, "report synthesized")
	return artifact, PathLLM
}

// trySynthesis runs the collaborator path. A missing collaborator is the
// same failure as a collaborator error.
func (s *Synthesizer) trySynthesis(ctx context.Context, request string, entities []string, sections []report.Section) (string, error) {
	if s.llm == nil {
		return "", errNoSynthesizer
	}

	tc := llm.GetTraceContext(ctx)
	tc.Stage = StageSynthesize
	ctx = llm.WithTraceContext(ctx, tc)

	system, user := report.BuildSynthesisPrompt(request, entities, sections)

	resp, err := s.llm.Complete(ctx, llm.Request{
		Capability: "synthesize",
		Messages: []llm.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return "", err
	}

	if strings.TrimSpace(resp.Content) == "" {
		return "", errEmptySynthesis
	}

	return resp.Content, nil
}

// Sections maps plan results into report sections in plan order. Failed
// or missing results become unavailable sections carrying the failure
// description.
func Sections(plan *TaskPlan, results map[TaskKind]*SubTaskResult) []report.Section {
	sections := make([]report.Section, 0, len(plan.Tasks))

	for _, task := range plan.Tasks {
		section := report.Section{
			Kind:  string(task.Kind),
			Title: sectionTitle(task.Kind),
		}

		result := results[task.Kind]
		switch {
		case result.Succeeded():
			section.Available = true
			section.Body = result.Output.Analysis
			for _, call := range result.Output.Trace {
				section.Calls = append(section.Calls, report.Call{
					Tool:  call.Tool,
					Input: call.Input,
					OK:    call.Error == "",
				})
			}
		case result != nil:
			section.Body = result.Error
		default:
			section.Body = "no result produced"
		}

		sections = append(sections, section)
	}

	return sections
}

// sectionTitle names a sub-task kind for display.
func sectionTitle(kind TaskKind) string {
	switch kind {
	case KindMetrics:
		return "Financial Metrics"
	case KindPositioning:
		return "Market Positioning"
	default:
		return string(kind)
	}
}
