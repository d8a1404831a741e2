package research

import (
	"context"
	"time"
)

// TaskKind identifies one of the fixed sub-task kinds. Every plan
// contains each kind exactly once.
type TaskKind string

const (
	// KindMetrics covers financial metrics and market data analysis.
	KindMetrics TaskKind = "metrics"

	// KindPositioning covers market positioning and competitive analysis.
	KindPositioning TaskKind = "positioning"
)

// AllKinds lists the sub-task kinds in plan order.
var AllKinds = []TaskKind{KindMetrics, KindPositioning}

// SubTaskSpec describes one planned sub-task.
type SubTaskSpec struct {
	// Kind is the sub-task kind, unique within a plan.
	Kind TaskKind `json:"kind"`

	// Description is a human-readable statement of the task.
	Description string `json:"description"`

	// Entities are the subjects under analysis.
	Entities []string `json:"entities"`

	// Identifiers maps lowercased entity names to ticker symbols where
	// known. Missing entries are acceptable.
	Identifiers map[string]string `json:"identifiers,omitempty"`

	// Focus is an optional analysis theme extracted from the request.
	Focus string `json:"focus,omitempty"`
}

// TaskPlan is the fixed fan-out produced by the planner. Plans are never
// empty and are immutable once built.
type TaskPlan struct {
	Tasks []SubTaskSpec `json:"tasks"`

	// Fallback records whether the plan came from the default entity
	// set rather than request classification.
	Fallback bool `json:"fallback,omitempty"`
}

// Task returns the spec for a kind, or nil if the plan lacks it.
func (p *TaskPlan) Task(kind TaskKind) *SubTaskSpec {
	for i := range p.Tasks {
		if p.Tasks[i].Kind == kind {
			return &p.Tasks[i]
		}
	}
	return nil
}

// Entities returns the entity list shared by the plan's tasks.
func (p *TaskPlan) Entities() []string {
	if len(p.Tasks) == 0 {
		return nil
	}
	return p.Tasks[0].Entities
}

// ResultStatus discriminates the SubTaskResult union.
type ResultStatus string

const (
	// ResultSuccess means the sub-task produced analysis output.
	ResultSuccess ResultStatus = "success"

	// ResultFailure means the sub-task failed and Error describes why.
	ResultFailure ResultStatus = "failure"
)

// ToolCall records one external invocation made during a sub-task.
type ToolCall struct {
	Tool   string `json:"tool"`
	Input  string `json:"input"`
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// TaskOutput is a successful sub-task's payload.
type TaskOutput struct {
	// Analysis is the sub-task's textual result.
	Analysis string `json:"analysis"`

	// Trace lists the external calls made to produce it.
	Trace []ToolCall `json:"trace,omitempty"`
}

// SubTaskResult is the terminal state of one sub-task: either a success
// payload or a failure description, never both and never neither.
// Consumers switch on Status and must handle both arms.
type SubTaskResult struct {
	Kind   TaskKind     `json:"kind"`
	Status ResultStatus `json:"status"`

	// Output holds the payload when Status is ResultSuccess.
	Output *TaskOutput `json:"output,omitempty"`

	// Error describes the failure when Status is ResultFailure.
	Error string `json:"error,omitempty"`

	// Duration is how long the sub-task ran.
	Duration time.Duration `json:"duration_ns"`
}

// Succeeded reports whether the result carries output.
func (r *SubTaskResult) Succeeded() bool {
	return r != nil && r.Status == ResultSuccess && r.Output != nil
}

// Runner executes one kind of sub-task. Implementations live outside
// this package (the agent package provides the LLM-driven ones) and are
// injected into the executor.
type Runner interface {
	// Kind reports which sub-task kind this runner handles.
	Kind() TaskKind

	// Run performs the sub-task. Errors are isolated by the executor;
	// they fail this sub-task only.
	Run(ctx context.Context, task SubTaskSpec) (*TaskOutput, error)
}

// SynthesisPath records which synthesis strategy produced the artifact.
type SynthesisPath string

const (
	// PathLLM means the synthesis collaborator wrote the report.
	PathLLM SynthesisPath = "llm"

	// PathFallback means the report is a deterministic concatenation of
	// sub-task outputs.
	PathFallback SynthesisPath = "fallback"
)

// RunState aggregates everything a run produced. It is owned by the
// caller once Run returns; the engine retains nothing.
type RunState struct {
	RunID       string                      `json:"run_id"`
	Request     string                      `json:"request"`
	Plan        *TaskPlan                   `json:"plan"`
	Results     map[TaskKind]*SubTaskResult `json:"results"`
	Artifact    string                      `json:"artifact"`
	Path        SynthesisPath               `json:"path"`
	StartedAt   time.Time                   `json:"started_at"`
	CompletedAt time.Time                   `json:"completed_at"`
}
