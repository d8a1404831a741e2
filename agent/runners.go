package agent

import (
	"context"
	"log/slog"

	"github.com/c360studio/scout/research"
)

const metricsSystem = `You are a financial analyst researching companies.
Use your tools to look up market quotes and financial statements for the
subject companies, then write a concise comparison of revenue, growth,
margins, and market capitalization. State figures with their currency and
note anything you could not retrieve.`

const positioningSystem = `You are a competitive intelligence analyst.
Use your tools to research the subject companies' products, customers,
and market position, then write a concise assessment of each company's
competitive strengths, weaknesses, and differentiation. Cite the pages
you drew on and note anything you could not verify.`

// Runner adapts an Agent to one sub-task kind.
type Runner struct {
	kind  research.TaskKind
	agent *Agent
}

// NewMetricsRunner builds the runner for the metrics sub-task kind.
// Tools are injected; the market package provides quote and financials
// tools that fit.
func NewMetricsRunner(llmc research.Completer, tools []Tool, cfg Config, logger *slog.Logger) *Runner {
	return &Runner{
		kind:  research.KindMetrics,
		agent: New(llmc, metricsSystem, tools, cfg, withKind(logger, research.KindMetrics)),
	}
}

// NewPositioningRunner builds the runner for the positioning sub-task
// kind. The web package provides search and page-fetch tools that fit.
func NewPositioningRunner(llmc research.Completer, tools []Tool, cfg Config, logger *slog.Logger) *Runner {
	return &Runner{
		kind:  research.KindPositioning,
		agent: New(llmc, positioningSystem, tools, cfg, withKind(logger, research.KindPositioning)),
	}
}

// Kind reports the sub-task kind this runner handles.
func (r *Runner) Kind() research.TaskKind {
	return r.kind
}

// Run executes the sub-task via the agent loop.
func (r *Runner) Run(ctx context.Context, task research.SubTaskSpec) (*research.TaskOutput, error) {
	return r.agent.Execute(ctx, task)
}

func withKind(logger *slog.Logger, kind research.TaskKind) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("kind", string(kind))
}
