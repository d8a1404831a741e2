package research

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/c360studio/scout/llm"
)

// Completer is the LLM surface the pipeline needs. *llm.Client satisfies
// it; tests inject scripted mocks.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
}

const classifySystemPrompt = `You extract research targets from analyst requests.
Respond with a single JSON object and nothing else:
{"entities": ["company names mentioned or implied"],
 "identifiers": {"lowercased company name": "stock ticker if known"},
 "focus": "one short phrase naming the analytical focus, or empty"}`

// PlannerConfig carries the fallback entity set used when request
// classification fails.
type PlannerConfig struct {
	// DefaultEntities is the built-in entity set. Must be non-empty.
	DefaultEntities []string

	// Identifiers maps lowercased entity names to ticker symbols.
	Identifiers map[string]string
}

// Planner turns a free-form request into a TaskPlan with the fixed
// sub-task kinds. Planning never fails: any classification problem
// degrades to the default entity set with a logged warning.
type Planner struct {
	llm    Completer
	cfg    PlannerConfig
	logger *slog.Logger
}

// NewPlanner creates a planner.
func NewPlanner(llmc Completer, cfg PlannerConfig, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{llm: llmc, cfg: cfg, logger: logger}
}

// classification is the shape the classifier is asked to produce.
// Missing fields are acceptable; only entities is load-bearing.
type classification struct {
	Entities    []string          `json:"entities"`
	Identifiers map[string]string `json:"identifiers"`
	Focus       string            `json:"focus"`
}

// Plan builds the run's task plan, emitting parse-stage progress
// pending -> running -> done. The done event is emitted on the fallback
// path too, with detail text recording the degradation.
func (p *Planner) Plan(ctx context.Context, request string, progress *Emitter) *TaskPlan {
	progress.Emit(StageParse, StatusPending, "request queued")
	progress.Emit(StageParse, StatusRunning, "classifying request")

	cls, err := p.classify(ctx, request)
	if err != nil {
		p.logger.Warn("request classification failed, using default entities",
			"error", err)
		plan := p.fallbackPlan()
		progress.Emit(StageParse, StatusDone,
			fmt.Sprintf("using default entity set (%d entities)", len(plan.Entities())))
		return plan
	}

	plan := p.buildPlan(cls.Entities, cls.Identifiers, cls.Focus, false)
	progress.Emit(StageParse, StatusDone,
		fmt.Sprintf("identified %d entities", len(cls.Entities)))
	return plan
}

// classify asks the classification collaborator for the entity triple.
func (p *Planner) classify(ctx context.Context, request string) (*classification, error) {
	if p.llm == nil {
		return nil, fmt.Errorf("no classification collaborator configured")
	}

	tc := llm.GetTraceContext(ctx)
	tc.Stage = StageParse
	ctx = llm.WithTraceContext(ctx, tc)

	zero := 0.0
	resp, err := p.llm.Complete(ctx, llm.Request{
		Capability: "classify",
		Messages: []llm.Message{
			{Role: "system", Content: classifySystemPrompt},
			{Role: "user", Content: request},
		},
		Temperature: &zero,
	})
	if err != nil {
		return nil, fmt.Errorf("classification call: %w", err)
	}

	raw, err := llm.ExtractJSON(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("classifier output: %w", err)
	}

	var cls classification
	if err := json.Unmarshal([]byte(raw), &cls); err != nil {
		return nil, fmt.Errorf("decode classification: %w", err)
	}

	cls.Entities = cleanEntities(cls.Entities)
	if len(cls.Entities) == 0 {
		return nil, fmt.Errorf("classifier found no entities")
	}

	return &cls, nil
}

// cleanEntities trims whitespace and drops empty names.
func cleanEntities(entities []string) []string {
	out := entities[:0]
	for _, e := range entities {
		e = strings.TrimSpace(e)
		if e != "" {
			out = append(out, e)
		}
	}
	return out
}

// fallbackPlan builds the default plan used when classification fails.
func (p *Planner) fallbackPlan() *TaskPlan {
	return p.buildPlan(p.cfg.DefaultEntities, nil, "", true)
}

// buildPlan assembles the fixed two-kind plan. Identifiers from the
// classifier take precedence; the configured map fills the gaps.
func (p *Planner) buildPlan(entities []string, identifiers map[string]string, focus string, fallback bool) *TaskPlan {
	ids := make(map[string]string)
	for _, entity := range entities {
		key := strings.ToLower(entity)
		if symbol, ok := identifiers[key]; ok && symbol != "" {
			ids[key] = symbol
			continue
		}
		if symbol, ok := p.cfg.Identifiers[key]; ok {
			ids[key] = symbol
		}
	}

	subjects := strings.Join(entities, ", ")

	return &TaskPlan{
		Fallback: fallback,
		Tasks: []SubTaskSpec{
			{
				Kind:        KindMetrics,
				Description: "Gather financial metrics and market data for: " + subjects,
				Entities:    entities,
				Identifiers: ids,
				Focus:       focus,
			},
			{
				Kind:        KindPositioning,
				Description: "Assess market positioning and competitive landscape for: " + subjects,
				Entities:    entities,
				Identifiers: ids,
				Focus:       focus,
			},
		},
	}
}
