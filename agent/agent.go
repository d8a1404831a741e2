// Package agent runs a sub-task's collaborator loop: the model is given
// a small set of tools, and each reply is either a JSON tool command or
// the final analysis. Every exchange lands in an explicit tagged
// transcript, and every tool invocation is recorded in the sub-task's
// call trace.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/c360studio/scout/llm"
	"github.com/c360studio/scout/research"
)

// tracePreviewLimit caps tool output previews in the call trace. Full
// output still reaches the model; only the recorded trace is truncated.
const tracePreviewLimit = 200

// EntryKind discriminates transcript entries. Consumers switch on it and
// must handle every kind.
type EntryKind string

const (
	// EntryAssistantText is a plain model reply.
	EntryAssistantText EntryKind = "assistant_text"

	// EntryToolInvocation is a tool command the model issued.
	EntryToolInvocation EntryKind = "tool_invocation"

	// EntryToolResult is the outcome of an invocation.
	EntryToolResult EntryKind = "tool_result"
)

// Entry is one transcript element. Exactly one of Text, Invocation, or
// Result is set, matching Kind.
type Entry struct {
	Kind EntryKind `json:"kind"`

	// Text holds the reply for EntryAssistantText.
	Text string `json:"text,omitempty"`

	// Invocation holds the command for EntryToolInvocation.
	Invocation *Invocation `json:"invocation,omitempty"`

	// Result holds the outcome for EntryToolResult.
	Result *Result `json:"result,omitempty"`
}

// Invocation is a parsed tool command.
type Invocation struct {
	Tool string            `json:"tool"`
	Args map[string]string `json:"args,omitempty"`
}

// Result is the outcome of one tool invocation.
type Result struct {
	Tool     string        `json:"tool"`
	Output   string        `json:"output,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// Tool is one capability offered to the model.
type Tool interface {
	// Name is the identifier the model uses to invoke the tool.
	Name() string

	// Description tells the model what the tool does and what arguments
	// it takes.
	Description() string

	// Invoke runs the tool. The returned text is fed back to the model;
	// errors are fed back too, so the model can recover or move on.
	Invoke(ctx context.Context, args map[string]string) (string, error)
}

// Config bounds the tool loop.
type Config struct {
	// MaxTurns is the maximum number of model calls per sub-task.
	MaxTurns int

	// Temperature for the research-stage LLM calls.
	Temperature float64
}

// DefaultConfig returns the standard loop bounds.
func DefaultConfig() Config {
	return Config{
		MaxTurns:    8,
		Temperature: 0.2,
	}
}

// Agent drives one sub-task's tool loop against the research capability.
type Agent struct {
	llm    research.Completer
	system string
	tools  map[string]Tool
	roster []string
	cfg    Config
	logger *slog.Logger
}

// New creates an agent with the given system prompt and tools.
func New(llmc research.Completer, system string, tools []Tool, cfg Config, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxTurns < 1 {
		cfg.MaxTurns = DefaultConfig().MaxTurns
	}

	byName := make(map[string]Tool, len(tools))
	roster := make([]string, 0, len(tools))
	for _, t := range tools {
		byName[t.Name()] = t
		roster = append(roster, t.Name())
	}
	sort.Strings(roster)

	return &Agent{
		llm:    llmc,
		system: system,
		tools:  byName,
		roster: roster,
		cfg:    cfg,
		logger: logger,
	}
}

// toolCommand is the JSON shape the model uses to invoke a tool.
type toolCommand struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

// Execute runs the tool loop for one task and returns the final
// analysis with its call trace. The loop ends when the model replies
// without a tool command; exhausting MaxTurns first is an error.
func (a *Agent) Execute(ctx context.Context, task research.SubTaskSpec) (*research.TaskOutput, error) {
	if a.llm == nil {
		return nil, fmt.Errorf("no research collaborator configured")
	}

	messages := []llm.Message{
		{Role: "system", Content: a.systemPrompt()},
		{Role: "user", Content: taskPrompt(task)},
	}

	var transcript []Entry

	for turn := 0; turn < a.cfg.MaxTurns; turn++ {
		temp := a.cfg.Temperature
		resp, err := a.llm.Complete(ctx, llm.Request{
			Capability:  "research",
			Messages:    messages,
			Temperature: &temp,
		})
		if err != nil {
			return nil, fmt.Errorf("research call (turn %d): %w", turn+1, err)
		}

		inv, ok := parseToolCommand(resp.Content)
		if !ok {
			transcript = append(transcript, Entry{Kind: EntryAssistantText, Text: resp.Content})
			return &research.TaskOutput{
				Analysis: strings.TrimSpace(resp.Content),
				Trace:    buildTrace(transcript),
			}, nil
		}

		transcript = append(transcript, Entry{Kind: EntryToolInvocation, Invocation: inv})
		result := a.invoke(ctx, inv)
		transcript = append(transcript, Entry{Kind: EntryToolResult, Result: result})

		messages = append(messages,
			llm.Message{Role: "assistant", Content: resp.Content},
			llm.Message{Role: "user", Content: resultPrompt(result)},
		)
	}

	return nil, fmt.Errorf("no final analysis after %d turns", a.cfg.MaxTurns)
}

// invoke runs one tool command. Unknown tools and tool errors both
// become error results; the loop feeds them back instead of aborting.
func (a *Agent) invoke(ctx context.Context, inv *Invocation) *Result {
	started := time.Now()

	tool, ok := a.tools[inv.Tool]
	if !ok {
		a.logger.Warn("model invoked unknown tool", "tool", inv.Tool)
		return &Result{
			Tool:     inv.Tool,
			Error:    fmt.Sprintf("unknown tool %q; available tools: %s", inv.Tool, strings.Join(a.roster, ", ")),
			Duration: time.Since(started),
		}
	}

	output, err := tool.Invoke(ctx, inv.Args)
	duration := time.Since(started)

	if err != nil {
		a.logger.Warn("tool invocation failed",
			"tool", inv.Tool,
			"duration", duration,
			"error", err)
		return &Result{Tool: inv.Tool, Error: err.Error(), Duration: duration}
	}

	a.logger.Debug("tool invocation completed",
		"tool", inv.Tool,
		"duration", duration,
		"output_bytes", len(output))

	return &Result{Tool: inv.Tool, Output: output, Duration: duration}
}

// systemPrompt appends the tool roster and command protocol to the
// agent's role prompt.
func (a *Agent) systemPrompt() string {
	var sb strings.Builder
	sb.WriteString(a.system)
	sb.WriteString("\n\nYou have these tools:\n")

	for _, name := range a.roster {
		fmt.Fprintf(&sb, "- %s: %s\n", name, a.tools[name].Description())
	}

	sb.WriteString(`
To use a tool, reply with ONLY a JSON object:
{"tool": "tool_name", "args": {"arg": "value"}}
When you have gathered enough information, reply with your final
analysis as plain text (no JSON).`)

	return sb.String()
}

// taskPrompt renders the sub-task spec for the model.
func taskPrompt(task research.SubTaskSpec) string {
	var sb strings.Builder
	sb.WriteString(task.Description)

	if len(task.Identifiers) > 0 {
		pairs := make([]string, 0, len(task.Identifiers))
		for name, symbol := range task.Identifiers {
			pairs = append(pairs, fmt.Sprintf("%s=%s", name, symbol))
		}
		sort.Strings(pairs)
		fmt.Fprintf(&sb, "\n\nKnown ticker symbols: %s", strings.Join(pairs, ", "))
	}

	if task.Focus != "" {
		fmt.Fprintf(&sb, "\n\nAnalysis focus: %s", task.Focus)
	}

	return sb.String()
}

// resultPrompt renders a tool outcome for the model.
func resultPrompt(result *Result) string {
	if result.Error != "" {
		return fmt.Sprintf("Tool %s failed: %s\nWork with what you have or try a different tool.", result.Tool, result.Error)
	}
	return fmt.Sprintf("Tool %s returned:\n%s", result.Tool, result.Output)
}

// parseToolCommand extracts a tool command from a model reply. A reply
// is a command only when it contains a JSON object with a non-empty
// "tool" field; anything else is treated as the final analysis.
func parseToolCommand(content string) (*Invocation, bool) {
	raw, err := llm.ExtractJSON(content)
	if err != nil {
		return nil, false
	}

	var cmd toolCommand
	if err := json.Unmarshal([]byte(raw), &cmd); err != nil || cmd.Tool == "" {
		return nil, false
	}

	args := make(map[string]string, len(cmd.Args))
	for key, value := range cmd.Args {
		args[key] = fmt.Sprint(value)
	}

	return &Invocation{Tool: cmd.Tool, Args: args}, true
}

// buildTrace maps invocation/result pairs into the sub-task call trace.
// Output previews are truncated; the transcript keeps the full text.
func buildTrace(transcript []Entry) []research.ToolCall {
	var trace []research.ToolCall
	var pending *research.ToolCall

	for _, entry := range transcript {
		switch entry.Kind {
		case EntryToolInvocation:
			trace = append(trace, research.ToolCall{
				Tool:  entry.Invocation.Tool,
				Input: renderArgs(entry.Invocation.Args),
			})
			pending = &trace[len(trace)-1]

		case EntryToolResult:
			if pending == nil {
				continue
			}
			pending.Output = truncate(entry.Result.Output, tracePreviewLimit)
			pending.Error = entry.Result.Error
			pending = nil

		case EntryAssistantText:
			// Final answers carry no trace data.
		}
	}

	return trace
}

// renderArgs flattens tool arguments for the trace.
func renderArgs(args map[string]string) string {
	if len(args) == 0 {
		return ""
	}

	pairs := make([]string, 0, len(args))
	for key, value := range args {
		pairs = append(pairs, key+"="+value)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, " ")
}

// truncate limits s to n runes, marking the cut.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
