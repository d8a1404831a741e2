package report

import (
	"fmt"
	"strings"
)

// Node fill colors by outcome.
const (
	colorStage   = "lightblue"
	colorOK      = "palegreen"
	colorFail    = "lightcoral"
	colorDegrade = "khaki"
)

// DecisionTree renders a run as Graphviz DOT text: the request flows
// into the parse stage, fans out to the sub-task sections and their tool
// calls, and joins at the synthesis node. Colors encode outcomes, so a
// glance shows which branches degraded. The output is plain DOT; feed it
// to `dot -Tsvg` to draw it.
func DecisionTree(request string, planFallback bool, sections []Section, synthesisPath string) string {
	var sb strings.Builder

	sb.WriteString("digraph research_run {\n")
	sb.WriteString("  rankdir=LR;\n")
	sb.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontname=\"Helvetica\"];\n\n")

	fmt.Fprintf(&sb, "  request [label=\"%s\", shape=note];\n", escapeLabel(truncate(request, 48)))

	parseColor := colorOK
	parseLabel := "parse"
	if planFallback {
		parseColor = colorDegrade
		parseLabel = "parse\\n(default entities)"
	}
	fmt.Fprintf(&sb, "  parse [label=\"%s\", fillcolor=%s];\n", parseLabel, parseColor)
	sb.WriteString("  request -> parse;\n\n")

	synthColor := colorOK
	synthLabel := "synthesize"
	if synthesisPath != "" && synthesisPath != "llm" {
		synthColor = colorDegrade
		synthLabel = "synthesize\\n(" + synthesisPath + ")"
	}

	for _, section := range sections {
		id := nodeID(section.Kind)

		color := colorOK
		if !section.Available {
			color = colorFail
		}
		fmt.Fprintf(&sb, "  %s [label=\"%s\", fillcolor=%s];\n", id, escapeLabel(section.Title), color)
		fmt.Fprintf(&sb, "  parse -> %s;\n", id)

		for i, call := range section.Calls {
			callID := fmt.Sprintf("%s_call_%d", id, i)
			callColor := colorOK
			if !call.OK {
				callColor = colorFail
			}
			label := escapeLabel(call.Tool)
			if call.Input != "" {
				label += "\\n" + escapeLabel(truncate(call.Input, 24))
			}
			fmt.Fprintf(&sb, "  %s [label=\"%s\", shape=ellipse, fillcolor=%s];\n", callID, label, callColor)
			fmt.Fprintf(&sb, "  %s -> %s;\n", id, callID)
		}

		fmt.Fprintf(&sb, "  %s -> synthesize;\n\n", id)
	}

	fmt.Fprintf(&sb, "  synthesize [label=\"%s\", fillcolor=%s];\n", synthLabel, synthColor)
	sb.WriteString("}\n")

	return sb.String()
}

// nodeID produces a DOT-safe identifier.
func nodeID(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}

// escapeLabel escapes quotes for DOT string labels.
func escapeLabel(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	return strings.ReplaceAll(s, "\n", "\\n")
}

// truncate limits a label to n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
