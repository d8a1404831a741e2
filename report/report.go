// Package report renders research output: the synthesis prompt, the
// deterministic fallback report, markdown tables, and a Graphviz view of
// a run. It deliberately knows nothing about how results were produced;
// callers map their results into Section values.
package report

import (
	"fmt"
	"strings"
)

// Section is one labeled block of sub-task output.
type Section struct {
	// Kind is the machine name of the producing sub-task.
	Kind string

	// Title is the display heading.
	Title string

	// Body is the sub-task's output, or its failure description when
	// Available is false.
	Body string

	// Available reports whether the sub-task produced usable output.
	Available bool

	// Calls lists the external invocations the sub-task made.
	Calls []Call
}

// Call is one external invocation for display purposes.
type Call struct {
	Tool  string
	Input string
	OK    bool
}

// Fallback renders the degraded report used when synthesis is
// unavailable: the raw sub-task outputs concatenated under labeled
// headings, with explicit markers for anything missing.
func Fallback(request string, entities []string, sections []Section) string {
	var sb strings.Builder

	title := strings.Join(entities, ", ")
	if title == "" {
		title = "Research"
	}
	fmt.Fprintf(&sb, "# Research Report: %s\n\n", title)

	sb.WriteString("## Research Query\n\n")
	sb.WriteString(strings.TrimSpace(request))
	sb.WriteString("\n\n")

	for _, section := range sections {
		fmt.Fprintf(&sb, "## %s\n\n", section.Title)

		if section.Available {
			sb.WriteString(strings.TrimSpace(section.Body))
		} else {
			fmt.Fprintf(&sb, "This analysis is not available: %s.", failureText(section.Body))
		}
		sb.WriteString("\n\n")
	}

	sb.WriteString("---\n\n")
	sb.WriteString("*Synthesis was unavailable. This report is a direct concatenation of sub-task output.*\n")

	return sb.String()
}

// failureText normalizes a failure description for inline display.
func failureText(body string) string {
	body = strings.TrimSpace(body)
	if body == "" {
		return "no output was produced"
	}
	return strings.TrimSuffix(body, ".")
}

// BuildSynthesisPrompt builds the system and user messages for the
// synthesis collaborator. Unavailable sections are presented as explicit
// gaps so the report acknowledges missing data instead of inventing it.
func BuildSynthesisPrompt(request string, entities []string, sections []Section) (string, string) {
	system := `You are a senior equity research analyst writing a final report.
Structure the report as: an executive summary, a comparison across the
subject companies, and a closing assessment. Base every claim on the
research findings provided. Where a research section is marked NOT
AVAILABLE, say so plainly in the report; never invent figures for
missing data. Write in markdown.`

	var sb strings.Builder

	fmt.Fprintf(&sb, "Research request: %s\n\n", strings.TrimSpace(request))
	if len(entities) > 0 {
		fmt.Fprintf(&sb, "Subject companies: %s\n\n", strings.Join(entities, ", "))
	}

	sb.WriteString("Research findings:\n\n")
	for _, section := range sections {
		if section.Available {
			fmt.Fprintf(&sb, "### %s\n\n%s\n\n", section.Title, strings.TrimSpace(section.Body))
		} else {
			fmt.Fprintf(&sb, "### %s\n\nNOT AVAILABLE: %s\n\n", section.Title, failureText(section.Body))
		}
	}

	sb.WriteString("Write the final report now.")

	return system, sb.String()
}
