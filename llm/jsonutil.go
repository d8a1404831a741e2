package llm

import (
	"fmt"
	"regexp"
	"strings"
)

// fencedBlockRegex matches a markdown code fence, optionally tagged json,
// and captures its contents. Only one fence layer is stripped; nested
// fences inside the block are left untouched.
var fencedBlockRegex = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// trailingCommaRegex matches trailing commas before closing braces/brackets,
// a common LLM output mistake that breaks strict JSON parsing.
var trailingCommaRegex = regexp.MustCompile(`,\s*([}\]])`)

// ExtractJSON extracts a JSON object from LLM output text.
//
// LLMs wrap JSON in markdown fences, prepend prose, or append
// explanations. Extraction is deliberately narrow: prefer a fenced block
// if present, otherwise scan for the first balanced top-level object.
// The result is cleaned of trailing commas and line comments. Callers
// are expected to fall back to a default when no object can be found.
func ExtractJSON(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("empty text")
	}

	// Prefer JSON inside a code fence.
	if m := fencedBlockRegex.FindStringSubmatch(text); m != nil {
		if obj, ok := balancedObject(m[1]); ok {
			return cleanJSON(obj), nil
		}
	}

	// Otherwise scan the raw text for a balanced object.
	if obj, ok := balancedObject(text); ok {
		return cleanJSON(obj), nil
	}

	return "", fmt.Errorf("no JSON object found in text")
}

// balancedObject returns the first balanced {...} span in text. The scan
// tracks string state so braces inside string literals don't confuse the
// depth count.
func balancedObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		ch := text[i]

		if escaped {
			escaped = false
			continue
		}

		switch ch {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return text[start : i+1], true
				}
			}
		}
	}

	return "", false
}

// cleanJSON fixes common LLM JSON mistakes: trailing commas and
// JavaScript-style line comments.
func cleanJSON(jsonStr string) string {
	jsonStr = trailingCommaRegex.ReplaceAllString(jsonStr, "$1")
	jsonStr = stripLineComments(jsonStr)
	return strings.TrimSpace(jsonStr)
}

// stripLineComments removes // comments outside of string literals.
func stripLineComments(jsonStr string) string {
	var sb strings.Builder
	sb.Grow(len(jsonStr))

	inString := false
	escaped := false

	for i := 0; i < len(jsonStr); i++ {
		ch := jsonStr[i]

		if escaped {
			sb.WriteByte(ch)
			escaped = false
			continue
		}

		if inString && ch == '\\' {
			sb.WriteByte(ch)
			escaped = true
			continue
		}

		if ch == '"' {
			inString = !inString
			sb.WriteByte(ch)
			continue
		}

		if !inString && ch == '/' && i+1 < len(jsonStr) && jsonStr[i+1] == '/' {
			// Skip to end of line
			for i < len(jsonStr) && jsonStr[i] != '\n' {
				i++
			}
			if i < len(jsonStr) {
				sb.WriteByte('\n')
			}
			continue
		}

		sb.WriteByte(ch)
	}

	return sb.String()
}
