// Package llmjson recovers structured data from raw LLM text output.
//
// LLM responses are noisy: valid JSON one call, fenced markdown the next,
// prose-wrapped JSON the call after that, or a plain "no" when nothing was
// found. Parse runs an ordered cascade of recovery strategies and always
// terminates in one of three states: a parsed value, an explicit
// no-information signal, or a fallback record that preserves the raw text
// so data is never silently lost.
package llmjson

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/specforge/internal/metrics"
)

// Diagnostics returned alongside parse results. An empty diagnostic means
// a clean parse.
const (
	DiagEmpty         = "empty output from LLM"
	DiagNoInformation = "LLM indicated no information found"
	DiagFallback      = "used fallback structure due to JSON parsing failure"
)

// Fallback record fields.
const (
	KeySourceFile       = "source_file"
	KeyRawOutput        = "raw_llm_output"
	KeyParsingError     = "parsing_error"
	KeyExtractionStatus = "extraction_status"
)

const maxRawOutputLen = 500

// fencedBlock matches the first fenced code block, with or without a
// language tag.
var fencedBlock = regexp.MustCompile("```(?:json)?\\s*([^`]+?)\\s*```")

// llmPreambles are chatty prefixes models put before the actual JSON.
var llmPreambles = []string{
	"Here is the JSON:",
	"JSON:",
	"Result:",
	"Output:",
}

// Parse attempts to recover a JSON value from text. The returned value is
// a map[string]any or []any on success. A nil value with
// DiagNoInformation means the model explicitly reported nothing found; a
// nil value with DiagEmpty means blank input. Any other unparsable text
// yields a fallback record (map) tagged with a parsing_error field and
// DiagFallback — never (nil, "").
//
// sourceLabel identifies the originating file in the fallback record.
func Parse(text, sourceLabel string) (any, string) {
	if strings.TrimSpace(text) == "" {
		metrics.ParseOutcomes.WithLabelValues("empty").Inc()
		return nil, DiagEmpty
	}

	strategies := []func(string) (any, bool){
		parseDirect,
		parseFencedBlock,
		parseBalancedBraces,
		parseAfterPreamble,
	}
	for _, strategy := range strategies {
		if v, ok := strategy(text); ok {
			metrics.ParseOutcomes.WithLabelValues("parsed").Inc()
			return v, ""
		}
	}

	if isNegativeSignal(text) {
		metrics.ParseOutcomes.WithLabelValues("no_information").Inc()
		return nil, DiagNoInformation
	}

	metrics.ParseOutcomes.WithLabelValues("fallback").Inc()
	fallback := map[string]any{
		KeySourceFile:       sourceLabel,
		KeyRawOutput:        truncate(text, maxRawOutputLen),
		KeyParsingError:     "Could not parse as valid JSON",
		KeyExtractionStatus: "partial",
	}
	return fallback, DiagFallback
}

// ParseRecord is Parse restricted to object output: a top-level array is
// wrapped under an "items" key so callers always get a record.
func ParseRecord(text, sourceLabel string) (map[string]any, string) {
	v, diag := Parse(text, sourceLabel)
	switch typed := v.(type) {
	case nil:
		return nil, diag
	case map[string]any:
		return typed, diag
	case []any:
		return map[string]any{"items": typed}, diag
	default:
		return map[string]any{"value": typed}, diag
	}
}

// IsFallback reports whether record was produced by the fallback strategy
// rather than a real parse.
func IsFallback(record map[string]any) bool {
	if record == nil {
		return false
	}
	_, ok := record[KeyParsingError]
	return ok
}

// parseDirect tries the whole trimmed text as JSON. Scalars are rejected:
// a bare string or number is not a usable extraction result.
func parseDirect(text string) (any, bool) {
	return tryUnmarshal(strings.TrimSpace(text))
}

// parseFencedBlock extracts the first fenced code block and parses its
// contents.
func parseFencedBlock(text string) (any, bool) {
	m := fencedBlock.FindStringSubmatch(text)
	if m == nil {
		return nil, false
	}
	return tryUnmarshal(strings.TrimSpace(m[1]))
}

// parseBalancedBraces extracts the first balanced {...} span via brace
// matching and parses it. Braces inside JSON strings are skipped.
func parseBalancedBraces(text string) (any, bool) {
	span := balancedBraceSpan(text)
	if span == "" {
		return nil, false
	}
	return tryUnmarshal(span)
}

// parseAfterPreamble strips known LLM preambles, then tries the widest
// first-{ to last-} span.
func parseAfterPreamble(text string) (any, bool) {
	cleaned := strings.TrimSpace(text)
	for _, prefix := range llmPreambles {
		if strings.HasPrefix(cleaned, prefix) {
			cleaned = strings.TrimSpace(strings.TrimPrefix(cleaned, prefix))
		}
	}

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start == -1 || end <= start {
		return nil, false
	}
	return tryUnmarshal(cleaned[start : end+1])
}

// tryUnmarshal parses s as JSON, accepting only objects and arrays.
func tryUnmarshal(s string) (any, bool) {
	if s == "" {
		return nil, false
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	switch v.(type) {
	case map[string]any, []any:
		return v, true
	default:
		return nil, false
	}
}

// balancedBraceSpan returns the first balanced top-level {...} span in
// text, or "" when none exists. String literals (with escapes) are
// honored so a "}" inside a value does not close the span early.
func balancedBraceSpan(text string) string {
	start := strings.Index(text, "{")
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

// isNegativeSignal reports whether the model explicitly said it found
// nothing. The vocabulary is fixed: a bare "no", "no." / "no," / "no "
// prefixes, or mention of "no database" / "no server" / "none found".
func isNegativeSignal(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "no" {
		return true
	}
	for _, prefix := range []string{"no.", "no,", "no "} {
		if strings.HasPrefix(t, prefix) {
			return true
		}
	}
	for _, marker := range []string{"no database", "no server", "none found"} {
		if strings.Contains(t, marker) {
			return true
		}
	}
	return false
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
