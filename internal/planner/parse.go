package planner

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

type beatsEnvelope struct {
	Beats []Beat `json:"beats"`
}

// parseBeatsResponse extracts the beats array from an LLM response.
// Handles clean JSON, markdown code fences, and JSON embedded in
// prose; as a last resort the candidates are re-tried after a repair
// pass for smart quotes and trailing commas.
func parseBeatsResponse(content string) ([]Beat, error) {
	candidates := jsonCandidates(content)

	for _, candidate := range candidates {
		if beats, ok := unmarshalBeats(candidate); ok {
			return beats, nil
		}
	}
	for _, candidate := range candidates {
		if beats, ok := unmarshalBeats(repairJSON(candidate)); ok {
			return beats, nil
		}
	}

	return nil, fmt.Errorf("no parseable beats JSON object found in response")
}

// jsonCandidates lists the substrings worth a parse attempt, in order
// of preference: the whole response, the first fenced block, the
// outermost balanced object.
func jsonCandidates(content string) []string {
	content = strings.TrimSpace(content)
	candidates := []string{content}

	if idx := strings.Index(content, "```"); idx >= 0 {
		inner := content[idx+3:]
		// Skip language tag on the same line (e.g., ```json)
		if nl := strings.Index(inner, "\n"); nl >= 0 {
			inner = inner[nl+1:]
		}
		if end := strings.Index(inner, "```"); end >= 0 {
			inner = inner[:end]
		}
		candidates = append(candidates, strings.TrimSpace(inner))
	}

	if extracted := extractJSONObject(content); extracted != "" {
		candidates = append(candidates, extracted)
	}

	return candidates
}

func unmarshalBeats(candidate string) ([]Beat, bool) {
	if candidate == "" {
		return nil, false
	}
	var envelope beatsEnvelope
	if err := json.Unmarshal([]byte(candidate), &envelope); err != nil {
		return nil, false
	}
	if envelope.Beats == nil {
		return nil, false
	}
	return envelope.Beats, true
}

// extractJSONObject finds the outermost balanced { ... } block in s.
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		if c == '\\' && inString {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		if c == '{' {
			depth++
		} else if c == '}' {
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

var (
	smartQuotes = strings.NewReplacer(
		"“", `"`, // “
		"”", `"`, // ”
		"‘", "'", // ‘
		"’", "'", // ’
	)
	trailingComma = regexp.MustCompile(`,\s*([}\]])`)
)

// repairJSON applies the two fixes that cover most model slop:
// typographic quotes around keys/values and trailing commas.
func repairJSON(s string) string {
	return trailingComma.ReplaceAllString(smartQuotes.Replace(s), "$1")
}
