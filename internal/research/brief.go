package research

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Brief is the distilled research result for one topic.
type Brief struct {
	Topic     string    `json:"topic"`
	Summary   string    `json:"summary"`
	Facts     []string  `json:"facts"`
	CreatedAt time.Time `json:"created_at"`
}

// Render flattens the brief into the plain-text block the planner
// folds into its system prompt.
func (b *Brief) Render() string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(b.Summary))
	for _, fact := range b.Facts {
		fact = strings.TrimSpace(fact)
		if fact == "" {
			continue
		}
		sb.WriteString("\n- ")
		sb.WriteString(fact)
	}
	return sb.String()
}

// parseBrief extracts {summary, facts[]} from an agent response.
// Handles clean JSON, fenced blocks, and JSON embedded in prose, the
// same shapes the planner tolerates from the same models.
func parseBrief(content string) (*Brief, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, errors.New("empty response")
	}

	for _, candidate := range briefCandidates(content) {
		var b Brief
		if err := json.Unmarshal([]byte(candidate), &b); err != nil {
			continue
		}
		b.Summary = strings.TrimSpace(b.Summary)
		if b.Summary == "" {
			continue
		}
		facts := b.Facts[:0]
		for _, fact := range b.Facts {
			if fact = strings.TrimSpace(fact); fact != "" {
				facts = append(facts, fact)
			}
		}
		b.Facts = facts
		return &b, nil
	}
	return nil, fmt.Errorf("no brief object found in response")
}

// briefCandidates lists the substrings worth a parse attempt: the
// whole response, the first fenced block, the outermost balanced
// object.
func briefCandidates(content string) []string {
	candidates := []string{content}

	if idx := strings.Index(content, "```"); idx >= 0 {
		rest := content[idx+3:]
		rest = strings.TrimPrefix(rest, "json")
		rest = strings.TrimPrefix(rest, "JSON")
		if end := strings.Index(rest, "```"); end >= 0 {
			candidates = append(candidates, strings.TrimSpace(rest[:end]))
		}
	}

	if obj := extractObject(content); obj != "" {
		candidates = append(candidates, obj)
	}
	return candidates
}

// extractObject finds the outermost balanced { ... } block, skipping
// braces inside string literals.
func extractObject(s string) string {
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
		switch c {
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
					return s[start : i+1]
				}
			}
		}
	}
	return ""
}
