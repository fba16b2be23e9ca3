package planner

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// buildPlannerPrompt assembles the system prompt. The response-format
// section is deliberately blunt; smaller models drift into prose
// without it.
func buildPlannerPrompt(req Request, narrationLang language.Tag) string {
	var prompt strings.Builder

	prompt.WriteString("You are a video storyboard machine. You plan a short animated explainer video and output ONLY a JSON object: no markdown, no tables, no prose, no explanations.\n\n")

	prompt.WriteString("=== TASK ===\n")
	prompt.WriteString(fmt.Sprintf("Break the user's topic into exactly %d narrative beats.\n", BeatCount))
	prompt.WriteString("Beat 1 hooks the viewer, beats 2 and 3 develop the story, beat 4 resolves it.\n")

	if identity := req.Theme.IdentityBlock(); identity != "" {
		prompt.WriteString("\n=== CAST ===\n")
		prompt.WriteString(identity)
		prompt.WriteString("\nEvery beat's visual_prompt features this cast.\n")
	}

	if brief := strings.TrimSpace(req.Brief); brief != "" {
		prompt.WriteString("\n=== RESEARCH NOTES ===\n")
		prompt.WriteString(brief)
		prompt.WriteString("\nGround narrations in these notes where they apply.\n")
	}

	prompt.WriteString("\n=== BEAT REQUIREMENTS ===\n")
	prompt.WriteString(fmt.Sprintf("- narration: %d to %d spoken words of plain prose, written in %s. No stage directions, no camera talk.\n",
		narrationMinWords, narrationMaxWords, languageName(narrationLang)))
	prompt.WriteString("- title: 2 to 6 words.\n")
	prompt.WriteString("- visual_prompt: one vivid scene for an image-to-video model with a concrete subject, motion, and setting. No on-screen text.\n")

	prompt.WriteString("\n=== RESPONSE FORMAT (MANDATORY) ===\n")
	prompt.WriteString("Your message must contain ONLY a JSON object like this:\n")
	prompt.WriteString(`{"beats":[{"title":"...","narration":"...","visual_prompt":"..."}]}` + "\n\n")
	prompt.WriteString("RULES:\n")
	prompt.WriteString(fmt.Sprintf("- \"beats\" has exactly %d elements.\n", BeatCount))
	prompt.WriteString("- NO markdown, NO code fences, NO explanations.\n")
	prompt.WriteString("- The response must start with { and end with }.\n")

	return prompt.String()
}

// buildUserMessage is the first conversation turn.
func buildUserMessage(topic string) string {
	return fmt.Sprintf(
		"Plan the four-beat video about %q. "+
			"Respond with ONLY the JSON object, starting with { and ending with }.",
		topic,
	)
}

// buildCorrectiveMessage is sent in the same conversation after a
// response that failed to parse or validate.
func buildCorrectiveMessage(problem error) string {
	return fmt.Sprintf(
		"Your previous output was invalid: %v. "+
			"Respond again with ONLY the JSON object "+
			`{"beats":[{"title","narration","visual_prompt"}]}`+
			" containing exactly %d beats. No other text.",
		problem, BeatCount,
	)
}

// buildRewriteMessage asks for a single narration to be brought into
// the word window without losing its meaning.
func buildRewriteMessage(narration string, lang language.Tag) string {
	return fmt.Sprintf(
		"Rewrite this narration to between %d and %d words in %s. "+
			"Keep the facts and the spoken-prose tone. "+
			"Respond with the narration text only, no quotes, no preamble:\n%s",
		narrationMinWords, narrationMaxWords, languageName(lang), narration,
	)
}

func languageName(tag language.Tag) string {
	if name := display.English.Languages().Name(tag); name != "" {
		return name
	}
	return tag.String()
}
