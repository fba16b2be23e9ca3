package planner

import (
	"context"
	"fmt"
	"strings"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/language"

	"github.com/MimeLyc/beatreel/pkg/log"
)

// Narration word window. Four narrations inside this window keep the
// final video near the 45-90 second band the clips are generated for.
const (
	narrationMinWords = 14
	narrationMaxWords = 26
)

// bannedPhrases are assistant-isms stripped from narrations before
// word counting. Matched case-insensitively.
var bannedPhrases = []string{
	"as an ai language model",
	"as an ai",
	"as a language model",
	"i'm just an ai",
	"here is the narration:",
	"narration:",
}

// rewriteFunc asks the provider to rewrite one narration; providers
// plug in their own transport.
type rewriteFunc func(ctx context.Context, narration string) (string, error)

// normalizeBeats scrubs narrations and enforces the word window. An
// out-of-window narration gets one rewrite through the provider; if
// it is still over the cap it is trimmed deterministically. A failed
// rewrite downgrades to the trim, never fails the plan.
func normalizeBeats(ctx context.Context, beats []Beat, rewrite rewriteFunc) {
	for i := range beats {
		beats[i].Title = strings.TrimSpace(beats[i].Title)
		beats[i].VisualPrompt = strings.TrimSpace(beats[i].VisualPrompt)
		beats[i].Narration = scrubNarration(beats[i].Narration)

		words := wordCount(beats[i].Narration)
		if words >= narrationMinWords && words <= narrationMaxWords {
			continue
		}

		rewritten, err := rewrite(ctx, beats[i].Narration)
		if err != nil {
			log.Warn("Narration rewrite for beat %d failed: %v", i+1, err)
		} else if scrubbed := scrubNarration(rewritten); scrubbed != "" {
			beats[i].Narration = scrubbed
		}

		if wordCount(beats[i].Narration) > narrationMaxWords {
			beats[i].Narration = trimToWords(beats[i].Narration, narrationMaxWords)
		}
		if final := wordCount(beats[i].Narration); final < narrationMinWords {
			log.Warn("Beat %d narration stays short after rewrite (%d words)", i+1, final)
		}
	}
}

// scrubNarration strips assistant-isms, surrounding quotes and excess
// whitespace from one narration.
func scrubNarration(narration string) string {
	narration = strings.TrimSpace(narration)
	narration = strings.Trim(narration, `"`)

	lower := strings.ToLower(narration)
	for _, phrase := range bannedPhrases {
		for {
			idx := strings.Index(lower, phrase)
			if idx < 0 {
				break
			}
			end := idx + len(phrase)
			// Swallow a following comma or space so the sentence
			// still reads cleanly.
			for end < len(narration) && (narration[end] == ',' || narration[end] == ' ') {
				end++
			}
			narration = narration[:idx] + narration[end:]
			lower = strings.ToLower(narration)
		}
	}

	narration = strings.Join(strings.Fields(narration), " ")
	if narration == "" {
		return narration
	}

	// A scrub can leave the sentence starting lowercase.
	if narration[0] >= 'a' && narration[0] <= 'z' {
		narration = strings.ToUpper(narration[:1]) + narration[1:]
	}
	return narration
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

// trimToWords hard-caps a narration at max words and closes the
// sentence.
func trimToWords(s string, max int) string {
	words := strings.Fields(s)
	if len(words) <= max {
		return s
	}
	trimmed := strings.Join(words[:max], " ")
	trimmed = strings.TrimRight(trimmed, ",;:- ")
	if !strings.HasSuffix(trimmed, ".") && !strings.HasSuffix(trimmed, "!") && !strings.HasSuffix(trimmed, "?") {
		trimmed += "."
	}
	return trimmed
}

// checkLanguage verifies every narration reads in the configured
// narration language. A detection miss (unknown language) passes;
// a positive mismatch fails the attempt.
func checkLanguage(beats []Beat, want language.Tag) error {
	base, conf := want.Base()
	if conf == language.No {
		return nil
	}
	for i, beat := range beats {
		info := whatlanggo.Detect(beat.Narration)
		got := info.Lang.Iso6391()
		if got == "" {
			continue
		}
		if got != base.String() {
			return fmt.Errorf("beat %d narration detected as %q, want %q", i+1, got, base.String())
		}
	}
	return nil
}
