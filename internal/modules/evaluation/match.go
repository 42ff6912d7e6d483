package evaluation

import (
	"slices"
	"strings"
	"unicode"

	"github.com/texttheater/golang-levenshtein/levenshtein"
	"github.com/vocalingo/core/internal/models"
	"github.com/vocalingo/core/internal/modules/ai"
	"github.com/vocalingo/core/internal/modules/mastery"
)

// minSimilarity is the character-level similarity a transcript window needs
// to count as saying a word. It absorbs small transcription slips.
const minSimilarity = 0.8

func tokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '\''
	})
}

func similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 1
	}
	d := levenshtein.DistanceForStrings(ra, rb, levenshtein.DefaultOptionsWithSub)
	return 1 - float64(d)/float64(longest)
}

// spoken reports whether phrase occurs in transcript, comparing every window
// of the same word count.
func spoken(transcript []string, phrase string) bool {
	want := tokens(phrase)
	if len(want) == 0 || len(want) > len(transcript) {
		return false
	}
	target := strings.Join(want, " ")
	for i := 0; i+len(want) <= len(transcript); i++ {
		if similarity(strings.Join(transcript[i:i+len(want)], " "), target) >= minSimilarity {
			return true
		}
	}
	return false
}

// flagged reports whether an error span covers the phrase or falls inside
// it, compared on whole words so "in" never flags "dinner".
func flagged(report *ai.EvaluationReport, phrase string) bool {
	if report == nil {
		return false
	}
	p := tokens(phrase)
	if len(p) == 0 {
		return false
	}
	for _, e := range report.Errors {
		span := tokens(e.Span)
		if len(span) > 0 && (containsRun(span, p) || containsRun(p, span)) {
			return true
		}
	}
	return false
}

// containsRun reports whether sub occurs as a contiguous run in seq.
func containsRun(seq, sub []string) bool {
	for i := 0; i+len(sub) <= len(seq); i++ {
		if slices.Equal(seq[i:i+len(sub)], sub) {
			return true
		}
	}
	return false
}

// masteryAnswers maps source words onto the trainer's vocabulary. A word
// counts as correct when either side of its vocabulary item was spoken and
// the evaluator did not flag it. Words with no matching item are skipped.
func masteryAnswers(words []string, vocabs []models.Vocabulary, transcript string, report *ai.EvaluationReport) []mastery.Answer {
	heard := tokens(transcript)
	seen := make(map[string]struct{}, len(words))
	out := make([]mastery.Answer, 0, len(words))
	for _, w := range words {
		key := strings.ToLower(strings.TrimSpace(w))
		if key == "" {
			continue
		}
		for _, v := range vocabs {
			if strings.ToLower(strings.TrimSpace(v.Source)) != key && strings.ToLower(strings.TrimSpace(v.Target)) != key {
				continue
			}
			if _, dup := seen[v.ID]; dup {
				break
			}
			seen[v.ID] = struct{}{}
			said := spoken(heard, v.Source) || spoken(heard, v.Target)
			wrong := flagged(report, v.Source) || flagged(report, v.Target)
			out = append(out, mastery.Answer{VocabularyID: v.ID, Correct: said && !wrong})
			break
		}
	}
	return out
}
