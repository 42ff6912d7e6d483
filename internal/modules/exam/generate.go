package exam

import (
	"fmt"
	"math/rand"
	"strings"
	"unicode/utf8"

	"github.com/vocalingo/core/internal/models"
	"github.com/vocalingo/core/internal/pkg/apperr"
)

const (
	DirectionSource = "source"
	DirectionTarget = "target"

	maxOptions = 4
)

var optionLabels = []string{"A", "B", "C", "D"}

// ParseQuestionType validates a question type selector.
func ParseQuestionType(raw string) (models.QuestionType, error) {
	switch qt := models.QuestionType(strings.ToLower(strings.TrimSpace(raw))); qt {
	case models.QuestionMultipleChoice, models.QuestionFillInBlank, models.QuestionFlipCard, models.QuestionAudio:
		return qt, nil
	}
	return "", apperr.Invalid("questionType", fmt.Sprintf("unsupported question type %q", raw))
}

// Generate builds one question per vocabulary item and shuffles the set.
// Two calls may differ; grading only ever reads the stored result.
func Generate(vocabs []models.Vocabulary, qt models.QuestionType, rng *rand.Rand) ([]models.Question, error) {
	if len(vocabs) == 0 {
		return nil, apperr.Invalid("vocabularyIds", "at least one vocabulary item is required")
	}
	out := make([]models.Question, 0, len(vocabs))
	for i, v := range vocabs {
		q := models.Question{
			ID:           fmt.Sprintf("q%d", i+1),
			VocabularyID: v.ID,
			Type:         qt,
		}
		switch qt {
		case models.QuestionMultipleChoice:
			q.Direction = DirectionSource
			if rng.Intn(2) == 1 {
				q.Direction = DirectionTarget
			}
			q.Prompt, q.Answer = sides(v, q.Direction)
			q.Options = buildOptions(q.Answer, distractors(vocabs, i, q.Direction), rng)
		case models.QuestionFillInBlank:
			q.Direction = DirectionSource
			q.Prompt = v.Source
			q.Answer = v.Target
			q.Hint = mask(v.Target)
		case models.QuestionFlipCard:
			q.Prompt = v.Source
			q.Front = v.Source
			q.Back = v.Target
			q.Answer = v.Target
		case models.QuestionAudio:
			q.Direction = DirectionSource
			q.Prompt = v.Source
			q.Answer = v.Target
		default:
			return nil, apperr.Invalid("questionType", fmt.Sprintf("unsupported question type %q", qt))
		}
		out = append(out, q)
	}
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out, nil
}

// sides returns (prompt, answer) for a direction: "source" shows the source
// text and expects the target.
func sides(v models.Vocabulary, direction string) (string, string) {
	if direction == DirectionTarget {
		return v.Target, v.Source
	}
	return v.Source, v.Target
}

func distractors(vocabs []models.Vocabulary, skip int, direction string) []string {
	_, answer := sides(vocabs[skip], direction)
	seen := map[string]struct{}{normalize(answer): {}}
	out := make([]string, 0, len(vocabs))
	for i, v := range vocabs {
		if i == skip {
			continue
		}
		_, text := sides(v, direction)
		key := normalize(text)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, text)
	}
	return out
}

func buildOptions(answer string, pool []string, rng *rand.Rand) []models.QuestionOption {
	rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if len(pool) > maxOptions-1 {
		pool = pool[:maxOptions-1]
	}
	texts := append([]string{answer}, pool...)
	rng.Shuffle(len(texts), func(i, j int) { texts[i], texts[j] = texts[j], texts[i] })

	opts := make([]models.QuestionOption, len(texts))
	for i, t := range texts {
		opts[i] = models.QuestionOption{Label: optionLabels[i], Text: t}
	}
	return opts
}

// mask keeps the first letter of each word: "buenos días" -> "b_____ d___".
func mask(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(r) + strings.Repeat("_", utf8.RuneCountInString(w[size:]))
	}
	return strings.Join(words, " ")
}
