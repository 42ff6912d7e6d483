package exam

import (
	"math"
	"strings"

	"github.com/vocalingo/core/internal/pkg/apperr"
)

// DefaultPassingScore applies when a trainer carries no threshold.
const DefaultPassingScore = 70.0

// Answer pairs what the learner gave with what the generated question expects.
// SelfGraded is set for flip cards, where the learner judges recall.
type Answer struct {
	QuestionID     string `json:"questionId"`
	VocabularyID   string `json:"vocabularyId"`
	UserSelected   string `json:"userSelected"`
	SystemSelected string `json:"systemSelected"`
	SelfGraded     *bool  `json:"selfGraded,omitempty"`
}

type GradedAnswer struct {
	Answer
	Correct bool `json:"correct"`
}

type GradeResult struct {
	Total   int            `json:"total"`
	Correct int            `json:"correct"`
	Score   float64        `json:"score"`
	Passed  bool           `json:"passed"`
	Items   []GradedAnswer `json:"items"`
}

// Grade scores a submission. It is pure: the same answers and threshold
// always produce the same result.
func Grade(answers []Answer, passingScore float64) (GradeResult, error) {
	if len(answers) == 0 {
		return GradeResult{}, apperr.Invalid("answers", "submission is empty")
	}
	if passingScore <= 0 {
		passingScore = DefaultPassingScore
	}
	res := GradeResult{Total: len(answers), Items: make([]GradedAnswer, len(answers))}
	for i, a := range answers {
		ok := matches(a.UserSelected, a.SystemSelected)
		if a.SelfGraded != nil {
			ok = *a.SelfGraded
		}
		if ok {
			res.Correct++
		}
		res.Items[i] = GradedAnswer{Answer: a, Correct: ok}
	}
	res.Score = math.Round(float64(res.Correct)/float64(res.Total)*10000) / 100
	res.Passed = res.Score >= passingScore
	return res, nil
}

func matches(user, system string) bool {
	u := normalize(user)
	return u != "" && u == normalize(system)
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
