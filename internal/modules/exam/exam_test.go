package exam

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vocalingo/core/internal/config"
	"github.com/vocalingo/core/internal/database/dbtest"
	"github.com/vocalingo/core/internal/models"
	"github.com/vocalingo/core/internal/modules/mastery"
	"github.com/vocalingo/core/internal/pkg/apperr"
	"github.com/vocalingo/core/internal/pkg/cache"
	"github.com/vocalingo/core/internal/pkg/redis/redistest"
	"gorm.io/gorm"
)

func sampleVocabs() []models.Vocabulary {
	pairs := [][2]string{{"Hello", "Hola"}, {"Goodbye", "Adiós"}, {"Thanks", "Gracias"}, {"Please", "Por favor"}, {"Good morning", "Buenos días"}}
	out := make([]models.Vocabulary, len(pairs))
	for i, p := range pairs {
		out[i] = models.Vocabulary{Source: p[0], Target: p[1]}
		out[i].ID = p[0]
	}
	return out
}

func TestGenerateMultipleChoice(t *testing.T) {
	vocabs := sampleVocabs()
	qs, err := Generate(vocabs, models.QuestionMultipleChoice, rand.New(rand.NewSource(7)))
	require.NoError(t, err)
	require.Len(t, qs, len(vocabs))

	seen := map[string]bool{}
	for _, q := range qs {
		seen[q.VocabularyID] = true
		require.LessOrEqual(t, len(q.Options), 4)
		require.GreaterOrEqual(t, len(q.Options), 2)

		found := 0
		for i, o := range q.Options {
			assert.Equal(t, optionLabels[i], o.Label)
			if o.Text == q.Answer {
				found++
			}
		}
		assert.Equal(t, 1, found, "answer appears exactly once in %+v", q)
		assert.Contains(t, []string{DirectionSource, DirectionTarget}, q.Direction)
	}
	assert.Len(t, seen, len(vocabs))
}

func TestGenerateOtherTypes(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	vocabs := sampleVocabs()[4:]

	qs, err := Generate(vocabs, models.QuestionFillInBlank, rng)
	require.NoError(t, err)
	assert.Equal(t, "Good morning", qs[0].Prompt)
	assert.Equal(t, "B_____ d___", qs[0].Hint)
	assert.Equal(t, "Buenos días", qs[0].Answer)

	qs, err = Generate(vocabs, models.QuestionFlipCard, rng)
	require.NoError(t, err)
	assert.Equal(t, "Good morning", qs[0].Front)
	assert.Equal(t, "Buenos días", qs[0].Back)

	_, err = Generate(nil, models.QuestionFlipCard, rng)
	require.ErrorIs(t, err, apperr.ErrValidation)
	_, err = ParseQuestionType("essay")
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestGradeIsPureAndDeterministic(t *testing.T) {
	answers := []Answer{
		{QuestionID: "q1", UserSelected: " hola ", SystemSelected: "Hola"},
		{QuestionID: "q2", UserSelected: "adios", SystemSelected: "Adiós"},
		{QuestionID: "q3", UserSelected: "", SystemSelected: ""},
		{QuestionID: "q4", UserSelected: "Buenos  Días", SystemSelected: "Buenos días"},
	}
	first, err := Grade(answers, 50)
	require.NoError(t, err)
	second, err := Grade(answers, 50)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	assert.Equal(t, 4, first.Total)
	assert.Equal(t, 2, first.Correct)
	assert.Equal(t, 50.0, first.Score)
	assert.True(t, first.Passed)
	assert.False(t, first.Items[2].Correct, "blank answers never match")
	assert.Equal(t, " hola ", answers[0].UserSelected, "input untouched")

	res, err := Grade(answers, 0)
	require.NoError(t, err)
	assert.False(t, res.Passed, "default threshold is 70")

	yes := true
	res, err = Grade([]Answer{{UserSelected: "", SystemSelected: "Hola", SelfGraded: &yes}}, 70)
	require.NoError(t, err)
	assert.Equal(t, 100.0, res.Score)

	_, err = Grade(nil, 70)
	require.ErrorIs(t, err, apperr.ErrValidation)
}

type fixture struct {
	db     *gorm.DB
	svc    *Service
	vocabs []models.Vocabulary
}

func setup(t *testing.T, cfg config.ExamConfig) fixture {
	t.Helper()
	db := dbtest.New(t)
	rc, _ := redistest.New(t)
	c := cache.New(rc)
	svc := NewService(db, c, mastery.NewService(db, c, nil), cfg, nil)

	vocabs := []models.Vocabulary{
		{UserID: "u1", Source: "Hello", Target: "Hola"},
		{UserID: "u1", Source: "Goodbye", Target: "Adiós"},
	}
	require.NoError(t, db.Create(&vocabs).Error)
	return fixture{db: db, svc: svc, vocabs: vocabs}
}

func (f fixture) ids() []string {
	out := make([]string, len(f.vocabs))
	for i, v := range f.vocabs {
		out[i] = v.ID
	}
	return out
}

func TestSessionLifecycle(t *testing.T) {
	f := setup(t, config.ExamConfig{PassingScore: 70})
	ctx := context.Background()

	trainer, err := f.svc.Create(ctx, "u1", CreateInput{Name: "Basics", QuestionType: "fill_in_blank", VocabularyIDs: f.ids()})
	require.NoError(t, err)
	assert.Equal(t, models.TrainerPending, trainer.Status)
	assert.Len(t, trainer.Questions, 2)

	_, err = f.svc.Get(ctx, "u2", trainer.ID)
	require.ErrorIs(t, err, apperr.ErrNotFound)

	started, err := f.svc.Start(ctx, "u1", trainer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TrainerInProcess, started.Status)
	_, err = f.svc.Start(ctx, "u1", trainer.ID)
	require.ErrorIs(t, err, apperr.ErrConflict)

	subs := make([]Submission, 0, 2)
	for _, q := range started.Questions {
		answer := q.Answer
		if q.Prompt == "Goodbye" {
			answer = "Chao"
		}
		subs = append(subs, Submission{QuestionID: q.ID, Answer: answer})
	}
	out, err := f.svc.Submit(ctx, "u1", trainer.ID, subs)
	require.NoError(t, err)
	assert.Equal(t, models.TrainerCompleted, out.Trainer.Status)
	assert.Equal(t, 50.0, out.Grade.Score)
	assert.False(t, out.Grade.Passed)
	assert.Equal(t, trainer.ID, out.Result.TrainerID)

	got, err := f.svc.Get(ctx, "u1", trainer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TrainerCompleted, got.Status, "cached copy was invalidated")
	require.NotNil(t, got.Score)

	_, err = f.svc.Submit(ctx, "u1", trainer.ID, subs)
	require.ErrorIs(t, err, apperr.ErrConflict)
	_, err = f.svc.Cancel(ctx, "u1", trainer.ID)
	require.ErrorIs(t, err, apperr.ErrConflict)

	var records []models.MasteryRecord
	require.NoError(t, f.db.Order("correct_count DESC").Find(&records).Error)
	require.Len(t, records, 2)
	assert.Equal(t, 1, records[0].CorrectCount)
	assert.Equal(t, 1, records[1].IncorrectCount)

	res, err := f.svc.Result(ctx, "u1", trainer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TrainerCompleted, res.Status)
}

func TestStrictGradingSurfacesPassed(t *testing.T) {
	f := setup(t, config.ExamConfig{PassingScore: 70, Strict: true})
	ctx := context.Background()

	trainer, err := f.svc.Create(ctx, "u1", CreateInput{QuestionType: "flip_card", VocabularyIDs: f.ids()})
	require.NoError(t, err)

	known := true
	subs := []Submission{}
	for _, q := range trainer.Questions {
		subs = append(subs, Submission{QuestionID: q.ID, Known: &known})
	}
	out, err := f.svc.Submit(ctx, "u1", trainer.ID, subs)
	require.NoError(t, err)
	assert.Equal(t, models.TrainerPassed, out.Trainer.Status)
	assert.Equal(t, models.TrainerPassed, out.Result.Status)
}

func TestCancelAndValidation(t *testing.T) {
	f := setup(t, config.ExamConfig{})
	ctx := context.Background()

	_, err := f.svc.Create(ctx, "u1", CreateInput{QuestionType: "multiple_choice", VocabularyIDs: []string{"missing"}})
	require.ErrorIs(t, err, apperr.ErrValidation)
	_, err = f.svc.Create(ctx, "u2", CreateInput{QuestionType: "multiple_choice", VocabularyIDs: f.ids()})
	require.ErrorIs(t, err, apperr.ErrValidation, "vocabulary of another user")

	trainer, err := f.svc.Create(ctx, "u1", CreateInput{QuestionType: "multiple_choice", VocabularyIDs: f.ids()})
	require.NoError(t, err)
	assert.Equal(t, DefaultPassingScore, trainer.PassingScore)

	_, err = f.svc.Submit(ctx, "u1", trainer.ID, []Submission{{QuestionID: "nope", Answer: "x"}})
	require.ErrorIs(t, err, apperr.ErrValidation)
	_, err = f.svc.Submit(ctx, "u1", trainer.ID, nil)
	require.ErrorIs(t, err, apperr.ErrValidation)

	cancelled, err := f.svc.Cancel(ctx, "u1", trainer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TrainerCancelled, cancelled.Status)

	list, err := f.svc.List(ctx, "u1", ListFilter{Status: "cancelled"})
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestSaveResultKeepsOneRow(t *testing.T) {
	f := setup(t, config.ExamConfig{})
	ctx := context.Background()
	trainer, err := f.svc.Create(ctx, "u1", CreateInput{QuestionType: "audio_evaluation", VocabularyIDs: f.ids()})
	require.NoError(t, err)

	for _, transcript := range []string{"first", "second"} {
		_, err := f.svc.SaveResult(ctx, &models.VocabTrainerResult{
			TrainerID:    trainer.ID,
			UserID:       "u1",
			Status:       models.TrainerCompleted,
			UserSelected: transcript,
			Data:         []byte(`{}`),
		})
		require.NoError(t, err)
	}

	var n int64
	require.NoError(t, f.db.Model(&models.VocabTrainerResult{}).Where("trainer_id = ?", trainer.ID).Count(&n).Error)
	assert.Equal(t, int64(1), n)
	res, err := f.svc.Result(ctx, "u1", trainer.ID)
	require.NoError(t, err)
	assert.Equal(t, "second", res.UserSelected)

	_, err = f.svc.Submit(ctx, "u1", trainer.ID, []Submission{{QuestionID: "q1"}})
	require.ErrorIs(t, err, apperr.ErrValidation)
}
