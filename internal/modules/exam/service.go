package exam

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/vocalingo/core/internal/config"
	"github.com/vocalingo/core/internal/models"
	"github.com/vocalingo/core/internal/modules/mastery"
	"github.com/vocalingo/core/internal/pkg/apperr"
	"github.com/vocalingo/core/internal/pkg/cache"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MasteryRecorder receives graded answers.
type MasteryRecorder interface {
	RecordAnswers(ctx context.Context, userID string, answers []mastery.Answer) ([]models.MasteryRecord, error)
}

type CreateInput struct {
	Name          string   `json:"name"`
	QuestionType  string   `json:"questionType"  binding:"required"`
	VocabularyIDs []string `json:"vocabularyIds" binding:"required"`
	PassingScore  *float64 `json:"passingScore"`
	Strict        *bool    `json:"strict"`
}

// Submission is one learner response. Known is used by flip cards only.
type Submission struct {
	QuestionID string `json:"questionId" binding:"required"`
	Answer     string `json:"answer"`
	Known      *bool  `json:"known"`
}

type ListFilter struct {
	Status string `json:"status,omitempty"`
}

type SubmitResult struct {
	Trainer *models.VocabTrainer       `json:"trainer"`
	Result  *models.VocabTrainerResult `json:"result"`
	Grade   GradeResult                `json:"grade"`
}

type Service struct {
	db      *gorm.DB
	cache   *cache.Cache
	mastery MasteryRecorder
	cfg     config.ExamConfig
	logger  *zap.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewService(db *gorm.DB, c *cache.Cache, m MasteryRecorder, cfg config.ExamConfig, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:      db,
		cache:   c,
		mastery: m,
		cfg:     cfg,
		logger:  logger.Named("ExamService"),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (*models.VocabTrainer, error) {
	qt, err := ParseQuestionType(in.QuestionType)
	if err != nil {
		return nil, err
	}
	ids := dedupe(in.VocabularyIDs)
	if len(ids) == 0 {
		return nil, apperr.Invalid("vocabularyIds", "at least one vocabulary item is required")
	}

	var vocabs []models.Vocabulary
	if err := s.db.WithContext(ctx).Where("user_id = ? AND id IN ?", userID, ids).Find(&vocabs).Error; err != nil {
		return nil, err
	}
	if len(vocabs) != len(ids) {
		return nil, apperr.Invalid("vocabularyIds", "unknown vocabulary item")
	}

	s.rngMu.Lock()
	questions, err := Generate(vocabs, qt, s.rng)
	s.rngMu.Unlock()
	if err != nil {
		return nil, err
	}

	trainer := &models.VocabTrainer{
		UserID:        userID,
		Name:          strings.TrimSpace(in.Name),
		Status:        models.TrainerPending,
		QuestionType:  qt,
		Questions:     questions,
		VocabularyIDs: models.StringArray(ids),
		PassingScore:  s.cfg.PassingScore,
		Strict:        s.cfg.Strict,
	}
	if in.PassingScore != nil {
		if *in.PassingScore <= 0 || *in.PassingScore > 100 {
			return nil, apperr.Invalid("passingScore", "must be within (0, 100]")
		}
		trainer.PassingScore = *in.PassingScore
	}
	if in.Strict != nil {
		trainer.Strict = *in.Strict
	}
	if trainer.PassingScore <= 0 {
		trainer.PassingScore = DefaultPassingScore
	}
	if err := s.db.WithContext(ctx).Create(trainer).Error; err != nil {
		return nil, err
	}
	s.cache.DeletePattern(ctx, cache.UserPattern(cache.PrefixTrainer, userID))
	return trainer, nil
}

// Get returns a trainer owned by userID.
func (s *Service) Get(ctx context.Context, userID, id string) (*models.VocabTrainer, error) {
	trainer, err := cache.Remember(ctx, s.cache, cache.Key(cache.PrefixTrainer, id), s.cache.TTL().List, func(ctx context.Context) (*models.VocabTrainer, error) {
		return s.load(ctx, s.db, id)
	})
	if err != nil {
		return nil, err
	}
	if trainer.UserID != userID {
		return nil, apperr.ErrNotFound
	}
	return trainer, nil
}

func (s *Service) load(ctx context.Context, db *gorm.DB, id string) (*models.VocabTrainer, error) {
	var trainer models.VocabTrainer
	err := db.WithContext(ctx).First(&trainer, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &trainer, nil
}

func (s *Service) List(ctx context.Context, userID string, f ListFilter) ([]models.VocabTrainer, error) {
	key := cache.ListKey(cache.PrefixTrainer, userID, f)
	return cache.Remember(ctx, s.cache, key, s.cache.TTL().List, func(ctx context.Context) ([]models.VocabTrainer, error) {
		out := []models.VocabTrainer{}
		q := s.db.WithContext(ctx).Where("user_id = ?", userID)
		if f.Status != "" {
			q = q.Where("status = ?", strings.ToUpper(f.Status))
		}
		err := q.Order("created_at DESC").Find(&out).Error
		return out, err
	})
}

// Start moves a pending trainer into progress.
func (s *Service) Start(ctx context.Context, userID, id string) (*models.VocabTrainer, error) {
	return s.transition(ctx, userID, id, models.TrainerInProcess, models.TrainerPending)
}

// Cancel abandons a trainer that has not finished.
func (s *Service) Cancel(ctx context.Context, userID, id string) (*models.VocabTrainer, error) {
	return s.transition(ctx, userID, id, models.TrainerCancelled, models.TrainerPending, models.TrainerInProcess)
}

// SetStatus moves a trainer to a new status from any non-terminal one.
func (s *Service) SetStatus(ctx context.Context, userID, id string, to models.TrainerStatus) (*models.VocabTrainer, error) {
	return s.transition(ctx, userID, id, to, models.TrainerPending, models.TrainerInProcess)
}

func (s *Service) transition(ctx context.Context, userID, id string, to models.TrainerStatus, from ...models.TrainerStatus) (*models.VocabTrainer, error) {
	res := s.db.WithContext(ctx).Model(&models.VocabTrainer{}).
		Where("id = ? AND user_id = ? AND status IN ?", id, userID, from).
		Update("status", to)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		current, err := s.load(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		if current.UserID != userID {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("%w: trainer is %s", apperr.ErrConflict, current.Status)
	}
	s.Invalidate(ctx, userID, id)
	return s.load(ctx, s.db, id)
}

// Submit grades a submission against the stored questions, stores the
// result row, and feeds every answer to the mastery engine.
func (s *Service) Submit(ctx context.Context, userID, id string, subs []Submission) (*SubmitResult, error) {
	if len(subs) == 0 {
		return nil, apperr.Invalid("answers", "submission is empty")
	}
	trainer, err := s.load(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if trainer.UserID != userID {
		return nil, apperr.ErrNotFound
	}
	if trainer.Status.Terminal() {
		return nil, fmt.Errorf("%w: trainer is %s", apperr.ErrConflict, trainer.Status)
	}
	if trainer.QuestionType == models.QuestionAudio {
		return nil, apperr.Invalid("questionType", "audio trainers are graded through evaluations")
	}

	answers, err := buildAnswers(trainer.Questions, subs)
	if err != nil {
		return nil, err
	}
	grade, err := Grade(answers, trainer.PassingScore)
	if err != nil {
		return nil, err
	}

	status := models.TrainerCompleted
	if trainer.Strict {
		status = models.TrainerFailed
		if grade.Passed {
			status = models.TrainerPassed
		}
	}

	data, err := json.Marshal(grade)
	if err != nil {
		return nil, err
	}
	user, system := make([]string, len(answers)), make([]string, len(answers))
	for i, a := range answers {
		user[i], system[i] = a.UserSelected, a.SystemSelected
	}
	result := &models.VocabTrainerResult{
		TrainerID:      trainer.ID,
		UserID:         userID,
		Status:         status,
		UserSelected:   strings.Join(user, "\n"),
		SystemSelected: strings.Join(system, "\n"),
		Data:           data,
	}

	score := grade.Score
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.VocabTrainer{}).
			Where("id = ? AND status IN ?", trainer.ID, []models.TrainerStatus{models.TrainerPending, models.TrainerInProcess}).
			Updates(map[string]interface{}{"status": status, "score": score})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: trainer was already submitted", apperr.ErrConflict)
		}
		saved, err := upsertResult(tx, result)
		if err != nil {
			return err
		}
		result = saved
		return nil
	})
	if err != nil {
		return nil, err
	}
	trainer.Status = status
	trainer.Score = &score

	if s.mastery != nil {
		mAnswers := make([]mastery.Answer, 0, len(grade.Items))
		for _, item := range grade.Items {
			mAnswers = append(mAnswers, mastery.Answer{VocabularyID: item.VocabularyID, Correct: item.Correct})
		}
		if _, err := s.mastery.RecordAnswers(ctx, userID, mAnswers); err != nil {
			s.logger.Error("failed to record mastery", zap.String("trainer", trainer.ID), zap.Error(err))
		}
	}
	s.Invalidate(ctx, userID, trainer.ID)
	return &SubmitResult{Trainer: trainer, Result: result, Grade: grade}, nil
}

// buildAnswers pairs submissions with stored questions. The expected value
// always comes from the stored generation; unanswered questions grade as wrong.
func buildAnswers(questions []models.Question, subs []Submission) ([]Answer, error) {
	byID := make(map[string]Submission, len(subs))
	for _, sub := range subs {
		byID[sub.QuestionID] = sub
	}
	known := make(map[string]struct{}, len(questions))
	answers := make([]Answer, 0, len(questions))
	for _, q := range questions {
		known[q.ID] = struct{}{}
		a := Answer{QuestionID: q.ID, VocabularyID: q.VocabularyID, SystemSelected: q.Answer}
		if sub, ok := byID[q.ID]; ok {
			a.UserSelected = sub.Answer
			if q.Type == models.QuestionFlipCard {
				recalled := sub.Known != nil && *sub.Known
				a.SelfGraded = &recalled
			}
		}
		answers = append(answers, a)
	}
	for id := range byID {
		if _, ok := known[id]; !ok {
			return nil, apperr.Invalid("questionId", fmt.Sprintf("unknown question %q", id))
		}
	}
	return answers, nil
}

// SaveResult stores the single authoritative result row of a trainer.
func (s *Service) SaveResult(ctx context.Context, result *models.VocabTrainerResult) (*models.VocabTrainerResult, error) {
	saved, err := upsertResult(s.db.WithContext(ctx), result)
	if err != nil {
		return nil, err
	}
	s.cache.Delete(ctx, cache.Key(cache.PrefixResult, result.TrainerID))
	return saved, nil
}

func upsertResult(tx *gorm.DB, result *models.VocabTrainerResult) (*models.VocabTrainerResult, error) {
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "trainer_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "status", "user_selected", "system_selected", "data", "updated_at"}),
	}).Create(result).Error
	if err != nil {
		return nil, fmt.Errorf("save trainer result: %w", err)
	}
	var saved models.VocabTrainerResult
	if err := tx.First(&saved, "trainer_id = ?", result.TrainerID).Error; err != nil {
		return nil, err
	}
	return &saved, nil
}

// Result returns the current result row of a trainer owned by userID.
func (s *Service) Result(ctx context.Context, userID, trainerID string) (*models.VocabTrainerResult, error) {
	res, err := cache.Remember(ctx, s.cache, cache.Key(cache.PrefixResult, trainerID), s.cache.TTL().List, func(ctx context.Context) (*models.VocabTrainerResult, error) {
		var r models.VocabTrainerResult
		err := s.db.WithContext(ctx).First(&r, "trainer_id = ?", trainerID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrNotFound
		}
		if err != nil {
			return nil, err
		}
		return &r, nil
	})
	if err != nil {
		return nil, err
	}
	if res.UserID != userID {
		return nil, apperr.ErrNotFound
	}
	return res, nil
}

// Vocabulary loads the items a trainer was built from.
func (s *Service) Vocabulary(ctx context.Context, trainer *models.VocabTrainer) ([]models.Vocabulary, error) {
	out := []models.Vocabulary{}
	if len(trainer.VocabularyIDs) == 0 {
		return out, nil
	}
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND id IN ?", trainer.UserID, []string(trainer.VocabularyIDs)).
		Find(&out).Error
	return out, err
}

// Invalidate drops cached copies of a trainer, its result and the owner's lists.
func (s *Service) Invalidate(ctx context.Context, userID, trainerID string) {
	s.cache.Delete(ctx, cache.Key(cache.PrefixTrainer, trainerID), cache.Key(cache.PrefixResult, trainerID))
	s.cache.DeletePattern(ctx, cache.UserPattern(cache.PrefixTrainer, userID))
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
