package mastery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/vocalingo/core/internal/models"
	"github.com/vocalingo/core/internal/pkg/apperr"
	"github.com/vocalingo/core/internal/pkg/cache"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Answer is one graded response to a vocabulary item.
type Answer struct {
	VocabularyID string
	Correct      bool
}

type Summary struct {
	TotalRecords   int64   `json:"totalRecords"`
	TotalCorrect   int64   `json:"totalCorrect"`
	TotalIncorrect int64   `json:"totalIncorrect"`
	AverageScore   float64 `json:"averageScore"`
}

type SubjectMastery struct {
	SubjectID    string  `json:"subjectId"`
	SubjectName  string  `json:"subjectName"`
	Records      int64   `json:"records"`
	AverageScore float64 `json:"averageScore"`
}

type BandCount struct {
	Band  string `json:"band"`
	Count int64  `json:"count"`
}

type DailyProgress struct {
	Date         string  `json:"date"`
	AverageScore float64 `json:"averageScore"`
	Answers      int     `json:"answers"`
}

type ProblematicItem struct {
	VocabularyID   string  `json:"vocabularyId"`
	Source         string  `json:"source"`
	Target         string  `json:"target"`
	CorrectCount   int     `json:"correctCount"`
	IncorrectCount int     `json:"incorrectCount"`
	MasteryScore   float64 `json:"masteryScore"`
}

type Service struct {
	db     *gorm.DB
	cache  *cache.Cache
	logger *zap.Logger
	now    func() time.Time
}

func NewService(db *gorm.DB, c *cache.Cache, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: db, cache: c, logger: logger.Named("MasteryService"), now: time.Now}
}

// RecordAnswer applies one graded answer.
func (s *Service) RecordAnswer(ctx context.Context, userID, vocabularyID string, correct bool) (*models.MasteryRecord, error) {
	records, err := s.RecordAnswers(ctx, userID, []Answer{{VocabularyID: vocabularyID, Correct: correct}})
	if err != nil {
		return nil, err
	}
	return &records[0], nil
}

// RecordAnswers applies answers in order inside one transaction. Records are
// created lazily; each answer appends a history snapshot.
func (s *Service) RecordAnswers(ctx context.Context, userID string, answers []Answer) ([]models.MasteryRecord, error) {
	if userID == "" {
		return nil, apperr.Invalid("userId", "is required")
	}
	if len(answers) == 0 {
		return []models.MasteryRecord{}, nil
	}
	out := make([]models.MasteryRecord, 0, len(answers))
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, a := range answers {
			if a.VocabularyID == "" {
				return apperr.Invalid("vocabularyId", "is required")
			}
			rec, err := s.apply(tx, userID, a)
			if err != nil {
				return err
			}
			out = append(out, *rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Invalidate(ctx, userID)
	return out, nil
}

func (s *Service) apply(tx *gorm.DB, userID string, a Answer) (*models.MasteryRecord, error) {
	seed := models.MasteryRecord{UserID: userID, VocabularyID: a.VocabularyID, MasteryScore: Score(0, 0)}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "vocabulary_id"}},
		DoNothing: true,
	}).Create(&seed).Error
	if err != nil {
		return nil, fmt.Errorf("create mastery record: %w", err)
	}

	column := "incorrect_count"
	if a.Correct {
		column = "correct_count"
	}
	now := s.now()
	res := tx.Model(&models.MasteryRecord{}).
		Where("user_id = ? AND vocabulary_id = ?", userID, a.VocabularyID).
		Updates(map[string]interface{}{
			column:             gorm.Expr(column + " + 1"),
			"last_reviewed_at": now,
		})
	if res.Error != nil {
		return nil, res.Error
	}

	var rec models.MasteryRecord
	if err := tx.Where("user_id = ? AND vocabulary_id = ?", userID, a.VocabularyID).First(&rec).Error; err != nil {
		return nil, err
	}
	rec.MasteryScore = Score(rec.CorrectCount, rec.IncorrectCount)
	if err := tx.Model(&rec).Update("mastery_score", rec.MasteryScore).Error; err != nil {
		return nil, err
	}

	history := models.MasteryHistory{
		MasteryRecordID: rec.ID,
		UserID:          userID,
		VocabularyID:    a.VocabularyID,
		Correct:         a.Correct,
		MasteryScore:    rec.MasteryScore,
	}
	history.CreatedAt = now
	if err := tx.Create(&history).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// Invalidate drops every cached mastery aggregate of a user.
func (s *Service) Invalidate(ctx context.Context, userID string) {
	s.cache.DeletePattern(ctx, cache.UserPattern(cache.PrefixMastery, userID))
}

func (s *Service) Record(ctx context.Context, userID, vocabularyID string) (*models.MasteryRecord, error) {
	var rec models.MasteryRecord
	err := s.db.WithContext(ctx).Where("user_id = ? AND vocabulary_id = ?", userID, vocabularyID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Service) Summary(ctx context.Context, userID string) (Summary, error) {
	key := cache.UserKey(cache.PrefixMastery, userID, "summary")
	return cache.Remember(ctx, s.cache, key, s.cache.TTL().Aggregate, func(ctx context.Context) (Summary, error) {
		var out Summary
		err := s.db.WithContext(ctx).Model(&models.MasteryRecord{}).
			Select("COUNT(*) AS total_records, COALESCE(SUM(correct_count), 0) AS total_correct, COALESCE(SUM(incorrect_count), 0) AS total_incorrect, COALESCE(AVG(mastery_score), 0) AS average_score").
			Where("user_id = ?", userID).
			Scan(&out).Error
		out.AverageScore = round2(out.AverageScore)
		return out, err
	})
}

func (s *Service) SubjectAverages(ctx context.Context, userID string) ([]SubjectMastery, error) {
	key := cache.UserKey(cache.PrefixMastery, userID, "subjects")
	return cache.Remember(ctx, s.cache, key, s.cache.TTL().Aggregate, func(ctx context.Context) ([]SubjectMastery, error) {
		out := []SubjectMastery{}
		err := s.db.WithContext(ctx).Table("mastery_records AS m").
			Select("v.subject_id AS subject_id, COALESCE(MAX(s.name), '') AS subject_name, COUNT(*) AS records, AVG(m.mastery_score) AS average_score").
			Joins("JOIN vocabularies AS v ON v.id = m.vocabulary_id").
			Joins("LEFT JOIN subjects AS s ON s.id = v.subject_id").
			Where("m.user_id = ? AND v.subject_id IS NOT NULL", userID).
			Group("v.subject_id").
			Order("average_score ASC").
			Scan(&out).Error
		for i := range out {
			out[i].AverageScore = round2(out[i].AverageScore)
		}
		return out, err
	})
}

func (s *Service) Distribution(ctx context.Context, userID string) ([]BandCount, error) {
	key := cache.UserKey(cache.PrefixMastery, userID, "distribution")
	return cache.Remember(ctx, s.cache, key, s.cache.TTL().Aggregate, func(ctx context.Context) ([]BandCount, error) {
		var scores []float64
		if err := s.db.WithContext(ctx).Model(&models.MasteryRecord{}).
			Where("user_id = ?", userID).
			Pluck("mastery_score", &scores).Error; err != nil {
			return nil, err
		}
		counts := make(map[string]int64, len(Bands))
		for _, sc := range scores {
			counts[Band(sc)]++
		}
		out := make([]BandCount, len(Bands))
		for i, b := range Bands {
			out[i] = BandCount{Band: b, Count: counts[b]}
		}
		return out, nil
	})
}

// ProgressFilter bounds Progress by day; zero values leave a side open.
type ProgressFilter struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Progress returns the daily average of history snapshots, oldest first.
func (s *Service) Progress(ctx context.Context, userID string, f ProgressFilter) ([]DailyProgress, error) {
	key := cache.ListKey(cache.PrefixMastery, userID, struct {
		Kind string
		ProgressFilter
	}{"progress", f})
	return cache.Remember(ctx, s.cache, key, s.cache.TTL().Aggregate, func(ctx context.Context) ([]DailyProgress, error) {
		q := s.db.WithContext(ctx).Model(&models.MasteryHistory{}).Where("user_id = ?", userID)
		if !f.From.IsZero() {
			q = q.Where("created_at >= ?", f.From)
		}
		if !f.To.IsZero() {
			q = q.Where("created_at <= ?", f.To)
		}
		var rows []struct {
			CreatedAt    time.Time
			MasteryScore float64
		}
		if err := q.Select("created_at, mastery_score").Order("created_at ASC").Scan(&rows).Error; err != nil {
			return nil, err
		}

		type agg struct {
			sum float64
			n   int
		}
		days := map[string]*agg{}
		for _, r := range rows {
			d := r.CreatedAt.UTC().Format("2006-01-02")
			a, ok := days[d]
			if !ok {
				a = &agg{}
				days[d] = a
			}
			a.sum += r.MasteryScore
			a.n++
		}
		out := make([]DailyProgress, 0, len(days))
		for d, a := range days {
			out = append(out, DailyProgress{Date: d, AverageScore: round2(a.sum / float64(a.n)), Answers: a.n})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
		return out, nil
	})
}

// Problematic lists items answered wrong at least threshold times, worst first.
func (s *Service) Problematic(ctx context.Context, userID string, threshold, limit int) ([]ProblematicItem, error) {
	if threshold < 1 {
		threshold = 1
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}
	key := cache.ListKey(cache.PrefixMastery, userID, map[string]interface{}{"kind": "problematic", "threshold": threshold, "limit": limit})
	return cache.Remember(ctx, s.cache, key, s.cache.TTL().Aggregate, func(ctx context.Context) ([]ProblematicItem, error) {
		out := []ProblematicItem{}
		err := s.db.WithContext(ctx).Table("mastery_records AS m").
			Select("m.vocabulary_id, COALESCE(v.source, '') AS source, COALESCE(v.target, '') AS target, m.correct_count, m.incorrect_count, m.mastery_score").
			Joins("LEFT JOIN vocabularies AS v ON v.id = m.vocabulary_id").
			Where("m.user_id = ? AND m.incorrect_count >= ?", userID, threshold).
			Order("m.incorrect_count DESC, m.mastery_score ASC").
			Limit(limit).
			Scan(&out).Error
		return out, err
	})
}
