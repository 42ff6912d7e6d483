package vocab

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/vocalingo/core/internal/models"
	"github.com/vocalingo/core/internal/pkg/apperr"
	"github.com/vocalingo/core/internal/pkg/cache"
	"github.com/vocalingo/core/internal/pkg/pagination"
	"github.com/vocalingo/core/internal/pkg/quota"
	"github.com/vocalingo/core/internal/pkg/response"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	maxTextLength = 512
	maxRandom     = 50
)

type VocabularyInput struct {
	Source         string  `json:"source"         binding:"required"`
	Target         string  `json:"target"         binding:"required"`
	SourceLanguage string  `json:"sourceLanguage"`
	TargetLanguage string  `json:"targetLanguage"`
	FolderID       *string `json:"folderId"`
	SubjectID      *string `json:"subjectId"`
}

type VocabularyFilter struct {
	FolderID  string `json:"folderId,omitempty"`
	SubjectID string `json:"subjectId,omitempty"`
	Query     string `json:"q,omitempty"`
	Page      int    `json:"page"`
	Size      int    `json:"size"`
}

type VocabularyPage struct {
	Items      []models.Vocabulary `json:"items"`
	Pagination response.Pagination `json:"pagination"`
}

// QuotaUsage reports how much of each quota a user has consumed.
type QuotaUsage struct {
	VocabularyToday int64 `json:"vocabularyToday"`
	VocabularyLimit int64 `json:"vocabularyLimit"`
	Folders         int64 `json:"folders"`
	FolderLimit     int64 `json:"folderLimit"`
	Subjects        int64 `json:"subjects"`
	SubjectLimit    int64 `json:"subjectLimit"`
	Exempt          bool  `json:"exempt"`
}

func cleanText(field, v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", apperr.Invalid(field, "is required")
	}
	if len(v) > maxTextLength {
		return "", apperr.Invalid(field, fmt.Sprintf("must be at most %d bytes", maxTextLength))
	}
	return v, nil
}

// CreateVocabulary stores a new item under the daily creation quota. The
// reserved quota unit is released when the insert fails.
func (s *Service) CreateVocabulary(ctx context.Context, actor Actor, in VocabularyInput) (*models.Vocabulary, error) {
	source, err := cleanText("source", in.Source)
	if err != nil {
		return nil, err
	}
	target, err := cleanText("target", in.Target)
	if err != nil {
		return nil, err
	}
	item := &models.Vocabulary{
		UserID:         actor.UserID,
		Source:         source,
		Target:         target,
		SourceLanguage: strings.ToLower(strings.TrimSpace(in.SourceLanguage)),
		TargetLanguage: strings.ToLower(strings.TrimSpace(in.TargetLanguage)),
	}
	if id := optional(in.FolderID); id != nil {
		if _, err := s.GetFolder(ctx, actor.UserID, *id); err != nil {
			return nil, apperr.Invalid("folderId", "unknown folder")
		}
		item.FolderID = id
	}
	if id := optional(in.SubjectID); id != nil {
		if _, err := s.GetSubject(ctx, actor.UserID, *id); err != nil {
			return nil, apperr.Invalid("subjectId", "unknown subject")
		}
		item.SubjectID = id
	}

	if s.gate != nil {
		if err := s.gate.CheckDaily(ctx, actor.subject(), quota.ResourceVocabulary, s.limits.DailyVocabulary); err != nil {
			return nil, err
		}
	}
	if err := s.db.WithContext(ctx).Create(item).Error; err != nil {
		if s.gate != nil {
			s.gate.Release(ctx, actor.subject(), quota.ResourceVocabulary)
		}
		s.logger.Warn("vocabulary insert failed", zap.String("user", actor.UserID), zap.Error(err))
		return nil, err
	}
	s.cache.DeletePattern(ctx, cache.UserPattern(cache.PrefixVocabulary, actor.UserID))
	return item, nil
}

func optional(id *string) *string {
	if id == nil {
		return nil
	}
	v := strings.TrimSpace(*id)
	if v == "" {
		return nil
	}
	return &v
}

func (s *Service) GetVocabulary(ctx context.Context, userID, id string) (*models.Vocabulary, error) {
	item, err := cache.Remember(ctx, s.cache, cache.Key(cache.PrefixVocabulary, id), s.cache.TTL().Reference, func(ctx context.Context) (*models.Vocabulary, error) {
		var v models.Vocabulary
		if err := s.db.WithContext(ctx).First(&v, "id = ?", id).Error; err != nil {
			return nil, notFound("vocabulary", id, err)
		}
		return &v, nil
	})
	if err != nil {
		return nil, err
	}
	if item.UserID != userID {
		return nil, fmt.Errorf("%w: vocabulary %s", apperr.ErrNotFound, id)
	}
	return item, nil
}

func (s *Service) ListVocabulary(ctx context.Context, userID string, f VocabularyFilter) (*VocabularyPage, error) {
	q := pagination.Query{Page: f.Page, Size: f.Size}
	if q.Page < 1 {
		q.Page = pagination.DefaultPage
	}
	if q.Size < 1 {
		q.Size = pagination.DefaultSize
	}
	if q.Size > pagination.MaxSize {
		q.Size = pagination.MaxSize
	}
	f.Page, f.Size = q.Page, q.Size
	f.Query = strings.TrimSpace(f.Query)

	return cache.Remember(ctx, s.cache, cache.ListKey(cache.PrefixVocabulary, userID, f), s.cache.TTL().List, func(ctx context.Context) (*VocabularyPage, error) {
		db := s.db.WithContext(ctx).Model(&models.Vocabulary{}).Where("user_id = ?", userID)
		if f.FolderID != "" {
			db = db.Where("folder_id = ?", f.FolderID)
		}
		if f.SubjectID != "" {
			db = db.Where("subject_id = ?", f.SubjectID)
		}
		if f.Query != "" {
			like := "%" + f.Query + "%"
			db = db.Where("source LIKE ? OR target LIKE ?", like, like)
		}
		items := []models.Vocabulary{}
		page, err := pagination.Paginate(db.Order("created_at DESC"), q, &items)
		if err != nil {
			return nil, err
		}
		return &VocabularyPage{Items: items, Pagination: page}, nil
	})
}

// DeleteVocabulary removes the item together with its mastery record and
// history, so analytics stop counting it.
func (s *Service) DeleteVocabulary(ctx context.Context, userID, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND user_id = ?", id, userID).Delete(&models.Vocabulary{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: vocabulary %s", apperr.ErrNotFound, id)
		}
		if err := tx.Where("user_id = ? AND vocabulary_id = ?", userID, id).Delete(&models.MasteryHistory{}).Error; err != nil {
			return fmt.Errorf("delete mastery history: %w", err)
		}
		if err := tx.Where("user_id = ? AND vocabulary_id = ?", userID, id).Delete(&models.MasteryRecord{}).Error; err != nil {
			return fmt.Errorf("delete mastery record: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.cache.Delete(ctx, cache.Key(cache.PrefixVocabulary, id))
	s.cache.DeletePattern(ctx, cache.UserPattern(cache.PrefixVocabulary, userID))
	s.cache.DeletePattern(ctx, cache.UserPattern(cache.PrefixMastery, userID))
	return nil
}

// RandomVocabulary samples up to n distinct items of the user. Samples are
// cached briefly so a practice screen reloading does not reshuffle.
func (s *Service) RandomVocabulary(ctx context.Context, userID string, n int) ([]models.Vocabulary, error) {
	if n < 1 {
		return nil, apperr.Invalid("count", "must be positive")
	}
	if n > maxRandom {
		n = maxRandom
	}
	key := cache.UserKey(cache.PrefixVocabulary, userID, "random", strconv.Itoa(n))
	return cache.Remember(ctx, s.cache, key, s.cache.TTL().Random, func(ctx context.Context) ([]models.Vocabulary, error) {
		var ids []string
		if err := s.db.WithContext(ctx).Model(&models.Vocabulary{}).Where("user_id = ?", userID).Pluck("id", &ids).Error; err != nil {
			return nil, err
		}
		s.rngMu.Lock()
		s.rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
		s.rngMu.Unlock()
		if len(ids) > n {
			ids = ids[:n]
		}
		out := []models.Vocabulary{}
		if len(ids) == 0 {
			return out, nil
		}
		return out, s.db.WithContext(ctx).Where("id IN ?", ids).Find(&out).Error
	})
}

// Usage reads the user's quota consumption.
func (s *Service) Usage(ctx context.Context, actor Actor) (*QuotaUsage, error) {
	u := &QuotaUsage{
		VocabularyLimit: s.limits.DailyVocabulary,
		FolderLimit:     s.limits.MaxFolders,
		SubjectLimit:    s.limits.MaxSubjects,
	}
	if s.gate != nil {
		u.Exempt = s.gate.Exempt(actor.subject())
		today, err := s.gate.Usage(ctx, actor.UserID, quota.ResourceVocabulary)
		if err != nil {
			return nil, err
		}
		u.VocabularyToday = today
	}
	var err error
	if u.Folders, err = s.countOwned(&models.Folder{}, actor.UserID)(ctx); err != nil {
		return nil, err
	}
	if u.Subjects, err = s.countOwned(&models.Subject{}, actor.UserID)(ctx); err != nil {
		return nil, err
	}
	return u, nil
}
