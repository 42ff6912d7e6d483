package vocab

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/vocalingo/core/internal/config"
	"github.com/vocalingo/core/internal/models"
	"github.com/vocalingo/core/internal/pkg/apperr"
	"github.com/vocalingo/core/internal/pkg/cache"
	"github.com/vocalingo/core/internal/pkg/quota"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxNameLength = 191

type FolderInput struct {
	Name string `json:"name" binding:"required"`
}

type FolderFilter struct {
	Name string `json:"name,omitempty"`
}

type SubjectInput struct {
	Name string `json:"name" binding:"required"`
}

// Service owns folders, subjects and vocabulary items. Reads are cache-aside;
// every write invalidates the keys it could stale.
type Service struct {
	db     *gorm.DB
	cache  *cache.Cache
	gate   *quota.Gate
	limits config.QuotaConfig
	logger *zap.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewService(db *gorm.DB, c *cache.Cache, gate *quota.Gate, limits config.QuotaConfig, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:     db,
		cache:  c,
		gate:   gate,
		limits: limits,
		logger: logger.Named("VocabService"),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Actor is the user performing a write, with the role that decides quotas.
type Actor struct {
	UserID string
	Role   models.Role
}

func (a Actor) subject() quota.Subject {
	return quota.Subject{UserID: a.UserID, Role: string(a.Role)}
}

func cleanName(field, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperr.Invalid(field, "is required")
	}
	if len(name) > maxNameLength {
		return "", apperr.Invalid(field, fmt.Sprintf("must be at most %d bytes", maxNameLength))
	}
	return name, nil
}

func (s *Service) countOwned(model interface{}, userID string) func(context.Context) (int64, error) {
	return func(ctx context.Context) (int64, error) {
		var n int64
		err := s.db.WithContext(ctx).Model(model).Where("user_id = ?", userID).Count(&n).Error
		return n, err
	}
}

func (s *Service) CreateFolder(ctx context.Context, actor Actor, in FolderInput) (*models.Folder, error) {
	name, err := cleanName("name", in.Name)
	if err != nil {
		return nil, err
	}
	if s.gate != nil {
		if err := s.gate.CheckCapacity(ctx, actor.subject(), quota.ResourceFolders, s.limits.MaxFolders, s.countOwned(&models.Folder{}, actor.UserID)); err != nil {
			return nil, err
		}
	}
	folder := &models.Folder{UserID: actor.UserID, Name: name}
	if err := s.db.WithContext(ctx).Create(folder).Error; err != nil {
		return nil, err
	}
	s.cache.DeletePattern(ctx, cache.UserPattern(cache.PrefixFolder, actor.UserID))
	return folder, nil
}

func (s *Service) GetFolder(ctx context.Context, userID, id string) (*models.Folder, error) {
	folder, err := cache.Remember(ctx, s.cache, cache.Key(cache.PrefixFolder, id), s.cache.TTL().Reference, func(ctx context.Context) (*models.Folder, error) {
		var f models.Folder
		if err := s.db.WithContext(ctx).First(&f, "id = ?", id).Error; err != nil {
			return nil, notFound("folder", id, err)
		}
		return &f, nil
	})
	if err != nil {
		return nil, err
	}
	if folder.UserID != userID {
		return nil, fmt.Errorf("%w: folder %s", apperr.ErrNotFound, id)
	}
	return folder, nil
}

func (s *Service) ListFolders(ctx context.Context, userID string, f FolderFilter) ([]models.Folder, error) {
	f.Name = strings.TrimSpace(f.Name)
	return cache.Remember(ctx, s.cache, cache.ListKey(cache.PrefixFolder, userID, f), s.cache.TTL().List, func(ctx context.Context) ([]models.Folder, error) {
		out := []models.Folder{}
		q := s.db.WithContext(ctx).Where("user_id = ?", userID)
		if f.Name != "" {
			q = q.Where("name LIKE ?", "%"+f.Name+"%")
		}
		return out, q.Order("created_at ASC").Find(&out).Error
	})
}

func (s *Service) UpdateFolder(ctx context.Context, userID, id string, in FolderInput) (*models.Folder, error) {
	name, err := cleanName("name", in.Name)
	if err != nil {
		return nil, err
	}
	res := s.db.WithContext(ctx).Model(&models.Folder{}).Where("id = ? AND user_id = ?", id, userID).Update("name", name)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: folder %s", apperr.ErrNotFound, id)
	}
	s.invalidateFolder(ctx, userID, id)
	return s.GetFolder(ctx, userID, id)
}

// DeleteFolder removes a folder and detaches its vocabulary.
func (s *Service) DeleteFolder(ctx context.Context, userID, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND user_id = ?", id, userID).Delete(&models.Folder{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: folder %s", apperr.ErrNotFound, id)
		}
		return tx.Model(&models.Vocabulary{}).Where("folder_id = ? AND user_id = ?", id, userID).Update("folder_id", nil).Error
	})
	if err != nil {
		return err
	}
	s.invalidateFolder(ctx, userID, id)
	s.cache.DeletePattern(ctx, cache.UserPattern(cache.PrefixVocabulary, userID))
	return nil
}

func (s *Service) invalidateFolder(ctx context.Context, userID, id string) {
	s.cache.Delete(ctx, cache.Key(cache.PrefixFolder, id))
	s.cache.DeletePattern(ctx, cache.UserPattern(cache.PrefixFolder, userID))
}

func (s *Service) CreateSubject(ctx context.Context, actor Actor, in SubjectInput) (*models.Subject, error) {
	name, err := cleanName("name", in.Name)
	if err != nil {
		return nil, err
	}
	if s.gate != nil {
		if err := s.gate.CheckCapacity(ctx, actor.subject(), quota.ResourceSubjects, s.limits.MaxSubjects, s.countOwned(&models.Subject{}, actor.UserID)); err != nil {
			return nil, err
		}
	}
	subject := &models.Subject{UserID: actor.UserID, Name: name}
	if err := s.db.WithContext(ctx).Create(subject).Error; err != nil {
		return nil, err
	}
	s.cache.DeletePattern(ctx, cache.UserPattern(cache.PrefixSubject, actor.UserID))
	return subject, nil
}

func (s *Service) GetSubject(ctx context.Context, userID, id string) (*models.Subject, error) {
	subject, err := cache.Remember(ctx, s.cache, cache.Key(cache.PrefixSubject, id), s.cache.TTL().Reference, func(ctx context.Context) (*models.Subject, error) {
		var sub models.Subject
		if err := s.db.WithContext(ctx).First(&sub, "id = ?", id).Error; err != nil {
			return nil, notFound("subject", id, err)
		}
		return &sub, nil
	})
	if err != nil {
		return nil, err
	}
	if subject.UserID != userID {
		return nil, fmt.Errorf("%w: subject %s", apperr.ErrNotFound, id)
	}
	return subject, nil
}

func (s *Service) ListSubjects(ctx context.Context, userID string) ([]models.Subject, error) {
	return cache.Remember(ctx, s.cache, cache.ListKey(cache.PrefixSubject, userID, struct{}{}), s.cache.TTL().List, func(ctx context.Context) ([]models.Subject, error) {
		out := []models.Subject{}
		return out, s.db.WithContext(ctx).Where("user_id = ?", userID).Order("name ASC").Find(&out).Error
	})
}

func (s *Service) DeleteSubject(ctx context.Context, userID, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND user_id = ?", id, userID).Delete(&models.Subject{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: subject %s", apperr.ErrNotFound, id)
		}
		return tx.Model(&models.Vocabulary{}).Where("subject_id = ? AND user_id = ?", id, userID).Update("subject_id", nil).Error
	})
	if err != nil {
		return err
	}
	s.cache.Delete(ctx, cache.Key(cache.PrefixSubject, id))
	s.cache.DeletePattern(ctx, cache.UserPattern(cache.PrefixSubject, userID))
	s.cache.DeletePattern(ctx, cache.UserPattern(cache.PrefixVocabulary, userID))
	s.cache.DeletePattern(ctx, cache.UserPattern(cache.PrefixMastery, userID))
	return nil
}

func notFound(kind, id string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s %s", apperr.ErrNotFound, kind, id)
	}
	return err
}
