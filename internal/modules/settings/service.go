package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/vocalingo/core/internal/models"
	"github.com/vocalingo/core/internal/pkg/apperr"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Well-known keys.
const (
	KeyAIProvider      = "ai.provider"
	KeyAIModel         = "ai.model"
	KeyAIAudioProvider = "ai.audio.provider"
	KeyAIAudioModel    = "ai.audio.model"
)

// Service persists scoped settings in the settings table.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Raw returns the stored JSON text for (scope, key).
func (s *Service) Raw(ctx context.Context, scope, key string) (string, bool, error) {
	var row models.Setting
	err := s.db.WithContext(ctx).Where("scope = ? AND setting_key = ?", scope, key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read setting %s/%s: %w", scope, key, err)
	}
	return row.Value, true, nil
}

// Set upserts a value, stored as JSON.
func (s *Service) Set(ctx context.Context, scope, key string, value interface{}) error {
	scope, key = strings.TrimSpace(scope), strings.TrimSpace(key)
	if scope == "" {
		return apperr.Invalid("scope", "required")
	}
	if key == "" {
		return apperr.Invalid("key", "required")
	}
	data, err := json.Marshal(value)
	if err != nil {
		return apperr.Invalid("value", err.Error())
	}
	row := models.Setting{Scope: scope, Key: key, Value: string(data)}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "scope"}, {Name: "setting_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
}

// Delete removes a setting; deleting a missing key is not an error.
func (s *Service) Delete(ctx context.Context, scope, key string) error {
	return s.db.WithContext(ctx).
		Where("scope = ? AND setting_key = ?", scope, key).
		Delete(&models.Setting{}).Error
}

// List returns all settings in a scope.
func (s *Service) List(ctx context.Context, scope string) ([]models.Setting, error) {
	var rows []models.Setting
	err := s.db.WithContext(ctx).Where("scope = ?", scope).Order("setting_key").Find(&rows).Error
	return rows, err
}
