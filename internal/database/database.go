package database

import (
	"fmt"

	"github.com/vocalingo/core/internal/config"
	"github.com/vocalingo/core/internal/models"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens a MySQL connection and optionally runs auto-migration.
func Connect(cfg *config.AppConfig, autoMigrate bool) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:               cfg.DSN,
		DefaultStringSize: 191,
	}), &gorm.Config{
		Logger: logger.Default.LogMode(resolveLogLevel(cfg)),
	})
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	if autoMigrate {
		if err := Migrate(db); err != nil {
			return nil, fmt.Errorf("migration failed: %w", err)
		}
	}
	return db, nil
}

func resolveLogLevel(cfg *config.AppConfig) logger.LogLevel {
	switch {
	case cfg.IsDev() && cfg.Log.Level == "debug":
		return logger.Info
	case cfg.IsDev():
		return logger.Silent
	default:
		return logger.Warn
	}
}

// Migrate runs GORM auto-migration for all models.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Folder{},
		&models.Subject{},
		&models.Vocabulary{},
		&models.VocabTrainer{},
		&models.VocabTrainerResult{},
		&models.MasteryRecord{},
		&models.MasteryHistory{},
		&models.Setting{},
	)
}
