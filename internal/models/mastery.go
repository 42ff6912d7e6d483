package models

import "time"

// MasteryRecord holds the running answer tally of one user on one vocabulary item.
type MasteryRecord struct {
	Base
	UserID         string     `json:"userId"         gorm:"type:char(36);not null;uniqueIndex:idx_mastery_user_vocab,priority:1"`
	VocabularyID   string     `json:"vocabularyId"   gorm:"type:char(36);not null;uniqueIndex:idx_mastery_user_vocab,priority:2"`
	CorrectCount   int        `json:"correctCount"   gorm:"not null;default:0"`
	IncorrectCount int        `json:"incorrectCount" gorm:"not null;default:0"`
	MasteryScore   float64    `json:"masteryScore"   gorm:"not null;default:0"`
	LastReviewedAt *time.Time `json:"lastReviewedAt"`
}

func (MasteryRecord) TableName() string { return "mastery_records" }

// MasteryHistory is an append-only snapshot taken after every recorded answer.
type MasteryHistory struct {
	Base
	MasteryRecordID string  `json:"masteryRecordId" gorm:"type:char(36);index;not null"`
	UserID          string  `json:"userId"          gorm:"type:char(36);index;not null"`
	VocabularyID    string  `json:"vocabularyId"    gorm:"type:char(36);not null"`
	Correct         bool    `json:"correct"`
	MasteryScore    float64 `json:"masteryScore"`
}

func (MasteryHistory) TableName() string { return "mastery_histories" }
