package models

import "encoding/json"

// TrainerStatus is the lifecycle state of an exam session.
type TrainerStatus string

const (
	TrainerPending   TrainerStatus = "PENDING"
	TrainerInProcess TrainerStatus = "IN_PROCESS"
	TrainerCompleted TrainerStatus = "COMPLETED"
	TrainerCancelled TrainerStatus = "CANCELLED"
	TrainerFailed    TrainerStatus = "FAILED"
	TrainerPassed    TrainerStatus = "PASSED"
)

// Terminal reports whether the session accepts no further transitions.
func (s TrainerStatus) Terminal() bool {
	switch s {
	case TrainerCompleted, TrainerCancelled, TrainerFailed, TrainerPassed:
		return true
	}
	return false
}

// QuestionType selects how a trainer's questions are generated.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionFillInBlank    QuestionType = "fill_in_blank"
	QuestionFlipCard       QuestionType = "flip_card"
	QuestionAudio          QuestionType = "audio_evaluation"
)

// QuestionOption is one labelled choice of a multiple-choice question.
type QuestionOption struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

// Question is one generated exam item. Answer holds the expected response
// and is authoritative at grading time.
type Question struct {
	ID           string           `json:"id"`
	VocabularyID string           `json:"vocabularyId"`
	Type         QuestionType     `json:"type"`
	Direction    string           `json:"direction,omitempty"` // "source" | "target"
	Prompt       string           `json:"prompt"`
	Options      []QuestionOption `json:"options,omitempty"`
	Hint         string           `json:"hint,omitempty"`
	Front        string           `json:"front,omitempty"`
	Back         string           `json:"back,omitempty"`
	Answer       string           `json:"answer"`
}

// VocabTrainer is an exam session over a set of vocabulary items.
type VocabTrainer struct {
	Base
	UserID        string        `json:"userId"        gorm:"type:char(36);index;not null"`
	Name          string        `json:"name"          gorm:"size:191"`
	Status        TrainerStatus `json:"status"        gorm:"type:varchar(16);index;not null"`
	QuestionType  QuestionType  `json:"questionType"  gorm:"type:varchar(32);not null"`
	Questions     []Question    `json:"questions"     gorm:"type:longtext;serializer:json"`
	VocabularyIDs StringArray   `json:"vocabularyIds" gorm:"type:longtext"`
	PassingScore  float64       `json:"passingScore"`
	Strict        bool          `json:"strict"`
	Score         *float64      `json:"score"`
}

func (VocabTrainer) TableName() string { return "vocab_trainers" }

// VocabTrainerResult is the single authoritative result row of a trainer.
type VocabTrainerResult struct {
	Base
	TrainerID      string          `json:"trainerId"      gorm:"type:char(36);uniqueIndex;not null"`
	UserID         string          `json:"userId"         gorm:"type:char(36);index;not null"`
	Status         TrainerStatus   `json:"status"         gorm:"type:varchar(16);not null"`
	UserSelected   string          `json:"userSelected"   gorm:"type:longtext"`
	SystemSelected string          `json:"systemSelected" gorm:"type:longtext"`
	Data           json.RawMessage `json:"data"           gorm:"type:longtext"`
}

func (VocabTrainerResult) TableName() string { return "vocab_trainer_results" }
