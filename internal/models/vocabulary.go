package models

type Folder struct {
	Base
	UserID string `json:"userId" gorm:"type:char(36);index;not null"`
	Name   string `json:"name"   gorm:"size:191;not null"`
}

func (Folder) TableName() string { return "folders" }

type Subject struct {
	Base
	UserID string `json:"userId" gorm:"type:char(36);index;not null"`
	Name   string `json:"name"   gorm:"size:191;not null"`
}

func (Subject) TableName() string { return "subjects" }

// Vocabulary is a (source, target) text pair owned by a user.
type Vocabulary struct {
	Base
	UserID         string  `json:"userId"         gorm:"type:char(36);index;not null"`
	FolderID       *string `json:"folderId"       gorm:"type:char(36);index"`
	SubjectID      *string `json:"subjectId"      gorm:"type:char(36);index"`
	Source         string  `json:"source"         gorm:"size:512;not null"`
	Target         string  `json:"target"         gorm:"size:512;not null"`
	SourceLanguage string  `json:"sourceLanguage" gorm:"size:16"`
	TargetLanguage string  `json:"targetLanguage" gorm:"size:16"`
}

func (Vocabulary) TableName() string { return "vocabularies" }
