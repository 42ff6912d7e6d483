package models

// SystemScope is the settings scope shared by every user.
const SystemScope = "system"

// Setting is a scoped key/value pair; Value holds JSON text.
type Setting struct {
	Base
	Scope string `json:"scope" gorm:"column:scope;size:64;not null;uniqueIndex:idx_setting_scope_key,priority:1"`
	Key   string `json:"key"   gorm:"column:setting_key;size:128;not null;uniqueIndex:idx_setting_scope_key,priority:2"`
	Value string `json:"value" gorm:"type:longtext"`
}

func (Setting) TableName() string { return "settings" }
