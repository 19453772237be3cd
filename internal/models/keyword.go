package models

import "time"

// Keyword is a learned macro: a stored command template executed later by
// name, with caller-supplied arguments appended.
type Keyword struct {
	Name      string `gorm:"primaryKey;size:64"`
	Noun      string `gorm:"size:64;not null"`
	Verb      string `gorm:"size:16;not null"`
	Data      string `gorm:"type:json"` // field name -> ordered string list
	Labels    string `gorm:"type:json"`
	CreatedBy string `gorm:"size:128"`

	CreatedAt time.Time
}
