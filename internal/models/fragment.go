package models

import "time"

// Fragment is a suspended, partially-specified command awaiting one more
// piece of user input. Rows are insert-only: resumption either deletes the
// row or leaves it untouched, never updates it.
type Fragment struct {
	ID       string `gorm:"primaryKey;size:36"`
	UserID   string `gorm:"size:128;not null;index"`
	Noun     string `gorm:"size:64;not null"`
	Verb     string `gorm:"size:16;not null"`
	Key      string `gorm:"size:64;not null"`
	ParserID string `gorm:"size:64;not null"`
	Data     string `gorm:"type:json"` // field name -> ordered string list
	Labels   string `gorm:"type:json"`

	CreatedAt time.Time `gorm:"index"`
}
