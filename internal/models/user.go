package models

import "time"

// User is an account known to the bot. The Name is the platform-agnostic
// identity that listeners map their own user ids onto.
type User struct {
	ID   string `gorm:"primaryKey;size:36"`
	Name string `gorm:"size:128;not null;uniqueIndex"`

	CreatedAt time.Time
	UpdatedAt time.Time

	Roles []Role `gorm:"many2many:user_roles"`
}

// Role names a set of grants. Grants are "noun:verb" patterns, with "*"
// matching any single segment.
type Role struct {
	ID     string `gorm:"primaryKey;size:36"`
	Name   string `gorm:"size:64;not null;uniqueIndex"`
	Grants string `gorm:"type:json"` // JSON array of grant patterns

	CreatedAt time.Time
}

// Token records an issued session token so sessions can be listed and
// revoked. The JWT itself is never stored, only its claims.
type Token struct {
	ID        string    `gorm:"primaryKey;size:36"`
	UserID    string    `gorm:"size:36;not null;index"`
	Issuer    string    `gorm:"size:128;not null"`
	Audience  string    `gorm:"type:json"` // JSON array
	ExpiresAt time.Time `gorm:"index"`

	CreatedAt time.Time

	User User `gorm:"foreignKey:UserID"`
}
