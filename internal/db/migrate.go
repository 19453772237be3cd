package db

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/zulandar/switchboard/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AllModels returns the list of all GORM models for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.Fragment{},
		&models.Keyword{},
		&models.User{},
		&models.Role{},
		&models.Token{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// SeedRoles upserts well-known roles. Grants use "noun:verb" patterns with
// "*" wildcards per segment.
func SeedRoles(db *gorm.DB, roles map[string][]string) error {
	for name, grants := range roles {
		encoded, err := json.Marshal(grants)
		if err != nil {
			return fmt.Errorf("db: marshal grants for role %q: %w", name, err)
		}

		role := models.Role{
			ID:     uuid.NewString(),
			Name:   name,
			Grants: string(encoded),
		}

		result := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"grants"}),
		}).Create(&role)
		if result.Error != nil {
			return fmt.Errorf("db: seed role %q: %w", name, result.Error)
		}
	}
	return nil
}
