// Package fragment persists suspended, partially-specified commands awaiting
// one more piece of user input.
package fragment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/switchboard/internal/command"
	"github.com/zulandar/switchboard/internal/models"
	"gorm.io/gorm"
)

// Fragment is the decoded form of a suspended command. It records which
// parser owns it, which field is missing, and the data already collected.
// Fragments are never mutated after creation: resumption deletes the row or
// leaves it untouched.
type Fragment struct {
	ID       string
	UserID   string
	Noun     string
	Verb     command.Verb
	Key      string
	ParserID string
	Data     command.Data
	Labels   map[string]string

	CreatedAt time.Time
}

// Store owns the fragment table. The completion controller is its only
// writer; everything else borrows reads.
type Store struct {
	db *gorm.DB
}

// NewStore creates a Store.
func NewStore(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("fragment: db is required")
	}
	return &Store{db: db}, nil
}

// Save inserts a new fragment and returns its generated id. Ids are never
// reused; passing a fragment with an id set is an error because rows are
// insert-only.
func (s *Store) Save(ctx context.Context, frag Fragment) (string, error) {
	if frag.ID != "" {
		return "", fmt.Errorf("fragment: save: id must be empty, rows are insert-only")
	}

	data, err := json.Marshal(frag.Data)
	if err != nil {
		return "", fmt.Errorf("fragment: save: marshal data: %w", err)
	}
	labels, err := json.Marshal(frag.Labels)
	if err != nil {
		return "", fmt.Errorf("fragment: save: marshal labels: %w", err)
	}

	row := models.Fragment{
		ID:       uuid.NewString(),
		UserID:   frag.UserID,
		Noun:     frag.Noun,
		Verb:     string(frag.Verb),
		Key:      frag.Key,
		ParserID: frag.ParserID,
		Data:     string(data),
		Labels:   string(labels),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", fmt.Errorf("fragment: save: %w", err)
	}
	return row.ID, nil
}

// FindByID looks up a fragment by id. Returns command.ErrNotFound if no
// such row exists.
func (s *Store) FindByID(ctx context.Context, id string) (*Fragment, error) {
	var row models.Fragment
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("fragment %q: %w", id, command.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("fragment: find %q: %w", id, err)
	}
	return decode(&row)
}

// FindLatestForUser returns the user's most recently created fragment, the
// "complete the last thing I was asked about" shorthand. Returns
// command.ErrNotFound if the user has no fragments.
func (s *Store) FindLatestForUser(ctx context.Context, userID string) (*Fragment, error) {
	var row models.Fragment
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("no fragments for user %q: %w", userID, command.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("fragment: find latest for %q: %w", userID, err)
	}
	return decode(&row)
}

// Delete removes a fragment and reports whether a row actually existed.
// Deleting a nonexistent id is not an error; the single DELETE statement is
// the mutual-exclusion point for concurrent resumes: at most one caller
// observes existed == true for a given id.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	result := s.db.WithContext(ctx).Delete(&models.Fragment{}, "id = ?", id)
	if result.Error != nil {
		return false, fmt.Errorf("fragment: delete %q: %w", id, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// decode converts a stored row back into a Fragment value.
func decode(row *models.Fragment) (*Fragment, error) {
	frag := Fragment{
		ID:        row.ID,
		UserID:    row.UserID,
		Noun:      row.Noun,
		Verb:      command.Verb(row.Verb),
		Key:       row.Key,
		ParserID:  row.ParserID,
		CreatedAt: row.CreatedAt,
	}
	if row.Data != "" {
		if err := json.Unmarshal([]byte(row.Data), &frag.Data); err != nil {
			return nil, fmt.Errorf("fragment: decode data for %q: %w", row.ID, err)
		}
	}
	if row.Labels != "" {
		if err := json.Unmarshal([]byte(row.Labels), &frag.Labels); err != nil {
			return nil, fmt.Errorf("fragment: decode labels for %q: %w", row.ID, err)
		}
	}
	return &frag, nil
}
