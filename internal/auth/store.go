// Package auth provides user/role storage, grant-based permission checks,
// and JWT session issuance.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/zulandar/switchboard/internal/command"
	"github.com/zulandar/switchboard/internal/models"
	"gorm.io/gorm"
)

// AnonymousRole names the role whose grants apply to users the bot has
// never seen. Seed it to open up commands without sign-up.
const AnonymousRole = "anonymous"

// Store owns the user, role, and token tables.
type Store struct {
	db *gorm.DB
}

// NewStore creates a Store.
func NewStore(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("auth: db is required")
	}
	return &Store{db: db}, nil
}

// CreateUser inserts a user and attaches the named roles. Roles must
// already exist. Fails with command.ErrInvalidInput if the name is taken.
func (s *Store) CreateUser(ctx context.Context, name string, roleNames []string) (*models.User, error) {
	if name == "" {
		return nil, fmt.Errorf("auth: user name is required: %w", command.ErrInvalidInput)
	}

	var existing models.User
	err := s.db.WithContext(ctx).First(&existing, "name = ?", name).Error
	if err == nil {
		return nil, fmt.Errorf("auth: user %q already exists: %w", name, command.ErrInvalidInput)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("auth: check user %q: %w", name, err)
	}

	roles, err := s.findRoles(ctx, roleNames)
	if err != nil {
		return nil, err
	}

	user := models.User{
		ID:    uuid.NewString(),
		Name:  name,
		Roles: roles,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, fmt.Errorf("auth: create user %q: %w", name, err)
	}
	return &user, nil
}

// FindUser looks up a user by name, with roles preloaded.
func (s *Store) FindUser(ctx context.Context, name string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Preload("Roles").First(&user, "name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("user %q: %w", name, command.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("auth: find user %q: %w", name, err)
	}
	return &user, nil
}

// Grants returns the union of grant patterns for a user name. Unknown
// users fall back to the anonymous role's grants, if that role exists.
func (s *Store) Grants(ctx context.Context, userName string) ([]string, error) {
	user, err := s.FindUser(ctx, userName)
	if errors.Is(err, command.ErrNotFound) {
		return s.roleGrants(ctx, AnonymousRole)
	}
	if err != nil {
		return nil, err
	}

	var grants []string
	for _, role := range user.Roles {
		decoded, err := decodeGrants(role.Grants)
		if err != nil {
			return nil, fmt.Errorf("auth: role %q: %w", role.Name, err)
		}
		grants = append(grants, decoded...)
	}
	return grants, nil
}

// CheckPermission reports whether the context's user may perform an action.
// Actions are "noun:verb" strings matched against grant patterns where "*"
// matches any single segment.
func (s *Store) CheckPermission(ctx context.Context, cmdCtx command.Context, action string) (bool, error) {
	grants, err := s.Grants(ctx, cmdCtx.UserName)
	if err != nil {
		return false, err
	}
	for _, grant := range grants {
		if matchGrant(grant, action) {
			return true, nil
		}
	}
	return false, nil
}

// findRoles resolves role names to rows, failing on the first unknown name.
func (s *Store) findRoles(ctx context.Context, names []string) ([]models.Role, error) {
	roles := make([]models.Role, 0, len(names))
	for _, name := range names {
		var role models.Role
		err := s.db.WithContext(ctx).First(&role, "name = ?", name).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("role %q: %w", name, command.ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("auth: find role %q: %w", name, err)
		}
		roles = append(roles, role)
	}
	return roles, nil
}

// roleGrants returns the grants of a single role, or nothing if the role
// does not exist.
func (s *Store) roleGrants(ctx context.Context, roleName string) ([]string, error) {
	var role models.Role
	err := s.db.WithContext(ctx).First(&role, "name = ?", roleName).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("auth: find role %q: %w", roleName, err)
	}
	return decodeGrants(role.Grants)
}

// decodeGrants parses the JSON grant array stored on a role.
func decodeGrants(encoded string) ([]string, error) {
	if encoded == "" {
		return nil, nil
	}
	var grants []string
	if err := json.Unmarshal([]byte(encoded), &grants); err != nil {
		return nil, fmt.Errorf("decode grants: %w", err)
	}
	return grants, nil
}

// matchGrant matches an action against a grant pattern segment by segment.
// Patterns and actions are ":"-separated; "*" matches any one segment.
func matchGrant(pattern, action string) bool {
	patternParts := strings.Split(pattern, ":")
	actionParts := strings.Split(action, ":")
	if len(patternParts) != len(actionParts) {
		return false
	}
	for i, part := range patternParts {
		if part != "*" && part != actionParts[i] {
			return false
		}
	}
	return true
}
