package auth

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/zulandar/switchboard/internal/command"
	"github.com/zulandar/switchboard/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testStore(t *testing.T) (*Store, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.Role{}, &models.Token{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	store, err := NewStore(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store, db
}

func seedRole(t *testing.T, db *gorm.DB, name string, grants []string) {
	t.Helper()
	encoded, err := json.Marshal(grants)
	if err != nil {
		t.Fatalf("marshal grants: %v", err)
	}
	if err := db.Create(&models.Role{ID: uuid.NewString(), Name: name, Grants: string(encoded)}).Error; err != nil {
		t.Fatalf("seed role %q: %v", name, err)
	}
}

func TestCreateAndFindUser(t *testing.T) {
	store, db := testStore(t)
	ctx := context.Background()
	seedRole(t, db, "user", []string{"math:*"})

	created, err := store.CreateUser(ctx, "alice", []string{"user"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" {
		t.Error("user id not assigned")
	}

	found, err := store.FindUser(ctx, "alice")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found.ID != created.ID {
		t.Errorf("found id %q, want %q", found.ID, created.ID)
	}
	if len(found.Roles) != 1 || found.Roles[0].Name != "user" {
		t.Errorf("roles = %+v", found.Roles)
	}
}

func TestCreateUserValidation(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	if _, err := store.CreateUser(ctx, "", nil); !errors.Is(err, command.ErrInvalidInput) {
		t.Errorf("empty name err = %v", err)
	}

	if _, err := store.CreateUser(ctx, "alice", nil); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.CreateUser(ctx, "alice", nil); !errors.Is(err, command.ErrInvalidInput) {
		t.Errorf("duplicate err = %v", err)
	}

	if _, err := store.CreateUser(ctx, "bob", []string{"missing"}); !errors.Is(err, command.ErrNotFound) {
		t.Errorf("unknown role err = %v", err)
	}
}

func TestFindUserMissing(t *testing.T) {
	store, _ := testStore(t)
	if _, err := store.FindUser(context.Background(), "ghost"); !errors.Is(err, command.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestGrantsUnionAcrossRoles(t *testing.T) {
	store, db := testStore(t)
	ctx := context.Background()
	seedRole(t, db, "user", []string{"math:*"})
	seedRole(t, db, "ops", []string{"search:get", "weather:get"})

	if _, err := store.CreateUser(ctx, "alice", []string{"user", "ops"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	grants, err := store.Grants(ctx, "alice")
	if err != nil {
		t.Fatalf("grants: %v", err)
	}
	// Preloaded roles carry no ordering guarantee, so compare as sets.
	sort.Strings(grants)
	want := []string{"math:*", "search:get", "weather:get"}
	if !reflect.DeepEqual(grants, want) {
		t.Errorf("grants = %v, want %v", grants, want)
	}
}

func TestGrantsAnonymousFallback(t *testing.T) {
	store, db := testStore(t)
	ctx := context.Background()

	// No anonymous role: unknown users have no grants at all.
	grants, err := store.Grants(ctx, "stranger")
	if err != nil {
		t.Fatalf("grants: %v", err)
	}
	if len(grants) != 0 {
		t.Errorf("grants = %v, want none", grants)
	}

	seedRole(t, db, AnonymousRole, []string{"account:create"})
	grants, err = store.Grants(ctx, "stranger")
	if err != nil {
		t.Fatalf("grants: %v", err)
	}
	if !reflect.DeepEqual(grants, []string{"account:create"}) {
		t.Errorf("grants = %v", grants)
	}
}

func TestCheckPermission(t *testing.T) {
	store, db := testStore(t)
	ctx := context.Background()
	seedRole(t, db, "user", []string{"math:*", "search:get", "*:help"})
	if _, err := store.CreateUser(ctx, "alice", []string{"user"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	tests := []struct {
		action string
		want   bool
	}{
		{"math:create", true},
		{"math:delete", true},
		{"search:get", true},
		{"search:list", false},
		{"weather:help", true},
		{"weather:get", false},
		{"math", false}, // segment counts must match
	}
	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			got, err := store.CheckPermission(ctx, command.Context{UserName: "alice"}, tt.action)
			if err != nil {
				t.Fatalf("check: %v", err)
			}
			if got != tt.want {
				t.Errorf("allowed = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatchGrant(t *testing.T) {
	tests := []struct {
		pattern string
		action  string
		want    bool
	}{
		{"*:*", "math:create", true},
		{"math:*", "math:get", true},
		{"math:*", "random:get", false},
		{"*:get", "weather:get", true},
		{"math:get", "math:get", true},
		{"math:get", "math:list", false},
		{"math:*:x", "math:get", false},
	}
	for _, tt := range tests {
		if got := matchGrant(tt.pattern, tt.action); got != tt.want {
			t.Errorf("matchGrant(%q, %q) = %v, want %v", tt.pattern, tt.action, got, tt.want)
		}
	}
}
