package fragment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zulandar/switchboard/internal/command"
	"github.com/zulandar/switchboard/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// testDB creates an in-memory SQLite database with the fragment table.
func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&models.Fragment{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(testDB(t))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func TestSaveAndFindByID(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	id, err := store.Save(ctx, Fragment{
		UserID:   "u1",
		Noun:     "account",
		Verb:     command.VerbCreate,
		Key:      "name",
		ParserID: "p1",
		Data:     command.Data{"role": {"user"}},
		Labels:   map[string]string{"source": "chat"},
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if id == "" {
		t.Fatal("save returned empty id")
	}

	frag, err := store.FindByID(ctx, id)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if frag.UserID != "u1" || frag.Noun != "account" || frag.Verb != command.VerbCreate {
		t.Errorf("fragment round-trip mismatch: %+v", frag)
	}
	if frag.Key != "name" || frag.ParserID != "p1" {
		t.Errorf("fragment key/parser mismatch: %+v", frag)
	}
	if got := frag.Data["role"]; len(got) != 1 || got[0] != "user" {
		t.Errorf("fragment data = %v", frag.Data)
	}
	if frag.Labels["source"] != "chat" {
		t.Errorf("fragment labels = %v", frag.Labels)
	}
}

func TestSaveRejectsPresetID(t *testing.T) {
	store := testStore(t)
	_, err := store.Save(context.Background(), Fragment{ID: "f1", UserID: "u1", ParserID: "p1"})
	if err == nil {
		t.Fatal("expected error for preset id")
	}
}

func TestFindByIDNotFound(t *testing.T) {
	store := testStore(t)
	_, err := store.FindByID(context.Background(), "missing")
	if !errors.Is(err, command.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFindLatestForUser(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	// Three fragments for u1, created at t1 < t2 < t3, interleaved with
	// another user's.
	base := time.Now().Add(-time.Hour)
	var ids []string
	for i := 0; i < 3; i++ {
		id, err := store.Save(ctx, Fragment{UserID: "u1", Noun: "n", Verb: command.VerbGet, Key: "k", ParserID: "p1"})
		if err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
		ids = append(ids, id)
		// Stagger the timestamps explicitly; SQLite time resolution
		// would otherwise make insertion order ambiguous.
		if err := store.db.Model(&models.Fragment{}).Where("id = ?", id).
			Update("created_at", base.Add(time.Duration(i)*time.Minute)).Error; err != nil {
			t.Fatalf("stagger %d: %v", i, err)
		}
	}
	if _, err := store.Save(ctx, Fragment{UserID: "u2", Noun: "n", Verb: command.VerbGet, Key: "k", ParserID: "p1"}); err != nil {
		t.Fatalf("save other user: %v", err)
	}

	latest, err := store.FindLatestForUser(ctx, "u1")
	if err != nil {
		t.Fatalf("find latest: %v", err)
	}
	if latest.ID != ids[2] {
		t.Errorf("latest = %s, want %s (the newest)", latest.ID, ids[2])
	}
}

func TestFindLatestForUserNone(t *testing.T) {
	store := testStore(t)
	_, err := store.FindLatestForUser(context.Background(), "nobody")
	if !errors.Is(err, command.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteReportsExistence(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	id, err := store.Save(ctx, Fragment{UserID: "u1", Noun: "n", Verb: command.VerbGet, Key: "k", ParserID: "p1"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	existed, err := store.Delete(ctx, id)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !existed {
		t.Fatal("first delete reported the row missing")
	}

	// The second delete is the losing side of a concurrent resume: it must
	// report the row as already gone, not succeed again.
	existed, err = store.Delete(ctx, id)
	if err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if existed {
		t.Fatal("second delete claimed to remove the row again")
	}
}
