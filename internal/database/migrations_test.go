package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/aurachat/aurachat/backend/internal/notes"
	"github.com/aurachat/aurachat/backend/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestApplyMigrationsRepairsLegacyNotes(testContext *testing.T) {
	tempDir := testContext.TempDir()
	databasePath := filepath.Join(tempDir, "migration.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}

	if err := database.AutoMigrate(&users.User{}, &notes.Note{}, &migrationRecord{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	owner := users.User{ID: "user-1", Username: "owner", Email: "owner@example.com", PasswordHash: "x"}
	if err := database.Create(&owner).Error; err != nil {
		testContext.Fatalf("failed to insert user: %v", err)
	}
	createdAt := time.Date(2026, time.February, 1, 8, 0, 0, 0, time.UTC)
	legacy := notes.Note{ID: "note-1", UserID: owner.ID, Content: "legacy", CreatedAt: createdAt}
	orphan := notes.Note{ID: "note-2", UserID: "ghost", Content: "orphan", CreatedAt: createdAt, ExpiresAt: createdAt.Add(notes.TTL)}
	for _, note := range []notes.Note{legacy, orphan} {
		if err := database.Omit("Owner").Create(&note).Error; err != nil {
			testContext.Fatalf("failed to insert note %s: %v", note.ID, err)
		}
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}

	var stored notes.Note
	if err := database.Where("id = ?", legacy.ID).Take(&stored).Error; err != nil {
		testContext.Fatalf("failed to reload note: %v", err)
	}
	if !stored.ExpiresAt.Equal(createdAt.Add(notes.TTL)) {
		testContext.Fatalf("expected expiry to be backfilled, got %v", stored.ExpiresAt)
	}

	var orphanCount int64
	if err := database.Model(&notes.Note{}).Where("id = ?", orphan.ID).Count(&orphanCount).Error; err != nil {
		testContext.Fatalf("failed to count orphans: %v", err)
	}
	if orphanCount != 0 {
		testContext.Fatalf("expected orphaned note to be purged")
	}

	for _, name := range []string{migrationBackfillNoteExpiry, migrationPurgeOrphanNotes} {
		var record migrationRecord
		if err := database.Where("name = ?", name).Take(&record).Error; err != nil {
			testContext.Fatalf("expected migration record %s to be created: %v", name, err)
		}
		if record.AppliedAtSeconds == 0 {
			testContext.Fatalf("expected migration timestamp to be set")
		}
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("expected re-applying migrations to be a no-op: %v", err)
	}
}

func TestOpenCascadesUserDeletionToNotes(testContext *testing.T) {
	databasePath := filepath.Join(testContext.TempDir(), "cascade.db")
	database, err := Open(Options{Driver: DriverSQLite, Path: databasePath}, zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open database: %v", err)
	}

	owner := users.User{ID: "user-1", Username: "owner", Email: "owner@example.com", PasswordHash: "x"}
	if err := database.Create(&owner).Error; err != nil {
		testContext.Fatalf("failed to insert user: %v", err)
	}
	now := time.Now().UTC()
	note := notes.Note{ID: "note-1", UserID: owner.ID, Content: "bye", CreatedAt: now, ExpiresAt: now.Add(notes.TTL)}
	if err := database.Omit("Owner").Create(&note).Error; err != nil {
		testContext.Fatalf("failed to insert note: %v", err)
	}

	if err := database.Where("id = ?", owner.ID).Delete(&users.User{}).Error; err != nil {
		testContext.Fatalf("failed to delete user: %v", err)
	}

	var remaining int64
	if err := database.Model(&notes.Note{}).Count(&remaining).Error; err != nil {
		testContext.Fatalf("failed to count notes: %v", err)
	}
	if remaining != 0 {
		testContext.Fatalf("expected notes to cascade with their owner, got %d", remaining)
	}
}

func TestOpenRejectsUnknownDriver(testContext *testing.T) {
	if _, err := Open(Options{Driver: "oracle"}, nil); err == nil {
		testContext.Fatalf("expected unsupported driver error")
	}
}

func TestWithForeignKeys(testContext *testing.T) {
	cases := map[string]string{
		"app.db":                         "app.db?_pragma=foreign_keys(1)",
		"file:app.db?mode=memory":        "file:app.db?mode=memory&_pragma=foreign_keys(1)",
		"app.db?_pragma=foreign_keys(0)": "app.db?_pragma=foreign_keys(0)",
	}
	for input, want := range cases {
		if got := withForeignKeys(input); got != want {
			testContext.Fatalf("withForeignKeys(%q) = %q, want %q", input, got, want)
		}
	}
}
