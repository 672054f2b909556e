package database

import (
	"errors"
	"time"

	"github.com/aurachat/aurachat/backend/internal/notes"
	"github.com/aurachat/aurachat/backend/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationBackfillNoteExpiry = "2026-03-01_backfill_note_expiry"
	migrationPurgeOrphanNotes   = "2026-03-01_purge_orphan_notes"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillNoteExpiry, apply: backfillNoteExpiry},
		{name: migrationPurgeOrphanNotes, apply: purgeOrphanNotes},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// backfillNoteExpiry gives rows written without an expiry the standard lifetime.
func backfillNoteExpiry(db *gorm.DB) error {
	var missing []notes.Note
	if err := db.Where("expires_at IS NULL OR expires_at = ?", time.Time{}).Find(&missing).Error; err != nil {
		return err
	}
	for _, note := range missing {
		err := db.Model(&notes.Note{}).
			Where("id = ?", note.ID).
			Update("expires_at", note.CreatedAt.Add(notes.TTL)).Error
		if err != nil {
			return err
		}
	}
	return nil
}

// purgeOrphanNotes removes notes whose owner vanished before foreign keys were enforced.
func purgeOrphanNotes(db *gorm.DB) error {
	owners := db.Model(&users.User{}).Select("id")
	return db.Where("user_id NOT IN (?)", owners).Delete(&notes.Note{}).Error
}
