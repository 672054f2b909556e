package notes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aurachat/aurachat/backend/internal/ids"
	"github.com/aurachat/aurachat/backend/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

// ServiceError carries a dotted operation code alongside the underlying cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew = "notes.service.new"
	opCreateNote = "notes.create_note"
	opDeleteNote = "notes.delete_note"
	opListActive = "notes.list_active"
	opCleanup    = "notes.cleanup_expired"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider ids.Provider
	Logger     *zap.Logger
}

// Service stores ephemeral notes and reaps them once they pass their expiry.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider ids.Provider
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// Create replaces the owner's note with a fresh one expiring TTL from now.
// The replacement is a single upsert on the owner's unique index, so concurrent
// creates for one owner can never leave two notes behind.
func (s *Service) Create(ctx context.Context, userID UserID, input NoteInput) (Note, error) {
	if s.db == nil {
		s.logError(opCreateNote, "missing_database", errMissingDatabase)
		return Note{}, newServiceError(opCreateNote, "missing_database", errMissingDatabase)
	}
	if userID == "" {
		return Note{}, newServiceError(opCreateNote, "invalid_user_id", ErrInvalidUserID)
	}
	if err := input.validate(); err != nil {
		return Note{}, newServiceError(opCreateNote, "invalid_content", err)
	}

	noteID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateNote, "id_generation_failed", err, zap.String("user_id", userID.String()))
		return Note{}, newServiceError(opCreateNote, "id_generation_failed", err)
	}

	note := newNote(noteID, userID, input, s.now())
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var owners int64
		if err := tx.Model(&users.User{}).Where("id = ?", userID.String()).Count(&owners).Error; err != nil {
			s.logError(opCreateNote, "owner_lookup_failed", err, zap.String("user_id", userID.String()))
			return newServiceError(opCreateNote, "owner_lookup_failed", err)
		}
		if owners == 0 {
			return newServiceError(opCreateNote, "owner_not_found", users.ErrUserNotFound)
		}
		return tx.Omit(clause.Associations).
			Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "user_id"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"id",
					"content",
					"music_name",
					"music_artist",
					"music_preview_url",
					"music_image",
					"spotify_track_id",
					"spotify_url",
					"created_at",
					"expires_at",
				}),
			}).
			Create(&note).Error
	})
	var serviceErr *ServiceError
	if errors.As(txErr, &serviceErr) {
		return Note{}, txErr
	}
	if txErr != nil {
		s.logError(opCreateNote, "upsert_failed", txErr, zap.String("user_id", userID.String()))
		return Note{}, newServiceError(opCreateNote, "upsert_failed", txErr)
	}

	s.logger.Debug("note created",
		zap.String("user_id", userID.String()),
		zap.String("note_id", note.ID),
		zap.Time("expires_at", note.ExpiresAt))
	return note, nil
}

// Delete removes a note owned by the caller.
func (s *Service) Delete(ctx context.Context, userID UserID, noteID NoteID) error {
	if s.db == nil {
		s.logError(opDeleteNote, "missing_database", errMissingDatabase)
		return newServiceError(opDeleteNote, "missing_database", errMissingDatabase)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Note
		err := tx.Where("id = ?", noteID.String()).Take(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opDeleteNote, "not_found", ErrNoteNotFound)
		}
		if err != nil {
			s.logError(opDeleteNote, "note_select_failed", err,
				zap.String("user_id", userID.String()),
				zap.String("note_id", noteID.String()))
			return newServiceError(opDeleteNote, "note_select_failed", err)
		}
		if existing.UserID != userID.String() {
			s.logger.Warn("note delete rejected",
				zap.String("user_id", userID.String()),
				zap.String("note_id", noteID.String()))
			return newServiceError(opDeleteNote, "forbidden", ErrNotOwner)
		}
		if err := tx.Where("id = ? AND user_id = ?", existing.ID, existing.UserID).Delete(&Note{}).Error; err != nil {
			s.logError(opDeleteNote, "note_delete_failed", err,
				zap.String("user_id", userID.String()),
				zap.String("note_id", noteID.String()))
			return newServiceError(opDeleteNote, "note_delete_failed", err)
		}
		return nil
	})
}

// ListActive sweeps expired notes and returns the remaining ones, newest first,
// with their owners loaded.
func (s *Service) ListActive(ctx context.Context) ([]Note, error) {
	if s.db == nil {
		s.logError(opListActive, "missing_database", errMissingDatabase)
		return nil, newServiceError(opListActive, "missing_database", errMissingDatabase)
	}

	now := s.now()
	var active []Note
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		removed, err := sweepExpired(tx, now)
		if err != nil {
			s.logError(opListActive, "sweep_failed", err)
			return newServiceError(opListActive, "sweep_failed", err)
		}
		if removed > 0 {
			s.logger.Debug("expired notes removed on read", zap.Int64("count", removed))
		}
		if err := tx.Preload("Owner").
			Where("expires_at >= ?", now).
			Order("created_at DESC").
			Find(&active).Error; err != nil {
			s.logError(opListActive, "query_failed", err)
			return newServiceError(opListActive, "query_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	return active, nil
}

// Cleanup removes every expired note and reports how many were deleted.
func (s *Service) Cleanup(ctx context.Context) (int64, error) {
	if s.db == nil {
		s.logError(opCleanup, "missing_database", errMissingDatabase)
		return 0, newServiceError(opCleanup, "missing_database", errMissingDatabase)
	}
	removed, err := sweepExpired(s.db.WithContext(ctx), s.now())
	if err != nil {
		s.logError(opCleanup, "sweep_failed", err)
		return 0, newServiceError(opCleanup, "sweep_failed", err)
	}
	if removed > 0 {
		s.logger.Info("expired notes removed", zap.Int64("count", removed))
	}
	return removed, nil
}

func sweepExpired(db *gorm.DB, now time.Time) (int64, error) {
	result := db.Where("expires_at < ?", now).Delete(&Note{})
	return result.RowsAffected, result.Error
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("notes service error", attrs...)
}
