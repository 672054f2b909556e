package notes

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aurachat/aurachat/backend/internal/users"
)

// TTL is the lifetime of every note, measured from its creation.
const TTL = 12 * time.Hour

const (
	maxIdentifierLength = 190
	maxContentLength    = 280
	maxURLLength        = 500
	maxNameLength       = 255
)

var (
	// ErrInvalidNoteID indicates that a note identifier is empty or exceeds storage bounds.
	ErrInvalidNoteID = errors.New("notes: invalid note id")
	// ErrInvalidUserID indicates that a user identifier is empty or exceeds storage bounds.
	ErrInvalidUserID = errors.New("notes: invalid user id")
	// ErrInvalidContent indicates that the note carries neither text nor music, or exceeds limits.
	ErrInvalidContent = errors.New("notes: invalid content")
	// ErrNoteNotFound indicates that the referenced note does not exist.
	ErrNoteNotFound = errors.New("notes: note not found")
	// ErrNotOwner indicates that the caller does not own the note it tried to mutate.
	ErrNotOwner = errors.New("notes: note belongs to another user")
)

// NoteID represents a validated note identifier.
type NoteID string

// NewNoteID validates raw input and returns a NoteID.
func NewNoteID(rawInput string) (NoteID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidNoteID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidNoteID, maxIdentifierLength)
	}
	return NoteID(trimmed), nil
}

// String returns the underlying string identifier.
func (id NoteID) String() string {
	return string(id)
}

// UserID represents a validated user identifier.
type UserID string

// NewUserID validates raw input and returns a UserID.
func NewUserID(rawInput string) (UserID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidUserID, maxIdentifierLength)
	}
	return UserID(trimmed), nil
}

// String returns the underlying string identifier.
func (id UserID) String() string {
	return string(id)
}

// Note is a single-slot status post that lives for TTL after creation.
// The unique index on user_id enforces one live note per owner.
type Note struct {
	ID              string      `gorm:"column:id;primaryKey;size:190;not null"`
	UserID          string      `gorm:"column:user_id;size:190;not null;uniqueIndex:idx_notes_owner"`
	Owner           *users.User `gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE"`
	Content         string      `gorm:"column:content;type:text"`
	MusicName       string      `gorm:"column:music_name;size:255"`
	MusicArtist     string      `gorm:"column:music_artist;size:255"`
	MusicPreviewURL string      `gorm:"column:music_preview_url;size:500"`
	MusicImage      string      `gorm:"column:music_image;size:500"`
	SpotifyTrackID  string      `gorm:"column:spotify_track_id;size:100"`
	SpotifyURL      string      `gorm:"column:spotify_url;size:500"`
	CreatedAt       time.Time   `gorm:"column:created_at;not null;index:idx_notes_created_at"`
	ExpiresAt       time.Time   `gorm:"column:expires_at;not null;index:idx_notes_expires_at"`
}

// TableName provides the explicit table binding for GORM.
func (Note) TableName() string {
	return "notes"
}

// IsExpired reports whether the note is past its expiry. A note is still valid at exactly ExpiresAt.
func (n Note) IsExpired(now time.Time) bool {
	return now.After(n.ExpiresAt)
}

// HasMusic reports whether the note carries a music attachment.
func (n Note) HasMusic() bool {
	return n.MusicName != ""
}

// Music describes the optional track attached to a note.
type Music struct {
	Name           string
	Artist         string
	PreviewURL     string
	Image          string
	SpotifyTrackID string
	SpotifyURL     string
}

// NoteInput is the caller-supplied part of a note.
type NoteInput struct {
	Content string
	Music   *Music
}

func (in NoteInput) validate() error {
	content := strings.TrimSpace(in.Content)
	hasMusic := in.Music != nil && strings.TrimSpace(in.Music.Name) != ""
	if content == "" && !hasMusic {
		return fmt.Errorf("%w: content or music is required", ErrInvalidContent)
	}
	if len([]rune(content)) > maxContentLength {
		return fmt.Errorf("%w: content exceeds %d characters", ErrInvalidContent, maxContentLength)
	}
	if in.Music == nil {
		return nil
	}
	for _, value := range []string{in.Music.Name, in.Music.Artist} {
		if len(value) > maxNameLength {
			return fmt.Errorf("%w: music field exceeds %d characters", ErrInvalidContent, maxNameLength)
		}
	}
	for _, value := range []string{in.Music.PreviewURL, in.Music.Image, in.Music.SpotifyURL} {
		if len(value) > maxURLLength {
			return fmt.Errorf("%w: url exceeds %d characters", ErrInvalidContent, maxURLLength)
		}
	}
	return nil
}

func newNote(noteID string, owner UserID, input NoteInput, createdAt time.Time) Note {
	note := Note{
		ID:        noteID,
		UserID:    owner.String(),
		Content:   strings.TrimSpace(input.Content),
		CreatedAt: createdAt,
		ExpiresAt: createdAt.Add(TTL),
	}
	if input.Music != nil && strings.TrimSpace(input.Music.Name) != "" {
		note.MusicName = strings.TrimSpace(input.Music.Name)
		note.MusicArtist = strings.TrimSpace(input.Music.Artist)
		note.MusicPreviewURL = strings.TrimSpace(input.Music.PreviewURL)
		note.MusicImage = strings.TrimSpace(input.Music.Image)
		note.SpotifyTrackID = strings.TrimSpace(input.Music.SpotifyTrackID)
		note.SpotifyURL = strings.TrimSpace(input.Music.SpotifyURL)
	}
	return note
}
