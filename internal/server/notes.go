package server

import (
	"net/http"
	"time"

	"github.com/aurachat/aurachat/backend/internal/notes"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type createNoteRequest struct {
	Content         string `json:"content"`
	MusicName       string `json:"music_name"`
	MusicArtist     string `json:"music_artist"`
	MusicPreviewURL string `json:"music_preview_url"`
	MusicImage      string `json:"music_image"`
	SpotifyTrackID  string `json:"spotify_track_id"`
	SpotifyURL      string `json:"spotify_url"`
}

func (r createNoteRequest) toInput() notes.NoteInput {
	input := notes.NoteInput{Content: r.Content}
	if r.MusicName != "" {
		input.Music = &notes.Music{
			Name:           r.MusicName,
			Artist:         r.MusicArtist,
			PreviewURL:     r.MusicPreviewURL,
			Image:          r.MusicImage,
			SpotifyTrackID: r.SpotifyTrackID,
			SpotifyURL:     r.SpotifyURL,
		}
	}
	return input
}

type musicResponse struct {
	Name           string `json:"name"`
	Artist         string `json:"artist"`
	PreviewURL     string `json:"preview_url"`
	Image          string `json:"image"`
	SpotifyTrackID string `json:"spotify_track_id"`
	SpotifyURL     string `json:"spotify_url"`
}

type noteResponse struct {
	ID         string         `json:"id"`
	UserID     string         `json:"user_id"`
	Username   string         `json:"username"`
	ProfilePic string         `json:"profile_pic"`
	Content    string         `json:"content"`
	Music      *musicResponse `json:"music"`
	CreatedAt  time.Time      `json:"created_at"`
	ExpiresAt  time.Time      `json:"expires_at"`
	IsExpired  bool           `json:"is_expired"`
}

func newNoteResponse(note notes.Note, now time.Time) noteResponse {
	response := noteResponse{
		ID:        note.ID,
		UserID:    note.UserID,
		Content:   note.Content,
		CreatedAt: note.CreatedAt.UTC(),
		ExpiresAt: note.ExpiresAt.UTC(),
		IsExpired: note.IsExpired(now),
	}
	if note.Owner != nil {
		response.Username = note.Owner.Username
		response.ProfilePic = note.Owner.ProfilePicture()
	}
	if note.HasMusic() {
		response.Music = &musicResponse{
			Name:           note.MusicName,
			Artist:         note.MusicArtist,
			PreviewURL:     note.MusicPreviewURL,
			Image:          note.MusicImage,
			SpotifyTrackID: note.SpotifyTrackID,
			SpotifyURL:     note.SpotifyURL,
		}
	}
	return response
}

func (h *httpHandler) handleListNotes(c *gin.Context) {
	active, err := h.notesService.ListActive(c.Request.Context())
	if err != nil {
		h.respondError(c, err, "list_notes_failed")
		return
	}
	now := h.now()
	payload := make([]noteResponse, 0, len(active))
	for _, note := range active {
		payload = append(payload, newNoteResponse(note, now))
	}
	c.JSON(http.StatusOK, gin.H{"notes": payload})
}

func (h *httpHandler) handleCreateNote(c *gin.Context) {
	var request createNoteRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	userID, err := notes.NewUserID(currentUserID(c))
	if err != nil {
		h.respondError(c, err, "create_note_failed")
		return
	}
	note, err := h.notesService.Create(c.Request.Context(), userID, request.toInput())
	if err != nil {
		h.respondError(c, err, "create_note_failed")
		return
	}
	if owner, err := h.usersService.Get(c.Request.Context(), userID.String()); err == nil {
		note.Owner = &owner
	} else {
		h.logger.Warn("note owner lookup failed", zap.String("user_id", userID.String()), zap.Error(err))
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "Note created successfully",
		"note":    newNoteResponse(note, h.now()),
	})
}

func (h *httpHandler) handleDeleteNote(c *gin.Context) {
	userID, err := notes.NewUserID(currentUserID(c))
	if err != nil {
		h.respondError(c, err, "delete_note_failed")
		return
	}
	noteID, err := notes.NewNoteID(c.Param("id"))
	if err != nil {
		h.respondError(c, err, "delete_note_failed")
		return
	}
	if err := h.notesService.Delete(c.Request.Context(), userID, noteID); err != nil {
		h.respondError(c, err, "delete_note_failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Note deleted successfully"})
}

func (h *httpHandler) handleCleanupNotes(c *gin.Context) {
	removed, err := h.notesService.Cleanup(c.Request.Context())
	if err != nil {
		h.respondError(c, err, "cleanup_failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Expired notes cleaned up",
		"count":   removed,
	})
}
