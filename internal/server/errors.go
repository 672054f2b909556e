package server

import (
	"errors"
	"net/http"

	"github.com/aurachat/aurachat/backend/internal/auth"
	"github.com/aurachat/aurachat/backend/internal/avatars"
	"github.com/aurachat/aurachat/backend/internal/notes"
	"github.com/aurachat/aurachat/backend/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type errorMapping struct {
	target error
	status int
	label  string
}

var errorMappings = []errorMapping{
	{notes.ErrNoteNotFound, http.StatusNotFound, "note_not_found"},
	{notes.ErrNotOwner, http.StatusForbidden, "forbidden"},
	{notes.ErrInvalidContent, http.StatusBadRequest, "invalid_content"},
	{notes.ErrInvalidNoteID, http.StatusBadRequest, "invalid_note_id"},
	{notes.ErrInvalidUserID, http.StatusBadRequest, "invalid_user_id"},
	{users.ErrUserNotFound, http.StatusNotFound, "user_not_found"},
	{users.ErrMissingField, http.StatusBadRequest, "missing_field"},
	{users.ErrInvalidUsername, http.StatusBadRequest, "invalid_username"},
	{users.ErrInvalidEmail, http.StatusBadRequest, "invalid_email"},
	{users.ErrUsernameTaken, http.StatusBadRequest, "username_taken"},
	{users.ErrEmailTaken, http.StatusBadRequest, "email_taken"},
	{users.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
	{auth.ErrPasswordTooShort, http.StatusBadRequest, "password_too_short"},
	{avatars.ErrUnsupportedContentType, http.StatusBadRequest, "unsupported_content_type"},
	{avatars.ErrForeignKey, http.StatusForbidden, "forbidden"},
}

type codedError interface {
	Code() string
}

// respondError maps domain sentinels to status codes. Anything unmapped is logged and
// reported under fallbackLabel as a 500.
func (h *httpHandler) respondError(c *gin.Context, err error, fallbackLabel string) {
	status := http.StatusInternalServerError
	label := fallbackLabel
	for _, mapping := range errorMappings {
		if errors.Is(err, mapping.target) {
			status = mapping.status
			label = mapping.label
			break
		}
	}

	body := gin.H{"error": label}
	if status < http.StatusInternalServerError {
		body["message"] = err.Error()
	} else {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	var coded codedError
	if errors.As(err, &coded) {
		body["code"] = coded.Code()
	}
	c.JSON(status, body)
}

func currentUserID(c *gin.Context) string {
	return c.GetString(userIDContextKey)
}
