package server

import (
	"net/http"
	"time"

	"github.com/aurachat/aurachat/backend/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Bio      string `json:"bio"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type avatarUploadRequest struct {
	ContentType string `json:"content_type"`
}

type avatarSetRequest struct {
	Key string `json:"key"`
}

type userResponse struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	FullName   string    `json:"full_name"`
	Bio        string    `json:"bio"`
	ProfilePic string    `json:"profile_pic"`
	CreatedAt  time.Time `json:"created_at"`
}

type authResponse struct {
	Token     string       `json:"token"`
	TokenType string       `json:"token_type"`
	ExpiresIn int64        `json:"expires_in"`
	User      userResponse `json:"user"`
}

func newUserResponse(user users.User) userResponse {
	return userResponse{
		ID:         user.ID,
		Username:   user.Username,
		Email:      user.Email,
		FullName:   user.FullName,
		Bio:        user.Bio,
		ProfilePic: user.ProfilePicture(),
		CreatedAt:  user.CreatedAt.UTC(),
	}
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	var request registerRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	user, err := h.usersService.Register(c.Request.Context(), users.Registration{
		Username: request.Username,
		Email:    request.Email,
		Password: request.Password,
		FullName: request.FullName,
		Bio:      request.Bio,
	})
	if err != nil {
		h.respondError(c, err, "registration_failed")
		return
	}
	h.respondWithToken(c, http.StatusCreated, user)
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	user, err := h.usersService.Authenticate(c.Request.Context(), request.Email, request.Password)
	if err != nil {
		h.respondError(c, err, "login_failed")
		return
	}
	h.respondWithToken(c, http.StatusOK, user)
}

func (h *httpHandler) respondWithToken(c *gin.Context, status int, user users.User) {
	token, expiresIn, err := h.tokens.IssueToken(c.Request.Context(), user.ID)
	if err != nil {
		h.logger.Error("failed to mint backend token", zap.String("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}
	c.JSON(status, authResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresIn: expiresIn,
		User:      newUserResponse(user),
	})
}

func (h *httpHandler) handleGetProfile(c *gin.Context) {
	user, err := h.usersService.Get(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.respondError(c, err, "profile_failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": newUserResponse(user)})
}

func (h *httpHandler) handleDeleteProfile(c *gin.Context) {
	if err := h.usersService.Delete(c.Request.Context(), currentUserID(c)); err != nil {
		h.respondError(c, err, "delete_account_failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Account deleted"})
}

func (h *httpHandler) handleAvatarUploadURL(c *gin.Context) {
	if h.avatars == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage_not_configured"})
		return
	}
	var request avatarUploadRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	upload, err := h.avatars.PresignUpload(c.Request.Context(), currentUserID(c), request.ContentType)
	if err != nil {
		h.respondError(c, err, "presign_failed")
		return
	}
	c.JSON(http.StatusOK, upload)
}

func (h *httpHandler) handleSetAvatar(c *gin.Context) {
	if h.avatars == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage_not_configured"})
		return
	}
	var request avatarSetRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	userID := currentUserID(c)
	publicURL, err := h.avatars.PublicURL(userID, request.Key)
	if err != nil {
		h.respondError(c, err, "avatar_failed")
		return
	}
	user, err := h.usersService.UpdateProfilePicture(c.Request.Context(), userID, publicURL)
	if err != nil {
		h.respondError(c, err, "avatar_failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": newUserResponse(user)})
}
