package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/aurachat/aurachat/backend/internal/avatars"
	"github.com/aurachat/aurachat/backend/internal/ids"
	"github.com/aurachat/aurachat/backend/internal/media"
	"github.com/aurachat/aurachat/backend/internal/notes"
	"github.com/aurachat/aurachat/backend/internal/realtime"
	"github.com/aurachat/aurachat/backend/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	userIDContextKey     = "aurachat_user_id"
	accessTokenQueryName = "access_token"
)

var (
	errMissingTokenManager  = errors.New("token manager dependency required")
	errMissingUsersService  = errors.New("users service dependency required")
	errMissingNotesService  = errors.New("notes service dependency required")
	errMissingHub           = errors.New("realtime hub dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

type TokenManager interface {
	IssueToken(ctx context.Context, subject string) (string, int64, error)
	ValidateToken(token string) (string, error)
}

type MusicSearcher interface {
	SearchTracks(ctx context.Context, query string, limit int) ([]media.Track, error)
}

type ShortsSearcher interface {
	Shorts(ctx context.Context, query string, maxResults int) ([]media.Short, error)
	TrendingShorts(ctx context.Context, maxResults int) ([]media.Short, error)
	SearchShorts(ctx context.Context, query string, maxResults int) ([]media.Short, error)
}

type AvatarStore interface {
	PresignUpload(ctx context.Context, userID, contentType string) (avatars.Upload, error)
	PublicURL(userID, key string) (string, error)
}

// PresenceLookup answers presence questions beyond this process, such as the Redis mirror.
type PresenceLookup interface {
	IsOnline(ctx context.Context, userID string) (bool, error)
}

type Dependencies struct {
	TokenManager   TokenManager
	UsersService   *users.Service
	NotesService   *notes.Service
	Hub            *realtime.Hub
	Music          MusicSearcher
	Shorts         ShortsSearcher
	Avatars        AvatarStore
	Presence       PresenceLookup
	IDProvider     ids.Provider
	AllowedOrigins []string
	// SessionContext bounds the lifetime of websocket sessions; cancel it on shutdown.
	SessionContext context.Context
	Clock          func() time.Time
	Logger         *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.UsersService == nil {
		return nil, errMissingUsersService
	}
	if deps.NotesService == nil {
		return nil, errMissingNotesService
	}
	if deps.Hub == nil {
		return nil, errMissingHub
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	idProvider := deps.IDProvider
	if idProvider == nil {
		idProvider = ids.NewUUIDProvider()
	}
	sessionContext := deps.SessionContext
	if sessionContext == nil {
		sessionContext = context.Background()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		tokens:         deps.TokenManager,
		usersService:   deps.UsersService,
		notesService:   deps.NotesService,
		hub:            deps.Hub,
		music:          deps.Music,
		shorts:         deps.Shorts,
		avatars:        deps.Avatars,
		presence:       deps.Presence,
		idProvider:     idProvider,
		upgrader:       newUpgrader(deps.AllowedOrigins),
		sessionContext: sessionContext,
		clock:          clock,
		logger:         logger,
	}

	router.POST("/auth/register", handler.handleRegister)
	router.POST("/auth/login", handler.handleLogin)
	router.GET("/notes", handler.handleListNotes)
	router.GET("/spotify/search", handler.handleSpotifySearch)
	router.GET("/youtube/shorts", handler.handleShorts)
	router.GET("/youtube/shorts/trending", handler.handleTrendingShorts)
	router.GET("/youtube/shorts/search", handler.handleSearchShorts)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/auth/profile", handler.handleGetProfile)
	protected.DELETE("/auth/profile", handler.handleDeleteProfile)
	protected.POST("/notes", handler.handleCreateNote)
	protected.DELETE("/notes/:id", handler.handleDeleteNote)
	protected.POST("/notes/cleanup", handler.handleCleanupNotes)
	protected.POST("/profile/avatar/upload-url", handler.handleAvatarUploadURL)
	protected.PUT("/profile/avatar", handler.handleSetAvatar)
	protected.GET("/presence/:userID", handler.handlePresence)
	protected.GET("/ws", handler.handleWebSocket)

	return router, nil
}

type httpHandler struct {
	tokens         TokenManager
	usersService   *users.Service
	notesService   *notes.Service
	hub            *realtime.Hub
	music          MusicSearcher
	shorts         ShortsSearcher
	avatars        AvatarStore
	presence       PresenceLookup
	idProvider     ids.Provider
	upgrader       *websocket.Upgrader
	sessionContext context.Context
	clock          func() time.Time
	logger         *zap.Logger
}

func (h *httpHandler) now() time.Time {
	if h.clock == nil {
		return time.Now().UTC()
	}
	return h.clock().UTC()
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) == 0 || containsWildcard(allowedOrigins) {
		config.AllowOriginFunc = func(string) bool { return true }
	} else {
		config.AllowOrigins = allowedOrigins
	}
	return cors.New(config)
}

func containsWildcard(origins []string) bool {
	for _, origin := range origins {
		if origin == "*" {
			return true
		}
	}
	return false
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	token, ok := bearerToken(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	subject, err := h.tokens.ValidateToken(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, subject)
	c.Next()
}

// bearerToken reads the Authorization header, falling back to the access_token query
// parameter that browsers must use for websocket upgrades.
func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header != "" {
		if !strings.HasPrefix(header, "Bearer ") {
			return "", false
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		return token, token != ""
	}
	token := strings.TrimSpace(c.Query(accessTokenQueryName))
	return token, token != ""
}
