package server

import (
	"net/http"
	"strings"

	"github.com/aurachat/aurachat/backend/internal/realtime"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	websocketReadBufferSize  = 4096
	websocketWriteBufferSize = 4096
)

func newUpgrader(allowedOrigins []string) *websocket.Upgrader {
	allowAll := len(allowedOrigins) == 0 || containsWildcard(allowedOrigins)
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[strings.TrimRight(origin, "/")] = struct{}{}
	}
	return &websocket.Upgrader{
		ReadBufferSize:  websocketReadBufferSize,
		WriteBufferSize: websocketWriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if allowAll || origin == "" {
				return true
			}
			_, ok := allowed[strings.TrimRight(origin, "/")]
			return ok
		},
	}
}

func (h *httpHandler) handleWebSocket(c *gin.Context) {
	subject := currentUserID(c)
	handle, err := h.idProvider.NewID()
	if err != nil {
		h.logger.Error("failed to allocate connection handle", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "handle_allocation_failed"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("user_id", subject), zap.Error(err))
		return
	}

	h.logger.Info("realtime session opened", zap.String("user_id", subject), zap.String("handle", handle))
	realtime.NewSession(handle, subject, conn, h.hub, h.logger).Run(h.sessionContext)
	h.logger.Info("realtime session closed", zap.String("user_id", subject), zap.String("handle", handle))
}

// handlePresence answers from the local registry first and falls back to the shared mirror.
func (h *httpHandler) handlePresence(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("userID"))
	online := h.hub.Registry().Online(userID)
	if !online && h.presence != nil {
		shared, err := h.presence.IsOnline(c.Request.Context(), userID)
		if err != nil {
			h.logger.Warn("presence lookup failed", zap.String("user_id", userID), zap.Error(err))
		}
		online = shared
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "online": online})
}
