package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/aurachat/aurachat/backend/internal/media"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultTrackSearchLimit = 10

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

// handleSpotifySearch never fails the request; provider problems degrade to an empty list.
func (h *httpHandler) handleSpotifySearch(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	tracks := []media.Track{}
	if query == "" || h.music == nil {
		c.JSON(http.StatusOK, gin.H{"tracks": tracks})
		return
	}
	found, err := h.music.SearchTracks(c.Request.Context(), query, queryInt(c, "limit", defaultTrackSearchLimit))
	if err != nil {
		h.logger.Warn("spotify search failed", zap.String("query", query), zap.Error(err))
	} else if found != nil {
		tracks = found
	}
	c.JSON(http.StatusOK, gin.H{"tracks": tracks})
}

func (h *httpHandler) handleShorts(c *gin.Context) {
	maxResults := queryInt(c, "max_results", media.DefaultShortsResults)
	query := c.DefaultQuery("query", c.Query("q"))
	h.respondShorts(c, func(ctx context.Context, shorts ShortsSearcher) ([]media.Short, error) {
		return shorts.Shorts(ctx, query, maxResults)
	})
}

func (h *httpHandler) handleTrendingShorts(c *gin.Context) {
	maxResults := queryInt(c, "max_results", media.DefaultShortsResults)
	h.respondShorts(c, func(ctx context.Context, shorts ShortsSearcher) ([]media.Short, error) {
		return shorts.TrendingShorts(ctx, maxResults)
	})
}

func (h *httpHandler) handleSearchShorts(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": `Query parameter "q" is required`, "shorts": []media.Short{}})
		return
	}
	maxResults := queryInt(c, "max_results", media.DefaultShortsResults)
	h.respondShorts(c, func(ctx context.Context, shorts ShortsSearcher) ([]media.Short, error) {
		return shorts.SearchShorts(ctx, query, maxResults)
	})
}

func (h *httpHandler) respondShorts(c *gin.Context, fetch func(context.Context, ShortsSearcher) ([]media.Short, error)) {
	if h.shorts == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": media.ErrProviderNotConfigured.Error(), "shorts": []media.Short{}})
		return
	}
	shorts, err := fetch(c.Request.Context(), h.shorts)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, media.ErrProviderNotConfigured) {
			status = http.StatusServiceUnavailable
		}
		h.logger.Warn("youtube request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(status, gin.H{"error": err.Error(), "shorts": []media.Short{}})
		return
	}
	if shorts == nil {
		shorts = []media.Short{}
	}
	c.JSON(http.StatusOK, gin.H{"shorts": shorts, "error": nil})
}
