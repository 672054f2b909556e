package media

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

const (
	// DefaultShortsResults is used when the caller does not ask for a count.
	DefaultShortsResults = 20
	// MaxShortsResults caps every shorts request.
	MaxShortsResults = 50

	defaultShortsQuery  = "#shorts"
	trendingShortsQuery = "shorts trending"
	shortsQuerySuffix   = " #shorts"
)

// YouTubeConfig carries the Data API key.
type YouTubeConfig struct {
	APIKey     string
	APIBaseURL string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Short is one short-form video.
type Short struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Thumbnail   string `json:"thumbnail"`
	Channel     string `json:"channel"`
	ChannelID   string `json:"channelId"`
	PublishedAt string `json:"published_at"`
	VideoURL    string `json:"video_url"`
	EmbedURL    string `json:"embed_url"`
}

// YouTubeClient searches short videos through the YouTube Data API.
type YouTubeClient struct {
	apiKey     string
	apiBaseURL string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewYouTubeClient(cfg YouTubeConfig) *YouTubeClient {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &YouTubeClient{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		apiBaseURL: strings.TrimRight(cfg.APIBaseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// Configured reports whether an API key was supplied.
func (c *YouTubeClient) Configured() bool {
	return c != nil && c.apiKey != ""
}

// ClampResults applies the default and the upper bound to a requested result count.
func ClampResults(requested int) int {
	if requested <= 0 {
		return DefaultShortsResults
	}
	if requested > MaxShortsResults {
		return MaxShortsResults
	}
	return requested
}

// Shorts lists shorts for an arbitrary query, defaulting to the generic shorts tag.
func (c *YouTubeClient) Shorts(ctx context.Context, query string, maxResults int) ([]Short, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		query = defaultShortsQuery
	}
	return c.search(ctx, query, maxResults)
}

// TrendingShorts lists currently trending shorts.
func (c *YouTubeClient) TrendingShorts(ctx context.Context, maxResults int) ([]Short, error) {
	return c.search(ctx, trendingShortsQuery, maxResults)
}

// SearchShorts narrows a free-text query to shorts.
func (c *YouTubeClient) SearchShorts(ctx context.Context, query string, maxResults int) ([]Short, error) {
	return c.search(ctx, strings.TrimSpace(query)+shortsQuerySuffix, maxResults)
}

func (c *YouTubeClient) search(ctx context.Context, query string, maxResults int) ([]Short, error) {
	if !c.Configured() {
		return nil, ErrProviderNotConfigured
	}

	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("type", "video")
	params.Set("videoDuration", "short")
	params.Set("maxResults", strconv.Itoa(ClampResults(maxResults)))
	params.Set("key", c.apiKey)
	params.Set("q", query)
	params.Set("order", "date")
	params.Set("relevanceLanguage", "en")

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBaseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: youtube search returned status %d", ErrUpstream, response.StatusCode)
	}

	var document youtubeSearchDocument
	if err := json.NewDecoder(response.Body).Decode(&document); err != nil {
		return nil, err
	}

	shorts := make([]Short, 0, len(document.Items))
	for _, item := range document.Items {
		if item.ID.VideoID == "" {
			continue
		}
		shorts = append(shorts, item.toShort())
	}
	c.logger.Debug("youtube search", zap.String("query", query), zap.Int("results", len(shorts)))
	return shorts, nil
}

type youtubeSearchDocument struct {
	Items []youtubeItem `json:"items"`
}

type youtubeItem struct {
	ID struct {
		VideoID string `json:"videoId"`
	} `json:"id"`
	Snippet struct {
		Title        *string `json:"title"`
		Description  string  `json:"description"`
		ChannelTitle *string `json:"channelTitle"`
		ChannelID    string  `json:"channelId"`
		PublishedAt  string  `json:"publishedAt"`
		Thumbnails   struct {
			High struct {
				URL string `json:"url"`
			} `json:"high"`
		} `json:"thumbnails"`
	} `json:"snippet"`
}

func (item youtubeItem) toShort() Short {
	videoID := item.ID.VideoID
	title := "Untitled"
	if item.Snippet.Title != nil {
		title = *item.Snippet.Title
	}
	channel := "Unknown"
	if item.Snippet.ChannelTitle != nil {
		channel = *item.Snippet.ChannelTitle
	}
	return Short{
		ID:          videoID,
		Title:       title,
		Description: item.Snippet.Description,
		Thumbnail:   item.Snippet.Thumbnails.High.URL,
		Channel:     channel,
		ChannelID:   item.Snippet.ChannelID,
		PublishedAt: item.Snippet.PublishedAt,
		VideoURL:    "https://www.youtube.com/shorts/" + videoID,
		EmbedURL:    fmt.Sprintf("https://www.youtube.com/embed/%s?autoplay=1&mute=1&loop=1&playlist=%s", videoID, videoID),
	}
}
