// Package media proxies the music and short-video search providers used by notes and the feed.
package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	defaultRequestTimeout = 10 * time.Second
	defaultTrackLimit     = 10
	maxTrackLimit         = 50
	spotifyMarket         = "US"
)

var (
	// ErrProviderNotConfigured indicates the provider credentials are missing.
	ErrProviderNotConfigured = errors.New("media: provider not configured")
	// ErrUpstream indicates the provider answered with a non-success status.
	ErrUpstream = errors.New("media: upstream request failed")
)

// SpotifyConfig carries client-credentials settings for the Spotify Web API.
type SpotifyConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	APIBaseURL   string
	HTTPClient   *http.Client
	Logger       *zap.Logger
}

// Track is one search hit in the shape the clients consume.
type Track struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Artist     string  `json:"artist"`
	Album      string  `json:"album"`
	PreviewURL *string `json:"preview_url"`
	Image      *string `json:"image"`
	SpotifyURL string  `json:"spotify_url"`
	DurationMS int64   `json:"duration_ms"`
}

// SpotifyClient searches tracks. The access token is fetched lazily and cached until it expires.
type SpotifyClient struct {
	httpClient *http.Client
	apiBaseURL string
	configured bool
	logger     *zap.Logger
}

func NewSpotifyClient(cfg SpotifyConfig) *SpotifyClient {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	baseClient := cfg.HTTPClient
	if baseClient == nil {
		baseClient = &http.Client{Timeout: defaultRequestTimeout}
	}

	client := &SpotifyClient{
		apiBaseURL: strings.TrimRight(cfg.APIBaseURL, "/"),
		configured: cfg.ClientID != "" && cfg.ClientSecret != "",
		logger:     logger,
	}
	if !client.configured {
		return client
	}

	credentials := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	tokenContext := context.WithValue(context.Background(), oauth2.HTTPClient, baseClient)
	client.httpClient = credentials.Client(tokenContext)
	client.httpClient.Timeout = baseClient.Timeout
	return client
}

// Configured reports whether credentials were supplied.
func (c *SpotifyClient) Configured() bool {
	return c != nil && c.configured
}

// SearchTracks returns up to limit tracks matching query, those with an audio preview first.
func (c *SpotifyClient) SearchTracks(ctx context.Context, query string, limit int) ([]Track, error) {
	if !c.Configured() {
		return nil, ErrProviderNotConfigured
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return []Track{}, nil
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("type", "track")
	params.Set("limit", strconv.Itoa(clampTrackLimit(limit)))
	params.Set("market", spotifyMarket)

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
		return nil, fmt.Errorf("%w: spotify search returned status %d", ErrUpstream, response.StatusCode)
	}

	var document spotifySearchDocument
	if err := json.NewDecoder(response.Body).Decode(&document); err != nil {
		return nil, err
	}

	withPreview := make([]Track, 0, len(document.Tracks.Items))
	withoutPreview := make([]Track, 0)
	for _, item := range document.Tracks.Items {
		track := item.toTrack()
		if track.PreviewURL != nil {
			withPreview = append(withPreview, track)
		} else {
			withoutPreview = append(withoutPreview, track)
		}
	}
	c.logger.Debug("spotify search",
		zap.String("query", query),
		zap.Int("with_preview", len(withPreview)),
		zap.Int("without_preview", len(withoutPreview)))
	return append(withPreview, withoutPreview...), nil
}

func clampTrackLimit(limit int) int {
	if limit <= 0 {
		return defaultTrackLimit
	}
	if limit > maxTrackLimit {
		return maxTrackLimit
	}
	return limit
}

type spotifySearchDocument struct {
	Tracks struct {
		Items []spotifyTrack `json:"items"`
	} `json:"tracks"`
}

type spotifyTrack struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PreviewURL string `json:"preview_url"`
	DurationMS int64  `json:"duration_ms"`
	Artists    []struct {
		Name string `json:"name"`
	} `json:"artists"`
	Album struct {
		Name   string `json:"name"`
		Images []struct {
			URL string `json:"url"`
		} `json:"images"`
	} `json:"album"`
	ExternalURLs struct {
		Spotify string `json:"spotify"`
	} `json:"external_urls"`
}

func (t spotifyTrack) toTrack() Track {
	artists := make([]string, 0, len(t.Artists))
	for _, artist := range t.Artists {
		artists = append(artists, artist.Name)
	}
	track := Track{
		ID:         t.ID,
		Name:       t.Name,
		Artist:     strings.Join(artists, ", "),
		Album:      t.Album.Name,
		SpotifyURL: t.ExternalURLs.Spotify,
		DurationMS: t.DurationMS,
	}
	if t.PreviewURL != "" {
		preview := t.PreviewURL
		track.PreviewURL = &preview
	}
	if len(t.Album.Images) > 0 {
		image := t.Album.Images[0].URL
		track.Image = &image
	}
	return track
}
