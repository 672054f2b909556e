package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix               = "AURACHAT"
	defaultHTTPAddress      = "0.0.0.0:8080"
	defaultDatabaseDriver   = DriverSQLite
	defaultDatabasePath     = "aurachat.db"
	defaultLogLevel         = "info"
	defaultLogFormat        = "json"
	defaultTokenTTL         = 24 * time.Hour
	defaultCleanupInterval  = 15 * time.Minute
	defaultSpotifyTokenURL  = "https://accounts.spotify.com/api/token"
	defaultSpotifyAPIURL    = "https://api.spotify.com/v1"
	defaultYouTubeAPIURL    = "https://www.googleapis.com/youtube/v3"
	defaultS3Region         = "us-east-1"
	defaultRedisPresenceTTL = 2 * time.Minute
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress    string
	AllowedOrigins []string

	DatabaseDriver string
	DatabasePath   string
	DatabaseDSN    string

	LogLevel  string
	LogFormat string

	SigningSecret string
	TokenTTL      time.Duration

	NotesCleanupInterval time.Duration

	Spotify SpotifyConfig
	YouTube YouTubeConfig
	Storage StorageConfig
	Redis   RedisConfig
}

// SpotifyConfig holds client-credentials settings for music search.
type SpotifyConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	APIBaseURL   string
}

// Enabled reports whether both credentials are present.
func (c SpotifyConfig) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// YouTubeConfig holds the data API key for video search.
type YouTubeConfig struct {
	APIKey     string
	APIBaseURL string
}

// StorageConfig describes the S3-compatible bucket that receives avatars.
type StorageConfig struct {
	Endpoint      string
	Region        string
	Bucket        string
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
}

// Enabled reports whether avatar uploads can be presigned.
func (c StorageConfig) Enabled() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

// RedisConfig configures the optional presence mirror.
type RedisConfig struct {
	Address     string
	Password    string
	DB          int
	PresenceTTL time.Duration
}

// Enabled reports whether a Redis address was supplied.
func (c RedisConfig) Enabled() bool {
	return c.Address != ""
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.allowed_origins", []string{"http://localhost:3000"})
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("database.dsn", "")
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("auth.token_ttl", defaultTokenTTL)
	configViper.SetDefault("notes.cleanup_interval", defaultCleanupInterval)
	configViper.SetDefault("spotify.token_url", defaultSpotifyTokenURL)
	configViper.SetDefault("spotify.api_base_url", defaultSpotifyAPIURL)
	configViper.SetDefault("youtube.api_base_url", defaultYouTubeAPIURL)
	configViper.SetDefault("storage.region", defaultS3Region)
	configViper.SetDefault("redis.db", 0)
	configViper.SetDefault("redis.presence_ttl", defaultRedisPresenceTTL)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:          strings.TrimSpace(configViper.GetString("http.address")),
		AllowedOrigins:       splitList(configViper.GetStringSlice("http.allowed_origins")),
		DatabaseDriver:       strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabasePath:         strings.TrimSpace(configViper.GetString("database.path")),
		DatabaseDSN:          strings.TrimSpace(configViper.GetString("database.dsn")),
		LogLevel:             configViper.GetString("log.level"),
		LogFormat:            configViper.GetString("log.format"),
		SigningSecret:        configViper.GetString("auth.signing_secret"),
		TokenTTL:             configViper.GetDuration("auth.token_ttl"),
		NotesCleanupInterval: configViper.GetDuration("notes.cleanup_interval"),
		Spotify: SpotifyConfig{
			ClientID:     strings.TrimSpace(configViper.GetString("spotify.client_id")),
			ClientSecret: strings.TrimSpace(configViper.GetString("spotify.client_secret")),
			TokenURL:     strings.TrimSpace(configViper.GetString("spotify.token_url")),
			APIBaseURL:   strings.TrimSpace(configViper.GetString("spotify.api_base_url")),
		},
		YouTube: YouTubeConfig{
			APIKey:     strings.TrimSpace(configViper.GetString("youtube.api_key")),
			APIBaseURL: strings.TrimSpace(configViper.GetString("youtube.api_base_url")),
		},
		Storage: StorageConfig{
			Endpoint:      strings.TrimSpace(configViper.GetString("storage.endpoint")),
			Region:        strings.TrimSpace(configViper.GetString("storage.region")),
			Bucket:        strings.TrimSpace(configViper.GetString("storage.bucket")),
			AccessKey:     strings.TrimSpace(configViper.GetString("storage.access_key")),
			SecretKey:     strings.TrimSpace(configViper.GetString("storage.secret_key")),
			PublicBaseURL: strings.TrimSpace(configViper.GetString("storage.public_base_url")),
		},
		Redis: RedisConfig{
			Address:     strings.TrimSpace(configViper.GetString("redis.address")),
			Password:    configViper.GetString("redis.password"),
			DB:          configViper.GetInt("redis.db"),
			PresenceTTL: configViper.GetDuration("redis.presence_ttl"),
		},
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if c.HTTPAddress == "" {
		return fmt.Errorf("http.address is required")
	}
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}
	if c.NotesCleanupInterval < 0 {
		return fmt.Errorf("notes.cleanup_interval must not be negative")
	}
	switch c.DatabaseDriver {
	case DriverSQLite:
		if c.DatabasePath == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.DatabaseDSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver %q is not supported", c.DatabaseDriver)
	}
	if c.Storage.Enabled() && c.Storage.PublicBaseURL == "" {
		return fmt.Errorf("storage.public_base_url is required when storage is configured")
	}
	return nil
}

// splitList accepts either a real list or a single comma separated env value.
func splitList(values []string) []string {
	result := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
	}
	return result
}
