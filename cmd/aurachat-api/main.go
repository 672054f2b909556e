package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aurachat/aurachat/backend/internal/auth"
	"github.com/aurachat/aurachat/backend/internal/avatars"
	"github.com/aurachat/aurachat/backend/internal/config"
	"github.com/aurachat/aurachat/backend/internal/database"
	"github.com/aurachat/aurachat/backend/internal/ids"
	"github.com/aurachat/aurachat/backend/internal/logging"
	"github.com/aurachat/aurachat/backend/internal/media"
	"github.com/aurachat/aurachat/backend/internal/notes"
	"github.com/aurachat/aurachat/backend/internal/realtime"
	"github.com/aurachat/aurachat/backend/internal/server"
	"github.com/aurachat/aurachat/backend/internal/users"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	tokenIssuer     = "aurachat-auth"
	tokenAudience   = "aurachat-api"
	shutdownTimeout = 10 * time.Second
)

var (
	cfgFile string
	envFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "aurachat-api",
		Short: "AuraChat backend service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
		SilenceUsage: true,
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newMigrateCommand(), newNotesCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional dotenv file loaded before the environment is read")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().StringSlice("allowed-origins", defaults.GetStringSlice("http.allowed_origins"), "Origins allowed for CORS and websocket upgrades")
	cmd.PersistentFlags().String("database-driver", defaults.GetString("database.driver"), "Database driver (sqlite, postgres)")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("database-dsn", "", "Postgres connection string")
	cmd.PersistentFlags().Duration("token-ttl", defaults.GetDuration("auth.token_ttl"), "Bearer token lifetime")
	cmd.PersistentFlags().Duration("notes-cleanup-interval", defaults.GetDuration("notes.cleanup_interval"), "Expired note sweep interval (0 disables)")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", defaults.GetString("log.format"), "Log format (json, console)")
	cmd.PersistentFlags().String("signing-secret", "", "Token signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "http.allowed_origins", "allowed-origins")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "auth.token_ttl", "token-ttl")
	bindFlag(cmd, "notes.cleanup_interval", "notes-cleanup-interval")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.format", "log-format")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load env file: %w", err)
		}
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			return err
		}
	}

	return nil
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create tables and apply pending data migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(func(_ config.AppConfig, _ *gorm.DB, logger *zap.Logger) error {
				logger.Info("migrations complete")
				return nil
			})
		},
	}
}

func newNotesCommand() *cobra.Command {
	notesCmd := &cobra.Command{
		Use:   "notes",
		Short: "Note maintenance",
	}
	notesCmd.AddCommand(&cobra.Command{
		Use:   "cleanup",
		Short: "Delete expired notes once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(func(_ config.AppConfig, db *gorm.DB, logger *zap.Logger) error {
				notesService, err := notes.NewService(notes.ServiceConfig{
					Database:   db,
					Clock:      time.Now,
					IDProvider: ids.NewUUIDProvider(),
					Logger:     logger,
				})
				if err != nil {
					return err
				}
				removed, err := notesService.Cleanup(cmd.Context())
				if err != nil {
					return err
				}
				logger.Info("expired notes removed", zap.Int64("count", removed))
				return nil
			})
		},
	})
	return notesCmd
}

func withDatabase(run func(config.AppConfig, *gorm.DB, *zap.Logger) error) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.Open(database.Options{
		Driver: appConfig.DatabaseDriver,
		Path:   appConfig.DatabasePath,
		DSN:    appConfig.DatabaseDSN,
	}, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	return run(appConfig, db, logger)
}

func runServer(ctx context.Context) error {
	return withDatabase(func(appConfig config.AppConfig, db *gorm.DB, logger *zap.Logger) error {
		signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		tokenManager, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
			SigningSecret: []byte(appConfig.SigningSecret),
			Issuer:        tokenIssuer,
			Audience:      tokenAudience,
			TokenTTL:      appConfig.TokenTTL,
		})
		if err != nil {
			return err
		}

		idProvider := ids.NewUUIDProvider()
		usersService, err := users.NewService(users.ServiceConfig{
			Database:   db,
			IDProvider: idProvider,
			Clock:      time.Now,
			Logger:     logger,
		})
		if err != nil {
			return err
		}
		notesService, err := notes.NewService(notes.ServiceConfig{
			Database:   db,
			Clock:      time.Now,
			IDProvider: idProvider,
			Logger:     logger,
		})
		if err != nil {
			return err
		}
		go notes.NewReaper(notesService, appConfig.NotesCleanupInterval, logger).Run(signalCtx)

		var (
			observer realtime.PresenceObserver
			presence server.PresenceLookup
		)
		if appConfig.Redis.Enabled() {
			redisClient := redis.NewClient(&redis.Options{
				Addr:     appConfig.Redis.Address,
				Password: appConfig.Redis.Password,
				DB:       appConfig.Redis.DB,
			})
			defer redisClient.Close()
			if err := redisClient.Ping(signalCtx).Err(); err != nil {
				logger.Warn("redis unreachable at startup", zap.String("address", appConfig.Redis.Address), zap.Error(err))
			}
			mirror := realtime.NewRedisPresenceMirror(redisClient, appConfig.Redis.PresenceTTL, logger)
			go mirror.Run(signalCtx)
			observer = mirror
			presence = mirror
		}

		registry := realtime.NewRegistry(logger, observer)
		hub := realtime.NewHub(realtime.HubConfig{
			Registry: registry,
			Relay:    realtime.NewRelay(registry, logger),
			Parties:  realtime.NewPartyCoordinator(logger),
			Logger:   logger,
		})

		var music server.MusicSearcher
		if appConfig.Spotify.Enabled() {
			music = media.NewSpotifyClient(media.SpotifyConfig{
				ClientID:     appConfig.Spotify.ClientID,
				ClientSecret: appConfig.Spotify.ClientSecret,
				TokenURL:     appConfig.Spotify.TokenURL,
				APIBaseURL:   appConfig.Spotify.APIBaseURL,
				Logger:       logger,
			})
		} else {
			logger.Info("spotify search disabled", zap.String("reason", "missing_credentials"))
		}
		shorts := media.NewYouTubeClient(media.YouTubeConfig{
			APIKey:     appConfig.YouTube.APIKey,
			APIBaseURL: appConfig.YouTube.APIBaseURL,
			Logger:     logger,
		})

		var avatarStore server.AvatarStore
		if appConfig.Storage.Enabled() {
			uploader, err := avatars.NewUploader(signalCtx, avatars.Config{
				Endpoint:      appConfig.Storage.Endpoint,
				Region:        appConfig.Storage.Region,
				Bucket:        appConfig.Storage.Bucket,
				AccessKey:     appConfig.Storage.AccessKey,
				SecretKey:     appConfig.Storage.SecretKey,
				PublicBaseURL: appConfig.Storage.PublicBaseURL,
				IDProvider:    idProvider,
				Logger:        logger,
			})
			if err != nil {
				return err
			}
			avatarStore = uploader
		}

		handler, err := server.NewHTTPHandler(server.Dependencies{
			TokenManager:   tokenManager,
			UsersService:   usersService,
			NotesService:   notesService,
			Hub:            hub,
			Music:          music,
			Shorts:         shorts,
			Avatars:        avatarStore,
			Presence:       presence,
			IDProvider:     idProvider,
			AllowedOrigins: appConfig.AllowedOrigins,
			SessionContext: signalCtx,
			Logger:         logger,
		})
		if err != nil {
			return err
		}

		httpServer := &http.Server{
			Addr:              appConfig.HTTPAddress,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
			err := httpServer.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case <-signalCtx.Done():
			logger.Info("server shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		case err := <-errCh:
			return err
		}
	})
}
