// Package avatars issues presigned object-storage uploads for profile pictures.
package avatars

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aurachat/aurachat/backend/internal/ids"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

const (
	keyPrefix            = "avatars"
	defaultPresignExpiry = 15 * time.Minute
)

var (
	// ErrUnsupportedContentType indicates the image type is not one of png, jpeg or gif.
	ErrUnsupportedContentType = errors.New("avatars: unsupported content type")
	// ErrForeignKey indicates the object key does not belong to the caller.
	ErrForeignKey = errors.New("avatars: key does not belong to user")
	// ErrMissingBucket indicates the storage bucket is not configured.
	ErrMissingBucket = errors.New("avatars: bucket is required")
)

var extensionsByContentType = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/jpg":  "jpg",
	"image/gif":  "gif",
	"png":        "png",
	"jpeg":       "jpg",
	"jpg":        "jpg",
	"gif":        "gif",
}

// Config describes the S3-compatible bucket receiving avatars.
type Config struct {
	Endpoint      string
	Region        string
	Bucket        string
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
	Expiry        time.Duration
	IDProvider    ids.Provider
	Clock         func() time.Time
	Logger        *zap.Logger
}

// Upload is a presigned PUT the client performs directly against storage.
type Upload struct {
	Key         string    `json:"key"`
	URL         string    `json:"upload_url"`
	Method      string    `json:"method"`
	ContentType string    `json:"content_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Uploader presigns avatar uploads and resolves stored keys to public URLs.
type Uploader struct {
	presigner     *s3.PresignClient
	bucket        string
	publicBaseURL string
	expiry        time.Duration
	idProvider    ids.Provider
	clock         func() time.Time
	logger        *zap.Logger
}

func NewUploader(ctx context.Context, cfg Config) (*Uploader, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, ErrMissingBucket
	}
	awsConfig, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("avatars: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	expiry := cfg.Expiry
	if expiry <= 0 {
		expiry = defaultPresignExpiry
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = ids.NewUUIDProvider()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Uploader{
		presigner:     s3.NewPresignClient(client),
		bucket:        cfg.Bucket,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		expiry:        expiry,
		idProvider:    idProvider,
		clock:         clock,
		logger:        logger,
	}, nil
}

// PresignUpload issues a PUT URL for a new avatar object under the user's prefix.
func (u *Uploader) PresignUpload(ctx context.Context, userID, contentType string) (Upload, error) {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	extension, ok := extensionsByContentType[contentType]
	if !ok {
		return Upload{}, fmt.Errorf("%w: %q", ErrUnsupportedContentType, contentType)
	}
	if !strings.Contains(contentType, "/") {
		contentType = "image/" + contentType
	}

	objectID, err := u.idProvider.NewID()
	if err != nil {
		return Upload{}, err
	}
	key := fmt.Sprintf("%s%s.%s", userPrefix(userID), objectID, extension)

	request, err := u.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(u.expiry))
	if err != nil {
		u.logger.Error("avatar presign failed", zap.String("user_id", userID), zap.Error(err))
		return Upload{}, err
	}

	return Upload{
		Key:         key,
		URL:         request.URL,
		Method:      request.Method,
		ContentType: contentType,
		ExpiresAt:   u.clock().UTC().Add(u.expiry),
	}, nil
}

// PublicURL returns the public address of key after checking it sits under the user's prefix.
func (u *Uploader) PublicURL(userID, key string) (string, error) {
	key = strings.TrimSpace(key)
	prefix := userPrefix(userID)
	if !strings.HasPrefix(key, prefix) || len(key) == len(prefix) || strings.Contains(key, "..") {
		return "", ErrForeignKey
	}
	return u.publicBaseURL + "/" + key, nil
}

func userPrefix(userID string) string {
	return keyPrefix + "/" + userID + "/"
}
