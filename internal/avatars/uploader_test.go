package avatars

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/aurachat/aurachat/backend/internal/ids"
)

func newTestUploader(t *testing.T, identifiers ...string) *Uploader {
	t.Helper()
	uploader, err := NewUploader(context.Background(), Config{
		Endpoint:      "http://127.0.0.1:9000",
		Region:        "us-east-1",
		Bucket:        "aurachat",
		AccessKey:     "minioadmin",
		SecretKey:     "minioadmin",
		PublicBaseURL: "https://cdn.example.com/aurachat/",
		IDProvider:    ids.Sequence(identifiers...),
		Clock: func() time.Time {
			return time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
		},
	})
	if err != nil {
		t.Fatalf("failed to build uploader: %v", err)
	}
	return uploader
}

func TestPresignUploadBuildsUserScopedKey(t *testing.T) {
	uploader := newTestUploader(t, "obj-1")

	upload, err := uploader.PresignUpload(context.Background(), "user-1", "image/PNG")
	if err != nil {
		t.Fatalf("presign failed: %v", err)
	}
	if upload.Key != "avatars/user-1/obj-1.png" {
		t.Fatalf("unexpected key %q", upload.Key)
	}
	if upload.Method != http.MethodPut {
		t.Fatalf("unexpected method %q", upload.Method)
	}
	if upload.ContentType != "image/png" {
		t.Fatalf("unexpected content type %q", upload.ContentType)
	}
	if !upload.ExpiresAt.Equal(time.Date(2026, time.March, 1, 12, 15, 0, 0, time.UTC)) {
		t.Fatalf("unexpected expiry %v", upload.ExpiresAt)
	}

	parsed, err := url.Parse(upload.URL)
	if err != nil {
		t.Fatalf("presigned url did not parse: %v", err)
	}
	if parsed.Host != "127.0.0.1:9000" {
		t.Fatalf("expected custom endpoint, got host %q", parsed.Host)
	}
	if parsed.Path != "/aurachat/avatars/user-1/obj-1.png" {
		t.Fatalf("expected path-style url, got %q", parsed.Path)
	}
	query := parsed.Query()
	if query.Get("X-Amz-Signature") == "" {
		t.Fatalf("expected a signature in %q", upload.URL)
	}
	if query.Get("X-Amz-Expires") != "900" {
		t.Fatalf("expected 15 minute expiry, got %q", query.Get("X-Amz-Expires"))
	}
}

func TestPresignUploadRejectsUnsupportedTypes(t *testing.T) {
	uploader := newTestUploader(t, "obj-1")
	for _, contentType := range []string{"image/webp", "application/pdf", ""} {
		if _, err := uploader.PresignUpload(context.Background(), "user-1", contentType); !errors.Is(err, ErrUnsupportedContentType) {
			t.Fatalf("expected unsupported type for %q, got %v", contentType, err)
		}
	}
}

func TestPresignUploadAcceptsBareExtensions(t *testing.T) {
	uploader := newTestUploader(t, "a", "b")
	upload, err := uploader.PresignUpload(context.Background(), "user-1", "jpeg")
	if err != nil {
		t.Fatalf("presign failed: %v", err)
	}
	if !strings.HasSuffix(upload.Key, "a.jpg") || upload.ContentType != "image/jpeg" {
		t.Fatalf("unexpected upload %+v", upload)
	}
}

func TestPublicURLEnforcesOwnership(t *testing.T) {
	uploader := newTestUploader(t)

	publicURL, err := uploader.PublicURL("user-1", "avatars/user-1/obj-1.png")
	if err != nil {
		t.Fatalf("public url failed: %v", err)
	}
	if publicURL != "https://cdn.example.com/aurachat/avatars/user-1/obj-1.png" {
		t.Fatalf("unexpected public url %q", publicURL)
	}

	for _, key := range []string{"avatars/user-2/obj-1.png", "avatars/user-1/", "avatars/user-1/../user-2/x.png", "other/user-1/x.png"} {
		if _, err := uploader.PublicURL("user-1", key); !errors.Is(err, ErrForeignKey) {
			t.Fatalf("expected foreign key error for %q, got %v", key, err)
		}
	}
}

func TestNewUploaderRequiresBucket(t *testing.T) {
	if _, err := NewUploader(context.Background(), Config{Region: "us-east-1"}); !errors.Is(err, ErrMissingBucket) {
		t.Fatalf("expected missing bucket error, got %v", err)
	}
}
