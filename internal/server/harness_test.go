package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aurachat/aurachat/backend/internal/auth"
	"github.com/aurachat/aurachat/backend/internal/database"
	"github.com/aurachat/aurachat/backend/internal/ids"
	"github.com/aurachat/aurachat/backend/internal/notes"
	"github.com/aurachat/aurachat/backend/internal/realtime"
	"github.com/aurachat/aurachat/backend/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testServer struct {
	handler http.Handler
	clock   *testClock
	hub     *realtime.Hub
}

func newTestServer(t *testing.T, overrides ...func(*Dependencies)) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Open(database.Options{
		Driver: database.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "aurachat.db"),
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	clock := &testClock{now: time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)}
	usersService, err := users.NewService(users.ServiceConfig{Database: db, Clock: clock.Now})
	if err != nil {
		t.Fatalf("failed to build users service: %v", err)
	}
	notesService, err := notes.NewService(notes.ServiceConfig{
		Database:   db,
		IDProvider: ids.NewUUIDProvider(),
		Clock:      clock.Now,
	})
	if err != nil {
		t.Fatalf("failed to build notes service: %v", err)
	}
	tokens, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("router-test-secret"),
		Issuer:        "aurachat",
		Audience:      "aurachat-api",
		TokenTTL:      72 * time.Hour,
		Clock:         clock.Now,
	})
	if err != nil {
		t.Fatalf("failed to build token issuer: %v", err)
	}
	hub := realtime.NewHub(realtime.HubConfig{})

	deps := Dependencies{
		TokenManager: tokens,
		UsersService: usersService,
		NotesService: notesService,
		Hub:          hub,
		Clock:        clock.Now,
		Logger:       zap.NewNop(),
	}
	for _, override := range overrides {
		override(&deps)
	}
	handler, err := NewHTTPHandler(deps)
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}
	return &testServer{handler: handler, clock: clock, hub: hub}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	request := httptest.NewRequest(method, path, reader)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	return recorder
}

// register creates an account and returns its token and identifier.
func (s *testServer) register(t *testing.T, username string) (string, string) {
	t.Helper()
	recorder := s.do(t, http.MethodPost, "/auth/register", "", gin.H{
		"username":  username,
		"email":     username + "@example.com",
		"password":  "secret-pass",
		"full_name": username + " tester",
	})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("register %s: expected 201, got %d: %s", username, recorder.Code, recorder.Body.String())
	}
	var response authResponse
	decodeBody(t, recorder, &response)
	return response.Token, response.User.ID
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
}

type errorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type notesBody struct {
	Notes []noteResponse `json:"notes"`
}
