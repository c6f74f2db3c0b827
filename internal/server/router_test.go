package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"memovault/internal/auth"
	"memovault/internal/identifier"
	"memovault/internal/notes"
	"memovault/internal/users"
)

const testSigningSecret = "router-test-secret"

type testEnv struct {
	server *httptest.Server
	users  *users.Service
	issuer *auth.TokenIssuer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:memovault_router_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&users.Account{}, &notes.Note{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	idProvider := identifier.NewUUIDProvider()

	usersService, err := users.NewService(users.ServiceConfig{
		Database:   db,
		Hasher:     auth.NewPasswordHasher(),
		IDProvider: idProvider,
		Logger:     zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to build users service: %v", err)
	}

	notesService, err := notes.NewService(notes.ServiceConfig{
		Database:   db,
		IDProvider: idProvider,
		Logger:     zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to build notes service: %v", err)
	}

	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(testSigningSecret),
		Issuer:        "memovault",
		TokenTTL:      time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to build token issuer: %v", err)
	}

	guard, err := auth.NewGuard(auth.GuardConfig{
		Tokens:   issuer,
		Accounts: usersService,
		Logger:   zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to build guard: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		Guard:  guard,
		Tokens: issuer,
		Notes:  notesService,
		Users:  usersService,
		Logger: zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}

	testServer := httptest.NewServer(handler)
	t.Cleanup(testServer.Close)

	return &testEnv{server: testServer, users: usersService, issuer: issuer}
}

func (e *testEnv) seedAccount(t *testing.T, email, role string) *users.Account {
	t.Helper()
	account, err := e.users.Create(context.Background(), email, "secret-1", "Test User", role)
	if err != nil {
		t.Fatalf("failed to seed account %s: %v", email, err)
	}
	return account
}

func (e *testEnv) login(t *testing.T, email string) string {
	t.Helper()
	status, body := e.do(t, http.MethodPost, "/api/auth/login", "",
		map[string]string{"email": email, "password": "secret-1"})
	if status != http.StatusOK {
		t.Fatalf("login for %s failed with status %d: %s", email, status, body)
	}
	var response struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal([]byte(body), &response); err != nil {
		t.Fatalf("failed to decode login response: %v", err)
	}
	return response.AccessToken
}

func (e *testEnv) do(t *testing.T, method, path, token string, payload any) (int, string) {
	t.Helper()
	var reader io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to encode payload: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	if payload != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	response, err := e.server.Client().Do(request)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer response.Body.Close()
	body, err := io.ReadAll(response.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return response.StatusCode, string(body)
}

func TestNoteScenarioAcrossUsers(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "user1@example.com", users.RoleUser)
	env.seedAccount(t, "user2@example.com", users.RoleUser)

	tokenOne := env.login(t, "user1@example.com")
	tokenTwo := env.login(t, "user2@example.com")

	status, body := env.do(t, http.MethodPost, "/api/notes", tokenOne,
		map[string]string{"title": "Plan", "content": "<script>x</script>Buy milk"})
	if status != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", status, body)
	}
	var created struct {
		ID      string `json:"id"`
		Title   string `json:"title"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal([]byte(body), &created); err != nil {
		t.Fatalf("failed to decode note: %v", err)
	}
	if created.Title != "Plan" {
		t.Fatalf("unexpected title %q", created.Title)
	}
	if created.Content != "Buy milk" {
		t.Fatalf("expected script stripped, got %q", created.Content)
	}

	status, body = env.do(t, http.MethodGet, "/api/notes", tokenOne, nil)
	if status != http.StatusOK || !strings.Contains(body, created.ID) {
		t.Fatalf("owner listing must include the note: %d %s", status, body)
	}

	status, body = env.do(t, http.MethodGet, "/api/notes", tokenTwo, nil)
	if status != http.StatusOK || strings.Contains(body, created.ID) {
		t.Fatalf("other user's listing must not include the note: %d %s", status, body)
	}

	// A foreign note id behaves exactly like a missing one.
	status, _ = env.do(t, http.MethodGet, "/api/notes/"+created.ID, tokenTwo, nil)
	if status != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign note, got %d", status)
	}
	status, _ = env.do(t, http.MethodDelete, "/api/notes/"+created.ID, tokenTwo, nil)
	if status != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign delete, got %d", status)
	}
}

func TestNoteLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "user1@example.com", users.RoleUser)
	token := env.login(t, "user1@example.com")

	status, body := env.do(t, http.MethodPost, "/api/notes", token,
		map[string]string{"title": "Plan", "content": "body"})
	if status != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", status, body)
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal([]byte(body), &created); err != nil {
		t.Fatalf("failed to decode note: %v", err)
	}

	// Purge before trashing is rejected.
	status, _ = env.do(t, http.MethodDelete, "/api/notes/"+created.ID+"/purge", token, nil)
	if status != http.StatusNotFound {
		t.Fatalf("active note must not purge directly, got %d", status)
	}

	status, _ = env.do(t, http.MethodDelete, "/api/notes/"+created.ID, token, nil)
	if status != http.StatusOK {
		t.Fatalf("soft delete failed with %d", status)
	}

	status, body = env.do(t, http.MethodGet, "/api/notes/trash", token, nil)
	if status != http.StatusOK || !strings.Contains(body, created.ID) {
		t.Fatalf("trash listing must include the note: %d %s", status, body)
	}

	status, _ = env.do(t, http.MethodPut, "/api/notes/"+created.ID+"/restore", token, nil)
	if status != http.StatusOK {
		t.Fatalf("restore failed with %d", status)
	}

	status, _ = env.do(t, http.MethodDelete, "/api/notes/"+created.ID, token, nil)
	if status != http.StatusOK {
		t.Fatalf("second soft delete failed with %d", status)
	}
	status, _ = env.do(t, http.MethodDelete, "/api/notes/"+created.ID+"/purge", token, nil)
	if status != http.StatusOK {
		t.Fatalf("purge failed with %d", status)
	}

	for _, path := range []string{"/api/notes", "/api/notes/favorites", "/api/notes/trash"} {
		status, body = env.do(t, http.MethodGet, path, token, nil)
		if status != http.StatusOK || strings.Contains(body, created.ID) {
			t.Fatalf("purged note still visible via %s: %d %s", path, status, body)
		}
	}
}

func TestValidationFailuresMapToBadRequest(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "user1@example.com", users.RoleUser)
	token := env.login(t, "user1@example.com")

	status, body := env.do(t, http.MethodPost, "/api/notes", token,
		map[string]string{"title": "Plan", "content": "<script>x</script>"})
	if status != http.StatusBadRequest {
		t.Fatalf("markup-only content must be rejected, got %d: %s", status, body)
	}
	if !strings.Contains(body, "validation_failed") {
		t.Fatalf("expected validation_failed kind, got %s", body)
	}
}

func TestAuthRejection(t *testing.T) {
	env := newTestEnv(t)
	account := env.seedAccount(t, "user1@example.com", users.RoleUser)

	// No token.
	status, _ := env.do(t, http.MethodGet, "/api/notes", "", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", status)
	}

	// Token signed with a different secret.
	foreignIssuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("some-other-secret"),
		Issuer:        "memovault",
		TokenTTL:      time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to build foreign issuer: %v", err)
	}
	foreignToken, _, err := foreignIssuer.Issue(account.ID, account.Email, account.Role)
	if err != nil {
		t.Fatalf("failed to issue foreign token: %v", err)
	}
	status, _ = env.do(t, http.MethodGet, "/api/notes", foreignToken, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 for foreign signature, got %d", status)
	}

	// Token expired relative to real time.
	expiredIssuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(testSigningSecret),
		Issuer:        "memovault",
		TokenTTL:      time.Minute,
		Clock:         func() time.Time { return time.Now().Add(-2 * time.Hour) },
	})
	if err != nil {
		t.Fatalf("failed to build expired issuer: %v", err)
	}
	expiredToken, _, err := expiredIssuer.Issue(account.ID, account.Email, account.Role)
	if err != nil {
		t.Fatalf("failed to issue expired token: %v", err)
	}
	status, _ = env.do(t, http.MethodGet, "/api/notes", expiredToken, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 for expired token, got %d", status)
	}
}

func TestDeactivatedAccountTokenRejected(t *testing.T) {
	env := newTestEnv(t)
	admin := env.seedAccount(t, "admin@example.com", users.RoleAdmin)
	target := env.seedAccount(t, "user1@example.com", users.RoleUser)

	token := env.login(t, "user1@example.com")

	inactive := false
	if _, err := env.users.Update(context.Background(), admin.ID, target.ID, users.UpdateRequest{Active: &inactive}); err != nil {
		t.Fatalf("failed to deactivate account: %v", err)
	}

	status, _ := env.do(t, http.MethodGet, "/api/notes", token, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("deactivated account's token must be rejected, got %d", status)
	}
}

func TestAdminSurfaceGating(t *testing.T) {
	env := newTestEnv(t)
	admin := env.seedAccount(t, "admin@example.com", users.RoleAdmin)
	env.seedAccount(t, "user1@example.com", users.RoleUser)

	userToken := env.login(t, "user1@example.com")
	adminToken := env.login(t, "admin@example.com")

	status, _ := env.do(t, http.MethodGet, "/api/users", userToken, nil)
	if status != http.StatusForbidden {
		t.Fatalf("non-admin must get 403 on admin surface, got %d", status)
	}

	status, _ = env.do(t, http.MethodGet, "/api/users", adminToken, nil)
	if status != http.StatusOK {
		t.Fatalf("admin listing failed with %d", status)
	}

	// Duplicate email maps to 409.
	status, body := env.do(t, http.MethodPost, "/api/users", adminToken,
		map[string]string{"email": "user1@example.com", "password": "secret-2", "name": "Dup"})
	if status != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate email, got %d: %s", status, body)
	}

	// Self-demotion maps to 403.
	status, body = env.do(t, http.MethodPut, "/api/users/"+admin.ID, adminToken,
		map[string]any{"role": "user"})
	if status != http.StatusForbidden {
		t.Fatalf("expected 403 for self-demotion, got %d: %s", status, body)
	}
}

func TestMeAndChangePassword(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "user1@example.com", users.RoleUser)
	token := env.login(t, "user1@example.com")

	status, body := env.do(t, http.MethodGet, "/api/auth/me", token, nil)
	if status != http.StatusOK || !strings.Contains(body, "user1@example.com") {
		t.Fatalf("unexpected me response: %d %s", status, body)
	}
	if strings.Contains(body, "password") {
		t.Fatalf("me response must not expose credential material: %s", body)
	}

	status, _ = env.do(t, http.MethodPut, "/api/auth/password", token,
		map[string]string{"current_password": "wrong", "new_password": "new-secret"})
	if status != http.StatusUnauthorized {
		t.Fatalf("wrong current password must yield 401, got %d", status)
	}

	status, _ = env.do(t, http.MethodPut, "/api/auth/password", token,
		map[string]string{"current_password": "secret-1", "new_password": "new-secret"})
	if status != http.StatusOK {
		t.Fatalf("password change failed with %d", status)
	}

	status, _ = env.do(t, http.MethodPost, "/api/auth/login", "",
		map[string]string{"email": "user1@example.com", "password": "new-secret"})
	if status != http.StatusOK {
		t.Fatalf("login with new password failed with %d", status)
	}
}

func TestHealthEndpointIsPublic(t *testing.T) {
	env := newTestEnv(t)
	status, body := env.do(t, http.MethodGet, "/health", "", nil)
	if status != http.StatusOK || !strings.Contains(body, "ok") {
		t.Fatalf("unexpected health response: %d %s", status, body)
	}
}
