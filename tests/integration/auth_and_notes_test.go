package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"memovault/internal/auth"
	"memovault/internal/database"
	"memovault/internal/identifier"
	"memovault/internal/notes"
	"memovault/internal/server"
	"memovault/internal/users"
)

const (
	signingSecret = "integration-secret"
	adminEmail    = "admin@example.com"
	adminPassword = "admin-secret"
	memberEmail   = "member@example.com"
	memberPass    = "member-secret"
)

type apiClient struct {
	base   string
	client *http.Client
	token  string
}

func (c *apiClient) request(testContext *testing.T, method, path string, payload any) (int, []byte) {
	testContext.Helper()
	var reader io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			testContext.Fatalf("failed to encode payload: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		testContext.Fatalf("failed to build request: %v", err)
	}
	if payload != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		request.Header.Set("Authorization", "Bearer "+c.token)
	}
	response, err := c.client.Do(request)
	if err != nil {
		testContext.Fatalf("request failed: %v", err)
	}
	defer response.Body.Close()
	body, err := io.ReadAll(response.Body)
	if err != nil {
		testContext.Fatalf("failed to read response body: %v", err)
	}
	return response.StatusCode, body
}

func (c *apiClient) login(testContext *testing.T, email, password string) {
	testContext.Helper()
	status, body := c.request(testContext, http.MethodPost, "/api/auth/login",
		map[string]string{"email": email, "password": password})
	if status != http.StatusOK {
		testContext.Fatalf("login for %s failed with status %d: %s", email, status, body)
	}
	var response struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		testContext.Fatalf("failed to decode login response: %v", err)
	}
	if response.TokenType != "Bearer" || response.AccessToken == "" {
		testContext.Fatalf("unexpected login response: %s", body)
	}
	c.token = response.AccessToken
}

func TestAdminProvisioningAndNoteFlow(testContext *testing.T) {
	gin.SetMode(gin.TestMode)

	databasePath := filepath.Join(testContext.TempDir(), "memovault.db")
	db, err := database.Open(databasePath, zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open database: %v", err)
	}

	idProvider := identifier.NewUUIDProvider()

	usersService, err := users.NewService(users.ServiceConfig{
		Database:   db,
		Hasher:     auth.NewPasswordHasher(),
		IDProvider: idProvider,
		Logger:     zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to build users service: %v", err)
	}

	notesService, err := notes.NewService(notes.ServiceConfig{
		Database:   db,
		IDProvider: idProvider,
		Logger:     zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to build notes service: %v", err)
	}

	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(signingSecret),
		Issuer:        "memovault",
		TokenTTL:      time.Hour,
	})
	if err != nil {
		testContext.Fatalf("failed to build token issuer: %v", err)
	}

	guard, err := auth.NewGuard(auth.GuardConfig{
		Tokens:   issuer,
		Accounts: usersService,
		Logger:   zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to build guard: %v", err)
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Guard:  guard,
		Tokens: issuer,
		Notes:  notesService,
		Users:  usersService,
		Logger: zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to build handler: %v", err)
	}

	testServer := httptest.NewServer(handler)
	defer testServer.Close()

	// Bootstrap admin, the same path the create-admin command takes.
	if _, err := usersService.Create(context.Background(), adminEmail, adminPassword, "Admin", users.RoleAdmin); err != nil {
		testContext.Fatalf("failed to bootstrap admin: %v", err)
	}

	admin := &apiClient{base: testServer.URL, client: testServer.Client()}
	admin.login(testContext, adminEmail, adminPassword)

	// Admin provisions a regular member account.
	status, body := admin.request(testContext, http.MethodPost, "/api/users",
		map[string]string{"email": memberEmail, "password": memberPass, "name": "Member"})
	if status != http.StatusCreated {
		testContext.Fatalf("expected 201 creating member, got %d: %s", status, body)
	}
	var memberAccount struct {
		ID   string `json:"id"`
		Role string `json:"role"`
	}
	if err := json.Unmarshal(body, &memberAccount); err != nil {
		testContext.Fatalf("failed to decode member account: %v", err)
	}
	if memberAccount.Role != users.RoleUser {
		testContext.Fatalf("member defaults to role user, got %q", memberAccount.Role)
	}

	member := &apiClient{base: testServer.URL, client: testServer.Client()}
	member.login(testContext, memberEmail, memberPass)

	// Member writes a note with hostile markup and a styled span.
	status, body = member.request(testContext, http.MethodPost, "/api/notes", map[string]string{
		"title":   "Plan <img src=x onerror=alert(1)>",
		"content": `<script>steal()</script><span style="color: #ff0000">Buy milk</span>`,
	})
	if status != http.StatusCreated {
		testContext.Fatalf("expected 201 creating note, got %d: %s", status, body)
	}
	var note struct {
		ID         string `json:"id"`
		Title      string `json:"title"`
		Content    string `json:"content"`
		IsFavorite bool   `json:"is_favorite"`
	}
	if err := json.Unmarshal(body, &note); err != nil {
		testContext.Fatalf("failed to decode note: %v", err)
	}
	if note.Title != "Plan" {
		testContext.Fatalf("title markup must be stripped, got %q", note.Title)
	}
	if note.Content != `<span style="color: #ff0000">Buy milk</span>` {
		testContext.Fatalf("content must keep allowed markup only, got %q", note.Content)
	}

	status, _ = member.request(testContext, http.MethodPut, "/api/notes/"+note.ID+"/favorite", nil)
	if status != http.StatusOK {
		testContext.Fatalf("favorite toggle failed with %d", status)
	}
	status, body = member.request(testContext, http.MethodGet, "/api/notes/favorites", nil)
	if status != http.StatusOK {
		testContext.Fatalf("favorites listing failed with %d", status)
	}
	var listing struct {
		Count int `json:"count"`
		Data  []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &listing); err != nil {
		testContext.Fatalf("failed to decode favorites listing: %v", err)
	}
	if listing.Count != 1 || len(listing.Data) != 1 || listing.Data[0].ID != note.ID {
		testContext.Fatalf("favorites listing must contain the note: %s", body)
	}

	// Admin removes the member; notes survive without an owner.
	status, _ = admin.request(testContext, http.MethodDelete, "/api/users/"+memberAccount.ID, nil)
	if status != http.StatusOK {
		testContext.Fatalf("member deletion failed with %d", status)
	}

	var orphan notes.Note
	if err := db.First(&orphan, "id = ?", note.ID).Error; err != nil {
		testContext.Fatalf("orphaned note must survive owner deletion: %v", err)
	}
	if orphan.OwnerID != nil {
		testContext.Fatalf("deleted owner's notes must be detached, got owner %q", *orphan.OwnerID)
	}

	// The removed member's token no longer opens the door.
	status, _ = member.request(testContext, http.MethodGet, "/api/notes", nil)
	if status != http.StatusUnauthorized {
		testContext.Fatalf("deleted account's token must be rejected, got %d", status)
	}
}
