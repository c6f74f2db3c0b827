package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"memovault/internal/apperr"
	"memovault/internal/auth"
	"memovault/internal/notes"
	"memovault/internal/users"
)

var (
	errMissingGuard        = errors.New("server: auth guard dependency required")
	errMissingTokenIssuer  = errors.New("server: token issuer dependency required")
	errMissingNotesService = errors.New("server: notes service dependency required")
	errMissingUsersService = errors.New("server: users service dependency required")
)

// Dependencies wires the services behind the HTTP surface.
type Dependencies struct {
	Guard       *auth.Guard
	Tokens      *auth.TokenIssuer
	Notes       *notes.Service
	Users       *users.Service
	Logger      *zap.Logger
	Development bool
}

// NewHTTPHandler builds the gin handler exposing the note and account API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Guard == nil {
		return nil, errMissingGuard
	}
	if deps.Tokens == nil {
		return nil, errMissingTokenIssuer
	}
	if deps.Notes == nil {
		return nil, errMissingNotesService
	}
	if deps.Users == nil {
		return nil, errMissingUsersService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens:      deps.Tokens,
		notes:       deps.Notes,
		users:       deps.Users,
		logger:      logger,
		development: deps.Development,
	}

	router.GET("/health", handler.handleHealth)

	authRoutes := router.Group("/api/auth")
	authRoutes.POST("/login", handler.handleLogin)
	authRoutes.POST("/logout", handler.handleLogout)

	authed := router.Group("/api")
	authed.Use(deps.Guard.Require())

	authed.GET("/auth/me", handler.handleMe)
	authed.PUT("/auth/password", handler.handleChangePassword)

	noteRoutes := authed.Group("/notes")
	noteRoutes.GET("", handler.handleListNotes)
	noteRoutes.POST("", handler.handleCreateNote)
	noteRoutes.GET("/favorites", handler.handleListFavorites)
	noteRoutes.GET("/trash", handler.handleListTrash)
	noteRoutes.GET("/:id", handler.handleGetNote)
	noteRoutes.PUT("/:id", handler.handleUpdateNote)
	noteRoutes.DELETE("/:id", handler.handleDeleteNote)
	noteRoutes.DELETE("/:id/purge", handler.handlePurgeNote)
	noteRoutes.PUT("/:id/favorite", handler.handleToggleFavorite)
	noteRoutes.PUT("/:id/restore", handler.handleRestoreNote)

	userRoutes := authed.Group("/users")
	userRoutes.Use(deps.Guard.RequireRole(users.RoleAdmin))
	userRoutes.GET("", handler.handleListUsers)
	userRoutes.POST("", handler.handleCreateUser)
	userRoutes.GET("/:id", handler.handleGetUser)
	userRoutes.PUT("/:id", handler.handleUpdateUser)
	userRoutes.PUT("/:id/password", handler.handleResetPassword)
	userRoutes.DELETE("/:id", handler.handleDeleteUser)

	return router, nil
}

type httpHandler struct {
	tokens      *auth.TokenIssuer
	notes       *notes.Service
	users       *users.Service
	logger      *zap.Logger
	development bool
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string         `json:"access_token"`
	ExpiresIn   int64          `json:"expires_in"`
	TokenType   string         `json:"token_type"`
	User        accountPayload `json:"user"`
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.fail(c, apperr.Validation("email and password are required"))
		return
	}

	account, err := h.users.Authenticate(c.Request.Context(), request.Email, request.Password)
	if err != nil {
		h.fail(c, err)
		return
	}

	token, expiresIn, err := h.tokens.Issue(account.ID, account.Email, account.Role)
	if err != nil {
		h.logger.Error("failed to issue session token", zap.Error(err))
		h.fail(c, apperr.Wrap(apperr.KindInternal, "could not issue token", err))
		return
	}

	h.logger.Info("login succeeded", zap.String("account_id", account.ID))
	c.JSON(http.StatusOK, loginResponse{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
		User:        toAccountPayload(account),
	})
}

// Logout is a client-side token discard: tokens are stateless and stay
// valid until natural expiry.
func (h *httpHandler) handleLogout(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

func (h *httpHandler) handleMe(c *gin.Context) {
	principal, err := auth.PrincipalFrom(c)
	if err != nil {
		h.fail(c, apperr.New(apperr.KindUnauthenticated, "authentication required"))
		return
	}

	account, err := h.users.Get(c.Request.Context(), principal.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toAccountPayload(account))
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *httpHandler) handleChangePassword(c *gin.Context) {
	principal, err := auth.PrincipalFrom(c)
	if err != nil {
		h.fail(c, apperr.New(apperr.KindUnauthenticated, "authentication required"))
		return
	}

	var request changePasswordRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.fail(c, apperr.Validation("current and new password are required"))
		return
	}

	if err := h.users.ChangePassword(c.Request.Context(), principal.ID, request.CurrentPassword, request.NewPassword); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "password updated"})
}

// fail maps a service failure to its status code. Internal detail reaches
// the client only in development mode.
func (h *httpHandler) fail(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := statusForKind(kind)

	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("kind", string(kind)), zap.Error(err))
	}

	body := gin.H{
		"error":   string(kind),
		"message": apperr.MessageOf(err),
	}
	if h.development {
		body["detail"] = err.Error()
	}
	c.JSON(status, body)
}

func statusForKind(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindUnauthenticated:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
