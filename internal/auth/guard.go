package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"memovault/internal/apperr"
)

const principalContextKey = "memovault_principal"

var (
	errMissingTokenVerifier    = errors.New("auth: token verifier dependency required")
	errMissingAccountResolver  = errors.New("auth: account resolver dependency required")
	errInvalidAuthorization    = errors.New("auth: authorization header missing or invalid")
	errPrincipalNotEstablished = errors.New("auth: no principal attached to request")
)

// Principal is the authenticated identity attached to a request after
// successful verification.
type Principal struct {
	ID    string
	Email string
	Name  string
	Role  string
}

// AccountResolver looks up the live account backing a verified token. The
// second return value reports the account's active flag.
type AccountResolver interface {
	ResolveAccount(ctx context.Context, accountID string) (Principal, bool, error)
}

// TokenVerifier validates a bearer token and returns its session claims.
type TokenVerifier interface {
	Verify(tokenString string) (SessionClaims, error)
}

// GuardConfig wires the dependencies of the request guard.
type GuardConfig struct {
	Tokens   TokenVerifier
	Accounts AccountResolver
	Logger   *zap.Logger
}

// Guard resolves bearer credentials into a request principal and enforces
// role requirements. Token state is never refreshed and no last-seen update
// happens here; the only side effect is context attachment.
type Guard struct {
	tokens   TokenVerifier
	accounts AccountResolver
	logger   *zap.Logger
}

// NewGuard constructs the guard middleware provider.
func NewGuard(cfg GuardConfig) (*Guard, error) {
	if cfg.Tokens == nil {
		return nil, errMissingTokenVerifier
	}
	if cfg.Accounts == nil {
		return nil, errMissingAccountResolver
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{tokens: cfg.Tokens, accounts: cfg.Accounts, logger: logger}, nil
}

// Require returns middleware that rejects the request with 401 unless a
// valid bearer token resolves to an active account.
func (g *Guard) Require() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			abortUnauthenticated(c, errInvalidAuthorization.Error())
			return
		}

		claims, err := g.tokens.Verify(token)
		if err != nil {
			if errors.Is(err, ErrTokenExpired) {
				g.logger.Info("session token expired", zap.Error(err))
			} else {
				g.logger.Warn("session token rejected", zap.Error(err))
			}
			abortUnauthenticated(c, "invalid or expired token")
			return
		}

		principal, active, err := g.accounts.ResolveAccount(c.Request.Context(), claims.AccountID())
		if err != nil {
			if apperr.KindOf(err) == apperr.KindUnavailable {
				g.logger.Error("account lookup unavailable", zap.Error(err))
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
					"error":   string(apperr.KindUnavailable),
					"message": "account lookup unavailable",
				})
				return
			}
			abortUnauthenticated(c, "unknown account")
			return
		}
		if !active {
			abortUnauthenticated(c, "account deactivated")
			return
		}

		c.Set(principalContextKey, principal)
		c.Next()
	}
}

// RequireRole returns middleware enforcing the given role on the already
// resolved principal. Run it after Require.
func (g *Guard) RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := PrincipalFrom(c)
		if err != nil {
			abortUnauthenticated(c, "authentication required")
			return
		}
		if principal.Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "insufficient role",
			})
			return
		}
		c.Next()
	}
}

// PrincipalFrom extracts the resolved principal from the request context.
func PrincipalFrom(c *gin.Context) (Principal, error) {
	value, exists := c.Get(principalContextKey)
	if !exists {
		return Principal{}, errPrincipalNotEstablished
	}
	principal, ok := value.(Principal)
	if !ok {
		return Principal{}, errPrincipalNotEstablished
	}
	return principal, nil
}

func bearerToken(header string) (string, bool) {
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func abortUnauthenticated(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":   "unauthenticated",
		"message": message,
	})
}
