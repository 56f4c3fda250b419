package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"tastemap/api/internal/config"
	"tastemap/api/internal/models"
	"tastemap/api/internal/security"
)

const (
	ctxAccountKey = "current_account"
	ctxClaimsKey  = "credential_claims"
)

var (
	errUnauthenticated   = errors.New("unauthenticated")
	errSessionSuperseded = errors.New("session superseded")
)

// AccountSource is the lookup the guard performs on every protected request
// to cross-check the credential's session-token snapshot.
type AccountSource interface {
	GetByID(ctx context.Context, id string) (models.Account, error)
}

// Auth validates the bearer credential and then reconciles it with the
// account record: the embedded session token is a claim to verify, not a fact
// to trust. A credential whose snapshot no longer matches the stored token
// was superseded by a newer login and is rejected with forceLogout=true so
// the client clears it instead of retrying.
func Auth(cfg *config.AppConfig, accounts AccountSource, roles ...models.AccountRole) gin.HandlerFunc {
	roleSet := make(map[models.AccountRole]struct{}, len(roles))
	for _, role := range roles {
		roleSet[role] = struct{}{}
	}

	return func(c *gin.Context) {
		account, claims, err := resolveCredential(c, cfg, accounts)
		if err != nil {
			abortAuth(c, err)
			return
		}

		if len(roleSet) > 0 {
			if _, ok := roleSet[account.Role]; !ok {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
				return
			}
		}

		c.Set(ctxAccountKey, account)
		c.Set(ctxClaimsKey, *claims)

		c.Next()
	}
}

// OptionalAuth degrades a missing or unverifiable credential to an anonymous
// request. A credential that verifies but carries a stale session snapshot is
// still a hard failure: a superseded admin token must not quietly keep seeing
// admin-only fields as nobody.
func OptionalAuth(cfg *config.AppConfig, accounts AccountSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		account, claims, err := resolveCredential(c, cfg, accounts)
		if err != nil {
			if errors.Is(err, errSessionSuperseded) {
				abortAuth(c, err)
				return
			}
			c.Next()
			return
		}

		c.Set(ctxAccountKey, account)
		c.Set(ctxClaimsKey, *claims)

		c.Next()
	}
}

func resolveCredential(c *gin.Context, cfg *config.AppConfig, accounts AccountSource) (models.Account, *security.CredentialClaims, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
		return models.Account{}, nil, errUnauthenticated
	}

	claims, err := security.ParseCredential(strings.TrimPrefix(authHeader, "Bearer "), cfg.Security.CredentialSecret)
	if err != nil {
		return models.Account{}, nil, errUnauthenticated
	}

	account, err := accounts.GetByID(c.Request.Context(), claims.AccountID)
	if err != nil {
		return models.Account{}, nil, errUnauthenticated
	}

	if account.Status != models.AccountStatusActive {
		return models.Account{}, nil, errUnauthenticated
	}

	if account.SessionToken == nil || *account.SessionToken != claims.SessionToken {
		return models.Account{}, nil, errSessionSuperseded
	}

	return account, claims, nil
}

func abortAuth(c *gin.Context, err error) {
	if errors.Is(err, errSessionSuperseded) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error":       "session_superseded",
			"forceLogout": true,
		})
		return
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":       "unauthenticated",
		"forceLogout": false,
	})
}

// CurrentAccount returns the authenticated account placed by Auth or
// OptionalAuth, if any.
func CurrentAccount(c *gin.Context) (models.Account, bool) {
	val, exists := c.Get(ctxAccountKey)
	if !exists {
		return models.Account{}, false
	}
	account, ok := val.(models.Account)
	return account, ok
}
