package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/marketrelay/backend/internal/infrastructure/auth"
	"github.com/marketrelay/backend/internal/infrastructure/logger"
	"github.com/marketrelay/backend/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

const claimsKey = "auth.claims"

// Verifier turns a bearer token into claims; *auth.Tokens is one
type Verifier interface {
	Verify(raw string) (*auth.Claims, error)
}

// DefaultPublicPaths need no token. A trailing "*" matches a prefix.
var DefaultPublicPaths = []string{"/health", "/healthz", "/ready", "/metrics", "/api/v1/health", "/swagger/*"}

type AuthOptions struct {
	// Public overrides DefaultPublicPaths when non-nil
	Public []string
	Logger *zap.Logger
	// OnError replaces the 401 response
	OnError func(c *gin.Context, err error)
}

// Authenticate requires a valid bearer token on every non-public path and
// stores the claims on the request
func Authenticate(v Verifier, opts AuthOptions) gin.HandlerFunc {
	public := opts.Public
	if public == nil {
		public = DefaultPublicPaths
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	reject := opts.OnError
	if reject == nil {
		reject = func(c *gin.Context, err error) {
			log.Warn("Authentication failed", zap.Error(err), zap.String("path", c.Request.URL.Path))
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				dto.NewErrorResponseWithRequestID(dto.ErrCodeUnauthorized, authMessage(err), GetRequestID(c)))
		}
	}

	return func(c *gin.Context) {
		if isPublic(public, c.Request.URL.Path) {
			c.Next()
			return
		}
		raw, ok := bearer(c.GetHeader("Authorization"))
		if !ok {
			reject(c, auth.ErrInvalidToken)
			return
		}
		claims, err := v.Verify(raw)
		if err != nil {
			reject(c, err)
			return
		}
		WithClaims(c, claims)
		c.Next()
	}
}

func isPublic(public []string, path string) bool {
	for _, p := range public {
		if prefix, ok := strings.CutSuffix(p, "*"); ok {
			if strings.HasPrefix(path, prefix) {
				return true
			}
		} else if p == path {
			return true
		}
	}
	return false
}

func bearer(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func authMessage(err error) string {
	switch {
	case errors.Is(err, auth.ErrExpired):
		return "Token has expired"
	case errors.Is(err, auth.ErrNotYetValid):
		return "Token is not yet valid"
	case errors.Is(err, auth.ErrInvalidClaims):
		return "Token is missing identity claims"
	}
	return "Authentication required"
}

// WithClaims attaches claims to the request and tags the request logger
// with the caller
func WithClaims(c *gin.Context, claims *auth.Claims) {
	c.Set(claimsKey, claims)

	ctx := c.Request.Context()
	ctx, l := logger.WithTenantID(ctx, logger.FromContext(ctx), claims.TenantID)
	ctx, _ = logger.WithUserID(ctx, l, claims.UserID)
	c.Request = c.Request.WithContext(ctx)
}

// ClaimsOf returns the caller's claims, nil on unauthenticated requests
func ClaimsOf(c *gin.Context) *auth.Claims {
	v, _ := c.Get(claimsKey)
	claims, _ := v.(*auth.Claims)
	return claims
}

// TenantOf returns the caller's tenant id as sent in the token
func TenantOf(c *gin.Context) string {
	if claims := ClaimsOf(c); claims != nil {
		return claims.TenantID
	}
	return ""
}

// UserOf returns the caller's user id as sent in the token
func UserOf(c *gin.Context) string {
	if claims := ClaimsOf(c); claims != nil {
		return claims.UserID
	}
	return ""
}
