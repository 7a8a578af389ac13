package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/marketrelay/backend/internal/infrastructure/logger"
	"github.com/marketrelay/backend/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// RequireScope passes callers holding at least one of scopes
func RequireScope(scopes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims := ClaimsOf(c); claims != nil && claims.AllowsAny(scopes...) {
			c.Next()
			return
		}
		forbid(c, scopes)
	}
}

// RequireScopes passes callers holding every scope
func RequireScopes(scopes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims := ClaimsOf(c); claims != nil && claims.AllowsAll(scopes...) {
			c.Next()
			return
		}
		forbid(c, scopes)
	}
}

// RequireResource maps the method to "<resource>:read" for GET, HEAD and
// OPTIONS and "<resource>:write" otherwise
func RequireResource(resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		scope := resource + ":" + action(c.Request.Method)
		if claims := ClaimsOf(c); claims != nil && claims.Allows(scope) {
			c.Next()
			return
		}
		forbid(c, []string{scope})
	}
}

// Can reports whether the caller holds scope, for handlers that shape a
// response by permission instead of refusing it
func Can(c *gin.Context, scope string) bool {
	claims := ClaimsOf(c)
	return claims != nil && claims.Allows(scope)
}

func action(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return "read"
	}
	return "write"
}

func forbid(c *gin.Context, required []string) {
	var held []string
	if claims := ClaimsOf(c); claims != nil {
		held = claims.Scopes
	}
	logger.L(c.Request.Context()).Warn("Permission denied",
		zap.Strings("required", required),
		zap.Strings("held", held),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
	)
	c.AbortWithStatusJSON(http.StatusForbidden,
		dto.NewErrorResponseWithRequestID(dto.ErrCodeForbidden, "Insufficient permissions", GetRequestID(c)))
}
