package router

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/marketrelay/backend/internal/infrastructure/auth"
	"github.com/marketrelay/backend/internal/interfaces/http/handler"
	"github.com/marketrelay/backend/internal/interfaces/http/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(engine *gin.Engine, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestNewRouter(t *testing.T) {
	r := NewRouter(gin.New())

	assert.Equal(t, "/api/v1", r.BasePath())
	assert.Empty(t, r.registrars)
	assert.Equal(t, "/api/v2", NewRouter(gin.New(), WithAPIVersion("v2")).BasePath())
}

func TestRouterSetup(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine, WithMiddleware(func(c *gin.Context) {
		c.Header("X-Api", "1")
		c.Next()
	}))

	g := NewDomainGroup("test", "/test")
	g.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	api := r.Register(g).Setup()

	assert.Equal(t, "/api/v1", api.BasePath())
	w := serve(engine, http.MethodGet, "/api/v1/test/ping")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
	assert.Equal(t, "1", w.Header().Get("X-Api"))
}

func TestDomainGroup(t *testing.T) {
	ok := func(c *gin.Context) { c.Status(http.StatusOK) }

	t.Run("methods and middleware", func(t *testing.T) {
		engine := gin.New()
		g := NewDomainGroup("test", "/test").Use(func(c *gin.Context) {
			c.Header("X-Group", "applied")
			c.Next()
		})
		g.GET("/items", ok).POST("/items", ok).PUT("/items/:id", ok)
		g.RegisterRoutes(engine.Group("/api/v1"))

		for _, tc := range []struct{ method, path string }{
			{http.MethodGet, "/api/v1/test/items"},
			{http.MethodPost, "/api/v1/test/items"},
			{http.MethodPut, "/api/v1/test/items/42"},
		} {
			w := serve(engine, tc.method, tc.path)
			assert.Equal(t, http.StatusOK, w.Code, tc.method+" "+tc.path)
			assert.Equal(t, "applied", w.Header().Get("X-Group"))
		}
	})

	t.Run("subgroups inherit parent middleware", func(t *testing.T) {
		engine := gin.New()
		g := NewDomainGroup("outer", "/outer").Use(func(c *gin.Context) {
			c.AbortWithStatus(http.StatusTeapot)
		})
		g.Group("inner", "/inner").GET("", ok)
		g.RegisterRoutes(engine.Group("/api/v1"))

		assert.Equal(t, http.StatusTeapot, serve(engine, http.MethodGet, "/api/v1/outer/inner").Code)
	})

	t.Run("routes listing", func(t *testing.T) {
		g := NewDomainGroup("catalog", "/catalog")
		g.GET("", ok).POST("", ok)
		g.Group("items", "/items").GET("/:id", ok)

		assert.Equal(t, "catalog", g.Name())
		assert.Equal(t, "/catalog", g.Prefix())
		assert.Equal(t, []Route{
			{Method: http.MethodGet, Path: "/catalog"},
			{Method: http.MethodPost, Path: "/catalog"},
			{Method: http.MethodGet, Path: "/catalog/items/:id"},
		}, g.Routes())
	})
}

func testHandlers() Handlers {
	return Handlers{
		Relay:      handler.NewRelayHandler(nil),
		Commission: handler.NewCommissionHandler(nil),
		Settlement: handler.NewSettlementHandler(nil, nil, time.Minute),
		Channel:    handler.NewChannelHandler(nil),
	}
}

// withClaims stands in for token verification
func withClaims(scopes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		middleware.WithClaims(c, &auth.Claims{
			TenantID: uuid.NewString(),
			UserID:   uuid.NewString(),
			Scopes:   scopes,
		})
		c.Next()
	}
}

func TestDomainGroups_Routes(t *testing.T) {
	var all []Route
	for _, g := range DomainGroups(testHandlers()) {
		all = append(all, g.Routes()...)
	}

	for _, want := range []Route{
		{Method: http.MethodPost, Path: "/relays"},
		{Method: http.MethodPost, Path: "/relays/:id/reset"},
		{Method: http.MethodGet, Path: "/commissions/conversion/:conversionId"},
		{Method: http.MethodPost, Path: "/commissions/sweep"},
		{Method: http.MethodGet, Path: "/settlements/:id/statement"},
		{Method: http.MethodPost, Path: "/settlements/:id/failed"},
		{Method: http.MethodPut, Path: "/channels/accounts/:id/enabled"},
		{Method: http.MethodPost, Path: "/channels/accounts/:id/import"},
	} {
		assert.Contains(t, all, want)
	}
	assert.Len(t, all, 35)
}

func TestRegisterDomains_Permissions(t *testing.T) {
	setup := func(permissions ...string) *gin.Engine {
		engine := gin.New()
		RegisterDomains(NewRouter(engine, WithMiddleware(withClaims(permissions...))), testHandlers()).Setup()
		return engine
	}

	t.Run("read permission does not grant write", func(t *testing.T) {
		engine := setup(auth.ScopeRelaysRead)
		assert.Equal(t, http.StatusForbidden, serve(engine, http.MethodPost, "/api/v1/relays/"+uuid.NewString()+"/dispatch").Code)
		// Passes the permission check and stops at path validation.
		assert.Equal(t, http.StatusBadRequest, serve(engine, http.MethodGet, "/api/v1/relays/not-a-uuid").Code)
	})

	t.Run("resources are isolated", func(t *testing.T) {
		engine := setup(auth.ScopeRelaysRead, auth.ScopeRelaysWrite)
		assert.Equal(t, http.StatusForbidden, serve(engine, http.MethodGet, "/api/v1/settlements/"+uuid.NewString()).Code)
		assert.Equal(t, http.StatusForbidden, serve(engine, http.MethodGet, "/api/v1/channels").Code)
	})

	t.Run("sweep needs the wildcard permission", func(t *testing.T) {
		engine := setup("commissions:*")
		w := serve(engine, http.MethodPost, "/api/v1/commissions/sweep")
		require.Equal(t, http.StatusForbidden, w.Code)
	})
}
