package middleware

import (
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"

	"shop-service/internal/auth"
	"shop-service/pkg/ctxmanage"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(t *testing.T) (*gin.Engine, *auth.Keys) {
	gin.SetMode(gin.TestMode)
	pk, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	keys, err := auth.NewKeys(pk, &pk.PublicKey)
	require.NoError(t, err)
	m, err := NewMid(keys)
	require.NoError(t, err)

	ok := func(c *gin.Context) {
		p := auth.PrincipalFromContext(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"role": p.Kind.String(), "trace": ctxmanage.GetTraceIdOfRequest(c)})
	}

	r := gin.New()
	r.Use(Logger())
	r.GET("/open", m.OptionalAuthentication(), ok)
	protected := r.Group("/", m.Authentication())
	protected.GET("/orders", m.Authorize(ok, auth.CapPlaceOrder))
	protected.GET("/catalog", m.Authorize(ok, auth.CapManageCatalog))
	return r, keys
}

func do(r http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthenticationAndAuthorize(t *testing.T) {
	r, keys := setupRouter(t)
	buyer, err := keys.GenerateToken(1, auth.RoleBuyer)
	require.NoError(t, err)
	seller, err := keys.GenerateToken(2, auth.RoleSeller)
	require.NoError(t, err)

	tests := []struct {
		name   string
		path   string
		token  string
		status int
	}{
		{"no token", "/orders", "", http.StatusUnauthorized},
		{"garbage token", "/orders", "abc.def.ghi", http.StatusUnauthorized},
		{"buyer places order", "/orders", buyer, http.StatusOK},
		{"buyer cannot manage catalog", "/catalog", buyer, http.StatusForbidden},
		{"seller manages catalog", "/catalog", seller, http.StatusOK},
		{"anonymous open route", "/open", "", http.StatusOK},
		{"bad token on open route", "/open", "abc", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, tt.path, tt.token)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestOptionalAuthenticationAttachesPrincipal(t *testing.T) {
	r, keys := setupRouter(t)
	token, err := keys.GenerateToken(5, auth.RoleSeller)
	require.NoError(t, err)

	w := do(r, "/open", token)
	assert.Contains(t, w.Body.String(), `"role":"seller"`)
	assert.NotContains(t, w.Body.String(), `"trace":"Unknown"`)

	w = do(r, "/open", "")
	assert.Contains(t, w.Body.String(), `"role":"anonymous"`)
}

func TestNewMid_NilKeys(t *testing.T) {
	_, err := NewMid(nil)
	assert.Error(t, err)
}
