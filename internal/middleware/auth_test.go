package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"stockroom/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "8f0a2d42-1234-4cde-9f00-aaaaaaaaaaaa",
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(GetJWTSecret())
	require.NoError(t, err)
	return signed
}

func newRouter(mw gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/protected", mw, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"role": c.GetString("userRole")})
	})
	return r
}

func doRequest(r *gin.Engine, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequirePermissionAllowsGrantedRole(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	r := newRouter(RequirePermission(model.PermProductsManage))

	w := doRequest(r, signToken(t, model.RoleManager))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequirePermissionRejectsMissingGrant(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	r := newRouter(RequirePermission(model.PermProductsManage))

	w := doRequest(r, signToken(t, model.RoleEmployee))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequirePermissionRejectsMissingToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	r := newRouter(RequirePermission(model.PermProductsRead))

	w := doRequest(r, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequirePermissionRejectsForgedToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	forged := signToken(t, model.RoleAdmin)

	t.Setenv("JWT_SECRET", "rotated-secret")
	r := newRouter(RequirePermission(model.PermProductsRead))

	w := doRequest(r, forged)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequirePermissionRejectsUnknownRole(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	r := newRouter(RequirePermission(model.PermProductsRead))

	w := doRequest(r, signToken(t, "superuser"))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequireRole(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	r := newRouter(RequireRole(model.RoleAdmin, model.RoleManager))

	assert.Equal(t, http.StatusOK, doRequest(r, signToken(t, model.RoleAdmin)).Code)
	assert.Equal(t, http.StatusOK, doRequest(r, signToken(t, model.RoleManager)).Code)
	assert.Equal(t, http.StatusForbidden, doRequest(r, signToken(t, model.RoleEmployee)).Code)
}

func TestRequireAuthExposesClaims(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	r := newRouter(RequireAuth())

	w := doRequest(r, signToken(t, model.RoleEmployee))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), model.RoleEmployee)
}
