package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lessonhub/internal/auth"
	"lessonhub/internal/model"
	"lessonhub/internal/repo"
)

const secret = "unit-test-secret"

type staticProfiles map[string]model.Profile

func (s staticProfiles) GetProfileByID(ctx context.Context, id string) (*model.Profile, error) {
	p, ok := s[id]
	if !ok {
		return nil, repo.ErrProfileNotFound
	}
	return &p, nil
}

func newRouter(profiles staticProfiles) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/whoami", auth.RequireAuth(secret, profiles), func(c *gin.Context) {
		p, _ := auth.CurrentProfile(c)
		c.JSON(http.StatusOK, p)
	})
	r.GET("/admin", auth.RequireAuth(secret, profiles), auth.RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func signedToken(t *testing.T, sub string, method jwt.SigningMethod, key any) string {
	t.Helper()
	tok := jwt.NewWithClaims(method, jwt.RegisteredClaims{
		Subject:   sub,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	s, err := tok.SignedString(key)
	require.NoError(t, err)
	return s
}

func get(r *gin.Engine, path, authz string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRequireAuth(t *testing.T) {
	profiles := staticProfiles{
		"u1": {ID: "u1", Email: "u1@x.com", Role: model.RoleUser},
	}
	r := newRouter(profiles)

	t.Run("missing header", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, get(r, "/whoami", "").Code)
	})

	t.Run("not a bearer token", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, get(r, "/whoami", "Basic abc").Code)
	})

	t.Run("malformed token", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, get(r, "/whoami", "Bearer garbage").Code)
	})

	t.Run("wrong signing key", func(t *testing.T) {
		tok := signedToken(t, "u1", jwt.SigningMethodHS256, []byte("other-secret"))
		assert.Equal(t, http.StatusUnauthorized, get(r, "/whoami", "Bearer "+tok).Code)
	})

	t.Run("expired token", func(t *testing.T) {
		tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		})
		s, err := tok.SignedString([]byte(secret))
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, get(r, "/whoami", "Bearer "+s).Code)
	})

	t.Run("token without subject", func(t *testing.T) {
		tok := signedToken(t, "", jwt.SigningMethodHS256, []byte(secret))
		assert.Equal(t, http.StatusUnauthorized, get(r, "/whoami", "Bearer "+tok).Code)
	})

	t.Run("valid token without profile row", func(t *testing.T) {
		tok := signedToken(t, "deleted-user", jwt.SigningMethodHS256, []byte(secret))
		assert.Equal(t, http.StatusForbidden, get(r, "/whoami", "Bearer "+tok).Code)
	})

	t.Run("valid token resolves profile", func(t *testing.T) {
		tok := signedToken(t, "u1", jwt.SigningMethodHS256, []byte(secret))
		rec := get(r, "/whoami", "Bearer "+tok)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "u1@x.com")
	})
}

func TestRequireAdmin(t *testing.T) {
	profiles := staticProfiles{
		"u1":  {ID: "u1", Role: model.RoleUser},
		"adm": {ID: "adm", Role: model.RoleAdmin},
	}
	r := newRouter(profiles)

	userTok := signedToken(t, "u1", jwt.SigningMethodHS256, []byte(secret))
	assert.Equal(t, http.StatusForbidden, get(r, "/admin", "Bearer "+userTok).Code)

	adminTok := signedToken(t, "adm", jwt.SigningMethodHS256, []byte(secret))
	assert.Equal(t, http.StatusNoContent, get(r, "/admin", "Bearer "+adminTok).Code)
}
