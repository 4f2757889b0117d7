package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"lessonhub/internal/dto"
	"lessonhub/internal/model"
	"lessonhub/internal/repo"
)

const profileKey = "profile"

// ProfileStore resolves an identity subject to a stored profile.
type ProfileStore interface {
	GetProfileByID(ctx context.Context, id string) (*model.Profile, error)
}

type claims struct {
	jwt.RegisteredClaims
}

// RequireAuth validates the bearer token issued by the identity provider and
// resolves it to a profile row. Missing or invalid token is 401; a valid token
// without a matching profile is 403.
func RequireAuth(secret string, profiles ProfileStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		tokenStr, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.Error{Message: "Unauthorized", Code: dto.Unauthorized})
			return
		}

		tok, err := jwt.ParseWithClaims(tokenStr, &claims{}, func(token *jwt.Token) (any, error) {
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !tok.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.Error{Message: "Unauthorized", Code: dto.Unauthorized})
			return
		}

		cl, ok := tok.Claims.(*claims)
		if !ok || cl.Subject == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.Error{Message: "Unauthorized", Code: dto.Unauthorized})
			return
		}

		profile, err := profiles.GetProfileByID(c.Request.Context(), cl.Subject)
		if err != nil {
			if errors.Is(err, repo.ErrProfileNotFound) {
				c.AbortWithStatusJSON(http.StatusForbidden, dto.Error{Message: "Profile not found", Code: dto.Forbidden})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, dto.Error{Message: dto.InternalError, Code: dto.ServiceUnavailable})
			return
		}

		c.Set(profileKey, *profile)
		c.Next()
	}
}

// RequireAdmin gates a route to admin profiles. Must run after RequireAuth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := CurrentProfile(c)
		if !ok || !p.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, dto.Error{Message: "Forbidden", Code: dto.Forbidden})
			return
		}
		c.Next()
	}
}

// CurrentProfile returns the profile resolved by RequireAuth.
func CurrentProfile(c *gin.Context) (model.Profile, bool) {
	v, ok := c.Get(profileKey)
	if !ok {
		return model.Profile{}, false
	}
	p, ok := v.(model.Profile)
	return p, ok
}
