package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/adelabdelgawad/meal-request-backend/internal/domain"
)

const errUnauthorized = "Unauthorized"

// Validator is the subset of session.Manager the Auth middleware needs:
// revocation- and cache-aware access-token verification.
type Validator interface {
	Validate(ctx context.Context, accessTok string) (domain.Claims, error)
}

// Auth validates a Bearer access token and sets "claims"/"userID" in the
// gin context. When jwksURL is non-empty, every token is verified as
// RS256 against that JWKS endpoint instead — the federated-identity path
// an optional JWKS-based RS256 path alongside the Token Authority's own HMAC tokens.
// When empty, every token goes through validator, which is the Session
// Manager's revocation-aware HMAC path.
func Auth(validator Validator, jwksURL string) gin.HandlerFunc {
	var cache *jwk.Cache
	if jwksURL != "" {
		c := jwk.NewCache(context.Background())
		if err := c.Register(jwksURL, jwk.WithMinRefreshInterval(15*time.Minute)); err != nil {
			panic("jwk cache register: " + err.Error())
		}
		cache = c
	}

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errUnauthorized})
			return
		}
		rawToken := strings.TrimPrefix(header, "Bearer ")

		if cache != nil {
			keySet, err := cache.Get(c.Request.Context(), jwksURL)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errUnauthorized})
				return
			}
			tok, err := jwt.Parse([]byte(rawToken), jwt.WithKeySet(keySet), jwt.WithValidate(true))
			if err != nil || tok.Subject() == "" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errUnauthorized})
				return
			}
			c.Set("claims", domain.Claims{Subject: tok.Subject(), UserID: tok.Subject(), Type: domain.TokenTypeAccess})
			c.Set("userID", tok.Subject())
			c.Next()
			return
		}

		claims, err := validator.Validate(c.Request.Context(), rawToken)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errUnauthorized})
			return
		}
		c.Set("claims", claims)
		c.Set("userID", claims.UserID)
		c.Next()
	}
}
