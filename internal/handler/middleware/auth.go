package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"booking-checkout/internal/pkg/jwt"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type TokenVerifier interface {
	Verify(token string) (*jwt.Identity, error)
}

type AuthMiddleware struct {
	verifier TokenVerifier
}

const (
	ctxUserIDKey    = "user_id"
	ctxBuyerMailKey = "buyer_email"
	ctxBuyerNameKey = "buyer_name"
)

func NewAuthMiddleware(verifier TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
	}
}

func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Access token required",
			})
			c.Abort()
			return
		}

		id, err := m.verifier.Verify(token)
		if err != nil {
			slog.Warn("Token validation failed in auth middleware", "error", err.Error())
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
			})
			c.Abort()
			return
		}

		c.Set(ctxUserIDKey, id.BuyerID)
		c.Set(ctxBuyerMailKey, id.Email)
		c.Set(ctxBuyerNameKey, id.Name)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if token, ok := strings.CutPrefix(authHeader, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

func GetUserID(c *gin.Context) (uuid.UUID, bool) {
	userID, exists := c.Get(ctxUserIDKey)
	if !exists {
		return uuid.Nil, false
	}

	id, ok := userID.(uuid.UUID)
	return id, ok
}

// GetBuyerContact returns the email and name carried by the token, if any.
func GetBuyerContact(c *gin.Context) (email, name string) {
	return c.GetString(ctxBuyerMailKey), c.GetString(ctxBuyerNameKey)
}
