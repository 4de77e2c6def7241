//go:build unit || e2e

package authtest

import (
	"testing"
	"time"

	"booking-checkout/internal/pkg/config"
	"booking-checkout/internal/pkg/jwt"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type JWTHelper struct {
	cfg config.JWTConfig
}

func NewJWTHelper(cfg config.JWTConfig) *JWTHelper {
	return &JWTHelper{cfg: cfg}
}

func (h *JWTHelper) GenerateToken(t *testing.T, buyerID uuid.UUID, email string) string {
	t.Helper()
	token, err := jwt.Sign(h.cfg.Secret, h.cfg.Issuer, jwt.Identity{BuyerID: buyerID, Email: email}, time.Hour)
	require.NoError(t, err)
	return token
}

func (h *JWTHelper) CreateExpiredToken(t *testing.T, buyerID uuid.UUID) string {
	t.Helper()
	token, err := jwt.Sign(h.cfg.Secret, h.cfg.Issuer, jwt.Identity{BuyerID: buyerID}, -time.Hour)
	require.NoError(t, err)
	return token
}
