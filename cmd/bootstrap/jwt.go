package bootstrap

import (
	"booking-checkout/internal/handler/middleware"
	"booking-checkout/internal/pkg/config"
	"booking-checkout/internal/pkg/jwt"

	"go.uber.org/fx"
)

var JWTModule = fx.Module("jwt",
	fx.Provide(
		fx.Annotate(
			NewJWTVerifier,
			fx.As(new(middleware.TokenVerifier)),
		),
	),
)

func NewJWTVerifier(cfg config.Config) *jwt.Verifier {
	if cfg.JWT.Secret == "" {
		panic("JWT_SECRET must not be empty")
	}
	return jwt.NewVerifier(cfg.JWT.Secret, cfg.JWT.Issuer)
}
