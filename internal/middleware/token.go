package middleware

import (
	"MaskFit/internal/entity"
	jwtPkg "MaskFit/pkg/jwt"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

const (
	AccessTokenSecret = "JWT_ACCESS_TOKEN_SECRET"
	UserLocalsKey     = "user"
)

func (m *middleware) NewTokenMiddleware(ctx *fiber.Ctx) error {
	user, err := m.authenticate(ctx)
	if err != nil {
		m.log.WithFields(logrus.Fields{
			"path":      ctx.Path(),
			"client_ip": ctx.IP(),
			"error":     err.Error(),
		}).Warn("Token verification failed")
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Unauthorized, access token invalid or expired",
		})
	}

	ctx.Locals(UserLocalsKey, user)
	return ctx.Next()
}

// NewOptionalTokenMiddleware attaches the caller when a valid bearer token is
// present and lets anonymous requests through.
func (m *middleware) NewOptionalTokenMiddleware(ctx *fiber.Ctx) error {
	if ctx.Get("Authorization") == "" {
		return ctx.Next()
	}

	user, err := m.authenticate(ctx)
	if err != nil {
		m.log.WithFields(logrus.Fields{
			"path":  ctx.Path(),
			"error": err.Error(),
		}).Debug("Ignoring invalid optional token")
		return ctx.Next()
	}

	ctx.Locals(UserLocalsKey, user)
	return ctx.Next()
}

func (m *middleware) authenticate(ctx *fiber.Ctx) (entity.UserLoginData, error) {
	userToken, err := jwtPkg.VerifyTokenHeader(ctx, AccessTokenSecret)
	if err != nil {
		return entity.UserLoginData{}, err
	}

	claims, ok := userToken.Claims.(jwt.MapClaims)
	if !ok {
		return entity.UserLoginData{}, jwt.ErrTokenInvalidClaims
	}

	id, _ := claims["id"].(string)
	if id == "" {
		return entity.UserLoginData{}, jwt.ErrTokenRequiredClaimMissing
	}
	email, _ := claims["email"].(string)
	username, _ := claims["username"].(string)

	return entity.UserLoginData{
		ID:       id,
		Email:    email,
		Username: username,
	}, nil
}
