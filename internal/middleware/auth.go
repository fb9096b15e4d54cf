package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"templeadmin/internal/authz"
	"templeadmin/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const actorKey = "actor"

var (
	ErrMissingToken = errors.New("authorization is missing")
	ErrInvalidToken = errors.New("invalid token")
)

// ActorResolver loads the role and grants behind an authenticated user id.
type ActorResolver interface {
	ResolveActor(ctx context.Context, userID uuid.UUID) (authz.Actor, error)
}

// ParseToken validates an HMAC-signed JWT and returns its subject as a user id.
func ParseToken(tokenString string, secret []byte) (uuid.UUID, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return uuid.Nil, ErrInvalidToken
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return uuid.Nil, ErrInvalidToken
	}
	userID, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	return userID, nil
}

// tokenFromRequest reads the access_token cookie, falling back to a Bearer header.
func tokenFromRequest(c *gin.Context) (string, error) {
	if tokenString, err := c.Cookie("access_token"); err == nil && tokenString != "" {
		return tokenString, nil
	}
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", ErrMissingToken
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", ErrInvalidToken
	}
	return parts[1], nil
}

// Authenticate validates the JWT and stores the resolved authz.Actor on the
// context. Permission checks happen in the services, not here.
func Authenticate(secret []byte, resolver ActorResolver, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := tokenFromRequest(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, err.Error()))
			return
		}

		userID, err := ParseToken(tokenString, secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, err.Error()))
			return
		}

		actor, err := resolver.ResolveActor(c.Request.Context(), userID)
		if err != nil {
			code, resp := response.FromError(err)
			if code == http.StatusNotFound {
				// deleted users keep valid tokens until expiry
				code, resp = http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "unknown user")
			} else {
				logger.Error("failed to resolve actor", zap.String("user_id", userID.String()), zap.Error(err))
			}
			c.AbortWithStatusJSON(code, resp)
			return
		}

		SetActor(c, actor)
		c.Next()
	}
}

// SetActor stores actor for downstream handlers.
func SetActor(c *gin.Context, actor authz.Actor) {
	c.Set(actorKey, actor)
	c.Set("userID", actor.ID())
}

// ActorFrom returns the actor stored by Authenticate.
func ActorFrom(c *gin.Context) (authz.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return authz.Actor{}, false
	}
	actor, ok := v.(authz.Actor)
	return actor, ok
}

// OptionalAuthenticate attaches the actor when a valid token is present and
// otherwise lets the request through anonymously.
func OptionalAuthenticate(secret []byte, resolver ActorResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := tokenFromRequest(c)
		if err != nil {
			c.Next()
			return
		}
		userID, err := ParseToken(tokenString, secret)
		if err != nil {
			c.Next()
			return
		}
		if actor, err := resolver.ResolveActor(c.Request.Context(), userID); err == nil {
			SetActor(c, actor)
		}
		c.Next()
	}
}
