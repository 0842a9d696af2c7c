package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

// UIDKey is the echo context key holding the verified firebase uid.
const UIDKey = "uid"

var ErrNoProjectID = errors.New("FIREBASE_PROJECT_ID is not set")

type tokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

type AuthMiddleware struct {
	verifier tokenVerifier
}

func NewAuthMiddleware(ctx context.Context, projectID, credentialsFile string) (*AuthMiddleware, error) {
	if projectID == "" {
		return nil, ErrNoProjectID
	}
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, err
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, err
	}
	return &AuthMiddleware{verifier: client}, nil
}

func (m *AuthMiddleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authz := c.Request().Header.Get("Authorization")
		if authz == "" || !strings.HasPrefix(authz, "Bearer ") {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}
		tokenStr := strings.TrimPrefix(authz, "Bearer ")
		token, err := m.verifier.VerifyIDToken(c.Request().Context(), tokenStr)
		if err != nil {
			log.Debug().Err(err).Msg("id token rejected")
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid_token"})
		}
		c.Set(UIDKey, token.UID)
		return next(c)
	}
}

// UID returns the authenticated uid, or "" when auth is disabled.
func UID(c echo.Context) string {
	uid, _ := c.Get(UIDKey).(string)
	return uid
}
