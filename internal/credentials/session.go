package credentials

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v4"

	"carelink/internal/models"
)

type sessionClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// Session returns the platform session token and the identity it names. The
// token signature is not checked here: the identity is shown to the user and
// never used to grant access, the platform API verifies the token itself.
func Session(ctx context.Context, s Store) (string, models.Identity, error) {
	token, ok, err := s.Get(ctx, KeyAuthToken)
	if err != nil {
		return "", models.Identity{}, fmt.Errorf("reading session token: %w", err)
	}
	if !ok || token == "" {
		return "", models.Identity{}, nil
	}
	return token, IdentityFromToken(token), nil
}

// IdentityFromToken extracts display claims; an opaque token yields an empty
// identity.
func IdentityFromToken(token string) models.Identity {
	var claims sessionClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return models.Identity{}
	}
	id := models.Identity{UserID: claims.UserID, Name: claims.Name, Role: claims.Role}
	if id.UserID == "" {
		id.UserID = claims.Subject
	}
	if id.Name == "" {
		id.Name = claims.Email
	}
	return id
}
