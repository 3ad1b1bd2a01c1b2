// Package auth captures the calendar provider's credential pair after the
// sign-in redirect and keeps it in the credential store.
package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"

	"carelink/internal/apperr"
	"carelink/internal/credentials"
)

// TokensParam is the query parameter the provider redirect carries the
// encoded pair in.
const TokensParam = "tokens"

// ErrMalformedTokens is wrapped by every DecodePair failure.
var ErrMalformedTokens = errors.New("malformed credential parameter")

// Coordinator runs the sign-in round trip and stores the resulting pair.
type Coordinator struct {
	store  credentials.Store
	logger *slog.Logger

	// oauth is set when carelink talks to Google directly; otherwise the
	// platform's sign-in endpoint performs the exchange.
	oauth         *oauth2.Config
	platformLogin string
}

// NewCoordinator creates a Coordinator. With a nil oauth config sign-in
// goes through platformLogin.
func NewCoordinator(store credentials.Store, logger *slog.Logger, oauth *oauth2.Config, platformLogin string) *Coordinator {
	return &Coordinator{store: store, logger: logger, oauth: oauth, platformLogin: platformLogin}
}

// SignInURL is where the whole page (or browser) is sent to start the
// round trip. It has no side effects.
func (c *Coordinator) SignInURL(state string) string {
	if c.oauth != nil {
		return c.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	}
	return c.platformLogin
}

// Capture looks for the provider's credential parameter in location. When
// absent it returns location unchanged and captured=false; previously stored
// tokens stay in effect. When present and valid both tokens are saved and the
// returned location no longer carries the parameter. A parameter that cannot
// be decoded yields AUTHENTICATION_FAILED and the store is left untouched.
func (c *Coordinator) Capture(ctx context.Context, location *url.URL) (*url.URL, bool, error) {
	query := location.Query()
	if !query.Has(TokensParam) {
		return location, false, nil
	}

	pair, err := DecodePair(query.Get(TokensParam))
	if err != nil {
		c.logger.Warn("Rejected credential parameter", "error", err)
		return location, false, apperr.AuthFailed(err)
	}
	if err := credentials.Save(ctx, c.store, pair); err != nil {
		return location, false, fmt.Errorf("failed to save credentials: %w", err)
	}

	c.logger.Info("Captured calendar credentials")
	return stripParam(location, TokensParam), true, nil
}

// Exchange trades an authorization code for a token pair and saves it. Used
// when carelink is itself the OAuth client.
func (c *Coordinator) Exchange(ctx context.Context, code string) error {
	if c.oauth == nil {
		return apperr.Precondition("Google OAuth client is not configured")
	}
	token, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return apperr.AuthFailed(err)
	}
	pair := credentials.Pair{AccessToken: token.AccessToken, RefreshToken: token.RefreshToken}
	if !pair.Complete() {
		return apperr.AuthFailed(errors.New("provider returned no refresh token"))
	}
	if err := credentials.Save(ctx, c.store, pair); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	c.logger.Info("Exchanged authorization code for calendar credentials")
	return nil
}

// Logout forgets the stored pair.
func (c *Coordinator) Logout(ctx context.Context) error {
	return credentials.Clear(ctx, c.store)
}

// DecodePair accepts the pair as a JSON object, either as is (the query
// layer has already undone the URL encoding) or base64url encoded.
func DecodePair(raw string) (credentials.Pair, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return credentials.Pair{}, ErrMalformedTokens
	}

	data := []byte(raw)
	if !strings.HasPrefix(raw, "{") {
		decoded, err := decodeBase64(raw)
		if err != nil {
			return credentials.Pair{}, fmt.Errorf("%w: %v", ErrMalformedTokens, err)
		}
		data = decoded
	}

	var pair struct {
		AccessToken       string `json:"access_token"`
		RefreshToken      string `json:"refresh_token"`
		AccessTokenCamel  string `json:"accessToken"`
		RefreshTokenCamel string `json:"refreshToken"`
	}
	if err := json.Unmarshal(data, &pair); err != nil {
		return credentials.Pair{}, fmt.Errorf("%w: %v", ErrMalformedTokens, err)
	}
	p := credentials.Pair{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}
	if p.AccessToken == "" {
		p.AccessToken = pair.AccessTokenCamel
	}
	if p.RefreshToken == "" {
		p.RefreshToken = pair.RefreshTokenCamel
	}
	if !p.Complete() {
		return credentials.Pair{}, fmt.Errorf("%w: access and refresh token are both required", ErrMalformedTokens)
	}
	return p, nil
}

func decodeBase64(s string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{base64.RawURLEncoding, base64.URLEncoding, base64.StdEncoding} {
		if b, err := enc.DecodeString(s); err == nil {
			return b, nil
		}
	}
	return nil, errors.New("not valid JSON or base64")
}

func stripParam(u *url.URL, name string) *url.URL {
	stripped := *u
	query := stripped.Query()
	query.Del(name)
	stripped.RawQuery = query.Encode()
	return &stripped
}
