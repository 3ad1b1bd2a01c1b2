// Package credentials holds the calendar provider token pair and the platform
// session token behind a small key/value Store.
package credentials

import (
	"context"
	"errors"
	"fmt"

	"carelink/internal/apperr"
)

// Fixed storage keys.
const (
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
	KeyAuthToken    = "authToken"
)

// Store is a flat string key/value store. Get reports ok=false for a
// missing key rather than an error. SetMany writes all values or none.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	SetMany(ctx context.Context, values map[string]string) error
	Delete(ctx context.Context, key string) error
}

// Pair is what the calendar provider needs to act for the user.
type Pair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Complete reports whether both tokens are present.
func (p Pair) Complete() bool {
	return p.AccessToken != "" && p.RefreshToken != ""
}

// ErrIncompletePair is returned by Save for a pair missing either token.
var ErrIncompletePair = errors.New("credential pair is incomplete")

// Load returns the stored pair. A missing token is a precondition failure:
// the user has to sign in again, retrying will not help.
func Load(ctx context.Context, s Store) (Pair, error) {
	access, _, err := s.Get(ctx, KeyAccessToken)
	if err != nil {
		return Pair{}, fmt.Errorf("reading access token: %w", err)
	}
	refresh, _, err := s.Get(ctx, KeyRefreshToken)
	if err != nil {
		return Pair{}, fmt.Errorf("reading refresh token: %w", err)
	}
	p := Pair{AccessToken: access, RefreshToken: refresh}
	if !p.Complete() {
		return Pair{}, apperr.Precondition("Please sign in with Google before scheduling a meeting")
	}
	return p, nil
}

// Save overwrites both tokens in one write, so a failure leaves the previous
// pair in place. An incomplete pair is rejected before anything is written.
func Save(ctx context.Context, s Store, p Pair) error {
	if !p.Complete() {
		return ErrIncompletePair
	}
	if err := s.SetMany(ctx, map[string]string{
		KeyAccessToken:  p.AccessToken,
		KeyRefreshToken: p.RefreshToken,
	}); err != nil {
		return fmt.Errorf("saving token pair: %w", err)
	}
	return nil
}

// Clear removes the token pair. The platform session token is kept.
func Clear(ctx context.Context, s Store) error {
	for _, key := range []string{KeyAccessToken, KeyRefreshToken} {
		if err := s.Delete(ctx, key); err != nil {
			return fmt.Errorf("deleting %s: %w", key, err)
		}
	}
	return nil
}
