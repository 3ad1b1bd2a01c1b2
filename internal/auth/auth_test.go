package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"carelink/internal/apperr"
	"carelink/internal/credentials"
	"carelink/internal/logger"
)

const pairJSON = `{"access_token":"ya29.new","refresh_token":"1//new"}`

func newCoordinator(store credentials.Store) *Coordinator {
	return NewCoordinator(store, logger.Discard(), nil, "https://api.example.org/api/google/auth")
}

func seeded(t *testing.T) *credentials.MemoryStore {
	t.Helper()
	s := credentials.NewMemoryStore()
	require.NoError(t, credentials.Save(context.Background(), s, credentials.Pair{AccessToken: "old-a", RefreshToken: "old-r"}))
	return s
}

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestDecodePair(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    credentials.Pair
		wantErr bool
	}{
		{"json", pairJSON, credentials.Pair{AccessToken: "ya29.new", RefreshToken: "1//new"}, false},
		{"camel case", `{"accessToken":"a","refreshToken":"r"}`, credentials.Pair{AccessToken: "a", RefreshToken: "r"}, false},
		{"base64url", base64.RawURLEncoding.EncodeToString([]byte(pairJSON)), credentials.Pair{AccessToken: "ya29.new", RefreshToken: "1//new"}, false},
		{"empty", "", credentials.Pair{}, true},
		{"truncated json", `{"access_token":"a"`, credentials.Pair{}, true},
		{"missing refresh", `{"access_token":"a"}`, credentials.Pair{}, true},
		{"garbage", "%%%not-base64%%%", credentials.Pair{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodePair(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedTokens)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCapture_StoresAndStrips(t *testing.T) {
	ctx := context.Background()
	store := seeded(t)
	c := newCoordinator(store)

	loc := mustParse(t, "http://localhost:3000/schedule?tab=new&tokens="+url.QueryEscape(pairJSON))
	stripped, captured, err := c.Capture(ctx, loc)
	require.NoError(t, err)
	assert.True(t, captured)
	assert.Equal(t, "http://localhost:3000/schedule?tab=new", stripped.String())
	assert.NotContains(t, stripped.String(), "ya29")

	pair, err := credentials.Load(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, "ya29.new", pair.AccessToken)
	assert.Equal(t, "1//new", pair.RefreshToken)
}

func TestCapture_AbsentKeepsPriorSession(t *testing.T) {
	ctx := context.Background()
	store := seeded(t)
	c := newCoordinator(store)

	loc := mustParse(t, "http://localhost:3000/schedule")
	got, captured, err := c.Capture(ctx, loc)
	require.NoError(t, err)
	assert.False(t, captured)
	assert.Equal(t, loc, got)

	pair, err := credentials.Load(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, "old-a", pair.AccessToken)
}

func TestCapture_MalformedLeavesStoreUntouched(t *testing.T) {
	ctx := context.Background()
	store := seeded(t)
	c := newCoordinator(store)

	_, captured, err := c.Capture(ctx, mustParse(t, "http://localhost:3000/schedule?tokens=%7Bbroken"))
	assert.False(t, captured)
	assert.True(t, apperr.Is(err, apperr.CodeAuthFailed))
	assert.Equal(t, "Authentication failed", apperr.UserMessage(err, ""))

	pair, err := credentials.Load(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, credentials.Pair{AccessToken: "old-a", RefreshToken: "old-r"}, pair)
}

type failingStore struct {
	*credentials.MemoryStore
}

func (s failingStore) SetMany(context.Context, map[string]string) error {
	return errors.New("disk full")
}

func TestCapture_FailedSaveKeepsPriorPair(t *testing.T) {
	ctx := context.Background()
	store := seeded(t)
	c := newCoordinator(failingStore{store})

	_, captured, err := c.Capture(ctx, mustParse(t, "http://localhost:3000/schedule?tokens="+url.QueryEscape(pairJSON)))
	require.Error(t, err)
	assert.False(t, captured)

	pair, err := credentials.Load(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, credentials.Pair{AccessToken: "old-a", RefreshToken: "old-r"}, pair)
}

func TestSignInURL(t *testing.T) {
	c := newCoordinator(credentials.NewMemoryStore())
	assert.Equal(t, "https://api.example.org/api/google/auth", c.SignInURL("s"))

	oauthCfg := &oauth2.Config{
		ClientID:    "client",
		RedirectURL: "http://localhost:8080/callback",
		Endpoint:    oauth2.Endpoint{AuthURL: "https://accounts.example.org/auth"},
	}
	c = NewCoordinator(credentials.NewMemoryStore(), logger.Discard(), oauthCfg, "")
	u := mustParse(t, c.SignInURL("state-1"))
	assert.Equal(t, "accounts.example.org", u.Host)
	assert.Equal(t, "state-1", u.Query().Get("state"))
	assert.Equal(t, "offline", u.Query().Get("access_type"))
}

func TestHandler_CaptureRedirectsWithoutTokens(t *testing.T) {
	store := credentials.NewMemoryStore()
	var signedIn int
	h := newCoordinator(store).Handler("", func() { signedIn++ })

	req := httptest.NewRequest(http.MethodGet, "/callback?tokens="+url.QueryEscape(pairJSON), nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "/callback", rr.Header().Get("Location"))
	assert.Equal(t, 1, signedIn)

	_, err := credentials.Load(context.Background(), store)
	assert.NoError(t, err)
}

func TestHandler_Malformed(t *testing.T) {
	h := newCoordinator(credentials.NewMemoryStore()).Handler("", nil)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/callback?tokens=nope", nil))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "Authentication failed")
}

func TestHandler_CodeExchange(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "auth-code", r.Form.Get("code"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"ya29.x","refresh_token":"1//x","token_type":"Bearer","expires_in":3600}`))
	}))
	defer tokenSrv.Close()

	store := credentials.NewMemoryStore()
	oauthCfg := &oauth2.Config{ClientID: "client", ClientSecret: "secret", Endpoint: oauth2.Endpoint{TokenURL: tokenSrv.URL}}
	c := NewCoordinator(store, logger.Discard(), oauthCfg, "")
	h := c.Handler("state-1", nil)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/callback?code=auth-code&state=wrong", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/callback?code=auth-code&state=state-1", nil))
	assert.Equal(t, http.StatusFound, rr.Code)

	pair, err := credentials.Load(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, credentials.Pair{AccessToken: "ya29.x", RefreshToken: "1//x"}, pair)
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func TestLogin_PlatformRoundTrip(t *testing.T) {
	addr := freeAddr(t)
	platform := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		target := "http://" + addr + CallbackPath + "?tokens=" + url.QueryEscape(pairJSON)
		http.Redirect(w, r, target, http.StatusFound)
	}))
	defer platform.Close()

	store := credentials.NewMemoryStore()
	c := NewCoordinator(store, logger.Discard(), nil, platform.URL+"/api/google/auth")

	open := func(signInURL string) error {
		go func() {
			if resp, err := http.Get(signInURL); err == nil {
				resp.Body.Close()
			}
		}()
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Login(ctx, addr, open))

	pair, err := credentials.Load(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, "ya29.new", pair.AccessToken)
}

func TestLogin_Cancelled(t *testing.T) {
	c := newCoordinator(credentials.NewMemoryStore())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Login(ctx, freeAddr(t), func(string) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLogout(t *testing.T) {
	store := seeded(t)
	require.NoError(t, newCoordinator(store).Logout(context.Background()))
	_, err := credentials.Load(context.Background(), store)
	assert.True(t, apperr.Is(err, apperr.CodePrecondition))
	assert.True(t, strings.Contains(err.Error(), "sign in"))
}
