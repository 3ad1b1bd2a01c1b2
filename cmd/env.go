package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"

	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"

	"carelink/internal/api"
	"carelink/internal/auth"
	"carelink/internal/browser"
	"carelink/internal/config"
	"carelink/internal/credentials"
	"carelink/internal/google"
	"carelink/internal/logger"
	"carelink/internal/models"
	"carelink/internal/scheduler"
)

// env is what every command needs: configuration, a logger and the
// credential store.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	store  credentials.Store
	close  func() error
}

func setup(c *cli.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.New(os.Stderr, cfg.LogLevel)

	store, closeStore, err := openStore(c.Context, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}
	log.Debug("Opened credential store", "kind", cfg.CredentialStore)
	return &env{cfg: cfg, logger: log, store: store, close: closeStore}, nil
}

// Close releases the credential store.
func (e *env) Close() {
	if err := e.close(); err != nil {
		e.logger.Warn("Failed to close credential store", "error", err)
	}
}

func openStore(ctx context.Context, cfg *config.Config) (credentials.Store, func() error, error) {
	switch cfg.CredentialStore {
	case config.StoreSQLite:
		db, err := sql.Open(credentials.SQLiteDriverName, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		store, err := credentials.NewSQLiteStore(db)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return store, db.Close, nil
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
		return credentials.NewRedisStore(client, cfg.RedisPrefix), client.Close, nil
	default:
		return credentials.NewFileStore(cfg.CredentialFile), func() error { return nil }, nil
	}
}

func (e *env) opener(launch bool) *browser.Opener {
	return browser.NewOpener(os.Stdout, launch, e.logger)
}

func (e *env) apiClient() *api.Client {
	return api.NewClient(api.Config{
		BaseURL: e.cfg.APIBaseURL,
		Timeout: e.cfg.RequestTimeout,
		Token:   api.StoreToken(e.store),
	}, &http.Client{}, e.logger)
}

func (e *env) callbackURL() string {
	return "http://" + e.cfg.CallbackAddr + auth.CallbackPath
}

// authCoordinator talks to Google directly when a client id is configured
// and goes through the platform's sign-in endpoint otherwise.
func (e *env) authCoordinator() (*auth.Coordinator, error) {
	if e.cfg.GoogleClientID == "" {
		return auth.NewCoordinator(e.store, e.logger, nil, e.apiClient().SignInURL()), nil
	}
	oauthCfg, err := google.GetOAuthConfig(e.cfg.GoogleClientID, e.cfg.GoogleClientSecret, e.callbackURL())
	if err != nil {
		return nil, fmt.Errorf("failed to get google oauth config: %w", err)
	}
	return auth.NewCoordinator(e.store, e.logger, oauthCfg, ""), nil
}

func (e *env) eventCreator() (scheduler.EventCreator, error) {
	if e.cfg.SchedulerBackend != config.BackendGoogle {
		return e.apiClient(), nil
	}
	oauthCfg, err := google.GetOAuthConfig(e.cfg.GoogleClientID, e.cfg.GoogleClientSecret, e.callbackURL())
	if err != nil {
		return nil, fmt.Errorf("failed to get google oauth config: %w", err)
	}
	return google.NewClient(e.logger, oauthCfg, e.cfg.GoogleCalendarID), nil
}

func parseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("not a URL: %v", err), 2)
	}
	return u, nil
}

// dryRunUploader stands in for the CalDAV client when nothing may be sent.
type dryRunUploader struct{}

func (dryRunUploader) PutEvent(context.Context, models.Event) error {
	return errors.New("dry run: nothing is uploaded")
}
