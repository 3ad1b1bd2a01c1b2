package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"carelink/internal/config"
	"carelink/internal/models"
)

// platform is a care platform backend recording the meeting calls it gets.
type platform struct {
	canJoin bool

	mu           sync.Mutex
	calls        []string
	failEligible bool
	joined       chan struct{}
}

func newPlatform(t *testing.T, canJoin bool) *platform {
	p := &platform{canJoin: canJoin, joined: make(chan struct{}, 1)}

	r := chi.NewRouter()
	r.Get("/api/appointments/{id}", func(w http.ResponseWriter, r *http.Request) {
		p.record("appointment")
		writeJSON(w, models.Appointment{
			ID:       chi.URLParam(r, "id"),
			Date:     time.Now().UTC().Format(models.DateLayout),
			TimeSlot: models.TimeSlot{Start: "00:00", End: "23:59"},
		})
	})
	r.Get("/api/meetings/{id}/can-join", func(w http.ResponseWriter, r *http.Request) {
		p.record("can-join")
		p.mu.Lock()
		fail := p.failEligible
		p.mu.Unlock()
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeJSON(w, models.Eligibility{CanJoin: p.canJoin, LinkExists: true})
	})
	r.Get("/api/meetings/{id}", func(w http.ResponseWriter, r *http.Request) {
		p.record("get")
		writeJSON(w, models.Meeting{MeetingID: "m-1", Link: "https://meet.google.com/abc-defg-hij"})
	})
	r.Post("/api/meetings/{id}/join", func(w http.ResponseWriter, r *http.Request) {
		p.record("join")
		w.WriteHeader(http.StatusNoContent)
		select {
		case p.joined <- struct{}{}:
		default:
		}
	})
	r.Post("/api/meetings/{id}/leave", func(w http.ResponseWriter, r *http.Request) {
		p.record("leave")
		w.WriteHeader(http.StatusNoContent)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	t.Setenv(config.EnvAPIBaseURL, srv.URL)
	t.Setenv(config.EnvAppURL, "http://localhost:3000")
	t.Setenv(config.EnvCredentialStore, config.StoreFile)
	t.Setenv(config.EnvCredentialFile, filepath.Join(t.TempDir(), "creds.json"))
	t.Setenv(config.EnvTimezone, "UTC")
	t.Setenv(config.EnvLogLevel, "error")
	return p
}

func (p *platform) record(call string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
}

func (p *platform) count(call string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.calls {
		if c == call {
			n++
		}
	}
	return n
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func runJoin(ctx context.Context) error {
	app := &cli.App{
		Name:           "carelink",
		Commands:       []*cli.Command{joinCommand()},
		ExitErrHandler: func(*cli.Context, error) {},
	}
	return app.RunContext(ctx, []string{"carelink", "join", "--open=false", "apt-1"})
}

func TestJoinCommand_InterruptLeavesOnce(t *testing.T) {
	p := newPlatform(t, true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- runJoin(ctx) }()

	select {
	case <-p.joined:
	case <-time.After(5 * time.Second):
		t.Fatal("join was never recorded")
	}
	cancel()

	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("join command did not return after interrupt")
	}
	assert.Equal(t, 1, p.count("join"))
	assert.Equal(t, 1, p.count("leave"), "leave is sent before the command returns")
}

func TestJoinCommand_ErrorExitsNonZero(t *testing.T) {
	p := newPlatform(t, true)
	p.mu.Lock()
	p.failEligible = true
	p.mu.Unlock()

	err := runJoin(context.Background())
	var exit cli.ExitCoder
	require.True(t, errors.As(err, &exit))
	assert.Equal(t, 1, exit.ExitCode())
	assert.Zero(t, p.count("join"))
	assert.Equal(t, 1, p.count("leave"))
}

func TestJoinCommand_NotJoinableExitsCleanly(t *testing.T) {
	p := newPlatform(t, false)

	require.NoError(t, runJoin(context.Background()))
	assert.Zero(t, p.count("get"))
	assert.Zero(t, p.count("join"))
	assert.Equal(t, 1, p.count("leave"))
}

func TestJoinCommand_MissingAppointment(t *testing.T) {
	app := &cli.App{
		Name:           "carelink",
		Commands:       []*cli.Command{joinCommand()},
		ExitErrHandler: func(*cli.Context, error) {},
	}
	err := app.Run([]string{"carelink", "join"})
	var exit cli.ExitCoder
	require.True(t, errors.As(err, &exit))
	assert.Equal(t, 2, exit.ExitCode())
}
