package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"carelink/internal/apperr"
)

// CallbackPath is where the provider redirects after sign-in.
const CallbackPath = "/callback"

// Handler serves the redirect target of the sign-in round trip. A request
// carrying the credential parameter is answered with a redirect to the same
// location without it, so the tokens never stay in the address bar or in
// history. signedIn is called after every successful capture or exchange.
func (c *Coordinator) Handler(state string, signedIn func()) http.Handler {
	if signedIn == nil {
		signedIn = func() {}
	}
	r := chi.NewRouter()
	r.Get(CallbackPath, func(w http.ResponseWriter, req *http.Request) {
		query := req.URL.Query()

		if code := query.Get("code"); code != "" {
			if state != "" && query.Get("state") != state {
				http.Error(w, "Authentication failed: oauth link is not valid", http.StatusBadRequest)
				return
			}
			if err := c.Exchange(req.Context(), code); err != nil {
				c.logger.Error("Authorization code exchange failed", "error", err)
				http.Error(w, "Authentication failed", http.StatusBadRequest)
				return
			}
			signedIn()
			http.Redirect(w, req, CallbackPath, http.StatusFound)
			return
		}

		stripped, captured, err := c.Capture(req.Context(), req.URL)
		if err != nil {
			if apperr.Is(err, apperr.CodeAuthFailed) {
				http.Error(w, "Authentication failed", http.StatusBadRequest)
				return
			}
			c.logger.Error("Unable to store credentials", "error", err)
			http.Error(w, "Unable to store credentials", http.StatusInternalServerError)
			return
		}
		if captured {
			signedIn()
			http.Redirect(w, req, stripped.RequestURI(), http.StatusFound)
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintln(w, "All good, you can close this window!")
	})
	return r
}

// Login runs the callback server on addr, hands the sign-in URL to open and
// blocks until one sign-in succeeds or ctx is done.
func (c *Coordinator) Login(ctx context.Context, addr string, open func(string) error) error {
	state := fmt.Sprintf("carelink-%s", uuid.NewString())

	done := make(chan struct{})
	var once sync.Once
	handler := c.Handler(state, func() {
		once.Do(func() { close(done) })
	})

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("unable to listen on %s: %w", addr, err)
	}
	server := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Serve(ln)
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := open(c.SignInURL(state)); err != nil {
		return fmt.Errorf("unable to open sign-in page: %w", err)
	}
	c.logger.Info("Waiting for sign-in to complete", "callback", "http://"+ln.Addr().String()+CallbackPath)

	select {
	case <-done:
		// Let the browser follow the final redirect before shutting down.
		time.Sleep(200 * time.Millisecond)
		return nil
	case err := <-serverErr:
		if errors.Is(err, http.ErrServerClosed) {
			return errors.New("callback server closed before sign-in completed")
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
