// Package browser hands URLs to the user's browser and renders the meeting
// flow on a terminal.
package browser

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/pkg/browser"
)

// Opener prints every URL it navigates to and, when launch is set, asks the
// system browser to open it. A browser that cannot be started is not an
// error: the printed URL can be opened by hand.
type Opener struct {
	out    io.Writer
	launch bool
	logger *slog.Logger
	open   func(string) error
}

// NewOpener creates an Opener printing to out. With launch set it also
// opens the system browser.
func NewOpener(out io.Writer, launch bool, logger *slog.Logger) *Opener {
	browser.Stdout = io.Discard
	browser.Stderr = io.Discard
	return &Opener{out: out, launch: launch, logger: logger, open: browser.OpenURL}
}

// Navigate prints url and, when launching is enabled, opens it. A browser
// that fails to start is logged, not returned.
func (o *Opener) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fmt.Fprintf(o.out, "Opening %s\n", url)
	if !o.launch {
		return nil
	}
	if err := o.open(url); err != nil {
		o.logger.Warn("Unable to start the browser, open the link manually", "url", url, "error", err)
	}
	return nil
}

// Open is Navigate without a context, for callers that only take a func.
func (o *Opener) Open(url string) error {
	return o.Navigate(context.Background(), url)
}

// Console writes state changes, the countdown and notices as plain lines.
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsole creates a Console writing to out.
func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

// Status prints message tagged with state; an empty message prints nothing.
func (c *Console) Status(state, message string) {
	if message == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "[%s] %s\n", state, message)
}

// Countdown prints the time left.
func (c *Console) Countdown(remaining string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "Time left: %s\n", remaining)
}

// Notify prints a notice that stands out from status lines.
func (c *Console) Notify(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "*** %s ***\n", message)
}
