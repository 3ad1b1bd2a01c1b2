// Package meeting gates entry into the external meeting room of a single
// appointment: eligibility, link resolution, presence notifications and
// the end-of-slot countdown.
package meeting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"carelink/internal/apperr"
	"carelink/internal/clock"
	"carelink/internal/credentials"
	"carelink/internal/models"
)

// API is the part of the platform the controller talks to.
type API interface {
	LinkAPI
	Appointment(ctx context.Context, appointmentID string) (*models.Appointment, error)
	CanJoin(ctx context.Context, appointmentID string) (models.Eligibility, error)
	Join(ctx context.Context, appointmentID string) error
	Leave(ctx context.Context, appointmentID string) error
}

// Navigator sends the user to a URL.
type Navigator interface {
	Navigate(ctx context.Context, url string) error
}

// View renders the controller to the user.
type View interface {
	Status(state, message string)
	Countdown(remaining string)
	Notify(message string)
}

// Config parameterises one Controller.
type Config struct {
	AppointmentID   string
	Location        *time.Location
	HistoryURL      string
	AppointmentsURL string

	CallTimeout  time.Duration // bound on each eligibility or resolution call
	LeaveTimeout time.Duration // bound on the detached leave call
	GraceDelay   time.Duration // between "ended" and returning to history
}

func (c *Config) setDefaults() {
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 10 * time.Second
	}
	if c.LeaveTimeout <= 0 {
		c.LeaveTimeout = 5 * time.Second
	}
	if c.GraceDelay <= 0 {
		c.GraceDelay = 5 * time.Second
	}
}

// Controller drives a single appointment through the join flow. Create one
// per join with NewController, then Start and finally Close.
type Controller struct {
	cfg      Config
	api      API
	resolver *Resolver
	nav      Navigator
	view     View
	store    credentials.Store
	clock    clock.Clock
	logger   *slog.Logger

	// lifetime is cancelled on Close so in-flight calls are abandoned.
	lifetime context.Context
	cancel   context.CancelFunc

	mu       sync.Mutex
	state    State
	identity models.Identity
	started  bool
	closed   bool
	expired  bool
	ticker   clock.Ticker
	grace    clock.Timer
	stop     chan struct{}

	done      chan struct{}
	doneOnce  sync.Once
	closeOnce sync.Once
	leaving   sync.WaitGroup
}

// NewController creates a controller in INITIALIZING. Zero durations in cfg
// take their defaults.
func NewController(cfg Config, api API, resolver *Resolver, nav Navigator, view View, store credentials.Store, clk clock.Clock, logger *slog.Logger) *Controller {
	cfg.setDefaults()
	lifetime, cancel := context.WithCancel(context.Background())
	return &Controller{
		cfg:      cfg,
		api:      api,
		resolver: resolver,
		nav:      nav,
		view:     view,
		store:    store,
		clock:    clk,
		logger:   logger.With("appointmentID", cfg.AppointmentID),
		lifetime: lifetime,
		cancel:   cancel,
		state:    Initializing,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Identity returns the signed-in user, known once Start has read the session.
func (c *Controller) Identity() models.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// Done is closed once the flow has nothing left to do: the meeting cannot
// be joined, an error was shown, the user was sent back to history, or the
// controller was closed.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Start runs the flow up to ACTIVE, or until NOT_JOINABLE or ERROR. It
// returns nil for NOT_JOINABLE; the state and the view carry the outcome.
// The countdown keeps running after Start returns, until Close.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return apperr.Precondition("meeting controller already started")
	}
	c.started = true
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopCancel := context.AfterFunc(c.lifetime, cancel)
	defer stopCancel()

	if !c.transition(Initializing, "") {
		return context.Canceled
	}
	_, identity, err := credentials.Session(ctx, c.store)
	if err != nil {
		return c.fail("identity", err)
	}
	c.mu.Lock()
	c.identity = identity
	c.mu.Unlock()

	appointment, err := call(ctx, c.cfg.CallTimeout, func(ctx context.Context) (*models.Appointment, error) {
		return c.api.Appointment(ctx, c.cfg.AppointmentID)
	})
	if err != nil {
		return c.fail("appointment", err)
	}
	window, err := appointment.Window(c.cfg.Location)
	if err != nil {
		return c.fail("appointment", apperr.Wrap(err, apperr.CodeValidation, "appointment has an invalid time slot"))
	}

	if !c.transition(CheckingEligibility, "") {
		return context.Canceled
	}
	eligibility, err := call(ctx, c.cfg.CallTimeout, func(ctx context.Context) (models.Eligibility, error) {
		return c.api.CanJoin(ctx, c.cfg.AppointmentID)
	})
	if err != nil {
		return c.fail("eligibility", err)
	}
	// The server decides; the local window only shows up in the logs.
	inWindow := window.Contains(c.clock.Now())
	c.logger.Info("Eligibility checked", "canJoin", eligibility.CanJoin, "linkExists", eligibility.LinkExists,
		"windowStart", window.Start, "windowEnd", window.End, "inLocalWindow", inWindow)
	if inWindow != eligibility.CanJoin {
		c.logger.Warn("Server eligibility disagrees with the local time window; check the system clock")
	}
	if !eligibility.CanJoin {
		if c.transition(NotJoinable, NotJoinableMessage) {
			c.finish()
		}
		return nil
	}

	if !c.transition(ResolvingLink, "") {
		return context.Canceled
	}
	m, err := call(ctx, c.cfg.CallTimeout, func(ctx context.Context) (*models.Meeting, error) {
		return c.resolver.Resolve(ctx, c.cfg.AppointmentID, eligibility.LinkExists)
	})
	if err != nil {
		return c.fail("resolve", err)
	}

	if !c.transition(Redirecting, "") {
		return context.Canceled
	}
	// Presence is recorded before leaving for the room.
	if _, err := call(ctx, c.cfg.CallTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.api.Join(ctx, c.cfg.AppointmentID)
	}); err != nil {
		return c.fail("join", err)
	}
	if err := c.nav.Navigate(ctx, m.Link); err != nil {
		return c.fail("navigate", err)
	}

	if !c.transition(Active, fmt.Sprintf("Joined as %s", identity.DisplayName())) {
		return context.Canceled
	}
	c.startCountdown(window.End)
	return nil
}

// Close tears the controller down. Timers are cancelled first, then a
// single leave notification is sent in the background whatever state the
// controller was in. Safe to call more than once.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		if c.ticker != nil {
			c.ticker.Stop()
		}
		if c.grace != nil {
			c.grace.Stop()
		}
		close(c.stop)
		from := c.state
		c.state = Left
		c.mu.Unlock()

		c.cancel()
		c.logger.Info("Leaving meeting", "from", from.String())
		c.finish()

		c.leaving.Add(1)
		go c.leave()
	})
}

// Wait blocks until the leave notification started by Close has finished.
func (c *Controller) Wait() {
	c.leaving.Wait()
}

func (c *Controller) leave() {
	defer c.leaving.Done()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("Leave notification panicked", "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.LeaveTimeout)
	defer cancel()
	if err := c.api.Leave(ctx, c.cfg.AppointmentID); err != nil {
		c.logger.Warn("Leave notification failed", "error", err)
		return
	}
	c.logger.Debug("Leave notification sent")
}

// transition moves to next unless the controller is closed or the flow
// already ended, and reports whether it did.
func (c *Controller) transition(next State, message string) bool {
	c.mu.Lock()
	if c.closed || c.state.Terminal() {
		c.mu.Unlock()
		return false
	}
	prev := c.state
	c.state = next
	c.mu.Unlock()

	c.logger.Debug("Meeting state changed", "from", prev.String(), "to", next.String())
	c.view.Status(next.String(), message)
	return true
}

func (c *Controller) fail(step string, err error) error {
	code := apperr.CodeInternal
	if appErr, ok := apperr.As(err); ok {
		code = appErr.Code
	}
	c.logger.Error("Unable to open meeting", "step", step, "code", code, "error", err)

	message := fmt.Sprintf("%s: %s", ErrorMessage, c.cfg.AppointmentsURL)
	if code == apperr.CodeNoMeetingLink {
		message = NoLinkMessage + " " + message
	}
	if c.transition(Failed, message) {
		c.finish()
	}
	return err
}

func (c *Controller) finish() {
	c.doneOnce.Do(func() { close(c.done) })
}

// call runs fn under its own deadline. A deadline hit here is reported as
// TIMEOUT even when the callee did not classify it.
func call[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	v, err := fn(ctx)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		if _, ok := apperr.As(err); !ok {
			err = apperr.Timeout("care platform", err)
		}
	}
	return v, err
}
