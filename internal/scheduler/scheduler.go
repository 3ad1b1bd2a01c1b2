// Package scheduler turns the scheduling form into a calendar event with a
// joinable meeting link.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"carelink/internal/apperr"
	"carelink/internal/credentials"
	"carelink/internal/models"
)

// FailureMessage is shown when the provider gave no message of its own.
const FailureMessage = "Failed to create the meeting. Please try again."

// EventCreator creates the event on the provider side. Implemented by the
// platform API client and by the direct Google Calendar client.
type EventCreator interface {
	CreateEvent(ctx context.Context, pair credentials.Pair, ev models.Event) (*models.Event, error)
}

// Form holds what the user typed. It is kept intact when a submission
// fails so it can be resubmitted as is.
type Form struct {
	Summary     string    `validate:"required"`
	Description string    `validate:"required"`
	Start       time.Time `validate:"required"`
	End         time.Time `validate:"required"`
	Attendees   []string  `validate:"omitempty,dive,email"`
}

// Reset clears every field.
func (f *Form) Reset() {
	*f = Form{}
}

// Result is a created event and its meeting link.
type Result struct {
	Link  string
	Event models.Event
}

// Coordinator submits the scheduling form, one submission at a time.
type Coordinator struct {
	creator  EventCreator
	store    credentials.Store
	validate *validator.Validate
	logger   *slog.Logger

	// inflight rejects a second submission while one is outstanding.
	inflight sync.Mutex
}

// NewCoordinator creates a Coordinator that reads tokens from store.
func NewCoordinator(creator EventCreator, store credentials.Store, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		creator:  creator,
		store:    store,
		validate: validator.New(),
		logger:   logger,
	}
}

// Submit creates one event from form. Missing fields and a missing
// credential pair fail before anything is sent. The creator is called at
// most once and never retried; on success the form is cleared.
func (c *Coordinator) Submit(ctx context.Context, form *Form) (*Result, error) {
	if err := c.Validate(form); err != nil {
		return nil, err
	}
	pair, err := credentials.Load(ctx, c.store)
	if err != nil {
		return nil, err
	}

	if !c.inflight.TryLock() {
		return nil, apperr.Precondition("A meeting is already being created")
	}
	defer c.inflight.Unlock()

	ev := models.Event{
		Summary:     strings.TrimSpace(form.Summary),
		Description: strings.TrimSpace(form.Description),
		StartTime:   form.Start,
		EndTime:     form.End,
		Attendees:   form.Attendees,
	}
	c.logger.Info("Creating meeting", "summary", ev.Summary, "start", ev.StartTime, "end", ev.EndTime)

	created, err := c.creator.CreateEvent(ctx, pair, ev)
	if err != nil {
		c.logger.Error("Failed to create meeting", "summary", ev.Summary, "error", err)
		return nil, failure(err)
	}

	form.Reset()
	c.logger.Info("Meeting created", "eventID", created.ID, "link", created.MeetLink)
	return &Result{Link: created.MeetLink, Event: *created}, nil
}

// Validate checks the form without touching the network.
func (c *Coordinator) Validate(form *Form) error {
	trimmed := *form
	trimmed.Summary = strings.TrimSpace(form.Summary)
	trimmed.Description = strings.TrimSpace(form.Description)

	if err := c.validate.Struct(&trimmed); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return translateValidationErrors(validationErrs)
		}
		return apperr.Internal("failed to validate form", err)
	}
	if !form.End.After(form.Start) {
		return apperr.Validation("End time must be after start time", map[string]any{"End": "must be after Start"})
	}
	return nil
}

func translateValidationErrors(errs validator.ValidationErrors) error {
	details := make(map[string]any, len(errs))
	fields := make([]string, 0, len(errs))
	for _, err := range errs {
		fields = append(fields, err.Field())
		switch err.Tag() {
		case "required":
			details[err.Field()] = "is required"
		case "email":
			details[err.Field()] = "must be a valid email address"
		default:
			details[err.Field()] = fmt.Sprintf("failed on %s", err.Tag())
		}
	}
	return apperr.Validation(fmt.Sprintf("Please fill in: %s", strings.Join(fields, ", ")), details)
}

// failure keeps the provider's message when it sent one and replaces
// everything else with FailureMessage.
func failure(err error) *apperr.AppError {
	out := &apperr.AppError{Code: apperr.CodeInternal, Message: apperr.UserMessage(err, FailureMessage), Err: err}
	if appErr, ok := apperr.As(err); ok {
		out.Code = appErr.Code
		out.HTTPStatus = appErr.HTTPStatus
	}
	return out
}
