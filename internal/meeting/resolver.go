package meeting

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"carelink/internal/apperr"
	"carelink/internal/models"
)

// LinkAPI fetches and creates the meeting of an appointment.
type LinkAPI interface {
	GetMeeting(ctx context.Context, appointmentID string) (*models.Meeting, error)
	CreateMeeting(ctx context.Context, appointmentID string) (*models.Meeting, error)
}

// Resolver obtains the meeting link of an appointment, creating the meeting
// at most once. Every resolution makes exactly one call: a fetch when a
// meeting is known to exist, a create otherwise. Concurrent resolutions of
// the same appointment share a single call, which is not cancelled when
// one of the callers gives up.
type Resolver struct {
	api     LinkAPI
	logger  *slog.Logger
	group   singleflight.Group
	timeout time.Duration

	mu      sync.Mutex
	created map[string]bool
}

// DefaultResolveTimeout bounds a shared resolution call.
const DefaultResolveTimeout = 10 * time.Second

// NewResolver creates a Resolver backed by api.
func NewResolver(api LinkAPI, logger *slog.Logger) *Resolver {
	return &Resolver{api: api, logger: logger, timeout: DefaultResolveTimeout, created: make(map[string]bool)}
}

// Resolve returns a meeting with a non-empty link. exists is the server's
// own answer to whether a meeting was already issued.
func (r *Resolver) Resolve(ctx context.Context, appointmentID string, exists bool) (*models.Meeting, error) {
	ch := r.group.DoChan(appointmentID, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		return r.resolve(ctx, appointmentID, exists)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			r.logger.Debug("Shared in-flight link resolution", "appointmentID", appointmentID)
		}
		if res.Err != nil {
			return nil, res.Err
		}
		m := *res.Val.(*models.Meeting)
		return &m, nil
	}
}

func (r *Resolver) resolve(ctx context.Context, appointmentID string, exists bool) (*models.Meeting, error) {
	r.mu.Lock()
	known := exists || r.created[appointmentID]
	r.mu.Unlock()

	var (
		m   *models.Meeting
		err error
	)
	if known {
		r.logger.Debug("Fetching existing meeting", "appointmentID", appointmentID)
		m, err = r.api.GetMeeting(ctx, appointmentID)
	} else {
		r.logger.Info("Creating meeting", "appointmentID", appointmentID)
		m, err = r.api.CreateMeeting(ctx, appointmentID)
		if err == nil {
			r.mu.Lock()
			r.created[appointmentID] = true
			r.mu.Unlock()
		}
	}
	if err != nil {
		return nil, err
	}
	if m == nil || m.Link == "" {
		return nil, apperr.NoMeetingLink(appointmentID)
	}
	return m, nil
}
