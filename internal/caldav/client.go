// Package caldav mirrors consultation events to a CalDAV calendar and reads
// and writes them as iCalendar invites.
package caldav

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"

	"carelink/internal/models"
)

// DefaultEndpoint is iCloud's CalDAV server.
const DefaultEndpoint = "https://caldav.icloud.com/"

// userAgentTransport tags every request with the client name.
type userAgentTransport struct {
	Transport http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", "carelink/1.0")
	return t.Transport.RoundTrip(req)
}

// Client writes events into one calendar of a CalDAV account.
type Client struct {
	caldavClient *caldav.Client
	logger       *slog.Logger
	calendarPath string
}

// NewClient logs in to endpoint and looks up the calendar called
// calendarName.
func NewClient(ctx context.Context, logger *slog.Logger, endpoint, username, password, calendarName string) (*Client, error) {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	httpClient := webdav.HTTPClientWithBasicAuth(
		&http.Client{Transport: &userAgentTransport{Transport: http.DefaultTransport}},
		username, password,
	)

	caldavClient, err := caldav.NewClient(httpClient, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create caldav client: %w", err)
	}
	c := &Client{caldavClient: caldavClient, logger: logger}

	logger.Info("Finding CalDAV calendar", "endpoint", endpoint, "calendarName", calendarName)
	calendarPath, err := c.findCalendar(ctx, calendarName)
	if err != nil {
		return nil, fmt.Errorf("could not find calendar '%s': %w", calendarName, err)
	}
	c.calendarPath = calendarPath
	logger.Info("Found CalDAV calendar", "path", calendarPath)

	return c, nil
}

// PutEvent creates or replaces the event, addressed by its UID.
func (c *Client) PutEvent(ctx context.Context, ev models.Event) error {
	if ev.UID == "" {
		return fmt.Errorf("event %q has no UID", ev.Summary)
	}
	c.logger.Debug("Publishing event", "summary", ev.Summary, "uid", ev.UID)

	eventPath := path.Join(c.calendarPath, ev.UID+".ics")
	if _, err := c.caldavClient.PutCalendarObject(ctx, eventPath, NewCalendar(ev)); err != nil {
		return fmt.Errorf("failed to put event on CalDAV server: %w", err)
	}

	c.logger.Info("Published event", "summary", ev.Summary, "uid", ev.UID)
	return nil
}

// findCalendar walks principal, home set and calendar list, then picks the
// calendar called name.
func (c *Client) findCalendar(ctx context.Context, name string) (string, error) {
	principal, err := c.caldavClient.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("principal: %w", err)
	}
	homeSet, err := c.caldavClient.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return "", fmt.Errorf("calendar home set of %s: %w", principal, err)
	}
	calendars, err := c.caldavClient.FindCalendars(ctx, homeSet)
	if err != nil {
		return "", fmt.Errorf("calendars in %s: %w", homeSet, err)
	}
	return pickCalendar(calendars, name)
}

// pickCalendar prefers an exact name match and falls back to one that
// differs only in case or surrounding spaces.
func pickCalendar(calendars []caldav.Calendar, name string) (string, error) {
	var loose []string
	names := make([]string, 0, len(calendars))
	for _, cal := range calendars {
		if cal.Name == name {
			return cal.Path, nil
		}
		if strings.EqualFold(strings.TrimSpace(cal.Name), strings.TrimSpace(name)) {
			loose = append(loose, cal.Path)
		}
		names = append(names, cal.Name)
	}
	switch len(loose) {
	case 1:
		return loose[0], nil
	case 0:
		return "", fmt.Errorf("no calendar named %q, have %q", name, names)
	default:
		return "", fmt.Errorf("calendar name %q is ambiguous: %q", name, loose)
	}
}
