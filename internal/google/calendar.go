package google

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"carelink/internal/apperr"
	"carelink/internal/credentials"
	"carelink/internal/models"
)

const (
	credentialsFile = "credentials.json"

	conferenceSolutionMeet = "hangoutsMeet"
)

// CalendarClient creates consultation events with a Google Meet conference
// directly on the user's calendar.
type CalendarClient struct {
	config     *oauth2.Config
	calendarID string
	logger     *slog.Logger

	// endpoint overrides the API base path, used by tests.
	endpoint string
}

// NewClient creates a CalendarClient for calendarID.
func NewClient(logger *slog.Logger, config *oauth2.Config, calendarID string) *CalendarClient {
	if calendarID == "" {
		calendarID = "primary"
	}
	return &CalendarClient{config: config, calendarID: calendarID, logger: logger}
}

// CreateEvent inserts the event and asks Google to attach a Meet conference.
// The returned event carries the provider id and the joinable link.
func (c *CalendarClient) CreateEvent(ctx context.Context, pair credentials.Pair, ev models.Event) (*models.Event, error) {
	service, err := c.service(ctx, pair)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Creating Google Calendar event", "calendarID", c.calendarID, "summary", ev.Summary, "start", ev.StartTime)
	created, err := service.Events.Insert(c.calendarID, newGoogleEvent(ev)).
		ConferenceDataVersion(1).
		Context(ctx).
		Do()
	if err != nil {
		return nil, asAppError(err)
	}

	res := ev
	res.ID = created.Id
	res.UID = created.ICalUID
	res.MeetLink = meetLink(created)
	if res.MeetLink == "" {
		return nil, apperr.New(apperr.CodeNoMeetingLink, "The calendar event was created without a meeting link")
	}
	c.logger.Info("Created Google Calendar event", "eventID", res.ID, "summary", res.Summary)
	return &res, nil
}

func (c *CalendarClient) service(ctx context.Context, pair credentials.Pair) (*calendar.Service, error) {
	token := &oauth2.Token{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
	}
	opts := []option.ClientOption{option.WithHTTPClient(c.config.Client(ctx, token))}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}
	service, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return service, nil
}

func newGoogleEvent(ev models.Event) *calendar.Event {
	gev := &calendar.Event{
		Summary:     ev.Summary,
		Description: ev.Description,
		Start:       &calendar.EventDateTime{DateTime: ev.StartTime.Format(time.RFC3339)},
		End:         &calendar.EventDateTime{DateTime: ev.EndTime.Format(time.RFC3339)},
		ConferenceData: &calendar.ConferenceData{
			CreateRequest: &calendar.CreateConferenceRequest{
				RequestId: uuid.New().String(),
				ConferenceSolutionKey: &calendar.ConferenceSolutionKey{
					Type: conferenceSolutionMeet,
				},
			},
		},
		Reminders: &calendar.EventReminders{UseDefault: true},
	}
	for _, email := range ev.Attendees {
		gev.Attendees = append(gev.Attendees, &calendar.EventAttendee{Email: email})
	}
	return gev
}

// meetLink prefers the legacy hangoutLink and falls back to the video entry
// point of the conference.
func meetLink(ev *calendar.Event) string {
	if ev.HangoutLink != "" {
		return ev.HangoutLink
	}
	if ev.ConferenceData == nil {
		return ""
	}
	for _, ep := range ev.ConferenceData.EntryPoints {
		if ep.EntryPointType == "video" && ep.Uri != "" {
			return ep.Uri
		}
	}
	return ""
}

// asAppError keeps Google's own message so it can be shown verbatim.
func asAppError(err error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return apperr.Remote(gErr.Code, gErr.Message)
	}
	return apperr.Transport("Google Calendar", err)
}

// GetOAuthConfig builds the OAuth2 config for the calendar scope.
// It prioritizes environment variables over a local credentials.json file.
func GetOAuthConfig(clientID, clientSecret, redirectURL string) (*oauth2.Config, error) {
	if clientID != "" && clientSecret != "" {
		return &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{calendar.CalendarEventsScope},
			Endpoint:     google.Endpoint,
		}, nil
	}

	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("credentials.json not found. Please provide GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET env vars or place credentials.json in the working directory")
		}
		return nil, fmt.Errorf("unable to read client secret file: %w", err)
	}

	config, err := google.ConfigFromJSON(b, calendar.CalendarEventsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}
	config.RedirectURL = redirectURL
	return config, nil
}
