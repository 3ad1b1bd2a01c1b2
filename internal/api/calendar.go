package api

import (
	"context"
	"net/http"
	"time"

	"carelink/internal/apperr"
	"carelink/internal/credentials"
	"carelink/internal/models"
)

type createEventRequest struct {
	Summary      string `json:"summary"`
	Description  string `json:"description"`
	StartTime    string `json:"startTime"`
	EndTime      string `json:"endTime"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type createEventResponse struct {
	EventID  string `json:"eventId"`
	MeetLink string `json:"meetLink"`
	Link     string `json:"link"`
}

// CreateEvent asks the platform to create the calendar event on the user's
// behalf with the given provider tokens.
func (c *Client) CreateEvent(ctx context.Context, pair credentials.Pair, ev models.Event) (*models.Event, error) {
	req := createEventRequest{
		Summary:      ev.Summary,
		Description:  ev.Description,
		StartTime:    ev.StartTime.Format(time.RFC3339),
		EndTime:      ev.EndTime.Format(time.RFC3339),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}
	var res createEventResponse
	if err := c.do(ctx, http.MethodPost, "/api/google/create-event", req, &res); err != nil {
		return nil, err
	}

	created := ev
	created.ID = res.EventID
	created.MeetLink = res.MeetLink
	if created.MeetLink == "" {
		created.MeetLink = res.Link
	}
	if created.MeetLink == "" {
		return nil, apperr.New(apperr.CodeNoMeetingLink, "The calendar event was created without a meeting link")
	}
	return &created, nil
}

// SignInURL is the platform endpoint that starts the Google authorization
// round trip and redirects back with the encoded token pair.
func (c *Client) SignInURL() string {
	return c.cfg.BaseURL + "/api/google/auth"
}
