// Package api is the client for the care platform's HTTP API: appointments,
// meeting links, presence and calendar event creation.
package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"

	"carelink/internal/apperr"
	"carelink/internal/credentials"
	"carelink/internal/models"
)

const serviceName = "care platform"

// Config locates the care platform API.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// Token returns the session token sent as a bearer credential. It is
	// called per request so a refreshed session is picked up.
	Token func(ctx context.Context) (string, error)
}

// Client talks to the care platform REST API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Client. A nil httpClient uses a plain http.Client;
// each call is bounded by cfg.Timeout, 10s when unset.
func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{cfg: cfg, httpClient: httpClient, logger: logger}
}

// StoreToken reads the session token from a credential store.
func StoreToken(s credentials.Store) func(context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		token, _, err := credentials.Session(ctx, s)
		return token, err
	}
}

// Appointment fetches one appointment.
func (c *Client) Appointment(ctx context.Context, appointmentID string) (*models.Appointment, error) {
	var res struct {
		models.Appointment
		Data *models.Appointment `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/appointments/"+url.PathEscape(appointmentID), nil, &res); err != nil {
		return nil, err
	}
	if res.Data != nil {
		return res.Data, nil
	}
	return &res.Appointment, nil
}

// CanJoin asks the platform whether the meeting may be entered now.
func (c *Client) CanJoin(ctx context.Context, appointmentID string) (models.Eligibility, error) {
	var res models.Eligibility
	err := c.do(ctx, http.MethodGet, meetingPath(appointmentID, "/can-join"), nil, &res)
	return res, err
}

// GetMeeting fetches the meeting already issued for the appointment.
func (c *Client) GetMeeting(ctx context.Context, appointmentID string) (*models.Meeting, error) {
	var res models.Meeting
	if err := c.do(ctx, http.MethodGet, meetingPath(appointmentID, ""), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// CreateMeeting issues the meeting for the appointment.
func (c *Client) CreateMeeting(ctx context.Context, appointmentID string) (*models.Meeting, error) {
	var res models.Meeting
	if err := c.do(ctx, http.MethodPost, meetingPath(appointmentID, ""), struct{}{}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Join records that the user entered the meeting.
func (c *Client) Join(ctx context.Context, appointmentID string) error {
	return c.do(ctx, http.MethodPost, meetingPath(appointmentID, "/join"), struct{}{}, nil)
}

// Leave records that the user left the meeting.
func (c *Client) Leave(ctx context.Context, appointmentID string) error {
	return c.do(ctx, http.MethodPost, meetingPath(appointmentID, "/leave"), struct{}{}, nil)
}

func meetingPath(appointmentID, suffix string) string {
	return "/api/meetings/" + url.PathEscape(appointmentID) + suffix
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return apperr.Internal("failed to marshal request", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reqBody)
	if err != nil {
		return apperr.Internal("failed to create request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.Token != nil {
		token, err := c.cfg.Token(ctx)
		if err != nil {
			return apperr.Internal("failed to read session token", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	c.logger.Debug("Calling platform API", "method", method, "path", path)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.Transport(serviceName, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperr.Transport(serviceName, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Debug("Platform API rejected request", "method", method, "path", path, "status", resp.StatusCode)
		return apperr.Remote(resp.StatusCode, errorMessage(respBody))
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return apperr.Internal("failed to parse response", fmt.Errorf("%s %s: %w", method, path, err))
	}
	return nil
}

// errorMessage pulls the human readable text out of an error body; empty
// when the server sent none.
func errorMessage(body []byte) string {
	var errResp struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil {
		return ""
	}
	if errResp.Message != "" {
		return errResp.Message
	}
	return errResp.Error
}
