package caldav

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-webdav/caldav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carelink/internal/logger"
	"carelink/internal/models"
)

func sampleEvent() models.Event {
	start := time.Date(2026, 10, 20, 14, 0, 0, 0, time.UTC)
	return models.Event{
		UID:         "ev-1@carelink",
		Summary:     "Speech therapy",
		Description: "Bring the exercise sheet, please; thanks",
		StartTime:   start,
		EndTime:     start.Add(45 * time.Minute),
		MeetLink:    "https://meet.google.com/abc-defg-hij",
		Organizer:   "therapist@example.org",
		Attendees:   []string{"parent@example.org", "child@example.org"},
	}
}

func TestInviteRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteInvite(&buf, sampleEvent()))
	assert.Contains(t, buf.String(), "BEGIN:VEVENT")
	assert.Contains(t, buf.String(), "PRODID:-//carelink//EN")

	events, err := ReadInvites(&buf, time.UTC)
	require.NoError(t, err)
	require.Len(t, events, 1)

	got := events[0]
	want := sampleEvent()
	assert.Equal(t, want.UID, got.UID)
	assert.Equal(t, want.Summary, got.Summary)
	assert.Equal(t, want.Description, got.Description)
	assert.True(t, want.StartTime.Equal(got.StartTime))
	assert.True(t, want.EndTime.Equal(got.EndTime))
	assert.Equal(t, want.MeetLink, got.MeetLink)
	assert.Equal(t, want.Organizer, got.Organizer)
	assert.Equal(t, want.Attendees, got.Attendees)
}

func TestInviteFile_GeneratesUID(t *testing.T) {
	name := filepath.Join(t.TempDir(), "invite.ics")
	ev := sampleEvent()
	ev.UID = ""
	require.NoError(t, WriteInviteFile(name, ev))

	events, err := ReadInviteFile(name, time.UTC)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, strings.HasSuffix(events[0].UID, "@carelink"))
}

func TestReadInvites_Invalid(t *testing.T) {
	_, err := ReadInvites(strings.NewReader("not a calendar"), time.UTC)
	assert.Error(t, err)

	_, err = ReadInviteFile(filepath.Join(t.TempDir(), "missing.ics"), time.UTC)
	assert.Error(t, err)
}

func TestPutEvent(t *testing.T) {
	var (
		mu     sync.Mutex
		method string
		path   string
		body   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		method, path, body = r.Method, r.URL.Path, string(data)
		mu.Unlock()
		w.Header().Set("ETag", `"etag-1"`)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	cc, err := caldav.NewClient(srv.Client(), srv.URL+"/")
	require.NoError(t, err)
	c := &Client{caldavClient: cc, logger: logger.Discard(), calendarPath: "/123/calendars/care/"}

	require.NoError(t, c.PutEvent(context.Background(), sampleEvent()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/123/calendars/care/ev-1@carelink.ics", path)
	assert.Contains(t, body, "SUMMARY:Speech therapy")
}

func TestPutEvent_RequiresUID(t *testing.T) {
	c := &Client{logger: logger.Discard(), calendarPath: "/cal/"}
	ev := sampleEvent()
	ev.UID = ""
	assert.Error(t, c.PutEvent(context.Background(), ev))
}

func TestPickCalendar(t *testing.T) {
	calendars := []caldav.Calendar{
		{Path: "/1/calendars/home/", Name: "Home"},
		{Path: "/1/calendars/care/", Name: "Care Sessions"},
		{Path: "/1/calendars/work/", Name: "work"},
		{Path: "/1/calendars/work2/", Name: "Work "},
	}
	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{"Care Sessions", "/1/calendars/care/", false},
		{" care sessions", "/1/calendars/care/", false},
		{"work", "/1/calendars/work/", false},
		{"WORK", "", true},
		{"Holidays", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := pickCalendar(calendars, tt.name)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
