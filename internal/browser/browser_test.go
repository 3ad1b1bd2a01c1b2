package browser

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carelink/internal/logger"
)

func TestOpener_Navigate(t *testing.T) {
	var out bytes.Buffer
	o := NewOpener(&out, true, logger.Discard())
	var opened []string
	o.open = func(u string) error {
		opened = append(opened, u)
		return nil
	}

	require.NoError(t, o.Navigate(context.Background(), "https://meet.google.com/abc"))
	assert.Equal(t, []string{"https://meet.google.com/abc"}, opened)
	assert.Contains(t, out.String(), "Opening https://meet.google.com/abc")
}

func TestOpener_BrowserFailureIsNotAnError(t *testing.T) {
	var out bytes.Buffer
	o := NewOpener(&out, true, logger.Discard())
	o.open = func(string) error { return errors.New("no display") }

	assert.NoError(t, o.Open("https://meet.google.com/abc"))
	assert.Contains(t, out.String(), "https://meet.google.com/abc")
}

func TestOpener_PrintOnly(t *testing.T) {
	var out bytes.Buffer
	o := NewOpener(&out, false, logger.Discard())
	o.open = func(string) error {
		t.Fatal("browser must not be started")
		return nil
	}

	require.NoError(t, o.Navigate(context.Background(), "http://localhost:3000/appointment-history"))
	assert.Equal(t, "Opening http://localhost:3000/appointment-history\n", out.String())
}

func TestOpener_CancelledContext(t *testing.T) {
	var out bytes.Buffer
	o := NewOpener(&out, false, logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, o.Navigate(ctx, "https://meet.google.com/abc"), context.Canceled)
	assert.Empty(t, out.String())
}

func TestConsole(t *testing.T) {
	var out bytes.Buffer
	c := NewConsole(&out)

	c.Status("CHECKING_ELIGIBILITY", "")
	c.Status("ACTIVE", "Joined as Asha")
	c.Countdown("35:00")
	c.Notify("Meeting ended")

	assert.Equal(t, "[ACTIVE] Joined as Asha\nTime left: 35:00\n*** Meeting ended ***\n", out.String())
}
