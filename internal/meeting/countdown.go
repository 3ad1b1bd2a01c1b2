package meeting

import (
	"fmt"
	"time"

	"carelink/internal/clock"
)

// FormatRemaining renders d as mm:ss, rounding partial seconds up so the
// display reaches 00:00 only at the end instant. Minutes are not capped.
func FormatRemaining(d time.Duration) string {
	if d <= 0 {
		return "00:00"
	}
	secs := int64((d + time.Second - 1) / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

// startCountdown shows the time left until end and ticks every second.
// The countdown is advisory; the meeting room enforces its own end.
func (c *Controller) startCountdown(end time.Time) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	remaining := end.Sub(c.clock.Now())
	if remaining <= 0 {
		c.mu.Unlock()
		c.expire()
		return
	}
	ticker := c.clock.NewTicker(time.Second)
	c.ticker = ticker
	c.mu.Unlock()

	c.view.Countdown(FormatRemaining(remaining))
	go c.runCountdown(ticker, end)
}

func (c *Controller) runCountdown(ticker clock.Ticker, end time.Time) {
	for {
		select {
		case <-c.stop:
			return
		case now := <-ticker.C():
			remaining := end.Sub(now)
			if remaining <= 0 {
				c.expire()
				return
			}
			c.view.Countdown(FormatRemaining(remaining))
		}
	}
}

// expire runs once: the ticker stops, the display switches to ended, the
// user is told and the return to history is scheduled after the grace
// delay.
func (c *Controller) expire() {
	c.mu.Lock()
	if c.expired || c.closed {
		c.mu.Unlock()
		return
	}
	c.expired = true
	if c.ticker != nil {
		c.ticker.Stop()
	}
	c.state = Expired
	c.grace = c.clock.AfterFunc(c.cfg.GraceDelay, c.returnToHistory)
	c.mu.Unlock()

	c.logger.Info("Meeting time is over")
	c.view.Countdown(EndedDisplay)
	c.view.Status(Expired.String(), EndedNotice)
	c.view.Notify(EndedNotice)
}

func (c *Controller) returnToHistory() {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}

	if err := c.nav.Navigate(c.lifetime, c.cfg.HistoryURL); err != nil {
		c.logger.Warn("Unable to return to appointment history", "error", err)
	}
	c.finish()
}
