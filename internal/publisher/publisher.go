// Package publisher mirrors consultation events to a CalDAV calendar,
// pushing each event at most once.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"

	"carelink/internal/caldav"
	"carelink/internal/models"
)

// Uploader stores one event remotely. Implemented by caldav.Client.
type Uploader interface {
	PutEvent(ctx context.Context, ev models.Event) error
}

// State records what has been published. The key is the event UID, the
// value the time it was published.
type State map[string]time.Time

// Report counts the outcome of one Publish run.
type Report struct {
	Published int
	Skipped   int
	Failed    int
}

// Publisher uploads events and remembers which UIDs it has uploaded.
type Publisher struct {
	logger    *slog.Logger
	uploader  Uploader
	stateFile string
	state     State
	dryRun    bool
	location  *time.Location
	now       func() time.Time
}

// New loads the state file; a missing file starts an empty state.
func New(logger *slog.Logger, uploader Uploader, stateFile string, dryRun bool, loc *time.Location) (*Publisher, error) {
	state, err := loadState(stateFile)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load publish state: %w", err)
		}
		logger.Info("No publish state file found, starting fresh", "file", stateFile)
		state = make(State)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Publisher{
		logger:    logger,
		uploader:  uploader,
		stateFile: stateFile,
		state:     state,
		dryRun:    dryRun,
		location:  loc,
		now:       time.Now,
	}, nil
}

// Publish pushes every event not published before. One failing event does
// not stop the others; the state is saved after the run unless dry.
func (p *Publisher) Publish(ctx context.Context, events []models.Event) (Report, error) {
	p.logger.Info("Starting publish run", "events", len(events), "dryRun", p.dryRun)

	var report Report
	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		published, err := p.publishEvent(ctx, ev)
		switch {
		case err != nil:
			report.Failed++
			p.logger.Error("Failed to publish event", "summary", ev.Summary, "uid", ev.UID, "error", err)
		case published:
			report.Published++
		default:
			report.Skipped++
		}
	}

	if !p.dryRun {
		if err := p.saveState(); err != nil {
			return report, err
		}
	}

	p.logger.Info("Publish run finished", "published", report.Published, "skipped", report.Skipped, "failed", report.Failed)
	return report, nil
}

func (p *Publisher) publishEvent(ctx context.Context, ev models.Event) (bool, error) {
	if ev.UID == "" {
		ev.UID = caldav.GenerateUID()
		p.logger.Warn("Event has no UID, generated a new one", "summary", ev.Summary, "uid", ev.UID)
	}
	if p.Published(ev.UID) {
		p.logger.Debug("Event already published, skipping", "summary", ev.Summary, "uid", ev.UID)
		return false, nil
	}

	ev.StartTime = ev.StartTime.In(p.location)
	ev.EndTime = ev.EndTime.In(p.location)

	if p.dryRun {
		p.logger.Info("[DRY RUN] Would publish event", "summary", ev.Summary, "start", ev.StartTime)
		return true, nil
	}
	if err := p.uploader.PutEvent(ctx, ev); err != nil {
		return false, err
	}
	p.state[ev.UID] = p.now().UTC()
	return true, nil
}

// Published reports whether uid is recorded in the state.
func (p *Publisher) Published(uid string) bool {
	_, ok := p.state[uid]
	return ok
}

func loadState(name string) (State, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}
	state := make(State)
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	return state, nil
}

func (p *Publisher) saveState() error {
	data, err := json.MarshalIndent(p.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal publish state: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(p.stateFile), ".publish-state-*")
	if err != nil {
		return fmt.Errorf("failed to save publish state: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to save publish state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to save publish state: %w", err)
	}
	if err := os.Rename(tmp.Name(), p.stateFile); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to save publish state: %w", err)
	}
	return nil
}
