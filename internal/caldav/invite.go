package caldav

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"

	"carelink/internal/models"
)

const productID = "-//carelink//EN"

// GenerateUID creates a new unique identifier for an event.
func GenerateUID() string {
	return uuid.New().String() + "@carelink"
}

// NewCalendar wraps events in a VCALENDAR. Events without a UID get one.
func NewCalendar(events ...models.Event) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	for _, ev := range events {
		cal.Children = append(cal.Children, toVEvent(ev))
	}
	return cal
}

// WriteInvite encodes ev as an iCalendar invite.
func WriteInvite(w io.Writer, ev models.Event) error {
	if err := ical.NewEncoder(w).Encode(NewCalendar(ev)); err != nil {
		return fmt.Errorf("failed to encode event to iCal format: %w", err)
	}
	return nil
}

// WriteInviteFile writes ev as a single event calendar to name.
func WriteInviteFile(name string, ev models.Event) error {
	f, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("unable to create invite file: %w", err)
	}
	if err := WriteInvite(f, ev); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadInvites decodes every VEVENT of every calendar in r. Times without a
// zone are read in loc.
func ReadInvites(r io.Reader, loc *time.Location) ([]models.Event, error) {
	if loc == nil {
		loc = time.UTC
	}
	dec := ical.NewDecoder(r)
	var events []models.Event
	for {
		cal, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode iCal data: %w", err)
		}
		for _, vevent := range cal.Events() {
			ev, err := fromVEvent(vevent, loc)
			if err != nil {
				return nil, err
			}
			events = append(events, ev)
		}
	}
	return events, nil
}

// ReadInviteFile reads every event in the calendar file name.
func ReadInviteFile(name string, loc *time.Location) ([]models.Event, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("unable to open invite file: %w", err)
	}
	defer f.Close()
	events, err := ReadInvites(f, loc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return events, nil
}

func toVEvent(ev models.Event) *ical.Component {
	uid := ev.UID
	if uid == "" {
		uid = GenerateUID()
	}
	ve := ical.NewComponent(ical.CompEvent)
	ve.Props.SetText(ical.PropUID, uid)
	ve.Props.SetText(ical.PropSummary, ev.Summary)
	ve.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())
	ve.Props.SetDateTime(ical.PropDateTimeStart, ev.StartTime)
	ve.Props.SetDateTime(ical.PropDateTimeEnd, ev.EndTime)

	if ev.Description != "" {
		ve.Props.SetText(ical.PropDescription, ev.Description)
	}
	if ev.MeetLink != "" {
		ve.Props.SetText(ical.PropLocation, ev.MeetLink)
		p := ical.NewProp(ical.PropURL)
		p.Value = ev.MeetLink
		ve.Props.Set(p)
	}
	if ev.Organizer != "" {
		p := ical.NewProp(ical.PropOrganizer)
		p.Value = "mailto:" + ev.Organizer
		ve.Props.Add(p)
	}
	for _, attendee := range ev.Attendees {
		p := ical.NewProp(ical.PropAttendee)
		p.Value = "mailto:" + attendee
		ve.Props.Add(p)
	}
	return ve
}

func fromVEvent(vevent ical.Event, loc *time.Location) (models.Event, error) {
	var ev models.Event
	var err error

	if ev.UID, err = vevent.Props.Text(ical.PropUID); err != nil || ev.UID == "" {
		return ev, fmt.Errorf("event without UID")
	}
	if ev.StartTime, err = vevent.DateTimeStart(loc); err != nil {
		return ev, fmt.Errorf("event %s: invalid start: %w", ev.UID, err)
	}
	if ev.EndTime, err = vevent.DateTimeEnd(loc); err != nil {
		return ev, fmt.Errorf("event %s: invalid end: %w", ev.UID, err)
	}
	ev.Summary, _ = vevent.Props.Text(ical.PropSummary)
	ev.Description, _ = vevent.Props.Text(ical.PropDescription)
	if p := vevent.Props.Get(ical.PropURL); p != nil {
		ev.MeetLink = p.Value
	}
	if ev.MeetLink == "" {
		ev.MeetLink, _ = vevent.Props.Text(ical.PropLocation)
	}
	if p := vevent.Props.Get(ical.PropOrganizer); p != nil {
		ev.Organizer = mailbox(p.Value)
	}
	for _, p := range vevent.Props.Values(ical.PropAttendee) {
		ev.Attendees = append(ev.Attendees, mailbox(p.Value))
	}
	return ev, nil
}

func mailbox(v string) string {
	if len(v) >= len("mailto:") && strings.EqualFold(v[:len("mailto:")], "mailto:") {
		return v[len("mailto:"):]
	}
	return v
}
