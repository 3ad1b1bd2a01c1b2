package models

import (
	"fmt"
	"time"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

// Appointment is owned by the booking service; carelink only reads it.
type Appointment struct {
	ID           string        `json:"id"`
	Date         string        `json:"date"`
	TimeSlot     TimeSlot      `json:"timeSlot"`
	Participants []Participant `json:"participants,omitempty"`
}

// TimeSlot holds the wall clock start and end, formatted HH:MM.
type TimeSlot struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Participant is a person attending the appointment.
type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
}

// JoinWindow is the closed interval during which the meeting room may be
// entered.
type JoinWindow struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether now falls within the window, both ends included.
func (w JoinWindow) Contains(now time.Time) bool {
	return !now.Before(w.Start) && !now.After(w.End)
}

// Window resolves the appointment's date and time slot in loc. Dates may
// carry a time part (ISO timestamps from the API), only the day is used.
func (a Appointment) Window(loc *time.Location) (JoinWindow, error) {
	start, err := a.instant(a.TimeSlot.Start, loc)
	if err != nil {
		return JoinWindow{}, fmt.Errorf("appointment %s: start: %w", a.ID, err)
	}
	end, err := a.EndsAt(loc)
	if err != nil {
		return JoinWindow{}, fmt.Errorf("appointment %s: end: %w", a.ID, err)
	}
	if !end.After(start) {
		return JoinWindow{}, fmt.Errorf("appointment %s: time slot %s-%s is empty", a.ID, a.TimeSlot.Start, a.TimeSlot.End)
	}
	return JoinWindow{Start: start, End: end}, nil
}

// EndsAt is the absolute instant the scheduled session is over.
func (a Appointment) EndsAt(loc *time.Location) (time.Time, error) {
	return a.instant(a.TimeSlot.End, loc)
}

func (a Appointment) instant(clock string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	date := a.Date
	if len(date) > len(DateLayout) {
		date = date[:len(DateLayout)]
	}
	day, err := time.ParseInLocation(DateLayout, date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", a.Date, err)
	}
	tod, err := time.Parse(ClockLayout, clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: %w", clock, err)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), tod.Hour(), tod.Minute(), 0, 0, loc), nil
}
