package models

import "time"

// Event is a calendar event created for a consultation, independent of the
// provider that stores it.
type Event struct {
	ID          string    // Identifier assigned by the calendar provider
	UID         string    // iCalendar UID, stable across calendars
	Summary     string    // Title shown in calendars
	Description string    // Free text shown under the title
	StartTime   time.Time // Start of the consultation
	EndTime     time.Time // End of the consultation
	MeetLink    string    // Joinable video link, empty when none was issued
	Organizer   string    // Organizer's email
	Attendees   []string  // Attendee emails
}
