package models

// Meeting is the video meeting issued for an appointment.
type Meeting struct {
	MeetingID string `json:"meetingId"`
	Link      string `json:"link"`
}

// Eligibility is the platform's answer to "can this appointment be joined now".
type Eligibility struct {
	CanJoin    bool `json:"canJoin"`
	LinkExists bool `json:"meetingExists"`
}

// Identity is the signed-in user, used for display only.
type Identity struct {
	UserID string
	Name   string
	Role   string
}

// DisplayName is the name shown to the user: the name, else the user ID,
// else "guest".
func (i Identity) DisplayName() string {
	if i.Name != "" {
		return i.Name
	}
	if i.UserID != "" {
		return i.UserID
	}
	return "guest"
}
