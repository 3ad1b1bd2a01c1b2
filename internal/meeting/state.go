package meeting

// State is where one controller is in the join flow.
type State int

// Join flow states.
const (
	Initializing State = iota
	CheckingEligibility
	NotJoinable
	ResolvingLink
	Redirecting
	Active
	Expired
	Left
	Failed
)

var stateNames = map[State]string{
	Initializing:        "INITIALIZING",
	CheckingEligibility: "CHECKING_ELIGIBILITY",
	NotJoinable:         "NOT_JOINABLE",
	ResolvingLink:       "RESOLVING_LINK",
	Redirecting:         "REDIRECTING",
	Active:              "ACTIVE",
	Expired:             "EXPIRED",
	Left:                "LEFT",
	Failed:              "ERROR",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// Terminal states end the flow; only teardown follows them.
func (s State) Terminal() bool {
	switch s {
	case NotJoinable, Expired, Left, Failed:
		return true
	}
	return false
}

// User facing texts.
const (
	NotJoinableMessage = "This meeting cannot be joined right now. Meetings open only during the scheduled appointment time."
	NoLinkMessage      = "No meeting link available for this appointment."
	ErrorMessage       = "Something went wrong while opening the meeting. Go back to your appointments and try again"
	EndedDisplay       = "Meeting ended"
	EndedNotice        = "The scheduled time for this meeting is over. Returning to your appointment history."
)
