package domain

import "fmt"

// Status is the lifecycle state of a session. The set is closed: values
// outside the constants below are rejected by ParseStatus.
type Status string

const (
	StatusDraft               Status = "draft"
	StatusHandoutAuto         Status = "handout_auto"
	StatusHandoutNeedsManual  Status = "handout_needs_manual"
	StatusIssued              Status = "issued"
	StatusHandoverAuto        Status = "handover_auto"
	StatusHandoverNeedsManual Status = "handover_needs_manual"
	StatusReturned            Status = "returned"
	StatusCompleted           Status = "completed"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{
	StatusDraft,
	StatusHandoutAuto,
	StatusHandoutNeedsManual,
	StatusIssued,
	StatusHandoverAuto,
	StatusHandoverNeedsManual,
	StatusReturned,
	StatusCompleted,
}

// rank orders statuses along the lifecycle. The two "auto"/"needs_manual"
// siblings of a phase share a rank since a session moves freely between them.
var rank = map[Status]int{
	StatusDraft:               0,
	StatusHandoutAuto:         1,
	StatusHandoutNeedsManual:  1,
	StatusIssued:              2,
	StatusHandoverAuto:        3,
	StatusHandoverNeedsManual: 3,
	StatusReturned:            4,
	StatusCompleted:           5,
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidInput, s)
	}
	return st, nil
}

func (s Status) Valid() bool {
	_, ok := rank[s]
	return ok
}

func (s Status) Rank() int {
	r, ok := rank[s]
	if !ok {
		return -1
	}
	return r
}

// AtLeast reports whether s has reached other's point in the lifecycle.
func (s Status) AtLeast(other Status) bool {
	return s.Valid() && s.Rank() >= other.Rank()
}

// Phase returns the phase whose data is mutable in status s. Terminal
// statuses (returned, completed) belong to no phase.
func (s Status) Phase() (PhaseKind, bool) {
	switch s {
	case StatusDraft, StatusHandoutAuto, StatusHandoutNeedsManual:
		return PhaseHandout, true
	case StatusIssued, StatusHandoverAuto, StatusHandoverNeedsManual:
		return PhaseHandover, true
	default:
		return "", false
	}
}

func (s Status) String() string {
	return string(s)
}
