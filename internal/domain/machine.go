package domain

// EventKind is a transition trigger accepted by the session state machine.
type EventKind string

const (
	EventHandoutPredicted  EventKind = "handout_predicted"
	EventHandoutAdjusted   EventKind = "handout_adjusted"
	EventIssue             EventKind = "issue"
	EventHandoverPredicted EventKind = "handover_predicted"
	EventHandoverAdjusted  EventKind = "handover_adjusted"
	EventFinalize          EventKind = "finalize"
	EventComplete          EventKind = "complete"
)

// Trigger carries an event together with the facts its guard needs.
// Only the fields relevant to Kind are read.
type Trigger struct {
	Kind EventKind

	// predict events
	RequiresManual int
	AutoResolvable bool

	// issue / finalize
	FinalReady      bool
	Unresolved      int
	AllowUnresolved bool
}

// Transition is the session state machine. It is pure: the caller persists the
// returned status. Any pair not listed returns a *GuardViolation.
func Transition(from Status, t Trigger) (Status, error) {
	switch t.Kind {
	case EventHandoutPredicted:
		if !in(from, StatusDraft, StatusHandoutAuto, StatusHandoutNeedsManual) {
			return from, violation(from, t.Kind, "handout is closed")
		}
		return predicted(t, StatusHandoutAuto, StatusHandoutNeedsManual), nil

	case EventHandoutAdjusted:
		if !in(from, StatusHandoutAuto, StatusHandoutNeedsManual) {
			return from, violation(from, t.Kind, "no handout prediction to adjust")
		}
		return from, nil

	case EventIssue:
		if !in(from, StatusHandoutAuto, StatusHandoutNeedsManual) {
			return from, violation(from, t.Kind, "session is not in handout")
		}
		if !t.FinalReady {
			return from, violation(from, t.Kind, "handout has no committed final set")
		}
		if t.Unresolved > 0 && !t.AllowUnresolved {
			return from, violation(from, t.Kind, "handout final set has unresolved classes")
		}
		return StatusIssued, nil

	case EventHandoverPredicted:
		if !in(from, StatusIssued, StatusHandoverAuto, StatusHandoverNeedsManual) {
			return from, violation(from, t.Kind, "handover is not open")
		}
		return predicted(t, StatusHandoverAuto, StatusHandoverNeedsManual), nil

	case EventHandoverAdjusted:
		if !in(from, StatusHandoverAuto, StatusHandoverNeedsManual) {
			return from, violation(from, t.Kind, "no handover prediction to adjust")
		}
		return from, nil

	case EventFinalize:
		if !in(from, StatusHandoverAuto, StatusHandoverNeedsManual) {
			return from, violation(from, t.Kind, "session is not in handover")
		}
		if !t.FinalReady {
			return from, violation(from, t.Kind, "handover has no committed final set")
		}
		return StatusReturned, nil

	case EventComplete:
		if from != StatusReturned {
			return from, violation(from, t.Kind, "session has not been returned")
		}
		return StatusCompleted, nil
	}

	return from, violation(from, t.Kind, "unknown event")
}

func predicted(t Trigger, auto, manual Status) Status {
	if t.RequiresManual == 0 && t.AutoResolvable {
		return auto
	}
	return manual
}

func in(s Status, set ...Status) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}

func violation(from Status, ev EventKind, reason string) *GuardViolation {
	return &GuardViolation{From: from, Event: ev, Reason: reason}
}
