package domain

import "time"

// Event records one committed transition of a session.
type Event struct {
	ID        string     `json:"id"`
	SessionID SessionID  `json:"session_id"`
	Kind      EventKind  `json:"kind"`
	From      Status     `json:"from"`
	To        Status     `json:"to"`
	Actor     EmployeeID `json:"actor"`
	At        time.Time  `json:"at"`
}

// Changed reports whether the event moved the session to another status.
func (e *Event) Changed() bool {
	return e.From != e.To
}
