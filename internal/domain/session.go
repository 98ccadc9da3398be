package domain

import "time"

// Phase holds the predict/adjust data of one half of the lend cycle.
type Phase struct {
	Image   string         `json:"image,omitempty"`
	Predict *PredictResult `json:"predict,omitempty"`
	Final   *FinalSet      `json:"final,omitempty"`
}

func (p *Phase) Clone() *Phase {
	if p == nil {
		return nil
	}
	return &Phase{
		Image:   p.Image,
		Predict: p.Predict.Clone(),
		Final:   p.Final.Clone(),
	}
}

// Session is one lend cycle owned by an employee.
// Handover stays nil until the session has been issued.
type Session struct {
	ID            SessionID
	EmployeeID    EmployeeID
	Status        Status
	ThresholdUsed float64
	Notes         string
	CreatedAt     Timestamp
	UpdatedAt     Timestamp
	IssuedAt      *time.Time
	ReturnedAt    *time.Time

	Handout  *Phase
	Handover *Phase

	// Hash fingerprints both final sets once the session is completed.
	Hash string

	// Version is the optimistic concurrency token. Stores bump it on every
	// successful update and reject updates carrying a stale value.
	Version int64
}

// PhaseData returns the phase record for kind, creating it if needed.
func (s *Session) PhaseData(kind PhaseKind) *Phase {
	switch kind {
	case PhaseHandout:
		if s.Handout == nil {
			s.Handout = &Phase{}
		}
		return s.Handout
	case PhaseHandover:
		if s.Handover == nil {
			s.Handover = &Phase{}
		}
		return s.Handover
	}
	return nil
}

// Clone returns a deep copy so callers can mutate freely before an update.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.IssuedAt = cloneTime(s.IssuedAt)
	c.ReturnedAt = cloneTime(s.ReturnedAt)
	c.Handout = s.Handout.Clone()
	c.Handover = s.Handover.Clone()
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
