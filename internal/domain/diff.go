package domain

// SessionDiff compares the handout and handover final sets of a session.
// All slices are sorted.
type SessionDiff struct {
	Expected      map[string]int        `json:"expected"`
	HandoutFinal  map[string]FinalClass `json:"handout_final"`
	HandoverFinal map[string]FinalClass `json:"handover_final"`

	// Missing were present at handout but not at handover.
	Missing []string `json:"missing"`
	// Extra were present at handover but are not expected.
	Extra []string `json:"extra"`
	// Unexpected are expected classes returned without having been issued.
	Unexpected []string `json:"unexpected"`
	// Moved were present in both phases with different boxes. Informational
	// only: the two photos are taken independently.
	Moved []string `json:"moved"`
}

// Clean reports whether everything issued came back and nothing else did.
func (d *SessionDiff) Clean() bool {
	return len(d.Missing) == 0 && len(d.Extra) == 0 && len(d.Unexpected) == 0
}
