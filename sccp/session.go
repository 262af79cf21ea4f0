// Package sccp holds the SCCP connection record the signalling NAT owns
// and this core only observes (spec §3, "SCCP connection record"). The
// core never deletes these records — lifecycle belongs to the caller.
package sccp

import "bscnat/trunk"

// Unbound is the sentinel value for an endpoint id that has not been
// assigned yet.
const Unbound = -1

// Session is one active call's SCCP leg. Exactly one exists per active
// call; either both endpoints are Unbound or both are bound (spec §3).
type Session struct {
	BSC      *trunk.BSC
	MSCEndp  int // Call-Agent endpoint id, Unbound if not yet assigned
	BSCEndp  int // downstream BSC endpoint id, Unbound if not yet assigned
}

// New returns a session with both endpoints unbound, owned by bsc.
func New(bsc *trunk.BSC) *Session {
	return &Session{BSC: bsc, MSCEndp: Unbound, BSCEndp: Unbound}
}

// Bound reports whether both endpoints are assigned.
func (s *Session) Bound() bool {
	return s.MSCEndp != Unbound && s.BSCEndp != Unbound
}

// Table is the NAT-wide set of live SCCP sessions, looked up by endpoint.
// It is a thin, slice-backed substitute for the llist the original
// walks; ownership stays with the signalling NAT — this core only reads
// and mutates the two endpoint fields.
type Table struct {
	sessions []*Session
}

func NewTable() *Table {
	return &Table{}
}

func (t *Table) Add(s *Session) {
	t.sessions = append(t.sessions, s)
}

func (t *Table) Remove(s *Session) {
	for i, cur := range t.sessions {
		if cur == s {
			t.sessions = append(t.sessions[:i], t.sessions[i+1:]...)
			return
		}
	}
}

// All returns every live session, for status reporting.
func (t *Table) All() []*Session {
	return t.sessions
}

// FindByMSCEndp returns the SCCP session bound to the given Call-Agent
// endpoint id, or nil (spec §4.2 step 2 / original bsc_mgcp_find_con).
func (t *Table) FindByMSCEndp(endpoint int) *Session {
	var found *Session
	for _, s := range t.sessions {
		if s.MSCEndp == endpoint {
			found = s
		}
	}
	return found
}

// AllWithMSCEndp returns every session (other than exclude) bound to the
// given Call-Agent endpoint id — used to detect the collision in spec
// §4.5 step 4 (an MSC reuse of an upstream endpoint implies the old call
// is gone).
func (t *Table) AllWithMSCEndp(endpoint int, exclude *Session) []*Session {
	var matches []*Session
	for _, s := range t.sessions {
		if s == exclude {
			continue
		}
		if s.MSCEndp == endpoint {
			matches = append(matches, s)
		}
	}
	return matches
}
