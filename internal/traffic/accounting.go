// Package traffic keeps per-session byte counters for the local proxy relays.
//
// Counters survive relay restarts: registering a new relay for a session keeps
// adding to the same totals until the session is explicitly reset.
package traffic

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Counters holds the running totals for one session. Safe for concurrent use.
type Counters struct {
	sent     atomic.Uint64
	received atomic.Uint64
}

// AddSent records bytes forwarded from the browser to the upstream proxy.
func (c *Counters) AddSent(n int) {
	if c != nil && n > 0 {
		c.sent.Add(uint64(n))
	}
}

// AddReceived records bytes forwarded from the upstream proxy to the browser.
func (c *Counters) AddReceived(n int) {
	if c != nil && n > 0 {
		c.received.Add(uint64(n))
	}
}

func (c *Counters) snapshot() Snapshot {
	return Snapshot{
		BytesSent:     c.sent.Load(),
		BytesReceived: c.received.Load(),
	}
}

// Snapshot is a point-in-time copy of a session's counters.
type Snapshot struct {
	SessionID     string `json:"sessionId,omitempty"`
	BytesSent     uint64 `json:"bytesSent"`
	BytesReceived uint64 `json:"bytesReceived"`
}

// Accounting maps session ids to counters.
type Accounting struct {
	mu       sync.Mutex
	sessions map[string]*Counters
}

func New() *Accounting {
	return &Accounting{sessions: make(map[string]*Counters)}
}

// ForSession returns the counters for sessionID, creating zeroed ones on first use.
func (a *Accounting) ForSession(sessionID string) *Counters {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.sessions[sessionID]
	if !ok {
		c = &Counters{}
		a.sessions[sessionID] = c
	}
	return c
}

// Get reports the totals for sessionID. Unknown sessions read as zero.
func (a *Accounting) Get(sessionID string) Snapshot {
	a.mu.Lock()
	c, ok := a.sessions[sessionID]
	a.mu.Unlock()
	if !ok {
		return Snapshot{SessionID: sessionID}
	}
	s := c.snapshot()
	s.SessionID = sessionID
	return s
}

// All returns a snapshot of every known session ordered by id.
func (a *Accounting) All() []Snapshot {
	a.mu.Lock()
	out := make([]Snapshot, 0, len(a.sessions))
	for id, c := range a.sessions {
		s := c.snapshot()
		s.SessionID = id
		out = append(out, s)
	}
	a.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

// Reset zeroes the counters for sessionID. Relays still holding the old
// *Counters keep counting into them, which is why the entry is zeroed in place.
func (a *Accounting) Reset(sessionID string) {
	a.mu.Lock()
	c, ok := a.sessions[sessionID]
	a.mu.Unlock()
	if ok {
		c.sent.Store(0)
		c.received.Store(0)
	}
}

// ResetAll zeroes every session.
func (a *Accounting) ResetAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, c := range a.sessions {
		c.sent.Store(0)
		c.received.Store(0)
	}
}
