package relay

import (
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Handle is one running local relay. Its listener stops accepting once the
// stopped flag flips; in-flight connections are left to finish on their own.
type Handle struct {
	SessionID string
	Kind      Kind
	Port      uint16
	StartedAt time.Time

	ln      net.Listener
	stopped atomic.Bool
	started atomic.Bool
	done    chan struct{}
	once    sync.Once
	release func()
}

func newHandle(sessionID string, kind Kind, ln net.Listener, release func()) *Handle {
	port := uint16(0)
	if addr, ok := ln.Addr().(*net.TCPAddr); ok {
		port = uint16(addr.Port)
	}
	return &Handle{
		SessionID: sessionID,
		Kind:      kind,
		Port:      port,
		StartedAt: time.Now().UTC(),
		ln:        ln,
		done:      make(chan struct{}),
		release:   release,
	}
}

// Stopped reports whether the relay has been told to stop.
func (h *Handle) Stopped() bool {
	return h.stopped.Load()
}

// stop is idempotent and returns once the accept loop has exited.
func (h *Handle) stop() {
	h.once.Do(func() {
		h.stopped.Store(true)
		_ = h.ln.Close()
		if h.release != nil {
			h.release()
		}
	})
	if h.started.Load() {
		<-h.done
	}
}

// HandleInfo is a read-only view of a relay for status reporting.
type HandleInfo struct {
	SessionID string    `json:"session"`
	Kind      Kind      `json:"kind"`
	Port      uint16    `json:"port"`
	StartedAt time.Time `json:"startedAt"`
}

// Registry keeps at most one relay per session id.
type Registry struct {
	mu     sync.Mutex
	relays map[string]*Handle
}

func NewRegistry() *Registry {
	return &Registry{relays: make(map[string]*Handle)}
}

// Register stores h, stopping any relay already registered for the same session first.
func (r *Registry) Register(h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.relays[h.SessionID]; ok && prev != h {
		prev.stop()
	}
	r.relays[h.SessionID] = h
}

// Stop tears down the relay for sessionID. Unknown ids are a no-op.
func (r *Registry) Stop(sessionID string) {
	r.mu.Lock()
	h, ok := r.relays[sessionID]
	delete(r.relays, sessionID)
	r.mu.Unlock()
	if ok {
		h.stop()
	}
}

// StopAll tears down every registered relay.
func (r *Registry) StopAll() {
	r.mu.Lock()
	handles := make([]*Handle, 0, len(r.relays))
	for id, h := range r.relays {
		handles = append(handles, h)
		delete(r.relays, id)
	}
	r.mu.Unlock()
	for _, h := range handles {
		h.stop()
	}
}

// Active maps session ids to local ports, skipping relays already stopped.
func (r *Registry) Active() map[string]uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]uint16, len(r.relays))
	for id, h := range r.relays {
		if h.Stopped() {
			continue
		}
		out[id] = h.Port
	}
	return out
}

// Handles lists the live relays ordered by session id.
func (r *Registry) Handles() []HandleInfo {
	r.mu.Lock()
	out := make([]HandleInfo, 0, len(r.relays))
	for _, h := range r.relays {
		if h.Stopped() {
			continue
		}
		out = append(out, HandleInfo{SessionID: h.SessionID, Kind: h.Kind, Port: h.Port, StartedAt: h.StartedAt})
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}
