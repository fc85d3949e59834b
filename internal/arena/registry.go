package arena

import (
	"strings"
	"sync"
)

// registry indexes live sessions by participant and connections by identity.
// Callers may hold a session lock when calling in, never the other way around.
type registry struct {
	mu       sync.Mutex
	byUser   map[string]*session
	bindings map[string]string // conn id → identity
}

func newRegistry() *registry {
	return &registry{
		byUser:   make(map[string]*session),
		bindings: make(map[string]string),
	}
}

func (r *registry) sessionFor(identity string) *session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byUser[identity]
}

func (r *registry) add(s *session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range s.players {
		r.byUser[p.id] = s
	}
}

// remove drops the session's participant entries that still point at it.
func (r *registry) remove(s *session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range s.players {
		if r.byUser[p.id] == s {
			delete(r.byUser, p.id)
		}
	}
}

func (r *registry) sessions() []*session {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[*session]bool, len(r.byUser))
	out := make([]*session, 0, len(r.byUser))
	for _, s := range r.byUser {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func (r *registry) bind(connID, identity string) {
	r.mu.Lock()
	r.bindings[connID] = strings.TrimSpace(identity)
	r.mu.Unlock()
}

func (r *registry) identityOf(connID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bindings[connID]
}

func (r *registry) unbind(connID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.bindings[connID]
	delete(r.bindings, connID)
	return id
}
