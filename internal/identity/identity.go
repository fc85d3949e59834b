// Package identity resolves participant display metadata. Lookups are advisory: callers
// fall back to the raw identity string when they fail.
package identity

import (
	"context"
	"errors"
	"strings"
	"sync"
)

var ErrNotFound = errors.New("identity: profile not found")

type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

// Directory looks up a profile by identity.
type Directory interface {
	Lookup(ctx context.Context, id string) (Profile, error)
}

// Fallback is the profile used when a lookup fails.
func Fallback(id string) Profile { return Profile{ID: id, DisplayName: id} }

// Static is an in-process directory for development and tests.
type Static struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

func NewStatic(profiles ...Profile) *Static {
	s := &Static{profiles: make(map[string]Profile, len(profiles))}
	for _, p := range profiles {
		s.Put(p)
	}
	return s
}

func (s *Static) Put(p Profile) {
	s.mu.Lock()
	s.profiles[strings.TrimSpace(p.ID)] = p
	s.mu.Unlock()
}

func (s *Static) Lookup(_ context.Context, id string) (Profile, error) {
	s.mu.RLock()
	p, ok := s.profiles[strings.TrimSpace(id)]
	s.mu.RUnlock()
	if !ok {
		return Profile{}, ErrNotFound
	}
	return p, nil
}
