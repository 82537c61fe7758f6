package internal

import (
	"errors"
	"sync"
)

// ErrNoVaultSelected is returned by Session.Current when no vault has been
// selected yet.
var ErrNoVaultSelected = errors.New("no vault selected")

// Session holds the single "currently selected vault" reference shared by
// otherwise-stateless tool invocations. It keeps no history: selecting a new
// vault discards the previous selection. Callers that need isolation (tests)
// construct independent instances.
type Session struct {
	mu    sync.Mutex
	vault string
}

// NewSession returns an empty session with no vault selected.
func NewSession() *Session {
	return &Session{}
}

// Select replaces the current selection unconditionally and returns the prior
// value for logging. An empty prior value means nothing was selected before.
func (s *Session) Select(vaultID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	prior := s.vault
	s.vault = vaultID
	return prior
}

// Current returns the active selection, or ErrNoVaultSelected.
func (s *Session) Current() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.vault == "" {
		return "", ErrNoVaultSelected
	}
	return s.vault, nil
}

// Resolve returns the explicit vault id when non-empty, falling back to the
// session's current selection. Every operation that accepts an optional vault
// argument funnels through here.
func (s *Session) Resolve(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	return s.Current()
}
