// Package snapshot holds the last observed state of the tracked server.
package snapshot

import (
	"sync/atomic"
	"time"

	"archean-status-relay/internal/directory"
)

// State is the tracked server's state after one successful directory fetch.
// A nil Snapshot means the server was not listed. States are never modified
// once published.
type State struct {
	Snapshot   *directory.ServerSnapshot
	ObservedAt time.Time
}

// Online reports whether the server was listed.
func (s *State) Online() bool {
	return s != nil && s.Snapshot != nil
}

// Store publishes the tracked server's state. Readers always observe either the
// previous or the new state as a whole.
type Store struct {
	current atomic.Pointer[State]
}

// NewStore returns a store with no known state.
func NewStore() *Store {
	return &Store{}
}

// Get returns the current state, or nil when no fetch has succeeded yet.
func (s *Store) Get() *State {
	return s.current.Load()
}

// Replace publishes a new state built from snap and returns the state it superseded.
// The snapshot is copied so later changes to the caller's value are not visible.
func (s *Store) Replace(snap *directory.ServerSnapshot, observedAt time.Time) (previous, current *State) {
	next := &State{ObservedAt: observedAt}
	if snap != nil {
		copied := *snap
		next.Snapshot = &copied
	}
	return s.current.Swap(next), next
}
