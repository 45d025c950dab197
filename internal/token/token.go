// Package token holds the Engine-owned TokenSet and the single mutual
// exclusion primitive that protects it when concurrent detail fetches are
// enabled (SCRAPE_CONCURRENCY > 1).
package token

import (
	"sync"

	"github.com/pjatk21/sigma-api/internal/model"
)

// State is the Engine-private token store. It is never shared outside the
// task that owns the Scrape Engine (spec §4.A, §5 "Shared resources").
type State struct {
	mu  sync.Mutex
	set model.TokenSet
}

// New returns an empty State; all three fields are populated by the first
// successful server interaction.
func New() *State {
	return &State{}
}

// Snapshot returns the current token triple for embedding in the next form
// post. Safe to call while a concurrent batch is in flight.
func (s *State) Snapshot() model.TokenSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set
}

// Update replaces all three fields atomically with those of next; no field
// of the previous set is kept. The Delta Parser never calls Update with a
// partially populated TokenSet; it either has all three or returns a
// protocol error before reaching here.
func (s *State) Update(next model.TokenSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set = next
}

// Empty reports whether the store has never been populated.
func (s *State) Empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set.Empty()
}
