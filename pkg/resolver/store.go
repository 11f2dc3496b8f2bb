package resolver

import (
	"slices"
	"sync"

	"github.com/Veraticus/linescan/pkg/types"
)

// slotState tracks whether a quoted entry is still waiting for its closing
// event.
type slotState uint8

const (
	resolved slotState = iota
	// provisional entries are zero-width anchors; span.Start is the anchor.
	provisional
)

type entry struct {
	span  types.MatchSpan
	state slotState
}

// Store holds the accepted spans of every line that has seen at least one
// event and has not been projected yet.
type Store struct {
	mu    sync.RWMutex
	lines map[uint16][]entry
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{lines: make(map[uint16][]entry)}
}

// update runs fn on the line's entries under the write lock and stores the
// result. The entry list is created on first use.
func (s *Store) update(line uint16, fn func([]entry) []entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines[line] = fn(s.lines[line])
}

// Take removes and returns the accepted spans of line. A line that was never
// written, or was already taken, yields nil.
func (s *Store) Take(line uint16) []types.MatchSpan {
	s.mu.Lock()
	entries, ok := s.lines[line]
	delete(s.lines, line)
	s.mu.Unlock()

	if !ok {
		return nil
	}
	return spansOf(entries)
}

// Spans returns a copy of the accepted spans of line without removing them.
func (s *Store) Spans(line uint16) []types.MatchSpan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return spansOf(s.lines[line])
}

// Pending reports how many unresolved quote anchors line holds.
func (s *Store) Pending(line uint16) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.lines[line] {
		if e.state == provisional {
			n++
		}
	}
	return n
}

// Lines returns the indices of lines holding spans, ascending.
func (s *Store) Lines() []uint16 {
	s.mu.RLock()
	out := make([]uint16, 0, len(s.lines))
	for line := range s.lines {
		out = append(out, line)
	}
	s.mu.RUnlock()
	slices.Sort(out)
	return out
}

// Len returns the number of lines holding spans.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.lines)
}

func spansOf(entries []entry) []types.MatchSpan {
	if entries == nil {
		return nil
	}
	out := make([]types.MatchSpan, len(entries))
	for i, e := range entries {
		out[i] = e.span
	}
	return out
}
