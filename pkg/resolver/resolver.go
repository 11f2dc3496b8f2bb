// Package resolver turns the raw, redundant event stream of the automaton into
// a deduplicated set of accepted spans per line.
//
// The automaton reports every valid end offset of a match as its own event,
// so for most kinds only the longest span per start offset is kept. Quoted
// strings additionally over-extend past their first closing quote; their
// boundaries are rebuilt from consecutive events instead of being trusted.
package resolver

import (
	"github.com/Veraticus/linescan/pkg/types"
)

// KindLookup maps an automaton pattern id to its kind.
type KindLookup interface {
	KindForID(id uint32) types.PatternKind
}

// DefaultLookup uses the fixed id table from package types.
type DefaultLookup struct{}

// KindForID implements KindLookup
func (DefaultLookup) KindForID(id uint32) types.PatternKind {
	return types.KindFromID(id)
}

// LineContext identifies the line being scanned. It is passed to the
// automaton as the scan context.
type LineContext struct {
	Index uint16
	Text  []byte
}

// Resolver accepts match events into a Store.
type Resolver struct {
	store  *Store
	lookup KindLookup
}

// New creates a resolver writing into store. A nil lookup uses DefaultLookup.
func New(store *Store, lookup KindLookup) *Resolver {
	if lookup == nil {
		lookup = DefaultLookup{}
	}
	return &Resolver{store: store, lookup: lookup}
}

// Store returns the store the resolver writes into.
func (r *Resolver) Store() *Store {
	return r.store
}

// HandleMatch is the automaton callback. context must be a *LineContext.
// It never stops the scan: later events may still extend or correct a span.
func (r *Resolver) HandleMatch(id uint32, from, to uint64, _ uint32, context interface{}) error {
	lc, ok := context.(*LineContext)
	if !ok || lc == nil {
		return nil
	}
	r.Accept(lc.Index, r.lookup.KindForID(id), from, to)
	return nil
}

// Accept applies one event for line. Events for the same line must arrive in
// the order the automaton reported them.
func (r *Resolver) Accept(line uint16, kind types.PatternKind, from, to uint64) {
	if !kind.Public() {
		return
	}

	r.store.update(line, func(entries []entry) []entry {
		if entries == nil {
			entries = make([]entry, 0, 4)
		}
		if kind == types.Quoted {
			return acceptQuoted(entries, from, to)
		}
		return acceptLongest(entries, kind, from, to)
	})
}

// acceptLongest keeps one span per (kind, start), with the largest end seen.
func acceptLongest(entries []entry, kind types.PatternKind, from, to uint64) []entry {
	for i := range entries {
		e := &entries[i]
		if e.span.Kind != kind || e.span.Start != from {
			continue
		}
		if e.span.End < to {
			e.span.End = to
		}
		return entries
	}
	return append(entries, entry{span: types.MatchSpan{Kind: kind, Start: from, End: to}})
}

// acceptQuoted pairs quoted events.
//
// The first event of a line is taken verbatim. After that, an event with no
// open anchor leaves a zero-width anchor at its end offset; the next event
// closes that anchor into [anchor-1, end).
func acceptQuoted(entries []entry, from, to uint64) []entry {
	found := false
	open := -1
	for i, e := range entries {
		if e.span.Kind != types.Quoted {
			continue
		}
		found = true
		if e.state == provisional {
			open = i
		}
	}

	switch {
	case !found:
		state := resolved
		if from == to {
			state = provisional
		}
		return append(entries, entry{
			span:  types.MatchSpan{Kind: types.Quoted, Start: from, End: to},
			state: state,
		})
	case open >= 0:
		anchor := entries[open].span.Start
		start := anchor
		if start > 0 {
			start--
		}
		entries[open] = entry{span: types.MatchSpan{Kind: types.Quoted, Start: start, End: to}}
		return entries
	default:
		return append(entries, entry{
			span:  types.MatchSpan{Kind: types.Quoted, Start: to, End: to},
			state: provisional,
		})
	}
}
