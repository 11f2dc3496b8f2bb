// Package automaton is a block-mode multi-pattern matcher.
//
// A Database is compiled once from a set of patterns and then scanned line by
// line. Scan reports matches through a callback as raw
// (id, from, to) events rather than as disjoint matches: every end offset at
// which a pattern matches is reported, so one logical match may surface as
// several events sharing a start offset. Callers are expected to reconcile
// the event stream themselves.
package automaton

import (
	"errors"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/coregx/ahocorasick"
	"github.com/coregx/coregex/nfa"
)

// CompileFlag tunes how a single pattern is compiled.
type CompileFlag uint

const (
	// Caseless matches letters case-insensitively.
	Caseless CompileFlag = 1 << iota
	// SomLeftmost reports the leftmost start offset of each match.
	// Without it every event carries from == 0.
	SomLeftmost
	// SingleMatch reports only the first event for the pattern per scan.
	SingleMatch
)

var (
	// ErrNoPatterns is returned when compiling an empty pattern set.
	ErrNoPatterns = errors.New("automaton: no patterns to compile")
	// ErrScratchInUse is returned when a scratch is used by two scans at once.
	ErrScratchInUse = errors.New("automaton: scratch in use")
	// ErrScratchMismatch is returned when a scratch belongs to another database.
	ErrScratchMismatch = errors.New("automaton: scratch allocated for a different database")
	// ErrScanTerminated is returned by Scan when the handler asked to stop.
	ErrScanTerminated = errors.New("automaton: scan terminated by handler")
)

// Pattern is one expression to compile.
type Pattern struct {
	Expression string
	ID         int
	Flags      CompileFlag
	// Literals, when set, must contain at least one byte string that every
	// match contains. Lines holding none of them skip the pattern.
	Literals []string
}

// MatchHandler receives one event per reported match. Returning
// ErrScanTerminated stops the scan; any other error aborts it.
type MatchHandler func(id uint32, from, to uint64, flags uint32, context interface{}) error

// CompileError reports which pattern failed to compile.
type CompileError struct {
	ID         int
	Expression string
	Err        error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("automaton: pattern %d %q: %v", e.ID, e.Expression, e.Err)
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

type compiledPattern struct {
	id    uint32
	flags CompileFlag
	prog  *nfa.NFA
	gate  *ahocorasick.Automaton
}

// Database is a compiled, immutable pattern set. It is safe for concurrent
// use as long as every concurrent scan has its own Scratch.
type Database struct {
	patterns  []compiledPattern
	maxStates int
}

// Compile builds a Database. Either every pattern compiles or none is used.
func Compile(patterns []Pattern) (*Database, error) {
	if len(patterns) == 0 {
		return nil, ErrNoPatterns
	}

	db := &Database{patterns: make([]compiledPattern, 0, len(patterns))}
	for _, p := range patterns {
		cp, err := compilePattern(p)
		if err != nil {
			return nil, &CompileError{ID: p.ID, Expression: p.Expression, Err: err}
		}
		db.patterns = append(db.patterns, cp)
		db.maxStates = max(db.maxStates, cp.prog.States())
	}
	return db, nil
}

func compilePattern(p Pattern) (compiledPattern, error) {
	if p.ID < 0 {
		return compiledPattern{}, fmt.Errorf("negative pattern id %d", p.ID)
	}
	if p.Expression == "" {
		return compiledPattern{}, errors.New("empty expression")
	}

	prefix := ""
	if p.Flags&Caseless != 0 {
		prefix = "(?i)"
	}

	prog, err := nfa.NewCompiler(nfa.CompilerConfig{UTF8: true}).Compile(prefix + "(?:" + p.Expression + ")")
	if err != nil {
		return compiledPattern{}, err
	}
	for it := prog.Iter(); it.HasNext(); {
		switch st := it.Next(); st.Kind() {
		case nfa.StateRuneAny, nfa.StateRuneAnyNotNL:
			return compiledPattern{}, fmt.Errorf("unsupported nfa state %s", st.Kind())
		}
	}

	cp := compiledPattern{
		id:    uint32(p.ID),
		flags: p.Flags,
		prog:  prog,
	}

	if len(p.Literals) > 0 {
		builder := ahocorasick.NewBuilder()
		for _, lit := range p.Literals {
			if lit == "" {
				return compiledPattern{}, errors.New("empty prefilter literal")
			}
			builder.AddPattern([]byte(lit))
		}
		gate, err := builder.Build()
		if err != nil {
			return compiledPattern{}, fmt.Errorf("prefilter: %w", err)
		}
		cp.gate = gate
	}

	return cp, nil
}

// Len returns the number of compiled patterns.
func (db *Database) Len() int {
	return len(db.patterns)
}

// IDs returns the compiled pattern ids in compile order.
func (db *Database) IDs() []uint32 {
	ids := make([]uint32, 0, len(db.patterns))
	for _, p := range db.patterns {
		ids = append(ids, p.id)
	}
	return ids
}

// Scratch is per-scan working memory. It may be reused across lines but not
// by two concurrent scans.
type Scratch struct {
	db     *Database
	inUse  atomic.Bool
	events []event

	cur, next threadSet
	stack     []nfa.StateID
}

type event struct {
	id       uint32
	from, to uint64
}

// AllocScratch allocates working memory for scanning db.
func (db *Database) AllocScratch() (*Scratch, error) {
	if db == nil || len(db.patterns) == 0 {
		return nil, ErrNoPatterns
	}
	return &Scratch{
		db:     db,
		events: make([]event, 0, 16),
		cur:    newThreadSet(db.maxStates),
		next:   newThreadSet(db.maxStates),
	}, nil
}

// Scan matches data against every pattern and reports events to handler in
// ascending end offset, then pattern order.
func (db *Database) Scan(data []byte, scratch *Scratch, handler MatchHandler, context interface{}) error {
	if scratch == nil || scratch.db != db {
		return ErrScratchMismatch
	}
	if !scratch.inUse.CompareAndSwap(false, true) {
		return ErrScratchInUse
	}
	defer scratch.inUse.Store(false)

	events := scratch.events[:0]
	for i := range db.patterns {
		events = db.patterns[i].collect(data, scratch, events)
	}
	scratch.events = events

	slices.SortStableFunc(events, func(a, b event) int {
		if a.to != b.to {
			if a.to < b.to {
				return -1
			}
			return 1
		}
		return int(a.id) - int(b.id)
	})

	if handler == nil {
		return nil
	}
	for _, ev := range events {
		if err := handler(ev.id, ev.from, ev.to, 0, context); err != nil {
			if errors.Is(err, ErrScanTerminated) {
				return ErrScanTerminated
			}
			return err
		}
	}
	return nil
}

// collect appends one event per end offset at which p matches data. The
// pattern's NFA is run once over the line with a new thread seeded at every
// offset. Threads stay ordered by start, so the first thread to reach a
// state owns it and the first match thread at an offset has the leftmost
// start.
func (p *compiledPattern) collect(data []byte, s *Scratch, events []event) []event {
	if p.gate != nil && !p.gate.IsMatch(data) {
		return events
	}

	cur, next := &s.cur, &s.next
	cur.clear()
	anchored := p.prog.IsAnchored()

	for pos := 0; ; pos++ {
		if pos == 0 || !anchored {
			s.closure(p.prog, cur, p.prog.StartAnchored(), pos, pos, data)
		}

		for _, t := range cur.dense {
			if !p.prog.IsMatch(t.state) {
				continue
			}
			// empty matches are never reported
			if t.start < pos {
				events = append(events, p.event(t.start, pos))
				if p.flags&SingleMatch != 0 {
					return events
				}
			}
			break
		}

		if pos == len(data) {
			break
		}

		b := data[pos]
		next.clear()
		for _, t := range cur.dense {
			st := p.prog.State(t.state)
			switch st.Kind() {
			case nfa.StateByteRange:
				lo, hi, to := st.ByteRange()
				if b >= lo && b <= hi {
					s.closure(p.prog, next, to, t.start, pos+1, data)
				}
			case nfa.StateSparse:
				for _, tr := range st.Transitions() {
					if b >= tr.Lo && b <= tr.Hi {
						s.closure(p.prog, next, tr.Next, t.start, pos+1, data)
					}
				}
			}
		}
		cur, next = next, cur

		if anchored && len(cur.dense) == 0 {
			break
		}
	}
	return events
}

func (p *compiledPattern) event(start, end int) event {
	from := uint64(0)
	if p.flags&SomLeftmost != 0 {
		from = uint64(start)
	}
	return event{id: p.id, from: from, to: uint64(end)}
}

// closure adds id and every state reachable from it without consuming input
// to set, all tagged with start.
func (s *Scratch) closure(prog *nfa.NFA, set *threadSet, id nfa.StateID, start, at int, data []byte) {
	stack := append(s.stack[:0], id)
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if int(top) >= len(set.sparse) || set.contains(top) {
			continue
		}
		set.add(top, start)

		st := prog.State(top)
		switch st.Kind() {
		case nfa.StateEpsilon:
			stack = append(stack, st.Epsilon())
		case nfa.StateSplit:
			left, right := st.Split()
			stack = append(stack, right, left)
		case nfa.StateCapture:
			_, _, next := st.Capture()
			stack = append(stack, next)
		case nfa.StateLook:
			look, next := st.Look()
			if lookHolds(look, data, at) {
				stack = append(stack, next)
			}
		}
	}
	s.stack = stack
}

func lookHolds(look nfa.Look, data []byte, at int) bool {
	switch look {
	case nfa.LookStartText:
		return at == 0
	case nfa.LookEndText:
		return at == len(data)
	case nfa.LookStartLine:
		return at == 0 || data[at-1] == '\n'
	case nfa.LookEndLine:
		return at == len(data) || data[at] == '\n'
	case nfa.LookWordBoundary, nfa.LookNoWordBoundary:
		before := at > 0 && isWordByte(data[at-1])
		after := at < len(data) && isWordByte(data[at])
		return (before != after) == (look == nfa.LookWordBoundary)
	}
	return false
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9' || b == '_'
}

type thread struct {
	state nfa.StateID
	start int
}

// threadSet is a sparse set of NFA states that remembers insertion order.
type threadSet struct {
	dense  []thread
	sparse []uint32
}

func newThreadSet(states int) threadSet {
	return threadSet{dense: make([]thread, 0, states), sparse: make([]uint32, states)}
}

func (t *threadSet) contains(id nfa.StateID) bool {
	i := t.sparse[id]
	return int(i) < len(t.dense) && t.dense[i].state == id
}

func (t *threadSet) add(id nfa.StateID, start int) {
	t.sparse[id] = uint32(len(t.dense)) // #nosec G115 -- bounded by the state count
	t.dense = append(t.dense, thread{state: id, start: start})
}

func (t *threadSet) clear() {
	t.dense = t.dense[:0]
}
