// Package registry owns the fixed table of pattern expressions and builds the
// automaton for the kinds enabled by configuration.
package registry

import (
	"errors"
	"fmt"

	"github.com/Veraticus/linescan/pkg/automaton"
	"github.com/Veraticus/linescan/pkg/types"
)

// ErrNoDatabase is returned when no automaton could be built.
var ErrNoDatabase = errors.New("registry: no automaton available")

// DefaultFlags are applied to every pattern.
const DefaultFlags = automaton.Caseless | automaton.SomLeftmost

type entry struct {
	expression string
	literals   []string
}

// Expressions keyed by kind. The quoted expression over-extends past the first
// closing quote; the resolver compensates for that.
var expressions = map[types.PatternKind]entry{
	types.Test: {expression: `test`},
	types.Email: {
		expression: "([\\w\\.!#$%&'*+\\-=?\\^_`{|}~]+@([\\w\\d-]+\\.)+[\\w]{2,4})",
		literals:   []string{"@"},
	},
	types.IP: {
		expression: `(((25[0-5]|2[0-4][0-9]|1[0-9]{2}|[1-9][0-9]|[0-9])\.){3}(25[0-5]|2[0-4][0-9]|1[0-9]{2}|[1-9][0-9]|[0-9]))`,
		literals:   []string{"."},
	},
	types.Quoted: {
		expression: `(("(.*?)")|'(.*?)')`,
		literals:   []string{`"`, `'`},
	},
	types.Date: {
		expression: `((19[789]\d|2\d{3})[-/](0[1-9]|1[1-2])[-/](0[1-9]|[1-2][0-9]|3[0-1]*))|((0[1-9]|[1-2][0-9]|3[0-1]*)[-/](Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec|(0[1-9]|1[1-2]))[-/](19[789]\d|2\d{3}))`,
		literals:   []string{"-", "/"},
	},
	types.Phone: {
		expression: `[\(]?(\d{3})[\)-]?[- ]?(\d{3})[- ]?(\d{4})`,
	},
	types.UserAgent: {
		expression: `"((Mozilla|Links).*? \(.*?\)( .*?[0-9]{1,3}\.[0-9]{1,3}\.?[0-9]{0,3})?)"`,
		literals:   []string{`"`},
	},
	types.URL: {
		expression: `(https?|ftp)://[^\s/$.?#].[^()\]\[\s]*`,
		literals:   []string{"://"},
	},
}

// Expression returns the built-in expression for kind.
func Expression(kind types.PatternKind) (string, bool) {
	e, ok := expressions[kind]
	return e.expression, ok
}

// Registry is the compiled automaton plus the lookup tables decided at build
// time for the enabled kinds.
type Registry struct {
	db     *automaton.Database
	kinds  types.KindSet
	byID   [types.Unknown]types.PatternKind
	fields []string
}

// Option customises Build.
type Option func(*options)

type options struct {
	overrides map[types.PatternKind]string
}

// WithExpression replaces the built-in expression for kind. An empty
// expression keeps the built-in one.
func WithExpression(kind types.PatternKind, expr string) Option {
	return func(o *options) {
		if expr == "" {
			return
		}
		if o.overrides == nil {
			o.overrides = make(map[types.PatternKind]string)
		}
		o.overrides[kind] = expr
	}
}

// Build compiles the enabled kinds into one automaton. Any compile failure
// fails the whole build.
func Build(kinds types.KindSet, opts ...Option) (*Registry, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if kinds.Empty() {
		return nil, fmt.Errorf("%w: no pattern kinds enabled", ErrNoDatabase)
	}

	r := &Registry{kinds: kinds, fields: kinds.Fields()}
	for i := range r.byID {
		r.byID[i] = types.Unknown
	}

	patterns := make([]automaton.Pattern, 0, len(types.PublicKinds))
	for _, kind := range kinds.Kinds() {
		e := expressions[kind]
		literals := e.literals
		if override, ok := o.overrides[kind]; ok {
			// a custom expression may not share the built-in literals
			e.expression, literals = override, nil
		}
		patterns = append(patterns, automaton.Pattern{
			Expression: e.expression,
			ID:         int(kind),
			Flags:      DefaultFlags,
			Literals:   literals,
		})
		r.byID[kind] = kind
	}

	db, err := automaton.Compile(patterns)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoDatabase, err)
	}
	r.db = db
	return r, nil
}

// BuildDatabase returns the automaton for kinds, or nil if it cannot be built.
// Callers must treat nil as fatal.
func BuildDatabase(kinds types.KindSet) *automaton.Database {
	r, err := Build(kinds)
	if err != nil {
		return nil
	}
	return r.db
}

// Database returns the compiled automaton.
func (r *Registry) Database() *automaton.Database {
	return r.db
}

// Kinds returns the enabled kinds.
func (r *Registry) Kinds() types.KindSet {
	return r.kinds
}

// Fields returns the field names of the enabled kinds.
func (r *Registry) Fields() []string {
	out := make([]string, len(r.fields))
	copy(out, r.fields)
	return out
}

// KindForID maps an event pattern id to its kind. Ids that were not compiled
// into this registry map to Unknown.
func (r *Registry) KindForID(id uint32) types.PatternKind {
	if id >= uint32(len(r.byID)) {
		return types.Unknown
	}
	return r.byID[id]
}
