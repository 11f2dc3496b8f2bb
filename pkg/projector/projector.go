// Package projector drains a line's accepted spans into the field-named
// result handed to callers.
package projector

import (
	"github.com/Veraticus/linescan/pkg/resolver"
	"github.com/Veraticus/linescan/pkg/types"
)

// Projector materialises line results from a resolver store.
type Projector struct {
	store *resolver.Store
	kinds types.KindSet
}

// New creates a projector over store for the enabled kinds.
func New(store *resolver.Store, kinds types.KindSet) *Projector {
	return &Projector{store: store, kinds: kinds}
}

// Project removes line's spans from the store and groups them by field.
// Every enabled field is present, possibly empty; disabled fields are absent.
// Projecting the same line twice yields empty fields the second time.
func (p *Projector) Project(line uint16) types.LineResult {
	result := NewResult(p.kinds)
	for _, span := range p.store.Take(line) {
		if !p.kinds.Contains(span.Kind) {
			continue
		}
		field := span.Kind.Field()
		result[field] = append(result[field], Trim(span))
	}
	return result
}

// ProjectAll projects lines 0..count-1 in order.
func (p *Projector) ProjectAll(count int) []types.LineResult {
	out := make([]types.LineResult, count)
	for i := 0; i < count; i++ {
		out[i] = p.Project(uint16(i))
	}
	return out
}

// NewResult returns a result with an empty slice for every enabled field.
func NewResult(kinds types.KindSet) types.LineResult {
	result := make(types.LineResult)
	for _, field := range kinds.Fields() {
		result[field] = []types.MatchSpan{}
	}
	return result
}

// Trim strips the delimiters of quoted strings and user agents. It is applied
// unconditionally, so an unresolved zero-width quote comes out inverted.
func Trim(span types.MatchSpan) types.MatchSpan {
	switch span.Kind {
	case types.Quoted, types.UserAgent:
		span.Start++
		span.End--
	}
	return span
}
