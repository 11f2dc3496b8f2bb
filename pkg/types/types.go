// Package types contains shared data structures used across the application.
package types

import (
	"fmt"
	"strings"
)

// PatternKind identifies one of the structured-data categories linescan detects.
// The numeric value doubles as the automaton pattern id.
type PatternKind uint32

// Pattern kinds. Test and Unknown are internal and never reach callers.
const (
	Test PatternKind = iota
	Email
	IP
	Quoted
	Date
	Phone
	UserAgent
	URL
	Unknown
)

// Field names used as keys of a LineResult.
const (
	FieldIP        = "ip"
	FieldEmail     = "email"
	FieldDate      = "date"
	FieldQuoted    = "quoted"
	FieldURL       = "url"
	FieldPhone     = "phone"
	FieldUserAgent = "user_agent"
)

var kindFields = [...]string{
	Email:     FieldEmail,
	IP:        FieldIP,
	Quoted:    FieldQuoted,
	Date:      FieldDate,
	Phone:     FieldPhone,
	UserAgent: FieldUserAgent,
	URL:       FieldURL,
}

// PublicKinds lists every kind a caller may enable, in id order.
var PublicKinds = []PatternKind{Email, IP, Quoted, Date, Phone, UserAgent, URL}

// Field returns the result field name for the kind, or "" for internal kinds.
func (k PatternKind) Field() string {
	if int(k) < len(kindFields) {
		return kindFields[k]
	}
	return ""
}

// String implements fmt.Stringer
func (k PatternKind) String() string {
	switch k {
	case Test:
		return "test"
	case Unknown:
		return "unknown"
	}
	if f := k.Field(); f != "" {
		return f
	}
	return fmt.Sprintf("kind(%d)", uint32(k))
}

// Public reports whether the kind may appear in results.
func (k PatternKind) Public() bool {
	return k.Field() != ""
}

// ParseKind maps a field name back to its kind.
func ParseKind(field string) (PatternKind, error) {
	name := strings.ToLower(strings.TrimSpace(field))
	if name == "useragent" || name == "user-agent" {
		name = FieldUserAgent
	}
	for _, k := range PublicKinds {
		if k.Field() == name {
			return k, nil
		}
	}
	return Unknown, fmt.Errorf("unknown pattern kind %q", field)
}

// KindFromID is the fixed id-to-kind lookup. Ids outside the table are Unknown.
func KindFromID(id uint32) PatternKind {
	if id >= uint32(Unknown) {
		return Unknown
	}
	return PatternKind(id)
}

// KindSet is a set of enabled pattern kinds.
type KindSet uint32

// NewKindSet returns a set holding the given public kinds.
func NewKindSet(kinds ...PatternKind) KindSet {
	var s KindSet
	for _, k := range kinds {
		s = s.Add(k)
	}
	return s
}

// AllKinds returns the set of every public kind.
func AllKinds() KindSet {
	return NewKindSet(PublicKinds...)
}

// Add returns s with k included. Internal kinds are ignored.
func (s KindSet) Add(k PatternKind) KindSet {
	if !k.Public() {
		return s
	}
	return s | 1<<k
}

// Contains reports whether k is in the set.
func (s KindSet) Contains(k PatternKind) bool {
	return k.Public() && s&(1<<k) != 0
}

// Empty reports whether no kind is enabled.
func (s KindSet) Empty() bool {
	return s == 0
}

// Kinds returns the enabled kinds in id order.
func (s KindSet) Kinds() []PatternKind {
	var out []PatternKind
	for _, k := range PublicKinds {
		if s.Contains(k) {
			out = append(out, k)
		}
	}
	return out
}

// Fields returns the field names of the enabled kinds in id order.
func (s KindSet) Fields() []string {
	kinds := s.Kinds()
	out := make([]string, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, k.Field())
	}
	return out
}

// ParseKindSet parses a comma separated list of field names.
func ParseKindSet(list string) (KindSet, error) {
	var s KindSet
	for _, part := range strings.Split(list, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		k, err := ParseKind(part)
		if err != nil {
			return 0, err
		}
		s = s.Add(k)
	}
	return s, nil
}

// MatchSpan is an accepted match: half-open byte offsets into its line.
type MatchSpan struct {
	Kind  PatternKind `json:"-"`
	Start uint64      `json:"start"`
	End   uint64      `json:"end"`
}

// Width returns End-Start, or 0 when the span is inverted.
func (m MatchSpan) Width() uint64 {
	if m.End < m.Start {
		return 0
	}
	return m.End - m.Start
}

// Inverted reports whether Start lies after End. Trimmed unresolved quotes
// produce such spans.
func (m MatchSpan) Inverted() bool {
	return m.Start > m.End
}

// Text returns the bytes of line covered by the span. Inverted or out of
// range spans yield "".
func (m MatchSpan) Text(line string) string {
	if m.Inverted() || m.End > uint64(len(line)) {
		return ""
	}
	return line[m.Start:m.End]
}

// LineResult maps field name to the spans found for it on one line.
type LineResult map[string][]MatchSpan

// Count returns the total number of spans across all fields.
func (r LineResult) Count() int {
	n := 0
	for _, spans := range r {
		n += len(spans)
	}
	return n
}

// LineRecord is a projected line ready for output. Index is the 1-based line
// number within Source.
type LineRecord struct {
	Source string     `json:"source,omitempty"`
	Index  int        `json:"line"`
	Text   string     `json:"text"`
	Result LineResult `json:"matches"`
}
