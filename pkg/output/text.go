package output

import (
	"fmt"
	"io"
	"sync"

	"github.com/Veraticus/linescan/pkg/types"
)

// TextSink prints one line per span:
//
//	access.log:12: ip [5,13) "10.0.0.1"
type TextSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewTextSink creates a text sink writing to w.
func NewTextSink(w io.Writer) *TextSink {
	return &TextSink{w: w}
}

// Write prints the spans of record. A record without spans prints a single
// "-" line.
func (s *TextSink) Write(record types.LineRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	location := fmt.Sprintf("%d", record.Index)
	if record.Source != "" {
		location = record.Source + ":" + location
	}

	if record.Result.Count() == 0 {
		_, err := fmt.Fprintf(s.w, "%s: -\n", location)
		return err
	}

	for _, field := range orderedFields(record.Result) {
		for _, span := range record.Result[field] {
			if _, err := fmt.Fprintf(s.w, "%s: %s [%d,%d) %q\n", location, field, span.Start, span.End, span.Text(record.Text)); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close implements Sink
func (s *TextSink) Close() error {
	return nil
}
