package output

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/Veraticus/linescan/pkg/types"
)

// JSONSink writes one JSON object per line.
type JSONSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

type jsonSpan struct {
	Start uint64 `json:"start"`
	End   uint64 `json:"end"`
	Text  string `json:"text"`
}

type jsonRecord struct {
	Source  string                `json:"source,omitempty"`
	Line    int                   `json:"line"`
	Text    string                `json:"text"`
	Matches map[string][]jsonSpan `json:"matches"`
}

// NewJSONSink creates a JSON lines sink writing to w.
func NewJSONSink(w io.Writer) *JSONSink {
	return &JSONSink{enc: json.NewEncoder(w)}
}

// Write implements Sink
func (s *JSONSink) Write(record types.LineRecord) error {
	out := jsonRecord{
		Source:  record.Source,
		Line:    record.Index,
		Text:    record.Text,
		Matches: make(map[string][]jsonSpan, len(record.Result)),
	}
	for field, spans := range record.Result {
		list := make([]jsonSpan, 0, len(spans))
		for _, span := range spans {
			list = append(list, jsonSpan{Start: span.Start, End: span.End, Text: span.Text(record.Text)})
		}
		out.Matches[field] = list
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(out)
}

// Close implements Sink
func (s *JSONSink) Close() error {
	return nil
}
