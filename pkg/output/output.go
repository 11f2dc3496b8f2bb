// Package output delivers projected lines to their destination.
package output

import (
	"fmt"
	"io"

	"github.com/Veraticus/linescan/pkg/config"
	"github.com/Veraticus/linescan/pkg/types"
)

// Sink receives projected lines.
type Sink interface {
	Write(record types.LineRecord) error
	Close() error
}

// Open creates the sink selected by cfg. Text and JSON sinks write to w.
func Open(cfg config.OutputConfig, w io.Writer) (Sink, error) {
	switch cfg.Format {
	case config.FormatText, "":
		return NewTextSink(w), nil
	case config.FormatJSON:
		return NewJSONSink(w), nil
	case config.FormatSQLite:
		return OpenSQLite(cfg.Database)
	default:
		return nil, fmt.Errorf("unknown output format %q", cfg.Format)
	}
}

// orderedFields returns the fields of result in kind order.
func orderedFields(result types.LineResult) []string {
	fields := make([]string, 0, len(result))
	for _, k := range types.PublicKinds {
		if _, ok := result[k.Field()]; ok {
			fields = append(fields, k.Field())
		}
	}
	return fields
}
