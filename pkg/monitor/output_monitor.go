// Package monitor scans streamed output line by line as it arrives.
package monitor

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/Veraticus/linescan/pkg/automaton"
	"github.com/Veraticus/linescan/pkg/diag"
	"github.com/Veraticus/linescan/pkg/interfaces"
	"github.com/Veraticus/linescan/pkg/projector"
	"github.com/Veraticus/linescan/pkg/registry"
	"github.com/Veraticus/linescan/pkg/resolver"
	"github.com/Veraticus/linescan/pkg/types"
)

// OutputMonitor splits output into lines, scans each complete line and hands
// the projected result to a writer.
type OutputMonitor struct {
	registry *registry.Registry
	writer   interfaces.RecordWriter
	log      *diag.Logger

	mu         sync.Mutex
	scratch    *automaton.Scratch
	store      *resolver.Store
	resolver   *resolver.Resolver
	projector  *projector.Projector
	stripper   *EscapeStripper
	source     string
	lineBuffer bytes.Buffer
	lines      int
	err        error
}

// Ensure OutputMonitor implements DataHandler
var _ interfaces.DataHandler = (*OutputMonitor)(nil)

// NewOutputMonitor creates a new output monitor
func NewOutputMonitor(reg *registry.Registry, writer interfaces.RecordWriter, log *diag.Logger) (*OutputMonitor, error) {
	if reg == nil || reg.Database() == nil {
		return nil, registry.ErrNoDatabase
	}
	scratch, err := reg.Database().AllocScratch()
	if err != nil {
		return nil, fmt.Errorf("allocate scratch: %w", err)
	}

	store := resolver.NewStore()
	return &OutputMonitor{
		registry:  reg,
		writer:    writer,
		log:       log,
		scratch:   scratch,
		store:     store,
		resolver:  resolver.New(store, reg),
		projector: projector.New(store, reg.Kinds()),
	}, nil
}

// SetSource sets the name attached to every record.
func (om *OutputMonitor) SetSource(source string) {
	om.mu.Lock()
	defer om.mu.Unlock()
	om.source = source
}

// SetStripEscapes enables removal of terminal escape sequences before lines
// are split.
func (om *OutputMonitor) SetStripEscapes(enabled bool) {
	om.mu.Lock()
	defer om.mu.Unlock()
	if enabled {
		om.stripper = NewEscapeStripper()
	} else {
		om.stripper = nil
	}
}

// SetLineOffset makes numbering continue after n lines that were already
// reported elsewhere.
func (om *OutputMonitor) SetLineOffset(n int) {
	om.mu.Lock()
	defer om.mu.Unlock()
	om.lines = n
}

// HandleData processes raw output data
func (om *OutputMonitor) HandleData(data []byte) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if om.stripper != nil {
		data = om.stripper.Strip(data)
	}
	om.lineBuffer.Write(data)

	buffer := om.lineBuffer.Bytes()
	start := 0
	for i := 0; i < len(buffer); i++ {
		if buffer[i] == '\n' {
			om.processLine(string(buffer[start:i]))
			start = i + 1
		}
	}

	// Keep any incomplete line in the buffer
	rest := append([]byte(nil), buffer[start:]...)
	om.lineBuffer.Reset()
	om.lineBuffer.Write(rest)
}

// HandleLine implements the OutputHandler interface
func (om *OutputMonitor) HandleLine(line string) {
	om.mu.Lock()
	defer om.mu.Unlock()

	om.processLine(line)
}

// Flush processes any remaining data in the buffer
func (om *OutputMonitor) Flush() {
	om.mu.Lock()
	defer om.mu.Unlock()

	if om.lineBuffer.Len() > 0 {
		line := om.lineBuffer.String()
		om.lineBuffer.Reset()
		om.processLine(line)
	}
}

// processLine scans one line and writes its record. Callers hold om.mu.
func (om *OutputMonitor) processLine(line string) {
	line = strings.TrimSuffix(line, "\r")

	key := uint16(om.lines) // #nosec G115 -- store keys wrap at 65536
	om.lines++
	number := om.lines

	text := []byte(line)
	lc := &resolver.LineContext{Index: key, Text: text}
	if err := om.registry.Database().Scan(text, om.scratch, om.resolver.HandleMatch, lc); err != nil {
		om.store.Take(key)
		om.fail(fmt.Errorf("scan line %d: %w", number, err))
		return
	}

	record := types.LineRecord{
		Source: om.source,
		Index:  number,
		Text:   line,
		Result: om.projector.Project(key),
	}
	if om.writer == nil {
		return
	}
	if err := om.writer.Write(record); err != nil {
		// Log error but keep monitoring
		om.fail(fmt.Errorf("output error on line %d: %w", number, err))
		return
	}
	om.log.Debugf("line %d: %d spans", number, record.Result.Count())
}

func (om *OutputMonitor) fail(err error) {
	om.log.Errorf("%v", err)
	if om.err == nil {
		om.err = err
	}
}

// Lines returns how many lines have been processed, including the offset.
func (om *OutputMonitor) Lines() int {
	om.mu.Lock()
	defer om.mu.Unlock()
	return om.lines
}

// Err returns the first scan or output error seen.
func (om *OutputMonitor) Err() error {
	om.mu.Lock()
	defer om.mu.Unlock()
	return om.err
}
