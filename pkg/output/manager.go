package output

import (
	"sync"
	"time"

	"github.com/Veraticus/linescan/pkg/diag"
	"github.com/Veraticus/linescan/pkg/types"
)

// Manager forwards records to a sink, optionally batching them and dropping
// lines without matches.
type Manager struct {
	sink    Sink
	batcher *Batcher
	all     bool
	log     *diag.Logger

	// serialises sink writes between the batcher timer and Close
	mu sync.Mutex
}

// NewManager creates a manager. A positive window batches records; all keeps
// lines without any span.
func NewManager(sink Sink, window time.Duration, all bool, log *diag.Logger) *Manager {
	m := &Manager{
		sink: sink,
		all:  all,
		log:  log,
	}

	if window > 0 {
		m.batcher = NewBatcher(window, m.writeBatch)
	}

	return m
}

// Write sends or batches a record
func (m *Manager) Write(record types.LineRecord) error {
	if !m.all && record.Result.Count() == 0 {
		return nil
	}

	if m.batcher != nil {
		m.batcher.Add(record)
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sink.Write(record)
}

// writeBatch writes a batch; failures are logged since the timer has no caller
// to return them to.
func (m *Manager) writeBatch(records []types.LineRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range records {
		if err := m.sink.Write(r); err != nil {
			m.log.Errorf("output error on line %d: %v", r.Index, err)
		}
	}
	m.log.Debugf("wrote batch of %d records", len(records))
}

// Close flushes pending batches and closes the sink
func (m *Manager) Close() error {
	if m.batcher != nil {
		m.batcher.Flush()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sink.Close()
}
