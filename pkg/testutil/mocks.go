// Package testutil provides thread-safe test doubles shared across packages.
package testutil

import (
	"sync"
	"time"

	"github.com/Veraticus/linescan/pkg/types"
)

// MockRecordWriter is a thread-safe mock implementation of interfaces.RecordWriter for testing
type MockRecordWriter struct {
	mu       sync.Mutex
	records  []types.LineRecord
	attempts []types.LineRecord // Track all write attempts
	writeErr error
	closed   bool
	delay    time.Duration
}

// NewMockRecordWriter creates a new mock record writer
func NewMockRecordWriter() *MockRecordWriter {
	return &MockRecordWriter{
		records:  []types.LineRecord{},
		attempts: []types.LineRecord{},
	}
}

// Write implements the RecordWriter interface
func (m *MockRecordWriter) Write(r types.LineRecord) error {
	m.mu.Lock()
	delay := m.delay
	m.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.attempts = append(m.attempts, r)
	if m.writeErr != nil {
		return m.writeErr
	}
	m.records = append(m.records, r)
	return nil
}

// Close implements output.Sink
func (m *MockRecordWriter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// GetRecords returns a copy of successfully written records
func (m *MockRecordWriter) GetRecords() []types.LineRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]types.LineRecord, len(m.records))
	copy(result, m.records)
	return result
}

// GetAttempts returns a copy of all attempted writes (including failures)
func (m *MockRecordWriter) GetAttempts() []types.LineRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]types.LineRecord, len(m.attempts))
	copy(result, m.attempts)
	return result
}

// IsClosed returns whether Close was called
func (m *MockRecordWriter) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// SetError sets the error to return on Write calls
func (m *MockRecordWriter) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// SetDelay sets a delay before each Write call
func (m *MockRecordWriter) SetDelay(delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = delay
}

// Clear resets the mock state
func (m *MockRecordWriter) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = []types.LineRecord{}
	m.attempts = []types.LineRecord{}
	m.writeErr = nil
	m.delay = 0
	m.closed = false
}

// MockDataHandler is a mock implementation of interfaces.DataHandler for testing
type MockDataHandler struct {
	mu    sync.Mutex
	lines []string
	data  []byte
	calls int
}

// NewMockDataHandler creates a new mock data handler
func NewMockDataHandler() *MockDataHandler {
	return &MockDataHandler{}
}

// HandleLine implements the OutputHandler interface
func (m *MockDataHandler) HandleLine(line string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines = append(m.lines, line)
}

// HandleData implements the DataHandler interface
func (m *MockDataHandler) HandleData(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.data = append(m.data, data...)
}

// GetLines returns the lines passed to HandleLine
func (m *MockDataHandler) GetLines() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]string, len(m.lines))
	copy(result, m.lines)
	return result
}

// GetData returns all bytes passed to HandleData
func (m *MockDataHandler) GetData() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.data...)
}

// GetDataCallCount returns how many times HandleData was called
func (m *MockDataHandler) GetDataCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
