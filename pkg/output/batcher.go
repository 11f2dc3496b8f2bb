package output

import (
	"sync"
	"time"

	"github.com/Veraticus/linescan/pkg/types"
)

// Batcher groups records within a time window
type Batcher struct {
	window   time.Duration
	callback func([]types.LineRecord)

	mu      sync.Mutex
	pending []types.LineRecord
	timer   *time.Timer
}

// NewBatcher creates a new record batcher
func NewBatcher(window time.Duration, callback func([]types.LineRecord)) *Batcher {
	return &Batcher{
		window:   window,
		callback: callback,
	}
}

// Add adds a record to the batch
func (b *Batcher) Add(r types.LineRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending = append(b.pending, r)

	// Start timer if not already running
	if b.timer == nil {
		b.timer = time.AfterFunc(b.window, b.flush)
	}
}

// flush hands all pending records to the callback
func (b *Batcher) flush() {
	b.mu.Lock()
	if len(b.pending) == 0 {
		b.timer = nil
		b.mu.Unlock()
		return
	}

	toSend := b.pending
	b.pending = nil
	b.timer = nil
	b.mu.Unlock()

	b.callback(toSend)
}

// Flush immediately sends any pending records
func (b *Batcher) Flush() {
	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
	}
	b.mu.Unlock()

	b.flush()
}
