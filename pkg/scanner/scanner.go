// Package scanner runs a scan session: every line goes through the automaton,
// whose events are reconciled into a shared store, and results are projected
// per line afterwards.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/Veraticus/linescan/pkg/automaton"
	"github.com/Veraticus/linescan/pkg/diag"
	"github.com/Veraticus/linescan/pkg/projector"
	"github.com/Veraticus/linescan/pkg/registry"
	"github.com/Veraticus/linescan/pkg/resolver"
	"github.com/Veraticus/linescan/pkg/types"
)

// MaxLines is the most lines one session can address with 16-bit indices.
const MaxLines = math.MaxUint16 + 1

// ErrTooManyLines is returned when a session is given more than MaxLines lines.
var ErrTooManyLines = errors.New("scanner: too many lines for one session")

// LineError reports the line whose scan failed.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("scan line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// LineScanner scans a fixed set of lines with one registry.
type LineScanner struct {
	lines    []string
	registry *registry.Registry
	store    *resolver.Store
	resolver *resolver.Resolver
	log      *diag.Logger
}

// New creates a scan session over lines.
func New(reg *registry.Registry, lines []string, log *diag.Logger) (*LineScanner, error) {
	if reg == nil || reg.Database() == nil {
		return nil, registry.ErrNoDatabase
	}
	if len(lines) > MaxLines {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyLines, len(lines), MaxLines)
	}
	store := resolver.NewStore()
	return &LineScanner{
		lines:    lines,
		registry: reg,
		store:    store,
		resolver: resolver.New(store, reg),
		log:      log,
	}, nil
}

// Store returns the session's accepted-span store.
func (s *LineScanner) Store() *resolver.Store {
	return s.store
}

// Projector returns a projector draining the session's store.
func (s *LineScanner) Projector() *projector.Projector {
	return projector.New(s.store, s.registry.Kinds())
}

// Scan scans every line in order with one scratch. The first failing line
// aborts the scan.
func (s *LineScanner) Scan() (*resolver.Store, error) {
	now := time.Now()

	db := s.registry.Database()
	scratch, err := db.AllocScratch()
	if err != nil {
		return nil, fmt.Errorf("allocate scratch: %w", err)
	}

	for i := range s.lines {
		if err := s.scanLine(scratch, i); err != nil {
			return nil, err
		}
	}

	s.log.Debugf("scan of %d lines completed in %v", len(s.lines), time.Since(now))
	return s.store, nil
}

// ScanParallel scans lines on workers goroutines sharing the store. Each
// worker owns its scratch and every line is scanned by exactly one worker,
// so per-line event order is preserved.
func (s *LineScanner) ScanParallel(ctx context.Context, workers int) (*resolver.Store, error) {
	if workers <= 1 {
		return s.Scan()
	}
	now := time.Now()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	db := s.registry.Database()
	jobs := make(chan int)
	errChan := make(chan error, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		scratch, err := db.AllocScratch()
		if err != nil {
			close(jobs)
			wg.Wait()
			return nil, fmt.Errorf("allocate scratch: %w", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if err := s.scanLine(scratch, i); err != nil {
					errChan <- err
					cancel()
					return
				}
			}
		}()
	}

	sendErr := func() error {
		defer close(jobs)
		for i := range s.lines {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	}()
	wg.Wait()

	select {
	case err := <-errChan:
		return nil, err
	default:
	}
	if sendErr != nil {
		return nil, sendErr
	}

	s.log.Debugf("parallel scan of %d lines on %d workers completed in %v", len(s.lines), workers, time.Since(now))
	return s.store, nil
}

func (s *LineScanner) scanLine(scratch *automaton.Scratch, i int) error {
	text := []byte(s.lines[i])
	lc := &resolver.LineContext{Index: uint16(i), Text: text}
	if err := s.registry.Database().Scan(text, scratch, s.resolver.HandleMatch, lc); err != nil {
		return &LineError{Line: i, Err: err}
	}
	return nil
}

// Extract scans lines and projects every one of them. workers > 1 scans in
// parallel.
func Extract(ctx context.Context, reg *registry.Registry, lines []string, workers int, log *diag.Logger) ([]types.LineResult, error) {
	s, err := New(reg, lines, log)
	if err != nil {
		return nil, err
	}
	if _, err := s.ScanParallel(ctx, workers); err != nil {
		return nil, err
	}
	return s.Projector().ProjectAll(len(lines)), nil
}
