// Package follow tails a growing file and hands appended bytes to a data
// handler.
package follow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Veraticus/linescan/pkg/diag"
	"github.com/Veraticus/linescan/pkg/interfaces"
)

// DefaultPollInterval re-checks the file when no event arrived, which covers
// filesystems that do not deliver inotify events.
const DefaultPollInterval = time.Second

const readChunk = 32 * 1024

// Tailer follows one file from a byte offset.
type Tailer struct {
	path    string
	handler interfaces.DataHandler
	log     *diag.Logger
	offset  int64
	poll    time.Duration
}

// New creates a tailer that starts reading path at offset.
func New(path string, offset int64, handler interfaces.DataHandler, log *diag.Logger) *Tailer {
	return &Tailer{
		path:    path,
		handler: handler,
		log:     log,
		offset:  offset,
		poll:    DefaultPollInterval,
	}
}

// SetPollInterval changes the fallback polling interval.
func (t *Tailer) SetPollInterval(d time.Duration) {
	if d > 0 {
		t.poll = d
	}
}

// Offset returns the byte offset of the next unread byte.
func (t *Tailer) Offset() int64 {
	return t.offset
}

// Run watches the file until ctx is done. The file's directory is watched so
// the file may be replaced or recreated.
func (t *Tailer) Run(ctx context.Context) error {
	absPath, err := filepath.Abs(t.path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(absPath), err)
	}

	// Catch anything appended between the initial read and the watch
	if err := t.readNew(absPath); err != nil {
		return err
	}

	ticker := time.NewTicker(t.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != absPath {
				continue
			}

			switch {
			case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				t.log.Debugf("%s was removed, waiting for it to reappear", t.path)
				t.offset = 0
			case event.Op&(fsnotify.Write|fsnotify.Create) != 0:
				if err := t.readNew(absPath); err != nil {
					return err
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			t.log.Errorf("watch error: %v", err)

		case <-ticker.C:
			if err := t.readNew(absPath); err != nil {
				return err
			}
		}
	}
}

// readNew hands every byte past the offset to the handler. A file that
// shrank is treated as truncated and read from the start.
func (t *Tailer) readNew(path string) error {
	// #nosec G304 -- the followed file is named by the user
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open %s: %w", t.path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", t.path, err)
	}
	if info.Size() < t.offset {
		t.log.Debugf("%s was truncated, reading from the start", t.path)
		t.offset = 0
	}
	if info.Size() == t.offset {
		return nil
	}

	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return fmt.Errorf("seek %s: %w", t.path, err)
	}

	buf := make([]byte, readChunk)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			t.handler.HandleData(chunk)
			t.offset += int64(n)
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", t.path, err)
		}
	}
}
