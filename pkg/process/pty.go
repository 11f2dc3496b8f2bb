package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"

	"github.com/creack/pty"

	"github.com/Veraticus/linescan/pkg/diag"
)

// PTYManager handles PTY-based process execution
type PTYManager struct {
	cmd         *exec.Cmd
	pty         *os.File
	mu          sync.Mutex
	stopChan    chan struct{}
	wg          sync.WaitGroup
	restoreFunc func()
	log         *diag.Logger
}

// Ensure PTYManager implements PTY
var _ PTY = (*PTYManager)(nil)

// NewPTYManager creates a new PTY manager
func NewPTYManager(log *diag.Logger) *PTYManager {
	return &PTYManager{
		stopChan: make(chan struct{}),
		log:      log,
	}
}

// Start starts a process with PTY
func (p *PTYManager) Start(command string, args []string, env []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd != nil {
		return fmt.Errorf("process already started")
	}

	// #nosec G204 -- running the user's command is the purpose of exec mode
	p.cmd = exec.Command(command, args...)
	p.cmd.Env = env

	var err error
	p.pty, err = pty.Start(p.cmd)
	if err != nil {
		p.cmd = nil
		return fmt.Errorf("failed to start PTY: %w", err)
	}

	// Some environments don't have a terminal
	if err := p.copyTerminalSize(); err != nil {
		p.log.Debugf("failed to copy terminal size: %v", err)
	}

	p.wg.Add(1)
	go p.monitorTerminalSize()

	return nil
}

// GetPTY returns the PTY file descriptor
func (p *PTYManager) GetPTY() *os.File {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pty
}

// Wait waits for the process to complete. The PTY stays open so buffered
// output can still be drained; Stop closes it.
func (p *PTYManager) Wait() error {
	if p.cmd == nil {
		return fmt.Errorf("process not started")
	}

	err := p.cmd.Wait()

	close(p.stopChan)
	p.wg.Wait()

	return err
}

// ProcessState returns the process state
func (p *PTYManager) ProcessState() *os.ProcessState {
	if p.cmd == nil {
		return nil
	}
	return p.cmd.ProcessState
}

// Process returns the underlying process
func (p *PTYManager) Process() *os.Process {
	if p.cmd == nil {
		return nil
	}
	return p.cmd.Process
}

// Stop restores the terminal and closes the PTY
func (p *PTYManager) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.restoreFunc != nil {
		p.restoreFunc()
		p.restoreFunc = nil
	}

	if p.pty != nil {
		err := p.pty.Close()
		p.pty = nil
		return err
	}
	return nil
}

// copyTerminalSize copies the terminal size from stdin to the PTY
func (p *PTYManager) copyTerminalSize() error {
	size, err := pty.GetsizeFull(os.Stdin)
	if err != nil {
		return err
	}

	return pty.Setsize(p.pty, size)
}

// monitorTerminalSize monitors for terminal size changes
func (p *PTYManager) monitorTerminalSize() {
	defer p.wg.Done()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGWINCH)
	defer signal.Stop(sigChan)

	for {
		select {
		case <-sigChan:
			p.mu.Lock()
			if p.pty != nil {
				if err := p.copyTerminalSize(); err != nil {
					p.log.Errorf("failed to resize PTY: %v", err)
				}
			}
			p.mu.Unlock()
		case <-p.stopChan:
			return
		}
	}
}

// CopyIO copies stdin to the PTY and the PTY to stdout, handing every output
// chunk to outputHandler. It returns once the PTY output is exhausted; the
// stdin copy is left running because it blocks on the user's terminal.
func (p *PTYManager) CopyIO(stdin io.Reader, stdout io.Writer, outputHandler func([]byte)) error {
	p.mu.Lock()
	if p.pty == nil {
		p.mu.Unlock()
		return fmt.Errorf("PTY not initialized")
	}
	ptyFile := p.pty
	p.mu.Unlock()

	if file, ok := stdin.(*os.File); ok && IsTerminal(int(file.Fd())) {
		if restore, err := setRawMode(int(file.Fd())); err == nil {
			p.mu.Lock()
			p.restoreFunc = restore
			p.mu.Unlock()
		} else {
			p.log.Debugf("failed to set raw mode: %v", err)
		}
	}

	if stdin != nil {
		go func() {
			if _, err := io.Copy(ptyFile, stdin); err != nil && !isClosedPTY(err) {
				p.log.Debugf("stdin copy error: %v", err)
			}
		}()
	}

	reader := io.Reader(ptyFile)
	if outputHandler != nil {
		reader = &outputReader{reader: ptyFile, handler: outputHandler}
	}
	if _, err := io.Copy(stdout, reader); err != nil && !isClosedPTY(err) {
		return fmt.Errorf("stdout copy error: %w", err)
	}
	return nil
}

// isClosedPTY reports errors that mean the other side of the PTY went away.
// Linux returns EIO from the master once the child has exited.
func isClosedPTY(err error) bool {
	return errors.Is(err, syscall.EIO) || errors.Is(err, os.ErrClosed)
}

// outputReader wraps a reader and calls a handler for each chunk of data
type outputReader struct {
	reader  io.Reader
	handler func([]byte)
}

func (r *outputReader) Read(p []byte) (n int, err error) {
	n, err = r.reader.Read(p)
	if n > 0 {
		chunk := make([]byte, n)
		copy(chunk, p[:n])
		r.handler(chunk)
	}
	return n, err
}
