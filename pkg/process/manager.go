// Package process runs a command under a PTY and feeds its output to a
// data handler.
package process

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Veraticus/linescan/pkg/diag"
	"github.com/Veraticus/linescan/pkg/interfaces"
)

// WrappedEnv is set in the child's environment to refuse nested wrapping.
const WrappedEnv = "LINESCAN_WRAPPED"

// drainTimeout bounds how long Wait keeps reading output after the child
// exits, e.g. when a grandchild still holds the PTY open.
const drainTimeout = 2 * time.Second

// Manager manages the wrapped process
type Manager struct {
	ptyManager    PTY
	outputHandler interfaces.DataHandler
	stdin         io.Reader
	stdout        io.Writer
	log           *diag.Logger
	exitCode      int
	mu            sync.Mutex
	sigChan       chan os.Signal
	done          chan struct{}
	ioDone        chan struct{}
}

// Ensure Manager implements ProcessWrapper
var _ interfaces.ProcessWrapper = (*Manager)(nil)

// NewManager creates a new process manager wired to the process's own
// stdin and stdout.
func NewManager(outputHandler interfaces.DataHandler, log *diag.Logger) *Manager {
	return &Manager{
		ptyManager:    NewPTYManager(log),
		outputHandler: outputHandler,
		stdin:         os.Stdin,
		stdout:        os.Stdout,
		log:           log,
		done:          make(chan struct{}),
		ioDone:        make(chan struct{}),
	}
}

// Start starts the process
func (m *Manager) Start(command string, args []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Check for self-wrap
	if os.Getenv(WrappedEnv) == "1" {
		return fmt.Errorf("already wrapped by linescan")
	}

	env := append(os.Environ(), WrappedEnv+"=1")

	if err := m.ptyManager.Start(command, args, env); err != nil {
		return fmt.Errorf("failed to start process: %w", err)
	}

	go func() {
		defer close(m.ioDone)

		var handler func([]byte)
		if m.outputHandler != nil {
			handler = m.outputHandler.HandleData
		}
		if err := m.ptyManager.CopyIO(m.stdin, m.stdout, handler); err != nil {
			m.log.Errorf("I/O error: %v", err)
		}
	}()

	m.setupSignalForwarding()

	return nil
}

// Wait waits for the process to exit and for its output to be drained
func (m *Manager) Wait() error {
	if m.ptyManager == nil {
		return fmt.Errorf("process not started")
	}

	err := m.ptyManager.Wait()

	m.mu.Lock()
	if state := m.ptyManager.ProcessState(); state != nil {
		m.exitCode = state.ExitCode()
	}
	m.mu.Unlock()

	if m.ioDone != nil {
		select {
		case <-m.ioDone:
		case <-time.After(drainTimeout):
			m.log.Debugf("output still open %v after exit, closing", drainTimeout)
		}
	}

	// Ensure terminal is restored
	_ = m.ptyManager.Stop()

	close(m.done)
	m.cleanupSignals()

	return err
}

// ExitCode returns the exit code of the process
func (m *Manager) ExitCode() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exitCode
}

// setupSignalForwarding sets up signal forwarding to the child process
func (m *Manager) setupSignalForwarding() {
	m.sigChan = make(chan os.Signal, 1)
	signal.Notify(m.sigChan,
		syscall.SIGTERM,
		syscall.SIGINT,
		syscall.SIGHUP,
		syscall.SIGQUIT,
		syscall.SIGUSR1,
		syscall.SIGUSR2,
	)

	go m.forwardSignals()
}

// forwardSignals forwards signals to the child process
func (m *Manager) forwardSignals() {
	for {
		select {
		case sig, ok := <-m.sigChan:
			if !ok {
				return
			}
			if m.ptyManager != nil && m.ptyManager.Process() != nil {
				if err := m.ptyManager.Process().Signal(sig); err != nil && err != os.ErrProcessDone {
					m.log.Errorf("signal forward error: %v", err)
				}
			}
		case <-m.done:
			return
		}
	}
}

// cleanupSignals stops signal forwarding
func (m *Manager) cleanupSignals() {
	if m.sigChan != nil {
		signal.Stop(m.sigChan)
	}
}

// Stop restores the terminal and asks the child to terminate
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ptyManager != nil {
		_ = m.ptyManager.Stop()

		if m.ptyManager.Process() != nil {
			// Send SIGTERM first for graceful shutdown
			if err := m.ptyManager.Process().Signal(syscall.SIGTERM); err != nil && err != os.ErrProcessDone {
				return m.ptyManager.Process().Kill()
			}
		}
	}

	return nil
}
