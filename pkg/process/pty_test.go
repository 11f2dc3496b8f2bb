package process

import (
	"bytes"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"
)

func skipWithoutPTY(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" || os.Getenv("CI") == "true" {
		t.Skip("PTY tests require Unix environment")
	}
}

func TestPTYManager_StartAndWait(t *testing.T) {
	skipWithoutPTY(t)

	ptyMgr := NewPTYManager(nil)

	if err := ptyMgr.Start("echo", []string{"hello world"}, os.Environ()); err != nil {
		t.Fatalf("failed to start: %v", err)
	}
	if ptyMgr.GetPTY() == nil {
		t.Fatal("PTY is nil")
	}

	if err := ptyMgr.Wait(); err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	if ptyMgr.ProcessState() == nil {
		t.Error("ProcessState is nil")
	}

	if err := ptyMgr.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if ptyMgr.GetPTY() != nil {
		t.Error("PTY should be nil after Stop")
	}
}

func TestPTYManager_CopyIO(t *testing.T) {
	skipWithoutPTY(t)

	ptyMgr := NewPTYManager(nil)
	if err := ptyMgr.Start("sh", []string{"-c", "echo 10.0.0.1; sleep 0.2"}, os.Environ()); err != nil {
		t.Fatalf("failed to start: %v", err)
	}

	var mu sync.Mutex
	var handled []byte
	handler := func(data []byte) {
		mu.Lock()
		handled = append(handled, data...)
		mu.Unlock()
	}

	output := &bytes.Buffer{}
	done := make(chan error, 1)
	go func() {
		done <- ptyMgr.CopyIO(strings.NewReader(""), output, handler)
	}()

	_ = ptyMgr.Wait()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("CopyIO() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("CopyIO did not complete in time")
	}
	_ = ptyMgr.Stop()

	mu.Lock()
	defer mu.Unlock()
	if !strings.Contains(string(handled), "10.0.0.1") {
		t.Errorf("handler got %q, want it to contain 10.0.0.1", handled)
	}
	if !bytes.Equal(handled, output.Bytes()) {
		t.Errorf("stdout got %q, handler got %q", output.Bytes(), handled)
	}
}

func TestPTYManager_StartErrors(t *testing.T) {
	tests := []struct {
		name    string
		command string
		args    []string
		wantErr bool
	}{
		{
			name:    "invalid command",
			command: "/nonexistent/command",
			args:    []string{},
			wantErr: true,
		},
		{
			name:    "valid command",
			command: "true",
			args:    []string{},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			skipWithoutPTY(t)

			ptyMgr := NewPTYManager(nil)
			err := ptyMgr.Start(tt.command, tt.args, os.Environ())

			if tt.wantErr {
				if err == nil {
					t.Error("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			_ = ptyMgr.Wait()
			_ = ptyMgr.Stop()
		})
	}
}

func TestPTYManager_DoubleStart(t *testing.T) {
	skipWithoutPTY(t)

	ptyMgr := NewPTYManager(nil)

	if err := ptyMgr.Start("sleep", []string{"1"}, os.Environ()); err != nil {
		t.Fatalf("first start failed: %v", err)
	}

	err := ptyMgr.Start("echo", []string{"test"}, os.Environ())
	if err == nil {
		t.Error("expected error on second start")
	} else if !strings.Contains(err.Error(), "already started") {
		t.Errorf("unexpected error message: %v", err)
	}

	_ = ptyMgr.Process().Signal(syscall.SIGTERM)
	_ = ptyMgr.Wait()
	_ = ptyMgr.Stop()
}

func TestPTYManager_WaitWithoutStart(t *testing.T) {
	ptyMgr := NewPTYManager(nil)

	err := ptyMgr.Wait()
	if err == nil {
		t.Error("expected error when waiting without start")
	} else if !strings.Contains(err.Error(), "not started") {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestPTYManager_ProcessMethods(t *testing.T) {
	ptyMgr := NewPTYManager(nil)

	if ptyMgr.Process() != nil {
		t.Error("Process should be nil before start")
	}
	if ptyMgr.ProcessState() != nil {
		t.Error("ProcessState should be nil before start")
	}
	if ptyMgr.GetPTY() != nil {
		t.Error("PTY should be nil before start")
	}
	if err := ptyMgr.CopyIO(nil, io.Discard, nil); err == nil {
		t.Error("CopyIO should fail before start")
	}
}

func TestOutputReader(t *testing.T) {
	r, w := io.Pipe()
	defer func() { _ = r.Close() }()

	var handlerData [][]byte
	reader := &outputReader{
		reader: r,
		handler: func(data []byte) {
			handlerData = append(handlerData, data)
		},
	}

	testData := []byte("test data")
	go func() {
		_, _ = w.Write(testData)
		_ = w.Close()
	}()

	result := make([]byte, len(testData))
	n, err := reader.Read(result)

	if err != nil && err != io.EOF {
		t.Errorf("unexpected error: %v", err)
	}
	if n != len(testData) {
		t.Errorf("expected %d bytes but got %d", len(testData), n)
	}
	if !bytes.Equal(result[:n], testData) {
		t.Errorf("expected %q but got %q", testData, result[:n])
	}

	if len(handlerData) != 1 {
		t.Fatalf("expected 1 handler call but got %d", len(handlerData))
	}
	// the handler owns its chunk
	result[0] = 'X'
	if !bytes.Equal(handlerData[0], testData) {
		t.Errorf("handler got %q but expected %q", handlerData[0], testData)
	}
}

func TestIsClosedPTY(t *testing.T) {
	if !isClosedPTY(&os.PathError{Op: "read", Path: "/dev/ptmx", Err: syscall.EIO}) {
		t.Error("EIO should count as a closed PTY")
	}
	if !isClosedPTY(os.ErrClosed) {
		t.Error("ErrClosed should count as a closed PTY")
	}
	if isClosedPTY(io.ErrUnexpectedEOF) {
		t.Error("unexpected EOF is a real error")
	}
}
