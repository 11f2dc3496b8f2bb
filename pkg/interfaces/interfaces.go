// Package interfaces defines the core interfaces used throughout the application.
package interfaces

import "github.com/Veraticus/linescan/pkg/types"

// ProcessWrapper wraps and monitors a process.
type ProcessWrapper interface {
	Start(command string, args []string) error
	Wait() error
	ExitCode() int
}

// OutputHandler processes output lines.
type OutputHandler interface {
	HandleLine(line string)
}

// DataHandler processes raw output data.
type DataHandler interface {
	OutputHandler
	HandleData(data []byte)
}

// RecordWriter receives projected lines.
type RecordWriter interface {
	Write(record types.LineRecord) error
}
