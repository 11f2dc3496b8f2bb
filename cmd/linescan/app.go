package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/Veraticus/linescan/pkg/config"
	"github.com/Veraticus/linescan/pkg/diag"
	"github.com/Veraticus/linescan/pkg/follow"
	"github.com/Veraticus/linescan/pkg/interfaces"
	"github.com/Veraticus/linescan/pkg/monitor"
	"github.com/Veraticus/linescan/pkg/output"
	"github.com/Veraticus/linescan/pkg/process"
	"github.com/Veraticus/linescan/pkg/registry"
	"github.com/Veraticus/linescan/pkg/scanner"
	"github.com/Veraticus/linescan/pkg/types"
)

// Dependencies holds all the dependencies for the application
type Dependencies struct {
	Config         *config.Config
	Registry       *registry.Registry
	Output         *output.Manager
	OutputMonitor  *monitor.OutputMonitor
	ProcessManager interfaces.ProcessWrapper
	Log            *diag.Logger
}

// NewDependencies creates all dependencies with the given configuration.
// Text and JSON output go to stdout.
func NewDependencies(cfg *config.Config, stdout io.Writer, log *diag.Logger) (*Dependencies, error) {
	var opts []registry.Option
	for kind, expr := range cfg.Overrides() {
		opts = append(opts, registry.WithExpression(kind, expr))
	}
	reg, err := registry.Build(cfg.EnabledKinds(), opts...)
	if err != nil {
		return nil, fmt.Errorf("build pattern database: %w", err)
	}

	sink, err := output.Open(cfg.Output, stdout)
	if err != nil {
		return nil, fmt.Errorf("open output: %w", err)
	}

	deps := &Dependencies{
		Config:   cfg,
		Registry: reg,
		Output:   output.NewManager(sink, cfg.BatchWindow, cfg.Output.All, log),
		Log:      log,
	}

	deps.OutputMonitor, err = monitor.NewOutputMonitor(reg, deps.Output, log)
	if err != nil {
		_ = deps.Output.Close()
		return nil, err
	}
	deps.ProcessManager = process.NewManager(deps.OutputMonitor, log)

	return deps, nil
}

// Close flushes pending output and closes the sink
func (d *Dependencies) Close() error {
	if d.Output != nil {
		return d.Output.Close()
	}
	return nil
}

// Application represents the main application
type Application struct {
	deps *Dependencies
}

// NewApplication creates a new application with the given dependencies
func NewApplication(deps *Dependencies) *Application {
	return &Application{
		deps: deps,
	}
}

// workers resolves the configured worker count; 0 means one per CPU.
func (a *Application) workers() int {
	if a.deps.Config.Workers > 0 {
		return a.deps.Config.Workers
	}
	return runtime.NumCPU()
}

// Scan scans every file in turn, or stdin when files is empty. With follow
// set, the single file keeps being watched after its current content has been
// scanned.
func (a *Application) Scan(ctx context.Context, files []string, stdin io.Reader) error {
	if a.deps.Config.Follow && len(files) != 1 {
		return fmt.Errorf("--follow needs exactly one file")
	}

	if len(files) == 0 {
		_, _, err := a.scanReader(ctx, "", stdin, false)
		return err
	}

	for _, name := range files {
		// #nosec G304 -- input files are named by the user
		f, err := os.Open(name)
		if err != nil {
			return err
		}
		lines, offset, err := a.scanReader(ctx, name, f, a.deps.Config.Follow)
		_ = f.Close()
		if err != nil {
			return err
		}

		if a.deps.Config.Follow {
			return a.follow(ctx, name, lines, offset)
		}
	}
	return nil
}

// follow tails name past offset, numbering lines after the ones already
// scanned.
func (a *Application) follow(ctx context.Context, name string, lines int, offset int64) error {
	mon := a.deps.OutputMonitor
	mon.SetSource(name)
	mon.SetLineOffset(lines)

	a.deps.Log.Debugf("following %s from byte %d", name, offset)
	if err := follow.New(name, offset, mon, a.deps.Log).Run(ctx); err != nil {
		return err
	}
	mon.Flush()
	return mon.Err()
}

// scanReader scans r in sessions of at most scanner.MaxLines lines. It returns
// the number of lines scanned and the bytes they covered. With holdPartial a
// trailing line without newline is left unscanned for the follower.
func (a *Application) scanReader(ctx context.Context, source string, r io.Reader, holdPartial bool) (int, int64, error) {
	br := bufio.NewReader(r)
	chunk := make([]string, 0, 1024)
	var (
		total    int
		consumed int64
	)

	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}
		results, err := scanner.Extract(ctx, a.deps.Registry, chunk, a.workers(), a.deps.Log)
		if err != nil {
			return err
		}
		for i, result := range results {
			record := types.LineRecord{
				Source: source,
				Index:  total + i + 1,
				Text:   chunk[i],
				Result: result,
			}
			if err := a.deps.Output.Write(record); err != nil {
				return fmt.Errorf("write line %d: %w", record.Index, err)
			}
		}
		total += len(chunk)
		chunk = chunk[:0]
		return nil
	}

	for {
		line, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return total, consumed, err
		}
		complete := strings.HasSuffix(line, "\n")
		if line != "" && (complete || !holdPartial) {
			consumed += int64(len(line))
			line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
			chunk = append(chunk, line)
			if len(chunk) == scanner.MaxLines {
				if err := flush(); err != nil {
					return total, consumed, err
				}
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
	}

	if err := flush(); err != nil {
		return total, consumed, err
	}
	return total, consumed, nil
}

// Exec runs command in a PTY and scans its output as it is produced
func (a *Application) Exec(command string, args []string) error {
	a.deps.OutputMonitor.SetSource(command)
	a.deps.OutputMonitor.SetStripEscapes(true)

	if err := a.deps.ProcessManager.Start(command, args); err != nil {
		return err
	}
	err := a.deps.ProcessManager.Wait()
	a.deps.OutputMonitor.Flush()
	return err
}

// Stop gracefully stops the wrapped process
func (a *Application) Stop() error {
	if stopper, ok := a.deps.ProcessManager.(interface{ Stop() error }); ok {
		return stopper.Stop()
	}
	return nil
}

// ExitCode returns the exit code of the wrapped process
func (a *Application) ExitCode() int {
	return a.deps.ProcessManager.ExitCode()
}
