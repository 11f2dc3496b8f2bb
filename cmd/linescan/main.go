package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/Veraticus/linescan/pkg/config"
	"github.com/Veraticus/linescan/pkg/diag"
	"github.com/Veraticus/linescan/pkg/process"
	"github.com/Veraticus/linescan/pkg/types"
)

// options holds the command line flags
type options struct {
	configPath string
	kinds      string
	format     string
	database   string
	workers    int
	follow     bool
	all        bool
	debug      bool
	help       bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func newFlagSet(opts *options, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("linescan", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&opts.configPath, "config", "", "Path to config file (.yaml or .toml)")
	fs.StringVar(&opts.kinds, "kinds", "", "Comma-separated fields to extract (e.g. ip,email)")
	fs.StringVar(&opts.format, "format", "", "Output format: text, json or sqlite")
	fs.StringVar(&opts.database, "db", "", "SQLite database path for --format sqlite")
	fs.IntVar(&opts.workers, "workers", 0, "Scan workers (0 = one per CPU)")
	fs.BoolVar(&opts.follow, "follow", false, "Keep watching the file for appended lines")
	fs.BoolVar(&opts.all, "all", false, "Also print lines without matches")
	fs.BoolVar(&opts.debug, "debug", false, "Print debug output to stderr")
	fs.BoolVar(&opts.help, "help", false, "Show help message")
	return fs
}

// run executes linescan and returns the process exit code
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	execMode := len(args) > 0 && args[0] == "exec"
	if execMode {
		args = args[1:]
	}

	var opts options
	fs := newFlagSet(&opts, stderr)
	// everything after the command name belongs to the command
	fs.SetInterspersed(!execMode)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if opts.help {
		printUsage(stdout, fs)
		return 0
	}
	if execMode && fs.NArg() == 0 {
		fmt.Fprintf(stderr, "Error: exec needs a command\n")
		return 1
	}

	// The config path has to be known before loading
	if opts.configPath != "" {
		if err := os.Setenv("LINESCAN_CONFIG", opts.configPath); err != nil {
			fmt.Fprintf(stderr, "Error setting config path: %v\n", err)
			return 1
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return 1
	}
	if err := applyFlags(cfg, fs, &opts); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	log := diag.New(stderr, cfg.Debug)

	deps, err := NewDependencies(cfg, stdout, log)
	if err != nil {
		fmt.Fprintf(stderr, "Error creating dependencies: %v\n", err)
		return 1
	}
	app := NewApplication(deps)

	if execMode {
		return runExec(app, fs.Args(), stderr)
	}

	code := runScan(app, fs.Args(), stdin, stderr)
	if err := deps.Close(); err != nil {
		fmt.Fprintf(stderr, "Error closing output: %v\n", err)
		if code == 0 {
			code = 1
		}
	}
	return code
}

// applyFlags overrides cfg with the flags that were set and validates the result
func applyFlags(cfg *config.Config, fs *flag.FlagSet, opts *options) error {
	if fs.Changed("kinds") {
		set, err := types.ParseKindSet(opts.kinds)
		if err != nil {
			return err
		}
		if set.Empty() {
			return fmt.Errorf("--kinds selects no pattern")
		}
		cfg.SetKinds(set)
	}
	if fs.Changed("format") {
		cfg.Output.Format = opts.format
	}
	if fs.Changed("db") {
		cfg.Output.Database = opts.database
	}
	if fs.Changed("workers") {
		cfg.Workers = opts.workers
	}
	if opts.follow {
		cfg.Follow = true
	}
	if opts.all {
		cfg.Output.All = true
	}
	if opts.debug {
		cfg.Debug = true
	}

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func runScan(app *Application, files []string, stdin io.Reader, stderr io.Writer) int {
	if len(files) == 0 {
		if f, ok := stdin.(*os.File); ok && process.IsTerminal(int(f.Fd())) {
			fmt.Fprintf(stderr, "Error: no input files and stdin is a terminal\n")
			return 1
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Scan(ctx, files, stdin); err != nil {
		if errors.Is(err, context.Canceled) {
			return 130
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func runExec(app *Application, command []string, stderr io.Writer) int {
	// Ensure terminal restoration on panic
	defer func() {
		if r := recover(); r != nil {
			_ = app.Stop() // Best effort terminal restoration
			panic(r)
		}
	}()

	runErr := app.Exec(command[0], command[1:])
	closeErr := app.deps.Close()

	code := app.ExitCode()
	if runErr != nil {
		// Only log if it's not an expected exit error
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			fmt.Fprintf(stderr, "Error running %s: %v\n", command[0], runErr)
			if code == 0 {
				code = 1
			}
		}
	}
	if closeErr != nil {
		fmt.Fprintf(stderr, "Error closing output: %v\n", closeErr)
		if code == 0 {
			code = 1
		}
	}
	return code
}

func printUsage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintln(w, "linescan - extract emails, IPs, quoted strings, dates, phone numbers, user agents and URLs from text")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  linescan [OPTIONS] [FILE...]")
	fmt.Fprintln(w, "  linescan exec [OPTIONS] -- COMMAND [ARGS...]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Options:")
	fmt.Fprint(w, fs.FlagUsages())
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Fields: email, ip, quoted, date, phone, user_agent, url")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Environment Variables:")
	fmt.Fprintln(w, "  LINESCAN_CONFIG        Path to config file")
	fmt.Fprintln(w, "  LINESCAN_KINDS         Fields to extract (comma-separated)")
	fmt.Fprintln(w, "  LINESCAN_WORKERS       Scan workers")
	fmt.Fprintln(w, "  LINESCAN_FORMAT        Output format")
	fmt.Fprintln(w, "  LINESCAN_BATCH_WINDOW  Group output within this window (e.g. 500ms)")
	fmt.Fprintln(w, "  LINESCAN_DEBUG         Enable debug output (true/false)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Configuration file: ~/.config/linescan/config.yaml")
}
