// Package main is the entry point for the stormline line editor.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/dshills/stormline/internal/app"
	"github.com/dshills/stormline/internal/config"
	"github.com/dshills/stormline/internal/logging"
	"github.com/dshills/stormline/internal/terminal"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

type options struct {
	configPath string
	logLevel   string
	logFile    string
	noWatch    bool
	echo       bool
}

func main() {
	os.Exit(run())
}

func run() int {
	opts := parseFlags()

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprintln(os.Stderr, "Error: stormline needs an interactive terminal")
		return 1
	}

	loader := config.NewLoader(opts.configPath)
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load configuration: %v\n", err)
		return 1
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if opts.logFile != "" {
		cfg.Logging.File = opts.logFile
	}

	log, closeLog := newLogger(cfg.Logging)
	defer closeLog()

	tty, err := terminal.Open()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open terminal: %v\n", err)
		return 1
	}
	defer tty.Close()
	if err := tty.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to start terminal: %v\n", err)
		return 1
	}

	application, err := app.New(app.Options{
		Config:  cfg,
		Output:  tty,
		Display: tty,
		Logger:  log,
		Prompt:  app.CurrentPromptInfo(),
		OnAccept: func(command string) {
			if opts.echo {
				fmt.Fprintf(tty, "%s\r\n", strings.ReplaceAll(command, "\n", "\r\n"))
			}
		},
	})
	if err != nil {
		_ = tty.Stop()
		fmt.Fprintf(os.Stderr, "Error: failed to initialize: %v\n", err)
		return 1
	}
	defer application.Close()

	tty.OnResize(application.Resize)

	if !opts.noWatch {
		watcher, err := config.NewWatcher(loader,
			func(cfg *config.Config) {
				if err := application.ApplyConfig(cfg); err != nil {
					log.Warn("configuration rejected: %v", err)
				}
			},
			config.WithErrorHandler(func(err error) {
				log.Warn("configuration reload failed: %v", err)
			}),
		)
		if err != nil {
			log.Warn("configuration watcher disabled: %v", err)
		} else {
			defer watcher.Close()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx, tty.Events(ctx)); err != nil && !errors.Is(err, app.ErrQuit) {
		_ = tty.Stop()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// newLogger writes to the rotating log file when one is configured.
// Without one, diagnostics are discarded so they never corrupt the display.
func newLogger(cfg config.LoggingConfig) (*logging.Logger, func()) {
	var out io.Writer = io.Discard
	closeFn := func() {}
	if cfg.File != "" {
		f := logging.NewFile(logging.FileConfig{
			Path:       cfg.File,
			MaxSizeMB:  cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		})
		out = f
		closeFn = func() { _ = f.Close() }
	}
	return logging.New(logging.Config{
		Level:  logging.ParseLevel(cfg.Level),
		Output: out,
		Prefix: "stormline",
	}), closeFn
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "stormline.toml"
	}
	return filepath.Join(dir, "stormline", "config.toml")
}

func parseFlags() options {
	var opts options
	var showVersion bool
	var showHelp bool

	flag.StringVar(&opts.configPath, "config", defaultConfigPath(), "Path to configuration file (TOML or YAML)")
	flag.StringVar(&opts.configPath, "c", defaultConfigPath(), "Path to configuration file (shorthand)")
	flag.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.StringVar(&opts.logFile, "log-file", "", "Write diagnostics to a rotating log file")
	flag.BoolVar(&opts.noWatch, "no-watch", false, "Do not reload the configuration file on change")
	flag.BoolVar(&opts.echo, "echo", true, "Print accepted commands")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showVersion, "v", false, "Show version information (shorthand)")
	flag.BoolVar(&showHelp, "help", false, "Show help message")
	flag.BoolVar(&showHelp, "h", false, "Show help message (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Stormline - incremental terminal line editor\n\n")
		fmt.Fprintf(os.Stderr, "Usage: stormline [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  stormline                         Edit with the default configuration\n")
		fmt.Fprintf(os.Stderr, "  stormline -c ./stormline.yaml     Use a YAML configuration\n")
		fmt.Fprintf(os.Stderr, "  stormline -log-file /tmp/sl.log   Log diagnostics to a file\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if showVersion {
		fmt.Printf("Stormline %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		os.Exit(0)
	}

	switch opts.logLevel {
	case "", "debug", "info", "warn", "error":
	default:
		fmt.Fprintf(os.Stderr, "Error: invalid log level %q (must be debug, info, warn, or error)\n", opts.logLevel)
		os.Exit(1)
	}

	return opts
}
