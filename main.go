package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"dlsim/config"
	"dlsim/downloads"
	"dlsim/logging"
)

// Exit codes
const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitInvalidArgs  = 2
	ExitInterrupted  = 130
)

const appName = "dlsim"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return ExitInvalidArgs
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "run":
		return runBatch(cmdArgs)
	case "serve":
		return runServe(cmdArgs)
	case "tui":
		return runTUI(cmdArgs)
	case "help", "-h", "--help":
		printUsage()
		return ExitSuccess
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		return ExitInvalidArgs
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: dlsim <command> [options]

Commands:
  run    Submit simulated downloads and show overall progress until done
  serve  Expose the download manager over HTTP, SSE and WebSocket
  tui    Interactive table of downloads

Configuration is read from -config (YAML) and DLSIM_* environment variables.
Run 'dlsim <command> -h' for command-specific help.`)
}

// loadConfig applies file, then environment, then flag overrides.
func loadConfig(path string, override config.Config) (config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.LoadFromFile(path); err != nil {
			return config.Config{}, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return config.Config{}, err
	}
	cfg = cfg.Merge(override)
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newManager(cfg config.Config, log *slog.Logger) *downloads.Manager {
	return downloads.NewManager(downloads.Options{
		MaxConcurrent:  cfg.MaxConcurrent,
		BandwidthLimit: cfg.BandwidthLimit,
		Logger:         log,
	})
}

func newLogger(cfg config.Config, w io.Writer) *slog.Logger {
	return logging.New(appName, cfg.LogLevel, w)
}
