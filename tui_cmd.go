package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"dlsim/config"
	"dlsim/logging"
	"dlsim/tui"

	tea "github.com/charmbracelet/bubbletea"
)

func runTUI(args []string) int {
	fs := flag.NewFlagSet("tui", flag.ExitOnError)

	configPath := fs.String("config", "", "YAML configuration file")
	maxConcurrent := fs.Int("max", 0, "Maximum simultaneous downloads (default 2)")
	logFile := fs.String("log", "", "Write logs to this file (discarded by default)")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: dlsim tui [options]

Interactive table: up/down select, a add, p pause, r resume, c cancel,
+/- concurrency, x prune finished, q quit.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}

	cfg, err := loadConfig(*configPath, config.Config{MaxConcurrent: *maxConcurrent})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	log := logging.Discard()
	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening log file: %v\n", err)
			return ExitGeneralError
		}
		defer f.Close()
		log = newLogger(cfg, f)
	}

	mgr := newManager(cfg, log)
	for _, d := range cfg.SeedDescriptors(mgr.NextSeq) {
		mgr.CreateAndSubmit(d)
	}

	err = tui.Run(context.Background(), mgr, cfg.Defaults(), nil, os.Stdout)
	mgr.Shutdown()
	_ = mgr.Wait()

	switch {
	case errors.Is(err, tea.ErrProgramKilled):
		return ExitInterrupted
	case err != nil:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitGeneralError
	}
	return ExitSuccess
}
