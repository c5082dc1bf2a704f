package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dlsim/api"
	"dlsim/config"

	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 5 * time.Second

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)

	configPath := fs.String("config", "", "YAML configuration file")
	addr := fs.String("addr", "", "Listen address (default :11235)")
	maxConcurrent := fs.Int("max", 0, "Maximum simultaneous downloads (default 2)")
	logLevel := fs.String("log-level", "", "debug, info, warn or error")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: dlsim serve [options]

Run the download manager behind an HTTP API until interrupted.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}

	cfg, err := loadConfig(*configPath, config.Config{
		Addr:          *addr,
		MaxConcurrent: *maxConcurrent,
		LogLevel:      *logLevel,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	log := newLogger(cfg, os.Stderr)
	mgr := newManager(cfg, log)
	for _, d := range cfg.SeedDescriptors(mgr.NextSeq) {
		mgr.CreateAndSubmit(d)
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.NewRouter(api.New(mgr, cfg.Defaults(), log)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", slog.String("addr", cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	code := ExitSuccess
	select {
	case <-ctx.Done():
		log.Info("interrupt received, shutting down")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", slog.String("error", err.Error()))
			code = ExitGeneralError
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	mgr.Shutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", slog.String("error", err.Error()))
	}
	_ = mgr.Wait()
	log.Info("stopped", slog.Any("stats", mgr.Stats()))
	return code
}
