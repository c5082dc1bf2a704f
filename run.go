package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dlsim/config"
	"dlsim/downloads"
	"dlsim/si"

	"github.com/schollz/progressbar/v3"
)

const (
	defaultBatchCount = 3
	pollInterval      = 100 * time.Millisecond
)

func runBatch(args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)

	configPath := fs.String("config", "", "YAML configuration file")
	maxConcurrent := fs.Int("max", 0, "Maximum simultaneous downloads (default 2)")
	count := fs.Int("n", 0, "Number of generated downloads (default 3 when no seeds are configured)")
	size := fs.String("size", "", "Size of generated downloads, e.g. 25 (MB) or 512KB")
	speed := fs.String("speed", "", "Speed of generated downloads in KB/s")
	bandwidth := fs.String("bandwidth", "", "Overall bandwidth limit, e.g. 2MB (0 = unlimited)")
	logLevel := fs.String("log-level", "", "debug, info, warn or error")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: dlsim run [options]

Submit the configured seed downloads (or -n generated ones) and render
overall progress until every download has finished.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}

	override := config.Config{MaxConcurrent: *maxConcurrent, LogLevel: *logLevel}
	if *bandwidth != "" {
		limit, err := config.ParseRate(*bandwidth)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: -bandwidth: %v\n", err)
			return ExitInvalidArgs
		}
		override.BandwidthLimit = limit
	}
	cfg, err := loadConfig(*configPath, override)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	mgr := newManager(cfg, newLogger(cfg, os.Stderr))
	descs := cfg.SeedDescriptors(mgr.NextSeq)
	if *count > 0 || len(descs) == 0 {
		n := *count
		if n <= 0 {
			n = defaultBatchCount
		}
		defaults := cfg.Defaults()
		for i := 0; i < n; i++ {
			descs = append(descs, defaults.Descriptor("", *size, *speed, mgr.NextSeq()))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runDescriptors(ctx, mgr, descs)
}

func runDescriptors(ctx context.Context, mgr *downloads.Manager, descs []downloads.Descriptor) int {
	var total int64
	for _, d := range descs {
		mgr.CreateAndSubmit(d)
		total += d.TotalBytes
	}

	bar := progressbar.NewOptions64(max(total, 1),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(fmt.Sprintf("0/%d done", len(descs))),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionThrottle(pollInterval),
		progressbar.OptionFullWidth(),
	)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr, "\n[dlsim] Received interrupt, shutting down...")
			mgr.Shutdown()
			_ = mgr.Wait()
			printSummary(mgr)
			return ExitInterrupted
		case <-ticker.C:
		}

		st := mgr.Stats()
		_ = bar.Set64(st.DownloadedBytes)
		bar.Describe(fmt.Sprintf("%d/%d done, %d running", st.Completed+st.Cancelled, st.Total, st.Downloading))
		if st.Active == 0 {
			_ = bar.Finish()
			_ = mgr.Wait()
			printSummary(mgr)
			return ExitSuccess
		}
	}
}

func printSummary(mgr *downloads.Manager) {
	fmt.Fprintln(os.Stderr)
	for _, t := range mgr.Tasks() {
		s := t.Snapshot()
		took := "-"
		if s.StartedAt != nil && s.FinishedAt != nil {
			took = s.FinishedAt.Sub(*s.StartedAt).Round(10 * time.Millisecond).String()
		}
		fmt.Fprintf(os.Stderr, "%-20s %10s  %-10s %s\n",
			s.Name, si.NewBytes(s.TotalBytes).Binary(), s.Status, took)
	}
}
