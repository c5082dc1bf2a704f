package downloads

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

const DefaultMaxConcurrent = 2

// Options configures a Manager.
type Options struct {
	// MaxConcurrent is the initial admission capacity.
	// Default: DefaultMaxConcurrent. Values below 1 are clamped to 1 by
	// SetMaxConcurrent.
	MaxConcurrent int

	// BandwidthLimit caps the summed transfer rate of all tasks in bytes per
	// second. 0 means unlimited.
	BandwidthLimit int64

	// Logger receives manager and task logs. Default: discarded.
	Logger *slog.Logger

	// Hub receives task events. Default: a new Hub.
	Hub *Hub

	// Now overrides the clock used for timestamps (for tests).
	Now func() time.Time
}

// Stats aggregates every registered task.
type Stats struct {
	Total           int     `json:"total"`
	Active          int     `json:"active"`
	Queued          int     `json:"queued"`
	Downloading     int     `json:"downloading"`
	Paused          int     `json:"paused"`
	Completed       int     `json:"completed"`
	Cancelled       int     `json:"cancelled"`
	TotalBytes      int64   `json:"total_bytes"`
	DownloadedBytes int64   `json:"downloaded_bytes"`
	Fraction        float64 `json:"fraction"`
	MaxConcurrent   int     `json:"max_concurrent"`
	BandwidthLimit  int64   `json:"bandwidth_limit"`
}

// Manager creates tasks, schedules each on its own goroutine and owns the
// current admission controller.
type Manager struct {
	ctrl      atomic.Pointer[AdmissionController]
	registry  *Registry
	hub       *Hub
	bandwidth *Bandwidth
	log       *slog.Logger
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	seq    atomic.Int64

	mu       sync.Mutex // guards closed, draining and scheduling
	closed   bool
	draining bool
	group    errgroup.Group
}

func NewManager(opts Options) *Manager {
	if opts.MaxConcurrent == 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Hub == nil {
		opts.Hub = NewHub()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		registry:  NewRegistry(),
		hub:       opts.Hub,
		bandwidth: NewBandwidth(opts.BandwidthLimit),
		log:       opts.Logger,
		now:       opts.Now,
		ctx:       ctx,
		cancel:    cancel,
	}
	m.ctrl.Store(NewAdmissionController(opts.MaxConcurrent))
	return m
}

// NextSeq returns the next number for a generated download name. Numbers are
// never reused, even after Prune.
func (m *Manager) NextSeq() int {
	return int(m.seq.Add(1))
}

// CreateAndSubmit registers a task bound to the current controller and
// schedules it. It never blocks. Once Shutdown or Wait has been called the
// task is registered but goes straight to cancelled.
func (m *Manager) CreateAndSubmit(d Descriptor) *Task {
	t := newTask(m.ctx, d, m.ctrl.Load(), taskEnv{
		bandwidth: m.bandwidth,
		hub:       m.hub,
		log:       m.log,
		now:       m.now,
	})
	m.registry.Add(t)
	t.publish(EventCreated)

	m.mu.Lock()
	if m.closed || m.draining {
		m.mu.Unlock()
		t.abandon()
		m.log.Warn("download submitted after the manager stopped accepting work",
			slog.String("task", t.ID().String()))
		return t
	}
	m.group.Go(func() error {
		t.Run()
		return nil
	})
	m.mu.Unlock()

	m.log.Info("download submitted",
		slog.String("task", t.ID().String()),
		slog.String("name", t.Title()),
		slog.Int64("total", t.TotalBytes()),
		slog.Int("capacity", t.Controller().Capacity()),
	)
	return t
}

// SetMaxConcurrent swaps in a new controller with capacity max(1, n). Tasks
// created earlier keep the controller they were bound to.
func (m *Manager) SetMaxConcurrent(n int) {
	n = max(1, n)
	old := m.ctrl.Swap(m.ctrl.Load().WithCapacity(n))
	m.log.Info("max concurrent changed", slog.Int("from", old.Capacity()), slog.Int("to", n))
}

func (m *Manager) MaxConcurrent() int {
	return m.ctrl.Load().Capacity()
}

// Controller returns the instance new tasks will be bound to.
func (m *Manager) Controller() *AdmissionController {
	return m.ctrl.Load()
}

func (m *Manager) SetBandwidthLimit(bytesPerSec int64) {
	m.bandwidth.SetLimit(bytesPerSec)
	m.log.Info("bandwidth limit changed", slog.Int64("bytes_per_second", m.bandwidth.BytesPerSecond()))
}

func (m *Manager) BandwidthLimit() int64 {
	return m.bandwidth.BytesPerSecond()
}

// Hub exposes the event stream of all tasks.
func (m *Manager) Hub() *Hub {
	return m.hub
}

// Tasks returns every registered task in creation order.
func (m *Manager) Tasks() []*Task {
	return m.registry.List()
}

func (m *Manager) Get(id uuid.UUID) (*Task, bool) {
	return m.registry.Get(id)
}

func (m *Manager) Stats() Stats {
	snaps := lo.Map(m.registry.List(), func(t *Task, _ int) Snapshot {
		return t.Snapshot()
	})
	byStatus := lo.GroupBy(snaps, func(s Snapshot) Status {
		return s.Status
	})

	st := Stats{
		Total:       len(snaps),
		Queued:      len(byStatus[StatusQueued]),
		Downloading: len(byStatus[StatusDownloading]),
		Paused:      len(byStatus[StatusPaused]),
		Completed:   len(byStatus[StatusCompleted]),
		Cancelled:   len(byStatus[StatusCancelled]),
		Active: lo.CountBy(snaps, func(s Snapshot) bool {
			return s.Status.Active()
		}),
		TotalBytes: lo.SumBy(snaps, func(s Snapshot) int64 {
			return s.TotalBytes
		}),
		DownloadedBytes: lo.SumBy(snaps, func(s Snapshot) int64 {
			return s.DownloadedBytes
		}),
		MaxConcurrent:  m.MaxConcurrent(),
		BandwidthLimit: m.BandwidthLimit(),
	}
	if st.TotalBytes > 0 {
		st.Fraction = float64(st.DownloadedBytes) / float64(st.TotalBytes)
	}
	return st
}

// Prune evicts terminal tasks from the registry and reports how many were
// removed. Nothing is evicted implicitly.
func (m *Manager) Prune() int {
	evicted := m.registry.Evict(func(t *Task) bool {
		return t.Status().Terminal()
	})
	for _, t := range evicted {
		m.hub.Publish(Event{Kind: EventRemoved, Task: t.Snapshot(), At: m.now()})
	}
	if len(evicted) > 0 {
		m.log.Info("pruned finished downloads", slog.Int("count", len(evicted)))
	}
	return len(evicted)
}

// Shutdown cancels every registered task and stops scheduling. It does not
// wait; use Wait to observe completion.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	already := m.closed
	m.closed = true
	m.mu.Unlock()

	tasks := m.registry.List()
	for _, t := range tasks {
		t.Cancel()
	}
	m.cancel()
	if !already {
		m.log.Info("shutdown requested", slog.Int("tasks", len(tasks)))
	}
}

// Wait stops scheduling and blocks until every scheduled task has returned.
// Tasks submitted after Wait begins are cancelled without running.
func (m *Manager) Wait() error {
	m.mu.Lock()
	m.draining = true
	m.mu.Unlock()
	return m.group.Wait()
}
