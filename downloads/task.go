package downloads

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VividCortex/ewma"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	minChunk          = 8 * 1024
	updatesPerSecond  = 10
	minPacing         = 10 * time.Millisecond
	pausePollInterval = 200 * time.Millisecond
	minElapsedSeconds = 1e-6
	progressLogEvery  = time.Second
)

const (
	msgQueued      = "Queued..."
	msgDownloading = "Downloading..."
	msgPaused      = "Paused"
	msgResuming    = "Resuming..."
	msgCancelled   = "Cancelled"
	msgCompleted   = "Completed"
)

var _ DownloadTask = (*Task)(nil)

// taskEnv carries the collaborators a manager hands to its tasks.
type taskEnv struct {
	bandwidth *Bandwidth
	hub       *Hub
	log       *slog.Logger
	now       func() time.Time
}

// Task is one simulated download. Progress fields are written only by the
// goroutine executing Run and may be read from anywhere.
type Task struct {
	id   uuid.UUID
	desc Descriptor
	ctrl *AdmissionController
	env  taskEnv

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	wake   chan struct{}

	started    atomic.Bool
	paused     atomic.Bool
	cancelled  atomic.Bool
	downloaded atomic.Int64
	rateBits   atomic.Uint64

	mu         sync.RWMutex
	status     Status
	message    string
	startedAt  time.Time
	finishedAt time.Time

	progressLog rate.Sometimes
}

// NewTask binds a task to ctrl without scheduling it; call Run to execute.
// Tasks are normally created through Manager.CreateAndSubmit.
func NewTask(desc Descriptor, ctrl *AdmissionController) *Task {
	return newTask(context.Background(), desc, ctrl, taskEnv{})
}

func newTask(parent context.Context, desc Descriptor, ctrl *AdmissionController, env taskEnv) *Task {
	if ctrl == nil {
		ctrl = NewAdmissionController(1)
	}
	if env.log == nil {
		env.log = slog.New(slog.DiscardHandler)
	}
	if env.now == nil {
		env.now = time.Now
	}
	desc = desc.normalized()
	id := uuid.New()
	env.log = env.log.With(slog.String("task", id.String()), slog.String("name", desc.Name))

	ctx, cancel := context.WithCancel(parent)
	return &Task{
		id:          id,
		desc:        desc,
		ctrl:        ctrl,
		env:         env,
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
		wake:        make(chan struct{}, 1),
		status:      StatusQueued,
		message:     msgQueued,
		progressLog: rate.Sometimes{Interval: progressLogEvery},
	}
}

func (t *Task) ID() uuid.UUID { return t.id }

func (t *Task) Title() string { return t.desc.Name }

func (t *Task) Descriptor() Descriptor { return t.desc }

func (t *Task) TotalBytes() int64 { return t.desc.TotalBytes }

func (t *Task) DownloadedBytes() int64 { return t.downloaded.Load() }

// Controller is the admission controller the task was bound to at creation.
func (t *Task) Controller() *AdmissionController { return t.ctrl }

// Done is closed once Run has returned and its permit, if any, is released.
func (t *Task) Done() <-chan struct{} { return t.done }

func (t *Task) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

func (t *Task) Message() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.message
}

func (t *Task) StartedAt() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.startedAt
}

// Fraction is downloaded/total in [0, 1]. An empty download reports 1 once
// completed and 0 before.
func (t *Task) Fraction() float64 {
	if t.desc.TotalBytes == 0 {
		if t.Status() == StatusCompleted {
			return 1
		}
		return 0
	}
	return float64(t.downloaded.Load()) / float64(t.desc.TotalBytes)
}

func (t *Task) Snapshot() Snapshot {
	t.mu.RLock()
	s := Snapshot{
		ID:         t.id,
		Name:       t.desc.Name,
		Status:     t.status,
		Message:    t.message,
		TotalBytes: t.desc.TotalBytes,
		SpeedBps:   t.desc.SpeedBytesPerSecond,
		StartedAt:  timeOrNil(t.startedAt),
		FinishedAt: timeOrNil(t.finishedAt),
	}
	t.mu.RUnlock()
	s.DownloadedBytes = t.downloaded.Load()
	s.RateBps = math.Float64frombits(t.rateBits.Load())
	switch {
	case s.TotalBytes > 0:
		s.Fraction = float64(s.DownloadedBytes) / float64(s.TotalBytes)
	case s.Status == StatusCompleted:
		s.Fraction = 1
	}
	return s
}

func timeOrNil(at time.Time) *time.Time {
	if at.IsZero() {
		return nil
	}
	return &at
}

// Pause asks the transfer loop to stop at its next check point. The chunk in
// flight is not interrupted.
func (t *Task) Pause() {
	t.paused.Store(true)
	t.mu.Lock()
	if t.status.Terminal() {
		t.mu.Unlock()
		return
	}
	if t.status == StatusDownloading {
		t.status = StatusPaused
	}
	t.message = msgPaused
	t.mu.Unlock()
	t.env.log.Debug("pause requested")
	t.publish(EventStatus)
}

// Resume clears a pending pause and wakes the loop. It is a no-op when the
// task is not paused.
func (t *Task) Resume() {
	if !t.paused.CompareAndSwap(true, false) {
		return
	}
	t.mu.Lock()
	switch t.status {
	case StatusPaused:
		t.status = StatusDownloading
		t.message = msgResuming
	case StatusQueued:
		t.message = msgQueued
	case StatusDownloading:
		t.message = msgResuming
	}
	t.mu.Unlock()

	select {
	case t.wake <- struct{}{}:
	default:
	}
	t.env.log.Debug("resume requested")
	t.publish(EventStatus)
}

// Cancel stops the task at its next check point. It interrupts a pending
// permit acquisition, a pause wait and a pacing wait. Safe to call at any
// time, any number of times.
func (t *Task) Cancel() {
	if !t.cancelled.CompareAndSwap(false, true) {
		return
	}
	t.cancel()
	t.env.log.Debug("cancel requested")
}

// Run executes the transfer simulation. It runs at most once; later calls
// return immediately.
func (t *Task) Run() {
	if !t.started.CompareAndSwap(false, true) {
		return
	}
	defer close(t.done)
	defer t.cancel()

	if err := t.ctrl.Acquire(t.ctx); err != nil {
		t.finish(StatusCancelled, msgCancelled)
		return
	}
	defer t.ctrl.Release()

	t.transfer()
}

// abandon finalizes a task that will never be scheduled.
func (t *Task) abandon() {
	if !t.started.CompareAndSwap(false, true) {
		return
	}
	t.Cancel()
	t.finish(StatusCancelled, msgCancelled)
	close(t.done)
}

func (t *Task) transfer() {
	bps := t.desc.SpeedBytesPerSecond
	total := t.desc.TotalBytes
	chunk := max(minChunk, bps/updatesPerSecond)
	speed := ewma.NewMovingAverage()

	start := t.begin()
	last := start
	var done int64
	for done < total {
		if t.cancelled.Load() {
			t.finish(StatusCancelled, msgCancelled)
			return
		}
		if t.paused.Load() {
			if !t.waitWhilePaused() {
				t.finish(StatusCancelled, msgCancelled)
				return
			}
			last = t.env.now()
		}
		if t.cancelled.Load() {
			t.finish(StatusCancelled, msgCancelled)
			return
		}

		step := min(chunk, total-done)
		if err := t.env.bandwidth.WaitN(t.ctx, step); err != nil {
			t.finish(StatusCancelled, msgCancelled)
			return
		}
		done += step
		t.downloaded.Store(done)

		now := t.env.now()
		if dt := now.Sub(last).Seconds(); dt > 0 {
			speed.Add(float64(step) / dt)
			t.rateBits.Store(math.Float64bits(speed.Value()))
		}
		last = now

		elapsed := now.Sub(start).Seconds()
		avg := max(1.0, float64(done)/max(minElapsedSeconds, elapsed))
		eta := float64(total-done) / avg
		t.setMessage(fmt.Sprintf("Downloading %.1f%% | ETA ~ %.1fs", 100*float64(done)/float64(total), eta))
		t.publish(EventProgress)
		t.progressLog.Do(func() {
			t.env.log.Debug("progress", slog.Int64("downloaded", done), slog.Int64("total", total), slog.Float64("eta_s", eta))
		})

		if !t.pace(pacing(step, bps)) {
			t.finish(StatusCancelled, msgCancelled)
			return
		}
	}

	if t.cancelled.Load() {
		t.finish(StatusCancelled, msgCancelled)
		return
	}
	t.downloaded.Store(total)
	t.finish(StatusCompleted, msgCompleted)
}

// pacing is how long a step of the given size takes at bps, at least minPacing.
func pacing(step, bps int64) time.Duration {
	ms := int64(1000 * float64(step) / float64(bps))
	return max(minPacing, time.Duration(ms)*time.Millisecond)
}

func (t *Task) pace(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-t.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// waitWhilePaused parks the loop until Resume or Cancel. It returns false
// when the task was cancelled.
func (t *Task) waitWhilePaused() bool {
	t.transition(StatusDownloading, StatusPaused, msgPaused)

	ticker := time.NewTicker(pausePollInterval)
	defer ticker.Stop()
	for t.paused.Load() {
		if t.cancelled.Load() {
			return false
		}
		select {
		case <-t.ctx.Done():
			return false
		case <-t.wake:
		case <-ticker.C:
		}
	}
	if t.cancelled.Load() {
		return false
	}
	t.transition(StatusPaused, StatusDownloading, "")
	return true
}

func (t *Task) begin() time.Time {
	now := t.env.now()
	t.mu.Lock()
	t.status = StatusDownloading
	t.message = msgDownloading
	t.startedAt = now
	t.mu.Unlock()
	t.env.log.Debug("transfer started", slog.Int64("total", t.desc.TotalBytes), slog.Int64("bps", t.desc.SpeedBytesPerSecond))
	t.publish(EventStatus)
	return now
}

func (t *Task) transition(from, to Status, msg string) {
	t.mu.Lock()
	if t.status != from {
		t.mu.Unlock()
		return
	}
	t.status = to
	if msg != "" {
		t.message = msg
	}
	t.mu.Unlock()
	t.publish(EventStatus)
}

// setMessage replaces the progress line unless a pause or a terminal state
// owns the message.
func (t *Task) setMessage(msg string) {
	t.mu.Lock()
	if t.status == StatusDownloading {
		t.message = msg
	}
	t.mu.Unlock()
}

func (t *Task) finish(status Status, msg string) {
	t.mu.Lock()
	if t.status.Terminal() {
		t.mu.Unlock()
		return
	}
	t.status = status
	t.message = msg
	t.finishedAt = t.env.now()
	t.mu.Unlock()
	t.env.log.Debug("transfer finished", slog.String("status", string(status)), slog.Int64("downloaded", t.downloaded.Load()))
	t.publish(EventStatus)
}

func (t *Task) publish(kind EventKind) {
	if t.env.hub == nil {
		return
	}
	t.env.hub.Publish(Event{Kind: kind, Task: t.Snapshot(), At: t.env.now()})
}
