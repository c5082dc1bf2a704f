package downloads

import (
	"testing"
	"time"
)

const (
	KiB = 1024
	MiB = 1024 * KiB
)

// eventually polls cond every 5ms until it holds or timeout expires.
func eventually(t *testing.T, timeout time.Duration, cond func() bool, format string, args ...any) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf(format, args...)
}

func waitDone(t *testing.T, task *Task, timeout time.Duration) {
	t.Helper()
	select {
	case <-task.Done():
	case <-time.After(timeout):
		t.Fatalf("task %s did not finish within %s (status %s, %d/%d bytes)",
			task.Title(), timeout, task.Status(), task.DownloadedBytes(), task.TotalBytes())
	}
}

func waitManager(t *testing.T, m *Manager, timeout time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		_ = m.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatalf("manager tasks did not finish within %s: %+v", timeout, m.Stats())
	}
}
