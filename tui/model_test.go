package tui

import (
	"strings"
	"testing"
	"time"

	"dlsim/config"
	"dlsim/downloads"

	tea "github.com/charmbracelet/bubbletea"
)

func newTestModel(t *testing.T) (*downloads.Manager, Model) {
	t.Helper()
	mgr := downloads.NewManager(downloads.Options{MaxConcurrent: 2})
	t.Cleanup(func() {
		mgr.Shutdown()
		_ = mgr.Wait()
	})
	return mgr, NewModel(mgr, config.Default().Defaults())
}

func press(t *testing.T, m Model, key string) (Model, tea.Cmd) {
	t.Helper()
	var msg tea.KeyMsg
	switch key {
	case "up":
		msg = tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		msg = tea.KeyMsg{Type: tea.KeyDown}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
	}
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T", next)
	}
	return model, cmd
}

func TestAddSelectsNewDownload(t *testing.T) {
	mgr, m := newTestModel(t)

	m, _ = press(t, m, "a")
	m, _ = press(t, m, "a")

	tasks := mgr.Tasks()
	if len(tasks) != 2 {
		t.Fatalf("expected 2 downloads, got %d", len(tasks))
	}
	if tasks[0].Title() != "download_1" || tasks[1].Title() != "download_2" {
		t.Fatalf("unexpected names %s, %s", tasks[0].Title(), tasks[1].Title())
	}
	if m.cursor != 1 {
		t.Fatalf("expected cursor on the new row, got %d", m.cursor)
	}

	m, _ = press(t, m, "up")
	m, _ = press(t, m, "up")
	if m.cursor != 0 {
		t.Fatalf("expected cursor clamped at 0, got %d", m.cursor)
	}
	m, _ = press(t, m, "down")
	m, _ = press(t, m, "down")
	if m.cursor != 1 {
		t.Fatalf("expected cursor clamped at last row, got %d", m.cursor)
	}
}

func TestControlKeysDriveSelectedTask(t *testing.T) {
	mgr, m := newTestModel(t)
	m, _ = press(t, m, "a")
	task := mgr.Tasks()[0]

	deadline := time.Now().Add(time.Second)
	for task.Status() != downloads.StatusDownloading && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	m, _ = press(t, m, "p")
	if task.Status() != downloads.StatusPaused {
		t.Fatalf("expected paused, got %s", task.Status())
	}
	m, _ = press(t, m, "r")
	if task.Status() != downloads.StatusDownloading {
		t.Fatalf("expected downloading, got %s", task.Status())
	}
	_, _ = press(t, m, "c")
	select {
	case <-task.Done():
	case <-time.After(time.Second):
		t.Fatal("task not cancelled")
	}
	if task.Status() != downloads.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", task.Status())
	}
}

func TestConcurrencyKeys(t *testing.T) {
	mgr, m := newTestModel(t)

	m, _ = press(t, m, "+")
	if mgr.MaxConcurrent() != 3 {
		t.Fatalf("expected 3, got %d", mgr.MaxConcurrent())
	}
	for i := 0; i < 5; i++ {
		m, _ = press(t, m, "-")
	}
	if mgr.MaxConcurrent() != 1 {
		t.Fatalf("expected capacity floored at 1, got %d", mgr.MaxConcurrent())
	}
}

func TestPruneKey(t *testing.T) {
	mgr, m := newTestModel(t)
	task := mgr.CreateAndSubmit(downloads.NewDescriptor("empty", 0, 1))
	<-task.Done()

	next, _ := m.Update(tickMsg(time.Now()))
	m, _ = press(t, next.(Model), "x")
	if n := len(mgr.Tasks()); n != 0 {
		t.Fatalf("expected pruned registry, got %d", n)
	}
	if len(m.tasks) != 0 {
		t.Fatal("model still shows pruned rows")
	}
}

func TestAddAfterPruneUsesFreshName(t *testing.T) {
	mgr, m := newTestModel(t)

	m, _ = press(t, m, "a")
	first := mgr.Tasks()[0]
	first.Cancel()
	<-first.Done()

	next, _ := m.Update(tickMsg(time.Now()))
	m, _ = press(t, next.(Model), "x")
	m, _ = press(t, m, "a")

	tasks := mgr.Tasks()
	if len(tasks) != 1 {
		t.Fatalf("expected 1 download, got %d", len(tasks))
	}
	if tasks[0].Title() != "download_2" {
		t.Fatalf("expected download_2, got %s", tasks[0].Title())
	}
}

func TestQuitShutsDown(t *testing.T) {
	mgr, m := newTestModel(t)
	m, _ = press(t, m, "a")
	task := mgr.Tasks()[0]

	m, cmd := press(t, m, "q")
	if cmd == nil {
		t.Fatal("expected a quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("q did not quit")
	}
	select {
	case <-task.Done():
	case <-time.After(time.Second):
		t.Fatal("quit did not shut the manager down")
	}
	if !strings.Contains(m.View(), "shutting down") {
		t.Fatalf("unexpected final view %q", m.View())
	}
}

func TestViewListsDownloads(t *testing.T) {
	mgr, m := newTestModel(t)
	if !strings.Contains(m.View(), "no downloads") {
		t.Fatal("empty view missing hint")
	}

	mgr.CreateAndSubmit(downloads.NewDescriptor("movie.mkv", 10*1024*1024, 400))
	next, cmd := m.Update(tickMsg(time.Now()))
	if cmd == nil {
		t.Fatal("tick must schedule the next refresh")
	}
	view := next.(Model).View()
	for _, want := range []string{"movie.mkv", "10.0 MiB", "NAME", "max concurrent 2"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestBar(t *testing.T) {
	tests := map[float64]string{
		0:    "[" + strings.Repeat("-", barWidth) + "]",
		0.5:  "[" + strings.Repeat("#", barWidth/2) + strings.Repeat("-", barWidth/2) + "]",
		1:    "[" + strings.Repeat("#", barWidth) + "]",
		1.25: "[" + strings.Repeat("#", barWidth) + "]",
	}
	for in, want := range tests {
		if got := bar(in); got != want {
			t.Errorf("bar(%v) = %q, want %q", in, got, want)
		}
	}
}
