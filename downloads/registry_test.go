package downloads

import "testing"

func TestRegistryKeepsCreationOrder(t *testing.T) {
	r := NewRegistry()
	var want []*Task
	for _, name := range []string{"a", "b", "c"} {
		task := NewTask(NewDescriptor(name, 0, 1), nil)
		r.Add(task)
		want = append(want, task)
	}

	got := r.List()
	if len(got) != len(want) {
		t.Fatalf("expected %d tasks, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("position %d: expected %s, got %s", i, want[i].Title(), got[i].Title())
		}
	}
	if task, ok := r.Get(want[1].ID()); !ok || task != want[1] {
		t.Fatal("Get did not return the registered task")
	}
}

func TestRegistryEvict(t *testing.T) {
	r := NewRegistry()
	names := []string{"keep-1", "drop-1", "keep-2", "drop-2"}
	tasks := make(map[string]*Task)
	for _, name := range names {
		task := NewTask(NewDescriptor(name, 0, 1), nil)
		tasks[name] = task
		r.Add(task)
	}

	evicted := r.Evict(func(t *Task) bool {
		return t.Title() == "drop-1" || t.Title() == "drop-2"
	})
	if len(evicted) != 2 {
		t.Fatalf("expected 2 evicted, got %d", len(evicted))
	}
	if r.Len() != 2 {
		t.Fatalf("expected 2 remaining, got %d", r.Len())
	}
	list := r.List()
	if list[0].Title() != "keep-1" || list[1].Title() != "keep-2" {
		t.Fatalf("order not preserved: %s, %s", list[0].Title(), list[1].Title())
	}
	if _, ok := r.Get(tasks["drop-1"].ID()); ok {
		t.Fatal("evicted task still reachable by id")
	}
}
