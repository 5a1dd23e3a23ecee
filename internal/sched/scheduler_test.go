package sched

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/tjohnman/modular-ai-agent/internal/store"
)

func newTestScheduler(t *testing.T, fire FireFunc, now *time.Time) (*Scheduler, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.New(filepath.Join(dir, "sessions"), filepath.Join(dir, "memory"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	s, err := New(st, nil, fire, WithClock(func() time.Time { return *now }))
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return s, st
}

func TestAtTaskFiresOnceAndIsRemoved(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var fired []Task
	s, st := newTestScheduler(t, func(task Task) error {
		fired = append(fired, task)
		return nil
	}, &now)

	when := now.Add(2 * time.Second).Format(time.RFC3339)
	task, err := s.Add("remind me", "", TriggerAt, when, "terminal")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !task.NextRun.Equal(now.Add(2 * time.Second)) {
		t.Fatalf("next run %v, want %v", task.NextRun, now.Add(2*time.Second))
	}

	s.Tick()
	if len(fired) != 0 {
		t.Fatalf("fired early: %+v", fired)
	}

	now = now.Add(2 * time.Second)
	s.Tick()
	if len(fired) != 1 || fired[0].ID != task.ID {
		t.Fatalf("got %d firings, want 1", len(fired))
	}
	if len(s.List()) != 0 {
		t.Fatalf("at task still listed after firing: %+v", s.List())
	}

	now = now.Add(time.Second)
	s.Tick()
	if len(fired) != 1 {
		t.Fatalf("at task fired again: %d", len(fired))
	}

	records, err := st.LoadScheduledTasks()
	if err != nil {
		t.Fatalf("load records: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("fired at task still persisted: %+v", records)
	}
}

func TestCronTaskAdvancesAndPersists(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 59, 0, 0, time.UTC)
	var fired int
	s, st := newTestScheduler(t, func(Task) error {
		fired++
		return nil
	}, &now)

	task, err := s.Add("daily check", "", TriggerCron, "0 9 * * *", "terminal")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	first := task.NextRun
	if !first.Equal(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("first next run %v", first)
	}

	now = first
	s.Tick()
	if fired != 1 {
		t.Fatalf("got %d firings, want 1", fired)
	}
	after, ok := s.Get(task.ID)
	if !ok {
		t.Fatal("cron task removed after firing")
	}
	if !after.NextRun.After(first) {
		t.Fatalf("next run did not advance: %v -> %v", first, after.NextRun)
	}

	records, err := st.LoadScheduledTasks()
	if err != nil {
		t.Fatalf("load records: %v", err)
	}
	if len(records) != 1 || records[0].ID != task.ID {
		t.Fatalf("cron task not persisted: %+v", records)
	}
}

func TestDueTasksFireInInsertionOrder(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var order []string
	s, _ := newTestScheduler(t, func(task Task) error {
		order = append(order, task.Prompt)
		return nil
	}, &now)

	// Later next_run added first; insertion order must still win.
	if _, err := s.Add("first", "", TriggerAt, now.Add(5*time.Second).Format(time.RFC3339), ""); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := s.Add("second", "", TriggerAt, now.Add(1*time.Second).Format(time.RFC3339), ""); err != nil {
		t.Fatalf("add: %v", err)
	}

	now = now.Add(10 * time.Second)
	s.Tick()
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("firing order %v, want [first second]", order)
	}
}

func TestCallbackErrorDoesNotStopTick(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var fired []string
	s, _ := newTestScheduler(t, func(task Task) error {
		fired = append(fired, task.Prompt)
		if task.Prompt == "boom" {
			return fmt.Errorf("callback failed")
		}
		return nil
	}, &now)

	when := now.Format(time.RFC3339)
	if _, err := s.Add("boom", "", TriggerAt, when, ""); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := s.Add("fine", "", TriggerAt, when, ""); err != nil {
		t.Fatalf("add: %v", err)
	}

	s.Tick()
	if len(fired) != 2 {
		t.Fatalf("callback error stopped the tick: fired %v", fired)
	}
	if len(s.List()) != 0 {
		t.Fatalf("tasks left after firing: %+v", s.List())
	}
}

func TestAddRejectsBadTrigger(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s, _ := newTestScheduler(t, nil, &now)

	if _, err := s.Add("x", "", TriggerCron, "not a cron expr", ""); err == nil {
		t.Fatal("bad cron expression accepted")
	}
	if _, err := s.Add("x", "", TriggerAt, "yesterday-ish", ""); err == nil {
		t.Fatal("bad instant accepted")
	}
	if _, err := s.Add("x", "", "every", "5s", ""); err == nil {
		t.Fatal("unknown trigger type accepted")
	}
}

func TestRemove(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s, st := newTestScheduler(t, nil, &now)

	task, err := s.Add("removable", "", TriggerAt, now.Add(time.Hour).Format(time.RFC3339), "")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !s.Remove(task.ID) {
		t.Fatal("remove reported not found")
	}
	if s.Remove(task.ID) {
		t.Fatal("double remove reported found")
	}
	records, err := st.LoadScheduledTasks()
	if err != nil {
		t.Fatalf("load records: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("removed task still persisted: %+v", records)
	}
}

func TestConcurrentMutationsPersistFully(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s, st := newTestScheduler(t, nil, &now)

	when := now.Add(time.Hour).Format(time.RFC3339)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			if _, err := s.Add(fmt.Sprintf("task %d", i), "", TriggerAt, when, ""); err != nil {
				t.Errorf("add: %v", err)
			}
		}(i)
		go func() {
			defer wg.Done()
			s.Tick()
		}()
	}
	wg.Wait()

	listed := s.List()
	records, err := st.LoadScheduledTasks()
	if err != nil {
		t.Fatalf("load records: %v", err)
	}
	if len(records) != len(listed) {
		t.Fatalf("disk has %d tasks, memory has %d", len(records), len(listed))
	}
	onDisk := make(map[string]bool, len(records))
	for _, r := range records {
		onDisk[r.ID] = true
	}
	for _, task := range listed {
		if !onDisk[task.ID] {
			t.Fatalf("task %s missing from disk", task.ID)
		}
	}
}

func TestTasksReloadAcrossRestart(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	dir := t.TempDir()
	st, err := store.New(filepath.Join(dir, "sessions"), filepath.Join(dir, "memory"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	s1, err := New(st, nil, nil, WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	task, err := s1.Add("survive restart", "", TriggerCron, "*/5 * * * *", "terminal")
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	s2, err := New(st, nil, nil, WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("reload scheduler: %v", err)
	}
	loaded := s2.List()
	if len(loaded) != 1 || loaded[0].ID != task.ID {
		t.Fatalf("task not reloaded: %+v", loaded)
	}
	if loaded[0].NextRun.IsZero() {
		t.Fatal("next run lost across restart")
	}
}
