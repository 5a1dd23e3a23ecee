package tool

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tjohnman/modular-ai-agent/internal/sched"
	"github.com/tjohnman/modular-ai-agent/internal/store"
)

func newToolScheduler(t *testing.T) *sched.Scheduler {
	t.Helper()
	dir := t.TempDir()
	st, err := store.New(filepath.Join(dir, "sessions"), filepath.Join(dir, "memory"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	s, err := sched.New(st, nil, nil)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return s
}

func execBuiltin(t *testing.T, name string, args map[string]any) (string, error) {
	t.Helper()
	r := NewRegistry(RegisterBuiltins)
	tl, ok := r.Get(name)
	if !ok {
		t.Fatalf("builtin %s not registered", name)
	}
	return tl.Execute(args)
}

func TestScheduleTaskTool(t *testing.T) {
	scheduler := newToolScheduler(t)

	out, err := execBuiltin(t, "schedule_task", map[string]any{
		"prompt":       "check the oven",
		"when":         "in 5 minutes",
		ArgScheduler:   scheduler,
		ArgChannelName: "terminal",
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out, "Task scheduled successfully") {
		t.Fatalf("unexpected output: %q", out)
	}
	tasks := scheduler.List()
	if len(tasks) != 1 {
		t.Fatalf("got %d tasks", len(tasks))
	}
	task := tasks[0]
	if task.TriggerType != sched.TriggerAt || task.ChannelName != "terminal" {
		t.Fatalf("task mismatch: %+v", task)
	}
	if task.SessionFile != scheduler.CurrentSessionFile() {
		t.Fatalf("task not bound to current session: %q", task.SessionFile)
	}
	until := time.Until(task.NextRun)
	if until < 4*time.Minute || until > 6*time.Minute {
		t.Fatalf("next run %v not about 5 minutes out", task.NextRun)
	}
}

func TestScheduleTaskToolCron(t *testing.T) {
	scheduler := newToolScheduler(t)
	out, err := execBuiltin(t, "schedule_task", map[string]any{
		"prompt":     "daily digest",
		"cron":       "0 8 * * *",
		ArgScheduler: scheduler,
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out, "Task scheduled successfully") {
		t.Fatalf("unexpected output: %q", out)
	}
	tasks := scheduler.List()
	if len(tasks) != 1 || tasks[0].TriggerType != sched.TriggerCron {
		t.Fatalf("tasks: %+v", tasks)
	}
}

func TestScheduleTaskToolValidation(t *testing.T) {
	scheduler := newToolScheduler(t)
	if _, err := execBuiltin(t, "schedule_task", map[string]any{
		"prompt":     "no trigger",
		ArgScheduler: scheduler,
	}); err == nil {
		t.Fatal("missing trigger accepted")
	}
	if _, err := execBuiltin(t, "schedule_task", map[string]any{
		"prompt":     "bad when",
		"when":       "whenever you feel like it",
		ArgScheduler: scheduler,
	}); err == nil {
		t.Fatal("unparseable when accepted")
	}
	if _, err := execBuiltin(t, "schedule_task", map[string]any{
		"when": "in 5 minutes",
	}); err == nil {
		t.Fatal("missing scheduler accepted")
	}
}

func TestListAndDeleteTaskTools(t *testing.T) {
	scheduler := newToolScheduler(t)

	out, err := execBuiltin(t, "list_tasks", map[string]any{ArgScheduler: scheduler})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if out != "No scheduled tasks found." {
		t.Fatalf("empty list output: %q", out)
	}

	task, err := scheduler.Add("do a thing", "", sched.TriggerCron, "0 9 * * *", "terminal")
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	out, err = execBuiltin(t, "list_tasks", map[string]any{ArgScheduler: scheduler})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, task.ID) || !strings.Contains(out, "do a thing") {
		t.Fatalf("listing missing task: %q", out)
	}

	out, err = execBuiltin(t, "delete_task", map[string]any{
		"task_id":    task.ID,
		ArgScheduler: scheduler,
	})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !strings.Contains(out, "deleted successfully") {
		t.Fatalf("delete output: %q", out)
	}

	out, err = execBuiltin(t, "delete_task", map[string]any{
		"task_id":    task.ID,
		ArgScheduler: scheduler,
	})
	if err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if !strings.Contains(out, "not found") {
		t.Fatalf("second delete output: %q", out)
	}
}

func TestGetCurrentTimeTool(t *testing.T) {
	out, err := execBuiltin(t, "get_current_time", map[string]any{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.HasPrefix(out, "The current date and time is ") {
		t.Fatalf("output: %q", out)
	}
}

func TestSendFileTool(t *testing.T) {
	workspace := t.TempDir()
	src := filepath.Join(workspace, "report.txt")
	if err := os.WriteFile(src, []byte("contents"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	out, err := execBuiltin(t, "send_file", map[string]any{
		"file_path":  "report.txt",
		ArgWorkspace: workspace,
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out, "Queued file for delivery: report.txt") {
		t.Fatalf("output: %q", out)
	}
	if _, err := os.Stat(filepath.Join(workspace, "output", "report.txt")); err != nil {
		t.Fatalf("file not staged: %v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatal("move mode left the source behind")
	}
}

func TestSendFileToolCopyMode(t *testing.T) {
	workspace := t.TempDir()
	src := filepath.Join(workspace, "keep.txt")
	if err := os.WriteFile(src, []byte("contents"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	if _, err := execBuiltin(t, "send_file", map[string]any{
		"file_path":  "keep.txt",
		"mode":       "copy",
		ArgWorkspace: workspace,
	}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if _, err := os.Stat(src); err != nil {
		t.Fatal("copy mode removed the source")
	}
	if _, err := os.Stat(filepath.Join(workspace, "output", "keep.txt")); err != nil {
		t.Fatalf("file not staged: %v", err)
	}
}

func TestSendFileToolRejectsEscapes(t *testing.T) {
	workspace := t.TempDir()
	outside := filepath.Join(t.TempDir(), "secret.txt")
	if err := os.WriteFile(outside, []byte("x"), 0o644); err != nil {
		t.Fatalf("write outside file: %v", err)
	}

	if _, err := execBuiltin(t, "send_file", map[string]any{
		"file_path":  outside,
		ArgWorkspace: workspace,
	}); err == nil {
		t.Fatal("absolute path outside workspace accepted")
	}
	if _, err := execBuiltin(t, "send_file", map[string]any{
		"file_path":  "../escape.txt",
		ArgWorkspace: workspace,
	}); err == nil {
		t.Fatal("relative escape accepted")
	}
}

func TestResolveWhenRelative(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cases := map[string]time.Time{
		"in 30 seconds": now.Add(30 * time.Second),
		"in 5 minutes":  now.Add(5 * time.Minute),
		"in 2 hours":    now.Add(2 * time.Hour),
		"in 1 day":      now.Add(24 * time.Hour),
	}
	for input, want := range cases {
		got, err := resolveWhen(input, now)
		if err != nil {
			t.Fatalf("%q: %v", input, err)
		}
		if got != want.Format(time.RFC3339) {
			t.Fatalf("%q: got %s, want %s", input, got, want.Format(time.RFC3339))
		}
	}

	if got, err := resolveWhen("2026-03-01T15:00:00Z", now); err != nil || got != "2026-03-01T15:00:00Z" {
		t.Fatalf("iso passthrough: %q, %v", got, err)
	}
	if _, err := resolveWhen("in a while", now); err == nil {
		t.Fatal("vague phrase accepted")
	}
	if _, err := resolveWhen("in 3 fortnights", now); err == nil {
		t.Fatal("unknown unit accepted")
	}
}
