// Package sched runs the background timer that fires persisted prompts
// back into the event stream. The task list lives in memory and is
// written through the store after every mutation.
package sched

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tjohnman/modular-ai-agent/internal/store"
)

const (
	TriggerAt   = "at"
	TriggerCron = "cron"
)

// Task is one scheduled prompt. NextRun is zero when the trigger could
// not be computed; such a task never fires.
type Task struct {
	ID           string
	Prompt       string
	SessionFile  string
	ChannelName  string
	TriggerType  string
	TriggerValue string
	CreatedAt    time.Time
	NextRun      time.Time
}

// FireFunc receives each due task. Errors are logged and do not stop the
// tick from processing remaining due tasks.
type FireFunc func(Task) error

type Scheduler struct {
	store *store.Store
	log   *slog.Logger
	fire  FireFunc

	mu    sync.Mutex
	tasks []*Task

	// persistMu serializes snapshot-and-write so a slower writer cannot
	// land a stale task list on disk after a fresher one.
	persistMu sync.Mutex

	tick  time.Duration
	nowFn func() time.Time
	newID func() string

	runMu   sync.Mutex
	running bool
	stop    chan struct{}
}

type Option func(*Scheduler)

func WithClock(nowFn func() time.Time) Option {
	return func(s *Scheduler) {
		if nowFn != nil {
			s.nowFn = nowFn
		}
	}
}

func WithTickInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.tick = d
		}
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(s *Scheduler) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// New loads the persisted task list and reconstructs any missing NextRun
// instants. The fire callback runs synchronously on the tick goroutine.
func New(st *store.Store, logger *slog.Logger, fire FireFunc, opts ...Option) (*Scheduler, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Scheduler{
		store: st,
		log:   logger,
		fire:  fire,
		tick:  time.Second,
		nowFn: time.Now,
		newID: func() string { return uuid.NewString() },
		stop:  make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	records, err := st.LoadScheduledTasks()
	if err != nil {
		return nil, fmt.Errorf("load scheduled tasks: %w", err)
	}
	now := s.nowFn()
	for _, rec := range records {
		task := taskFromRecord(rec)
		if task.NextRun.IsZero() {
			next, err := NextRun(task.TriggerType, task.TriggerValue, now)
			if err != nil {
				s.log.Error("scheduler: compute next run", "task", task.ID, "err", err)
			} else {
				task.NextRun = next
			}
		}
		s.tasks = append(s.tasks, task)
	}
	s.log.Info("scheduler: loaded tasks", "count", len(s.tasks))
	return s, nil
}

// Start launches the tick loop. Calling Start on a running scheduler is
// a no-op.
func (s *Scheduler) Start() {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	go s.run(s.stop)
}

// Stop signals the tick loop to halt. An in-flight callback is not
// joined.
func (s *Scheduler) Stop() {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	close(s.stop)
}

func (s *Scheduler) run(stop <-chan struct{}) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Tick fires every due task once, in insertion order, then persists the
// list iff anything fired. Exported so tests can drive the scheduler
// without real time.
func (s *Scheduler) Tick() {
	now := s.nowFn()

	s.mu.Lock()
	due := make([]*Task, 0)
	for _, task := range s.tasks {
		if task.NextRun.IsZero() {
			continue
		}
		if !now.Before(task.NextRun) {
			due = append(due, task)
		}
	}
	s.mu.Unlock()

	if len(due) == 0 {
		return
	}

	for _, task := range due {
		s.log.Info("scheduler: firing task", "task", task.ID, "due", task.NextRun)
		if s.fire != nil {
			if err := s.fire(*task); err != nil {
				s.log.Error("scheduler: task callback", "task", task.ID, "err", err)
			}
		}

		switch task.TriggerType {
		case TriggerAt:
			s.removeTask(task.ID)
		case TriggerCron:
			next, err := NextRun(TriggerCron, task.TriggerValue, now)
			if err != nil {
				// The stale NextRun stays in place; the task remains
				// listed but will not fire again until edited.
				s.log.Error("scheduler: reschedule cron task", "task", task.ID, "err", err)
				continue
			}
			s.mu.Lock()
			task.NextRun = next
			s.mu.Unlock()
			s.log.Info("scheduler: rescheduled cron task", "task", task.ID, "next", next)
		}
	}

	if err := s.persist(); err != nil {
		s.log.Error("scheduler: persist tasks", "err", err)
	}
}

// Add creates, persists, and returns a new task. The trigger must be
// valid; the first run instant is computed here.
func (s *Scheduler) Add(prompt, sessionFile, triggerType, triggerValue, channelName string) (Task, error) {
	now := s.nowFn()
	next, err := NextRun(triggerType, triggerValue, now)
	if err != nil {
		return Task{}, err
	}
	task := &Task{
		ID:           s.newID(),
		Prompt:       prompt,
		SessionFile:  sessionFile,
		ChannelName:  channelName,
		TriggerType:  triggerType,
		TriggerValue: triggerValue,
		CreatedAt:    now,
		NextRun:      next,
	}
	s.mu.Lock()
	s.tasks = append(s.tasks, task)
	s.mu.Unlock()

	if err := s.persist(); err != nil {
		return *task, fmt.Errorf("persist tasks: %w", err)
	}
	s.log.Info("scheduler: added task", "task", task.ID, "trigger", triggerType+"="+triggerValue, "next", task.NextRun)
	return *task, nil
}

// Remove deletes a task by id and reports whether it existed.
func (s *Scheduler) Remove(id string) bool {
	if !s.removeTask(id) {
		return false
	}
	if err := s.persist(); err != nil {
		s.log.Error("scheduler: persist tasks", "err", err)
	}
	s.log.Info("scheduler: removed task", "task", id)
	return true
}

func (s *Scheduler) removeTask(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, task := range s.tasks {
		if task.ID == id {
			s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
			return true
		}
	}
	return false
}

// CurrentSessionFile exposes the store's active session so tools can
// bind new tasks to the conversation they were invoked from.
func (s *Scheduler) CurrentSessionFile() string {
	return s.store.SessionFile()
}

// Get returns a task by id.
func (s *Scheduler) Get(id string) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, task := range s.tasks {
		if task.ID == id {
			return *task, true
		}
	}
	return Task{}, false
}

// List returns the tasks in insertion order.
func (s *Scheduler) List() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		out = append(out, *task)
	}
	return out
}

func (s *Scheduler) persist() error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	s.mu.Lock()
	records := make([]store.TaskRecord, 0, len(s.tasks))
	for _, task := range s.tasks {
		records = append(records, taskToRecord(*task))
	}
	s.mu.Unlock()
	return s.store.SaveScheduledTasks(records)
}

func taskToRecord(task Task) store.TaskRecord {
	rec := store.TaskRecord{
		ID:           task.ID,
		Prompt:       task.Prompt,
		SessionFile:  task.SessionFile,
		ChannelName:  task.ChannelName,
		TriggerType:  task.TriggerType,
		TriggerValue: task.TriggerValue,
		CreatedAt:    task.CreatedAt.Format(time.RFC3339Nano),
	}
	if !task.NextRun.IsZero() {
		rec.NextRun = task.NextRun.Format(time.RFC3339Nano)
	}
	return rec
}

func taskFromRecord(rec store.TaskRecord) *Task {
	task := &Task{
		ID:           rec.ID,
		Prompt:       rec.Prompt,
		SessionFile:  rec.SessionFile,
		ChannelName:  rec.ChannelName,
		TriggerType:  rec.TriggerType,
		TriggerValue: rec.TriggerValue,
	}
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if rec.CreatedAt != "" {
		task.CreatedAt, _ = time.Parse(time.RFC3339Nano, rec.CreatedAt)
	}
	if rec.NextRun != "" {
		task.NextRun, _ = time.Parse(time.RFC3339Nano, rec.NextRun)
	}
	return task
}
