// Package dispatch is the single consumer of the event queue. It owns
// the current-channel and current-session pointers and is the only
// component that writes the session log or calls the provider and
// tools. At most one conversation turn is in flight at any time.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/tjohnman/modular-ai-agent/internal/bus"
	"github.com/tjohnman/modular-ai-agent/internal/channel"
	"github.com/tjohnman/modular-ai-agent/internal/journal"
	"github.com/tjohnman/modular-ai-agent/internal/provider"
	"github.com/tjohnman/modular-ai-agent/internal/sched"
	"github.com/tjohnman/modular-ai-agent/internal/store"
	"github.com/tjohnman/modular-ai-agent/internal/tool"
)

const defaultSystemPrompt = "You are a helpful assistant."

// Options carries the dispatcher's filesystem and tuning knobs.
type Options struct {
	WorkspaceDir     string
	HostWorkspace    string
	SystemPromptPath string
	CompactThreshold int
}

type Dispatcher struct {
	queue     *bus.Queue
	store     *store.Store
	scheduler *sched.Scheduler
	provider  provider.Provider
	registry  *tool.Registry
	journal   *journal.Journal
	channels  []channel.Channel
	log       *slog.Logger
	opts      Options

	systemPrompt string
	current      channel.Channel
	commands     []command
	pollers      atomic.Int64
}

func New(queue *bus.Queue, st *store.Store, scheduler *sched.Scheduler, prov provider.Provider, registry *tool.Registry, jrnl *journal.Journal, channels []channel.Channel, logger *slog.Logger, opts Options) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	d := &Dispatcher{
		queue:        queue,
		store:        st,
		scheduler:    scheduler,
		provider:     prov,
		registry:     registry,
		journal:      jrnl,
		channels:     channels,
		log:          logger,
		opts:         opts,
		systemPrompt: defaultSystemPrompt,
	}
	if len(channels) > 0 {
		d.current = channels[0]
	}
	d.commands = d.commandTable()
	return d
}

// Run services the queue until the context is canceled, the queue
// closes, or an exit command is handled. Channel pollers and the
// scheduler tick loop are started here and stopped on the way out.
func (d *Dispatcher) Run(ctx context.Context) error {
	if err := d.ensureWorkspace(); err != nil {
		return err
	}
	d.loadSystemPrompt()

	infos := d.commandInfos()
	d.pollers.Store(int64(len(d.channels)))
	for _, ch := range d.channels {
		ch.SetCommands(infos)
		go d.poll(ch)
	}
	d.scheduler.Start()
	defer func() {
		d.scheduler.Stop()
		for _, ch := range d.channels {
			ch.StopActivity()
		}
	}()

	for {
		ev, err := d.queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, bus.ErrClosed) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		d.journalEvent(ctx, ev)
		if !d.handleEvent(ctx, ev) {
			return nil
		}
	}
}

// poll forwards one channel's inputs into the queue. An input error
// stops this poller only; the remaining channels keep feeding the
// queue. When the last poller dies an exit command is injected so the
// run loop winds down instead of idling forever with no inputs.
func (d *Dispatcher) poll(ch channel.Channel) {
	defer func() {
		if d.pollers.Add(-1) == 0 {
			d.queue.Push(bus.UserText{Channel: ch.Name(), Text: "/exit"})
		}
	}()
	for {
		input, err := ch.GetInput()
		if err != nil {
			d.log.Info("channel input closed", "channel", ch.Name(), "err", err)
			return
		}
		if input.Attachment != nil {
			a := input.Attachment
			d.queue.Push(bus.FileAttachment{
				Channel: ch.Name(),
				Name:    a.Name,
				Mime:    a.Mime,
				Caption: a.Caption,
				Content: a.Content,
			})
			continue
		}
		if strings.TrimSpace(input.Text) == "" {
			continue
		}
		d.queue.Push(bus.UserText{Channel: ch.Name(), Text: input.Text})
	}
}

// handleEvent processes one dequeued event. The return value is the
// continue signal; only an exit command turns it false.
func (d *Dispatcher) handleEvent(ctx context.Context, ev bus.Event) bool {
	if ch := d.channelByName(ev.Source()); ch != nil {
		d.current = ch
	}
	switch e := ev.(type) {
	case bus.FileAttachment:
		d.handleAttachment(ctx, e)
	case bus.TaskFired:
		d.handleTaskFired(ctx, e)
	case bus.UserText:
		if strings.HasPrefix(e.Text, "/") {
			return d.runCommand(ctx, e.Text)
		}
		d.handleUserText(ctx, e.Text)
	default:
		d.log.Error("dispatcher: unknown event type", "event", fmt.Sprintf("%T", ev))
	}
	return true
}

func (d *Dispatcher) handleUserText(ctx context.Context, text string) {
	if err := d.store.Append(store.Message{Role: store.RoleUser, Content: text}); err != nil {
		d.log.Error("dispatcher: append user message", "err", err)
		return
	}
	if !d.store.HasTitle() {
		d.autoTitle(ctx, text)
	}
	d.runTurn(ctx)
}

func (d *Dispatcher) handleAttachment(ctx context.Context, ev bus.FileAttachment) {
	data, err := ev.Content()
	if err != nil {
		d.log.Error("dispatcher: read attachment", "name", ev.Name, "err", err)
		return
	}
	dest := filepath.Join(d.opts.WorkspaceDir, filepath.Base(ev.Name))
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		d.log.Error("dispatcher: save attachment", "name", ev.Name, "err", err)
		return
	}
	d.log.Info("dispatcher: saved attachment", "name", ev.Name, "mime", ev.Mime, "bytes", len(data))

	// The file reference is recorded unconditionally so later turns can
	// see the upload even when no model call happens now.
	content := ev.Caption
	if content == "" {
		content = fmt.Sprintf("[Uploaded %s]", ev.Name)
	}
	var parts []store.Part
	if ev.Caption != "" {
		parts = append(parts, store.Part{Text: ev.Caption})
	}
	parts = append(parts, store.Part{FilePath: dest, MimeType: ev.Mime})
	msg := store.Message{Role: store.RoleUser, Content: content, Parts: parts}
	if err := d.store.Append(msg); err != nil {
		d.log.Error("dispatcher: append attachment message", "err", err)
		return
	}

	media := strings.HasPrefix(ev.Mime, "image/") || strings.HasPrefix(ev.Mime, "audio/")
	if !media && ev.Caption == "" {
		// Silent ingestion: note the upload, no model call.
		note := fmt.Sprintf("SYSTEM: User uploaded file '%s'. It has been saved to the workspace.", ev.Name)
		if err := d.store.Append(store.Message{Role: store.RoleSystem, Content: note}); err != nil {
			d.log.Error("dispatcher: append upload note", "err", err)
		}
		return
	}
	d.runTurn(ctx)
}

func (d *Dispatcher) handleTaskFired(ctx context.Context, ev bus.TaskFired) {
	task := ev.Task
	if task.SessionFile != "" && task.SessionFile != d.store.SessionFile() {
		if err := d.switchToSessionFile(task.SessionFile); err != nil {
			// Stay on the current session rather than guessing.
			d.log.Error("dispatcher: task session not found", "task", task.ID, "session", task.SessionFile, "err", err)
		}
	}
	prompt := "Scheduled Task: " + task.Prompt
	if err := d.store.Append(store.Message{Role: store.RoleUser, Content: prompt}); err != nil {
		d.log.Error("dispatcher: append task prompt", "err", err)
		return
	}
	d.runTurn(ctx)
}

func (d *Dispatcher) switchToSessionFile(sessionFile string) error {
	sessions, err := d.store.ListSessions()
	if err != nil {
		return err
	}
	target := filepath.Base(sessionFile)
	for _, info := range sessions {
		if info.Filename == target {
			return d.store.SwitchSession(info.Index)
		}
	}
	return store.ErrSessionNotFound
}

func (d *Dispatcher) channelByName(name string) channel.Channel {
	for _, ch := range d.channels {
		if ch.Name() == name {
			return ch
		}
	}
	return nil
}

func (d *Dispatcher) ensureWorkspace() error {
	for _, dir := range []string{
		d.opts.WorkspaceDir,
		filepath.Join(d.opts.WorkspaceDir, "output"),
		filepath.Join(d.opts.WorkspaceDir, "processed"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create workspace dir: %w", err)
		}
	}
	return nil
}

// loadSystemPrompt reads the instruction file, falling back to the
// built-in default when it is missing or empty.
func (d *Dispatcher) loadSystemPrompt() {
	d.systemPrompt = defaultSystemPrompt
	if d.opts.SystemPromptPath == "" {
		return
	}
	data, err := os.ReadFile(d.opts.SystemPromptPath)
	if err != nil {
		if !os.IsNotExist(err) {
			d.log.Error("dispatcher: read system prompt", "path", d.opts.SystemPromptPath, "err", err)
		}
		return
	}
	if text := strings.TrimSpace(string(data)); text != "" {
		d.systemPrompt = text
	}
}

// journalEvent records the dequeued event for diagnostics. Failures are
// logged and never affect dispatch.
func (d *Dispatcher) journalEvent(ctx context.Context, ev bus.Event) {
	if d.journal == nil {
		return
	}
	var kind, subject, body string
	switch e := ev.(type) {
	case bus.UserText:
		kind = journal.KindText
		body = e.Text
		if strings.HasPrefix(e.Text, "/") {
			kind = journal.KindCommand
		}
	case bus.FileAttachment:
		kind = journal.KindAttachment
		subject = e.Name
		body = e.Caption
	case bus.TaskFired:
		kind = journal.KindTaskFired
		subject = e.Task.ID
		body = e.Task.Prompt
	default:
		return
	}
	if _, err := d.journal.Record(ctx, ev.Source(), kind, subject, body); err != nil {
		d.log.Error("dispatcher: journal event", "err", err)
	}
}
