package dispatch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tjohnman/modular-ai-agent/internal/channel"
	"github.com/tjohnman/modular-ai-agent/internal/store"
)

// command is one slash command. The handler's return value is the run
// loop's continue signal.
type command struct {
	name        string
	description string
	handler     func(ctx context.Context, arg string) bool
}

func (d *Dispatcher) commandTable() []command {
	return []command{
		{"help", "List available commands", d.cmdHelp},
		{"usage", "Show cumulative token usage", d.cmdUsage},
		{"compact", "Summarize older history to save space", d.cmdCompact},
		{"clear", "Start a new session", d.cmdClear},
		{"reset", "Start a new session and wipe the workspace", d.cmdReset},
		{"reload", "Re-read the system prompt and tool registry", d.cmdReload},
		{"new", "Start a new session with an optional title", d.cmdNew},
		{"list", "List sessions", d.cmdList},
		{"switch", "Switch to a session by index", d.cmdSwitch},
		{"name", "Set the current session's title", d.cmdName},
		{"exit", "Shut down", d.cmdExit},
		{"quit", "Shut down", d.cmdExit},
	}
}

func (d *Dispatcher) commandInfos() []channel.CommandInfo {
	infos := make([]channel.CommandInfo, 0, len(d.commands))
	for _, c := range d.commands {
		infos = append(infos, channel.CommandInfo{Name: c.name, Description: c.description})
	}
	return infos
}

// runCommand parses "/name arg..." and dispatches it. Unknown commands
// produce a single visible error and the loop continues.
func (d *Dispatcher) runCommand(ctx context.Context, text string) bool {
	trimmed := strings.TrimPrefix(strings.TrimSpace(text), "/")
	name, arg, _ := strings.Cut(trimmed, " ")
	name = strings.ToLower(name)
	arg = strings.TrimSpace(arg)

	for _, c := range d.commands {
		if c.name == name {
			d.log.Info("dispatcher: command", "name", name, "arg", arg)
			return c.handler(ctx, arg)
		}
	}
	d.sendOutput(fmt.Sprintf("Unknown command: /%s. Type /help for a list of commands.", name))
	return true
}

func (d *Dispatcher) sendOutput(text string) {
	if d.current != nil {
		d.current.SendOutput(text)
	}
}

func (d *Dispatcher) sendStatus(text string) {
	if d.current != nil {
		d.current.SendStatus(text)
	}
}

func (d *Dispatcher) cmdHelp(ctx context.Context, arg string) bool {
	var b strings.Builder
	b.WriteString("Available commands:\n")
	for _, c := range d.commands {
		fmt.Fprintf(&b, "/%s - %s\n", c.name, c.description)
	}
	d.sendOutput(strings.TrimRight(b.String(), "\n"))
	return true
}

func (d *Dispatcher) cmdUsage(ctx context.Context, arg string) bool {
	u := d.provider.Usage()
	d.sendOutput(fmt.Sprintf("Token usage: prompt=%d completion=%d total=%d", u.PromptTokens, u.CompletionTokens, u.TotalTokens))
	return true
}

func (d *Dispatcher) cmdCompact(ctx context.Context, arg string) bool {
	result, err := d.compact(ctx)
	if err != nil {
		d.sendOutput("Error compacting conversation: " + err.Error())
		return true
	}
	d.sendOutput(result)
	return true
}

func (d *Dispatcher) cmdClear(ctx context.Context, arg string) bool {
	if err := d.store.StartNewSession(""); err != nil {
		d.sendOutput("Error starting new session: " + err.Error())
		return true
	}
	d.sendStatus("Started a new session.")
	return true
}

// cmdReset starts a new session and wipes workspace files. Prior session
// logs stay on disk.
func (d *Dispatcher) cmdReset(ctx context.Context, arg string) bool {
	if err := d.store.StartNewSession(""); err != nil {
		d.sendOutput("Error starting new session: " + err.Error())
		return true
	}
	entries, err := os.ReadDir(d.opts.WorkspaceDir)
	if err != nil {
		d.log.Error("dispatcher: read workspace", "err", err)
	}
	for _, e := range entries {
		path := filepath.Join(d.opts.WorkspaceDir, e.Name())
		if err := os.RemoveAll(path); err != nil {
			// Best effort; a locked file does not abort the reset.
			d.log.Error("dispatcher: remove workspace entry", "path", path, "err", err)
		}
	}
	if err := d.ensureWorkspace(); err != nil {
		d.log.Error("dispatcher: recreate workspace", "err", err)
	}
	d.sendStatus("Session and workspace reset.")
	return true
}

func (d *Dispatcher) cmdReload(ctx context.Context, arg string) bool {
	d.loadSystemPrompt()
	d.registry.Reload()
	infos := d.commandInfos()
	for _, ch := range d.channels {
		ch.SetCommands(infos)
	}
	d.sendStatus(fmt.Sprintf("Reloaded system prompt and %d tools.", d.registry.Len()))
	return true
}

func (d *Dispatcher) cmdNew(ctx context.Context, arg string) bool {
	if err := d.store.StartNewSession(arg); err != nil {
		d.sendOutput("Error starting new session: " + err.Error())
		return true
	}
	if arg != "" {
		d.sendStatus(fmt.Sprintf("Started a new session: %s", arg))
	} else {
		d.sendStatus("Started a new session.")
	}
	return true
}

func (d *Dispatcher) cmdList(ctx context.Context, arg string) bool {
	sessions, err := d.store.ListSessions()
	if err != nil {
		d.sendOutput("Error listing sessions: " + err.Error())
		return true
	}
	if len(sessions) == 0 {
		d.sendOutput("No sessions found.")
		return true
	}
	var b strings.Builder
	b.WriteString("Sessions:\n")
	currentBase := filepath.Base(d.store.SessionFile())
	for _, info := range sessions {
		marker := " "
		if info.Filename == currentBase {
			marker = "*"
		}
		fmt.Fprintf(&b, "%s [%d] %s - %s\n", marker, info.Index, info.Timestamp, info.Title)
	}
	d.sendOutput(strings.TrimRight(b.String(), "\n"))
	return true
}

func (d *Dispatcher) cmdSwitch(ctx context.Context, arg string) bool {
	index, err := strconv.Atoi(arg)
	if err != nil {
		d.sendOutput("Usage: /switch <index>")
		return true
	}
	if err := d.store.SwitchSession(index); err != nil {
		if err == store.ErrSessionNotFound {
			d.sendOutput(fmt.Sprintf("No session with index %d.", index))
		} else {
			d.sendOutput("Error switching session: " + err.Error())
		}
		return true
	}
	d.sendStatus(fmt.Sprintf("Switched to session %d.", index))
	return true
}

func (d *Dispatcher) cmdName(ctx context.Context, arg string) bool {
	if arg == "" {
		d.sendOutput("Usage: /name <title>")
		return true
	}
	if err := d.store.SetTitle(arg); err != nil {
		d.sendOutput("Error setting title: " + err.Error())
		return true
	}
	d.sendStatus(fmt.Sprintf("Session titled: %s", arg))
	return true
}

func (d *Dispatcher) cmdExit(ctx context.Context, arg string) bool {
	d.sendStatus("Shutting down.")
	return false
}
