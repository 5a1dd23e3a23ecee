package dispatch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tjohnman/modular-ai-agent/internal/store"
	"github.com/tjohnman/modular-ai-agent/internal/tool"
)

const keepOnCompact = 6

// silentResponse reports whether a final text is a placeholder the
// model emits when it has nothing to say.
func silentResponse(text string) bool {
	switch strings.TrimSpace(text) {
	case "", "_", ".":
		return true
	}
	return false
}

// runTurn drives one conversation turn: context build, provider call,
// and the tool loop, until a final text (or error) ends it. Compaction
// runs afterwards when the usage threshold is crossed.
func (d *Dispatcher) runTurn(ctx context.Context) {
	ch := d.current
	if ch != nil {
		ch.ShowActivity("typing")
		defer ch.StopActivity()
	}

	for {
		history, err := d.store.LoadHistory()
		if err != nil {
			d.log.Error("dispatcher: load history", "err", err)
			d.sendOutput("Error: could not load conversation history.")
			break
		}
		messages := make([]store.Message, 0, len(history)+1)
		messages = append(messages, store.Message{Role: store.RoleSystem, Content: d.systemPrompt})
		messages = append(messages, history...)

		resp, err := d.provider.Generate(ctx, messages, d.registry.Schemas())
		if err != nil {
			d.log.Error("dispatcher: provider", "err", err)
			errText := "Error: the model request failed: " + err.Error()
			if appendErr := d.store.Append(store.Message{Role: store.RoleAssistant, Content: errText}); appendErr != nil {
				d.log.Error("dispatcher: append error message", "err", appendErr)
			}
			d.sendOutput(errText)
			break
		}

		if resp.ToolCall != nil {
			if !d.runToolCall(resp.ToolCall.Name, resp.ToolCall.Args, resp.ToolCall.ID) {
				break
			}
			continue
		}

		if silentResponse(resp.Text) {
			break
		}
		if ch != nil {
			ch.StopActivity()
		}
		d.sendOutput(resp.Text)
		if err := d.store.Append(store.Message{Role: store.RoleAssistant, Content: resp.Text}); err != nil {
			d.log.Error("dispatcher: append assistant message", "err", err)
		}
		break
	}

	if d.opts.CompactThreshold > 0 && d.provider.Usage().TotalTokens > d.opts.CompactThreshold {
		d.log.Info("dispatcher: usage threshold crossed, compacting", "total", d.provider.Usage().TotalTokens)
		if result, err := d.compact(ctx); err != nil {
			d.log.Error("dispatcher: compact", "err", err)
		} else {
			d.log.Info("dispatcher: compacted", "result", result)
		}
	}
}

// runToolCall persists and executes one requested tool. It returns
// true when the turn should go back to the model with the augmented
// history, false when the turn is over.
func (d *Dispatcher) runToolCall(name string, args map[string]any, callID string) bool {
	t, ok := d.registry.Get(name)
	if !ok {
		errText := fmt.Sprintf("Error: the model requested unknown tool '%s'.", name)
		if err := d.store.Append(store.Message{Role: store.RoleAssistant, Content: errText}); err != nil {
			d.log.Error("dispatcher: append error message", "err", err)
		}
		d.sendOutput(errText)
		return false
	}

	call := &store.ToolCall{Name: name, Args: args, ID: callID}
	if err := d.store.Append(store.Message{Role: store.RoleModel, ToolCall: call}); err != nil {
		d.log.Error("dispatcher: append tool call", "err", err)
	}
	d.sendStatus(fmt.Sprintf("Using %s...", t.DisplayName))

	execArgs := make(map[string]any, len(args)+4)
	for k, v := range args {
		execArgs[k] = v
	}
	execArgs[tool.ArgWorkspace] = d.opts.WorkspaceDir
	if d.opts.HostWorkspace != "" {
		execArgs[tool.ArgHostWorkspace] = d.opts.HostWorkspace
	}
	execArgs[tool.ArgScheduler] = d.scheduler
	if d.current != nil {
		execArgs[tool.ArgChannelName] = d.current.Name()
	}

	d.log.Info("dispatcher: executing tool", "tool", name)
	result, err := t.Execute(execArgs)
	if err != nil {
		errText := fmt.Sprintf("Error executing tool '%s': %s", name, err)
		d.log.Error("dispatcher: tool failed", "tool", name, "err", err)
		if appendErr := d.store.Append(store.Message{Role: store.RoleAssistant, Content: errText}); appendErr != nil {
			d.log.Error("dispatcher: append error message", "err", appendErr)
		}
		d.sendOutput(errText)
		return false
	}

	if delivered := d.relayOutputs(); len(delivered) > 0 {
		result += "\n[Files delivered to user: " + strings.Join(delivered, ", ") + "]"
	}
	if err := d.store.Append(store.Message{
		Role:       store.RoleTool,
		Name:       name,
		ToolResult: &store.ToolResult{Result: result},
	}); err != nil {
		d.log.Error("dispatcher: append tool result", "err", err)
	}
	return true
}

// relayOutputs sends every file staged under workspace/output through
// the current channel, moving each into workspace/processed. The
// returned paths are sandbox-relative so the model can refer to them.
func (d *Dispatcher) relayOutputs() []string {
	outputDir := filepath.Join(d.opts.WorkspaceDir, "output")
	processedDir := filepath.Join(d.opts.WorkspaceDir, "processed")
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		if !os.IsNotExist(err) {
			d.log.Error("dispatcher: read output dir", "err", err)
		}
		return nil
	}

	var delivered []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		src := filepath.Join(outputDir, e.Name())
		dst := filepath.Join(processedDir, e.Name())
		if err := os.Rename(src, dst); err != nil {
			d.log.Error("dispatcher: move output file", "file", e.Name(), "err", err)
			continue
		}
		if d.current != nil {
			d.current.SendFile(dst, fmt.Sprintf("I've generated a file: %s", e.Name()))
		}
		delivered = append(delivered, "/workspace/processed/"+e.Name())
		d.log.Info("dispatcher: delivered file", "file", e.Name())
	}
	return delivered
}

// compact summarizes everything but the most recent messages and
// atomically rewrites the session log as two header records followed by
// the untouched tail.
func (d *Dispatcher) compact(ctx context.Context) (string, error) {
	history, err := d.store.LoadHistory()
	if err != nil {
		return "", fmt.Errorf("load history: %w", err)
	}
	if len(history) <= keepOnCompact {
		return fmt.Sprintf("Not enough history to compact (less than %d turns).", keepOnCompact), nil
	}

	head := history[:len(history)-keepOnCompact]
	tail := history[len(history)-keepOnCompact:]

	resp, err := d.provider.Generate(ctx, []store.Message{
		{Role: store.RoleSystem, Content: "Summarize the following conversation concisely, preserving key facts, decisions, and open threads. Reply with the summary only."},
		{Role: store.RoleUser, Content: renderTranscript(head)},
	}, nil)
	if err != nil {
		return "", fmt.Errorf("summarize history: %w", err)
	}

	replacement := make([]store.Message, 0, 2+len(tail))
	replacement = append(replacement,
		store.Message{Role: store.RoleSystem, Content: "Summary of previous conversation:\n" + strings.TrimSpace(resp.Text)},
		store.Message{Role: store.RoleSystem, Content: "Note: older messages were compacted to save space."},
	)
	replacement = append(replacement, tail...)
	if err := d.store.Replace(replacement); err != nil {
		return "", fmt.Errorf("replace session log: %w", err)
	}
	return fmt.Sprintf("Conversation compacted. %d messages summarized, last %d kept.", len(head), len(tail)), nil
}

// renderTranscript flattens messages into a plain-text transcript for
// the summarization request.
func renderTranscript(messages []store.Message) string {
	var b strings.Builder
	for _, msg := range messages {
		switch {
		case msg.ToolCall != nil:
			fmt.Fprintf(&b, "[tool call] %s\n", msg.ToolCall.Name)
		case msg.ToolResult != nil:
			fmt.Fprintf(&b, "[tool result] %s\n", msg.ToolResult.Result)
		default:
			fmt.Fprintf(&b, "%s: %s\n", msg.Role, msg.Content)
		}
	}
	return b.String()
}

// autoTitle asks the model for a short session title on the first
// message. Failures are logged and non-fatal.
func (d *Dispatcher) autoTitle(ctx context.Context, firstMessage string) {
	resp, err := d.provider.Generate(ctx, []store.Message{
		{Role: store.RoleSystem, Content: "Generate a short title, five words at most, for a conversation that begins with the following message. Reply with the title only."},
		{Role: store.RoleUser, Content: firstMessage},
	}, nil)
	if err != nil {
		d.log.Error("dispatcher: auto-title", "err", err)
		return
	}
	title := strings.Trim(strings.TrimSpace(resp.Text), `"'`)
	if title == "" {
		return
	}
	if err := d.store.SetTitle(title); err != nil {
		d.log.Error("dispatcher: set title", "err", err)
	}
}
