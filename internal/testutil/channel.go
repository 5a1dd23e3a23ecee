package testutil

import (
	"io"
	"sync"

	"github.com/tjohnman/modular-ai-agent/internal/channel"
)

// ScriptedChannel records everything the dispatcher sends it. GetInput
// blocks on an inbox that tests feed; closing the inbox ends polling.
type ScriptedChannel struct {
	ChannelName string
	Inbox       chan channel.Input

	mu       sync.Mutex
	Outputs  []string
	Statuses []string
	Files    []string
	Captions []string
	Activity []string
}

func NewScriptedChannel(name string) *ScriptedChannel {
	return &ScriptedChannel{
		ChannelName: name,
		Inbox:       make(chan channel.Input, 16),
	}
}

func (c *ScriptedChannel) Name() string { return c.ChannelName }

func (c *ScriptedChannel) GetInput() (channel.Input, error) {
	input, ok := <-c.Inbox
	if !ok {
		return channel.Input{}, io.EOF
	}
	return input, nil
}

func (c *ScriptedChannel) SendOutput(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Outputs = append(c.Outputs, text)
}

func (c *ScriptedChannel) SendFile(path, caption string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Files = append(c.Files, path)
	c.Captions = append(c.Captions, caption)
}

func (c *ScriptedChannel) ShowActivity(action string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Activity = append(c.Activity, action)
}

func (c *ScriptedChannel) StopActivity() {}

func (c *ScriptedChannel) SendStatus(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Statuses = append(c.Statuses, text)
}

func (c *ScriptedChannel) SetCommands(commands []channel.CommandInfo) {}

// OutputsSnapshot copies the recorded outputs for assertion.
func (c *ScriptedChannel) OutputsSnapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.Outputs))
	copy(out, c.Outputs)
	return out
}
