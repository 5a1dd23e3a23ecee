package bus

import (
	"errors"

	"github.com/tjohnman/modular-ai-agent/internal/sched"
)

// ErrClosed is returned by Pop once the queue is closed and drained.
var ErrClosed = errors.New("event queue closed")

// Event is a tagged input unit. Source names the originating channel
// (for TaskFired it is a routing hint, not necessarily where the task
// was created).
type Event interface {
	Source() string
}

type UserText struct {
	Channel string
	Text    string
}

func (e UserText) Source() string { return e.Channel }

// FileAttachment defers reading the payload until the dispatcher
// persists it; Content is invoked at most once per event.
type FileAttachment struct {
	Channel string
	Name    string
	Mime    string
	Caption string
	Content func() ([]byte, error)
}

func (e FileAttachment) Source() string { return e.Channel }

type TaskFired struct {
	Channel string
	Task    sched.Task
}

func (e TaskFired) Source() string { return e.Channel }
