// Package channel defines the I/O boundary the dispatcher drives. A
// channel blocks in GetInput on its own goroutine and receives outputs,
// files, and best-effort status/activity signals.
package channel

// Attachment is a file handed in by a channel. Content defers the read
// until the dispatcher persists the payload.
type Attachment struct {
	Name    string
	Mime    string
	Caption string
	Content func() ([]byte, error)
}

// Input is one unit pulled from a channel: either text or an attachment.
type Input struct {
	Text       string
	Attachment *Attachment
}

type CommandInfo struct {
	Name        string
	Description string
}

type Channel interface {
	Name() string

	// GetInput blocks until the next input unit arrives. An error means
	// the channel is finished and its poller should exit.
	GetInput() (Input, error)

	SendOutput(text string)
	SendFile(path, caption string)

	// ShowActivity starts a periodic best-effort "working" signal;
	// StopActivity halts it with a bounded wait.
	ShowActivity(action string)
	StopActivity()

	// SendStatus carries technical progress notes; channels may drop
	// them.
	SendStatus(text string)

	// SetCommands advertises the slash-command registry to channels
	// with native command surfaces.
	SetCommands(commands []CommandInfo)
}
