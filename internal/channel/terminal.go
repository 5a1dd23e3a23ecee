package channel

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Terminal is the interactive stdin/stdout channel. A line of the form
// "/file <path>" is turned into an attachment; everything else is plain
// text. Output markdown is rendered with ANSI escapes.
type Terminal struct {
	in  *bufio.Scanner
	out io.Writer
	log *slog.Logger
}

func NewTerminal(logger *slog.Logger) *Terminal {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Terminal{
		in:  bufio.NewScanner(os.Stdin),
		out: os.Stdout,
		log: logger,
	}
}

func (t *Terminal) Name() string { return "terminal" }

func (t *Terminal) GetInput() (Input, error) {
	for {
		fmt.Fprint(t.out, "> ")
		if !t.in.Scan() {
			if err := t.in.Err(); err != nil {
				return Input{}, err
			}
			return Input{}, io.EOF
		}
		line := t.in.Text()

		if strings.HasPrefix(line, "/file ") {
			path := strings.TrimSpace(strings.TrimPrefix(line, "/file "))
			info, err := os.Stat(path)
			if err != nil || info.IsDir() {
				t.log.Error("terminal: file not found", "path", path)
				continue
			}
			return Input{Attachment: &Attachment{
				Name: filepath.Base(path),
				Mime: mimeFromExt(path),
				Content: func() ([]byte, error) {
					return os.ReadFile(path)
				},
			}}, nil
		}
		return Input{Text: line}, nil
	}
}

func (t *Terminal) SendOutput(text string) {
	fmt.Fprintf(t.out, "AI: %s\n", renderMarkdown(text))
}

func (t *Terminal) SendFile(path, caption string) {
	if caption != "" {
		fmt.Fprintf(t.out, "AI: %s\n", renderMarkdown(caption))
	}
	fmt.Fprintf(t.out, "[File Sent: %s]\n", path)
}

// ShowActivity is a no-op; the terminal has no typing indicator.
func (t *Terminal) ShowActivity(action string) {}

func (t *Terminal) StopActivity() {}

func (t *Terminal) SendStatus(text string) {
	fmt.Fprintf(t.out, "[%s]\n", text)
}

// SetCommands is a no-op; the terminal has no native command surface.
func (t *Terminal) SetCommands(commands []CommandInfo) {}

func mimeFromExt(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".mp3":
		return "audio/mpeg"
	case ".ogg", ".oga":
		return "audio/ogg"
	case ".wav":
		return "audio/wav"
	case ".m4a":
		return "audio/mp4"
	case ".txt", ".md":
		return "text/plain"
	case ".pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

const (
	ansiReset  = "\033[0m"
	ansiBold   = "\033[1m"
	ansiItalic = "\033[3m"
	ansiCyan   = "\033[36m"
)

var (
	mdBold      = regexp.MustCompile(`\*\*(.*?)\*\*`)
	mdItalic    = regexp.MustCompile(`\*([^\s*][^*]*?)\*`)
	mdCodeBlock = regexp.MustCompile("(?s)```(.*?)```")
	mdCode      = regexp.MustCompile("`([^`]*)`")
	mdLink      = regexp.MustCompile(`\[(.*?)\]\((.*?)\)`)
	mdHeader    = regexp.MustCompile(`(?m)^#{1,6}\s+(.*)$`)
)

// renderMarkdown converts basic markdown to ANSI escapes.
func renderMarkdown(text string) string {
	text = mdCodeBlock.ReplaceAllString(text, ansiCyan+"$1"+ansiReset)
	text = mdBold.ReplaceAllString(text, ansiBold+"$1"+ansiReset)
	text = mdItalic.ReplaceAllString(text, ansiItalic+"$1"+ansiReset)
	text = mdCode.ReplaceAllString(text, ansiCyan+"$1"+ansiReset)
	text = mdLink.ReplaceAllString(text, "$1 ($2)")
	text = mdHeader.ReplaceAllString(text, ansiBold+"$1"+ansiReset)
	return text
}
