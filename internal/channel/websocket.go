package channel

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// wsFrame is the JSON envelope exchanged with the operator client.
type wsFrame struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Name    string `json:"name,omitempty"`
	Mime    string `json:"mime,omitempty"`
	Data    string `json:"data,omitempty"` // base64
	Caption string `json:"caption,omitempty"`
	Action  string `json:"action,omitempty"`

	Commands []wsCommand `json:"commands,omitempty"`
}

type wsCommand struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// WebSocket serves a single operator connection over an HTTP listener.
// It stands where a messaging-app channel would: inputs arrive as JSON
// frames, outputs and files are pushed back on the same socket.
type WebSocket struct {
	addr string
	log  *slog.Logger

	inbox chan Input

	mu       sync.Mutex
	conn     *websocket.Conn
	commands []CommandInfo

	server    *http.Server
	indicator *Indicator
	closed    chan struct{}
	closeOnce sync.Once
}

func NewWebSocket(addr string, logger *slog.Logger) *WebSocket {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	ws := &WebSocket{
		addr:   addr,
		log:    logger,
		inbox:  make(chan Input, 16),
		closed: make(chan struct{}),
	}
	ws.indicator = NewIndicator(func(action string) {
		ws.writeFrame(wsFrame{Type: "activity", Action: action})
	})
	return ws
}

func (ws *WebSocket) Name() string { return "websocket" }

// Start begins listening. It returns once the server is running; serve
// errors after startup are logged.
func (ws *WebSocket) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", ws.handleWS)
	ws.server = &http.Server{
		Addr:              ws.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := ws.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			ws.log.Error("websocket channel: serve", "err", err)
		}
	}()
	ws.log.Info("websocket channel listening", "addr", ws.addr)
	return nil
}

// Close shuts the listener and unblocks GetInput.
func (ws *WebSocket) Close() {
	ws.closeOnce.Do(func() {
		close(ws.closed)
		if ws.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = ws.server.Shutdown(ctx)
		}
	})
}

func (ws *WebSocket) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return
	}

	ws.mu.Lock()
	if ws.conn != nil {
		_ = ws.conn.Close(websocket.StatusPolicyViolation, "replaced by new connection")
	}
	ws.conn = conn
	commands := ws.commands
	ws.mu.Unlock()

	if len(commands) > 0 {
		ws.sendCommands(commands)
	}

	ctx := r.Context()
	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			break
		}
		if msgType != websocket.MessageText {
			continue
		}
		var frame wsFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			ws.log.Error("websocket channel: bad frame", "err", err)
			continue
		}
		input, ok := ws.inputFromFrame(frame)
		if !ok {
			continue
		}
		select {
		case ws.inbox <- input:
		case <-ws.closed:
			return
		}
	}

	ws.mu.Lock()
	if ws.conn == conn {
		ws.conn = nil
	}
	ws.mu.Unlock()
	_ = conn.Close(websocket.StatusNormalClosure, "done")
}

func (ws *WebSocket) inputFromFrame(frame wsFrame) (Input, bool) {
	switch frame.Type {
	case "text":
		return Input{Text: frame.Text}, true
	case "file":
		if frame.Name == "" || frame.Data == "" {
			return Input{}, false
		}
		encoded := frame.Data
		return Input{Attachment: &Attachment{
			Name:    frame.Name,
			Mime:    frame.Mime,
			Caption: frame.Caption,
			Content: func() ([]byte, error) {
				return base64.StdEncoding.DecodeString(encoded)
			},
		}}, true
	default:
		return Input{}, false
	}
}

// GetInput blocks until the connected client sends the next frame.
func (ws *WebSocket) GetInput() (Input, error) {
	select {
	case input := <-ws.inbox:
		return input, nil
	case <-ws.closed:
		return Input{}, fmt.Errorf("websocket channel closed")
	}
}

func (ws *WebSocket) SendOutput(text string) {
	ws.writeFrame(wsFrame{Type: "text", Text: text})
}

func (ws *WebSocket) SendFile(path, caption string) {
	data, err := os.ReadFile(path)
	if err != nil {
		ws.log.Error("websocket channel: read file", "path", path, "err", err)
		return
	}
	ws.writeFrame(wsFrame{
		Type:    "file",
		Name:    filepath.Base(path),
		Mime:    mimeFromExt(path),
		Data:    base64.StdEncoding.EncodeToString(data),
		Caption: caption,
	})
}

func (ws *WebSocket) ShowActivity(action string) {
	ws.indicator.Start(action)
}

func (ws *WebSocket) StopActivity() {
	ws.indicator.Stop()
}

func (ws *WebSocket) SendStatus(text string) {
	ws.writeFrame(wsFrame{Type: "status", Text: text})
}

func (ws *WebSocket) SetCommands(commands []CommandInfo) {
	ws.mu.Lock()
	ws.commands = commands
	ws.mu.Unlock()
	ws.sendCommands(commands)
}

func (ws *WebSocket) sendCommands(commands []CommandInfo) {
	frame := wsFrame{Type: "commands"}
	for _, c := range commands {
		frame.Commands = append(frame.Commands, wsCommand{Name: c.Name, Description: c.Description})
	}
	ws.writeFrame(frame)
}

func (ws *WebSocket) writeFrame(frame wsFrame) {
	ws.mu.Lock()
	conn := ws.conn
	ws.mu.Unlock()
	if conn == nil {
		return
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
		ws.log.Error("websocket channel: write", "err", err)
	}
}
