package channel

import (
	"encoding/base64"
	"testing"
)

func TestInputFromFrameText(t *testing.T) {
	ws := NewWebSocket(":0", nil)
	input, ok := ws.inputFromFrame(wsFrame{Type: "text", Text: "hello"})
	if !ok || input.Text != "hello" || input.Attachment != nil {
		t.Fatalf("got %+v, %v", input, ok)
	}
}

func TestInputFromFrameFile(t *testing.T) {
	ws := NewWebSocket(":0", nil)
	payload := []byte("file contents")
	input, ok := ws.inputFromFrame(wsFrame{
		Type:    "file",
		Name:    "notes.txt",
		Mime:    "text/plain",
		Caption: "my notes",
		Data:    base64.StdEncoding.EncodeToString(payload),
	})
	if !ok || input.Attachment == nil {
		t.Fatalf("got %+v, %v", input, ok)
	}
	a := input.Attachment
	if a.Name != "notes.txt" || a.Mime != "text/plain" || a.Caption != "my notes" {
		t.Fatalf("attachment metadata: %+v", a)
	}
	data, err := a.Content()
	if err != nil {
		t.Fatalf("content: %v", err)
	}
	if string(data) != string(payload) {
		t.Fatalf("payload %q", data)
	}
}

func TestInputFromFrameRejectsMalformed(t *testing.T) {
	ws := NewWebSocket(":0", nil)
	if _, ok := ws.inputFromFrame(wsFrame{Type: "file", Name: "x"}); ok {
		t.Fatal("file frame without data accepted")
	}
	if _, ok := ws.inputFromFrame(wsFrame{Type: "file", Data: "aGk="}); ok {
		t.Fatal("file frame without name accepted")
	}
	if _, ok := ws.inputFromFrame(wsFrame{Type: "status", Text: "x"}); ok {
		t.Fatal("outbound-only frame type accepted as input")
	}
}
