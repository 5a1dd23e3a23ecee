package store

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// Role values match the on-disk record format. A tool call is recorded
// under the model role; its result under the tool role.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleModel     = "model"
	RoleTool      = "tool"
)

// bytesKey is the sentinel wrapper for binary payloads inside records.
const bytesKey = "__bytes_b64__"

// ToolCall is the structured request persisted when the model asks for a
// tool. ID is the provider's opaque continuation token, if any.
type ToolCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
	ID   string         `json:"id,omitempty"`
}

type ToolResult struct {
	Result string `json:"result"`
}

// Part is one element of a multimodal message: either inline text, a
// workspace file reference with its mime type, or raw bytes.
type Part struct {
	Text     string
	FilePath string
	MimeType string
	Data     []byte
}

// Message is one immutable record of a session log. Only the fields
// relevant to the record's variant are set.
type Message struct {
	Role       string
	Content    string
	Timestamp  time.Time
	Name       string
	ToolCall   *ToolCall
	ToolResult *ToolResult
	Parts      []Part
}

func encodeMessage(msg Message) ([]byte, error) {
	rec := map[string]any{
		"role":      msg.Role,
		"content":   msg.Content,
		"timestamp": msg.Timestamp.Format(time.RFC3339Nano),
	}
	if msg.Name != "" {
		rec["name"] = msg.Name
	}
	if msg.ToolCall != nil {
		call := map[string]any{
			"name": msg.ToolCall.Name,
			"args": msg.ToolCall.Args,
		}
		if msg.ToolCall.ID != "" {
			call["id"] = msg.ToolCall.ID
		}
		rec["tool_call"] = call
	}
	if msg.ToolResult != nil {
		rec["tool_result"] = map[string]any{"result": msg.ToolResult.Result}
	}
	if len(msg.Parts) > 0 {
		parts := make([]any, 0, len(msg.Parts))
		for _, p := range msg.Parts {
			part := map[string]any{}
			if p.Text != "" {
				part["text"] = p.Text
			}
			if p.FilePath != "" {
				part["file_path"] = p.FilePath
			}
			if p.MimeType != "" {
				part["mime_type"] = p.MimeType
			}
			if len(p.Data) > 0 {
				part["data"] = p.Data
			}
			parts = append(parts, part)
		}
		rec["parts"] = parts
	}
	return json.Marshal(wrapBytes(rec))
}

func decodeMessage(line []byte) (Message, bool, error) {
	var raw map[string]any
	if err := json.Unmarshal(line, &raw); err != nil {
		return Message{}, false, err
	}
	// Metadata and other non-message records are skipped by callers.
	if raw["type"] != nil {
		return Message{}, false, nil
	}
	role, _ := raw["role"].(string)
	if role == "" {
		return Message{}, false, nil
	}
	restored, ok := unwrapBytes(raw).(map[string]any)
	if !ok {
		return Message{}, false, fmt.Errorf("malformed record")
	}

	msg := Message{Role: role}
	msg.Content, _ = restored["content"].(string)
	if ts, ok := restored["timestamp"].(string); ok {
		msg.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
	}
	msg.Name, _ = restored["name"].(string)

	if call, ok := restored["tool_call"].(map[string]any); ok {
		tc := &ToolCall{}
		tc.Name, _ = call["name"].(string)
		tc.ID, _ = call["id"].(string)
		if args, ok := call["args"].(map[string]any); ok {
			tc.Args = args
		}
		msg.ToolCall = tc
	}
	if res, ok := restored["tool_result"].(map[string]any); ok {
		tr := &ToolResult{}
		tr.Result, _ = res["result"].(string)
		msg.ToolResult = tr
	}
	if rawParts, ok := restored["parts"].([]any); ok {
		for _, rp := range rawParts {
			pm, ok := rp.(map[string]any)
			if !ok {
				continue
			}
			var part Part
			part.Text, _ = pm["text"].(string)
			part.FilePath, _ = pm["file_path"].(string)
			part.MimeType, _ = pm["mime_type"].(string)
			if data, ok := pm["data"].([]byte); ok {
				part.Data = data
			}
			msg.Parts = append(msg.Parts, part)
		}
	}
	return msg, true, nil
}

// wrapBytes recursively replaces []byte values with the base64 sentinel
// wrapper so records stay valid JSON.
func wrapBytes(v any) any {
	switch val := v.(type) {
	case []byte:
		return map[string]any{bytesKey: base64.StdEncoding.EncodeToString(val)}
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = wrapBytes(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = wrapBytes(item)
		}
		return out
	default:
		return v
	}
}

func unwrapBytes(v any) any {
	switch val := v.(type) {
	case map[string]any:
		if enc, ok := val[bytesKey].(string); ok && len(val) == 1 {
			data, err := base64.StdEncoding.DecodeString(enc)
			if err == nil {
				return data
			}
			return val
		}
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = unwrapBytes(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = unwrapBytes(item)
		}
		return out
	default:
		return v
	}
}
