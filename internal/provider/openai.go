package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	"github.com/tjohnman/modular-ai-agent/internal/store"
	"github.com/tjohnman/modular-ai-agent/internal/tool"
)

// OpenAI speaks any chat-completions-compatible endpoint; the base URL
// is configurable so self-hosted and proxy backends work unchanged.
type OpenAI struct {
	client *openai.Client
	model  string
	log    *slog.Logger

	mu    sync.Mutex
	usage Usage
}

func NewOpenAI(apiKey, baseURL, model string, logger *slog.Logger) *OpenAI {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &OpenAI{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		log:    logger,
	}
}

func (p *OpenAI) Generate(ctx context.Context, messages []store.Message, tools []tool.Schema) (Response, error) {
	req := openai.ChatCompletionRequest{
		Model:    p.model,
		Messages: p.buildMessages(messages),
	}
	for _, schema := range tools {
		req.Tools = append(req.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        schema.Name,
				Description: schema.Description,
				Parameters:  schema.Parameters,
			},
		})
	}

	p.log.Debug("provider request", "model", p.model, "messages", len(req.Messages), "tools", len(req.Tools))
	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return Response{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, fmt.Errorf("chat completion: empty choices")
	}

	p.mu.Lock()
	p.usage.PromptTokens += resp.Usage.PromptTokens
	p.usage.CompletionTokens += resp.Usage.CompletionTokens
	p.usage.TotalTokens += resp.Usage.TotalTokens
	p.mu.Unlock()

	choice := resp.Choices[0].Message
	if len(choice.ToolCalls) > 0 {
		call := choice.ToolCalls[0]
		args := map[string]any{}
		if call.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
				return Response{}, fmt.Errorf("decode tool arguments: %w", err)
			}
		}
		return Response{ToolCall: &ToolCallRequest{
			Name: call.Function.Name,
			Args: args,
			ID:   call.ID,
		}}, nil
	}
	return Response{Text: choice.Content}, nil
}

func (p *OpenAI) Usage() Usage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.usage
}

// buildMessages maps session records onto the chat-completions wire
// shape. Tool calls persisted under the model role become assistant
// tool_calls entries; tool results reference the preceding call id.
func (p *OpenAI) buildMessages(messages []store.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	var lastCallID string
	callIndex := 1

	for _, msg := range messages {
		switch {
		case msg.Role == store.RoleModel && msg.ToolCall != nil:
			callID := msg.ToolCall.ID
			if callID == "" {
				callID = fmt.Sprintf("call_%d", callIndex)
			}
			callIndex++
			lastCallID = callID
			argsJSON, err := json.Marshal(msg.ToolCall.Args)
			if err != nil {
				argsJSON = []byte("{}")
			}
			out = append(out, openai.ChatCompletionMessage{
				Role: openai.ChatMessageRoleAssistant,
				ToolCalls: []openai.ToolCall{{
					ID:   callID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      msg.ToolCall.Name,
						Arguments: string(argsJSON),
					},
				}},
			})

		case msg.Role == store.RoleTool:
			content := msg.Content
			if msg.ToolResult != nil && msg.ToolResult.Result != "" {
				content = msg.ToolResult.Result
			}
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    content,
				Name:       msg.Name,
				ToolCallID: lastCallID,
			})

		case len(msg.Parts) > 0:
			out = append(out, openai.ChatCompletionMessage{
				Role:         roleFor(msg.Role),
				MultiContent: p.buildParts(msg.Parts),
			})

		default:
			out = append(out, openai.ChatCompletionMessage{
				Role:    roleFor(msg.Role),
				Content: msg.Content,
			})
		}
	}
	return out
}

func (p *OpenAI) buildParts(parts []store.Part) []openai.ChatMessagePart {
	out := make([]openai.ChatMessagePart, 0, len(parts))
	for _, part := range parts {
		switch {
		case part.Text != "":
			out = append(out, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeText,
				Text: part.Text,
			})
		case strings.HasPrefix(part.MimeType, "image/"):
			data := part.Data
			if len(data) == 0 && part.FilePath != "" {
				var err error
				data, err = os.ReadFile(part.FilePath)
				if err != nil {
					p.log.Error("read image part", "path", part.FilePath, "err", err)
				}
			}
			if len(data) == 0 {
				continue
			}
			url := fmt.Sprintf("data:%s;base64,%s", part.MimeType, base64.StdEncoding.EncodeToString(data))
			out = append(out, openai.ChatMessagePart{
				Type:     openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{URL: url},
			})
		case part.FilePath != "":
			// Non-image attachments are referenced by name; the backend
			// cannot ingest arbitrary binaries inline.
			out = append(out, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeText,
				Text: fmt.Sprintf("[Attached file: %s (%s)]", filepath.Base(part.FilePath), part.MimeType),
			})
		}
	}
	return out
}

func roleFor(role string) string {
	switch role {
	case store.RoleSystem:
		return openai.ChatMessageRoleSystem
	case store.RoleAssistant, store.RoleModel:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}
