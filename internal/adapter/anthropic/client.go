// Package anthropic implements the provider port over the Anthropic
// messages streaming API.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Strob0t/ForgeAgent/internal/adapter/sse"
	"github.com/Strob0t/ForgeAgent/internal/domain/conversation"
	"github.com/Strob0t/ForgeAgent/internal/domain/event"
	"github.com/Strob0t/ForgeAgent/internal/port/provider"
	"github.com/Strob0t/ForgeAgent/internal/resilience"
)

const (
	defaultBaseURL = "https://api.anthropic.com"
	apiVersion     = "2023-06-01"
)

var _ provider.Provider = (*Client)(nil)

// Client streams messages from the Anthropic API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// NewClient creates an Anthropic client.
func NewClient(apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Client{
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SetBreaker attaches a circuit breaker to outgoing HTTP calls.
func (c *Client) SetBreaker(b *resilience.Breaker) { c.breaker = b }

// Name implements provider.Provider.
func (c *Client) Name() string { return "anthropic" }

// Stream implements provider.Provider.
func (c *Client) Stream(ctx context.Context, req provider.Request) (<-chan event.ProviderEvent, error) {
	body, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	events := make(chan event.ProviderEvent, 64)
	go func() {
		defer close(events)
		c.stream(ctx, body, events)
	}()
	return events, nil
}

// --- outbound request shaping ---

// contentBlock is one element of an Anthropic message's content array.
type contentBlock struct {
	Type      string         `json:"type"`
	Text      string         `json:"text,omitempty"`
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Input     map[string]any `json:"input,omitempty"`
	ToolUseID string         `json:"tool_use_id,omitempty"`
	Content   string         `json:"content,omitempty"`
}

type apiMessage struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

func (c *Client) buildRequest(req provider.Request) map[string]any {
	messages := make([]apiMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case conversation.RoleUser:
			messages = append(messages, apiMessage{
				Role:    "user",
				Content: []contentBlock{{Type: "text", Text: m.Content}},
			})

		case conversation.RoleAssistant:
			var blocks []contentBlock
			if m.Content != "" {
				blocks = append(blocks, contentBlock{Type: "text", Text: m.Content})
			}
			for _, call := range m.ToolCalls {
				blocks = append(blocks, contentBlock{
					Type:  "tool_use",
					ID:    call.CallID,
					Name:  call.Name,
					Input: provider.ParseSchema(call.ArgsJSON),
				})
			}
			messages = append(messages, apiMessage{Role: "assistant", Content: blocks})

		case conversation.RoleTool:
			// Tool results ride in a user message per the messages API.
			messages = append(messages, apiMessage{
				Role: "user",
				Content: []contentBlock{{
					Type:      "tool_result",
					ToolUseID: m.CallID,
					Content:   provider.ResultContent(m.Result),
				}},
			})
		}
	}

	tools := make([]map[string]any, 0, len(req.Tools))
	for _, d := range req.Tools {
		tools = append(tools, map[string]any{
			"name":         d.Name,
			"description":  d.Description,
			"input_schema": provider.ParseSchema(d.InputSchema),
		})
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	payload := map[string]any{
		"model":      req.Model,
		"messages":   messages,
		"max_tokens": maxTokens,
		"stream":     true,
	}
	if req.SystemPrompt != "" {
		payload["system"] = req.SystemPrompt
	}
	if len(tools) > 0 {
		payload["tools"] = tools
	}
	if req.Temperature != nil {
		payload["temperature"] = *req.Temperature
	}
	return payload
}

// --- inbound stream handling ---

// blockState buffers one tool_use content block until its stop event.
type blockState struct {
	id   string
	name string
	args bytes.Buffer
}

func (c *Client) stream(ctx context.Context, body []byte, events chan<- event.ProviderEvent) {
	resp, err := c.post(ctx, body)
	if err != nil {
		events <- event.Trace(event.TraceError, err.Error())
		events <- event.ResponseCompleted("error", nil)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		events <- event.Trace(event.TraceError, fmt.Sprintf("HTTP %d: %s", resp.StatusCode, data))
		events <- event.ResponseCompleted("error", nil)
		return
	}

	blocks := make(map[int]*blockState)
	stopReason := ""
	var usage *event.Usage

	scanner := sse.NewScanner(resp.Body)
	for {
		frame, ok := scanner.Next()
		if !ok {
			break
		}
		if frame.Name == "ping" || frame.Data == "" {
			continue
		}

		var msg streamMessage
		if err := json.Unmarshal([]byte(frame.Data), &msg); err != nil {
			events <- event.Trace(event.TraceParseError, frame.Data)
			continue
		}

		switch msg.Type {
		case "message_start":
			if msg.Message != nil && msg.Message.Usage != nil {
				usage = &event.Usage{InputTokens: msg.Message.Usage.InputTokens}
			}

		case "content_block_start":
			if msg.ContentBlock != nil && msg.ContentBlock.Type == "tool_use" {
				blocks[msg.Index] = &blockState{id: msg.ContentBlock.ID, name: msg.ContentBlock.Name}
				events <- event.ToolCallStarted(msg.ContentBlock.ID, msg.ContentBlock.Name)
			}

		case "content_block_delta":
			if msg.Delta == nil {
				continue
			}
			switch msg.Delta.Type {
			case "text_delta":
				events <- event.TextDelta(msg.Delta.Text)
			case "input_json_delta":
				if b, ok := blocks[msg.Index]; ok {
					b.args.WriteString(msg.Delta.PartialJSON)
					events <- event.ToolCallArgsDelta(b.id, msg.Delta.PartialJSON)
				}
			}

		case "content_block_stop":
			if b, ok := blocks[msg.Index]; ok {
				events <- event.ToolCallReady(b.id, b.name, b.args.String())
				delete(blocks, msg.Index)
			}

		case "message_delta":
			if msg.Delta != nil && msg.Delta.StopReason != "" {
				stopReason = normalizeStopReason(msg.Delta.StopReason)
			}
			if msg.Usage != nil {
				if usage == nil {
					usage = &event.Usage{}
				}
				usage.OutputTokens = msg.Usage.OutputTokens
			}

		case "message_stop":
			// terminal marker; the completed event follows below

		case "error":
			raw := frame.Data
			if msg.Error != nil {
				raw = msg.Error.Message
			}
			events <- event.Trace(event.TraceError, raw)
			events <- event.ResponseCompleted("error", usage)
			return

		default:
			events <- event.Trace(event.TraceIgnored, frame.Data)
		}
	}

	if err := scanner.Err(); err != nil {
		events <- event.Trace(event.TraceError, err.Error())
		events <- event.ResponseCompleted("error", usage)
		return
	}
	if stopReason == "" {
		stopReason = "end_turn"
	}
	events <- event.ResponseCompleted(stopReason, usage)
}

func (c *Client) post(ctx context.Context, body []byte) (*http.Response, error) {
	var resp *http.Response
	call := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "text/event-stream")
		req.Header.Set("x-api-key", c.apiKey)
		req.Header.Set("anthropic-version", apiVersion)

		resp, err = c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}
		return nil
	}

	if c.breaker != nil {
		if err := c.breaker.Execute(call); err != nil {
			return nil, err
		}
		return resp, nil
	}
	if err := call(); err != nil {
		return nil, err
	}
	return resp, nil
}

// streamMessage is one SSE data frame of the messages API.
type streamMessage struct {
	Type  string `json:"type"`
	Index int    `json:"index"`

	Message *struct {
		Usage *struct {
			InputTokens int `json:"input_tokens"`
		} `json:"usage"`
	} `json:"message"`

	ContentBlock *struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"content_block"`

	Delta *struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
		StopReason  string `json:"stop_reason"`
	} `json:"delta"`

	Usage *struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`

	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// normalizeStopReason maps Anthropic stop reasons onto the normalized
// vocabulary: "end_turn" means done, everything else is non-terminal.
func normalizeStopReason(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence":
		return "end_turn"
	case "tool_use":
		return "tool_use"
	case "max_tokens":
		return "length"
	default:
		return reason
	}
}
