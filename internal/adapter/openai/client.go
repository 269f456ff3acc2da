// Package openai implements the provider port over the OpenAI
// chat-completions streaming API. The same client serves any
// OpenAI-compatible endpoint when constructed with a custom base URL.
package openai

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

const defaultBaseURL = "https://api.openai.com/v1"

var _ provider.Provider = (*Client)(nil)

// Client streams chat completions from OpenAI or a compatible server.
type Client struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// NewClient creates a client against api.openai.com.
func NewClient(apiKey string, timeout time.Duration) *Client {
	return newClient("openai", defaultBaseURL, apiKey, timeout)
}

// NewCompatible creates a client against an OpenAI-compatible endpoint
// such as a local inference server. The API key may be empty.
func NewCompatible(baseURL, apiKey string, timeout time.Duration) *Client {
	return newClient("openai-compatible", baseURL, apiKey, timeout)
}

func newClient(name, baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Client{
		name:       name,
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SetBreaker attaches a circuit breaker to outgoing HTTP calls.
func (c *Client) SetBreaker(b *resilience.Breaker) { c.breaker = b }

// Name implements provider.Provider.
func (c *Client) Name() string { return c.name }

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

type chatMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content,omitempty"`
	ToolCalls  []chatToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type chatToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

func (c *Client) buildRequest(req provider.Request) map[string]any {
	messages := make([]chatMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}

	for _, m := range req.Messages {
		switch m.Role {
		case conversation.RoleUser:
			messages = append(messages, chatMessage{Role: "user", Content: m.Content})

		case conversation.RoleAssistant:
			cm := chatMessage{Role: "assistant", Content: m.Content}
			for _, call := range m.ToolCalls {
				tc := chatToolCall{ID: call.CallID, Type: "function"}
				tc.Function.Name = call.Name
				tc.Function.Arguments = call.ArgsJSON
				cm.ToolCalls = append(cm.ToolCalls, tc)
			}
			messages = append(messages, cm)

		case conversation.RoleTool:
			messages = append(messages, chatMessage{
				Role:       "tool",
				ToolCallID: m.CallID,
				Content:    provider.ResultContent(m.Result),
			})
		}
	}

	tools := make([]map[string]any, 0, len(req.Tools))
	for _, d := range req.Tools {
		tools = append(tools, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        d.Name,
				"description": d.Description,
				"parameters":  provider.ParseSchema(d.InputSchema),
			},
		})
	}

	payload := map[string]any{
		"model":    req.Model,
		"messages": messages,
		"stream":   true,
	}
	if len(tools) > 0 {
		payload["tools"] = tools
	}
	if req.MaxTokens > 0 {
		payload["max_tokens"] = req.MaxTokens
	}
	if req.Temperature != nil {
		payload["temperature"] = *req.Temperature
	}
	return payload
}

// --- inbound stream handling ---

// pendingCall buffers tool-argument fragments until the vendor asserts
// the arguments are complete.
type pendingCall struct {
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

	// Fragments buffer per streamed tool-call index; chat-completions
	// identifies calls positionally within a turn.
	pending := make(map[int]*pendingCall)
	order := make([]int, 0, 4)
	completed := false
	stopReason := ""
	var usage *event.Usage

	flushReady := func() {
		for _, idx := range order {
			p := pending[idx]
			events <- event.ToolCallReady(p.id, p.name, p.args.String())
		}
		pending = make(map[int]*pendingCall)
		order = order[:0]
	}

	scanner := sse.NewScanner(resp.Body)
	for {
		frame, ok := scanner.Next()
		if !ok {
			break
		}
		if frame.Data == "" || frame.Data == "[DONE]" {
			continue
		}

		var chunk chatChunk
		if err := json.Unmarshal([]byte(frame.Data), &chunk); err != nil {
			events <- event.Trace(event.TraceParseError, frame.Data)
			continue
		}
		if chunk.Error != nil {
			events <- event.Trace(event.TraceError, chunk.Error.Message)
			events <- event.ResponseCompleted("error", nil)
			return
		}
		if chunk.Usage != nil {
			usage = &event.Usage{
				InputTokens:  chunk.Usage.PromptTokens,
				OutputTokens: chunk.Usage.CompletionTokens,
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]

		if choice.Delta.Content != "" {
			events <- event.TextDelta(choice.Delta.Content)
		}

		for _, tc := range choice.Delta.ToolCalls {
			p, seen := pending[tc.Index]
			if !seen {
				p = &pendingCall{id: tc.ID, name: tc.Function.Name}
				pending[tc.Index] = p
				order = append(order, tc.Index)
				events <- event.ToolCallStarted(p.id, p.name)
			}
			if tc.ID != "" && p.id == "" {
				p.id = tc.ID
			}
			if tc.Function.Name != "" && p.name == "" {
				p.name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				p.args.WriteString(tc.Function.Arguments)
				events <- event.ToolCallArgsDelta(p.id, tc.Function.Arguments)
			}
		}

		if choice.FinishReason != "" {
			completed = true
			stopReason = normalizeStopReason(choice.FinishReason)
			flushReady()
		}
	}

	if err := scanner.Err(); err != nil {
		events <- event.Trace(event.TraceError, err.Error())
		events <- event.ResponseCompleted("error", usage)
		return
	}
	if !completed {
		// The stream ended without a finish_reason; treat whatever
		// arrived as a complete turn rather than failing it.
		stopReason = "stop"
		flushReady()
	}
	events <- event.ResponseCompleted(stopReason, usage)
}

func (c *Client) post(ctx context.Context, body []byte) (*http.Response, error) {
	var resp *http.Response
	call := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "text/event-stream")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

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

// chatChunk is one SSE data frame of a streamed chat completion.
type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// normalizeStopReason maps vendor finish reasons onto the normalized
// vocabulary: "stop" means done, everything else is non-terminal.
func normalizeStopReason(reason string) string {
	switch reason {
	case "stop":
		return "stop"
	case "tool_calls", "function_call":
		return "tool_use"
	case "length":
		return "length"
	default:
		return reason
	}
}
