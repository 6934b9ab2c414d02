// Package llm implements the chat-completion client used by every agent.
// It speaks the OpenAI-compatible streaming protocol: one request per
// completion, SSE response drained to the end before anything is returned.
// The caller never sees partial fragments; a half-received envelope is
// worse than a slow one.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"cinechat/internal/types"
)

// Config holds client configuration.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	// RequestTimeout bounds one whole completion, stream included. A
	// completion that exceeds it fails the turn instead of hanging.
	RequestTimeout time.Duration
	MaxTokens      int
	MaxRetries     int
	RateLimitDelay time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:         apiKey,
		BaseURL:        "https://api.openai.com/v1",
		Model:          "gpt-4o-mini",
		RequestTimeout: 2 * time.Minute,
		MaxTokens:      4096,
		MaxRetries:     3,
		RateLimitDelay: 100 * time.Millisecond,
	}
}

// Client is an OpenAI-compatible chat-completion client.
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *zap.Logger

	mu          sync.Mutex
	lastRequest time.Time
}

var _ types.LLMClient = (*Client)(nil)

// New creates a client from config.
func New(cfg Config, log *zap.Logger) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 2 * time.Minute
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		log:        log.Named("llm"),
	}
}

// Complete sends one chat completion and drains the stream fully before
// returning. Tool-call fragments are reassembled across deltas; tool calls
// missing a provider ID get a synthesized one so results can be correlated.
func (c *Client) Complete(ctx context.Context, req types.CompletionRequest) (*types.Completion, error) {
	if c.cfg.APIKey == "" {
		return nil, fmt.Errorf("API key not configured")
	}
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("empty conversation")
	}

	// Auto-apply timeout if the context has no deadline.
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}

	c.throttle()

	body := chatRequest{
		Model:       c.cfg.Model,
		Messages:    toWireMessages(req.Messages),
		Tools:       toWireTools(req.Tools),
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: req.Temperature,
		Stream:      true,
		StreamOptions: &streamOptions{
			IncludeUsage: true,
		},
	}
	if req.JSONResponse {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	start := time.Now()
	maxRetries := c.cfg.MaxRetries
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(1<<uint(attempt-1)) * time.Second):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(jsonData))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		httpReq.Header.Set("Accept", "text/event-stream")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			b, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("rate limit exceeded (429): %s", strings.TrimSpace(string(b)))
			continue
		}
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(b))
		}

		completion, err := c.drainStream(ctx, resp.Body)
		resp.Body.Close()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}

		c.log.Debug("completion finished",
			zap.Duration("elapsed", time.Since(start)),
			zap.Int("tool_calls", len(completion.ToolCalls)),
			zap.String("stop_reason", completion.StopReason),
			zap.Int("total_tokens", completion.Usage.TotalTokens))
		return completion, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// throttle enforces minimum spacing between requests.
func (c *Client) throttle() {
	if c.cfg.RateLimitDelay <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if elapsed := time.Since(c.lastRequest); elapsed < c.cfg.RateLimitDelay {
		time.Sleep(c.cfg.RateLimitDelay - elapsed)
	}
	c.lastRequest = time.Now()
}

// toolCallBuilder accumulates one tool call across stream deltas.
type toolCallBuilder struct {
	id   string
	name string
	args strings.Builder
}

// drainStream consumes the SSE body to [DONE], accumulating text deltas,
// tool-call fragments and usage.
func (c *Client) drainStream(ctx context.Context, body io.Reader) (*types.Completion, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var text strings.Builder
	builders := make(map[int]*toolCallBuilder)
	var order []int
	completion := &types.Completion{}

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			break
		}

		var chunk chatChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// A single malformed keep-alive line is not fatal.
			continue
		}
		if chunk.Error != nil {
			return nil, fmt.Errorf("API error: %s", chunk.Error.Message)
		}
		if chunk.Usage != nil {
			completion.Usage = types.UsageMetadata{
				InputTokens:  chunk.Usage.PromptTokens,
				OutputTokens: chunk.Usage.CompletionTokens,
				TotalTokens:  chunk.Usage.TotalTokens,
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.FinishReason != "" {
			completion.StopReason = choice.FinishReason
		}
		if choice.Delta == nil {
			continue
		}
		if choice.Delta.Content != "" {
			text.WriteString(choice.Delta.Content)
		}
		for _, tc := range choice.Delta.ToolCalls {
			b, ok := builders[tc.Index]
			if !ok {
				b = &toolCallBuilder{}
				builders[tc.Index] = b
				order = append(order, tc.Index)
			}
			if tc.ID != "" {
				b.id = tc.ID
			}
			if tc.Function.Name != "" {
				b.name = tc.Function.Name
			}
			b.args.WriteString(tc.Function.Arguments)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("stream error: %w", err)
	}

	completion.Text = text.String()
	for _, idx := range order {
		b := builders[idx]
		if b.name == "" {
			continue
		}
		call := types.ToolCall{ID: b.id, Name: b.name}
		if call.ID == "" {
			call.ID = "call_" + uuid.NewString()
		}
		args := strings.TrimSpace(b.args.String())
		if args != "" {
			var input map[string]any
			if err := json.Unmarshal([]byte(args), &input); err != nil {
				return nil, fmt.Errorf("failed to unmarshal arguments for tool %s: %w", b.name, err)
			}
			call.Input = input
		} else {
			call.Input = map[string]any{}
		}
		completion.ToolCalls = append(completion.ToolCalls, call)
	}

	return completion, nil
}

func toWireMessages(msgs []types.ChatMessage) []chatMessage {
	out := make([]chatMessage, len(msgs))
	for i, m := range msgs {
		wm := chatMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			args, err := json.Marshal(tc.Input)
			if err != nil {
				args = []byte("{}")
			}
			wm.ToolCalls = append(wm.ToolCalls, wireToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: wireFunctionCall{
					Name:      tc.Name,
					Arguments: string(args),
				},
			})
		}
		out[i] = wm
	}
	return out
}

func toWireTools(tools []types.ToolDefinition) []wireTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]wireTool, len(tools))
	for i, t := range tools {
		out[i] = wireTool{
			Type: "function",
			Function: wireFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		}
	}
	return out
}
