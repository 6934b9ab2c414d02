package types

import (
	"context"
)

// LLMClient defines the interface for LLM chat completions. Implementations
// stream the response internally and return only after the stream is fully
// drained; the core never acts on partial fragments.
type LLMClient interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}

// CompletionRequest carries one chat-completion invocation.
type CompletionRequest struct {
	Messages []ChatMessage `json:"messages"`
	// Tools the model may invoke in a model-decided order. Empty means
	// plain completion.
	Tools []ToolDefinition `json:"tools,omitempty"`
	// Temperature for sampling. Zero means provider default.
	Temperature float64 `json:"temperature,omitempty"`
	// JSONResponse requests response_format=json_object from the provider.
	JSONResponse bool `json:"json_response,omitempty"`
}

// ToolDefinition describes a domain function the LLM can invoke.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// ToolCall represents a tool invocation requested by the LLM.
type ToolCall struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// UsageMetadata captures token usage metrics from the LLM.
type UsageMetadata struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Completion is the fully accumulated result of one LLM invocation.
type Completion struct {
	// Text is the accumulated response text (may be empty when the model
	// only issued tool calls).
	Text string `json:"text"`
	// ToolCalls are tool invocations the model requested this round.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	// StopReason is the provider finish reason ("stop", "tool_calls", ...).
	StopReason string `json:"stop_reason,omitempty"`
	Usage      UsageMetadata `json:"usage"`
}

// LocalCatalog is the read-only search interface over the application's own
// datastore. Results are title-ordered and offset/limit paged; the second
// return value is the total match count before paging.
type LocalCatalog interface {
	SearchMovies(ctx context.Context, criteria SearchCriteria) ([]MovieItem, int, error)
	ListGenres(ctx context.Context) ([]Genre, error)
	MovieByID(ctx context.Context, localID string) (*MovieItem, error)
}

// RemoteCatalog is the third-party catalog client interface.
type RemoteCatalog interface {
	SearchMovies(ctx context.Context, criteria SearchCriteria) ([]MovieItem, PageInfo, error)
	DiscoverMovies(ctx context.Context, criteria SearchCriteria) ([]MovieItem, PageInfo, error)
	SimilarMovies(ctx context.Context, tmdbID int) ([]MovieItem, error)
	MovieDetails(ctx context.Context, tmdbID int) (*MovieItem, error)
	SearchPeople(ctx context.Context, name string) ([]PersonItem, PageInfo, error)
	PersonDetails(ctx context.Context, tmdbID int) (*PersonItem, error)
}

// Dispatcher is the generic query/command indirection to the rest of the
// application. Agents' tool functions treat it as an opaque call; requests
// are the typed query structs in internal/dispatch.
type Dispatcher interface {
	Send(ctx context.Context, req any) (any, error)
}
