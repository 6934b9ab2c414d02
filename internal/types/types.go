// Package types holds the shared data model for the conversational core:
// chat messages, the per-turn context accumulator, intent routing units and
// the catalog item shapes exchanged between agents, tools and the merger.
package types

import (
	"strings"
)

// Role tags a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ChatMessage is one entry of the conversation history. History is owned by
// the calling session and immutable once appended; the core only reads a
// bounded window of it.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// ToolCalls echoes tool invocations on assistant messages so a
	// provider can replay the tool exchange.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	// ToolCallID links a RoleTool result back to the originating call.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// Attachment is one structured result item for the caller to render.
// The field set is a closed allow-list; the envelope codec rejects
// anything the model adds beyond these.
type Attachment struct {
	Index      int     `json:"index" validate:"gte=0"`
	LocalID    *string `json:"localId"`
	TMDBID     *int    `json:"tmdbId"`
	Title      string  `json:"title" validate:"required"`
	Year       *int    `json:"year"`
	PosterPath *string `json:"posterPath"`
}

// MaxAttachments bounds the attachment list carried in a turn context.
const MaxAttachments = 20

// Candidate is one disambiguation option offered when entity resolution is
// ambiguous. Candidates travel only inside the context thread, never in the
// user-visible message.
type Candidate struct {
	ReferenceID int    `json:"referenceId"`
	LocalID     string `json:"localId,omitempty"`
	Name        string `json:"name"`
	PreviewPath string `json:"previewPath,omitempty"`
}

// MaxCandidates bounds the disambiguation list stored in the thread.
const MaxCandidates = 3

// TurnContext is the accumulator threaded through the intent steps of one
// user turn. Steps never mutate a shared instance; each step returns a new
// value so mutations from step n are visible to step n+1 without aliasing.
type TurnContext struct {
	// Result is the user-visible message produced so far.
	Result string
	// Thread is the serialized context thread (the additional_context
	// string round-tripped across turns by the caller).
	Thread string
	// Attachments is the bounded list of items for the caller to render.
	Attachments []Attachment
}

// WithResult returns a copy with the visible message replaced.
func (tc TurnContext) WithResult(msg string) TurnContext {
	tc.Result = msg
	return tc
}

// IntentType enumerates the closed set of routable intents.
type IntentType string

const (
	IntentNone             IntentType = "none"
	IntentCatalogDiscovery IntentType = "catalog_discovery"
	IntentPersonLookup     IntentType = "person_lookup"
	IntentSimilarMovies    IntentType = "similar_movies"
)

// ParseIntentType normalizes a model-supplied intent string. Unrecognized
// values coerce to IntentNone; they are never dropped and never an error.
func ParseIntentType(s string) IntentType {
	switch IntentType(strings.ToLower(strings.TrimSpace(s))) {
	case IntentCatalogDiscovery:
		return IntentCatalogDiscovery
	case IntentPersonLookup:
		return IntentPersonLookup
	case IntentSimilarMovies:
		return IntentSimilarMovies
	default:
		return IntentNone
	}
}

// IntentStep is one routed unit of work produced by the intent extractor.
type IntentStep struct {
	Type IntentType
	// ContextHint is a short agent-directed instruction derived from the
	// user's turn, e.g. "year=2014".
	ContextHint string
}

// MovieItem is the unified catalog item shape produced by both sources.
// LocalID is empty for remote-only items; TMDBID is zero when the local
// record has no remote mapping.
type MovieItem struct {
	LocalID    string `json:"localId,omitempty"`
	TMDBID     int    `json:"tmdbId,omitempty"`
	Title      string `json:"title"`
	Year       int    `json:"year,omitempty"`
	PosterPath string `json:"posterPath,omitempty"`
	Overview   string `json:"overview,omitempty"`
}

// Attachment converts a catalog item to the renderable attachment shape.
func (m MovieItem) Attachment(index int) Attachment {
	a := Attachment{Index: index, Title: m.Title}
	if m.LocalID != "" {
		id := m.LocalID
		a.LocalID = &id
	}
	if m.TMDBID != 0 {
		id := m.TMDBID
		a.TMDBID = &id
	}
	if m.Year != 0 {
		y := m.Year
		a.Year = &y
	}
	if m.PosterPath != "" {
		p := m.PosterPath
		a.PosterPath = &p
	}
	return a
}

// PersonItem is a person search result from the remote catalog.
type PersonItem struct {
	TMDBID      int      `json:"tmdbId"`
	LocalID     string   `json:"localId,omitempty"`
	Name        string   `json:"name"`
	ProfilePath string   `json:"profilePath,omitempty"`
	KnownFor    []string `json:"knownFor,omitempty"`
}

// Genre is a catalog genre with its internal identifier.
type Genre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// SearchCriteria describes a catalog query against either source.
// Zero values mean "unconstrained" for that dimension.
type SearchCriteria struct {
	Text     string
	Year     int
	GenreIDs []int
	Page     int
	PageSize int
}

// PageInfo reports remote-source pagination as the remote returns it.
type PageInfo struct {
	Page         int
	TotalResults int
	TotalPages   int
}
