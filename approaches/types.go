// Package approaches implements the chat-read-retrieve-read pipeline:
// the model writes a T-SQL query for the user's question, the query runs
// read-only against the configured database, and the model answers from
// the retrieved rows.
package approaches

import (
	"context"
	"encoding/json"

	"github.com/sashabaranov/go-openai"

	"github.com/cbattlegear/azure-data-chat/datasource"
	"github.com/cbattlegear/azure-data-chat/vendors"
)

// Message is one conversation turn as the client sends it.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Overrides tunes a single request. Everything is optional.
type Overrides struct {
	// Temperature of the answer step; nil keeps the default.
	Temperature *float32 `json:"temperature,omitempty"`
	// Top caps the number of rows retrieved for grounding.
	Top int `json:"top,omitempty"`
	// PromptTemplate replaces the answer system prompt, or extends it
	// when prefixed with ">>>".
	PromptTemplate string `json:"prompt_template,omitempty"`
	// SuggestFollowupQuestions asks the model to append <<...>> follow-ups.
	SuggestFollowupQuestions bool `json:"suggest_followup_questions,omitempty"`
}

// RunOptions carries per-request context resolved by the API layer.
type RunOptions struct {
	Overrides    Overrides
	AuthClaims   map[string]any
	SessionState json.RawMessage
}

// ResponseContext is the grounding data the UI shows in its analysis
// panel: one JSON-encoded row per data point, plus the generated query.
type ResponseContext struct {
	DataPoints []string `json:"data_points"`
	Thoughts   string   `json:"thoughts"`
}

type ResponseMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Choice struct {
	Index        int             `json:"index"`
	Message      ResponseMessage `json:"message"`
	Context      ResponseContext `json:"context"`
	SessionState json.RawMessage `json:"session_state"`
	FinishReason string          `json:"finish_reason"`
}

// ChatResponse is the non-streaming envelope, shaped like an OpenAI chat
// completion with the extra per-choice context the frontend expects.
type ChatResponse struct {
	Object  string   `json:"object"`
	Choices []Choice `json:"choices"`
}

// Delta is the incremental part of a streamed message.
type Delta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

type StreamChoice struct {
	Index        int              `json:"index"`
	Delta        Delta            `json:"delta"`
	Context      *ResponseContext `json:"context,omitempty"`
	SessionState json.RawMessage  `json:"session_state,omitempty"`
	FinishReason *string          `json:"finish_reason"`
}

// StreamChunk is one line of a streaming response.
type StreamChunk struct {
	Object  string         `json:"object"`
	Choices []StreamChoice `json:"choices"`
}

// StreamEvent is what RunStream emits: a chunk, or a terminal error that
// the transport reports on its own line.
type StreamEvent struct {
	Chunk *StreamChunk
	Err   error
}

// Completer is the slice of the model provider the pipeline uses.
type Completer interface {
	ChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	ChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (vendors.ChatStream, error)
}

// DataSource is the slice of the database client the pipeline uses.
type DataSource interface {
	Schema(ctx context.Context) (*datasource.Snapshot, error)
	Query(ctx context.Context, query string, maxRows int) (*datasource.ResultSet, error)
}
