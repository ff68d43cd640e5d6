// Package llm is the chat gateway to the local language model. Errors from
// the gateway never propagate past the orchestrator boundary; callers convert
// them into displayable error messages.
package llm

import (
	"context"
	"time"
)

// TimeoutLLMCall bounds a single chat call. A timeout is a recoverable
// gateway error, not a process failure.
const TimeoutLLMCall = 60 * time.Second

// Provider is the interface the orchestrator depends on.
type Provider interface {
	// Name returns the provider identifier (e.g. "ollama").
	Name() string
	// Chat sends the full turn sequence and returns the model's reply.
	Chat(ctx context.Context, req *Request) (*Response, error)
}

// Request is a chat request.
type Request struct {
	Model    string
	Messages []Message
}

// Message is one chat message.
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// Response is a chat response.
type Response struct {
	Content      string
	FinishReason string
	InputTokens  int
	OutputTokens int
	Model        string
}
