// Package llm is the model call boundary. A Generator turns a prompt and a
// transcript into free text; interpreting that text is up to the caller.
package llm

import "context"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string
	Content string
}

// Request is one model call. JSON asks the backend for a JSON-object
// response when it supports it.
type Request struct {
	System      string
	Messages    []Message
	Temperature float32
	JSON        bool
}

type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}
