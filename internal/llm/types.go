package llm

import "context"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one conversational turn in the shape the generation backends
// expect.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request describes a single generation call: a system-level instruction
// plus the ordered conversation turns.
type Request struct {
	System      string
	Messages    []Message
	Model       string
	MaxTokens   int
	Temperature float64
}

// Generator is the pluggable generation backend.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}
