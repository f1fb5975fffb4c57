package llm

import (
	"context"
	"strings"
	"time"
)

type mockGenerator struct{}

// NewMockGenerator returns a backend that echoes the last user message,
// useful for development and tests without a model server.
func NewMockGenerator() Generator { return &mockGenerator{} }

func (m *mockGenerator) Generate(ctx context.Context, req Request) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(20 * time.Millisecond):
	}
	last := ""
	if len(req.Messages) > 0 {
		last = req.Messages[len(req.Messages)-1].Content
	}
	return "[mock reply to " + strings.TrimSpace(last) + "]", nil
}
