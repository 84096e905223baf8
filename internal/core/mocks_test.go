package core

import (
	"context"
	"errors"
	"sync/atomic"

	"triage-chatbot/internal/llm"
)

// Compile-time check to ensure MockLLM implements llm.Client.
var _ llm.Client = (*MockLLM)(nil)

// MockLLM is a function-field implementation of llm.Client.
type MockLLM struct {
	ChatFunc      func(ctx context.Context, messages []llm.Message) (string, error)
	SummarizeFunc func(ctx context.Context, instruction, content string) (string, error)

	ChatCalls      int32
	SummarizeCalls int32
}

func (m *MockLLM) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	atomic.AddInt32(&m.ChatCalls, 1)
	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, messages)
	}
	return "", errors.New("ChatFunc not implemented in mock")
}

func (m *MockLLM) Summarize(ctx context.Context, instruction, content string) (string, error) {
	atomic.AddInt32(&m.SummarizeCalls, 1)
	if m.SummarizeFunc != nil {
		return m.SummarizeFunc(ctx, instruction, content)
	}
	return "", errors.New("SummarizeFunc not implemented in mock")
}
