package llm

import (
	"context"
	"errors"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// ErrEmptyCompletion is returned when the API answers without any choices.
var ErrEmptyCompletion = errors.New("llm: completion returned no choices")

// Message is a minimal chat message used by the core services.
// Role must be one of: "system", "user", or "assistant".
type Message struct {
	Role    string
	Content string
}

const (
	RoleSystem    = openai.ChatMessageRoleSystem
	RoleUser      = openai.ChatMessageRoleUser
	RoleAssistant = openai.ChatMessageRoleAssistant
)

// Client defines the completion calls required by the triage engine and the
// summariser.  Chat accepts the full message history (system + prior turns +
// latest user).  Summarize sends one system instruction and one user content.
type Client interface {
	Chat(ctx context.Context, messages []Message) (string, error)
	Summarize(ctx context.Context, instruction, content string) (string, error)
}

// Options configures an OpenAIClient.
type Options struct {
	APIKey       string
	BaseURL      string
	ChatModel    string
	SummaryModel string
	// Timeout bounds every call.  Zero means no extra deadline.
	Timeout time.Duration
}

// OpenAIClient calls the OpenAI API for chat and summarisation responses.
// Calls are single-attempt; the caller decides how to degrade on error.
type OpenAIClient struct {
	client       *openai.Client
	chatModel    string
	summaryModel string
	timeout      time.Duration
}

// NewOpenAIClient constructs an OpenAI-backed LLM client from explicit
// options and falls back to sensible model defaults.
func NewOpenAIClient(opts Options) *OpenAIClient {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	chatModel := opts.ChatModel
	if chatModel == "" {
		chatModel = "gpt-4o-mini"
	}
	summaryModel := opts.SummaryModel
	if summaryModel == "" {
		summaryModel = chatModel
	}
	return &OpenAIClient{
		client:       openai.NewClientWithConfig(cfg),
		chatModel:    chatModel,
		summaryModel: summaryModel,
		timeout:      opts.Timeout,
	}
}

// Chat sends the message history to the OpenAI chat completion API and returns
// the assistant's response.
func (c *OpenAIClient) Chat(ctx context.Context, messages []Message) (string, error) {
	if c.client == nil {
		return "", errors.New("openai client not initialized")
	}

	// Convert to OpenAI message type
	oaMsgs := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		role := m.Role
		if role != RoleSystem && role != RoleUser && role != RoleAssistant {
			// coerce anything unknown to user
			role = RoleUser
		}
		oaMsgs = append(oaMsgs, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return c.complete(ctx, c.chatModel, oaMsgs)
}

// Summarize runs a single instruction/content completion on the summary model.
func (c *OpenAIClient) Summarize(ctx context.Context, instruction, content string) (string, error) {
	return c.complete(ctx, c.summaryModel, []openai.ChatCompletionMessage{
		{Role: RoleSystem, Content: instruction},
		{Role: RoleUser, Content: content},
	})
}

func (c *OpenAIClient) complete(ctx context.Context, model string, msgs []openai.ChatCompletionMessage) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: 0.2,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	return resp.Choices[0].Message.Content, nil
}
