package core

import (
	"context"

	"github.com/rs/zerolog"

	"triage-chatbot/internal/llm"
	"triage-chatbot/pkg"
)

// historyWindow caps how many earlier messages are replayed to the model.
const historyWindow = 20

// ChatService produces assistant replies for the open-ended phase that
// follows the structured questions.
type ChatService struct {
	LLM llm.Client
	Log zerolog.Logger
}

// NewChatService constructs a new ChatService with the given LLM client.
func NewChatService(client llm.Client, log zerolog.Logger) *ChatService {
	return &ChatService{LLM: client, Log: log.With().Str("component", "chat").Logger()}
}

// Reply generates a reply to a patient message.  This is a blocking call that
// delegates to the LLM.  The history is the conversation so far in timestamp
// order.  On error ApologyMessage is returned together with the error, which
// has already been logged.
func (s *ChatService) Reply(ctx context.Context, history []pkg.Message, message string) (string, error) {
	msgs := make([]llm.Message, 0, historyWindow+2)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: SystemPrompt})
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	for _, m := range history {
		role := llm.RoleUser
		if m.IsBot {
			role = llm.RoleAssistant
		}
		msgs = append(msgs, llm.Message{Role: role, Content: m.Text})
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: message})

	resp, err := s.LLM.Chat(ctx, msgs)
	if err != nil {
		s.Log.Error().Err(err).Msg("completion failed")
		return ApologyMessage, err
	}
	return resp, nil
}
