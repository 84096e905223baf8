package core

import (
	"context"

	"triage-chatbot/pkg"
)

// Step is the outcome of one inbound patient message.
type Step struct {
	Reply string
	Kind  pkg.MessageKind
	// Update is the structured answer to record, if any.
	Update *pkg.Answer
	// Complete is set by the message that answers the last question.
	Complete bool
	// FollowUp is set when an open-ended reply was produced by the model and
	// counts against the follow-up limit.
	FollowUp bool
}

// Engine maps "how many answers exist" to "what happens next".  It holds no
// per-patient state; callers serialise calls for the same patient.
type Engine struct {
	Script Script
	Chat   *ChatService
	// FollowUpLimit is the number of open-ended replies allowed after the
	// structured phase.  Zero disables the open-ended phase.
	FollowUpLimit int
}

// NewEngine constructs an Engine.
func NewEngine(script Script, chat *ChatService, followUpLimit int) *Engine {
	return &Engine{Script: script, Chat: chat, FollowUpLimit: followUpLimit}
}

// Advance decides the reply to text for patient p.  The session opening has
// already asked the first question, so the answer is stored under the key of
// question len(p.Answers) and the reply is the next prompt.
func (e *Engine) Advance(ctx context.Context, p *pkg.Patient, history []pkg.Message, text string) Step {
	step := len(p.Answers)
	if p.Status != pkg.StatusCompleted && step < len(e.Script) {
		q := e.Script[step]
		value, err := q.Normalize(text)
		if err != nil {
			return Step{Reply: q.Retry(), Kind: pkg.KindQuestion}
		}
		st := Step{Update: &pkg.Answer{Key: q.Key, Value: value}}
		if step+1 < len(e.Script) {
			st.Reply = e.Script[step+1].Prompt
			st.Kind = pkg.KindQuestion
			return st
		}
		st.Reply = HandoffMessage
		st.Kind = pkg.KindChat
		st.Complete = true
		return st
	}

	if p.Status == pkg.StatusCompleted || p.FollowUps >= e.FollowUpLimit {
		return Step{Reply: ClosingMessage, Kind: pkg.KindChat}
	}
	reply, err := e.Chat.Reply(ctx, history, text)
	if err != nil {
		return Step{Reply: ApologyMessage, Kind: pkg.KindError}
	}
	return Step{Reply: reply, Kind: pkg.KindChat, FollowUp: true}
}
