package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"triage-chatbot/internal/llm"
	"triage-chatbot/pkg"
)

// Summary is the clinician-facing outcome of a finished triage.
type Summary struct {
	Text    string
	Urgency pkg.Urgency
}

// Summarizer turns a finished conversation into a summary and an urgency
// label using the LLM client.
type Summarizer struct {
	LLM llm.Client
	Log zerolog.Logger
}

// NewSummarizer constructs a summariser.
func NewSummarizer(client llm.Client, log zerolog.Logger) *Summarizer {
	return &Summarizer{LLM: client, Log: log.With().Str("component", "summarizer").Logger()}
}

// Summarize analyses the transcript and produces a Summary.  The transcript
// should contain all messages of the session ordered chronologically.  When
// the LLM call fails a placeholder summary with Medium urgency is returned
// together with the error.
func (s *Summarizer) Summarize(ctx context.Context, p *pkg.Patient, transcript []pkg.Message) (Summary, error) {
	resp, err := s.LLM.Summarize(ctx, SummarizationInstruction, SummaryPrompt(p, transcript))
	if err != nil {
		s.Log.Error().Err(err).Int64("patient_id", p.ID).Msg("summary generation failed")
		return Summary{Text: SummaryUnavailable, Urgency: pkg.UrgencyMedium}, err
	}
	return Summary{Text: resp, Urgency: ExtractUrgency(resp)}, nil
}

// SummaryPrompt renders the patient details and the transcript as
// alternating "Patient:" and "Bot:" lines.
func SummaryPrompt(p *pkg.Patient, transcript []pkg.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Patient Info:\nName: %s\nAge: %d\n\nConversation:\n", p.Name, p.Age)
	for i, m := range transcript {
		if i > 0 {
			b.WriteByte('\n')
		}
		speaker := "Patient"
		if m.IsBot {
			speaker = "Bot"
		}
		b.WriteString(speaker)
		b.WriteString(": ")
		b.WriteString(m.Text)
	}
	return b.String()
}
