package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triage-chatbot/pkg"
)

func TestExtractUrgency(t *testing.T) {
	cases := map[string]pkg.Urgency{
		"Urgency: High. Could become critical.":     pkg.UrgencyCritical,
		"recommended urgency level: HIGH":            pkg.UrgencyHigh,
		"Severity medium, watch for low oxygen":      pkg.UrgencyMedium,
		"Mild symptoms. Urgency: low.":               pkg.UrgencyLow,
		"No label at all":                            pkg.UrgencyMedium,
		"":                                           pkg.UrgencyMedium,
		"The patient is highly anxious but stable.": pkg.UrgencyHigh,
	}
	for text, want := range cases {
		assert.Equal(t, want, ExtractUrgency(text), text)
	}
}

func TestSummaryPrompt(t *testing.T) {
	p := &pkg.Patient{Name: "Alice", Age: 30}
	now := time.Now()
	transcript := []pkg.Message{
		{Text: "What brings you in?", IsBot: true, CreatedAt: now},
		{Text: "headache", CreatedAt: now.Add(time.Second)},
	}
	want := "Patient Info:\nName: Alice\nAge: 30\n\nConversation:\nBot: What brings you in?\nPatient: headache"
	assert.Equal(t, want, SummaryPrompt(p, transcript))
}

func TestSummarizerSuccess(t *testing.T) {
	var gotInstruction, gotContent string
	m := &MockLLM{SummarizeFunc: func(_ context.Context, instruction, content string) (string, error) {
		gotInstruction, gotContent = instruction, content
		return "Chief complaint: chest pain. Urgency: Critical.", nil
	}}
	s := NewSummarizer(m, zerolog.Nop())

	sum, err := s.Summarize(context.Background(), &pkg.Patient{Name: "Bob", Age: 61}, nil)
	require.NoError(t, err)
	assert.Equal(t, pkg.UrgencyCritical, sum.Urgency)
	assert.Contains(t, sum.Text, "chest pain")
	assert.Equal(t, SummarizationInstruction, gotInstruction)
	assert.Contains(t, gotContent, "Name: Bob")
}

func TestSummarizerFailureFallsBack(t *testing.T) {
	m := &MockLLM{SummarizeFunc: func(context.Context, string, string) (string, error) {
		return "", errors.New("boom")
	}}
	s := NewSummarizer(m, zerolog.Nop())

	sum, err := s.Summarize(context.Background(), &pkg.Patient{Name: "Bob"}, nil)
	assert.Error(t, err)
	assert.Equal(t, SummaryUnavailable, sum.Text)
	assert.Equal(t, pkg.UrgencyMedium, sum.Urgency)
}
