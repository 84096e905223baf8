package core

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"triage-chatbot/pkg"
)

// AnswerShape is the expected form of a structured answer.
type AnswerShape string

const (
	ShapeText   AnswerShape = "text"
	ShapeNumber AnswerShape = "number"
)

// ErrInvalidAnswer is returned when an answer does not fit its question.
var ErrInvalidAnswer = errors.New("invalid answer")

// Question is one structured triage question.
type Question struct {
	Key    string
	Prompt string
	Shape  AnswerShape
	// Min and Max bound numeric answers when Max > Min.
	Min, Max int
}

// Normalize trims the answer and checks it against the question shape.
func (q Question) Normalize(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%s: %w: empty", q.Key, ErrInvalidAnswer)
	}
	if q.Shape != ShapeNumber {
		return text, nil
	}
	n, err := strconv.Atoi(text)
	if err != nil {
		return "", fmt.Errorf("%s: %w: not a number", q.Key, ErrInvalidAnswer)
	}
	if q.Max > q.Min && (n < q.Min || n > q.Max) {
		return "", fmt.Errorf("%s: %w: %d out of range", q.Key, ErrInvalidAnswer, n)
	}
	return strconv.Itoa(n), nil
}

// Retry is the prompt used when an answer was rejected.
func (q Question) Retry() string {
	if q.Shape == ShapeNumber && q.Max > q.Min {
		return fmt.Sprintf("Please answer with a number from %d to %d. %s", q.Min, q.Max, q.Prompt)
	}
	return "Please answer the question. " + q.Prompt
}

// Script is the ordered list of structured questions.  Its length defines
// when the structured phase is complete.
type Script []Question

// DefaultScript is the intake questionnaire used by the server.
var DefaultScript = Script{
	{Key: "chief_complaint", Prompt: "What is your main reason for seeking medical attention today?", Shape: ShapeText},
	{Key: "pain_level", Prompt: "On a scale of 1-10, how would you rate your pain/discomfort?", Shape: ShapeNumber, Min: 1, Max: 10},
	{Key: "symptom_onset", Prompt: "When did your symptoms begin?", Shape: ShapeText},
	{Key: "medical_history", Prompt: "Do you have any relevant medical history or conditions?", Shape: ShapeText},
	{Key: "medications", Prompt: "Are you currently taking any medications?", Shape: ShapeText},
}

// Opening is the first bot message of a session: a greeting followed by the
// first question.
func (s Script) Opening() string {
	if len(s) == 0 {
		return WelcomeMessage
	}
	return WelcomeMessage + " " + s[0].Prompt
}

// Validate checks that stored answers follow the script: no more answers
// than questions and keys in question order.
func (s Script) Validate(a pkg.Answers) error {
	if len(a) > len(s) {
		return fmt.Errorf("%d answers for %d questions", len(a), len(s))
	}
	for i, ans := range a {
		if ans.Key != s[i].Key {
			return fmt.Errorf("answer %d has key %q, want %q", i, ans.Key, s[i].Key)
		}
	}
	return nil
}
