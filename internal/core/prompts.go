package core

// prompts.go defines the fixed texts used by the triage engine and the
// summariser.  Keeping them in one file makes them easy to tweak without
// touching the rest of the code.

const (
	// SystemPrompt frames the assistant for the open-ended phase that follows
	// the structured questions.
	SystemPrompt = "You are a medical triage assistant. Ask relevant follow-up questions based on the patient's responses. " +
		"Focus on gathering important medical information. Ask one short question at a time, " +
		"do not give a diagnosis or treatment advice, and keep an empathetic tone."

	// WelcomeMessage opens every session and is followed by the first
	// structured question.
	WelcomeMessage = "Hello! Before a clinician sees you I will ask a few short questions."

	// HandoffMessage is sent after the last structured answer.
	HandoffMessage = "Thank you. Your answers have been shared with the clinical team. " +
		"While you wait, feel free to tell me anything else about how you are feeling."

	// ApologyMessage replaces the assistant reply when the completion service
	// fails.
	ApologyMessage = "I'm sorry, I'm having trouble processing your response. Please try again."

	// ClosingMessage is sent once the follow-up limit is reached or a
	// clinician has closed the session.  No further completion calls are made.
	ClosingMessage = "Thank you for the details. A clinician will review your conversation shortly."

	// SummarizationInstruction asks for the clinician-facing summary.  The
	// urgency label is later extracted from the free text.
	SummarizationInstruction = "Generate a concise medical triage summary from the following conversation. " +
		"Include chief complaint, severity, key symptoms, and recommended urgency level (Low, Medium, High, Critical)."

	// SummaryUnavailable is stored when summarisation fails.
	SummaryUnavailable = "Error generating summary. Please review chat history."
)
