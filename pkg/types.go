package pkg

import (
	"encoding/json"
	"time"
)

// Role is the access role of a staff account.  Only clinicians may see the
// dashboard today; staff accounts exist so more roles can be added without
// reintroducing boolean flags.
type Role string

const (
	RoleClinician Role = "clinician"
	RoleStaff     Role = "staff"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleClinician || r == RoleStaff
}

// User is a staff account that can log in to the dashboard.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"created_at"`
}

// IsClinician mirrors the is_doctor flag the dashboard client expects.
func (u *User) IsClinician() bool { return u.Role == RoleClinician }

// Status is the lifecycle state of a patient session.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusWaiting    Status = "waiting"
	StatusCompleted  Status = "completed"
)

// Urgency is the coarse triage priority derived from the generated summary.
type Urgency string

const (
	UrgencyCritical Urgency = "Critical"
	UrgencyHigh     Urgency = "High"
	UrgencyMedium   Urgency = "Medium"
	UrgencyLow      Urgency = "Low"
)

// UrgencyLevels lists the labels from most to least urgent.  Extraction
// checks them in this order.
var UrgencyLevels = []Urgency{UrgencyCritical, UrgencyHigh, UrgencyMedium, UrgencyLow}

// Answer is one structured triage answer.
type Answer struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Answers holds structured answers in the order the questions were asked.
// It is stored as a JSON array so the order survives the round trip.
type Answers []Answer

// Get returns the value recorded under key.
func (a Answers) Get(key string) (string, bool) {
	for _, ans := range a {
		if ans.Key == key {
			return ans.Value, true
		}
	}
	return "", false
}

// Set records value under key, replacing an earlier answer in place.
func (a Answers) Set(key, value string) Answers {
	for i := range a {
		if a[i].Key == key {
			a[i].Value = value
			return a
		}
	}
	return append(a, Answer{Key: key, Value: value})
}

// MarshalJSON always emits an array, never null.
func (a Answers) MarshalJSON() ([]byte, error) {
	if a == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Answer(a))
}

// Patient represents one intake session.  SessionID is the opaque handle the
// patient's browser uses on the realtime channel.
type Patient struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Age       int       `json:"age"`
	CreatedAt time.Time `json:"created_at"`
	Status    Status    `json:"status"`
	Summary   string    `json:"summary"`
	SessionID string    `json:"session_id"`
	Answers   Answers   `json:"triage_data"`
	Urgency   Urgency   `json:"urgency_level"`
	FollowUps int       `json:"follow_ups"`
}

// MessageKind tags a message as plain chat, a posed question or an error.
type MessageKind string

const (
	KindChat     MessageKind = "chat"
	KindQuestion MessageKind = "question"
	KindError    MessageKind = "error"
)

// Message is a single entry in a patient's conversation log.
type Message struct {
	ID        int64       `json:"id"`
	PatientID int64       `json:"patient_id"`
	Text      string      `json:"message"`
	IsBot     bool        `json:"is_bot"`
	Kind      MessageKind `json:"type"`
	CreatedAt time.Time   `json:"timestamp"`
}

// PatientPreview is one row of the clinician dashboard.
type PatientPreview struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Age       int       `json:"age"`
	CreatedAt time.Time `json:"created_at"`
	Status    Status    `json:"status"`
	Summary   string    `json:"summary"`
	SessionID string    `json:"session_id"`
	Urgency   Urgency   `json:"urgency_level"`
}

// StartRequest is the body of POST /api/start_triage.
type StartRequest struct {
	Name string  `json:"name"`
	Age  FlexInt `json:"age"`
}

// StartResponse is returned after a session has been created.
type StartResponse struct {
	SessionID string `json:"session_id"`
	PatientID int64  `json:"patient_id"`
	Message   string `json:"message"`
}

// ChatRequest is the payload of a patient_message event.
type ChatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// ChatResponse is the payload of a bot_response event.
type ChatResponse struct {
	Message string      `json:"message"`
	Type    MessageKind `json:"type"`
}

// PatientReady is published to clinicians once structured triage finishes.
type PatientReady struct {
	PatientID int64 `json:"patient_id"`
}
