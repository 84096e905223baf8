package intake

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"triage-chatbot/internal/core"
	"triage-chatbot/internal/db"
	"triage-chatbot/internal/events"
	"triage-chatbot/internal/realtime"
	"triage-chatbot/pkg"
)

const maxAge = 150

// Store is the persistence the intake flow needs.
type Store interface {
	CreatePatient(ctx context.Context, name string, age int, sessionID, opening string) (*pkg.Patient, error)
	GetPatient(ctx context.Context, id int64) (*pkg.Patient, error)
	GetPatientBySession(ctx context.Context, sessionID string) (*pkg.Patient, error)
	GetTranscript(ctx context.Context, patientID int64) ([]pkg.Message, error)
	RecordTurn(ctx context.Context, t db.Turn) error
	SaveSummary(ctx context.Context, patientID int64, summary string, urgency pkg.Urgency) error
	SetStatus(ctx context.Context, patientID int64, status pkg.Status) error
}

// Emitter delivers an event to the members of a room.
type Emitter interface {
	Emit(room, event string, payload any) error
}

// Service runs patient intake sessions: it creates them, advances them one
// message at a time and hands finished ones to clinicians.
type Service struct {
	Store      Store
	Engine     *core.Engine
	Summarizer *core.Summarizer
	Rooms      Emitter
	Events     events.Publisher
	Log        zerolog.Logger

	locks     *keyedMutex
	sessionID func() (string, error)
}

// NewService constructs a Service with random session ids.
func NewService(store Store, engine *core.Engine, summarizer *core.Summarizer, rooms Emitter, pub events.Publisher, log zerolog.Logger) *Service {
	return &Service{
		Store:      store,
		Engine:     engine,
		Summarizer: summarizer,
		Rooms:      rooms,
		Events:     pub,
		Log:        log.With().Str("component", "intake").Logger(),
		locks:      newKeyedMutex(),
		sessionID:  newSessionID,
	}
}

// newSessionID returns 256 random bits, URL-safe encoded.
func newSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Start opens a session for a new patient.  The opening question is stored
// as the first bot message of the transcript.
func (s *Service) Start(ctx context.Context, name string, age int) (*pkg.Patient, error) {
	name = strings.TrimSpace(name)
	if name == "" || age <= 0 {
		return nil, fmt.Errorf("%w: Name and age are required", pkg.ErrValidation)
	}
	if age > maxAge {
		return nil, fmt.Errorf("%w: age must be at most %d", pkg.ErrValidation, maxAge)
	}
	sid, err := s.sessionID()
	if err != nil {
		return nil, fmt.Errorf("session id: %w", err)
	}
	p, err := s.Store.CreatePatient(ctx, name, age, sid, s.Engine.Script.Opening())
	if err != nil {
		return nil, fmt.Errorf("create patient: %w", err)
	}
	s.Log.Info().Int64("patient", p.ID).Msg("triage session started")
	return p, nil
}

// Transcript returns the messages of the session identified by sessionID.
func (s *Service) Transcript(ctx context.Context, sessionID string) ([]pkg.Message, error) {
	p, err := s.Store.GetPatientBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.Store.GetTranscript(ctx, p.ID)
}

// HandleMessage processes one patient message to completion: the turn is
// stored, a finished structured phase is summarised and announced, and the
// reply is emitted to the patient's room.  Messages for the same session are
// handled one at a time.
func (s *Service) HandleMessage(ctx context.Context, sessionID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("%w: message is empty", pkg.ErrValidation)
	}
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	p, err := s.Store.GetPatientBySession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("session lookup: %w", err)
	}
	if err := s.Engine.Script.Validate(p.Answers); err != nil {
		return fmt.Errorf("patient %d has corrupt answers: %w", p.ID, err)
	}
	history, err := s.Store.GetTranscript(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("transcript: %w", err)
	}

	step := s.Engine.Advance(ctx, p, history, text)
	turn := db.Turn{PatientID: p.ID, Inbound: text, Reply: step.Reply, ReplyKind: step.Kind}
	if step.Update != nil || step.FollowUp {
		turn.UpdatePatient = true
		turn.Answers = append(pkg.Answers(nil), p.Answers...)
		if step.Update != nil {
			turn.Answers = turn.Answers.Set(step.Update.Key, step.Update.Value)
		}
		turn.Status = p.Status
		if step.Complete {
			turn.Status = pkg.StatusWaiting
		}
		turn.FollowUps = p.FollowUps
		if step.FollowUp {
			turn.FollowUps++
		}
	}
	if err := s.Store.RecordTurn(ctx, turn); err != nil {
		return fmt.Errorf("record turn: %w", err)
	}
	if turn.UpdatePatient {
		p.Answers, p.Status, p.FollowUps = turn.Answers, turn.Status, turn.FollowUps
	}

	if step.Complete {
		s.handOff(ctx, p)
	}
	if err := s.Rooms.Emit(realtime.PatientRoom(sessionID), realtime.EventBotResponse, pkg.ChatResponse{Message: step.Reply, Type: step.Kind}); err != nil {
		s.Log.Warn().Err(err).Int64("patient", p.ID).Msg("reply not delivered")
	}
	return nil
}

// handOff summarises a patient who finished the structured phase and tells
// clinicians.  Failures are logged; the turn itself is already stored.
func (s *Service) handOff(ctx context.Context, p *pkg.Patient) {
	log := s.Log.With().Int64("patient", p.ID).Logger()
	transcript, err := s.Store.GetTranscript(ctx, p.ID)
	if err != nil {
		log.Error().Err(err).Msg("transcript for summary")
	}
	sum, _ := s.Summarizer.Summarize(ctx, p, transcript)
	if err := s.Store.SaveSummary(ctx, p.ID, sum.Text, sum.Urgency); err != nil {
		log.Error().Err(err).Msg("save summary")
	} else {
		p.Summary, p.Urgency = sum.Text, sum.Urgency
	}
	if err := s.Events.PatientReady(ctx, pkg.PatientReady{PatientID: p.ID}); err != nil {
		log.Error().Err(err).Msg("patient ready notification")
	}
	log.Info().Str("urgency", string(sum.Urgency)).Msg("patient handed off")
}

// Close marks a session completed.  Later messages receive the closing
// reply and no model call is made.
func (s *Service) Close(ctx context.Context, patientID int64) error {
	p, err := s.Store.GetPatient(ctx, patientID)
	if err != nil {
		return err
	}
	unlock := s.locks.Lock(p.SessionID)
	defer unlock()
	if err := s.Store.SetStatus(ctx, patientID, pkg.StatusCompleted); err != nil {
		return err
	}
	s.Log.Info().Int64("patient", patientID).Msg("session closed")
	return nil
}
