package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"triage-chatbot/internal/auth"
	"triage-chatbot/pkg"
)

// Intake is the patient-facing session flow.
type Intake interface {
	Start(ctx context.Context, name string, age int) (*pkg.Patient, error)
	Transcript(ctx context.Context, sessionID string) ([]pkg.Message, error)
	Close(ctx context.Context, patientID int64) error
}

// Dashboard is the read side used by clinicians.
type Dashboard interface {
	ListActivePatients(ctx context.Context) ([]pkg.PatientPreview, error)
	GetPatient(ctx context.Context, id int64) (*pkg.Patient, error)
	GetTranscript(ctx context.Context, patientID int64) ([]pkg.Message, error)
}

// Accounts logs staff in and resolves their tokens.
type Accounts interface {
	Login(ctx context.Context, email, password string) (string, *pkg.User, error)
	Authenticate(ctx context.Context, header string) (*pkg.User, error)
}

// Server bundles together the dependencies required by HTTP handlers.  It
// implements http.Handler so it can be passed to http.Server.
type Server struct {
	Intake    Intake
	Dashboard Dashboard
	Accounts  Accounts
	// Realtime serves the websocket endpoint.
	Realtime http.Handler
	Log      zerolog.Logger
}

// NewServer constructs a Server.
func NewServer(intake Intake, dashboard Dashboard, accounts Accounts, realtime http.Handler, log zerolog.Logger) *Server {
	return &Server{
		Intake:    intake,
		Dashboard: dashboard,
		Accounts:  accounts,
		Realtime:  realtime,
		Log:       log.With().Str("component", "http").Logger(),
	}
}

// ServeHTTP dispatches incoming requests based on the URL path.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case path == "/api/test" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"message": "Backend is working!", "timestamp": time.Now().UTC()})
	case path == "/api/start_triage" && r.Method == http.MethodPost:
		s.handleStartTriage(w, r)
	case path == "/api/auth/login" && r.Method == http.MethodPost:
		s.handleLogin(w, r)
	case path == "/api/auth/me" && r.Method == http.MethodGet:
		s.handleMe(w, r)
	// Patient transcript: GET /api/sessions/{session_id}/messages
	case len(parts) == 4 && parts[1] == "sessions" && parts[3] == "messages" && r.Method == http.MethodGet:
		s.handleSessionMessages(w, r, parts[2])
	case path == "/api/doctor/patients" && r.Method == http.MethodGet:
		s.handleDoctorPatients(w, r)
	// GET /api/doctor/patients/{id}[/messages], POST /api/doctor/patients/{id}/complete
	case len(parts) >= 4 && parts[1] == "doctor" && parts[2] == "patients":
		id, err := strconv.ParseInt(parts[3], 10, 64)
		if err != nil {
			writeError(w, http.StatusNotFound, "Patient not found")
			return
		}
		switch {
		case len(parts) == 4 && r.Method == http.MethodGet:
			s.handleDoctorPatient(w, r, id)
		case len(parts) == 5 && parts[4] == "messages" && r.Method == http.MethodGet:
			s.handleDoctorTranscript(w, r, id)
		case len(parts) == 5 && parts[4] == "complete" && r.Method == http.MethodPost:
			s.handleCompletePatient(w, r, id)
		default:
			http.NotFound(w, r)
		}
	case path == "/ws" && s.Realtime != nil:
		s.Realtime.ServeHTTP(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleStartTriage(w http.ResponseWriter, r *http.Request) {
	var req pkg.StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Name and age are required")
		return
	}
	p, err := s.Intake.Start(r.Context(), req.Name, int(req.Age))
	if errors.Is(err, pkg.ErrValidation) {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	if err != nil {
		s.Log.Error().Err(err).Msg("start triage")
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}
	writeJSON(w, http.StatusOK, pkg.StartResponse{
		SessionID: p.SessionID,
		PatientID: p.ID,
		Message:   "Triage session started successfully",
	})
}

// validationMessage strips the sentinel prefix so clients see only the
// human-readable part.
func validationMessage(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, pkg.ErrValidation.Error()+": "); i >= 0 {
		return msg[i+len(pkg.ErrValidation.Error())+2:]
	}
	return msg
}

func (s *Server) handleSessionMessages(w http.ResponseWriter, r *http.Request, sessionID string) {
	msgs, err := s.Intake.Transcript(r.Context(), sessionID)
	if errors.Is(err, pkg.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	if err != nil {
		s.Log.Error().Err(err).Msg("session transcript")
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": nonNil(msgs)})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userView struct {
	ID       int64    `json:"id"`
	Email    string   `json:"email"`
	Name     string   `json:"name"`
	Role     pkg.Role `json:"role"`
	IsDoctor bool     `json:"is_doctor"`
}

func viewOf(u *pkg.User) userView {
	return userView{ID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role, IsDoctor: u.IsClinician()}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}
	token, u, err := s.Accounts.Login(r.Context(), req.Email, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	if err != nil {
		s.Log.Error().Err(err).Msg("login")
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}
	s.Log.Info().Int64("user", u.ID).Msg("user logged in")
	writeJSON(w, http.StatusOK, map[string]any{"access_token": token, "token": token, "token_type": "bearer", "user": viewOf(u)})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	u, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": viewOf(u)})
}

func (s *Server) handleDoctorPatients(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.require(w, r, auth.ViewDashboard); !ok {
		return
	}
	list, err := s.Dashboard.ListActivePatients(r.Context())
	if err != nil {
		s.Log.Error().Err(err).Msg("list patients")
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"patients": list})
}

func (s *Server) handleDoctorPatient(w http.ResponseWriter, r *http.Request, id int64) {
	if _, ok := s.require(w, r, auth.ViewDashboard); !ok {
		return
	}
	p, err := s.Dashboard.GetPatient(r.Context(), id)
	if !s.checkLookup(w, err, "get patient") {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"patient": p})
}

func (s *Server) handleDoctorTranscript(w http.ResponseWriter, r *http.Request, id int64) {
	if _, ok := s.require(w, r, auth.ViewDashboard); !ok {
		return
	}
	if _, err := s.Dashboard.GetPatient(r.Context(), id); !s.checkLookup(w, err, "get patient") {
		return
	}
	msgs, err := s.Dashboard.GetTranscript(r.Context(), id)
	if !s.checkLookup(w, err, "patient transcript") {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": nonNil(msgs)})
}

func (s *Server) handleCompletePatient(w http.ResponseWriter, r *http.Request, id int64) {
	u, ok := s.require(w, r, auth.CloseSession)
	if !ok {
		return
	}
	if !s.checkLookup(w, s.Intake.Close(r.Context(), id), "close session") {
		return
	}
	s.Log.Info().Int64("user", u.ID).Int64("patient", id).Msg("session completed by clinician")
	writeJSON(w, http.StatusOK, map[string]any{"patient_id": id, "status": pkg.StatusCompleted})
}

// checkLookup writes 404 for a missing record and 500 for anything else.
func (s *Server) checkLookup(w http.ResponseWriter, err error, op string) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, pkg.ErrNotFound):
		writeError(w, http.StatusNotFound, "Patient not found")
	default:
		s.Log.Error().Err(err).Msg(op)
		writeError(w, http.StatusInternalServerError, "Database error")
	}
	return false
}

func nonNil(msgs []pkg.Message) []pkg.Message {
	if msgs == nil {
		return []pkg.Message{}
	}
	return msgs
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
