package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"triage-chatbot/pkg"
)

// ClinicianRoom receives new_patient announcements.
const ClinicianRoom = "doctors"

// Outbound event names.
const (
	EventBotResponse = "bot_response"
	EventNewPatient  = "new_patient"
	EventError       = "error"
)

// PatientRoom names the room a patient's own connections join.
func PatientRoom(sessionID string) string { return "patient_" + sessionID }

// Frame is the JSON envelope for every websocket message in either
// direction.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Sink receives encoded frames.  Send must not block; it reports false when
// the frame was dropped.
type Sink interface {
	ID() string
	Send(frame []byte) bool
}

// Hub tracks room membership and fans frames out to members.  Membership
// lives in memory only.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]Sink
	joined map[string]map[string]struct{}
	log    zerolog.Logger
}

// NewHub constructs an empty Hub.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		rooms:  map[string]map[string]Sink{},
		joined: map[string]map[string]struct{}{},
		log:    log.With().Str("component", "hub").Logger(),
	}
}

// Join adds s to room.  Joining twice is a no-op.
func (h *Hub) Join(room string, s Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[room]
	if !ok {
		members = map[string]Sink{}
		h.rooms[room] = members
	}
	members[s.ID()] = s
	if h.joined[s.ID()] == nil {
		h.joined[s.ID()] = map[string]struct{}{}
	}
	h.joined[s.ID()][room] = struct{}{}
}

// Leave removes s from room.
func (h *Hub) Leave(room string, s Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leave(room, s.ID())
}

// Drop removes s from every room it joined.  No frame is sent to s once Drop
// returns.
func (h *Hub) Drop(s Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room := range h.joined[s.ID()] {
		h.leave(room, s.ID())
	}
	delete(h.joined, s.ID())
}

func (h *Hub) leave(room, id string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, id)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	if rooms, ok := h.joined[id]; ok {
		delete(rooms, room)
	}
}

// Members returns the number of sinks in room.
func (h *Hub) Members(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Emit encodes payload under event and sends it to every member of room.
// An empty room is not an error.
func (h *Hub) Emit(room, event string, payload any) error {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, s := range h.rooms[room] {
		if !s.Send(frame) {
			h.log.Warn().Str("room", room).Str("conn", id).Str("event", event).Msg("dropped frame for slow connection")
		}
	}
	return nil
}

// PatientReady announces a waiting patient to the clinician room of this
// process.
func (h *Hub) PatientReady(_ context.Context, ev pkg.PatientReady) error {
	return h.Emit(ClinicianRoom, EventNewPatient, ev)
}

func encodeFrame(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Data: data})
}
