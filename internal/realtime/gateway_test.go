package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triage-chatbot/pkg"
)

// echoHandler answers every patient message through the hub, like the
// intake service does.
type echoHandler struct{ hub *Hub }

func (e echoHandler) HandleMessage(_ context.Context, sessionID, text string) error {
	if sessionID == "missing" {
		return pkg.ErrNotFound
	}
	return e.hub.Emit(PatientRoom(sessionID), EventBotResponse, pkg.ChatResponse{Message: "echo: " + text, Type: pkg.KindChat})
}

type tokenAuth map[string]*pkg.User

func (a tokenAuth) Authenticate(_ context.Context, header string) (*pkg.User, error) {
	if u, ok := a[strings.TrimPrefix(header, "Bearer ")]; ok {
		return u, nil
	}
	return nil, errors.New("bad token")
}

func newTestGateway(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := NewHub(zerolog.Nop())
	users := tokenAuth{
		"doc":   {ID: 1, Role: pkg.RoleClinician},
		"staff": {ID: 2, Role: pkg.RoleStaff},
	}
	srv := httptest.NewServer(NewGateway(hub, echoHandler{hub}, users, []string{"*"}, zerolog.Nop()))
	t.Cleanup(srv.Close)
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func send(t *testing.T, c *websocket.Conn, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, c.WriteJSON(Frame{Event: event, Data: raw}))
}

func receive(t *testing.T, c *websocket.Conn) (string, map[string]any) {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f Frame
	require.NoError(t, c.ReadJSON(&f))
	var data map[string]any
	require.NoError(t, json.Unmarshal(f.Data, &data))
	return f.Event, data
}

func waitMembers(t *testing.T, hub *Hub, room string, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.Members(room) == n }, 2*time.Second, 10*time.Millisecond)
}

func TestGatewayPatientRoundTrip(t *testing.T) {
	hub, url := newTestGateway(t)
	c := dial(t, url)

	send(t, c, "join", map[string]string{"room": PatientRoom("s1")})
	waitMembers(t, hub, PatientRoom("s1"), 1)

	send(t, c, "patient_message", pkg.ChatRequest{SessionID: "s1", Message: "hello"})
	event, data := receive(t, c)
	assert.Equal(t, "bot_response", event)
	assert.Equal(t, "echo: hello", data["message"])

	send(t, c, "patient_message", pkg.ChatRequest{SessionID: "missing", Message: "hello"})
	event, data = receive(t, c)
	assert.Equal(t, "error", event)
	assert.Equal(t, "unknown session", data["message"])

	c.Close()
	waitMembers(t, hub, PatientRoom("s1"), 0)
}

func TestGatewayClinicianRoomRequiresClinician(t *testing.T) {
	hub, url := newTestGateway(t)

	anon := dial(t, url)
	send(t, anon, "join", map[string]string{"room": ClinicianRoom})
	event, data := receive(t, anon)
	assert.Equal(t, "error", event)
	assert.Equal(t, "forbidden", data["message"])

	staff := dial(t, url+"?token=staff")
	send(t, staff, "join", map[string]string{"room": ClinicianRoom})
	event, _ = receive(t, staff)
	assert.Equal(t, "error", event)

	doc := dial(t, url+"?token=doc")
	send(t, doc, "join", map[string]string{"room": ClinicianRoom})
	waitMembers(t, hub, ClinicianRoom, 1)

	require.NoError(t, hub.PatientReady(context.Background(), pkg.PatientReady{PatientID: 5}))
	event, data = receive(t, doc)
	assert.Equal(t, "new_patient", event)
	assert.EqualValues(t, 5, data["patient_id"])
}

func TestGatewayRejectsBadToken(t *testing.T) {
	_, url := newTestGateway(t)
	_, resp, err := websocket.DefaultDialer.Dial(url+"?token=forged", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 401, resp.StatusCode)
}

// slowHandler takes longer than the keepalive window before answering.
type slowHandler struct {
	echoHandler
	delay time.Duration
}

func (s slowHandler) HandleMessage(ctx context.Context, sessionID, text string) error {
	time.Sleep(s.delay)
	return s.echoHandler.HandleMessage(ctx, sessionID, text)
}

func TestGatewaySurvivesTurnsLongerThanKeepalive(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	g := NewGateway(hub, slowHandler{echoHandler{hub}, 900 * time.Millisecond}, tokenAuth{}, []string{"*"}, zerolog.Nop())
	g.PongWait = 300 * time.Millisecond
	srv := httptest.NewServer(g)
	t.Cleanup(srv.Close)
	c := dial(t, "ws"+strings.TrimPrefix(srv.URL, "http"))

	send(t, c, "join", map[string]string{"room": PatientRoom("s1")})
	waitMembers(t, hub, PatientRoom("s1"), 1)

	for _, text := range []string{"first", "second"} {
		send(t, c, "patient_message", pkg.ChatRequest{SessionID: "s1", Message: text})
		event, data := receive(t, c)
		assert.Equal(t, "bot_response", event)
		assert.Equal(t, "echo: "+text, data["message"])
	}
	assert.Equal(t, 1, hub.Members(PatientRoom("s1")))
}
