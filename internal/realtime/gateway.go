package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"triage-chatbot/internal/auth"
	"triage-chatbot/pkg"
)

const (
	writeWait       = 10 * time.Second
	defaultPongWait = 60 * time.Second
	maxMessageSize  = 64 << 10
	sendBuffer      = 32
	inboxBuffer     = 8
)

// MessageHandler processes one inbound patient message to completion.
type MessageHandler interface {
	HandleMessage(ctx context.Context, sessionID, text string) error
}

// Authenticator resolves a bearer credential to a user.
type Authenticator interface {
	Authenticate(ctx context.Context, header string) (*pkg.User, error)
}

// Gateway upgrades HTTP requests to websocket connections and dispatches
// their inbound events.  A connection may present a token in the "token"
// query parameter; only clinician tokens may join the clinician room.
type Gateway struct {
	Hub      *Hub
	Messages MessageHandler
	Auth     Authenticator
	Log      zerolog.Logger
	// PongWait is how long a connection may stay silent, pongs included,
	// before it is dropped.  Pings go out at nine tenths of it.
	PongWait time.Duration

	upgrader websocket.Upgrader
}

// NewGateway constructs a Gateway accepting upgrades from the given origins.
func NewGateway(hub *Hub, messages MessageHandler, authn Authenticator, origins []string, log zerolog.Logger) *Gateway {
	g := &Gateway{
		Hub:      hub,
		Messages: messages,
		Auth:     authn,
		Log:      log.With().Str("component", "gateway").Logger(),
		PongWait: defaultPongWait,
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(origins),
	}
	return g
}

func originChecker(origins []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range origins {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

// conn is one websocket client.  Patient messages are queued on inbox and
// handled by a worker so the read loop keeps answering pings during slow
// turns.
type conn struct {
	id    string
	ws    *websocket.Conn
	send  chan []byte
	inbox chan pkg.ChatRequest
	user  *pkg.User
}

// ID returns the connection id used for room membership.
func (c *conn) ID() string { return c.id }

// Send queues frame for the write loop without blocking.
func (c *conn) Send(frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// ServeHTTP authenticates the optional token, upgrades the connection and
// serves it until the client goes away.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var user *pkg.User
	if token := r.URL.Query().Get("token"); token != "" {
		u, err := g.Auth.Authenticate(r.Context(), "Bearer "+token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		user = u
	}

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		g.Log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	c := &conn{
		id:    uuid.NewString(),
		ws:    ws,
		send:  make(chan []byte, sendBuffer),
		inbox: make(chan pkg.ChatRequest, inboxBuffer),
		user:  user,
	}
	log := g.Log.With().Str("conn", c.id).Logger()
	log.Info().Msg("client connected")

	writerDone := make(chan struct{})
	go func() {
		g.writeLoop(c)
		close(writerDone)
	}()
	workerDone := make(chan struct{})
	go func() {
		g.work(c, log)
		close(workerDone)
	}()

	g.readLoop(c, log)

	// A turn in flight still runs to completion so it is stored; its reply
	// is flushed if the socket is still writable.
	close(c.inbox)
	<-workerDone
	g.Hub.Drop(c)
	close(c.send)
	<-writerDone
	log.Info().Msg("client disconnected")
}

func (g *Gateway) readLoop(c *conn, log zerolog.Logger) {
	pongWait := g.PongWait
	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("read failed")
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		var f Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			g.reply(c, EventError, errorPayload{Message: "malformed frame"})
			continue
		}
		g.dispatch(c, f, log)
	}
}

// work handles queued patient messages one at a time, in arrival order.
func (g *Gateway) work(c *conn, log zerolog.Logger) {
	for req := range c.inbox {
		if err := g.Messages.HandleMessage(context.Background(), req.SessionID, req.Message); err != nil {
			g.reply(c, EventError, errorPayload{Message: clientError(err)})
			if !errors.Is(err, pkg.ErrNotFound) && !errors.Is(err, pkg.ErrValidation) {
				log.Error().Err(err).Str("session", req.SessionID).Msg("message handling failed")
			}
		}
	}
}

type roomPayload struct {
	Room string `json:"room"`
}

type errorPayload struct {
	Message string `json:"message"`
}

func (g *Gateway) dispatch(c *conn, f Frame, log zerolog.Logger) {
	switch f.Event {
	case "join":
		var p roomPayload
		if err := json.Unmarshal(f.Data, &p); err != nil || p.Room == "" {
			g.reply(c, EventError, errorPayload{Message: "room is required"})
			return
		}
		if p.Room == ClinicianRoom && !auth.Can(roleOf(c.user), auth.JoinClinicianRoom) {
			g.reply(c, EventError, errorPayload{Message: "forbidden"})
			return
		}
		g.Hub.Join(p.Room, c)
		log.Debug().Str("room", p.Room).Msg("joined room")

	case "leave":
		var p roomPayload
		if err := json.Unmarshal(f.Data, &p); err == nil && p.Room != "" {
			g.Hub.Leave(p.Room, c)
		}

	case "patient_message":
		var req pkg.ChatRequest
		if err := json.Unmarshal(f.Data, &req); err != nil || req.SessionID == "" {
			g.reply(c, EventError, errorPayload{Message: "session_id and message are required"})
			return
		}
		select {
		case c.inbox <- req:
		default:
			g.reply(c, EventError, errorPayload{Message: "too many pending messages"})
			log.Warn().Str("session", req.SessionID).Msg("inbox full, message refused")
		}

	default:
		g.reply(c, EventError, errorPayload{Message: "unknown event"})
	}
}

func clientError(err error) string {
	switch {
	case errors.Is(err, pkg.ErrNotFound):
		return "unknown session"
	case errors.Is(err, pkg.ErrValidation):
		return "message is required"
	default:
		return "something went wrong, please try again"
	}
}

func roleOf(u *pkg.User) pkg.Role {
	if u == nil {
		return ""
	}
	return u.Role
}

func (g *Gateway) reply(c *conn, event string, payload any) {
	frame, err := encodeFrame(event, payload)
	if err == nil {
		c.Send(frame)
	}
}

// writeLoop drains send until it is closed, then says goodbye and closes
// the socket, which also ends a read loop still waiting on it.
func (g *Gateway) writeLoop(c *conn) {
	ticker := time.NewTicker(g.PongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				// Keep draining so senders never see a full buffer forever.
				for range c.send {
				}
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				for range c.send {
				}
				return
			}
		}
	}
}
