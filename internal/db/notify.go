package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"triage-chatbot/pkg"
)

// Notifier wraps the LISTEN/NOTIFY mechanism in PostgreSQL.  Every server
// instance publishes patient-ready events on the channel and relays the
// ones it hears to its own clinician room, so clinicians connected to any
// instance are told.
type Notifier struct {
	DB      *sql.DB
	DSN     string
	Channel string
	Log     zerolog.Logger
}

// NewNotifier constructs a new Notifier.  The channel should match the
// POSTGRES_NOTIFY_CHANNEL setting; dsn is used for the dedicated listener
// connection.
func NewNotifier(db *sql.DB, dsn, channel string, log zerolog.Logger) *Notifier {
	return &Notifier{DB: db, DSN: dsn, Channel: channel, Log: log.With().Str("component", "notifier").Logger()}
}

// PatientReady publishes ev on the channel.
func (n *Notifier) PatientReady(ctx context.Context, ev pkg.PatientReady) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = n.DB.ExecContext(ctx, `SELECT pg_notify($1, $2)`, n.Channel, string(payload))
	return err
}

// Listen blocks, passing every event received on the channel to handle,
// until ctx is cancelled.  The listener reconnects on its own after
// connection loss.
func (n *Notifier) Listen(ctx context.Context, handle func(pkg.PatientReady)) error {
	listener := pq.NewListener(n.DSN, 2*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			n.Log.Warn().Err(err).Int("event", int(ev)).Msg("listener connection event")
		}
	})
	defer listener.Close()
	if err := listener.Listen(n.Channel); err != nil {
		return err
	}
	n.Log.Info().Str("channel", n.Channel).Msg("listening for patient notifications")

	for {
		select {
		case <-ctx.Done():
			return nil
		case note := <-listener.Notify:
			// A nil notification signals a reconnect; events sent while the
			// connection was down are lost.
			if note == nil {
				continue
			}
			ev, ok := n.decode(note.Extra)
			if ok {
				handle(ev)
			}
		case <-time.After(90 * time.Second):
			go func() {
				if err := listener.Ping(); err != nil {
					n.Log.Warn().Err(err).Msg("listener ping failed")
				}
			}()
		}
	}
}

func (n *Notifier) decode(payload string) (pkg.PatientReady, bool) {
	var ev pkg.PatientReady
	if err := json.Unmarshal([]byte(payload), &ev); err != nil || ev.PatientID == 0 {
		n.Log.Warn().Str("payload", payload).Msg("ignoring malformed notification")
		return ev, false
	}
	return ev, true
}
