package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"triage-chatbot/pkg"
)

// Repository wraps database operations for users, patients and messages.
// A single postgres database backs every store.
type Repository struct {
	DB *sql.DB
}

// NewRepository constructs a new Repository from an existing sql.DB.
// The caller is responsible for managing the DB connection lifecycle.
func NewRepository(db *sql.DB) *Repository { return &Repository{DB: db} }

const patientColumns = `id, name, age, created_at, status, summary, session_id, triage_data, urgency_level, follow_ups`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPatient(row rowScanner) (*pkg.Patient, error) {
	var (
		p       pkg.Patient
		answers []byte
		urgency sql.NullString
	)
	err := row.Scan(&p.ID, &p.Name, &p.Age, &p.CreatedAt, &p.Status, &p.Summary,
		&p.SessionID, &answers, &urgency, &p.FollowUps)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkg.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(answers) > 0 {
		if err := json.Unmarshal(answers, &p.Answers); err != nil {
			return nil, fmt.Errorf("decode triage_data of patient %d: %w", p.ID, err)
		}
	}
	p.Urgency = pkg.Urgency(urgency.String)
	return &p, nil
}

// withTx runs fn inside a transaction and rolls back on any error.
func (r *Repository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func insertMessage(ctx context.Context, tx *sql.Tx, patientID int64, text string, isBot bool, kind pkg.MessageKind) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO messages (patient_id, message, is_bot, message_type)
         VALUES ($1, $2, $3, $4)`,
		patientID, text, isBot, kind,
	)
	return err
}

// CreatePatient stores a new in-progress patient together with the opening
// bot message.  Both rows are committed together.
func (r *Repository) CreatePatient(ctx context.Context, name string, age int, sessionID, opening string) (*pkg.Patient, error) {
	p := &pkg.Patient{
		Name:      name,
		Age:       age,
		Status:    pkg.StatusInProgress,
		SessionID: sessionID,
	}
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`INSERT INTO patients (name, age, session_id, status, triage_data)
             VALUES ($1, $2, $3, $4, '[]'::jsonb)
             RETURNING id, created_at`,
			name, age, sessionID, pkg.StatusInProgress,
		).Scan(&p.ID, &p.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert patient: %w", err)
		}
		if err := insertMessage(ctx, tx, p.ID, opening, true, pkg.KindQuestion); err != nil {
			return fmt.Errorf("insert opening message: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetPatientBySession looks a patient up by the opaque session id.
func (r *Repository) GetPatientBySession(ctx context.Context, sessionID string) (*pkg.Patient, error) {
	return scanPatient(r.DB.QueryRowContext(ctx,
		`SELECT `+patientColumns+` FROM patients WHERE session_id = $1`, sessionID))
}

// GetPatient looks a patient up by id.
func (r *Repository) GetPatient(ctx context.Context, id int64) (*pkg.Patient, error) {
	return scanPatient(r.DB.QueryRowContext(ctx,
		`SELECT `+patientColumns+` FROM patients WHERE id = $1`, id))
}

// GetTranscript returns the messages of a patient ordered by creation time.
func (r *Repository) GetTranscript(ctx context.Context, patientID int64) ([]pkg.Message, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, patient_id, message, is_bot, message_type, created_at
         FROM messages
         WHERE patient_id = $1
         ORDER BY created_at ASC, id ASC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var transcript []pkg.Message
	for rows.Next() {
		var m pkg.Message
		if err := rows.Scan(&m.ID, &m.PatientID, &m.Text, &m.IsBot, &m.Kind, &m.CreatedAt); err != nil {
			return nil, err
		}
		transcript = append(transcript, m)
	}
	return transcript, rows.Err()
}

// Turn is one processed patient message: the inbound text, the bot reply
// and, when UpdatePatient is set, the new patient state.
type Turn struct {
	PatientID     int64
	Inbound       string
	Reply         string
	ReplyKind     pkg.MessageKind
	UpdatePatient bool
	Answers       pkg.Answers
	Status        pkg.Status
	FollowUps     int
}

// RecordTurn appends both messages of a turn and applies the patient update
// in one transaction.
func (r *Repository) RecordTurn(ctx context.Context, t Turn) error {
	var answers []byte
	if t.UpdatePatient {
		var err error
		if answers, err = json.Marshal(t.Answers); err != nil {
			return fmt.Errorf("encode triage_data: %w", err)
		}
	}
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertMessage(ctx, tx, t.PatientID, t.Inbound, false, pkg.KindChat); err != nil {
			return fmt.Errorf("insert patient message: %w", err)
		}
		if err := insertMessage(ctx, tx, t.PatientID, t.Reply, true, t.ReplyKind); err != nil {
			return fmt.Errorf("insert bot message: %w", err)
		}
		if !t.UpdatePatient {
			return nil
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE patients
             SET triage_data = $1::jsonb, status = $2, follow_ups = $3
             WHERE id = $4`,
			string(answers), t.Status, t.FollowUps, t.PatientID,
		)
		if err != nil {
			return fmt.Errorf("update patient: %w", err)
		}
		return expectOneRow(res)
	})
}

// SaveSummary stores the generated summary and urgency of a patient.
func (r *Repository) SaveSummary(ctx context.Context, patientID int64, summary string, urgency pkg.Urgency) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE patients SET summary = $1, urgency_level = $2 WHERE id = $3`,
		summary, urgency, patientID,
	)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

// SetStatus changes the lifecycle status of a patient.
func (r *Repository) SetStatus(ctx context.Context, patientID int64, status pkg.Status) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE patients SET status = $1 WHERE id = $2`, status, patientID)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

// ListActivePatients returns waiting and in-progress patients, newest first.
func (r *Repository) ListActivePatients(ctx context.Context) ([]pkg.PatientPreview, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, name, age, created_at, status, summary, session_id, urgency_level
         FROM patients
         WHERE status IN ($1, $2)
         ORDER BY created_at DESC, id DESC`,
		pkg.StatusWaiting, pkg.StatusInProgress)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []pkg.PatientPreview{}
	for rows.Next() {
		var (
			p       pkg.PatientPreview
			urgency sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Age, &p.CreatedAt, &p.Status, &p.Summary, &p.SessionID, &urgency); err != nil {
			return nil, err
		}
		p.Urgency = pkg.Urgency(urgency.String)
		out = append(out, p)
	}
	return out, rows.Err()
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return pkg.ErrNotFound
	}
	return nil
}
