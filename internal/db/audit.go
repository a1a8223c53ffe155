package db

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/loginhelper/internal/events"
)

// AuditLog records session events in the session_events table.
type AuditLog struct {
	db     *Database
	pid    int
	logger zerolog.Logger
}

// AuditEntry is one recorded event.
type AuditEntry struct {
	ID       int       `json:"id"`
	PID      int       `json:"pid"`
	Type     string    `json:"type"`
	Username string    `json:"username"`
	Detail   string    `json:"detail"`
	Time     time.Time `json:"time"`
}

// NewAuditLog creates an audit log writing on behalf of this process.
func NewAuditLog(db *Database) *AuditLog {
	return &AuditLog{
		db:     db,
		pid:    os.Getpid(),
		logger: log.With().Str("component", "audit").Logger(),
	}
}

// Attach subscribes the audit log to every session event on bus.
func (a *AuditLog) Attach(bus *events.EventBus) {
	bus.SubscribeAll("audit", a.Record)
}

// Record stores one event.
func (a *AuditLog) Record(ctx context.Context, event events.Event) error {
	username, detail := describe(event.Payload)
	at := event.Time
	if at.IsZero() {
		at = time.Now()
	}

	_, err := a.db.Exec(ctx,
		"INSERT INTO session_events (pid, type, username, detail, created_at) VALUES (?, ?, ?, ?, ?)",
		a.pid, string(event.Type), username, detail, at.UnixNano())
	if err != nil {
		a.logger.Warn().Err(err).Str("event", string(event.Type)).Msg("failed to record event")
		return fmt.Errorf("failed to record %s: %w", event.Type, err)
	}
	return nil
}

// Recent returns up to n entries, newest first.
func (a *AuditLog) Recent(ctx context.Context, n int) ([]AuditEntry, error) {
	rows, err := a.db.Query(ctx,
		"SELECT id, pid, type, username, detail, created_at FROM session_events ORDER BY id DESC LIMIT ?", n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var (
			e  AuditEntry
			at int64
		)
		if err := rows.Scan(&e.ID, &e.PID, &e.Type, &e.Username, &e.Detail, &at); err != nil {
			return nil, err
		}
		e.Time = time.Unix(0, at)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// describe flattens a payload into the username and a short detail string.
func describe(payload interface{}) (username, detail string) {
	switch p := payload.(type) {
	case events.SessionStartedPayload:
		return "", fmt.Sprintf("pid=%d", p.PID)
	case events.ConfigDeniedPayload:
		return p.Username, "cvar=" + p.CVar
	case events.LoginPayload:
		return p.Username, ""
	case events.ClientCommandPayload:
		return p.Username, fmt.Sprintf("command=%s annoy=%t", p.Command, p.Annoy)
	case events.RevalidatedPayload:
		return p.Username, fmt.Sprintf("cvar=%s cycle=%d", p.CVar, p.Cycle)
	case events.SessionEndedPayload:
		return p.Username, fmt.Sprintf("reason=%s duration=%s sent=%d received=%d",
			p.Reason, p.Duration.Round(time.Millisecond), p.Sent, p.Received)
	case nil:
		return "", ""
	default:
		return "", fmt.Sprintf("%v", p)
	}
}
