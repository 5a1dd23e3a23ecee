package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// Entry kinds follow the event variants plus command dispatch.
const (
	KindText       = "text"
	KindCommand    = "command"
	KindAttachment = "attachment"
	KindTaskFired  = "task_fired"
)

type Entry struct {
	ID        string    `json:"id"`
	Channel   string    `json:"channel"`
	Kind      string    `json:"kind"`
	Subject   string    `json:"subject,omitempty"`
	Body      string    `json:"body,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Journal struct {
	db *sql.DB
}

func New(db *sql.DB) *Journal {
	return &Journal{db: db}
}

// Record inserts one entry, assigning its id and timestamp.
func (j *Journal) Record(ctx context.Context, channel, kind, subject, body string) (Entry, error) {
	entry := Entry{
		ID:        ulid.Make().String(),
		Channel:   channel,
		Kind:      kind,
		Subject:   subject,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO events (id, channel, kind, subject, body, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.Channel, entry.Kind, entry.Subject, entry.Body, entry.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return Entry{}, fmt.Errorf("insert journal entry: %w", err)
	}
	return entry, nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, channel, kind, subject, body, created_at
		FROM events ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list journal entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var subject, body sql.NullString
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Channel, &e.Kind, &subject, &body, &createdAt); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		e.Subject = subject.String
		e.Body = body.String
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal entries: %w", err)
	}
	return out, nil
}
