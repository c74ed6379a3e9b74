package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/saga-labs/lexrag/internal/session"
)

// SessionStore is the Postgres cold tier behind the Redis session cache.
type SessionStore struct {
	client *Client
}

// NewSessionStore creates the durable session store and registers its async
// write handler.
func NewSessionStore(client *Client) *SessionStore {
	s := &SessionStore{client: client}
	client.registerHandler(WriteTypeSessionArchive, func(ctx context.Context, data interface{}) error {
		sess, ok := data.(*session.Session)
		if !ok {
			return fmt.Errorf("unexpected payload %T for session archive", data)
		}
		return s.SaveSession(ctx, sess)
	})
	return s
}

// SaveSession upserts the full session document.
func (s *SessionStore) SaveSession(ctx context.Context, sess *session.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	_, err = s.client.db.ExecContext(ctx, `
		INSERT INTO chat_sessions (id, data, created_at, last_activity)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET data = EXCLUDED.data, last_activity = EXCLUDED.last_activity`,
		sess.ID, data, sess.Metadata.CreatedAt, sess.Metadata.LastActivity,
	)
	if err != nil {
		return fmt.Errorf("archive session %s: %w", sess.ID, err)
	}
	return nil
}

// SaveSessionAsync queues the archive write without blocking the caller.
func (s *SessionStore) SaveSessionAsync(sess *session.Session) {
	s.client.QueueWrite(WriteTypeSessionArchive, sess, nil)
}

// GetSession loads one archived session.
func (s *SessionStore) GetSession(ctx context.Context, id string) (*session.Session, error) {
	var data []byte
	err := s.client.db.QueryRowContext(ctx,
		`SELECT data FROM chat_sessions WHERE id = $1`, id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}

	var sess session.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &sess, nil
}

// ListSessions returns archived sessions, newest first.
func (s *SessionStore) ListSessions(ctx context.Context, limit int) ([]*session.Session, error) {
	rows, err := s.client.db.QueryContext(ctx,
		`SELECT data FROM chat_sessions ORDER BY last_activity DESC LIMIT $1`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*session.Session
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var sess session.Session
		if err := json.Unmarshal(data, &sess); err != nil {
			continue
		}
		out = append(out, &sess)
	}
	return out, rows.Err()
}
