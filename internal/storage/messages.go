package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

// MessageSource points an answer back at a document page.
type MessageSource struct {
	DocumentID int64  `json:"document_id"`
	Filename   string `json:"filename"`
	PageNumber *int   `json:"page_number,omitempty"`
}

type Message struct {
	ID          int64
	RoomID      int64
	UserID      int64
	MessageType string
	Content     string
	Sources     []MessageSource
	CreatedAt   time.Time
}

// AppendExchange stores a question and its answer in one transaction so the
// history never shows one without the other. It returns the answer's row.
func (s *Store) AppendExchange(ctx context.Context, question, answer Message) (*Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	now := utcNow()
	question.CreatedAt = now
	answer.CreatedAt = now
	if _, err = insertMessage(ctx, tx, question); err != nil {
		return nil, err
	}
	if answer.ID, err = insertMessage(ctx, tx, answer); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return &answer, nil
}

func insertMessage(ctx context.Context, tx *sql.Tx, msg Message) (int64, error) {
	sources := msg.Sources
	if sources == nil {
		sources = []MessageSource{}
	}
	encoded, err := json.Marshal(sources)
	if err != nil {
		return 0, err
	}
	result, err := tx.ExecContext(ctx, `INSERT INTO messages(room_id, user_id, message_type, content, sources, created_at) VALUES(?, ?, ?, ?, ?, ?)`,
		msg.RoomID, msg.UserID, msg.MessageType, msg.Content, string(encoded), msg.CreatedAt)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// ListMessages returns a room's history oldest first.
func (s *Store) ListMessages(ctx context.Context, roomID int64) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, room_id, user_id, message_type, content, sources, created_at FROM messages WHERE room_id = ? ORDER BY id ASC`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	messages := []Message{}
	for rows.Next() {
		var (
			msg     Message
			sources string
		)
		if err := rows.Scan(&msg.ID, &msg.RoomID, &msg.UserID, &msg.MessageType, &msg.Content, &sources, &msg.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(sources), &msg.Sources); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
