package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Room is a row in the rooms table plus the counts shown on the dashboard.
type Room struct {
	ID            int64
	UserID        int64
	Name          string
	Description   string
	Emoji         string
	DocumentCount int
	MessageCount  int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// RoomUpdate holds optional fields; nil leaves the column unchanged.
type RoomUpdate struct {
	Name        *string
	Description *string
	Emoji       *string
}

const roomColumns = `
	r.id, r.user_id, r.name, r.description, r.emoji, r.created_at, r.updated_at,
	(SELECT COUNT(1) FROM documents d WHERE d.room_id = r.id),
	(SELECT COUNT(1) FROM messages m WHERE m.room_id = r.id)
`

func (s *Store) CreateRoom(ctx context.Context, userID int64, name, description, emoji string) (*Room, error) {
	now := utcNow()
	result, err := s.db.ExecContext(ctx, `INSERT INTO rooms(user_id, name, description, emoji, created_at, updated_at) VALUES(?, ?, ?, ?, ?, ?)`,
		userID, name, description, emoji, now, now)
	if err != nil {
		return nil, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetRoom(ctx, userID, id)
}

// CountRooms returns how many rooms userID owns.
func (s *Store) CountRooms(ctx context.Context, userID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM rooms WHERE user_id = ?`, userID).Scan(&count)
	return count, err
}

// ListRooms returns the user's rooms, newest first.
func (s *Store) ListRooms(ctx context.Context, userID int64) ([]Room, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+roomColumns+` FROM rooms r WHERE r.user_id = ? ORDER BY r.created_at DESC, r.id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	rooms := []Room{}
	for rows.Next() {
		var room Room
		if err := rows.Scan(&room.ID, &room.UserID, &room.Name, &room.Description, &room.Emoji, &room.CreatedAt, &room.UpdatedAt, &room.DocumentCount, &room.MessageCount); err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

// GetRoom fetches a room owned by userID. A missing or foreign room yields nil.
func (s *Store) GetRoom(ctx context.Context, userID, roomID int64) (*Room, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms r WHERE r.id = ? AND r.user_id = ?`, roomID, userID)
	var room Room
	if err := row.Scan(&room.ID, &room.UserID, &room.Name, &room.Description, &room.Emoji, &room.CreatedAt, &room.UpdatedAt, &room.DocumentCount, &room.MessageCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &room, nil
}

// UpdateRoom applies the non-nil fields and returns the updated room.
func (s *Store) UpdateRoom(ctx context.Context, userID, roomID int64, upd RoomUpdate) (*Room, error) {
	room, err := s.GetRoom(ctx, userID, roomID)
	if err != nil || room == nil {
		return room, err
	}
	if upd.Name != nil {
		room.Name = *upd.Name
	}
	if upd.Description != nil {
		room.Description = *upd.Description
	}
	if upd.Emoji != nil {
		room.Emoji = *upd.Emoji
	}
	_, err = s.db.ExecContext(ctx, `UPDATE rooms SET name=?, description=?, emoji=?, updated_at=? WHERE id=? AND user_id=?`,
		room.Name, room.Description, room.Emoji, utcNow(), roomID, userID)
	if err != nil {
		return nil, err
	}
	return s.GetRoom(ctx, userID, roomID)
}

// DeleteRoom removes the room with its documents and messages. It reports
// whether a row was deleted.
func (s *Store) DeleteRoom(ctx context.Context, userID, roomID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rooms WHERE id=? AND user_id=?`, roomID, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
