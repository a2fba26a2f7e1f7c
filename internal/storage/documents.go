package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// Document is an uploaded file and its extracted text, one entry per page.
type Document struct {
	ID        int64
	RoomID    int64
	Filename  string
	FileSize  int64
	MIMEType  string
	Pages     []string
	Processed bool
	CreatedAt time.Time
}

func (s *Store) CreateDocument(ctx context.Context, doc Document) (int64, error) {
	pages, err := json.Marshal(doc.Pages)
	if err != nil {
		return 0, err
	}
	result, err := s.db.ExecContext(ctx, `INSERT INTO documents(room_id, filename, file_size, mime_type, pages, processed, created_at) VALUES(?, ?, ?, ?, ?, ?, ?)`,
		doc.RoomID, doc.Filename, doc.FileSize, doc.MIMEType, string(pages), doc.Processed, utcNow())
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// CountDocuments returns the number of documents in a room.
func (s *Store) CountDocuments(ctx context.Context, roomID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM documents WHERE room_id = ?`, roomID).Scan(&count)
	return count, err
}

// ListDocuments returns the room's documents in upload order.
func (s *Store) ListDocuments(ctx context.Context, roomID int64) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, room_id, filename, file_size, mime_type, pages, processed, created_at FROM documents WHERE room_id = ? ORDER BY id ASC`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	docs := []Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// GetDocumentForUser fetches a document only if its room belongs to userID.
func (s *Store) GetDocumentForUser(ctx context.Context, userID, docID int64) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT d.id, d.room_id, d.filename, d.file_size, d.mime_type, d.pages, d.processed, d.created_at
		FROM documents d
		JOIN rooms r ON r.id = d.room_id
		WHERE d.id = ? AND r.user_id = ?
	`, docID, userID)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return doc, err
}

// MarkProcessed flips the processed flag.
func (s *Store) MarkProcessed(ctx context.Context, docID int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE documents SET processed = 1 WHERE id = ?`, docID)
	return err
}

func (s *Store) DeleteDocument(ctx context.Context, docID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, docID)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*Document, error) {
	var (
		doc   Document
		pages string
	)
	if err := row.Scan(&doc.ID, &doc.RoomID, &doc.Filename, &doc.FileSize, &doc.MIMEType, &pages, &doc.Processed, &doc.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(pages), &doc.Pages); err != nil {
		return nil, err
	}
	return &doc, nil
}
