package devserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"

	"docchat/internal/storage"
)

func documentJSON(d *storage.Document) gin.H {
	return gin.H{
		"id":          d.ID,
		"room_id":     d.RoomID,
		"filename":    d.Filename,
		"file_size":   d.FileSize,
		"mime_type":   d.MIMEType,
		"processed":   d.Processed,
		"chunk_count": len(d.Pages),
		"created_at":  d.CreatedAt,
		"uploaded_at": d.CreatedAt,
	}
}

func (s *Server) handleUpload(c *gin.Context) {
	room, ok := s.ownedRoom(c, "roomID")
	if !ok {
		return
	}
	if s.rateLimited(c, s.uploads, "upload:"+strconv.FormatInt(userID(c), 10)) {
		return
	}
	ctx := c.Request.Context()
	if s.cfg.MaxDocsPerRoom > 0 {
		count, err := s.store.CountDocuments(ctx, room.ID)
		if err != nil {
			s.internalError(c, "count documents", err)
			return
		}
		if count >= s.cfg.MaxDocsPerRoom {
			detail(c, http.StatusBadRequest, fmt.Sprintf("Maximum %d documents per room.", s.cfg.MaxDocsPerRoom))
			return
		}
	}

	header, err := c.FormFile("file")
	if err != nil {
		validationError(c, errors.New("file is required"))
		return
	}
	if partType := header.Header.Get("Content-Type"); !allowedPartType(partType) {
		detail(c, http.StatusBadRequest, "Invalid file type: "+partType)
		return
	}
	if header.Size > s.cfg.MaxFileSize {
		detail(c, http.StatusRequestEntityTooLarge, "File too large. Maximum: "+humanize.IBytes(uint64(s.cfg.MaxFileSize)))
		return
	}
	f, err := header.Open()
	if err != nil {
		s.internalError(c, "open upload", err)
		return
	}
	data, err := io.ReadAll(io.LimitReader(f, s.cfg.MaxFileSize+1))
	_ = f.Close()
	if err != nil {
		s.internalError(c, "read upload", err)
		return
	}
	if int64(len(data)) > s.cfg.MaxFileSize {
		detail(c, http.StatusRequestEntityTooLarge, "File too large. Maximum: "+humanize.IBytes(uint64(s.cfg.MaxFileSize)))
		return
	}

	pages, mimeType, err := extractPages(data)
	if err != nil {
		if errors.Is(err, errUnsupportedType) {
			detail(c, http.StatusBadRequest, "Only PDF and TXT files are supported.")
			return
		}
		s.logger.Warn("extract text failed", "filename", header.Filename, "error", err)
		detail(c, http.StatusBadRequest, "The file could not be read or its format is not supported.")
		return
	}
	if n := textLength(pages); n < minExtractedChars {
		detail(c, http.StatusBadRequest, fmt.Sprintf("Not enough text in file. Found %d characters, at least %d required.", n, minExtractedChars))
		return
	}

	filename := filepath.Base(header.Filename)
	id, err := s.store.CreateDocument(ctx, storage.Document{
		RoomID:   room.ID,
		Filename: filename,
		FileSize: int64(len(data)),
		MIMEType: mimeType,
		Pages:    pages,
	})
	if err != nil {
		s.internalError(c, "store document", err)
		return
	}
	s.metrics.IncUpload()
	s.scheduleProcessing(id)
	c.JSON(http.StatusCreated, gin.H{
		"id":        id,
		"filename":  filename,
		"file_size": len(data),
		"message":   "Document uploaded successfully",
	})
}

// scheduleProcessing flips the processed flag after the configured delay,
// standing in for chunking and embedding.
func (s *Server) scheduleProcessing(docID int64) {
	s.metrics.StartProcessing()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.metrics.DoneProcessing()
		if s.cfg.ProcessingDelay > 0 {
			timer := time.NewTimer(s.cfg.ProcessingDelay)
			defer timer.Stop()
			select {
			case <-s.ctx.Done():
				return
			case <-timer.C:
			}
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.store.MarkProcessed(ctx, docID); err != nil {
			s.logger.Error("mark document processed", "document", docID, "error", err)
			return
		}
		s.logger.Info("document processed", "document", docID)
	}()
}

func (s *Server) handleListDocuments(c *gin.Context) {
	room, ok := s.ownedRoom(c, "roomID")
	if !ok {
		return
	}
	docs, err := s.store.ListDocuments(c.Request.Context(), room.ID)
	if err != nil {
		s.internalError(c, "list documents", err)
		return
	}
	out := make([]gin.H, 0, len(docs))
	for i := range docs {
		out = append(out, documentJSON(&docs[i]))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleDeleteDocument(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	doc, err := s.store.GetDocumentForUser(c.Request.Context(), userID(c), id)
	if err != nil {
		s.internalError(c, "load document", err)
		return
	}
	if doc == nil {
		detail(c, http.StatusNotFound, "Document not found")
		return
	}
	if err := s.store.DeleteDocument(c.Request.Context(), id); err != nil {
		s.internalError(c, "delete document", err)
		return
	}
	c.Status(http.StatusNoContent)
}
