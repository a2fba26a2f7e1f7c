package devserver

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"docchat/internal/storage"
)

const defaultRoomEmoji = "📚"

type createRoomRequest struct {
	Name        string  `json:"name" binding:"required,min=1,max=255"`
	Description *string `json:"description"`
	Emoji       *string `json:"emoji" binding:"omitempty,max=10"`
}

type updateRoomRequest struct {
	Name        *string `json:"name" binding:"omitempty,min=1,max=255"`
	Description *string `json:"description"`
	Emoji       *string `json:"emoji" binding:"omitempty,max=10"`
}

func roomJSON(r *storage.Room) gin.H {
	return gin.H{
		"id":             r.ID,
		"user_id":        r.UserID,
		"name":           r.Name,
		"description":    r.Description,
		"emoji":          r.Emoji,
		"document_count": r.DocumentCount,
		"message_count":  r.MessageCount,
		"created_at":     r.CreatedAt,
		"updated_at":     r.UpdatedAt,
	}
}

// pathID parses a numeric route parameter; it answers 404 for anything else
// since no such resource can exist.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		detail(c, http.StatusNotFound, "Not found")
		return 0, false
	}
	return id, true
}

// ownedRoom loads the room or writes a 404.
func (s *Server) ownedRoom(c *gin.Context, param string) (*storage.Room, bool) {
	id, ok := pathID(c, param)
	if !ok {
		return nil, false
	}
	room, err := s.store.GetRoom(c.Request.Context(), userID(c), id)
	if err != nil {
		s.internalError(c, "load room", err)
		return nil, false
	}
	if room == nil {
		detail(c, http.StatusNotFound, "Room not found")
		return nil, false
	}
	return room, true
}

func (s *Server) handleListRooms(c *gin.Context) {
	rooms, err := s.store.ListRooms(c.Request.Context(), userID(c))
	if err != nil {
		s.internalError(c, "list rooms", err)
		return
	}
	out := make([]gin.H, 0, len(rooms))
	for i := range rooms {
		out = append(out, roomJSON(&rooms[i]))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleCreateRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, err)
		return
	}
	ctx := c.Request.Context()
	if s.cfg.MaxRooms > 0 {
		count, err := s.store.CountRooms(ctx, userID(c))
		if err != nil {
			s.internalError(c, "count rooms", err)
			return
		}
		if count >= s.cfg.MaxRooms {
			detail(c, http.StatusBadRequest, "Maximum room limit reached ("+strconv.Itoa(count)+"/"+strconv.Itoa(s.cfg.MaxRooms)+"). Delete an existing room first.")
			return
		}
	}
	emoji := defaultRoomEmoji
	if req.Emoji != nil && strings.TrimSpace(*req.Emoji) != "" {
		emoji = strings.TrimSpace(*req.Emoji)
	}
	description := ""
	if req.Description != nil {
		description = *req.Description
	}
	room, err := s.store.CreateRoom(ctx, userID(c), strings.TrimSpace(req.Name), description, emoji)
	if err != nil {
		s.internalError(c, "create room", err)
		return
	}
	c.JSON(http.StatusCreated, roomJSON(room))
}

func (s *Server) handleGetRoom(c *gin.Context) {
	room, ok := s.ownedRoom(c, "id")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, roomJSON(room))
}

func (s *Server) handleUpdateRoom(c *gin.Context) {
	room, ok := s.ownedRoom(c, "id")
	if !ok {
		return
	}
	var req updateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, err)
		return
	}
	updated, err := s.store.UpdateRoom(c.Request.Context(), userID(c), room.ID, storage.RoomUpdate{
		Name:        req.Name,
		Description: req.Description,
		Emoji:       req.Emoji,
	})
	if err != nil {
		s.internalError(c, "update room", err)
		return
	}
	if updated == nil {
		detail(c, http.StatusNotFound, "Room not found")
		return
	}
	c.JSON(http.StatusOK, roomJSON(updated))
}

func (s *Server) handleDeleteRoom(c *gin.Context) {
	room, ok := s.ownedRoom(c, "id")
	if !ok {
		return
	}
	if _, err := s.store.DeleteRoom(c.Request.Context(), userID(c), room.ID); err != nil {
		s.internalError(c, "delete room", err)
		return
	}
	c.Status(http.StatusNoContent)
}
