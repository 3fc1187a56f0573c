package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/roomcast/roomcast/internal/core"
	"github.com/roomcast/roomcast/internal/history"
	"github.com/roomcast/roomcast/internal/proto"
)

// ErrorResponse is the JSON error body for REST endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RoomHandlers provides HTTP handlers for room management endpoints.
type RoomHandlers struct {
	rooms *core.Manager
	store history.Store
	log   *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance.
func NewRoomHandlers(rooms *core.Manager, store history.Store, logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{rooms: rooms, store: store, log: logger}
}

// CreateRoomRequest represents the create room request body.
type CreateRoomRequest struct {
	Name string `json:"name" binding:"required,min=1,max=64"`
}

// CreateRoom handles room creation.
// POST /api/rooms
func (h *RoomHandlers) CreateRoom(c *gin.Context) {
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create room request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if !history.ValidRoomName(req.Name) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid room name"})
		return
	}

	if err := h.rooms.Create(c.Request.Context(), req.Name); err != nil {
		switch core.ErrorCode(err) {
		case core.ErrCodeRoomExists:
			c.JSON(http.StatusConflict, ErrorResponse{Error: "room with this name already exists"})
		default:
			h.log.Error().Err(err).Str("room", req.Name).Msg("failed to create room")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		}
		return
	}

	c.JSON(http.StatusCreated, proto.RoomData{Room: req.Name})
}

// HistoryResponse is the persisted log of one room.
type HistoryResponse struct {
	Room     string               `json:"room"`
	Messages []proto.EventMessage `json:"messages"`
}

// RoomHistory returns the room's full ordered history.
// GET /api/rooms/:room/history
func (h *RoomHandlers) RoomHistory(c *gin.Context) {
	room := c.Param("room")
	if !history.ValidRoomName(room) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid room name"})
		return
	}

	exists, err := h.store.RoomExists(c.Request.Context(), room)
	if err != nil {
		h.log.Error().Err(err).Str("room", room).Msg("failed to check room")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	if !exists {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "room not found"})
		return
	}

	records, err := h.store.ReadAll(c.Request.Context(), room)
	if err != nil {
		h.log.Error().Err(err).Str("room", room).Msg("failed to read history")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	messages := make([]proto.EventMessage, 0, len(records))
	for _, rec := range records {
		messages = append(messages, proto.EventMessage{
			ID:      rec.ID,
			Room:    rec.Room,
			Sender:  rec.Sender,
			Content: rec.Content,
			TS:      rec.CreatedAt.UnixNano(),
		})
	}
	c.JSON(http.StatusOK, HistoryResponse{Room: room, Messages: messages})
}
