package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/ProfessorAbraham/chereka-customer-support/internal/auth"
	"github.com/ProfessorAbraham/chereka-customer-support/internal/service"
	"github.com/ProfessorAbraham/chereka-customer-support/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Handler 聚合聊天相关的 HTTP handler，依赖注入 service 层。
type Handler struct {
	chat *service.ChatService
	hub  *ws.Hub
}

func NewHandler(chat *service.ChatService, hub *ws.Hub) *Handler {
	return &Handler{chat: chat, hub: hub}
}

// roomDTO adds the local presence count to a room.
type roomDTO struct {
	service.RoomView
	Online int `json:"online"`
}

func (h *Handler) dto(v service.RoomView) roomDTO {
	return roomDTO{RoomView: v, Online: h.hub.Online(v.ID)}
}

// writeError maps chat errors onto HTTP statuses. Unexpected errors are
// logged and reported as 500.
func writeError(c *gin.Context, err error, op string) {
	status := http.StatusInternalServerError
	switch service.KindOf(err) {
	case service.KindNotFound:
		status = http.StatusNotFound
	case service.KindAccessDenied:
		status = http.StatusForbidden
	case service.KindInvalidContent:
		status = http.StatusBadRequest
	case service.KindInvalidState:
		status = http.StatusConflict
	}
	if errors.Is(err, auth.ErrUnauthenticated) {
		status = http.StatusUnauthorized
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("op", op).Msg("chat request failed")
		c.JSON(status, gin.H{"error": "internal error", "kind": service.KindInternal})
		return
	}
	c.JSON(status, gin.H{"error": err.Error(), "kind": service.KindOf(err)})
}

func roomID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id", "kind": service.KindInvalidContent})
		return 0, false
	}
	return uint(id), true
}

func queryInt(c *gin.Context, key string) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return v
}

// CreateOrGetRoom 返回客户当前的会话，没有则新建一个。
func (h *Handler) CreateOrGetRoom(c *gin.Context) {
	user, _ := auth.CurrentUser(c)
	var req struct {
		Subject string `json:"subject"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload", "kind": service.KindInvalidContent})
			return
		}
	}
	room, created, err := h.chat.CreateOrGetRoom(c.Request.Context(), user, req.Subject)
	if err != nil {
		writeError(c, err, "create room")
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"room": h.dto(*room), "created": created})
}

// ListRooms 返回坐席可见的房间列表。
func (h *Handler) ListRooms(c *gin.Context) {
	user, _ := auth.CurrentUser(c)
	rooms, p, err := h.chat.ListRooms(c.Request.Context(), user, service.RoomFilter{
		Status: c.Query("status"),
		Page:   queryInt(c, "page"),
		Limit:  queryInt(c, "limit"),
	})
	if err != nil {
		writeError(c, err, "list rooms")
		return
	}
	out := make([]roomDTO, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, h.dto(r))
	}
	c.JSON(http.StatusOK, gin.H{"rooms": out, "pagination": p})
}

func (h *Handler) GetRoom(c *gin.Context) {
	id, ok := roomID(c)
	if !ok {
		return
	}
	user, _ := auth.CurrentUser(c)
	room, err := h.chat.GetRoomWithHistory(c.Request.Context(), user, id, queryInt(c, "page"), queryInt(c, "limit"))
	if err != nil {
		writeError(c, err, "get room")
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": h.dto(*room)})
}

// JoinRoom 坐席认领等待中的房间。
func (h *Handler) JoinRoom(c *gin.Context) {
	id, ok := roomID(c)
	if !ok {
		return
	}
	user, _ := auth.CurrentUser(c)
	room, err := h.chat.AssignAgent(c.Request.Context(), user, id, service.Origin{})
	if err != nil {
		writeError(c, err, "join room")
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": h.dto(*room)})
}

func (h *Handler) CloseRoom(c *gin.Context) {
	id, ok := roomID(c)
	if !ok {
		return
	}
	user, _ := auth.CurrentUser(c)
	room, err := h.chat.CloseRoom(c.Request.Context(), user, id, service.Origin{})
	if err != nil {
		writeError(c, err, "close room")
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": h.dto(*room)})
}

// ListMessages 按时间正序分页返回房间消息。
func (h *Handler) ListMessages(c *gin.Context) {
	id, ok := roomID(c)
	if !ok {
		return
	}
	user, _ := auth.CurrentUser(c)
	msgs, p, err := h.chat.ListMessages(c.Request.Context(), user, id, queryInt(c, "page"), queryInt(c, "limit"))
	if err != nil {
		writeError(c, err, "list messages")
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs, "pagination": p})
}

func (h *Handler) SendMessage(c *gin.Context) {
	id, ok := roomID(c)
	if !ok {
		return
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload", "kind": service.KindInvalidContent})
		return
	}
	user, _ := auth.CurrentUser(c)
	msg, err := h.chat.AppendMessage(c.Request.Context(), user, id, req.Content, service.Origin{})
	if err != nil {
		writeError(c, err, "send message")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

func (h *Handler) Stats(c *gin.Context) {
	user, _ := auth.CurrentUser(c)
	stats, err := h.chat.Stats(c.Request.Context(), user)
	if err != nil {
		writeError(c, err, "stats")
		return
	}
	c.JSON(http.StatusOK, stats)
}
