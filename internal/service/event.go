package service

import (
	"strconv"
	"time"

	"github.com/ProfessorAbraham/chereka-customer-support/internal/models"
)

// Outbound event names.
const (
	EvJoinedChatRoom      = "joined_chat_room"
	EvLeftChatRoom        = "left_chat_room"
	EvClosedChatRoom      = "closed_chat_room"
	EvUserJoined          = "user_joined"
	EvUserLeft            = "user_left"
	EvNewMessage          = "new_message"
	EvUserTyping          = "user_typing"
	EvUserStoppedTyping   = "user_stopped_typing"
	EvAgentJoined         = "agent_joined"
	EvChatRoomTaken       = "chat_room_taken"
	EvChatRoomClosed      = "chat_room_closed"
	EvNewChatNotification = "new_chat_notification"
	EvError               = "error"
)

// AgentPool is the broadcast group every agent and admin connection joins.
const AgentPool = "agents"

func RoomGroup(roomID uint) string { return "chat_" + strconv.FormatUint(uint64(roomID), 10) }
func UserGroup(userID uint) string { return "user_" + strconv.FormatUint(uint64(userID), 10) }

// Event is one message pushed to a connection.
type Event struct {
	Name string      `json:"event"`
	Data interface{} `json:"data"`
}

// Broadcaster fans events out to broadcast groups. excludeConnID, when not
// empty, is skipped.
type Broadcaster interface {
	Broadcast(group string, ev Event, excludeConnID string)
}

// UserRef is the public view of a user carried in events.
type UserRef struct {
	ID        uint        `json:"id"`
	FirstName string      `json:"firstName"`
	LastName  string      `json:"lastName"`
	Role      models.Role `json:"role,omitempty"`
}

func NewUserRef(u models.User) UserRef {
	return UserRef{ID: u.ID, FirstName: u.FirstName, LastName: u.LastName, Role: u.Role}
}

func userRefPtr(u *models.User) *UserRef {
	if u == nil {
		return nil
	}
	r := NewUserRef(*u)
	return &r
}

type MessageView struct {
	ID          uint               `json:"id"`
	RoomID      uint               `json:"roomId"`
	SenderID    *uint              `json:"senderId"`
	Sender      *UserRef           `json:"sender"`
	Content     string             `json:"content"`
	MessageType models.MessageType `json:"messageType"`
	CreatedAt   time.Time          `json:"createdAt"`
}

func NewMessageView(m models.Message) MessageView {
	return MessageView{
		ID:          m.ID,
		RoomID:      m.RoomID,
		SenderID:    m.SenderID,
		Sender:      userRefPtr(m.Sender),
		Content:     m.Content,
		MessageType: m.MessageType,
		CreatedAt:   m.CreatedAt,
	}
}

// RoomView is a room as clients see it. Messages is the full log unless
// History carries the page metadata of a partial one.
type RoomView struct {
	ID            uint              `json:"id"`
	CustomerID    uint              `json:"customerId"`
	Customer      *UserRef          `json:"customer"`
	AgentID       *uint             `json:"agentId"`
	Agent         *UserRef          `json:"agent"`
	Status        models.RoomStatus `json:"status"`
	Subject       string            `json:"subject"`
	LastMessageAt *time.Time        `json:"lastMessageAt"`
	ClosedAt      *time.Time        `json:"closedAt"`
	CreatedAt     time.Time         `json:"createdAt"`
	Messages      []MessageView     `json:"messages,omitempty"`
	History       *Pagination       `json:"history,omitempty"`
}

func NewRoomView(r models.Room) RoomView {
	return RoomView{
		ID:            r.ID,
		CustomerID:    r.CustomerID,
		Customer:      userRefPtr(r.Customer),
		AgentID:       r.AgentID,
		Agent:         userRefPtr(r.Agent),
		Status:        r.Status,
		Subject:       r.Subject,
		LastMessageAt: r.LastMessageAt,
		ClosedAt:      r.ClosedAt,
		CreatedAt:     r.CreatedAt,
	}
}

// Pagination mirrors the page metadata returned by list endpoints.
type Pagination struct {
	CurrentPage  int   `json:"currentPage"`
	TotalPages   int   `json:"totalPages"`
	TotalItems   int64 `json:"totalItems"`
	ItemsPerPage int   `json:"itemsPerPage"`
}

func newPagination(page, limit int, total int64) Pagination {
	pages := 0
	if limit > 0 {
		pages = int((total + int64(limit) - 1) / int64(limit))
	}
	return Pagination{CurrentPage: page, TotalPages: pages, TotalItems: total, ItemsPerPage: limit}
}

// Payloads.

type RoomRef struct {
	RoomID uint `json:"roomId"`
}

type UserPayload struct {
	User UserRef `json:"user"`
}

type AgentPayload struct {
	Agent UserRef `json:"agent"`
}

type NotificationPayload struct {
	RoomID   uint    `json:"roomId"`
	Customer UserRef `json:"customer"`
	Message  string  `json:"message"`
}

type ErrorPayload struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Event   string `json:"event,omitempty"`
	RoomID  uint   `json:"roomId,omitempty"`
}
