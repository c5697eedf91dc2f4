package models

import "time"

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAgent    Role = "agent"
	RoleAdmin    Role = "admin"
)

// IsStaff reports whether the role belongs to the agent pool.
func (r Role) IsStaff() bool { return r == RoleAgent || r == RoleAdmin }

type RoomStatus string

const (
	RoomWaiting RoomStatus = "waiting"
	RoomActive  RoomStatus = "active"
	RoomClosed  RoomStatus = "closed"
)

func (s RoomStatus) Valid() bool {
	return s == RoomWaiting || s == RoomActive || s == RoomClosed
}

type MessageType string

const (
	MessageSystem MessageType = "system"
	MessageText   MessageType = "text"
)

// User is owned by the user-administration side of the helpdesk; the chat
// core only reads it.
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	FirstName    string    `gorm:"size:64;not null" json:"firstName"`
	LastName     string    `gorm:"size:64;not null" json:"lastName"`
	Email        string    `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Role         Role      `gorm:"size:16;not null;default:customer" json:"role"`
	IsActive     bool      `gorm:"not null;default:true" json:"isActive"`
	PasswordHash string    `gorm:"not null" json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (u User) FullName() string { return u.FirstName + " " + u.LastName }

// Room is one support conversation. At most one non-closed room exists per
// customer; the partial unique index backs up the find-or-create path.
type Room struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	CustomerID    uint       `gorm:"not null;uniqueIndex:idx_rooms_open_customer,where:status <> 'closed'" json:"customerId"`
	Customer      *User      `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	AgentID       *uint      `gorm:"index" json:"agentId"`
	Agent         *User      `gorm:"foreignKey:AgentID" json:"agent,omitempty"`
	Status        RoomStatus `gorm:"size:16;not null;default:waiting;index" json:"status"`
	Subject       string     `gorm:"size:200" json:"subject"`
	LastMessageAt *time.Time `json:"lastMessageAt"`
	ClosedAt      *time.Time `json:"closedAt"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// Message is append-only. System messages have no sender.
type Message struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	RoomID      uint        `gorm:"index:idx_msg_room_created,priority:1;not null" json:"roomId"`
	SenderID    *uint       `gorm:"index" json:"senderId"`
	Sender      *User       `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	Content     string      `gorm:"type:text;not null" json:"content"`
	MessageType MessageType `gorm:"size:16;not null;default:text" json:"messageType"`
	CreatedAt   time.Time   `gorm:"index:idx_msg_room_created,priority:2" json:"createdAt"`
}
