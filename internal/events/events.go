// Package events publishes chat lifecycle records to an external stream
// (Kafka) for downstream consumers such as reporting.
package events

import (
	"context"
	"time"
)

type Type string

const (
	RoomCreated    Type = "room.created"
	RoomClaimed    Type = "room.claimed"
	RoomClosed     Type = "room.closed"
	MessageCreated Type = "message.created"
)

// Record is one lifecycle fact. It is published after the corresponding
// store mutation has committed.
type Record struct {
	Type      Type      `json:"type"`
	RoomID    uint      `json:"roomId"`
	ActorID   uint      `json:"actorId"`
	MessageID uint      `json:"messageId,omitempty"`
	Status    string    `json:"status,omitempty"`
	At        time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, rec Record) error
	Close() error
}

// Nop discards records. It is used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Record) error { return nil }
func (Nop) Close() error                          { return nil }
