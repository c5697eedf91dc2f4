package store

import (
	"context"
	"time"

	"github.com/ProfessorAbraham/chereka-customer-support/internal/models"

	"gorm.io/gorm"
)

const (
	defaultMessageLimit = 50
	maxMessageLimit     = 200
)

// MessageStore is the append-only message log; messages are never updated
// or deleted.
type MessageStore struct {
	db *gorm.DB
}

// Append 持久化一条消息，返回带发送者信息的记录。senderID 为 nil 表示系统消息。
func (s *MessageStore) Append(ctx context.Context, roomID uint, senderID *uint, content string, typ models.MessageType, at time.Time) (*models.Message, error) {
	msg := models.Message{
		RoomID:      roomID,
		SenderID:    senderID,
		Content:     content,
		MessageType: typ,
		CreatedAt:   at,
	}
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return nil, err
	}
	if senderID != nil {
		var sender models.User
		if err := s.db.WithContext(ctx).First(&sender, *senderID).Error; err != nil {
			return nil, err
		}
		msg.Sender = &sender
	}
	return &msg, nil
}

// History returns every message of the room in delivery order.
func (s *MessageStore) History(ctx context.Context, roomID uint) ([]models.Message, error) {
	var msgs []models.Message
	err := s.db.WithContext(ctx).Preload("Sender").
		Where("room_id = ?", roomID).
		Order("created_at asc").Order("id asc").
		Find(&msgs).Error
	return msgs, err
}

// ListByRoom 分页查询指定房间的消息，按 created_at、id 升序返回。
func (s *MessageStore) ListByRoom(ctx context.Context, roomID uint, p Page) ([]models.Message, int64, Page, error) {
	page := p.normalize(defaultMessageLimit, maxMessageLimit)
	q := s.db.WithContext(ctx).Model(&models.Message{}).Where("room_id = ?", roomID).Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, page, err
	}
	var msgs []models.Message
	err := q.Preload("Sender").
		Order("created_at asc").Order("id asc").
		Offset(page.offset()).Limit(page.Limit).
		Find(&msgs).Error
	if err != nil {
		return nil, 0, page, err
	}
	return msgs, total, page, nil
}
