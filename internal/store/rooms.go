package store

import (
	"context"
	"errors"
	"time"

	"github.com/ProfessorAbraham/chereka-customer-support/internal/models"

	"gorm.io/gorm"
)

const (
	defaultRoomLimit = 10
	maxRoomLimit     = 100
)

// SessionStartedText is the system message every new room opens with.
const SessionStartedText = "Chat session started. Please wait for an agent to join."

// RoomStore persists chat rooms. Status transitions are conditional updates
// keyed on the expected prior status, so concurrent callers (in this process
// or another) cannot both win.
type RoomStore struct {
	db *gorm.DB
}

func (s *RoomStore) withUsers(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Preload("Customer").Preload("Agent")
}

// Get 按 id 查询房间，附带客户与坐席信息。
func (s *RoomStore) Get(ctx context.Context, roomID uint) (*models.Room, error) {
	var room models.Room
	if err := s.withUsers(ctx).First(&room, roomID).Error; err != nil {
		return nil, notFound(err)
	}
	return &room, nil
}

// OpenForCustomer returns the customer's waiting or active room.
func (s *RoomStore) OpenForCustomer(ctx context.Context, customerID uint) (*models.Room, error) {
	var room models.Room
	err := s.withUsers(ctx).
		Where("customer_id = ? AND status IN ?", customerID, []models.RoomStatus{models.RoomWaiting, models.RoomActive}).
		Order("id desc").
		First(&room).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &room, nil
}

// ListFilter selects rooms for the agent queue view. AgentID == 0 means no
// scoping (admins see every room).
type ListFilter struct {
	AgentID uint
	Status  models.RoomStatus
	Page
}

// ListForAgent returns rooms assigned to the agent or still waiting, newest
// activity first, together with the total number of matches.
func (s *RoomStore) ListForAgent(ctx context.Context, f ListFilter) ([]models.Room, int64, Page, error) {
	page := f.Page.normalize(defaultRoomLimit, maxRoomLimit)
	q := s.db.WithContext(ctx).Model(&models.Room{})
	if f.AgentID != 0 {
		q = q.Where("(agent_id = ? OR status = ?)", f.AgentID, models.RoomWaiting)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, page, err
	}
	var rooms []models.Room
	err := q.Preload("Customer").Preload("Agent").
		Order("last_message_at DESC NULLS LAST").
		Order("created_at DESC").
		Order("id DESC").
		Offset(page.offset()).Limit(page.Limit).
		Find(&rooms).Error
	if err != nil {
		return nil, 0, page, err
	}
	return rooms, total, page, nil
}

// Create inserts a new waiting room.
func (s *RoomStore) Create(ctx context.Context, customerID uint, subject string, at time.Time) (*models.Room, error) {
	room := models.Room{
		CustomerID: customerID,
		Status:     models.RoomWaiting,
		Subject:    subject,
		CreatedAt:  at,
		UpdatedAt:  at,
	}
	if err := s.db.WithContext(ctx).Create(&room).Error; err != nil {
		return nil, err
	}
	return &room, nil
}

// AssignAgent moves a waiting room to active under agentID.
func (s *RoomStore) AssignAgent(ctx context.Context, roomID, agentID uint, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&models.Room{}).
		Where("id = ? AND status = ?", roomID, models.RoomWaiting).
		Updates(map[string]interface{}{"agent_id": agentID, "status": models.RoomActive, "updated_at": at})
	return s.checkAffected(ctx, roomID, res)
}

// Close marks a non-closed room closed.
func (s *RoomStore) Close(ctx context.Context, roomID uint, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&models.Room{}).
		Where("id = ? AND status <> ?", roomID, models.RoomClosed).
		Updates(map[string]interface{}{"status": models.RoomClosed, "closed_at": at, "updated_at": at})
	return s.checkAffected(ctx, roomID, res)
}

// TouchLastMessage records message activity. Closed rooms are left alone and
// report ErrConflict.
func (s *RoomStore) TouchLastMessage(ctx context.Context, roomID uint, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&models.Room{}).
		Where("id = ? AND status <> ?", roomID, models.RoomClosed).
		Updates(map[string]interface{}{"last_message_at": at, "updated_at": at})
	return s.checkAffected(ctx, roomID, res)
}

func (s *RoomStore) checkAffected(ctx context.Context, roomID uint, res *gorm.DB) error {
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Room{}).Where("id = ?", roomID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrConflict
}

// StatusCounts is the per-status breakdown behind the chat stats endpoint.
type StatusCounts struct {
	Waiting int64 `json:"waiting"`
	Active  int64 `json:"active"`
	Closed  int64 `json:"closed"`
	Total   int64 `json:"total"`
}

// CountByStatus counts rooms visible to agentID (0 for all rooms).
func (s *RoomStore) CountByStatus(ctx context.Context, agentID uint) (StatusCounts, error) {
	var rows []struct {
		Status models.RoomStatus
		N      int64
	}
	q := s.db.WithContext(ctx).Model(&models.Room{})
	if agentID != 0 {
		q = q.Where("(agent_id = ? OR status = ?)", agentID, models.RoomWaiting)
	}
	var out StatusCounts
	if err := q.Select("status, count(*) as n").Group("status").Scan(&rows).Error; err != nil {
		return out, err
	}
	for _, r := range rows {
		switch r.Status {
		case models.RoomWaiting:
			out.Waiting = r.N
		case models.RoomActive:
			out.Active = r.N
		case models.RoomClosed:
			out.Closed = r.N
		}
		out.Total += r.N
	}
	return out, nil
}

// FindOrCreateActive returns the customer's open room, or opens a new
// waiting room with its session-started system message. created reports
// which happened.
func (s *Store) FindOrCreateActive(ctx context.Context, customerID uint, subject string, at time.Time) (room *models.Room, created bool, err error) {
	err = s.InTx(ctx, func(tx *Store) error {
		existing, err := tx.Rooms.OpenForCustomer(ctx, customerID)
		if err == nil {
			room = existing
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		r, err := tx.Rooms.Create(ctx, customerID, subject, at)
		if err != nil {
			return err
		}
		if _, err := tx.Messages.Append(ctx, r.ID, nil, SessionStartedText, models.MessageSystem, at); err != nil {
			return err
		}
		if err := tx.Rooms.TouchLastMessage(ctx, r.ID, at); err != nil {
			return err
		}
		room, created = r, true
		return nil
	})
	if err != nil {
		// Lost a race against another request for the same customer: the
		// partial unique index rejected our insert, so the winner's room exists.
		if existing, ferr := s.Rooms.OpenForCustomer(ctx, customerID); ferr == nil {
			return existing, false, nil
		}
		return nil, false, err
	}
	if created {
		room, err = s.Rooms.Get(ctx, room.ID)
		if err != nil {
			return nil, false, err
		}
	}
	return room, created, nil
}
