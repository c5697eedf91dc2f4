package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ProfessorAbraham/chereka-customer-support/internal/events"
	"github.com/ProfessorAbraham/chereka-customer-support/internal/metrics"
	"github.com/ProfessorAbraham/chereka-customer-support/internal/models"
	"github.com/ProfessorAbraham/chereka-customer-support/internal/store"

	"github.com/rs/zerolog/log"
)

// Origin identifies who asked for a mutation. ConnID is left out of
// "notify others" fan-out; OnCommit, when set, receives the direct reply
// after the store commit and before any fan-out.
type Origin struct {
	ConnID   string
	OnCommit func(reply Event)
}

// ChatService 封装聊天室的核心业务：授权、状态机迁移、持久化与事件扇出。
// REST 与 WebSocket 两条路径共用同一套规则。
type ChatService struct {
	store  *store.Store
	bus    Broadcaster
	events events.Publisher

	rooms     *keyLock
	customers *keyLock

	// Now is the clock; tests replace it.
	Now func() time.Time
}

func NewChatService(st *store.Store, bus Broadcaster, pub events.Publisher) *ChatService {
	if pub == nil {
		pub = events.Nop{}
	}
	return &ChatService{
		store:     st,
		bus:       bus,
		events:    pub,
		rooms:     newKeyLock(),
		customers: newKeyLock(),
		Now:       func() time.Time { return time.Now().UTC() },
	}
}

// RoomFilter selects rooms for ListRooms. Status "" or "all" disables the
// status filter.
type RoomFilter struct {
	Status string
	Page   int
	Limit  int
}

// CreateOrGetRoom returns the customer's open room with its history, opening
// a waiting room first if there is none.
func (s *ChatService) CreateOrGetRoom(ctx context.Context, actor models.User, subject string) (*RoomView, bool, error) {
	if actor.Role != models.RoleCustomer {
		return nil, false, fmt.Errorf("%w: only customers open chat sessions", ErrAccessDenied)
	}
	subject, err := NormalizeSubject(subject)
	if err != nil {
		return nil, false, err
	}

	unlock := s.customers.Lock(actor.ID)
	room, created, err := s.store.FindOrCreateActive(ctx, actor.ID, subject, s.Now())
	unlock()
	if err != nil {
		return nil, false, storeErr(err)
	}
	if created {
		s.publish(ctx, events.Record{Type: events.RoomCreated, RoomID: room.ID, ActorID: actor.ID, Status: string(room.Status), At: room.CreatedAt})
		log.Info().Uint("room_id", room.ID).Uint("user_id", actor.ID).Msg("chat room created")
	}
	view, err := s.withHistory(ctx, *room, store.Page{}, false)
	if err != nil {
		return nil, false, err
	}
	return view, created, nil
}

// GetRoomWithHistory returns a room with its full message log, or with one
// page of it when page or limit is set.
func (s *ChatService) GetRoomWithHistory(ctx context.Context, actor models.User, roomID uint, page, limit int) (*RoomView, error) {
	room, err := s.authorizedRoom(ctx, actor, roomID, ActionView)
	if err != nil {
		return nil, err
	}
	return s.withHistory(ctx, *room, store.Page{Page: page, Limit: limit}, page > 0 || limit > 0)
}

// ListMessages returns one ascending page of a room's messages.
func (s *ChatService) ListMessages(ctx context.Context, actor models.User, roomID uint, page, limit int) ([]MessageView, Pagination, error) {
	if _, err := s.authorizedRoom(ctx, actor, roomID, ActionView); err != nil {
		return nil, Pagination{}, err
	}
	msgs, total, p, err := s.store.Messages.ListByRoom(ctx, roomID, store.Page{Page: page, Limit: limit})
	if err != nil {
		return nil, Pagination{}, err
	}
	out := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, NewMessageView(m))
	}
	return out, newPagination(p.Page, p.Limit, total), nil
}

// ListRooms is the agent queue: assigned rooms plus every waiting room for
// agents, all rooms for admins.
func (s *ChatService) ListRooms(ctx context.Context, actor models.User, f RoomFilter) ([]RoomView, Pagination, error) {
	filter := store.ListFilter{Page: store.Page{Page: f.Page, Limit: f.Limit}}
	switch actor.Role {
	case models.RoleAgent:
		filter.AgentID = actor.ID
	case models.RoleAdmin:
	default:
		return nil, Pagination{}, fmt.Errorf("%w: room list is for agents", ErrAccessDenied)
	}
	if f.Status != "" && f.Status != "all" {
		st := models.RoomStatus(f.Status)
		if !st.Valid() {
			return nil, Pagination{}, fmt.Errorf("%w: unknown status %q", ErrInvalidContent, f.Status)
		}
		filter.Status = st
	}
	rooms, total, p, err := s.store.Rooms.ListForAgent(ctx, filter)
	if err != nil {
		return nil, Pagination{}, err
	}
	out := make([]RoomView, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, NewRoomView(r))
	}
	return out, newPagination(p.Page, p.Limit, total), nil
}

// Stats counts rooms per status, scoped to the agent's visible rooms.
func (s *ChatService) Stats(ctx context.Context, actor models.User) (store.StatusCounts, error) {
	if !actor.Role.IsStaff() {
		return store.StatusCounts{}, fmt.Errorf("%w: stats are for agents", ErrAccessDenied)
	}
	var agentID uint
	if actor.Role == models.RoleAgent {
		agentID = actor.ID
	}
	return s.store.Rooms.CountByStatus(ctx, agentID)
}

// JoinRoom authorizes a live connection entering a room's broadcast group.
// The caller joins the group in origin.OnCommit.
func (s *ChatService) JoinRoom(ctx context.Context, actor models.User, roomID uint, origin Origin) (*RoomView, error) {
	return s.apply(ctx, actor, roomID, Op{Action: ActionJoin}, origin)
}

// AssignAgent claims a waiting room for actor. Exactly one of several racing
// agents succeeds; the rest get ErrInvalidState.
func (s *ChatService) AssignAgent(ctx context.Context, actor models.User, roomID uint, origin Origin) (*RoomView, error) {
	return s.apply(ctx, actor, roomID, Op{Action: ActionClaim}, origin)
}

func (s *ChatService) CloseRoom(ctx context.Context, actor models.User, roomID uint, origin Origin) (*RoomView, error) {
	return s.apply(ctx, actor, roomID, Op{Action: ActionClose}, origin)
}

// AppendMessage stores a text message and delivers it to the room.
func (s *ChatService) AppendMessage(ctx context.Context, actor models.User, roomID uint, content string, origin Origin) (*MessageView, error) {
	var out *MessageView
	_, err := s.applyWith(ctx, actor, roomID, Op{Action: ActionSend, Content: content}, origin, func(m *MessageView) { out = m })
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *ChatService) apply(ctx context.Context, actor models.User, roomID uint, op Op, origin Origin) (*RoomView, error) {
	return s.applyWith(ctx, actor, roomID, op, origin, nil)
}

// applyWith runs one room operation: read, decide, persist, reply, fan out.
// The room lock spans all of it so broadcasts within a room leave in commit
// order.
func (s *ChatService) applyWith(ctx context.Context, actor models.User, roomID uint, op Op, origin Origin, onMessage func(*MessageView)) (*RoomView, error) {
	unlock := s.rooms.Lock(roomID)
	defer unlock()

	room, err := s.store.Rooms.Get(ctx, roomID)
	if err != nil {
		return nil, storeErr(err)
	}
	now := s.Now()
	if room.LastMessageAt != nil && now.Before(*room.LastMessageAt) {
		// Keep per-room timestamps monotonic even if the wall clock steps back.
		now = *room.LastMessageAt
	}
	tr, err := Step(*room, actor, op, now)
	if err != nil {
		return nil, err
	}

	var msg *MessageView
	if tr.Mutation != MutateNone {
		var stored *models.Message
		err = s.store.InTx(ctx, func(tx *store.Store) error {
			if tr.Mutation == MutateAssign {
				if err := tx.Rooms.AssignAgent(ctx, roomID, actor.ID, now); err != nil {
					return err
				}
			}
			if tr.Message != nil {
				m, err := tx.Messages.Append(ctx, roomID, tr.Message.SenderID, tr.Message.Content, tr.Message.Type, now)
				if err != nil {
					return err
				}
				stored = m
			}
			// Fails with ErrConflict if the room was closed under us.
			if err := tx.Rooms.TouchLastMessage(ctx, roomID, now); err != nil {
				return err
			}
			if tr.Mutation == MutateClose {
				return tx.Rooms.Close(ctx, roomID, now)
			}
			return nil
		})
		if err != nil {
			err = storeErr(err)
			if !errors.Is(err, ErrInvalidState) && !errors.Is(err, ErrNotFound) {
				log.Error().Err(err).Uint("room_id", roomID).Str("action", op.Action.String()).Msg("room mutation")
			}
			return nil, err
		}
		if stored != nil {
			v := NewMessageView(*stored)
			msg = &v
			if stored.MessageType == models.MessageText {
				metrics.ChatMessagesTotal.Inc()
			}
		}
	}

	if origin.OnCommit != nil && tr.Reply.Name != "" {
		origin.OnCommit(tr.Reply.event(msg))
	}
	if s.bus != nil {
		for _, o := range tr.Fanout {
			exclude := ""
			if o.ExcludeOrigin {
				exclude = origin.ConnID
			}
			s.bus.Broadcast(o.Group, o.event(msg), exclude)
		}
	}
	if onMessage != nil {
		onMessage(msg)
	}
	s.publishTransition(ctx, actor, op, tr, msg)

	view := NewRoomView(tr.Room)
	return &view, nil
}

func (s *ChatService) publishTransition(ctx context.Context, actor models.User, op Op, tr Transition, msg *MessageView) {
	rec := events.Record{RoomID: tr.Room.ID, ActorID: actor.ID, Status: string(tr.Room.Status), At: tr.Room.UpdatedAt}
	switch op.Action {
	case ActionClaim:
		rec.Type = events.RoomClaimed
	case ActionClose:
		rec.Type = events.RoomClosed
	case ActionSend:
		rec.Type = events.MessageCreated
		if msg != nil {
			rec.MessageID = msg.ID
			rec.At = msg.CreatedAt
		}
	default:
		return
	}
	s.publish(ctx, rec)
}

// publish is best-effort: a lost lifecycle record must not fail a chat
// operation that already committed.
func (s *ChatService) publish(ctx context.Context, rec events.Record) {
	if err := s.events.Publish(ctx, rec); err != nil {
		log.Warn().Err(err).Str("type", string(rec.Type)).Uint("room_id", rec.RoomID).Msg("publish chat event")
	}
}

func (s *ChatService) authorizedRoom(ctx context.Context, actor models.User, roomID uint, a Action) (*models.Room, error) {
	room, err := s.store.Rooms.Get(ctx, roomID)
	if err != nil {
		return nil, storeErr(err)
	}
	if _, err := Step(*room, actor, Op{Action: a}, s.Now()); err != nil {
		return nil, err
	}
	return room, nil
}

func (s *ChatService) withHistory(ctx context.Context, room models.Room, p store.Page, paged bool) (*RoomView, error) {
	view := NewRoomView(room)
	var msgs []models.Message
	if paged {
		page, total, np, err := s.store.Messages.ListByRoom(ctx, room.ID, p)
		if err != nil {
			return nil, err
		}
		pg := newPagination(np.Page, np.Limit, total)
		msgs, view.History = page, &pg
	} else {
		all, err := s.store.Messages.History(ctx, room.ID)
		if err != nil {
			return nil, err
		}
		msgs = all
	}
	view.Messages = make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		view.Messages = append(view.Messages, NewMessageView(m))
	}
	return &view, nil
}
