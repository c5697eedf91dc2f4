package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ProfessorAbraham/chereka-customer-support/internal/metrics"
	"github.com/ProfessorAbraham/chereka-customer-support/internal/service"

	"github.com/rs/zerolog/log"
)

// Inbound event names.
const (
	InJoinChatRoom    = "join_chat_room"
	InLeaveChatRoom   = "leave_chat_room"
	InSendMessage     = "send_message"
	InJoinWaitingChat = "join_waiting_chat"
	InCloseChatRoom   = "close_chat_room"
	InTypingStart     = "typing_start"
	InTypingStop      = "typing_stop"
)

var errRateLimited = errors.New("rate limited")

type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type roomRequest struct {
	RoomID  uint   `json:"roomId"`
	Content string `json:"content"`
}

type handlerFunc func(ctx context.Context, c *Client, req roomRequest) error

// Router dispatches inbound events from live connections. Each connection's
// events are handled one at a time by its read pump.
type Router struct {
	hub      *Hub
	chat     *service.ChatService
	handlers map[string]handlerFunc
}

func NewRouter(hub *Hub, chat *service.ChatService) *Router {
	r := &Router{hub: hub, chat: chat}
	r.handlers = map[string]handlerFunc{
		InJoinChatRoom:    r.joinChatRoom,
		InLeaveChatRoom:   r.leaveChatRoom,
		InSendMessage:     r.sendMessage,
		InJoinWaitingChat: r.joinWaitingChat,
		InCloseChatRoom:   r.closeChatRoom,
		InTypingStart:     r.typing(service.EvUserTyping),
		InTypingStop:      r.typing(service.EvUserStoppedTyping),
	}
	return r
}

// Handle decodes one frame and runs its handler. Failures are reported to
// the originating connection only.
func (r *Router) Handle(ctx context.Context, c *Client, raw []byte) {
	var in inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		r.fail(c, "", 0, fmt.Errorf("%w: malformed frame", service.ErrInvalidContent))
		return
	}
	if c.limiter != nil && !c.limiter.Allow() {
		r.fail(c, in.Event, 0, errRateLimited)
		return
	}
	h, ok := r.handlers[in.Event]
	if !ok {
		r.fail(c, in.Event, 0, fmt.Errorf("%w: unknown event %q", service.ErrInvalidContent, in.Event))
		return
	}
	var req roomRequest
	if len(in.Data) > 0 {
		if err := json.Unmarshal(in.Data, &req); err != nil {
			r.fail(c, in.Event, 0, fmt.Errorf("%w: malformed data", service.ErrInvalidContent))
			return
		}
	}
	if req.RoomID == 0 {
		r.fail(c, in.Event, 0, fmt.Errorf("%w: roomId is required", service.ErrInvalidContent))
		return
	}
	if err := h(ctx, c, req); err != nil {
		r.fail(c, in.Event, req.RoomID, err)
		return
	}
	metrics.WsEventsTotal.WithLabelValues(in.Event, "ok").Inc()
}

// Disconnect is the implicit leave when a connection goes away.
func (r *Router) Disconnect(c *Client) {
	room, ok := r.hub.Unbind(c)
	if ok {
		r.hub.Broadcast(service.RoomGroup(room), userEvent(service.EvUserLeft, c), c.id)
	}
}

func (r *Router) fail(c *Client, event string, roomID uint, err error) {
	kind := service.KindOf(err)
	msg := err.Error()
	if errors.Is(err, errRateLimited) {
		kind = service.KindRateLimited
	}
	if kind == service.KindInternal {
		log.Error().Err(err).Str("conn_id", c.id).Str("event", event).Uint("room_id", roomID).Msg("ws event failed")
		msg = "internal error"
	} else {
		log.Debug().Err(err).Str("conn_id", c.id).Str("event", event).Uint("room_id", roomID).Msg("ws event rejected")
	}
	label := event
	if _, ok := r.handlers[event]; !ok {
		label = "unknown"
	}
	metrics.WsEventsTotal.WithLabelValues(label, string(kind)).Inc()
	c.sendEvent(service.Event{Name: service.EvError, Data: service.ErrorPayload{
		Kind:    kind,
		Message: msg,
		Event:   event,
		RoomID:  roomID,
	}})
}

func userEvent(name string, c *Client) service.Event {
	return service.Event{Name: name, Data: service.UserPayload{User: service.NewUserRef(c.user)}}
}

// enterRoom joins the room group and tells the previous room, if any, that
// this connection left it.
func (r *Router) enterRoom(c *Client, roomID uint) {
	prev := r.hub.JoinRoom(c.id, roomID)
	if prev != 0 && prev != roomID {
		r.hub.Broadcast(service.RoomGroup(prev), userEvent(service.EvUserLeft, c), c.id)
	}
}

func (r *Router) joinChatRoom(ctx context.Context, c *Client, req roomRequest) error {
	_, err := r.chat.JoinRoom(ctx, c.user, req.RoomID, service.Origin{
		ConnID: c.id,
		OnCommit: func(reply service.Event) {
			r.enterRoom(c, req.RoomID)
			c.sendEvent(reply)
		},
	})
	return err
}

func (r *Router) leaveChatRoom(_ context.Context, c *Client, req roomRequest) error {
	if r.hub.LeaveRoom(c.id, req.RoomID) {
		r.hub.Broadcast(service.RoomGroup(req.RoomID), userEvent(service.EvUserLeft, c), c.id)
	}
	c.sendEvent(service.Event{Name: service.EvLeftChatRoom, Data: service.RoomRef{RoomID: req.RoomID}})
	return nil
}

func (r *Router) sendMessage(ctx context.Context, c *Client, req roomRequest) error {
	_, err := r.chat.AppendMessage(ctx, c.user, req.RoomID, req.Content, service.Origin{
		ConnID:   c.id,
		OnCommit: c.sendEvent,
	})
	return err
}

func (r *Router) joinWaitingChat(ctx context.Context, c *Client, req roomRequest) error {
	_, err := r.chat.AssignAgent(ctx, c.user, req.RoomID, service.Origin{
		ConnID: c.id,
		OnCommit: func(reply service.Event) {
			r.enterRoom(c, req.RoomID)
			c.sendEvent(reply)
		},
	})
	return err
}

func (r *Router) closeChatRoom(ctx context.Context, c *Client, req roomRequest) error {
	_, err := r.chat.CloseRoom(ctx, c.user, req.RoomID, service.Origin{
		ConnID:   c.id,
		OnCommit: c.sendEvent,
	})
	return err
}

// typing relays ephemeral typing state; only current room members may send it.
func (r *Router) typing(name string) handlerFunc {
	return func(_ context.Context, c *Client, req roomRequest) error {
		if room, ok := r.hub.CurrentRoom(c.id); !ok || room != req.RoomID {
			return fmt.Errorf("%w: not in room %d", service.ErrAccessDenied, req.RoomID)
		}
		r.hub.Broadcast(service.RoomGroup(req.RoomID), userEvent(name, c), c.id)
		return nil
	}
}
