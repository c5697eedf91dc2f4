package service

import (
	"fmt"
	"time"

	"github.com/ProfessorAbraham/chereka-customer-support/internal/models"
)

// Op is an inbound room operation.
type Op struct {
	Action  Action
	Content string
}

// Mutation names the conditional store update a transition needs.
type Mutation int

const (
	MutateNone Mutation = iota
	MutateAssign
	MutateTouch
	MutateClose
)

// PendingMessage is a message to append when the transition commits.
type PendingMessage struct {
	SenderID *uint
	Content  string
	Type     models.MessageType
}

// Outbound is a fan-out produced by a transition. When WithMessage is set the
// persisted message is sent as the event data.
type Outbound struct {
	Group         string
	Name          string
	Data          interface{}
	ExcludeOrigin bool
	WithMessage   bool
}

// Transition is the result of applying an Op to a room.
type Transition struct {
	Room     models.Room
	Mutation Mutation
	Message  *PendingMessage
	// Reply goes to the originating connection only, before any fan-out.
	Reply  Outbound
	Fanout []Outbound
}

// Step applies op to room on behalf of actor at time now. It performs no
// I/O: the returned transition says what to persist and what to announce.
func Step(room models.Room, actor models.User, op Op, now time.Time) (Transition, error) {
	tr := Transition{Room: room}
	group := RoomGroup(room.ID)

	switch op.Action {
	case ActionView:
		if err := Authorize(actor, room, ActionView); err != nil {
			return tr, err
		}

	case ActionJoin:
		if err := Authorize(actor, room, ActionJoin); err != nil {
			return tr, err
		}
		if room.Status == models.RoomClosed {
			return tr, fmt.Errorf("%w: room %d is closed", ErrInvalidState, room.ID)
		}
		tr.Reply = Outbound{Name: EvJoinedChatRoom, Data: RoomRef{RoomID: room.ID}}
		tr.Fanout = []Outbound{
			{Group: group, Name: EvUserJoined, Data: UserPayload{User: NewUserRef(actor)}, ExcludeOrigin: true},
		}

	case ActionClaim:
		if !actor.Role.IsStaff() {
			return tr, fmt.Errorf("%w: only agents can claim rooms", ErrAccessDenied)
		}
		if room.Status != models.RoomWaiting {
			return tr, fmt.Errorf("%w: room %d is %s", ErrInvalidState, room.ID, room.Status)
		}
		agentID := actor.ID
		tr.Room.AgentID = &agentID
		a := actor
		tr.Room.Agent = &a
		tr.Room.Status = models.RoomActive
		tr.Room.LastMessageAt = &now
		tr.Room.UpdatedAt = now
		tr.Mutation = MutateAssign
		tr.Message = &PendingMessage{Content: actor.FullName() + " has joined the chat.", Type: models.MessageSystem}
		tr.Reply = Outbound{Name: EvJoinedChatRoom, Data: RoomRef{RoomID: room.ID}}
		tr.Fanout = []Outbound{
			{Group: group, Name: EvAgentJoined, Data: AgentPayload{Agent: NewUserRef(actor)}, ExcludeOrigin: true},
			{Group: group, Name: EvNewMessage, WithMessage: true, ExcludeOrigin: true},
			{Group: AgentPool, Name: EvChatRoomTaken, Data: RoomRef{RoomID: room.ID}},
		}

	case ActionSend:
		if err := Authorize(actor, room, ActionSend); err != nil {
			return tr, err
		}
		if room.Status == models.RoomClosed {
			return tr, fmt.Errorf("%w: room %d is closed", ErrInvalidState, room.ID)
		}
		content, err := ValidateContent(op.Content)
		if err != nil {
			return tr, err
		}
		senderID := actor.ID
		tr.Room.LastMessageAt = &now
		tr.Room.UpdatedAt = now
		tr.Mutation = MutateTouch
		tr.Message = &PendingMessage{SenderID: &senderID, Content: content, Type: models.MessageText}
		tr.Reply = Outbound{Name: EvNewMessage, WithMessage: true}
		tr.Fanout = []Outbound{
			{Group: group, Name: EvNewMessage, WithMessage: true, ExcludeOrigin: true},
		}
		if actor.Role == models.RoleCustomer && room.Status == models.RoomWaiting {
			tr.Fanout = append(tr.Fanout, Outbound{
				Group: AgentPool,
				Name:  EvNewChatNotification,
				Data:  NotificationPayload{RoomID: room.ID, Customer: NewUserRef(actor), Message: content},
			})
		}

	case ActionClose:
		if err := Authorize(actor, room, ActionClose); err != nil {
			return tr, err
		}
		if room.Status == models.RoomClosed {
			return tr, fmt.Errorf("%w: room %d is already closed", ErrInvalidState, room.ID)
		}
		tr.Room.Status = models.RoomClosed
		tr.Room.ClosedAt = &now
		tr.Room.LastMessageAt = &now
		tr.Room.UpdatedAt = now
		tr.Mutation = MutateClose
		tr.Message = &PendingMessage{Content: "Chat session closed by " + actor.FullName() + ".", Type: models.MessageSystem}
		tr.Reply = Outbound{Name: EvClosedChatRoom, Data: RoomRef{RoomID: room.ID}}
		tr.Fanout = []Outbound{
			{Group: group, Name: EvNewMessage, WithMessage: true, ExcludeOrigin: true},
			{Group: group, Name: EvChatRoomClosed, Data: RoomRef{RoomID: room.ID}, ExcludeOrigin: true},
		}
		if room.Status == models.RoomWaiting {
			// Drop it from every agent's queue.
			tr.Fanout = append(tr.Fanout, Outbound{Group: AgentPool, Name: EvChatRoomClosed, Data: RoomRef{RoomID: room.ID}})
		}

	default:
		return tr, fmt.Errorf("%w: unknown action %s", ErrInvalidContent, op.Action)
	}
	return tr, nil
}

// event renders o, attaching msg when the outbound carries the message.
func (o Outbound) event(msg *MessageView) Event {
	if o.WithMessage && msg != nil {
		return Event{Name: o.Name, Data: *msg}
	}
	return Event{Name: o.Name, Data: o.Data}
}
