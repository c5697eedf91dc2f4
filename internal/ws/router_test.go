package ws

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/ProfessorAbraham/chereka-customer-support/internal/models"
	"github.com/ProfessorAbraham/chereka-customer-support/internal/service"
	"github.com/ProfessorAbraham/chereka-customer-support/internal/store"
	"github.com/ProfessorAbraham/chereka-customer-support/internal/testutil"

	"golang.org/x/time/rate"
)

type routerFixture struct {
	hub    *Hub
	router *Router
	chat   *service.ChatService
	doe    *Client
	smith  *Client
	jones  *Client
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	gdb := testutil.NewDB(t)
	hub := NewHub(nil)
	chat := service.NewChatService(store.New(gdb), hub, nil)
	f := &routerFixture{
		hub:    hub,
		chat:   chat,
		router: NewRouter(hub, chat),
		doe:    fakeClient(testutil.CreateUser(t, gdb, "Jane", "Doe", models.RoleCustomer), 64),
		smith:  fakeClient(testutil.CreateUser(t, gdb, "John", "Smith", models.RoleAgent), 64),
		jones:  fakeClient(testutil.CreateUser(t, gdb, "Ann", "Jones", models.RoleAgent), 64),
	}
	for _, c := range []*Client{f.doe, f.smith, f.jones} {
		hub.Bind(c)
	}
	return f
}

func (f *routerFixture) send(c *Client, event string, data interface{}) {
	b, _ := json.Marshal(map[string]interface{}{"event": event, "data": data})
	f.router.Handle(context.Background(), c, b)
}

func expect(t *testing.T, who string, got []frame, want ...string) {
	t.Helper()
	names := eventNames(got)
	if len(names) != len(want) {
		t.Fatalf("%s received %v, want %v", who, names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("%s received %v, want %v", who, names, want)
		}
	}
}

func errorKind(t *testing.T, f frame) service.Kind {
	t.Helper()
	if f.Event != service.EvError {
		t.Fatalf("frame %s is not an error", f.Event)
	}
	var p service.ErrorPayload
	if err := json.Unmarshal(f.Data, &p); err != nil {
		t.Fatal(err)
	}
	return p.Kind
}

func TestRouter_SupportConversation(t *testing.T) {
	f := newRouterFixture(t)
	room, _, err := f.chat.CreateOrGetRoom(context.Background(), f.doe.user, "Billing")
	if err != nil {
		t.Fatal(err)
	}
	ref := map[string]interface{}{"roomId": room.ID}

	f.send(f.doe, InJoinChatRoom, ref)
	expect(t, "doe", drain(t, f.doe), service.EvJoinedChatRoom)

	f.send(f.doe, InSendMessage, map[string]interface{}{"roomId": room.ID, "content": "Hello?"})
	expect(t, "doe", drain(t, f.doe), service.EvNewMessage)
	expect(t, "smith", drain(t, f.smith), service.EvNewChatNotification)
	expect(t, "jones", drain(t, f.jones), service.EvNewChatNotification)

	f.send(f.smith, InJoinWaitingChat, ref)
	expect(t, "smith", drain(t, f.smith), service.EvJoinedChatRoom, service.EvChatRoomTaken)
	expect(t, "doe", drain(t, f.doe), service.EvAgentJoined, service.EvNewMessage)
	expect(t, "jones", drain(t, f.jones), service.EvChatRoomTaken)

	f.send(f.jones, InJoinWaitingChat, ref)
	got := drain(t, f.jones)
	expect(t, "jones", got, service.EvError)
	if k := errorKind(t, got[0]); k != service.KindInvalidState {
		t.Errorf("second claim kind = %s, want invalid_state", k)
	}

	f.send(f.doe, InTypingStart, ref)
	expect(t, "smith", drain(t, f.smith), service.EvUserTyping)
	expect(t, "doe", drain(t, f.doe))

	f.send(f.jones, InTypingStart, ref)
	got = drain(t, f.jones)
	if k := errorKind(t, got[0]); k != service.KindAccessDenied {
		t.Errorf("typing outside the room kind = %s", k)
	}

	f.send(f.smith, InSendMessage, map[string]interface{}{"roomId": room.ID, "content": "Hi Jane"})
	expect(t, "smith", drain(t, f.smith), service.EvNewMessage)
	got = drain(t, f.doe)
	expect(t, "doe", got, service.EvNewMessage)
	var msg service.MessageView
	if err := json.Unmarshal(got[0].Data, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Content != "Hi Jane" || msg.Sender == nil || msg.Sender.FirstName != "John" {
		t.Errorf("delivered message = %+v", msg)
	}

	f.send(f.smith, InCloseChatRoom, ref)
	expect(t, "smith", drain(t, f.smith), service.EvClosedChatRoom)
	expect(t, "doe", drain(t, f.doe), service.EvNewMessage, service.EvChatRoomClosed)

	f.send(f.doe, InSendMessage, map[string]interface{}{"roomId": room.ID, "content": "wait"})
	got = drain(t, f.doe)
	if k := errorKind(t, got[0]); k != service.KindInvalidState {
		t.Errorf("send after close kind = %s", k)
	}

	f.router.Disconnect(f.doe)
	expect(t, "smith", drain(t, f.smith), service.EvUserLeft)
}

func TestRouter_SwitchingRoomsNotifiesPreviousRoom(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()
	first, _, _ := f.chat.CreateOrGetRoom(ctx, f.doe.user, "")
	if _, err := f.chat.AssignAgent(ctx, f.smith.user, first.ID, service.Origin{}); err != nil {
		t.Fatal(err)
	}
	f.send(f.smith, InJoinChatRoom, map[string]interface{}{"roomId": first.ID})
	f.send(f.doe, InJoinChatRoom, map[string]interface{}{"roomId": first.ID})
	drain(t, f.smith)
	drain(t, f.doe)

	if _, err := f.chat.CloseRoom(ctx, f.smith.user, first.ID, service.Origin{}); err != nil {
		t.Fatal(err)
	}
	second, _, _ := f.chat.CreateOrGetRoom(ctx, f.doe.user, "")
	drain(t, f.smith)
	drain(t, f.doe)

	f.send(f.doe, InJoinChatRoom, map[string]interface{}{"roomId": second.ID})
	expect(t, "doe", drain(t, f.doe), service.EvJoinedChatRoom)
	expect(t, "smith", drain(t, f.smith), service.EvUserLeft)

	f.send(f.doe, InLeaveChatRoom, map[string]interface{}{"roomId": second.ID})
	expect(t, "doe", drain(t, f.doe), service.EvLeftChatRoom)
	if f.hub.Online(second.ID) != 0 {
		t.Errorf("Online() after leave = %d", f.hub.Online(second.ID))
	}
}

func TestRouter_RejectsBadFrames(t *testing.T) {
	f := newRouterFixture(t)
	tests := []struct {
		name string
		raw  string
		want service.Kind
	}{
		{"malformed json", `{"event":`, service.KindInvalidContent},
		{"unknown event", `{"event":"dance","data":{"roomId":1}}`, service.KindInvalidContent},
		{"missing room id", `{"event":"send_message","data":{"content":"x"}}`, service.KindInvalidContent},
		{"bad data", `{"event":"send_message","data":"nope"}`, service.KindInvalidContent},
		{"missing room", `{"event":"join_chat_room","data":{"roomId":999}}`, service.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.router.Handle(context.Background(), f.doe, []byte(tt.raw))
			got := drain(t, f.doe)
			if len(got) != 1 {
				t.Fatalf("received %v, want one error", eventNames(got))
			}
			if k := errorKind(t, got[0]); k != tt.want {
				t.Errorf("kind = %s, want %s", k, tt.want)
			}
		})
	}
}

func TestRouter_RateLimitsConnection(t *testing.T) {
	f := newRouterFixture(t)
	f.doe.limiter = rate.NewLimiter(0, 1)

	f.send(f.doe, InLeaveChatRoom, map[string]interface{}{"roomId": 1})
	expect(t, "doe", drain(t, f.doe), service.EvLeftChatRoom)

	f.send(f.doe, InLeaveChatRoom, map[string]interface{}{"roomId": 1})
	got := drain(t, f.doe)
	if k := errorKind(t, got[0]); k != service.KindRateLimited {
		t.Errorf("kind = %s, want rate_limited", k)
	}
}
