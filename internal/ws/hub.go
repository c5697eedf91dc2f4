package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ProfessorAbraham/chereka-customer-support/internal/metrics"
	"github.com/ProfessorAbraham/chereka-customer-support/internal/pubsub"
	"github.com/ProfessorAbraham/chereka-customer-support/internal/service"

	"github.com/rs/zerolog/log"
)

// Hub 维护本进程的在线连接与广播分组，并通过 broker 在多进程间扇出。
// A connection belongs to its user group, the agent pool when staff, and at
// most one room group.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	groups  map[string]map[string]*Client
	rooms   map[string]uint

	broker pubsub.Broker
}

func NewHub(broker pubsub.Broker) *Hub {
	if broker == nil {
		broker = pubsub.NewLocal()
	}
	h := &Hub{
		clients: make(map[string]*Client),
		groups:  make(map[string]map[string]*Client),
		rooms:   make(map[string]uint),
		broker:  broker,
	}
	broker.Subscribe(h.deliver)
	return h
}

func (h *Hub) joinLocked(group string, c *Client) {
	m := h.groups[group]
	if m == nil {
		m = make(map[string]*Client)
		h.groups[group] = m
	}
	m[c.id] = c
}

func (h *Hub) leaveLocked(group, connID string) bool {
	m := h.groups[group]
	if _, ok := m[connID]; !ok {
		return false
	}
	delete(m, connID)
	if len(m) == 0 {
		delete(h.groups, group)
	}
	return true
}

// Bind registers a freshly authenticated connection.
func (h *Hub) Bind(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.id] = c
	h.joinLocked(service.UserGroup(c.user.ID), c)
	if c.user.Role.IsStaff() {
		h.joinLocked(service.AgentPool, c)
	}
	metrics.WsConnections.Inc()
}

// Unbind removes the connection from every group and closes its send
// buffer. It returns the room the connection was in, if any. Calling it
// twice is harmless.
func (h *Hub) Unbind(c *Client) (uint, bool) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; !ok {
		h.mu.Unlock()
		return 0, false
	}
	delete(h.clients, c.id)
	h.leaveLocked(service.UserGroup(c.user.ID), c.id)
	h.leaveLocked(service.AgentPool, c.id)
	room, inRoom := h.rooms[c.id]
	if inRoom {
		h.leaveLocked(service.RoomGroup(room), c.id)
		delete(h.rooms, c.id)
	}
	h.mu.Unlock()

	metrics.WsConnections.Dec()
	c.closeSend()
	return room, inRoom
}

// JoinRoom moves the connection into roomID's group, leaving any previous
// room group. It returns the previous room (0 if none).
func (h *Hub) JoinRoom(connID string, roomID uint) uint {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[connID]
	if !ok {
		return 0
	}
	prev := h.rooms[connID]
	if prev != 0 && prev != roomID {
		h.leaveLocked(service.RoomGroup(prev), connID)
	}
	h.rooms[connID] = roomID
	h.joinLocked(service.RoomGroup(roomID), c)
	return prev
}

// LeaveRoom reports whether the connection was in roomID's group.
func (h *Hub) LeaveRoom(connID string, roomID uint) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[connID] != roomID {
		return false
	}
	delete(h.rooms, connID)
	return h.leaveLocked(service.RoomGroup(roomID), connID)
}

func (h *Hub) CurrentRoom(connID string) (uint, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	room, ok := h.rooms[connID]
	return room, ok
}

// Online 返回本进程内房间的在线连接数。
func (h *Hub) Online(roomID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[service.RoomGroup(roomID)])
}

// CloseAll closes every local connection's send queue. Each write pump then
// sends a close frame and the read pump unbinds the connection.
func (h *Hub) CloseAll() int {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		c.closeSend()
	}
	return len(clients)
}

// Broadcast implements service.Broadcaster.
func (h *Hub) Broadcast(group string, ev service.Event, excludeConnID string) {
	b, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("event", ev.Name).Msg("encode broadcast")
		return
	}
	env := pubsub.Envelope{Group: group, Exclude: excludeConnID, Payload: b}
	if err := h.broker.Publish(context.Background(), env); err != nil {
		log.Error().Err(err).Str("group", group).Str("event", ev.Name).Msg("publish broadcast")
	}
}

// deliver hands an envelope to the local members of its group. Members whose
// send buffer is full are dropped.
func (h *Hub) deliver(env pubsub.Envelope) {
	h.mu.RLock()
	members := make([]*Client, 0, len(h.groups[env.Group]))
	for id, c := range h.groups[env.Group] {
		if id != env.Exclude {
			members = append(members, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range members {
		if !c.enqueue(env.Payload) {
			log.Warn().Str("conn_id", c.id).Uint("user_id", c.user.ID).Msg("send buffer full, dropping connection")
			metrics.WsDroppedClients.Inc()
			// The read pump observes the closed connection and runs the
			// normal disconnect path.
			c.closeSend()
		}
	}
}
