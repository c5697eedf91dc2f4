// Package pubsub carries encoded chat events between processes. Every
// process subscribes and delivers envelopes to its own local connections.
package pubsub

import (
	"context"
	"encoding/json"
	"sync"
)

// Envelope is one event addressed to a broadcast group.
type Envelope struct {
	Group   string          `json:"group"`
	Exclude string          `json:"exclude,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

type Handler func(Envelope)

type Broker interface {
	Publish(ctx context.Context, env Envelope) error
	// Subscribe registers h for every envelope published from now on.
	Subscribe(h Handler)
	Close() error
}

type handlers struct {
	mu   sync.RWMutex
	list []Handler
}

func (hs *handlers) add(h Handler) {
	hs.mu.Lock()
	hs.list = append(hs.list, h)
	hs.mu.Unlock()
}

func (hs *handlers) dispatch(env Envelope) {
	hs.mu.RLock()
	list := hs.list
	hs.mu.RUnlock()
	for _, h := range list {
		h(env)
	}
}

// Local delivers synchronously inside the calling goroutine, so envelopes
// published in sequence are handled in sequence.
type Local struct {
	hs handlers
}

func NewLocal() *Local { return &Local{} }

func (l *Local) Publish(_ context.Context, env Envelope) error {
	l.hs.dispatch(env)
	return nil
}

func (l *Local) Subscribe(h Handler) { l.hs.add(h) }

func (l *Local) Close() error { return nil }
