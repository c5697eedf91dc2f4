package events

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// Async hands records to a single background worker so a slow broker never
// stalls a chat operation. Order is preserved; records are dropped (and
// logged) when the queue is full.
type Async struct {
	next  Publisher
	queue chan Record
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewAsync(next Publisher, size int) *Async {
	if size <= 0 {
		size = 1024
	}
	a := &Async{next: next, queue: make(chan Record, size), done: make(chan struct{})}
	go a.worker()
	return a
}

func (a *Async) worker() {
	defer close(a.done)
	for rec := range a.queue {
		if err := a.next.Publish(context.Background(), rec); err != nil {
			log.Warn().Err(err).Str("type", string(rec.Type)).Uint("room_id", rec.RoomID).Msg("publish chat event")
		}
	}
}

// Publish enqueues rec. Records published after Close are dropped.
func (a *Async) Publish(_ context.Context, rec Record) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		log.Debug().Str("type", string(rec.Type)).Uint("room_id", rec.RoomID).Msg("event publisher closed, dropping")
		return nil
	}
	select {
	case a.queue <- rec:
	default:
		log.Warn().Str("type", string(rec.Type)).Uint("room_id", rec.RoomID).Msg("event queue full, dropping")
	}
	return nil
}

// Close drains the queue and closes the wrapped publisher. Only the first
// call closes it.
func (a *Async) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		<-a.done
		return nil
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	<-a.done
	return a.next.Close()
}
