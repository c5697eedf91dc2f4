package events

import (
	"context"
	"sync"
	"testing"
)

type recorder struct {
	mu     sync.Mutex
	recs   []Record
	closed bool
}

func (r *recorder) Publish(_ context.Context, rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = append(r.recs, rec)
	return nil
}

func (r *recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func TestAsync_PreservesOrderAndDrainsOnClose(t *testing.T) {
	rec := &recorder{}
	a := NewAsync(rec, 16)
	for i := uint(1); i <= 10; i++ {
		if err := a.Publish(context.Background(), Record{Type: MessageCreated, RoomID: 1, MessageID: i}); err != nil {
			t.Fatal(err)
		}
	}
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}
	if !rec.closed {
		t.Error("Close() should close the wrapped publisher")
	}
	if len(rec.recs) != 10 {
		t.Fatalf("published %d records, want 10", len(rec.recs))
	}
	for i, r := range rec.recs {
		if r.MessageID != uint(i+1) {
			t.Errorf("recs[%d].MessageID = %d, want %d", i, r.MessageID, i+1)
		}
	}
}

func TestAsync_PublishAfterCloseIsDropped(t *testing.T) {
	rec := &recorder{}
	a := NewAsync(rec, 4)
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.Publish(context.Background(), Record{Type: RoomClosed, RoomID: 7}); err != nil {
				t.Errorf("Publish() after Close error = %v", err)
			}
		}()
	}
	wg.Wait()

	if err := a.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if len(rec.recs) != 0 {
		t.Errorf("published %d records after Close, want 0", len(rec.recs))
	}
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	if err := p.Publish(context.Background(), Record{}); err != nil {
		t.Error(err)
	}
	if err := p.Close(); err != nil {
		t.Error(err)
	}
}
