package bus

import (
	"context"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recorder) handler(sender, payload string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, sender+":"+payload)
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.msgs...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}

func TestBrokerFanOutPreservesPublishOrder(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	rec := &recorder{}
	unsub, err := b.Client("sub").Subscribe("chan", rec.handler)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer unsub()

	pub := b.Client("pub")
	ctx := context.Background()
	for _, payload := range []string{"a", "b", "c"} {
		if err := pub.Publish(ctx, "chan", payload, Transient); err != nil {
			t.Fatalf("publish failed: %v", err)
		}
	}

	waitFor(t, func() bool { return len(rec.snapshot()) == 3 })
	got := rec.snapshot()
	want := []string{"pub:a", "pub:b", "pub:c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("delivery order mismatch: got %v want %v", got, want)
		}
	}
}

func TestBrokerReplaysPersistedValueToLateSubscriber(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	ctx := context.Background()
	pub := b.Client("pub")
	if err := pub.Publish(ctx, "chan", "stale", PersistSession); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if err := pub.Publish(ctx, "chan", "fresh", PersistSession); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	rec := &recorder{}
	unsub, err := b.Client("late").Subscribe("chan", rec.handler)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer unsub()

	waitFor(t, func() bool { return len(rec.snapshot()) == 1 })
	if got := rec.snapshot()[0]; got != "pub:fresh" {
		t.Fatalf("expected last persisted value, got %q", got)
	}
}

func TestBrokerTransientMessagesNotReplayed(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	ctx := context.Background()
	if err := b.Client("pub").Publish(ctx, "chan", "gone", Transient); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	rec := &recorder{}
	unsub, err := b.Client("late").Subscribe("chan", rec.handler)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer unsub()

	// Give the dispatcher a chance to drain the replay slot.
	time.Sleep(50 * time.Millisecond)
	if got := rec.snapshot(); len(got) != 0 {
		t.Fatalf("expected no replay for transient messages, got %v", got)
	}
}

func TestBrokerUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	rec := &recorder{}
	unsub, err := b.Client("sub").Subscribe("chan", rec.handler)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	ctx := context.Background()
	pub := b.Client("pub")
	if err := pub.Publish(ctx, "chan", "first", Transient); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	waitFor(t, func() bool { return len(rec.snapshot()) == 1 })

	unsub()
	if err := pub.Publish(ctx, "chan", "second", Transient); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if got := rec.snapshot(); len(got) != 1 {
		t.Fatalf("expected delivery to stop after unsubscribe, got %v", got)
	}
}

func TestBrokerClosedRejectsOperations(t *testing.T) {
	b := NewBroker()
	if err := b.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	client := b.Client("pub")
	if err := client.Publish(context.Background(), "chan", "x", Transient); err != ErrClosed {
		t.Fatalf("expected ErrClosed on publish, got %v", err)
	}
	if _, err := client.Subscribe("chan", func(string, string) {}); err != ErrClosed {
		t.Fatalf("expected ErrClosed on subscribe, got %v", err)
	}
}
