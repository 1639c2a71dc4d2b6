package busserver

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mivora/stagesync/internal/store"
	"github.com/mivora/stagesync/internal/store/sqlite"
)

func startHub(t *testing.T, st store.Store) *Hub {
	t.Helper()
	logger := zerolog.Nop()
	hub := NewHub(&logger, st)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func mustDelivery(t *testing.T, c *Client) Delivery {
	t.Helper()
	select {
	case d := <-c.Deliveries:
		return d
	case <-time.After(2 * time.Second):
		t.Fatalf("client %s received no delivery", c.ID)
		return Delivery{}
	}
}

func assertNoDelivery(t *testing.T, c *Client) {
	t.Helper()
	select {
	case d := <-c.Deliveries:
		t.Fatalf("client %s received unexpected delivery %+v", c.ID, d)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPublishFansOutToSessionIncludingSender(t *testing.T) {
	hub := startHub(t, nil)

	a := NewClient("a", "s1", 1, true)
	b := NewClient("b", "s1", 2, false)
	hub.Register(a)
	hub.Register(b)

	hub.Publish(a, "PIN_FOR_EVERYONE", `{"action":"unpin"}`, false)

	for _, c := range []*Client{a, b} {
		d := mustDelivery(t, c)
		if d.Channel != "PIN_FOR_EVERYONE" || d.Sender != "a" || d.Payload != `{"action":"unpin"}` {
			t.Fatalf("unexpected delivery %+v", d)
		}
	}
}

func TestPublishIsScopedToSession(t *testing.T) {
	hub := startHub(t, nil)

	a := NewClient("a", "s1", 1, true)
	other := NewClient("x", "s2", 9, false)
	hub.Register(a)
	hub.Register(other)

	hub.Publish(a, "DISABLE_ATTENDEE_MIC", "true", false)

	mustDelivery(t, a)
	assertNoDelivery(t, other)
}

func TestUnregisterStopsDelivery(t *testing.T) {
	hub := startHub(t, nil)

	a := NewClient("a", "s1", 1, true)
	b := NewClient("b", "s1", 2, false)
	hub.Register(a)
	hub.Register(b)

	hub.Unregister(b)
	hub.Publish(a, "DISABLE_ATTENDEE_VIDEO", "true", false)

	mustDelivery(t, a)
	// b's channel is closed on unregister; a zero-value read means closed,
	// not a delivery.
	if d, ok := <-b.Deliveries; ok {
		t.Fatalf("unregistered client received delivery %+v", d)
	}
}

func TestPersistedChannelReplayedToLateJoiner(t *testing.T) {
	st, err := sqlite.New(filepath.Join(t.TempDir(), "bus.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	hub := startHub(t, st)

	host := NewClient("host", "s1", 1, true)
	hub.Register(host)
	hub.Publish(host, "PIN_FOR_EVERYONE", `{"pinForAllUid":2,"uidType":"rtc","action":"pin"}`, true)
	mustDelivery(t, host)

	late := NewClient("late", "s1", 3, false)
	hub.Register(late)

	d := mustDelivery(t, late)
	if d.Channel != "PIN_FOR_EVERYONE" || d.Sender != "host" {
		t.Fatalf("unexpected replay %+v", d)
	}
}

func TestReplayKeepsOnlyLastValuePerChannel(t *testing.T) {
	st, err := sqlite.New(filepath.Join(t.TempDir(), "bus.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	hub := startHub(t, st)

	host := NewClient("host", "s1", 1, true)
	hub.Register(host)
	hub.Publish(host, "PIN_FOR_EVERYONE", `{"pinForAllUid":2,"uidType":"rtc","action":"pin"}`, true)
	hub.Publish(host, "PIN_FOR_EVERYONE", `{"uidType":"rtc","action":"unpin"}`, true)
	mustDelivery(t, host)
	mustDelivery(t, host)

	late := NewClient("late", "s1", 3, false)
	hub.Register(late)

	d := mustDelivery(t, late)
	if d.Payload != `{"uidType":"rtc","action":"unpin"}` {
		t.Fatalf("expected last value replayed, got %q", d.Payload)
	}
	assertNoDelivery(t, late)
}

func BenchmarkSessionFanOut(b *testing.B) {
	logger := zerolog.Nop()
	hub := NewHub(&logger, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	const clients = 50
	sender := NewClient("sender", "bench", 0, true)
	hub.Register(sender)
	all := make([]*Client, 0, clients)
	for i := 0; i < clients; i++ {
		c := NewClient(fmt.Sprintf("c%d", i), "bench", int64(i+1), false)
		hub.Register(c)
		all = append(all, c)
		go func(c *Client) {
			for range c.Deliveries {
			}
		}(c)
	}
	go func() {
		for range sender.Deliveries {
		}
	}()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		hub.Publish(sender, "DISABLE_ATTENDEE_MIC", "true", false)
	}
	b.StopTimer()

	for _, c := range all {
		hub.Unregister(c)
	}
	hub.Unregister(sender)
}
