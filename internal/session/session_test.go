package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/mivora/stagesync/internal/bus"
	"github.com/mivora/stagesync/internal/core"
	"github.com/mivora/stagesync/internal/menu"
	"github.com/mivora/stagesync/internal/rtc"
)

type fakeBanner struct {
	mu    sync.Mutex
	calls []banCall
}

type banCall struct {
	uid      core.UID
	duration int
	meeting  string
}

func (b *fakeBanner) Ban(_ context.Context, uid core.UID, durationMinutes int, hostMeetingID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, banCall{uid: uid, duration: durationMinutes, meeting: hostMeetingID})
	return nil
}

func (b *fakeBanner) snapshot() []banCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]banCall(nil), b.calls...)
}

type testClient struct {
	session  *Session
	engine   *rtc.Engine
	registry *menu.Registry
	banner   *fakeBanner
}

func startClient(t *testing.T, broker *bus.Broker, clientID string, uid core.UID, isHost bool) *testClient {
	t.Helper()
	logger := zerolog.Nop()
	engine := rtc.NewEngine(&logger)
	registry := menu.NewRegistry()
	banner := &fakeBanner{}

	s := New(Options{
		Logger:        &logger,
		Bus:           broker.Client(clientID),
		Surface:       registry,
		PinEffects:    engine,
		Controls:      engine,
		Banner:        banner,
		LocalUID:      uid,
		HostMeetingID: "meeting-1",
		IsHost:        isHost,
		UIDType:       "rtc",
		PinMode:       core.PinModeDeferred,
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go s.Run(ctx)

	c := &testClient{session: s, engine: engine, registry: registry, banner: banner}
	c.waitRunning(t)
	return c
}

func (c *testClient) waitRunning(t *testing.T) {
	t.Helper()
	waitFor(t, func() bool {
		_, err := c.session.Snapshot(context.Background())
		return err == nil
	})
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

func twoPartyRoster() (core.Roster, []core.UID) {
	roster := core.Roster{
		1: {UID: 1, Kind: core.KindRTC, Online: true},
		2: {UID: 2, Kind: core.KindRTC, Online: true},
	}
	return roster, []core.UID{1, 2}
}

func TestHostPinReachesEveryClient(t *testing.T) {
	broker := bus.NewBroker()
	defer broker.Close()

	host := startClient(t, broker, "host", 1, true)
	attendee := startClient(t, broker, "attendee", 2, false)

	roster, active := twoPartyRoster()
	host.session.UpdateRoster(roster, core.RaiseHandTable{}, active)
	attendee.session.UpdateRoster(roster, core.RaiseHandTable{}, active)

	host.session.Pin(2)

	for _, c := range []*testClient{host, attendee} {
		waitFor(t, func() bool {
			pinned := c.engine.Pinned()
			return pinned != nil && *pinned == 2 && c.engine.Layout() == core.LayoutPinned
		})
	}
}

func TestUnpinRestoresGridEverywhere(t *testing.T) {
	broker := bus.NewBroker()
	defer broker.Close()

	host := startClient(t, broker, "host", 1, true)
	attendee := startClient(t, broker, "attendee", 2, false)

	roster, active := twoPartyRoster()
	host.session.UpdateRoster(roster, core.RaiseHandTable{}, active)
	attendee.session.UpdateRoster(roster, core.RaiseHandTable{}, active)

	host.session.Pin(2)
	waitFor(t, func() bool { return attendee.engine.Pinned() != nil })

	host.session.Unpin()
	for _, c := range []*testClient{host, attendee} {
		waitFor(t, func() bool {
			return c.engine.Pinned() == nil && c.engine.Layout() == core.LayoutGrid
		})
	}
}

func TestLateJoinerAppliesPersistedPin(t *testing.T) {
	broker := bus.NewBroker()
	defer broker.Close()

	host := startClient(t, broker, "host", 1, true)
	roster, active := twoPartyRoster()
	host.session.UpdateRoster(roster, core.RaiseHandTable{}, active)
	host.session.Pin(2)
	waitFor(t, func() bool { return host.engine.Pinned() != nil })

	// The replay lands before the roster does, so the pin is deferred first
	// and applied once the target is known active.
	late := startClient(t, broker, "late", 3, false)
	late.session.UpdateRoster(roster, core.RaiseHandTable{}, active)

	waitFor(t, func() bool {
		pinned := late.engine.Pinned()
		return pinned != nil && *pinned == 2 && late.engine.Layout() == core.LayoutPinned
	})
}

func TestMicGateBroadcastSparesHosts(t *testing.T) {
	broker := bus.NewBroker()
	defer broker.Close()

	host := startClient(t, broker, "host", 1, true)
	attendee := startClient(t, broker, "attendee", 2, false)

	host.session.GateMic(true)
	waitFor(t, func() bool { return !attendee.engine.AudioEnabled() })

	if !host.engine.AudioEnabled() {
		t.Fatalf("expected host mic to be untouched by its own gate")
	}

	host.session.GateMic(false)
	waitFor(t, func() bool { return attendee.engine.AudioEnabled() })
}

func TestVideoGateBroadcast(t *testing.T) {
	broker := bus.NewBroker()
	defer broker.Close()

	host := startClient(t, broker, "host", 1, true)
	attendee := startClient(t, broker, "attendee", 2, false)

	host.session.GateVideo(true)
	waitFor(t, func() bool { return !attendee.engine.VideoEnabled() })
	if !host.engine.VideoEnabled() {
		t.Fatalf("expected host camera to be untouched by its own gate")
	}
}

func TestSnapshotBeforeRun(t *testing.T) {
	broker := bus.NewBroker()
	defer broker.Close()

	logger := zerolog.Nop()
	engine := rtc.NewEngine(&logger)
	s := New(Options{
		Logger:     &logger,
		Bus:        broker.Client("idle"),
		Surface:    menu.NewRegistry(),
		PinEffects: engine,
		Controls:   engine,
		Banner:     &fakeBanner{},
		UIDType:    "rtc",
		PinMode:    core.PinModeDeferred,
	})

	if _, err := s.Snapshot(context.Background()); err != ErrNotRunning {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
}

func TestRemoveFromRoomBansAndStripsTarget(t *testing.T) {
	broker := bus.NewBroker()
	defer broker.Close()

	host := startClient(t, broker, "host", 1, true)
	roster, active := twoPartyRoster()
	host.session.UpdateRoster(roster, core.RaiseHandTable{}, active)

	item, ok := host.registry.Item(menu.KeyRemoveFromRoom)
	if !ok {
		t.Fatalf("remove-from-room item not registered")
	}
	item.OnAction(2, "")

	waitFor(t, func() bool {
		calls := host.banner.snapshot()
		return len(calls) == 1 && calls[0].uid == 2 &&
			calls[0].duration == menu.BanDurationMinutes && calls[0].meeting == "meeting-1"
	})

	waitFor(t, func() bool {
		state, err := host.session.Snapshot(context.Background())
		if err != nil {
			return false
		}
		for _, uid := range state.ActiveUIDs {
			if uid == 2 {
				return false
			}
		}
		return true
	})
}

func buildHostSession(broker *bus.Broker, clientID string, clock clockwork.Clock) *Session {
	logger := zerolog.Nop()
	engine := rtc.NewEngine(&logger)
	return New(Options{
		Logger:        &logger,
		Clock:         clock,
		Bus:           broker.Client(clientID),
		Surface:       menu.NewRegistry(),
		PinEffects:    engine,
		Controls:      engine,
		Banner:        &fakeBanner{},
		LocalUID:      1,
		HostMeetingID: "meeting-1",
		IsHost:        true,
		UIDType:       "rtc",
		PinMode:       core.PinModeDeferred,
	})
}

func TestRaiseHandTimestampsUseSessionClock(t *testing.T) {
	broker := bus.NewBroker()
	defer broker.Close()

	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	s := buildHostSession(broker, "host", clock)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go s.Run(ctx)

	raised := time.Date(2026, 3, 1, 11, 30, 0, 0, time.UTC)
	roster, active := twoPartyRoster()
	s.UpdateRoster(roster, core.RaiseHandTable{
		1: {Role: core.RaiseRoleHost, Raised: true, TS: raised},
		2: {Role: core.RaiseRoleAudience, Raised: true},
	}, active)

	var state State
	waitFor(t, func() bool {
		var err error
		state, err = s.Snapshot(context.Background())
		return err == nil && len(state.RaiseHand) == 2
	})

	// Entries arriving without a timestamp are stamped with the session clock;
	// entries that already carry one keep it.
	if got := state.RaiseHand[2].TS; !got.Equal(clock.Now()) {
		t.Fatalf("expected stamped ts %v, got %v", clock.Now(), got)
	}
	if got := state.RaiseHand[1].TS; !got.Equal(raised) {
		t.Fatalf("expected original ts %v, got %v", raised, got)
	}
}

func TestCallsAfterTeardownAreDropped(t *testing.T) {
	broker := bus.NewBroker()
	defer broker.Close()

	s := buildHostSession(broker, "host", nil)
	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)

	waitFor(t, func() bool {
		_, err := s.Snapshot(context.Background())
		return err == nil
	})

	cancel()
	waitFor(t, func() bool {
		_, err := s.Snapshot(context.Background())
		return errors.Is(err, ErrNotRunning)
	})

	// Far more calls than the inbox can hold; none may block.
	finished := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			s.Pin(2)
			s.GateMic(true)
		}
		s.DisplayName(context.Background(), 2)
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatalf("calls after teardown blocked")
	}
}

func TestSnapshotReflectsBucketsAndEligibility(t *testing.T) {
	broker := bus.NewBroker()
	defer broker.Close()

	host := startClient(t, broker, "host", 1, true)
	roster, active := twoPartyRoster()
	host.session.UpdateRoster(roster, core.RaiseHandTable{}, active)

	waitFor(t, func() bool {
		state, err := host.session.Snapshot(context.Background())
		if err != nil {
			return false
		}
		return len(state.Buckets.HostUIDs) == 2 && state.Eligible
	})
}
