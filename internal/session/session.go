// Package session runs the per-client reactive scheduler: roster changes,
// event-channel deliveries, and user actions are applied as ordered
// callbacks on a single goroutine, so the pin state and role buckets have
// exactly one writer per client.
package session

import (
	"context"
	"errors"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/mivora/stagesync/internal/bus"
	"github.com/mivora/stagesync/internal/core"
	"github.com/mivora/stagesync/internal/menu"
)

// ErrNotRunning is returned when a snapshot is requested before Run.
var ErrNotRunning = errors.New("session is not running")

// Banner removes a participant from the room for a duration. Implemented by
// the RTC layer; calls are fire-and-forget from the scheduler's perspective.
type Banner interface {
	Ban(ctx context.Context, uid core.UID, durationMinutes int, hostMeetingID string) error
}

// NameSource resolves display names for a backend role. Lookups must not
// block reconciliation; the session runs them asynchronously.
type NameSource interface {
	NamesByRole(ctx context.Context, role string) (map[core.UID]string, error)
}

// Options configure a session.
type Options struct {
	Logger        *zerolog.Logger
	Clock         clockwork.Clock
	Bus           bus.Bus
	Surface       menu.Surface
	PinEffects    core.PinEffects
	Controls      core.LocalControls
	Banner        Banner
	Names         NameSource // optional
	NamesRole     string
	CloseMenu     func() // optional
	LocalUID      core.UID
	HostMeetingID string
	IsHost        bool
	UIDType       string
	PinMode       core.PinMode
	Banned        func(core.UID) bool // optional, strict mode only
}

// State is a read-only snapshot of the session's synchronized state.
// RaiseHand carries the latest raise-hand table with timestamps stamped from
// the session clock on arrival.
type State struct {
	Buckets    core.RoleBuckets
	ActiveUIDs []core.UID
	RaiseHand  core.RaiseHandTable
	PinnedUID  *core.UID
	Pending    *core.PendingPin
	Gates      core.GateFlags
	Eligible   bool
}

// Session owns one client's synchronized participant state.
type Session struct {
	log   *zerolog.Logger
	clock clockwork.Clock
	bus   bus.Bus

	classifier *core.Classifier
	pin        *core.PinSynchronizer
	gate       *core.GateRelay
	registrar  *menu.Registrar
	raiseHand  core.RaiseHandTable

	banner        Banner
	names         NameSource
	namesRole     string
	displayNames  map[core.UID]string
	localUID      core.UID
	hostMeetingID string
	isHost        bool

	inbox   chan func()
	running chan struct{}
	done    chan struct{}
}

// New builds a session. Run must be called before anything is delivered.
func New(opts Options) *Session {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	s := &Session{
		log:           opts.Logger,
		clock:         opts.Clock,
		bus:           opts.Bus,
		classifier:    core.NewClassifier(),
		banner:        opts.Banner,
		names:         opts.Names,
		namesRole:     opts.NamesRole,
		displayNames:  make(map[core.UID]string),
		localUID:      opts.LocalUID,
		hostMeetingID: opts.HostMeetingID,
		isHost:        opts.IsHost,
		inbox:         make(chan func(), 64),
		running:       make(chan struct{}),
		done:          make(chan struct{}),
	}

	isHost := func() bool { return s.isHost }
	pub := busPublisher{bus: opts.Bus}
	s.pin = core.NewPinSynchronizer(opts.Logger, opts.PinMode, opts.UIDType, pub, opts.PinEffects, isHost, opts.Banned)
	s.gate = core.NewGateRelay(opts.Logger, pub, opts.Controls, isHost)
	s.registrar = menu.NewRegistrar(opts.Logger, opts.Surface, menu.Actions{
		Pin:   func(target core.UID) { s.Pin(target) },
		Unpin: func() { s.Unpin() },
		Ban:   s.banParticipant,
		Close: opts.CloseMenu,
	})

	return s
}

// Run subscribes to the event channels once, processes the inbox until ctx
// is done, then releases the subscriptions. After Run returns the session is
// torn down: further calls are dropped and Snapshot reports ErrNotRunning.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)
	unsubs := make([]func(), 0, 3)
	defer func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}()

	channels := map[string]func(payload string){
		core.ChannelPinForEveryone: func(payload string) {
			s.pin.HandleMessage(payload)
			s.refreshMenu()
		},
		core.ChannelDisableMic:   s.gate.HandleMic,
		core.ChannelDisableVideo: s.gate.HandleVideo,
	}
	for channel, apply := range channels {
		apply := apply
		unsub, err := s.bus.Subscribe(channel, func(_, payload string) {
			s.enqueue(func() { apply(payload) })
		})
		if err != nil {
			return err
		}
		unsubs = append(unsubs, unsub)
	}

	close(s.running)
	s.refreshMenu()
	s.fetchNames(ctx)

	for {
		select {
		case fn := <-s.inbox:
			fn()
		case <-ctx.Done():
			return nil
		}
	}
}

// UpdateRoster feeds a fresh roster snapshot, raise-hand table, and active
// set into the session. Buckets are recomputed wholesale and any pending pin
// is reconciled against the new active set.
func (s *Session) UpdateRoster(roster core.Roster, raiseHand core.RaiseHandTable, activeUIDs []core.UID) {
	stamped := make(core.RaiseHandTable, len(raiseHand))
	now := s.clock.Now()
	for uid, entry := range raiseHand {
		if entry.TS.IsZero() {
			entry.TS = now
		}
		stamped[uid] = entry
	}

	s.enqueue(func() {
		s.raiseHand = stamped
		s.classifier.Update(roster, stamped, activeUIDs)
		s.pin.SetActive(activeUIDs)
		s.refreshMenu()
	})
}

// Pin requests a pin-for-everyone of target.
func (s *Session) Pin(target core.UID) {
	s.enqueue(func() {
		s.pin.Pin(context.Background(), target)
		s.refreshMenu()
	})
}

// Unpin clears the pin-for-everyone value.
func (s *Session) Unpin() {
	s.enqueue(func() {
		s.pin.Unpin(context.Background())
		s.refreshMenu()
	})
}

// GateMic broadcasts a mic gate to attendees.
func (s *Session) GateMic(disabled bool) {
	s.enqueue(func() { s.gate.BroadcastMic(context.Background(), disabled) })
}

// GateVideo broadcasts a camera gate to attendees.
func (s *Session) GateVideo(disabled bool) {
	s.enqueue(func() { s.gate.BroadcastVideo(context.Background(), disabled) })
}

// RemoveParticipant strips uid from the derived buckets and active snapshot
// immediately, ahead of the next roster tick.
func (s *Session) RemoveParticipant(uid core.UID) {
	s.enqueue(func() {
		s.classifier.RemoveUID(uid)
		s.pin.SetActive(s.classifier.ActiveUIDs())
		s.refreshMenu()
	})
}

// Snapshot returns the current synchronized state, serialized through the
// scheduler so it is internally consistent.
func (s *Session) Snapshot(ctx context.Context) (State, error) {
	select {
	case <-s.running:
	default:
		return State{}, ErrNotRunning
	}

	reply := make(chan State, 1)
	s.enqueue(func() {
		buckets := s.classifier.Buckets()
		buckets.HostUIDs = append([]core.UID(nil), buckets.HostUIDs...)
		buckets.AudienceUIDs = append([]core.UID(nil), buckets.AudienceUIDs...)
		buckets.ARAdminUIDs = append([]core.UID(nil), buckets.ARAdminUIDs...)
		raiseHand := make(core.RaiseHandTable, len(s.raiseHand))
		for uid, entry := range s.raiseHand {
			raiseHand[uid] = entry
		}
		reply <- State{
			Buckets:    buckets,
			ActiveUIDs: append([]core.UID(nil), s.classifier.ActiveUIDs()...),
			RaiseHand:  raiseHand,
			PinnedUID:  s.pin.PinnedUID(),
			Pending:    s.pin.Pending(),
			Gates:      s.gate.Flags(),
			Eligible:   s.pin.Eligible(),
		}
	})

	select {
	case state := <-reply:
		return state, nil
	case <-s.done:
		return State{}, ErrNotRunning
	case <-ctx.Done():
		return State{}, ctx.Err()
	}
}

// DisplayName returns the resolved display name for uid, if the directory
// lookup has completed.
func (s *Session) DisplayName(ctx context.Context, uid core.UID) (string, bool) {
	reply := make(chan string, 1)
	s.enqueue(func() {
		name := s.displayNames[uid]
		reply <- name
	})
	select {
	case name := <-reply:
		return name, name != ""
	case <-s.done:
		return "", false
	case <-ctx.Done():
		return "", false
	}
}

// enqueue hands fn to the scheduler goroutine. Once the session is torn down
// the inbox is no longer drained, so calls are dropped instead of blocking.
func (s *Session) enqueue(fn func()) {
	select {
	case s.inbox <- fn:
	case <-s.done:
	}
}

func (s *Session) refreshMenu() {
	s.registrar.Refresh(s.pin.PinnedUID(), len(s.classifier.ActiveUIDs()))
}

func (s *Session) banParticipant(target core.UID, durationMinutes int, hostMeetingID string) {
	if hostMeetingID == "" {
		hostMeetingID = s.hostMeetingID
	}
	// Fire and forget; a failed ban call never rolls back local state.
	go func() {
		if err := s.banner.Ban(context.Background(), target, durationMinutes, hostMeetingID); err != nil {
			s.log.Error().Err(err).Int64("uid", int64(target)).Msg("ban call failed")
		}
	}()
	s.RemoveParticipant(target)
}

func (s *Session) fetchNames(ctx context.Context) {
	if s.names == nil || s.namesRole == "" {
		return
	}
	go func() {
		names, err := s.names.NamesByRole(ctx, s.namesRole)
		if err != nil {
			s.log.Warn().Err(err).Str("role", s.namesRole).Msg("directory lookup failed")
			return
		}
		s.enqueue(func() {
			for uid, name := range names {
				s.displayNames[uid] = name
			}
		})
	}()
}

// busPublisher adapts the bus to the core's narrower publisher contract.
type busPublisher struct {
	bus bus.Bus
}

func (p busPublisher) Publish(ctx context.Context, channel, payload string, persist bool) error {
	level := bus.Transient
	if persist {
		level = bus.PersistSession
	}
	return p.bus.Publish(ctx, channel, payload, level)
}
