package core

import (
	"context"

	"github.com/rs/zerolog"
)

// PinMode selects how pin messages referencing targets that are not yet in
// the active set are handled.
type PinMode int

const (
	// PinModeDeferred parks the message as a PendingPin until the target
	// shows up in the active set.
	PinModeDeferred PinMode = iota
	// PinModeStrict drops the message unless the target is already in the
	// banned-aware active list.
	PinModeStrict
)

// PendingPin is a deferred pin/unpin instruction awaiting its target's
// arrival in the active set. At most one is outstanding.
type PendingPin struct {
	Target UID
	Action string
}

// Publisher sends a payload on a named event channel. persist requests
// session-level persistence so late joiners receive the last value.
type Publisher interface {
	Publish(ctx context.Context, channel, payload string, persist bool) error
}

// PinEffects are the local side effects of pin state changes, implemented by
// the RTC layer.
type PinEffects interface {
	ApplyPin(uid UID)
	ApplyUnpin()
	SetLayout(name string)
}

// Layout names handed to PinEffects.SetLayout.
const (
	LayoutGrid   = "grid"
	LayoutPinned = "pinned"
)

// PinSynchronizer owns the canonical pinned-for-everyone value on one client.
// It is single-writer: every method must be called from the session's
// scheduler goroutine. Conflicts between concurrent privileged senders are
// resolved last-write-wins by arrival order on each client; the flag is
// eventually, not linearly, consistent.
type PinSynchronizer struct {
	log     *zerolog.Logger
	mode    PinMode
	uidType string

	pub    Publisher
	fx     PinEffects
	isHost func() bool
	banned func(UID) bool

	active  []UID
	pinned  *UID
	pending *PendingPin
}

// NewPinSynchronizer builds a synchronizer in the Idle state. banned may be
// nil; it is only consulted in strict mode.
func NewPinSynchronizer(logger *zerolog.Logger, mode PinMode, uidType string, pub Publisher, fx PinEffects, isHost func() bool, banned func(UID) bool) *PinSynchronizer {
	return &PinSynchronizer{
		log:     logger,
		mode:    mode,
		uidType: uidType,
		pub:     pub,
		fx:      fx,
		isHost:  isHost,
		banned:  banned,
	}
}

// PinnedUID returns the currently pinned uid, or nil when idle.
func (s *PinSynchronizer) PinnedUID() *UID {
	return s.pinned
}

// Pending returns the outstanding deferred instruction, if any.
func (s *PinSynchronizer) Pending() *PendingPin {
	return s.pending
}

// Eligible reports whether pin/unpin actions are currently allowed. Pinning
// is pointless when you are alone on stage.
func (s *PinSynchronizer) Eligible() bool {
	return len(s.active) > 1
}

// Pin pins uid for everyone: optimistic local state, broadcast, immediate
// local side effect. Silently ignored for non-hosts; the action surface
// should not have exposed the action, this is defense in depth.
func (s *PinSynchronizer) Pin(ctx context.Context, uid UID) {
	if !s.isHost() {
		s.log.Debug().Int64("uid", int64(uid)).Msg("pin ignored: caller is not a host")
		return
	}
	if !s.Eligible() {
		s.log.Debug().Int64("uid", int64(uid)).Msg("pin ignored: single active participant")
		return
	}

	target := uid
	s.pinned = &target
	s.pending = nil

	payload := EncodePinMessage(PinMessage{
		PinForAllUID: &target,
		UIDType:      s.uidType,
		Action:       ActionPin,
	})
	if err := s.pub.Publish(ctx, ChannelPinForEveryone, payload, true); err != nil {
		// Local state stays applied; the broadcast is not rolled back.
		s.log.Error().Err(err).Int64("uid", int64(uid)).Msg("failed to broadcast pin")
	}

	s.fx.ApplyPin(target)
	s.fx.SetLayout(LayoutPinned)
}

// Unpin clears the pinned-for-everyone value. Gated on the host role only,
// not on Eligible: clearing a stale pin must stay possible after the stage
// drains to a single participant. The action surface disables the entry in
// that state; this path remains open for programmatic cleanup.
func (s *PinSynchronizer) Unpin(ctx context.Context) {
	if !s.isHost() {
		s.log.Debug().Msg("unpin ignored: caller is not a host")
		return
	}

	s.pinned = nil
	s.pending = nil

	payload := EncodePinMessage(PinMessage{UIDType: s.uidType, Action: ActionUnpin})
	if err := s.pub.Publish(ctx, ChannelPinForEveryone, payload, true); err != nil {
		s.log.Error().Err(err).Msg("failed to broadcast unpin")
	}

	s.fx.ApplyUnpin()
	s.fx.SetLayout(LayoutGrid)
}

// HandleMessage applies a received PIN_FOR_EVERYONE payload. Malformed
// payloads are dropped and logged; nothing escapes to the caller. Re-delivery
// of an identical message is a no-op beyond the first application.
func (s *PinSynchronizer) HandleMessage(payload string) {
	msg, err := DecodePinMessage(payload)
	if err != nil {
		s.log.Warn().Err(err).Str("payload", payload).Msg("dropping malformed pin message")
		return
	}
	if msg.UIDType != s.uidType {
		s.log.Debug().Str("uid_type", msg.UIDType).Msg("ignoring pin message for other target class")
		return
	}

	if msg.Action == ActionUnpin {
		// An unpin always supersedes a pending pin.
		if s.pinned == nil && s.pending == nil {
			return
		}
		s.pinned = nil
		s.pending = nil
		s.fx.ApplyUnpin()
		s.fx.SetLayout(LayoutGrid)
		return
	}

	target := *msg.PinForAllUID
	if s.inActive(target) {
		s.applyPin(target)
		return
	}

	switch s.mode {
	case PinModeStrict:
		if s.banned != nil && s.banned(target) {
			s.log.Debug().Int64("uid", int64(target)).Msg("dropping pin for banned participant")
			return
		}
		s.log.Debug().Int64("uid", int64(target)).Msg("dropping pin for inactive participant")
	default:
		s.pending = &PendingPin{Target: target, Action: ActionPin}
	}
}

// SetActive replaces the active-set snapshot and reconciles any pending pin
// whose target has now arrived. Disappearance of the currently pinned target
// is deliberately not self-healed here: the privileged client that removed
// the participant broadcasts the authoritative unpin, otherwise clients would
// diverge independently.
func (s *PinSynchronizer) SetActive(uids []UID) {
	s.active = append(s.active[:0:0], uids...)

	if s.pending == nil {
		return
	}
	if !s.inActive(s.pending.Target) {
		return
	}

	pending := *s.pending
	s.pending = nil
	if pending.Action == ActionPin {
		s.applyPin(pending.Target)
	}
}

func (s *PinSynchronizer) applyPin(target UID) {
	if s.pinned != nil && *s.pinned == target {
		return
	}
	t := target
	s.pinned = &t
	s.fx.ApplyPin(t)
	s.fx.SetLayout(LayoutPinned)
}

func (s *PinSynchronizer) inActive(uid UID) bool {
	for _, u := range s.active {
		if u == uid {
			return true
		}
	}
	return false
}
