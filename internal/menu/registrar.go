package menu

import (
	"github.com/rs/zerolog"

	"github.com/mivora/stagesync/internal/core"
)

// BanDurationMinutes is how long remove-from-room bans a participant.
const BanDurationMinutes = 1440

// Actions are the callbacks the registered items trigger. They are supplied
// by the session and must be safe to call from the menu's UI context.
type Actions struct {
	Pin   func(target core.UID)
	Unpin func()
	Ban   func(target core.UID, durationMinutes int, hostMeetingID string)
	Close func()
}

// Registrar recomputes the pin-for-everyone and remove-from-room entries
// whenever their inputs change.
type Registrar struct {
	log     *zerolog.Logger
	surface Surface
	actions Actions
}

// NewRegistrar builds a registrar against the given surface.
func NewRegistrar(logger *zerolog.Logger, surface Surface, actions Actions) *Registrar {
	return &Registrar{log: logger, surface: surface, actions: actions}
}

// Refresh re-registers both items from the current pin state and active set.
// Safe to call on every tick; the surface contract makes identical updates
// no-ops.
func (r *Registrar) Refresh(pinnedUID *core.UID, activeCount int) {
	alone := activeCount == 1

	pinLabel := "Pin for everyone"
	if pinnedUID != nil {
		pinLabel = "Unpin for everyone"
	}

	r.surface.UpdateItems(map[string]Item{
		KeyRemoveFromRoom: {
			Order: 1,
			OnAction: func(target core.UID, hostMeetingID string) {
				if target == 0 {
					return
				}
				r.actions.Ban(target, BanDurationMinutes, hostMeetingID)
			},
		},
		KeyPinForEveryone: {
			Order:      0,
			Disabled:   alone,
			Label:      pinLabel,
			Visibility: []string{VisibilityHostRemote, VisibilityHostSelf},
			OnAction: func(target core.UID, _ string) {
				if pinnedUID != nil && *pinnedUID == target {
					r.actions.Unpin()
				} else {
					r.actions.Pin(target)
				}
				if r.actions.Close != nil {
					r.actions.Close()
				}
			},
		},
	})
}
