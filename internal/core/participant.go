package core

import "time"

// UID identifies a participant within a session. It is opaque to this layer
// and stable for the lifetime of the participant's connection.
type UID int64

// Kind is the raw participant type reported by the roster snapshot.
type Kind string

const (
	KindRTC         Kind = "rtc"
	KindLive        Kind = "live"
	KindScreenShare Kind = "screenshare"
	// KindNone is the reserved placeholder type carried by AR admin entries.
	KindNone Kind = ""
)

// RaiseRole is the role requested or assigned through the raise-hand flow.
type RaiseRole int

const (
	RaiseRoleUnset RaiseRole = iota
	RaiseRoleHost
	RaiseRoleAudience
	RaiseRoleARAdmin
)

// RosterEntry is a participant's raw attributes as recomputed by the SDK on
// every membership change. This layer treats it as read-only input.
type RosterEntry struct {
	UID       UID
	Kind      Kind
	Online    bool
	ScreenUID UID
}

// Roster is the full snapshot keyed by uid, replaced wholesale on every
// roster event.
type Roster map[UID]RosterEntry

// RaiseHandEntry records a participant's raise-hand state.
type RaiseHandEntry struct {
	Role   RaiseRole
	Raised bool
	TS     time.Time
}

// RaiseHandTable maps uid to raise-hand state.
type RaiseHandTable map[UID]RaiseHandEntry

// GateFlags are the local participant's controllable capabilities. Both start
// enabled and are only forced off through the gate relay.
type GateFlags struct {
	AudioEnabled bool
	VideoEnabled bool
}
