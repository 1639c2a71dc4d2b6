package store

import (
	"context"
	"time"
)

// PersistedMessage is the last value published on a session-persisted
// channel.
type PersistedMessage struct {
	Channel   string
	Sender    string
	Payload   string
	UpdatedAt time.Time
}

// Store persists session-scoped bus state: last values of session-persisted
// channels and active bans.
type Store interface {
	// SaveChannelValue upserts the last value for a channel in a session.
	SaveChannelValue(ctx context.Context, sessionID, channel, sender, payload string) error

	// ChannelValues returns the persisted last values for a session, keyed
	// by channel.
	ChannelValues(ctx context.Context, sessionID string) (map[string]PersistedMessage, error)

	// SaveBan records that uid is banned from the session until the given
	// time.
	SaveBan(ctx context.Context, sessionID string, uid int64, until time.Time) error

	// BannedUIDs returns uids with an unexpired ban in the session.
	BannedUIDs(ctx context.Context, sessionID string, now time.Time) ([]int64, error)

	// Close releases the underlying database.
	Close() error
}
