// Package bus abstracts the session event channel: named messages with a
// string payload fanned out to every session participant. Delivery is
// at-least-once and FIFO per sender; messages from different senders may
// interleave arbitrarily.
package bus

import "context"

// Persistence controls whether a channel's last value is replayed to late
// joiners.
type Persistence int

const (
	// Transient messages are delivered only to current subscribers.
	Transient Persistence = iota
	// PersistSession keeps the last value for the session's lifetime and
	// replays it on subscribe.
	PersistSession
)

// Handler receives a delivered message. sender identifies the publishing
// participant's connection; handlers of one subscriber are never invoked
// concurrently.
type Handler func(sender, payload string)

// Bus is an event-channel backend.
type Bus interface {
	// Publish sends payload on the named channel.
	Publish(ctx context.Context, channel, payload string, level Persistence) error

	// Subscribe registers a handler for the named channel and returns an
	// unsubscribe func. Subscribing to a session-persisted channel replays
	// its last value.
	Subscribe(channel string, h Handler) (func(), error)

	// Close releases the backend connection. Pending deliveries may be
	// dropped.
	Close() error
}
