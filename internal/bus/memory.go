package bus

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by operations on a closed broker.
var ErrClosed = errors.New("bus closed")

type subscription struct {
	id      int
	owner   string
	channel string
	handler Handler
}

type lastValue struct {
	sender  string
	payload string
}

// Broker is an in-process event-channel backend for one session. A single
// dispatcher goroutine delivers messages in publish order, which gives every
// subscriber a totally ordered view and therefore per-sender FIFO. Used by
// tests and single-process deployments.
type Broker struct {
	mu        sync.Mutex
	nextSubID int
	subs      map[string][]*subscription
	persisted map[string]lastValue
	queue     chan func()
	done      chan struct{}
	closed    bool
}

// NewBroker starts a broker and its dispatcher goroutine.
func NewBroker() *Broker {
	b := &Broker{
		subs:      make(map[string][]*subscription),
		persisted: make(map[string]lastValue),
		queue:     make(chan func(), 256),
		done:      make(chan struct{}),
	}
	go b.dispatch()
	return b
}

func (b *Broker) dispatch() {
	for {
		select {
		case fn := <-b.queue:
			fn()
		case <-b.done:
			return
		}
	}
}

// Close stops the dispatcher. Queued deliveries are dropped.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	close(b.done)
	return nil
}

// Client returns a Bus bound to the given sender id.
func (b *Broker) Client(senderID string) *Client {
	return &Client{broker: b, senderID: senderID}
}

func (b *Broker) publish(sender, channel, payload string, level Persistence) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.mu.Unlock()

	b.queue <- func() {
		if level == PersistSession {
			b.mu.Lock()
			b.persisted[channel] = lastValue{sender: sender, payload: payload}
			b.mu.Unlock()
		}
		for _, sub := range b.snapshot(channel) {
			sub.handler(sender, payload)
		}
	}
	return nil
}

func (b *Broker) snapshot(channel string) []*subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*subscription(nil), b.subs[channel]...)
}

func (b *Broker) subscribe(owner, channel string, h Handler) (func(), error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	b.nextSubID++
	sub := &subscription{id: b.nextSubID, owner: owner, channel: channel, handler: h}
	b.subs[channel] = append(b.subs[channel], sub)
	b.mu.Unlock()

	// Replay the persisted value through the dispatcher so it lands after
	// anything already queued.
	b.queue <- func() {
		b.mu.Lock()
		last, ok := b.persisted[channel]
		b.mu.Unlock()
		if ok {
			h(last.sender, last.payload)
		}
	}

	return func() { b.remove(channel, sub.id) }, nil
}

func (b *Broker) remove(channel string, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[channel]
	for i, sub := range subs {
		if sub.id == id {
			b.subs[channel] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Client is a sender-scoped view of a Broker.
type Client struct {
	broker   *Broker
	senderID string
}

var _ Bus = (*Client)(nil)

// Publish sends payload on the named channel.
func (c *Client) Publish(_ context.Context, channel, payload string, level Persistence) error {
	return c.broker.publish(c.senderID, channel, payload, level)
}

// Subscribe registers a handler and replays persisted values.
func (c *Client) Subscribe(channel string, h Handler) (func(), error) {
	return c.broker.subscribe(c.senderID, channel, h)
}

// Close is a no-op; the broker outlives its clients.
func (c *Client) Close() error {
	return nil
}
