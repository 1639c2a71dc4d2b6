// Package wsbus is the event-channel client speaking the busserver WebSocket
// protocol.
package wsbus

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/mivora/stagesync/internal/bus"
	"github.com/mivora/stagesync/internal/proto"
)

type handlerEntry struct {
	id int
	h  bus.Handler
}

// Bus is a WebSocket-backed bus connection. The server replays persisted
// channel values right after the connection is accepted; the client caches
// the latest value per channel so handlers subscribed later still see it.
type Bus struct {
	log  *zerolog.Logger
	conn *websocket.Conn

	writeMu sync.Mutex

	mu       sync.Mutex
	nextID   int
	handlers map[string][]handlerEntry
	recent   map[string]proto.EventData
	closed   bool

	cancel context.CancelFunc
}

var _ bus.Bus = (*Bus)(nil)

// Dial connects to the bus server. url must carry the join token, e.g.
// ws://host/ws?token=...
func Dial(ctx context.Context, url string, logger *zerolog.Logger) (*Bus, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}

	readCtx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		log:      logger,
		conn:     conn,
		handlers: make(map[string][]handlerEntry),
		recent:   make(map[string]proto.EventData),
		cancel:   cancel,
	}
	go b.readLoop(readCtx)
	return b, nil
}

// Publish sends payload on the named channel.
func (b *Bus) Publish(ctx context.Context, channel, payload string, level bus.Persistence) error {
	data := proto.PublishData{
		Channel: channel,
		Payload: payload,
		Persist: level == bus.PersistSession,
	}
	raw, err := encodeInbound(proto.InboundTypePublish, data)
	if err != nil {
		return err
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	return wsjson.Write(ctx, b.conn, raw)
}

// Subscribe registers a handler for the named channel. If a value for the
// channel has already been delivered, it is replayed to the new handler.
func (b *Bus) Subscribe(channel string, h bus.Handler) (func(), error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, bus.ErrClosed
	}
	b.nextID++
	id := b.nextID
	b.handlers[channel] = append(b.handlers[channel], handlerEntry{id: id, h: h})
	replay, hasReplay := b.recent[channel]
	b.mu.Unlock()

	if hasReplay {
		h(replay.Sender, replay.Payload)
	}

	return func() { b.unsubscribe(channel, id) }, nil
}

// Close terminates the connection.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.cancel()
	return b.conn.Close(websocket.StatusNormalClosure, "closing")
}

func (b *Bus) readLoop(ctx context.Context) {
	for {
		var out proto.Outbound
		if err := wsjson.Read(ctx, b.conn, &out); err != nil {
			b.mu.Lock()
			closed := b.closed
			b.mu.Unlock()
			if !closed && ctx.Err() == nil {
				b.log.Warn().Err(err).Msg("bus read loop terminated")
			}
			return
		}

		switch out.Type {
		case proto.OutboundTypeEvent:
			if out.Event != nil {
				b.dispatch(*out.Event)
			}
		case proto.OutboundTypeError:
			if out.Error != nil {
				b.log.Warn().Str("code", out.Error.Code).Str("msg", out.Error.Msg).Msg("bus error")
			}
		}
	}
}

func (b *Bus) dispatch(event proto.EventData) {
	b.mu.Lock()
	b.recent[event.Channel] = event
	entries := append([]handlerEntry(nil), b.handlers[event.Channel]...)
	b.mu.Unlock()

	for _, entry := range entries {
		entry.h(event.Sender, event.Payload)
	}
}

func (b *Bus) unsubscribe(channel string, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entries := b.handlers[channel]
	for i, entry := range entries {
		if entry.id == id {
			b.handlers[channel] = append(entries[:i], entries[i+1:]...)
			return
		}
	}
}

func encodeInbound(typ string, data proto.PublishData) (proto.Inbound, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return proto.Inbound{}, err
	}
	return proto.Inbound{Type: typ, Data: raw}, nil
}
