// Package busserver hosts the session event bus: named channels fanned out
// to every connected participant of a session, with session-persisted
// channels replayed to late joiners from the store.
package busserver

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/mivora/stagesync/internal/store"
)

// Delivery is one channel message handed to a connected client.
type Delivery struct {
	Channel string
	Sender  string
	Payload string
}

// Client is a connected bus participant as seen by the hub.
type Client struct {
	ID         string
	SessionID  string
	UID        int64
	IsHost     bool
	Deliveries chan Delivery
}

// NewClient constructs a client with an initialized delivery channel.
func NewClient(id, sessionID string, uid int64, isHost bool) *Client {
	return &Client{
		ID:         id,
		SessionID:  sessionID,
		UID:        uid,
		IsHost:     isHost,
		Deliveries: make(chan Delivery, 16),
	}
}

type cmdKind int

const (
	cmdRegister cmdKind = iota
	cmdUnregister
	cmdPublish
)

type command struct {
	kind    cmdKind
	client  *Client
	channel string
	payload string
	persist bool
}

// Hub serializes all bus mutations through a single Run goroutine, so
// deliveries within a session preserve publish order.
type Hub struct {
	log      *zerolog.Logger
	store    store.Store
	commands chan command
	sessions map[string]map[*Client]struct{}
}

// NewHub creates a hub. store may be nil, in which case persisted channels
// behave as transient.
func NewHub(logger *zerolog.Logger, st store.Store) *Hub {
	return &Hub{
		log:      logger,
		store:    st,
		commands: make(chan command, 64),
		sessions: make(map[string]map[*Client]struct{}),
	}
}

// Register adds a client to its session and replays persisted values.
func (h *Hub) Register(c *Client) {
	h.commands <- command{kind: cmdRegister, client: c}
}

// Unregister removes a client from its session.
func (h *Hub) Unregister(c *Client) {
	h.commands <- command{kind: cmdUnregister, client: c}
}

// Publish fans payload out to every client in the sender's session.
func (h *Hub) Publish(from *Client, channel, payload string, persist bool) {
	h.commands <- command{kind: cmdPublish, client: from, channel: channel, payload: payload, persist: persist}
}

// Run processes commands until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case cmd := <-h.commands:
			h.handle(ctx, cmd)
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) handle(ctx context.Context, cmd command) {
	switch cmd.kind {
	case cmdRegister:
		h.register(ctx, cmd.client)
	case cmdUnregister:
		h.unregister(cmd.client)
	case cmdPublish:
		h.publish(ctx, cmd)
	}
}

func (h *Hub) register(ctx context.Context, c *Client) {
	clients, ok := h.sessions[c.SessionID]
	if !ok {
		clients = make(map[*Client]struct{})
		h.sessions[c.SessionID] = clients
	}
	clients[c] = struct{}{}

	h.log.Debug().Str("client_id", c.ID).Str("session_id", c.SessionID).Msg("client registered")

	if h.store == nil {
		return
	}
	values, err := h.store.ChannelValues(ctx, c.SessionID)
	if err != nil {
		h.log.Error().Err(err).Str("session_id", c.SessionID).Msg("failed to load persisted channel values")
		return
	}
	for _, msg := range values {
		h.deliver(c, Delivery{Channel: msg.Channel, Sender: msg.Sender, Payload: msg.Payload})
	}
}

func (h *Hub) unregister(c *Client) {
	clients, ok := h.sessions[c.SessionID]
	if !ok {
		return
	}
	if _, ok := clients[c]; !ok {
		return
	}
	delete(clients, c)
	close(c.Deliveries)
	if len(clients) == 0 {
		delete(h.sessions, c.SessionID)
	}
	h.log.Debug().Str("client_id", c.ID).Str("session_id", c.SessionID).Msg("client unregistered")
}

func (h *Hub) publish(ctx context.Context, cmd command) {
	from := cmd.client
	if cmd.persist && h.store != nil {
		if err := h.store.SaveChannelValue(ctx, from.SessionID, cmd.channel, from.ID, cmd.payload); err != nil {
			// Fan-out still happens; only late-joiner replay is affected.
			h.log.Error().Err(err).Str("channel", cmd.channel).Msg("failed to persist channel value")
		}
	}

	delivery := Delivery{Channel: cmd.channel, Sender: from.ID, Payload: cmd.payload}
	for client := range h.sessions[from.SessionID] {
		h.deliver(client, delivery)
	}
}

func (h *Hub) deliver(c *Client, d Delivery) {
	select {
	case c.Deliveries <- d:
	default:
		// Drop if slow consumer.
		h.log.Warn().Str("client_id", c.ID).Str("channel", d.Channel).Msg("dropping delivery for slow client")
	}
}
