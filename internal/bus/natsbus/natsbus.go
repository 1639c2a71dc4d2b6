// Package natsbus is the event-channel adapter for NATS. Transient channels
// map to core subjects; session-persisted channels go through a JetStream
// stream capped at one message per subject, so subscribing replays exactly
// the last value.
package natsbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"github.com/mivora/stagesync/internal/bus"
)

const (
	streamName       = "STAGESYNC_PERSIST"
	transientPrefix  = "stagesync.tx"
	persistentPrefix = "stagesync.persist"

	maxReconnects = 10
	reconnectWait = 2 * time.Second
)

type envelope struct {
	Sender  string `json:"sender"`
	Payload string `json:"payload"`
}

// Bus is a NATS-backed event-channel connection scoped to one session.
type Bus struct {
	log       *zerolog.Logger
	nc        *nats.Conn
	js        jetstream.JetStream
	stream    jetstream.Stream
	sessionID string
	senderID  string
}

var _ bus.Bus = (*Bus)(nil)

// New connects to NATS and ensures the persistence stream exists.
func New(ctx context.Context, url, sessionID, senderID string, logger *zerolog.Logger) (*Bus, error) {
	opts := []nats.Option{
		nats.MaxReconnects(maxReconnects),
		nats.ReconnectWait(reconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:              streamName,
		Description:       "Last value per session-persisted channel",
		Subjects:          []string{persistentPrefix + ".>"},
		MaxMsgsPerSubject: 1,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}

	return &Bus{
		log:       logger,
		nc:        nc,
		js:        js,
		stream:    stream,
		sessionID: sessionID,
		senderID:  senderID,
	}, nil
}

// Publish sends payload on the named channel.
func (b *Bus) Publish(ctx context.Context, channel, payload string, level bus.Persistence) error {
	data, err := json.Marshal(envelope{Sender: b.senderID, Payload: payload})
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	if level == bus.PersistSession {
		if _, err := b.js.Publish(ctx, b.subject(persistentPrefix, channel), data); err != nil {
			return fmt.Errorf("publish persisted: %w", err)
		}
		return nil
	}

	if err := b.nc.Publish(b.subject(transientPrefix, channel), data); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Subscribe registers a handler for the named channel. Session-persisted
// traffic is consumed from the stream starting at the last stored value.
func (b *Bus) Subscribe(channel string, h bus.Handler) (func(), error) {
	deliver := func(data []byte) {
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			b.log.Warn().Err(err).Str("channel", channel).Msg("dropping malformed bus envelope")
			return
		}
		h(env.Sender, env.Payload)
	}

	sub, err := b.nc.Subscribe(b.subject(transientPrefix, channel), func(msg *nats.Msg) {
		deliver(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	consumer, err := b.stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		FilterSubject: b.subject(persistentPrefix, channel),
		DeliverPolicy: jetstream.DeliverLastPerSubjectPolicy,
		AckPolicy:     jetstream.AckNonePolicy,
	})
	if err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("create consumer: %w", err)
	}

	consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
		deliver(msg.Data())
	})
	if err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("consume: %w", err)
	}

	return func() {
		consumeCtx.Stop()
		if err := sub.Unsubscribe(); err != nil {
			b.log.Warn().Err(err).Str("channel", channel).Msg("unsubscribe failed")
		}
	}, nil
}

// Close drains and closes the connection.
func (b *Bus) Close() error {
	b.nc.Close()
	return nil
}

func (b *Bus) subject(prefix, channel string) string {
	return fmt.Sprintf("%s.%s.%s", prefix, b.sessionID, channel)
}
