package busserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mivora/stagesync/internal/auth"
	"github.com/mivora/stagesync/internal/proto"
)

// WSHandler upgrades HTTP connections and bridges them to hub clients.
type WSHandler struct {
	hub *Hub
	jwt *auth.JWTConfig
	log *zerolog.Logger
}

// NewWSHandler builds a WebSocket handler.
func NewWSHandler(hub *Hub, jwtCfg *auth.JWTConfig, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{hub: hub, jwt: jwtCfg, log: logger}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.ValidateToken(h.jwt, r.URL.Query().Get("token"))
	if err != nil {
		h.log.Debug().Err(err).Msg("rejecting ws connection: invalid token")
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	client := NewClient(uuid.NewString(), claims.SessionID, claims.UID, claims.IsHost)
	h.hub.Register(client)
	defer h.hub.Unregister(client)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *Client) error {
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}

		if inbound.Type != proto.InboundTypePublish {
			if err := wsjson.Write(ctx, conn, proto.Outbound{
				Type:  proto.OutboundTypeError,
				Error: &proto.Error{Code: "bad_request", Msg: "unknown inbound type"},
			}); err != nil {
				return err
			}
			continue
		}

		var data proto.PublishData
		if err := json.Unmarshal(inbound.Data, &data); err != nil || data.Channel == "" {
			h.log.Warn().Str("client_id", client.ID).Msg("dropping malformed publish")
			if err := wsjson.Write(ctx, conn, proto.Outbound{
				Type:  proto.OutboundTypeError,
				Error: &proto.Error{Code: "bad_payload", Msg: "malformed publish data"},
			}); err != nil {
				return err
			}
			continue
		}

		h.hub.Publish(client, data.Channel, data.Payload, data.Persist)
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *Client) error {
	for {
		select {
		case delivery, ok := <-client.Deliveries:
			if !ok {
				return nil
			}
			out := proto.Outbound{
				Type: proto.OutboundTypeEvent,
				Event: &proto.EventData{
					Channel: delivery.Channel,
					Sender:  delivery.Sender,
					Payload: delivery.Payload,
				},
			}
			if err := wsjson.Write(ctx, conn, out); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
