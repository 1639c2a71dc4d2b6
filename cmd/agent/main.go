// Command agent is a headless bus participant: it joins a session over the
// WebSocket or NATS backend, mirrors pin and gate state locally, and logs a
// state snapshot on an interval. Useful for soak-testing a session and for
// observing what attendees see.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mivora/stagesync/internal/bus"
	"github.com/mivora/stagesync/internal/bus/natsbus"
	"github.com/mivora/stagesync/internal/bus/wsbus"
	"github.com/mivora/stagesync/internal/core"
	"github.com/mivora/stagesync/internal/log"
	"github.com/mivora/stagesync/internal/menu"
	"github.com/mivora/stagesync/internal/rtc"
	"github.com/mivora/stagesync/internal/session"
)

func main() {
	var (
		server       = flag.String("server", "http://localhost:8080", "bus server base URL")
		backend      = flag.String("backend", "ws", "event channel backend (ws, nats)")
		natsURL      = flag.String("nats-url", "nats://localhost:4222", "NATS URL for the nats backend")
		sessionID    = flag.String("session", "", "session id to join")
		uid          = flag.Int64("uid", 0, "participant uid")
		name         = flag.String("name", "", "participant display name")
		isHost       = flag.Bool("host", false, "join with host privileges")
		peers        = flag.String("peers", "", "comma-separated uids to treat as online and active")
		directoryURL = flag.String("directory-url", "", "user directory base URL for display-name lookup")
		pinMode      = flag.String("pin-mode", "deferred", "pin mode (deferred, strict)")
		interval     = flag.Duration("interval", 10*time.Second, "snapshot log interval")
		logLevel     = flag.String("log-level", "info", "log level (debug, info, warn, error)")
	)
	flag.Parse()

	logger := log.New(*logLevel)
	if *sessionID == "" || *uid == 0 {
		logger.Fatal().Msg("both -session and -uid are required")
	}

	mode := core.PinModeDeferred
	if *pinMode == "strict" {
		mode = core.PinModeStrict
	}

	token, err := mintToken(*server, *uid, *sessionID, *isHost)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to mint bus token")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var channel bus.Bus
	switch *backend {
	case "ws":
		channel, err = wsbus.Dial(ctx, wsURL(*server, token), log.Component(logger, "wsbus"))
	case "nats":
		channel, err = natsbus.New(ctx, *natsURL, *sessionID, uuid.NewString(), log.Component(logger, "natsbus"))
	default:
		logger.Fatal().Str("backend", *backend).Msg("unknown backend")
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect event channel")
	}
	defer channel.Close()

	engine := rtc.NewEngine(log.Component(logger, "rtc"))
	registry := menu.NewRegistry()
	banner := rtc.NewBanClient(fmt.Sprintf("%s/api/sessions/%s", *server, *sessionID), token)

	opts := session.Options{
		Logger:        log.Component(logger, "session"),
		Bus:           channel,
		Surface:       registry,
		PinEffects:    engine,
		Controls:      engine,
		Banner:        banner,
		LocalUID:      core.UID(*uid),
		HostMeetingID: *sessionID,
		IsHost:        *isHost,
		UIDType:       "rtc",
		PinMode:       mode,
	}
	if *directoryURL != "" {
		opts.Names = rtc.NewDirectory(*directoryURL)
		opts.NamesRole = "attendee"
	}

	sess := session.New(opts)
	go func() {
		if err := sess.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("session terminated")
			stop()
		}
	}()

	roster, active := staticRoster(core.UID(*uid), *peers)
	sess.UpdateRoster(roster, core.RaiseHandTable{}, active)

	logger.Info().Str("session", *sessionID).Int64("uid", *uid).Bool("host", *isHost).Str("name", *name).Msg("agent joined")

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			state, err := sess.Snapshot(ctx)
			if err != nil {
				continue
			}
			logSnapshot(logger, state, engine)
		case <-ctx.Done():
			logger.Info().Msg("agent stopped")
			return
		}
	}
}

func mintToken(server string, uid int64, sessionID string, isHost bool) (string, error) {
	body, err := json.Marshal(map[string]any{
		"uid":        uid,
		"session_id": sessionID,
		"is_host":    isHost,
	})
	if err != nil {
		return "", err
	}

	resp, err := http.Post(server+"/api/token", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.Token, nil
}

func wsURL(server, token string) string {
	u := strings.Replace(server, "http", "ws", 1)
	return fmt.Sprintf("%s/ws?token=%s", u, url.QueryEscape(token))
}

func staticRoster(self core.UID, peers string) (core.Roster, []core.UID) {
	roster := core.Roster{
		self: {UID: self, Kind: core.KindRTC, Online: true},
	}
	active := []core.UID{self}
	for _, field := range strings.Split(peers, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		id, err := strconv.ParseInt(field, 10, 64)
		if err != nil || core.UID(id) == self {
			continue
		}
		uid := core.UID(id)
		roster[uid] = core.RosterEntry{UID: uid, Kind: core.KindRTC, Online: true}
		active = append(active, uid)
	}
	return roster, active
}

func logSnapshot(logger *zerolog.Logger, state session.State, engine *rtc.Engine) {
	raised := 0
	for _, entry := range state.RaiseHand {
		if entry.Raised {
			raised++
		}
	}

	event := logger.Info().
		Str("layout", engine.Layout()).
		Bool("audio_enabled", state.Gates.AudioEnabled).
		Bool("video_enabled", state.Gates.VideoEnabled).
		Bool("pin_eligible", state.Eligible).
		Int("raised_hands", raised).
		Ints64("host_uids", uids(state.Buckets.HostUIDs)).
		Ints64("audience_uids", uids(state.Buckets.AudienceUIDs))
	if state.PinnedUID != nil {
		event = event.Int64("pinned_uid", int64(*state.PinnedUID))
	}
	if state.Pending != nil {
		event = event.Int64("pending_uid", int64(state.Pending.Target))
	}
	event.Msg("session state")
}

func uids(in []core.UID) []int64 {
	out := make([]int64, len(in))
	for i, uid := range in {
		out[i] = int64(uid)
	}
	return out
}
