package core

import (
	"context"

	"github.com/rs/zerolog"
)

// LocalControls toggle the local participant's audio/video capabilities,
// implemented by the RTC layer.
type LocalControls interface {
	EnableAudio()
	DisableAudio()
	EnableVideo()
	DisableVideo()
}

// GateRelay applies host-issued mic/camera gates to the local participant and
// broadcasts them on behalf of a host. Hosts are never gated by this
// mechanism.
type GateRelay struct {
	log      *zerolog.Logger
	pub      Publisher
	controls LocalControls
	isHost   func() bool

	flags GateFlags
}

// NewGateRelay builds a relay with both controls enabled.
func NewGateRelay(logger *zerolog.Logger, pub Publisher, controls LocalControls, isHost func() bool) *GateRelay {
	return &GateRelay{
		log:      logger,
		pub:      pub,
		controls: controls,
		isHost:   isHost,
		flags:    GateFlags{AudioEnabled: true, VideoEnabled: true},
	}
}

// Flags returns the current gate state.
func (g *GateRelay) Flags() GateFlags {
	return g.flags
}

// HandleMic applies a DISABLE_ATTENDEE_MIC payload.
func (g *GateRelay) HandleMic(payload string) {
	if g.isHost() {
		return
	}
	disabled, err := DecodeGatePayload(payload)
	if err != nil {
		g.log.Warn().Err(err).Msg("dropping malformed mic gate payload")
		return
	}
	g.flags.AudioEnabled = !disabled
	if disabled {
		g.controls.DisableAudio()
	} else {
		g.controls.EnableAudio()
	}
}

// HandleVideo applies a DISABLE_ATTENDEE_VIDEO payload.
func (g *GateRelay) HandleVideo(payload string) {
	if g.isHost() {
		return
	}
	disabled, err := DecodeGatePayload(payload)
	if err != nil {
		g.log.Warn().Err(err).Msg("dropping malformed video gate payload")
		return
	}
	g.flags.VideoEnabled = !disabled
	if disabled {
		g.controls.DisableVideo()
	} else {
		g.controls.EnableVideo()
	}
}

// BroadcastMic sends a mic gate to attendees. No-op for non-hosts.
func (g *GateRelay) BroadcastMic(ctx context.Context, disabled bool) {
	if !g.isHost() {
		g.log.Debug().Msg("mic gate ignored: caller is not a host")
		return
	}
	if err := g.pub.Publish(ctx, ChannelDisableMic, EncodeGatePayload(disabled), false); err != nil {
		g.log.Error().Err(err).Msg("failed to broadcast mic gate")
	}
}

// BroadcastVideo sends a camera gate to attendees. No-op for non-hosts.
func (g *GateRelay) BroadcastVideo(ctx context.Context, disabled bool) {
	if !g.isHost() {
		g.log.Debug().Msg("video gate ignored: caller is not a host")
		return
	}
	if err := g.pub.Publish(ctx, ChannelDisableVideo, EncodeGatePayload(disabled), false); err != nil {
		g.log.Error().Err(err).Msg("failed to broadcast video gate")
	}
}
