// Package rtc is the seam to the audio/video SDK: layout switching, local
// control toggles, pin application, join-token minting, and the room REST
// calls. Everything here is presentational or plumbing from the sync layer's
// point of view.
package rtc

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/mivora/stagesync/internal/core"
)

// Engine is a headless implementation of the SDK-facing side effects. The
// real UI shell swaps in its own; this one records state for tests and for
// the demo agent.
type Engine struct {
	log *zerolog.Logger

	mu      sync.Mutex
	layout  string
	pinned  *core.UID
	audioOn bool
	videoOn bool
}

var (
	_ core.PinEffects    = (*Engine)(nil)
	_ core.LocalControls = (*Engine)(nil)
)

// NewEngine builds an engine with grid layout and both controls enabled.
func NewEngine(logger *zerolog.Logger) *Engine {
	return &Engine{
		log:     logger,
		layout:  core.LayoutGrid,
		audioOn: true,
		videoOn: true,
	}
}

// ApplyPin marks uid as pinned locally.
func (e *Engine) ApplyPin(uid core.UID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	u := uid
	e.pinned = &u
	e.log.Debug().Int64("uid", int64(uid)).Msg("applied local pin")
}

// ApplyUnpin clears the local pin.
func (e *Engine) ApplyUnpin() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pinned = nil
	e.log.Debug().Msg("applied local unpin")
}

// SetLayout switches the local layout.
func (e *Engine) SetLayout(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.layout = name
}

// Layout returns the current layout name.
func (e *Engine) Layout() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.layout
}

// Pinned returns the locally applied pin.
func (e *Engine) Pinned() *core.UID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pinned
}

// EnableAudio re-enables the local mic control.
func (e *Engine) EnableAudio() { e.setAudio(true) }

// DisableAudio disables the local mic control.
func (e *Engine) DisableAudio() { e.setAudio(false) }

// EnableVideo re-enables the local camera control.
func (e *Engine) EnableVideo() { e.setVideo(true) }

// DisableVideo disables the local camera control.
func (e *Engine) DisableVideo() { e.setVideo(false) }

// AudioEnabled reports the mic control state.
func (e *Engine) AudioEnabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.audioOn
}

// VideoEnabled reports the camera control state.
func (e *Engine) VideoEnabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.videoOn
}

func (e *Engine) setAudio(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.audioOn = on
}

func (e *Engine) setVideo(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.videoOn = on
}
