package core

import (
	"context"

	"github.com/rs/zerolog"
)

func nopLogger() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}

type published struct {
	channel string
	payload string
	persist bool
}

type fakePublisher struct {
	msgs []published
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, channel, payload string, persist bool) error {
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, published{channel: channel, payload: payload, persist: persist})
	return nil
}

type fakeEffects struct {
	pins   []UID
	unpins int
	layout string
}

func (f *fakeEffects) ApplyPin(uid UID)      { f.pins = append(f.pins, uid) }
func (f *fakeEffects) ApplyUnpin()           { f.unpins++ }
func (f *fakeEffects) SetLayout(name string) { f.layout = name }

type fakeControls struct {
	audioOn bool
	videoOn bool
}

func newFakeControls() *fakeControls {
	return &fakeControls{audioOn: true, videoOn: true}
}

func (f *fakeControls) EnableAudio()  { f.audioOn = true }
func (f *fakeControls) DisableAudio() { f.audioOn = false }
func (f *fakeControls) EnableVideo()  { f.videoOn = true }
func (f *fakeControls) DisableVideo() { f.videoOn = false }

func hostYes() bool { return true }
func hostNo() bool  { return false }
