package core

import (
	"context"
	"testing"
)

func TestAttendeeMicGate(t *testing.T) {
	controls := newFakeControls()
	g := NewGateRelay(nopLogger(), &fakePublisher{}, controls, hostNo)

	g.HandleMic("true")
	if controls.audioOn || g.Flags().AudioEnabled {
		t.Fatalf("expected audio disabled after true payload")
	}

	g.HandleMic("false")
	if !controls.audioOn || !g.Flags().AudioEnabled {
		t.Fatalf("expected audio re-enabled after false payload")
	}
}

func TestAttendeeVideoGate(t *testing.T) {
	controls := newFakeControls()
	g := NewGateRelay(nopLogger(), &fakePublisher{}, controls, hostNo)

	g.HandleVideo("true")
	if controls.videoOn {
		t.Fatalf("expected video disabled after true payload")
	}

	g.HandleVideo("false")
	if !controls.videoOn {
		t.Fatalf("expected video re-enabled after false payload")
	}
}

func TestHostsAreNeverGated(t *testing.T) {
	controls := newFakeControls()
	g := NewGateRelay(nopLogger(), &fakePublisher{}, controls, hostYes)

	g.HandleMic("true")
	g.HandleVideo("true")

	if !controls.audioOn || !controls.videoOn {
		t.Fatalf("expected host controls untouched")
	}
}

func TestMalformedGatePayloadDropped(t *testing.T) {
	controls := newFakeControls()
	g := NewGateRelay(nopLogger(), &fakePublisher{}, controls, hostNo)

	g.HandleMic(`{"nope"`)
	g.HandleVideo("banana")

	if !controls.audioOn || !controls.videoOn {
		t.Fatalf("expected malformed payloads to leave controls untouched")
	}
}

func TestGateBroadcastRequiresHost(t *testing.T) {
	pub := &fakePublisher{}
	g := NewGateRelay(nopLogger(), pub, newFakeControls(), hostNo)

	g.BroadcastMic(context.Background(), true)
	g.BroadcastVideo(context.Background(), true)

	if len(pub.msgs) != 0 {
		t.Fatalf("expected non-host broadcasts to be dropped, got %d", len(pub.msgs))
	}
}

func TestGateBroadcastPayloads(t *testing.T) {
	pub := &fakePublisher{}
	g := NewGateRelay(nopLogger(), pub, newFakeControls(), hostYes)

	g.BroadcastMic(context.Background(), true)
	g.BroadcastVideo(context.Background(), false)

	if len(pub.msgs) != 2 {
		t.Fatalf("expected two broadcasts, got %d", len(pub.msgs))
	}
	if pub.msgs[0].channel != ChannelDisableMic || pub.msgs[0].payload != "true" || pub.msgs[0].persist {
		t.Fatalf("unexpected mic broadcast: %+v", pub.msgs[0])
	}
	if pub.msgs[1].channel != ChannelDisableVideo || pub.msgs[1].payload != "false" {
		t.Fatalf("unexpected video broadcast: %+v", pub.msgs[1])
	}
}
