package pipeline

import (
	"context"
	"errors"
	"testing"
)

func TestAudioGate_FollowsSessionSignals(t *testing.T) {
	t.Parallel()

	audio := &fakeAudio{}
	g := NewAudioGate(audio, quietLogger())

	g.Apply(context.Background(), SessionStart)
	g.Apply(context.Background(), SessionEnd)

	got := audio.Calls()
	if len(got) != 2 || got[0] != true || got[1] != false {
		t.Errorf("mute calls = %v, want [true false]", got)
	}
}

func TestAudioGate_ToggleErrorIsSwallowed(t *testing.T) {
	t.Parallel()

	audio := &fakeAudio{err: errors.New("control channel gone")}
	g := NewAudioGate(audio, quietLogger())

	// Must not panic or propagate.
	g.Apply(context.Background(), SessionStart)
}
