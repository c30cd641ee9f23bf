package pipeline

import (
	"context"
	"log/slog"
)

// AudioControl mutes and unmutes the room's local outgoing audio track. The
// track lives in the client; implementations relay the command over the
// conversation's control channel.
type AudioControl interface {
	SetMuted(ctx context.Context, muted bool) error
}

// AudioGate keeps the room's outgoing audio muted while the avatar speaks so
// its voice is not captured by the open microphone and re-transcribed.
//
// The gate follows the playback session signal, never individual snippets:
// the brief gaps between same-session sentences must not flicker the mute
// state.
type AudioGate struct {
	control AudioControl
	log     *slog.Logger
}

// NewAudioGate creates a gate driving the given control. Logger may be nil.
func NewAudioGate(control AudioControl, log *slog.Logger) *AudioGate {
	if log == nil {
		log = slog.Default()
	}
	return &AudioGate{control: control, log: log}
}

// Apply reacts to one playback signal: mute on session start, unmute on
// session end. Errors are logged; a missed toggle degrades echo suppression
// but never the conversation.
func (g *AudioGate) Apply(ctx context.Context, s PlaybackSignal) {
	muted := s == SessionStart
	if err := g.control.SetMuted(ctx, muted); err != nil {
		g.log.Warn("audio gate toggle failed", "muted", muted, "error", err)
	}
}
