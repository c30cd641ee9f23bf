// Package pipeline implements the real-time speech-to-reply loop: a finalized
// user utterance drives a streaming LLM completion, the reply is segmented
// into sentences and spoken by the avatar, and the room's outgoing audio is
// gated while the avatar talks. A user speaking over an active reply triggers
// a barge-in that flushes playback and aborts the completion.
//
// Components communicate over typed channels owned by one [Conversation];
// there is no shared event bus and no global state.
package pipeline

import "time"

// Utterance is one finalized spoken turn by the user, reconstructed from the
// transcript fragments of a single continuous speech interval.
type Utterance struct {
	// Text is the joined final transcript.
	Text string

	// Timestamp is when the utterance was finalized.
	Timestamp time.Time
}

// Snippet is one sentence-sized fragment of the assistant's reply, the unit
// of speech playback. Produced by the completion streamer, consumed by the
// playback queue.
type Snippet struct {
	Text string
}

// SpeechStart signals that the user has begun a new utterance. Emitted
// exactly once per utterance, on the first non-empty transcript fragment.
type SpeechStart struct {
	At time.Time
}

// PlaybackSignal marks the boundaries of a speech session: the contiguous
// interval during which the playback queue is non-idle.
type PlaybackSignal int

const (
	// SessionStart fires when the queue transitions from empty and idle to
	// holding or speaking a snippet.
	SessionStart PlaybackSignal = iota

	// SessionEnd fires when the queue drains with nothing in flight, or when
	// it is flushed.
	SessionEnd
)

// String returns a log-friendly name for the signal.
func (s PlaybackSignal) String() string {
	switch s {
	case SessionStart:
		return "session_start"
	case SessionEnd:
		return "session_end"
	}
	return "unknown"
}
