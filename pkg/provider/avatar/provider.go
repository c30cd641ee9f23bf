// Package avatar defines the Provider interface for streaming talking-head
// avatar backends.
//
// An avatar provider wraps a hosted avatar service (e.g., HeyGen streaming
// avatars). A Session represents one live avatar: it vocalizes text on demand,
// can be interrupted mid-sentence, and publishes lifecycle events (stream
// ready, start/stop talking, disconnected) on a channel.
//
// Implementations must be safe for concurrent use, though callers should avoid
// overlapping Speak calls on the same session — the playback queue enforces at
// most one speak in flight.
package avatar

import (
	"context"
	"time"
)

// Profile describes the avatar persona and voice used for a new session.
type Profile struct {
	// AvatarID is the provider-specific avatar identifier.
	AvatarID string

	// Quality selects the video quality tier (e.g., "high", "medium", "low").
	Quality string

	// Language is the BCP-47 language tag for speech (e.g., "en").
	Language string

	// VoiceRate adjusts speaking rate. 1.0 means default; zero is treated as 1.0.
	VoiceRate float64

	// VoiceEmotion is the provider-specific voice emotion preset (e.g.,
	// "excited"). Empty means the provider default.
	VoiceEmotion string
}

// EventKind identifies an avatar session lifecycle event.
type EventKind int

const (
	// EventStreamReady fires once the avatar's media stream is available.
	// The event carries the media handle needed to attach the stream.
	EventStreamReady EventKind = iota

	// EventStartTalking fires when the avatar begins vocalizing a task.
	EventStartTalking

	// EventStopTalking fires when the avatar finishes (or is interrupted
	// while) vocalizing a task.
	EventStopTalking

	// EventDisconnected fires when the provider tears the session down.
	EventDisconnected
)

// String returns a log-friendly name for the event kind.
func (k EventKind) String() string {
	switch k {
	case EventStreamReady:
		return "stream_ready"
	case EventStartTalking:
		return "start_talking"
	case EventStopTalking:
		return "stop_talking"
	case EventDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// Event is a tagged avatar session lifecycle notification.
type Event struct {
	// Kind discriminates the event.
	Kind EventKind

	// MediaURL is set on EventStreamReady: the WebRTC/LiveKit endpoint the
	// client attaches to.
	MediaURL string

	// AccessToken is set on EventStreamReady when the media endpoint requires
	// a token.
	AccessToken string
}

// SessionInfo describes one live session as reported by the provider's
// session listing API.
type SessionInfo struct {
	// ID is the provider-assigned session identifier.
	ID string

	// Status is the provider's session state (e.g., "new", "connected").
	Status string

	// CreatedAt is when the session was created.
	CreatedAt time.Time
}

// Session is one live streaming avatar.
//
// Callers must call Close when the session is no longer needed and must drain
// Events to avoid blocking the provider's internal goroutines.
type Session interface {
	// ID returns the provider-assigned session identifier.
	ID() string

	// Speak vocalizes text verbatim. It blocks until the avatar has finished
	// talking, the task is interrupted, or ctx is cancelled. An interrupted
	// speak returns nil — the caller observes the shortened vocalization
	// through the session's stop-talking event, not as an error.
	Speak(ctx context.Context, text string) error

	// Interrupt aborts the avatar's current vocalization, if any.
	// Interrupting an idle session is a no-op.
	Interrupt(ctx context.Context) error

	// Events returns a read-only channel of lifecycle events. The channel is
	// closed when the session is closed.
	Events() <-chan Event

	// Close stops the avatar session and releases all resources. Calling
	// Close more than once is safe and returns nil.
	Close(ctx context.Context) error
}

// Provider is the abstraction over any streaming avatar backend.
type Provider interface {
	// CreateSession provisions a new streaming avatar with the given profile.
	// The returned Session emits EventStreamReady once its media stream can be
	// attached.
	CreateSession(ctx context.Context, profile Profile) (Session, error)

	// ListSessions returns all live sessions for this account. Used by the
	// admin surface to find and reap orphaned sessions.
	ListSessions(ctx context.Context) ([]SessionInfo, error)

	// CloseSession force-stops a session by id without a Session handle.
	// Used to reap sessions left over from crashed conversations.
	CloseSession(ctx context.Context, id string) error
}
