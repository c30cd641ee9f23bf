package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sofie-labs/facedancer/internal/observe"
	"github.com/sofie-labs/facedancer/pkg/provider/avatar"
)

// PlaybackOption is a functional option for configuring the Playback queue.
type PlaybackOption func(*Playback)

// WithPlaybackLogger replaces the logger.
func WithPlaybackLogger(l *slog.Logger) PlaybackOption {
	return func(p *Playback) {
		if l != nil {
			p.log = l
		}
	}
}

// WithPlaybackMetrics wires metric instruments. A nil Metrics is valid and
// records nothing.
func WithPlaybackMetrics(m *observe.Metrics) PlaybackOption {
	return func(p *Playback) { p.metrics = m }
}

// Playback speaks reply sentences through the avatar, one at a time, in
// enqueue order.
//
// The queue exposes a session signal: SessionStart when it leaves the empty
// idle state, SessionEnd when it drains with nothing in flight or is flushed.
// A contiguous run of snippets produces exactly one start/end pair however
// the enqueue and speak timings interleave.
type Playback struct {
	session avatar.Session
	log     *slog.Logger
	metrics *observe.Metrics

	mu       sync.Mutex
	pending  []string
	speaking bool
	active   bool // inside a speech session

	wake    chan struct{}
	signals chan PlaybackSignal
}

// NewPlayback creates a playback queue speaking through the given avatar
// session.
func NewPlayback(session avatar.Session, opts ...PlaybackOption) *Playback {
	p := &Playback{
		session: session,
		log:     slog.Default(),
		wake:    make(chan struct{}, 1),
		signals: make(chan PlaybackSignal, 16),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Signals returns the session start/end signal channel.
func (p *Playback) Signals() <-chan PlaybackSignal { return p.signals }

// Busy reports whether a speech session is active: a snippet is being spoken
// or waiting its turn.
func (p *Playback) Busy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speaking || len(p.pending) > 0
}

// Enqueue appends one snippet text. The first enqueue of a session emits
// SessionStart; subsequent enqueues while the session stays non-empty do not.
func (p *Playback) Enqueue(text string) {
	if text == "" {
		return
	}
	p.mu.Lock()
	p.pending = append(p.pending, text)
	startSession := !p.active
	p.active = true
	p.mu.Unlock()

	if startSession {
		p.signal(SessionStart)
	}
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Flush drops all pending snippets, interrupts the avatar, and ends the
// session. Flushing an idle queue is a safe no-op that still emits
// SessionEnd.
func (p *Playback) Flush(ctx context.Context) {
	p.mu.Lock()
	dropped := len(p.pending)
	p.pending = nil
	p.active = false
	p.mu.Unlock()

	if err := p.session.Interrupt(ctx); err != nil {
		p.log.Warn("avatar interrupt failed", "error", err)
		p.metrics.RecordProviderError(ctx, "avatar", "interrupt")
	}
	if dropped > 0 {
		p.log.Info("flushed playback queue", "dropped", dropped)
	}
	p.signal(SessionEnd)
}

// Run is the single speak worker. It owns the speaking flag: exactly one
// speak call is outstanding at any time, and the queue drains strictly FIFO.
func (p *Playback) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.wake:
		}

		for {
			p.mu.Lock()
			if len(p.pending) == 0 {
				wasActive := p.active
				p.active = false
				p.mu.Unlock()
				if wasActive {
					p.signal(SessionEnd)
				}
				break
			}
			text := p.pending[0]
			p.pending = p.pending[1:]
			p.speaking = true
			p.mu.Unlock()

			start := time.Now()
			err := p.session.Speak(ctx, text)
			p.metrics.ObserveSpeak(ctx, time.Since(start))

			p.mu.Lock()
			p.speaking = false
			p.mu.Unlock()

			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				// Self-heal: log and move on to the next snippet.
				p.log.Error("avatar speak failed", "error", err)
				p.metrics.RecordProviderError(ctx, "avatar", "speak")
			}
		}
	}
}

func (p *Playback) signal(s PlaybackSignal) {
	select {
	case p.signals <- s:
	default:
		p.log.Warn("playback signal dropped", "signal", s.String())
	}
}
