package pipeline

import (
	"context"
	"log/slog"

	"github.com/sofie-labs/facedancer/internal/observe"
)

// TurnTaking decides what user speech means for an ongoing reply.
//
// A speech-start while the avatar is replying (playback session active or a
// completion still streaming) is a barge-in: the completion is aborted and
// the playback queue flushed. Sentences already persisted stay in history;
// nothing further is voiced. A speech-start during silence does nothing, so
// false positives from noise cannot interrupt anything.
type TurnTaking struct {
	playback   *Playback
	completion *Completion
	log        *slog.Logger
	metrics    *observe.Metrics
}

// NewTurnTaking creates the coordinator. Logger and metrics may be nil.
func NewTurnTaking(playback *Playback, completion *Completion, log *slog.Logger, metrics *observe.Metrics) *TurnTaking {
	if log == nil {
		log = slog.Default()
	}
	return &TurnTaking{
		playback:   playback,
		completion: completion,
		log:        log,
		metrics:    metrics,
	}
}

// OnSpeechStart handles one speech-start signal. Safe to call repeatedly; a
// second barge-in while the first is still flushing finds an empty queue and
// an idle completion and degenerates to a no-op.
func (t *TurnTaking) OnSpeechStart(ctx context.Context) {
	if !t.playback.Busy() && !t.completion.InFlight() {
		return
	}

	t.log.Info("barge-in: user spoke over active reply")
	t.metrics.RecordBargeIn(ctx)

	// Abort first so no new snippets land behind the flush.
	t.completion.Abort()
	t.playback.Flush(ctx)
}
