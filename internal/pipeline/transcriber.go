package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/sofie-labs/facedancer/pkg/provider/stt"
)

// Transcriber assembles finalized utterances from the raw transcript stream
// of one STT session.
//
// Audio flows through unmodified via [Transcriber.ForwardAudio]. Transcript
// events are folded per the utterance protocol: the first non-empty fragment
// of an interval emits a speech-start signal exactly once, fragments flagged
// final are buffered in order, and a speech-final fragment joins the buffer
// with single spaces into one Utterance. Empty fragments change nothing.
type Transcriber struct {
	handle stt.SessionHandle
	log    *slog.Logger

	utterances  chan Utterance
	speechStart chan SpeechStart

	// run-loop state, touched only by Run.
	fragments    []string
	speechActive bool
}

// NewTranscriber wraps an open STT session. The logger may be nil.
func NewTranscriber(handle stt.SessionHandle, log *slog.Logger) *Transcriber {
	if log == nil {
		log = slog.Default()
	}
	return &Transcriber{
		handle:      handle,
		log:         log,
		utterances:  make(chan Utterance, 8),
		speechStart: make(chan SpeechStart, 8),
	}
}

// Utterances returns the channel of finalized utterances. Closed when Run
// returns.
func (t *Transcriber) Utterances() <-chan Utterance { return t.utterances }

// SpeechStarts returns the channel of speech-start signals. Closed when Run
// returns.
func (t *Transcriber) SpeechStarts() <-chan SpeechStart { return t.speechStart }

// ForwardAudio passes one opaque audio chunk to the STT transport.
func (t *Transcriber) ForwardAudio(chunk []byte) error {
	return t.handle.SendAudio(chunk)
}

// Run consumes the session's transcript stream until it closes or ctx is
// cancelled. There is no automatic reconnect; when the transport dies the
// caller decides whether to start a fresh session.
func (t *Transcriber) Run(ctx context.Context) error {
	defer close(t.utterances)
	defer close(t.speechStart)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tr, ok := <-t.handle.Transcripts():
			if !ok {
				t.log.Info("transcript stream closed")
				return nil
			}
			t.consume(ctx, tr)
		}
	}
}

func (t *Transcriber) consume(ctx context.Context, tr stt.Transcript) {
	text := strings.TrimSpace(tr.Text)
	if text == "" {
		return
	}

	if !t.speechActive {
		t.speechActive = true
		select {
		case t.speechStart <- SpeechStart{At: time.Now()}:
		case <-ctx.Done():
			return
		}
	}

	if tr.IsFinal {
		t.fragments = append(t.fragments, text)
	}

	if tr.SpeechFinal {
		joined := strings.Join(t.fragments, " ")
		t.fragments = t.fragments[:0]
		t.speechActive = false

		if joined == "" {
			return
		}
		t.log.Debug("utterance finalized", "text", joined)
		select {
		case t.utterances <- Utterance{Text: joined, Timestamp: time.Now()}:
		case <-ctx.Done():
		}
	}
}
