package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sofie-labs/facedancer/internal/observe"
	"github.com/sofie-labs/facedancer/internal/session"
	"github.com/sofie-labs/facedancer/pkg/provider/llm"
)

// ErrCompletionInFlight is returned by Stream while a previous reply is still
// being generated. The new utterance is dropped, not queued.
var ErrCompletionInFlight = errors.New("pipeline: completion already in flight")

// CompletionOption is a functional option for configuring the Completion.
type CompletionOption func(*Completion)

// WithTemperature sets the sampling temperature for reply generation.
func WithTemperature(t float64) CompletionOption {
	return func(c *Completion) { c.temperature = t }
}

// WithMaxTokens caps the reply length in completion tokens.
func WithMaxTokens(n int) CompletionOption {
	return func(c *Completion) { c.maxTokens = n }
}

// WithCompletionLogger replaces the logger.
func WithCompletionLogger(l *slog.Logger) CompletionOption {
	return func(c *Completion) {
		if l != nil {
			c.log = l
		}
	}
}

// WithCompletionMetrics wires metric instruments. A nil Metrics is valid and
// records nothing.
func WithCompletionMetrics(m *observe.Metrics) CompletionOption {
	return func(c *Completion) { c.metrics = m }
}

// Completion turns one utterance into a stream of reply sentences.
//
// Stream persists the user entry before opening the token stream, then
// segments the running token buffer on sentence-terminal punctuation and
// persists each sentence as an assistant entry as soon as it is emitted. A
// crash mid-reply therefore loses at most the unterminated tail.
//
// At most one stream is in flight; Abort cancels it.
type Completion struct {
	provider llm.Provider
	store    session.Store
	emotion  *EmotionState
	log      *slog.Logger
	metrics  *observe.Metrics

	temperature float64
	maxTokens   int

	mu     sync.Mutex
	active bool
	cancel context.CancelFunc
}

// NewCompletion creates a completion streamer. emotion may be nil when no
// perception signal is wired.
func NewCompletion(provider llm.Provider, store session.Store, emotion *EmotionState, opts ...CompletionOption) *Completion {
	c := &Completion{
		provider:    provider,
		store:       store,
		emotion:     emotion,
		log:         slog.Default(),
		temperature: 0.7,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// InFlight reports whether a reply stream is currently active.
func (c *Completion) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Abort cancels the in-flight token read loop, if any. Sentences already
// persisted stay persisted; nothing further is emitted.
func (c *Completion) Abort() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active && c.cancel != nil {
		c.cancel()
	}
}

// Stream generates the reply to utt. The returned channel emits one Snippet
// per complete sentence and is closed at end-of-turn. A second call while a
// stream is active fails with ErrCompletionInFlight.
func (c *Completion) Stream(ctx context.Context, utt Utterance) (<-chan Snippet, error) {
	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return nil, ErrCompletionInFlight
	}
	ctx, cancel := context.WithCancel(ctx)
	c.active = true
	c.cancel = cancel
	c.mu.Unlock()

	release := func() {
		cancel()
		c.mu.Lock()
		c.active = false
		c.cancel = nil
		c.mu.Unlock()
	}

	sessionID, err := c.store.GetOrCreate(ctx)
	if err != nil {
		release()
		return nil, fmt.Errorf("pipeline: resolve session: %w", err)
	}

	history, err := c.store.Load(ctx, sessionID)
	if err != nil {
		release()
		return nil, fmt.Errorf("pipeline: load history: %w", err)
	}

	// Durability point: the user's words are persisted before the model is
	// even asked. Failures degrade to an in-memory turn.
	userEntry := session.Entry{Role: llm.RoleUser, Content: utt.Text}
	if err := c.store.Append(ctx, sessionID, userEntry); err != nil {
		c.log.Warn("persist user entry failed", "session_id", sessionID, "error", err)
	}

	req := c.buildRequest(history, utt)
	chunks, err := c.provider.StreamCompletion(ctx, req)
	if err != nil {
		c.metrics.RecordProviderError(ctx, "llm", "stream")
		release()
		return nil, fmt.Errorf("pipeline: open completion stream: %w", err)
	}

	out := make(chan Snippet, 8)
	go func() {
		defer release()
		defer close(out)
		c.forward(ctx, sessionID, utt.Timestamp, chunks, out)
	}()
	return out, nil
}

// buildRequest assembles the LLM request: persisted history, a transient
// emotion line when a label was observed, then the utterance itself. The
// emotion line is per-request context and is never written to history.
func (c *Completion) buildRequest(history session.History, utt Utterance) llm.CompletionRequest {
	msgs := history.Messages()
	if c.emotion != nil {
		if label := c.emotion.Current(); label != "" {
			msgs = append(msgs, llm.Message{
				Role:    llm.RoleSystem,
				Content: "The user currently appears to be feeling " + label + ". Take this into account.",
			})
		}
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: utt.Text})

	return llm.CompletionRequest{
		Messages:    msgs,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
}

// forward reads token chunks, emits complete sentences eagerly, and flushes
// any unterminated remainder when the stream ends.
func (c *Completion) forward(ctx context.Context, sessionID string, uttAt time.Time, chunks <-chan llm.Chunk, out chan<- Snippet) {
	start := time.Now()
	first := true
	var buf strings.Builder

	emit := func(text string) bool {
		text = strings.TrimSpace(text)
		if text == "" {
			return true
		}
		select {
		case out <- Snippet{Text: text}:
		case <-ctx.Done():
			return false
		}
		if first {
			first = false
			c.metrics.ObserveFirstSnippet(ctx, time.Since(uttAt))
		}
		c.metrics.RecordSnippet(ctx)
		c.persistSnippet(sessionID, text)
		return true
	}

	defer c.metrics.ObserveCompletion(context.WithoutCancel(ctx), time.Since(start))

	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-chunks:
			if !ok {
				if buf.Len() > 0 {
					emit(buf.String())
				}
				return
			}

			if chunk.FinishReason == "error" {
				c.log.Error("completion stream failed mid-reply", "session_id", sessionID)
				c.metrics.RecordProviderError(ctx, "llm", "stream")
			}
			if chunk.Text != "" {
				buf.WriteString(chunk.Text)
			}

			for {
				idx := firstSentenceBoundary(buf.String())
				if idx < 0 {
					break
				}
				sentence := buf.String()[:idx+1]
				rest := buf.String()[idx+1:]
				buf.Reset()
				buf.WriteString(strings.TrimLeft(rest, " \t\n\r"))
				if !emit(sentence) {
					return
				}
			}

			if chunk.FinishReason != "" {
				if buf.Len() > 0 {
					emit(buf.String())
				}
				return
			}
		}
	}
}

// persistSnippet appends one assistant sentence to history. Failures are
// logged and the stream continues; a rotated session means the reply was
// superseded by a barge-in and the entry is intentionally dropped.
func (c *Completion) persistSnippet(sessionID, text string) {
	// Independent of the stream context so cancellation cannot tear a write
	// in half; persistence must complete or fail on its own.
	err := c.store.Append(context.Background(), sessionID, session.Entry{
		Role:    llm.RoleAssistant,
		Content: text,
	})
	switch {
	case errors.Is(err, session.ErrSessionRotated):
		c.log.Debug("dropped assistant entry for rotated session", "session_id", sessionID)
	case err != nil:
		c.log.Warn("persist assistant entry failed", "session_id", sessionID, "error", err)
	}
}

// firstSentenceBoundary returns the index of the first '.', '!', or '?'
// character that is immediately followed by a whitespace character. Returns
// -1 if no such boundary exists in s.
func firstSentenceBoundary(s string) int {
	for i := 0; i < len(s)-1; i++ {
		switch s[i] {
		case '.', '!', '?':
			switch s[i+1] {
			case ' ', '\n', '\r', '\t':
				return i
			}
		}
	}
	return -1
}
