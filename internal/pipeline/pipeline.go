package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/sofie-labs/facedancer/internal/observe"
	"github.com/sofie-labs/facedancer/internal/session"
	"github.com/sofie-labs/facedancer/pkg/provider/avatar"
	"github.com/sofie-labs/facedancer/pkg/provider/llm"
	"github.com/sofie-labs/facedancer/pkg/provider/stt"
)

// ConversationConfig wires one conversation's collaborators. STT, LLM,
// Avatar, Store and Audio are required.
type ConversationConfig struct {
	// ID labels the conversation in logs. Empty generates a UUID.
	ID string

	// STT is an open speech-to-text session carrying the user's microphone.
	STT stt.SessionHandle

	// LLM generates the replies.
	LLM llm.Provider

	// Avatar is the live avatar session that voices the replies.
	Avatar avatar.Session

	// Store persists the conversation history.
	Store session.Store

	// Audio mutes and unmutes the room's outgoing audio.
	Audio AudioControl

	// Emotion is the optional shared emotion state.
	Emotion *EmotionState

	// Greeting, when non-empty, is spoken once the avatar's stream is ready,
	// before any user turn.
	Greeting string

	// Temperature and MaxTokens tune reply generation.
	Temperature float64
	MaxTokens   int

	// OnAvatarEvent, when non-nil, is invoked for every avatar lifecycle
	// event before the pipeline's own handling. Used by transports to relay
	// stream-ready media handles to the client.
	OnAvatarEvent func(avatar.Event)

	Logger  *slog.Logger
	Metrics *observe.Metrics
}

// Conversation is the per-user pipeline actor. It owns the typed channels
// between the transcriber, the completion streamer, the playback queue, the
// turn-taking coordinator and the audio gate, and runs them under one
// errgroup so a fatal failure tears down the whole conversation and nothing
// else.
type Conversation struct {
	id       string
	greeting string

	transcriber *Transcriber
	completion  *Completion
	playback    *Playback
	turntaking  *TurnTaking
	gate        *AudioGate
	avatar      avatar.Session
	emotion     *EmotionState
	onEvent     func(avatar.Event)

	log     *slog.Logger
	metrics *observe.Metrics
}

// NewConversation builds the pipeline for one conversation.
func NewConversation(cfg ConversationConfig) (*Conversation, error) {
	switch {
	case cfg.STT == nil:
		return nil, errors.New("pipeline: STT session is required")
	case cfg.LLM == nil:
		return nil, errors.New("pipeline: LLM provider is required")
	case cfg.Avatar == nil:
		return nil, errors.New("pipeline: avatar session is required")
	case cfg.Store == nil:
		return nil, errors.New("pipeline: session store is required")
	case cfg.Audio == nil:
		return nil, errors.New("pipeline: audio control is required")
	}

	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("conversation_id", cfg.ID)

	completionOpts := []CompletionOption{
		WithCompletionLogger(log),
		WithCompletionMetrics(cfg.Metrics),
	}
	if cfg.Temperature > 0 {
		completionOpts = append(completionOpts, WithTemperature(cfg.Temperature))
	}
	if cfg.MaxTokens > 0 {
		completionOpts = append(completionOpts, WithMaxTokens(cfg.MaxTokens))
	}

	completion := NewCompletion(cfg.LLM, cfg.Store, cfg.Emotion, completionOpts...)
	playback := NewPlayback(cfg.Avatar, WithPlaybackLogger(log), WithPlaybackMetrics(cfg.Metrics))

	return &Conversation{
		id:          cfg.ID,
		greeting:    cfg.Greeting,
		transcriber: NewTranscriber(cfg.STT, log),
		completion:  completion,
		playback:    playback,
		turntaking:  NewTurnTaking(playback, completion, log, cfg.Metrics),
		gate:        NewAudioGate(cfg.Audio, log),
		avatar:      cfg.Avatar,
		emotion:     cfg.Emotion,
		onEvent:     cfg.OnAvatarEvent,
		log:         log,
		metrics:     cfg.Metrics,
	}, nil
}

// ID returns the conversation identifier.
func (c *Conversation) ID() string { return c.id }

// SendAudio forwards one opaque microphone chunk into the pipeline.
func (c *Conversation) SendAudio(chunk []byte) error {
	return c.transcriber.ForwardAudio(chunk)
}

// SetEmotion records a new perceived emotion label for subsequent replies.
func (c *Conversation) SetEmotion(label string) {
	if c.emotion != nil {
		c.emotion.Set(label)
	}
}

// Run drives the conversation until ctx is cancelled, the transcript stream
// ends, or the avatar disconnects. It always returns after all component
// goroutines have stopped.
func (c *Conversation) Run(ctx context.Context) error {
	c.metrics.AddActiveConversations(ctx, 1)
	defer c.metrics.AddActiveConversations(context.WithoutCancel(ctx), -1)

	c.log.Info("conversation started")
	defer c.log.Info("conversation ended")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return c.playback.Run(ctx) })
	g.Go(func() error { return c.transcriber.Run(ctx) })
	g.Go(func() error { return c.watchSpeechStarts(ctx) })
	g.Go(func() error { return c.consumeUtterances(ctx) })
	g.Go(func() error { return c.driveAudioGate(ctx) })
	g.Go(func() error { return c.watchAvatar(ctx) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (c *Conversation) watchSpeechStarts(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-c.transcriber.SpeechStarts():
			if !ok {
				return nil
			}
			c.turntaking.OnSpeechStart(ctx)
		}
	}
}

func (c *Conversation) consumeUtterances(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case utt, ok := <-c.transcriber.Utterances():
			if !ok {
				return nil
			}
			c.metrics.RecordUtterance(ctx)
			c.handleUtterance(ctx, utt)
		}
	}
}

func (c *Conversation) handleUtterance(ctx context.Context, utt Utterance) {
	snippets, err := c.completion.Stream(ctx, utt)
	switch {
	case errors.Is(err, ErrCompletionInFlight):
		c.log.Info("utterance dropped: completion in flight", "text", utt.Text)
		c.metrics.RecordDroppedUtterance(ctx)
		return
	case err != nil:
		c.log.Error("completion failed", "error", err)
		return
	}

	for sn := range snippets {
		c.playback.Enqueue(sn.Text)
	}
}

func (c *Conversation) driveAudioGate(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s := <-c.playback.Signals():
			c.gate.Apply(ctx, s)
		}
	}
}

// watchAvatar reacts to avatar lifecycle events. Stream-ready triggers the
// configured greeting; a provider-side disconnect ends the conversation.
func (c *Conversation) watchAvatar(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-c.avatar.Events():
			if !ok {
				return nil
			}
			if c.onEvent != nil {
				c.onEvent(ev)
			}
			switch ev.Kind {
			case avatar.EventStreamReady:
				c.log.Info("avatar stream ready", "media_url", ev.MediaURL)
				if c.greeting != "" {
					c.playback.Enqueue(c.greeting)
				}
			case avatar.EventDisconnected:
				return fmt.Errorf("pipeline: avatar session %s disconnected", c.avatar.ID())
			default:
				c.log.Debug("avatar event", "kind", ev.Kind.String())
			}
		}
	}
}
