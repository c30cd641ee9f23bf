package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/sofie-labs/facedancer/pkg/provider/avatar"
	avatarmock "github.com/sofie-labs/facedancer/pkg/provider/avatar/mock"
	"github.com/sofie-labs/facedancer/pkg/provider/llm"
	llmmock "github.com/sofie-labs/facedancer/pkg/provider/llm/mock"
	"github.com/sofie-labs/facedancer/pkg/provider/stt"
	sttmock "github.com/sofie-labs/facedancer/pkg/provider/stt/mock"
)

type convFixture struct {
	conv   *Conversation
	stt    *sttmock.Session
	llm    *llmmock.Provider
	avatar *avatarmock.Session
	audio  *fakeAudio
}

func startConversation(t *testing.T, cfg func(*ConversationConfig)) *convFixture {
	t.Helper()

	f := &convFixture{
		stt:    sttmock.NewSession(),
		llm:    &llmmock.Provider{},
		avatar: avatarmock.NewSession("av-1"),
		audio:  &fakeAudio{},
	}

	c := ConversationConfig{
		ID:      "conv-test",
		STT:     f.stt,
		LLM:     f.llm,
		Avatar:  f.avatar,
		Store:   newTestStore(),
		Audio:   f.audio,
		Emotion: &EmotionState{},
		Logger:  quietLogger(),
	}
	if cfg != nil {
		cfg(&c)
	}

	conv, err := NewConversation(c)
	if err != nil {
		t.Fatalf("NewConversation: %v", err)
	}
	f.conv = conv

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = conv.Run(ctx) }()
	return f
}

func TestConversation_RequiresCollaborators(t *testing.T) {
	t.Parallel()

	if _, err := NewConversation(ConversationConfig{}); err == nil {
		t.Fatal("expected error for empty config")
	}
}

func TestConversation_SpeechToReplyLoop(t *testing.T) {
	t.Parallel()

	f := startConversation(t, func(c *ConversationConfig) {
		c.LLM = &llmmock.Provider{StreamChunks: []llm.Chunk{
			{Text: "Hello there. How can I help?"},
			{FinishReason: "stop"},
		}}
	})

	f.stt.Emit(stt.Transcript{Text: "hi sofie", IsFinal: true, SpeechFinal: true})

	waitFor(t, 2*time.Second, func() bool { return len(f.avatar.SpeakCalls()) == 2 }, "reply to be spoken")
	got := f.avatar.SpeakCalls()
	if got[0] != "Hello there." || got[1] != "How can I help?" {
		t.Errorf("spoken = %v", got)
	}

	// Audio gated for the session: muted once, then unmuted.
	waitFor(t, 2*time.Second, func() bool {
		calls := f.audio.Calls()
		return len(calls) == 2 && calls[0] && !calls[1]
	}, "audio gate to mute and unmute")
}

func TestConversation_GreetingOnStreamReady(t *testing.T) {
	t.Parallel()

	f := startConversation(t, func(c *ConversationConfig) {
		c.Greeting = "Hi, I am Sofie!"
	})

	f.avatar.Emit(avatar.Event{Kind: avatar.EventStreamReady, MediaURL: "wss://media.example/s"})

	waitFor(t, 2*time.Second, func() bool { return len(f.avatar.SpeakCalls()) == 1 }, "greeting to be spoken")
	if got := f.avatar.SpeakCalls()[0]; got != "Hi, I am Sofie!" {
		t.Errorf("greeting = %q", got)
	}
}

func TestConversation_BargeInStopsReply(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	f := startConversation(t, func(c *ConversationConfig) {
		c.LLM = &llmmock.Provider{
			StreamChunks: []llm.Chunk{
				{Text: "A very long reply. That keeps going. And going."},
				{FinishReason: "stop"},
			},
			Release: release,
		}
	})

	// First utterance opens a completion that is parked on release.
	f.stt.Emit(stt.Transcript{Text: "tell me everything", IsFinal: true, SpeechFinal: true})
	waitFor(t, 2*time.Second, func() bool { return len(f.llm.Calls()) == 1 }, "completion to open")

	// User speaks again: barge-in aborts the parked stream.
	f.stt.Emit(stt.Transcript{Text: "actually stop", IsFinal: false})
	close(release)

	time.Sleep(100 * time.Millisecond)
	if got := f.avatar.SpeakCalls(); len(got) != 0 {
		t.Errorf("spoken after barge-in = %v, want none", got)
	}
}

func TestConversation_DropsUtteranceWhileCompleting(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	f := startConversation(t, func(c *ConversationConfig) {
		c.LLM = &llmmock.Provider{
			StreamChunks: []llm.Chunk{{Text: "Reply one."}, {FinishReason: "stop"}},
			Release:      release,
		}
	})

	f.stt.Emit(stt.Transcript{Text: "first", IsFinal: true, SpeechFinal: true})
	waitFor(t, 2*time.Second, func() bool { return len(f.llm.Calls()) == 1 }, "first completion to open")

	close(release)
	waitFor(t, 2*time.Second, func() bool { return len(f.avatar.SpeakCalls()) == 1 }, "first reply spoken")

	// Only one completion was ever opened for the first utterance.
	if n := len(f.llm.Calls()); n != 1 {
		t.Errorf("stream calls = %d, want 1", n)
	}
}

func TestConversation_SetEmotion(t *testing.T) {
	t.Parallel()

	f := startConversation(t, func(c *ConversationConfig) {
		c.LLM = &llmmock.Provider{StreamChunks: []llm.Chunk{
			{Text: "Nice."},
			{FinishReason: "stop"},
		}}
	})

	f.conv.SetEmotion("CALM")
	f.stt.Emit(stt.Transcript{Text: "hello", IsFinal: true, SpeechFinal: true})

	waitFor(t, 2*time.Second, func() bool { return len(f.llm.Calls()) == 1 }, "completion to open")
	msgs := f.llm.Calls()[0].Req.Messages
	found := false
	for _, m := range msgs {
		if m.Role == llm.RoleSystem && m.Content != "You are Sofie." {
			found = true
		}
	}
	if !found {
		t.Error("emotion context line missing from request")
	}
}
