package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/sofie-labs/facedancer/internal/config"
	"github.com/sofie-labs/facedancer/internal/pipeline"
	"github.com/sofie-labs/facedancer/internal/session"
	"github.com/sofie-labs/facedancer/pkg/provider/avatar"
	"github.com/sofie-labs/facedancer/pkg/provider/llm"
	"github.com/sofie-labs/facedancer/pkg/provider/stt"
)

// clientCommand is an inbound text frame on the conversation socket. Binary
// frames carry raw microphone audio and bypass this envelope entirely.
type clientCommand struct {
	// Type is "emotion" or "bye".
	Type string `json:"type"`

	// Label carries the perceived emotion label for "emotion" commands.
	Label string `json:"label,omitempty"`
}

// serverEvent is an outbound text frame on the conversation socket.
type serverEvent struct {
	// Type is "ready", "stream_ready", "mute", "unmute" or "error".
	Type string `json:"type"`

	ConversationID string `json:"conversation_id,omitempty"`
	RoomName       string `json:"room_name,omitempty"`
	RoomToken      string `json:"room_token,omitempty"`
	MediaURL       string `json:"media_url,omitempty"`
	AccessToken    string `json:"access_token,omitempty"`
	Error          string `json:"error,omitempty"`
}

// bridge serializes writes onto one conversation websocket. It doubles as
// the pipeline's audio control: mute state travels to the browser as a text
// frame, since the microphone track lives client-side.
type bridge struct {
	ws  *websocket.Conn
	log *slog.Logger

	writeMu sync.Mutex
}

var _ pipeline.AudioControl = (*bridge)(nil)

func (b *bridge) send(ctx context.Context, ev serverEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("app: marshal server event: %w", err)
	}
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	return b.ws.Write(ctx, websocket.MessageText, data)
}

// SetMuted implements pipeline.AudioControl.
func (b *bridge) SetMuted(ctx context.Context, muted bool) error {
	ev := serverEvent{Type: "unmute"}
	if muted {
		ev.Type = "mute"
	}
	return b.send(ctx, ev)
}

// handleConversation upgrades the request to a websocket and runs one full
// conversation over it: binary frames in are microphone audio, text frames
// in are commands, text frames out are lifecycle events and mute toggles.
func (a *App) handleConversation(w http.ResponseWriter, r *http.Request) {
	uc, ok := a.cfg.UseCase(r.URL.Query().Get("use_case"))
	if !ok {
		http.Error(w, "unknown use_case", http.StatusNotFound)
		return
	}
	identity := r.URL.Query().Get("identity")
	if identity == "" {
		identity = "user-" + uuid.NewString()
	}
	convID := uuid.NewString()
	log := a.log.With("conversation_id", convID, "use_case", uc.Name)

	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Warn("websocket accept failed", "error", err)
		return
	}
	b := &bridge{ws: ws, log: log}
	defer ws.Close(websocket.StatusInternalError, "conversation ended")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := a.runConversation(ctx, b, uc, convID, identity); err != nil {
		log.Error("conversation failed", "error", err)
		_ = b.send(context.WithoutCancel(ctx), serverEvent{Type: "error", Error: err.Error()})
		return
	}
	ws.Close(websocket.StatusNormalClosure, "bye")
}

// runConversation provisions the per-conversation collaborators and drives
// the pipeline until the client disconnects or a collaborator fails.
func (a *App) runConversation(ctx context.Context, b *bridge, uc config.UseCaseConfig, convID, identity string) error {
	avatarSess, err := a.providers.Avatar.CreateSession(ctx, avatarProfile(uc.Avatar))
	if err != nil {
		a.metrics.RecordProviderError(ctx, "avatar", "create_session")
		return fmt.Errorf("create avatar session: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := avatarSess.Close(closeCtx); err != nil {
			b.log.Warn("avatar session close failed", "error", err)
		}
	}()

	sttSess, err := a.providers.STT.StartStream(ctx, stt.StreamConfig{
		SampleRate: a.cfg.Providers.STT.SampleRate,
		Channels:   1,
		Language:   a.cfg.Providers.STT.Language,
	})
	if err != nil {
		a.metrics.RecordProviderError(ctx, "stt", "start_stream")
		return fmt.Errorf("start stt stream: %w", err)
	}
	defer sttSess.Close()

	store, err := a.newStore(func() session.History {
		return session.History{{Role: llm.RoleSystem, Content: uc.SystemPrompt}}
	})
	if err != nil {
		return fmt.Errorf("create session store: %w", err)
	}

	ready := serverEvent{Type: "ready", ConversationID: convID}
	if a.providers.Room != nil {
		rm, err := a.providers.Room.EnsureRoom(ctx, "conv-"+convID)
		if err != nil {
			a.metrics.RecordProviderError(ctx, "room", "ensure_room")
			return fmt.Errorf("ensure room: %w", err)
		}
		token, err := a.providers.Room.AccessToken(ctx, rm.Name, identity)
		if err != nil {
			a.metrics.RecordProviderError(ctx, "room", "access_token")
			return fmt.Errorf("room access token: %w", err)
		}
		ready.RoomName = rm.Name
		ready.RoomToken = token
	}
	if err := b.send(ctx, ready); err != nil {
		return fmt.Errorf("send ready event: %w", err)
	}

	conv, err := pipeline.NewConversation(pipeline.ConversationConfig{
		ID:          convID,
		STT:         sttSess,
		LLM:         a.providers.LLM,
		Avatar:      avatarSess,
		Store:       store,
		Audio:       b,
		Emotion:     &pipeline.EmotionState{},
		Greeting:    uc.Greeting,
		Temperature: a.cfg.Providers.LLM.Temperature,
		MaxTokens:   a.cfg.Providers.LLM.MaxTokens,
		OnAvatarEvent: func(ev avatar.Event) {
			if ev.Kind != avatar.EventStreamReady {
				return
			}
			err := b.send(ctx, serverEvent{
				Type:        "stream_ready",
				MediaURL:    ev.MediaURL,
				AccessToken: ev.AccessToken,
			})
			if err != nil {
				b.log.Warn("stream-ready relay failed", "error", err)
			}
		},
		Logger:  a.log,
		Metrics: a.metrics,
	})
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return conv.Run(ctx) })
	g.Go(func() error { return b.readLoop(ctx, conv) })
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// readLoop pumps client frames into the conversation until the socket closes
// or the client says goodbye.
func (b *bridge) readLoop(ctx context.Context, conv *pipeline.Conversation) error {
	for {
		typ, data, err := b.ws.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || ctx.Err() != nil {
				return context.Canceled
			}
			return fmt.Errorf("app: conversation socket read: %w", err)
		}

		switch typ {
		case websocket.MessageBinary:
			if err := conv.SendAudio(data); err != nil {
				b.log.Warn("audio forward failed", "error", err)
			}
		case websocket.MessageText:
			var cmd clientCommand
			if err := json.Unmarshal(data, &cmd); err != nil {
				b.log.Debug("malformed client command", "error", err)
				continue
			}
			switch cmd.Type {
			case "emotion":
				conv.SetEmotion(cmd.Label)
			case "bye":
				return context.Canceled
			default:
				b.log.Debug("unknown client command", "type", cmd.Type)
			}
		}
	}
}

// avatarProfile converts a config.AvatarProfileConfig to an avatar.Profile.
func avatarProfile(pc config.AvatarProfileConfig) avatar.Profile {
	return avatar.Profile{
		AvatarID:     pc.AvatarID,
		Quality:      string(pc.Quality),
		Language:     pc.Language,
		VoiceRate:    pc.VoiceRate,
		VoiceEmotion: pc.VoiceEmotion,
	}
}
