package app_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sofie-labs/facedancer/internal/app"
	"github.com/sofie-labs/facedancer/internal/config"
	"github.com/sofie-labs/facedancer/internal/session"
	"github.com/sofie-labs/facedancer/pkg/provider/avatar"
	avatarmock "github.com/sofie-labs/facedancer/pkg/provider/avatar/mock"
	"github.com/sofie-labs/facedancer/pkg/provider/llm"
	llmmock "github.com/sofie-labs/facedancer/pkg/provider/llm/mock"
	roommock "github.com/sofie-labs/facedancer/pkg/provider/room/mock"
	sttmock "github.com/sofie-labs/facedancer/pkg/provider/stt/mock"
)

type testEnv struct {
	app    *app.App
	srv    *httptest.Server
	llm    *llmmock.Provider
	stt    *sttmock.Provider
	sttSes *sttmock.Session
	avatar *avatarmock.Provider
	avSes  *avatarmock.Session
	room   *roommock.Provider
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, d time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func newTestEnv(t *testing.T, mutate func(*config.Config, *app.Providers)) *testEnv {
	t.Helper()

	env := &testEnv{
		llm:    &llmmock.Provider{StreamChunks: []llm.Chunk{{Text: "Hello there."}, {FinishReason: "stop"}}},
		sttSes: sttmock.NewSession(),
		avSes:  avatarmock.NewSession("av-1"),
		room:   &roommock.Provider{},
	}
	env.stt = &sttmock.Provider{SessionResult: env.sttSes}
	env.avatar = &avatarmock.Provider{SessionResult: env.avSes}

	cfg := &config.Config{
		Providers: config.ProvidersConfig{
			LLM: config.LLMConfig{Model: "gpt-4o-mini", Temperature: 0.7},
			STT: config.STTConfig{Language: "en", SampleRate: 16000},
		},
		UseCases: []config.UseCaseConfig{{
			Name:         "sofie",
			SystemPrompt: "You are Sofie.",
			Avatar:       config.AvatarProfileConfig{AvatarID: "a1"},
		}},
	}
	providers := &app.Providers{
		LLM:    env.llm,
		STT:    env.stt,
		Avatar: env.avatar,
		Room:   env.room,
	}
	if mutate != nil {
		mutate(cfg, providers)
	}

	a, err := app.New(context.Background(), cfg, providers,
		app.WithLogger(quietLogger()),
		app.WithStoreFactory(func(seed session.Seeder) (session.Store, error) {
			return session.NewMemoryStore(seed, session.WithMemoryLogger(quietLogger())), nil
		}),
	)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	env.app = a

	env.srv = httptest.NewServer(a.Handler())
	t.Cleanup(env.srv.Close)
	return env
}

func TestNew_RequiresProviders(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	if _, err := app.New(context.Background(), cfg, nil); err == nil {
		t.Error("expected error for nil providers")
	}
	if _, err := app.New(context.Background(), cfg, &app.Providers{}); err == nil {
		t.Error("expected error for empty providers")
	}
}

func TestHandler_Healthz(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	resp, err := http.Get(env.srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestHandler_Metrics(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	resp, err := http.Get(env.srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestAdmin_ListAvatarSessions(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, func(_ *config.Config, p *app.Providers) {
		p.Avatar = &avatarmock.Provider{ListResult: []avatar.SessionInfo{
			{ID: "sess-1", Status: "connected"},
			{ID: "sess-2", Status: "new"},
		}}
	})

	resp, err := http.Get(env.srv.URL + "/v1/avatar/sessions")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		Sessions []avatar.SessionInfo `json:"sessions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Sessions) != 2 || body.Sessions[0].ID != "sess-1" {
		t.Errorf("sessions = %+v", body.Sessions)
	}
}

func TestAdmin_CloseAvatarSession(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	req, _ := http.NewRequest(http.MethodDelete, env.srv.URL+"/v1/avatar/sessions/sess-9", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	if len(env.avatar.CloseCalls) != 1 || env.avatar.CloseCalls[0] != "sess-9" {
		t.Errorf("close calls = %v", env.avatar.CloseCalls)
	}
}

func TestAdmin_RoomToken(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	resp, err := http.Post(env.srv.URL+"/v1/rooms/demo/token?identity=alice", "", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		Identity string `json:"identity"`
		Token    string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Token != "mock-token" || body.Identity != "alice" {
		t.Errorf("body = %+v", body)
	}
	if len(env.room.EnsureCalls) != 1 || env.room.EnsureCalls[0] != "demo" {
		t.Errorf("ensure calls = %v", env.room.EnsureCalls)
	}
}

func TestAdmin_RoomTokenRequiresIdentity(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	resp, err := http.Post(env.srv.URL+"/v1/rooms/demo/token", "", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestAdmin_EndRoom(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	resp, err := http.Post(env.srv.URL+"/v1/rooms/RM123/end", "", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	if len(env.room.EndCalls) != 1 || env.room.EndCalls[0] != "RM123" {
		t.Errorf("end calls = %v", env.room.EndCalls)
	}
}

func TestAdmin_RoomEndpointsDisabledWithoutProvider(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, func(_ *config.Config, p *app.Providers) {
		p.Room = nil
	})

	resp, err := http.Get(env.srv.URL + "/v1/rooms")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestConversation_UnknownUseCase(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	resp, err := http.Get(env.srv.URL + "/v1/conversation?use_case=nope")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
