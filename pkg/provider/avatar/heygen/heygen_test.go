package heygen

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/sofie-labs/facedancer/pkg/provider/avatar"
)

// fakeHeyGen serves a minimal in-memory rendition of the streaming API.
type fakeHeyGen struct {
	mu       sync.Mutex
	requests []string
}

func (f *fakeHeyGen) handler() http.Handler {
	mux := http.NewServeMux()
	record := func(path string, fn http.HandlerFunc) {
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-Api-Key") == "" {
				http.Error(w, "missing api key", http.StatusUnauthorized)
				return
			}
			f.mu.Lock()
			f.requests = append(f.requests, path)
			f.mu.Unlock()
			fn(w, r)
		})
	}

	record("/v1/streaming.new", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"session_id":   "sess-1",
				"url":          "wss://media.example/sess-1",
				"access_token": "tok-1",
			},
		})
	})
	record("/v1/streaming.start", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{}}`))
	})
	record("/v1/streaming.task", func(w http.ResponseWriter, r *http.Request) {
		var req taskRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.TaskType != "repeat" || req.TaskMode != "sync" {
			http.Error(w, "unexpected task", http.StatusBadRequest)
			return
		}
		w.Write([]byte(`{"data":{"duration_ms":850,"task_id":"task-1"}}`))
	})
	record("/v1/streaming.interrupt", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{}}`))
	})
	record("/v1/streaming.stop", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{}}`))
	})
	record("/v1/streaming.list", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"sessions": []map[string]any{
					{"session_id": "sess-1", "status": "connected", "created_at": 1700000000},
					{"session_id": "sess-2", "status": "new", "created_at": 1700000100},
				},
			},
		})
	})
	return mux
}

func newTestProvider(t *testing.T) (*Provider, *fakeHeyGen) {
	t.Helper()
	fake := &fakeHeyGen{}
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	p, err := New("hg-key", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p, fake
}

func TestNew_RequiresAPIKey(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty api key")
	}
}

func TestCreateSession_EmitsStreamReady(t *testing.T) {
	t.Parallel()

	p, _ := newTestProvider(t)
	sess, err := p.CreateSession(context.Background(), avatar.Profile{AvatarID: "sofie"})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	defer sess.Close(context.Background())

	if sess.ID() != "sess-1" {
		t.Errorf("ID = %q, want sess-1", sess.ID())
	}

	ev := <-sess.Events()
	if ev.Kind != avatar.EventStreamReady {
		t.Fatalf("first event = %v, want stream_ready", ev.Kind)
	}
	if ev.MediaURL != "wss://media.example/sess-1" || ev.AccessToken != "tok-1" {
		t.Errorf("unexpected media handle: %+v", ev)
	}
}

func TestCreateSession_RequiresAvatarID(t *testing.T) {
	t.Parallel()

	p, _ := newTestProvider(t)
	if _, err := p.CreateSession(context.Background(), avatar.Profile{}); err == nil {
		t.Fatal("expected error for empty avatar id")
	}
}

func TestSpeak_EmitsTalkingEvents(t *testing.T) {
	t.Parallel()

	p, fake := newTestProvider(t)
	sess, err := p.CreateSession(context.Background(), avatar.Profile{AvatarID: "sofie"})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	defer sess.Close(context.Background())

	<-sess.Events() // stream ready

	if err := sess.Speak(context.Background(), "Hello there."); err != nil {
		t.Fatalf("Speak: %v", err)
	}

	if ev := <-sess.Events(); ev.Kind != avatar.EventStartTalking {
		t.Errorf("event = %v, want start_talking", ev.Kind)
	}
	if ev := <-sess.Events(); ev.Kind != avatar.EventStopTalking {
		t.Errorf("event = %v, want stop_talking", ev.Kind)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	found := false
	for _, p := range fake.requests {
		if p == "/v1/streaming.task" {
			found = true
		}
	}
	if !found {
		t.Error("streaming.task was never called")
	}
}

func TestListSessions(t *testing.T) {
	t.Parallel()

	p, _ := newTestProvider(t)
	infos, err := p.ListSessions(context.Background())
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("got %d sessions, want 2", len(infos))
	}
	if infos[0].ID != "sess-1" || infos[0].Status != "connected" {
		t.Errorf("unexpected first session: %+v", infos[0])
	}
}

func TestClose_Idempotent(t *testing.T) {
	t.Parallel()

	p, _ := newTestProvider(t)
	sess, err := p.CreateSession(context.Background(), avatar.Profile{AvatarID: "sofie"})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if err := sess.Close(context.Background()); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := sess.Close(context.Background()); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
