// Package heygen provides an avatar provider backed by the HeyGen streaming
// avatar REST API. It implements the avatar.Provider interface.
package heygen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sofie-labs/facedancer/pkg/provider/avatar"
)

const (
	defaultBaseURL = "https://api.heygen.com"
	defaultQuality = "high"

	// eventBuf is the buffer depth of the session event channel. Sized so a
	// slow consumer cannot stall the speak path for a short burst of events.
	eventBuf = 16
)

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithBaseURL overrides the default HeyGen API base URL. Used in tests to
// point the provider at an httptest server.
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		p.baseURL = url
	}
}

// WithHTTPClient replaces the HTTP client used for all requests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.http = c
	}
}

// Provider implements avatar.Provider backed by HeyGen's streaming API.
type Provider struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

var _ avatar.Provider = (*Provider)(nil)

// New creates a new HeyGen Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("heygen: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ---- wire types ----

type newSessionRequest struct {
	AvatarID           string       `json:"avatar_id"`
	Quality            string       `json:"quality"`
	Voice              voiceSetting `json:"voice"`
	Language           string       `json:"language,omitempty"`
	DisableIdleTimeout bool         `json:"disable_idle_timeout"`
}

type voiceSetting struct {
	Rate    float64 `json:"rate,omitempty"`
	Emotion string  `json:"emotion,omitempty"`
}

type newSessionResponse struct {
	Data struct {
		SessionID   string `json:"session_id"`
		URL         string `json:"url"`
		AccessToken string `json:"access_token"`
	} `json:"data"`
}

type taskRequest struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
	TaskType  string `json:"task_type"`
	TaskMode  string `json:"task_mode"`
}

type taskResponse struct {
	Data struct {
		DurationMS float64 `json:"duration_ms"`
		TaskID     string  `json:"task_id"`
	} `json:"data"`
}

type sessionIDRequest struct {
	SessionID string `json:"session_id"`
}

type listSessionsResponse struct {
	Data struct {
		Sessions []struct {
			SessionID string `json:"session_id"`
			Status    string `json:"status"`
			CreatedAt int64  `json:"created_at"`
		} `json:"sessions"`
	} `json:"data"`
}

// ---- Provider methods ----

// CreateSession implements avatar.Provider. It provisions a streaming avatar
// via streaming.new, starts it via streaming.start, and emits
// EventStreamReady carrying the media endpoint.
func (p *Provider) CreateSession(ctx context.Context, profile avatar.Profile) (avatar.Session, error) {
	if profile.AvatarID == "" {
		return nil, errors.New("heygen: profile.AvatarID must not be empty")
	}
	quality := profile.Quality
	if quality == "" {
		quality = defaultQuality
	}

	var created newSessionResponse
	err := p.post(ctx, "/v1/streaming.new", newSessionRequest{
		AvatarID: profile.AvatarID,
		Quality:  quality,
		Voice: voiceSetting{
			Rate:    profile.VoiceRate,
			Emotion: profile.VoiceEmotion,
		},
		Language:           profile.Language,
		DisableIdleTimeout: true,
	}, &created)
	if err != nil {
		return nil, fmt.Errorf("heygen: create session: %w", err)
	}
	if created.Data.SessionID == "" {
		return nil, errors.New("heygen: create session: no session_id in response")
	}

	if err := p.post(ctx, "/v1/streaming.start", sessionIDRequest{SessionID: created.Data.SessionID}, nil); err != nil {
		// Best-effort cleanup of the half-created session.
		_ = p.CloseSession(ctx, created.Data.SessionID)
		return nil, fmt.Errorf("heygen: start session: %w", err)
	}

	s := &session{
		provider: p,
		id:       created.Data.SessionID,
		events:   make(chan avatar.Event, eventBuf),
	}
	s.emit(avatar.Event{
		Kind:        avatar.EventStreamReady,
		MediaURL:    created.Data.URL,
		AccessToken: created.Data.AccessToken,
	})
	return s, nil
}

// ListSessions implements avatar.Provider via streaming.list.
func (p *Provider) ListSessions(ctx context.Context) ([]avatar.SessionInfo, error) {
	var resp listSessionsResponse
	if err := p.get(ctx, "/v1/streaming.list", &resp); err != nil {
		return nil, fmt.Errorf("heygen: list sessions: %w", err)
	}

	infos := make([]avatar.SessionInfo, 0, len(resp.Data.Sessions))
	for _, s := range resp.Data.Sessions {
		infos = append(infos, avatar.SessionInfo{
			ID:        s.SessionID,
			Status:    s.Status,
			CreatedAt: time.Unix(s.CreatedAt, 0),
		})
	}
	return infos, nil
}

// CloseSession implements avatar.Provider via streaming.stop.
func (p *Provider) CloseSession(ctx context.Context, id string) error {
	if err := p.post(ctx, "/v1/streaming.stop", sessionIDRequest{SessionID: id}, nil); err != nil {
		return fmt.Errorf("heygen: close session %s: %w", id, err)
	}
	return nil
}

// ---- session ----

// session is a live HeyGen streaming avatar. It implements avatar.Session.
type session struct {
	provider *Provider
	id       string

	events chan avatar.Event
	once   sync.Once
	mu     sync.Mutex
	closed bool
}

var _ avatar.Session = (*session)(nil)

// ID implements avatar.Session.
func (s *session) ID() string { return s.id }

// Speak implements avatar.Session. The repeat task is submitted in sync mode,
// so the HTTP call returns once the avatar has finished vocalizing — or early
// when the task is interrupted, which is not an error.
func (s *session) Speak(ctx context.Context, text string) error {
	s.emit(avatar.Event{Kind: avatar.EventStartTalking})
	defer s.emit(avatar.Event{Kind: avatar.EventStopTalking})

	var resp taskResponse
	err := s.provider.post(ctx, "/v1/streaming.task", taskRequest{
		SessionID: s.id,
		Text:      text,
		TaskType:  "repeat",
		TaskMode:  "sync",
	}, &resp)
	if err != nil {
		return fmt.Errorf("heygen: speak: %w", err)
	}
	return nil
}

// Interrupt implements avatar.Session via streaming.interrupt.
func (s *session) Interrupt(ctx context.Context) error {
	if err := s.provider.post(ctx, "/v1/streaming.interrupt", sessionIDRequest{SessionID: s.id}, nil); err != nil {
		return fmt.Errorf("heygen: interrupt: %w", err)
	}
	return nil
}

// Events implements avatar.Session.
func (s *session) Events() <-chan avatar.Event { return s.events }

// Close implements avatar.Session. It stops the remote session and closes the
// event channel.
func (s *session) Close(ctx context.Context) error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		err = s.provider.CloseSession(ctx, s.id)
		close(s.events)
	})
	return err
}

// emit delivers an event without blocking; events are dropped once the buffer
// is full or the session is closed.
func (s *session) emit(e avatar.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- e:
	default:
	}
}

// ---- HTTP helpers ----

func (p *Provider) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return p.do(req, out)
}

func (p *Provider) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, nil)
	if err != nil {
		return err
	}
	return p.do(req, out)
}

func (p *Provider) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Api-Key", p.apiKey)

	resp, err := p.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, msg)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
