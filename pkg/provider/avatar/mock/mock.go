// Package mock provides test doubles for the avatar.Provider and
// avatar.Session interfaces.
package mock

import (
	"context"
	"sync"

	"github.com/sofie-labs/facedancer/pkg/provider/avatar"
)

// Provider is a mock implementation of avatar.Provider.
type Provider struct {
	mu sync.Mutex

	// SessionResult is the session returned by CreateSession. If nil, a
	// fresh non-blocking Session is created per call.
	SessionResult *Session

	// CreateErr, if non-nil, is returned from CreateSession.
	CreateErr error

	// ListResult and ListErr control ListSessions.
	ListResult []avatar.SessionInfo
	ListErr    error

	// CreateCalls records the profile of every CreateSession invocation.
	CreateCalls []avatar.Profile

	// CloseCalls records every session id passed to CloseSession.
	CloseCalls []string
}

var _ avatar.Provider = (*Provider)(nil)

// CreateSession implements avatar.Provider.
func (p *Provider) CreateSession(_ context.Context, profile avatar.Profile) (avatar.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CreateCalls = append(p.CreateCalls, profile)
	if p.CreateErr != nil {
		return nil, p.CreateErr
	}
	if p.SessionResult != nil {
		return p.SessionResult, nil
	}
	return NewSession("mock-session"), nil
}

// ListSessions implements avatar.Provider.
func (p *Provider) ListSessions(context.Context) ([]avatar.SessionInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ListResult, p.ListErr
}

// CloseSession implements avatar.Provider.
func (p *Provider) CloseSession(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CloseCalls = append(p.CloseCalls, id)
	return nil
}

// Session is a mock avatar.Session. With Blocking set, Speak parks until the
// test calls FinishSpeak or Interrupt, which lets tests pin the avatar
// mid-sentence and exercise barge-in.
type Session struct {
	id string

	// Blocking makes Speak wait for FinishSpeak, Interrupt or ctx.
	Blocking bool

	// SpeakErrs maps a zero-based Speak call index to an injected error.
	SpeakErrs map[int]error

	mu             sync.Mutex
	speakCalls     []string
	interruptCalls int
	closed         bool

	release chan struct{}
	events  chan avatar.Event
	once    sync.Once
}

var _ avatar.Session = (*Session)(nil)

// NewSession creates a mock session with the given id.
func NewSession(id string) *Session {
	return &Session{
		id:      id,
		release: make(chan struct{}, 1),
		events:  make(chan avatar.Event, 16),
	}
}

// ID implements avatar.Session.
func (s *Session) ID() string { return s.id }

// Speak implements avatar.Session. It records the text and, when Blocking,
// parks until released.
func (s *Session) Speak(ctx context.Context, text string) error {
	s.mu.Lock()
	idx := len(s.speakCalls)
	s.speakCalls = append(s.speakCalls, text)
	err := s.SpeakErrs[idx]
	blocking := s.Blocking
	s.mu.Unlock()

	if err != nil {
		return err
	}
	if blocking {
		select {
		case <-s.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Interrupt implements avatar.Session. It records the call and releases any
// parked Speak.
func (s *Session) Interrupt(context.Context) error {
	s.mu.Lock()
	s.interruptCalls++
	s.mu.Unlock()
	s.signalRelease()
	return nil
}

// FinishSpeak releases one parked (or the next) blocking Speak, simulating
// the avatar finishing a vocalization.
func (s *Session) FinishSpeak() {
	s.signalRelease()
}

func (s *Session) signalRelease() {
	select {
	case s.release <- struct{}{}:
	default:
	}
}

// Emit pushes a lifecycle event to the session's event channel.
func (s *Session) Emit(e avatar.Event) {
	s.events <- e
}

// Events implements avatar.Session.
func (s *Session) Events() <-chan avatar.Event { return s.events }

// Close implements avatar.Session.
func (s *Session) Close(context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.once.Do(func() { close(s.events) })
	return nil
}

// SpeakCalls returns a snapshot of all texts spoken so far.
func (s *Session) SpeakCalls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.speakCalls))
	copy(out, s.speakCalls)
	return out
}

// InterruptCalls returns how many times Interrupt was called.
func (s *Session) InterruptCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interruptCalls
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
