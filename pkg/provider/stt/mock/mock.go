// Package mock provides test doubles for the stt.Provider and
// stt.SessionHandle interfaces.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/sofie-labs/facedancer/pkg/provider/stt"
)

// Provider is a mock implementation of stt.Provider. StartStream returns
// SessionResult (or SessionErr) and records each call's config.
type Provider struct {
	mu sync.Mutex

	// SessionResult is the handle returned by StartStream.
	SessionResult *Session

	// SessionErr, if non-nil, is returned instead of SessionResult.
	SessionErr error

	// StartCalls records the StreamConfig of every StartStream invocation.
	StartCalls []stt.StreamConfig
}

var _ stt.Provider = (*Provider)(nil)

// StartStream implements stt.Provider.
func (p *Provider) StartStream(_ context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartCalls = append(p.StartCalls, cfg)
	if p.SessionErr != nil {
		return nil, p.SessionErr
	}
	return p.SessionResult, nil
}

// Session is a mock stt.SessionHandle. Tests push transcript events with
// Emit and inspect forwarded audio via SentAudio.
type Session struct {
	mu     sync.Mutex
	sent   [][]byte
	closed bool

	// SendErr, if non-nil, is returned from SendAudio.
	SendErr error

	out  chan stt.Transcript
	once sync.Once
}

var _ stt.SessionHandle = (*Session)(nil)

// NewSession creates a Session with a buffered transcript channel.
func NewSession() *Session {
	return &Session{out: make(chan stt.Transcript, 64)}
}

// Emit pushes a transcript event to the session's output channel.
func (s *Session) Emit(t stt.Transcript) {
	s.out <- t
}

// SendAudio implements stt.SessionHandle.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("mock stt: session is closed")
	}
	if s.SendErr != nil {
		return s.SendErr
	}
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.sent = append(s.sent, cp)
	return nil
}

// Transcripts implements stt.SessionHandle.
func (s *Session) Transcripts() <-chan stt.Transcript { return s.out }

// Close implements stt.SessionHandle. It closes the transcript channel.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.once.Do(func() { close(s.out) })
	return nil
}

// SentAudio returns a snapshot of all audio chunks forwarded so far.
func (s *Session) SentAudio() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.sent))
	copy(out, s.sent)
	return out
}
