// Package mock provides a test double for the room.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/sofie-labs/facedancer/pkg/provider/room"
)

// Provider is a mock implementation of room.Provider.
type Provider struct {
	mu sync.Mutex

	// EnsureResult and EnsureErr control EnsureRoom.
	EnsureResult room.Room
	EnsureErr    error

	// TokenResult and TokenErr control AccessToken.
	TokenResult string
	TokenErr    error

	// ListResult and ListErr control ListRooms.
	ListResult []room.Room
	ListErr    error

	// EndErr, if non-nil, is returned from EndRoom.
	EndErr error

	// EnsureCalls records every room name passed to EnsureRoom.
	EnsureCalls []string

	// TokenCalls records every (roomName, identity) pair passed to AccessToken.
	TokenCalls [][2]string

	// EndCalls records every SID passed to EndRoom.
	EndCalls []string
}

var _ room.Provider = (*Provider)(nil)

// EnsureRoom implements room.Provider.
func (p *Provider) EnsureRoom(_ context.Context, name string) (room.Room, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EnsureCalls = append(p.EnsureCalls, name)
	if p.EnsureErr != nil {
		return room.Room{}, p.EnsureErr
	}
	if p.EnsureResult.SID == "" {
		return room.Room{SID: "RM-mock", Name: name, Status: "in-progress"}, nil
	}
	return p.EnsureResult, nil
}

// AccessToken implements room.Provider.
func (p *Provider) AccessToken(_ context.Context, roomName, identity string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TokenCalls = append(p.TokenCalls, [2]string{roomName, identity})
	if p.TokenErr != nil {
		return "", p.TokenErr
	}
	if p.TokenResult == "" {
		return "mock-token", nil
	}
	return p.TokenResult, nil
}

// ListRooms implements room.Provider.
func (p *Provider) ListRooms(context.Context) ([]room.Room, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ListResult, p.ListErr
}

// EndRoom implements room.Provider.
func (p *Provider) EndRoom(_ context.Context, sid string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EndCalls = append(p.EndCalls, sid)
	return p.EndErr
}
