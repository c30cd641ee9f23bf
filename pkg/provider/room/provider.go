// Package room defines the Provider interface for shared video-room backends.
//
// A room provider manages the named room the user and the avatar meet in:
// create-if-absent provisioning, identity-scoped access tokens for joining and
// publishing tracks, listing live rooms and ending them. Muting the room's
// local audio is a client-side track operation; the pipeline drives it over
// the conversation's control channel, not through this interface.
package room

import (
	"context"
	"time"
)

// Room describes one video room as reported by the backend.
type Room struct {
	// SID is the backend-assigned room identifier.
	SID string

	// Name is the caller-chosen unique room name.
	Name string

	// Status is the backend's room state (e.g., "in-progress", "completed").
	Status string

	// MaxParticipants is the room's participant cap.
	MaxParticipants int

	// CreatedAt is when the room was created.
	CreatedAt time.Time
}

// Provider is the abstraction over any video-room backend.
type Provider interface {
	// EnsureRoom returns the live room with the given name, creating it if
	// it does not exist. Calling it for an existing room is a no-op.
	EnsureRoom(ctx context.Context, name string) (Room, error)

	// AccessToken mints a join token scoped to the given room and identity.
	// The token authorizes joining and publishing local tracks.
	AccessToken(ctx context.Context, roomName, identity string) (string, error)

	// ListRooms returns all in-progress rooms for this account.
	ListRooms(ctx context.Context) ([]Room, error)

	// EndRoom completes the room by SID, disconnecting all participants.
	EndRoom(ctx context.Context, sid string) error
}
