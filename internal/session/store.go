package session

import (
	"context"
	"errors"
	"time"
)

// DefaultTTL is how long an idle session history lives before it expires.
const DefaultTTL = time.Hour

// ErrSessionRotated is returned by Append when the target session id has been
// superseded by a Reset or has expired. The caller logs and drops the entry;
// it is never merged into the successor session.
var ErrSessionRotated = errors.New("session: id superseded or expired")

// Store manages the session history of one conversation.
//
// A Store instance belongs to a single conversation and tracks the currently
// active session id itself. Implementations must be safe for concurrent use.
type Store interface {
	// GetOrCreate returns the active session id, provisioning and seeding a
	// new session when none is active or the previous one has expired.
	// Repeated calls within the TTL return the same id.
	GetOrCreate(ctx context.Context) (string, error)

	// Append adds an entry to the session's history and refreshes the TTL.
	// Appends against a rotated or expired id fail with ErrSessionRotated.
	Append(ctx context.Context, sessionID string, entry Entry) error

	// Load returns the session's history. A missing history yields a fresh
	// seeded one; a corrupt persisted history is logged and likewise replaced
	// by a fresh seed rather than surfaced as an error.
	Load(ctx context.Context, sessionID string) (History, error)

	// Reset discards the session and provisions a new seeded one, returning
	// the new id. Entries from the old session are gone for good.
	Reset(ctx context.Context) (string, error)
}
