package engine

import (
	"context"
	"time"
)

// The chat platform, as seen by the engine. All identifiers are opaque strings.
//
// Implementations should return promptly; the engine never retries a failed call.
type Platform interface {
	// Checked live on every admin command, never cached.
	IsAdmin(ctx context.Context, groupID, userID string) (bool, error)
	DeleteMessage(ctx context.Context, groupID, messageID string) error
	// Revokes send permissions until the given time.
	RestrictMember(ctx context.Context, groupID, userID string, until time.Time) error
	UnrestrictMember(ctx context.Context, groupID, userID string) error
	RemoveMember(ctx context.Context, groupID, userID string) error
	UnbanMember(ctx context.Context, groupID, userID string) error
	SendMessage(ctx context.Context, groupID, text string) error
}
