// Per-user violation state: warning counts and mute / ban flags.
package violation

import (
	"context"
	"errors"
	"time"
)

var (
	ErrUserNotFound = errors.New("user not found")
	// a banned user cannot also be muted
	ErrUserBanned = errors.New("user is banned")
)

// Moderation state for a single user, shared across all groups.
type UserState struct {
	UserID       string `json:"userId"`
	Username     string `json:"username,omitempty"`
	FirstName    string `json:"firstName,omitempty"`
	LastName     string `json:"lastName,omitempty"`
	WarningCount int    `json:"warningCount"`
	IsMuted      bool   `json:"isMuted"`
	IsBanned     bool   `json:"isBanned"`
	// informational only; nothing unmutes a user when this passes
	MuteExpiresAt *time.Time `json:"muteExpiresAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// Best-effort display name: "@username", else first name, else the numeric ID.
func (s *UserState) DisplayName() string {
	if s.Username != "" {
		return "@" + s.Username
	}
	if s.FirstName != "" {
		return s.FirstName
	}
	return s.UserID
}

// Profile hints from the chat platform. Non-empty hints are current, so they replace whatever is stored.
type Profile struct {
	Username  string
	FirstName string
	LastName  string
}

// returns true if anything changed
func (p Profile) fill(s *UserState) bool {
	changed := false
	if p.Username != "" && p.Username != s.Username {
		s.Username = p.Username
		changed = true
	}
	if p.FirstName != "" && p.FirstName != s.FirstName {
		s.FirstName = p.FirstName
		changed = true
	}
	if p.LastName != "" && p.LastName != s.LastName {
		s.LastName = p.LastName
		changed = true
	}
	return changed
}

// Persistence for UserState. Callers serialize writes per user; implementations only need to make each call atomic.
type Store interface {
	// Returns ErrUserNotFound if no record exists.
	GetUser(ctx context.Context, userID string) (*UserState, error)
	PutUser(ctx context.Context, state *UserState) error
	// Case-insensitive. Returns ErrUserNotFound if no record carries the username.
	FindByUsername(ctx context.Context, username string) (*UserState, error)
	ListUsers(ctx context.Context, limit, offset int) ([]UserState, error)
}
