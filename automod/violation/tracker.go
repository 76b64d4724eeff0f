package violation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// Single writer of UserState. Every mutating operation is a read-modify-write under a per-user lock, so concurrent events for the same user are serialized while different users never contend.
//
// No lock is held once an operation returns; callers do platform enforcement afterwards.
type Tracker struct {
	Store  Store
	Logger *slog.Logger
	Now    func() time.Time

	locks *xsync.MapOf[string, *sync.Mutex]
}

func NewTracker(store Store, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		Store:  store,
		Logger: logger.With("system", "violation-tracker"),
		Now:    time.Now,
		locks:  xsync.NewMapOf[string, *sync.Mutex](),
	}
}

func (t *Tracker) lock(userID string) func() {
	mtx, _ := t.locks.LoadOrCompute(userID, func() *sync.Mutex {
		return &sync.Mutex{}
	})
	mtx.Lock()
	return mtx.Unlock
}

// loads the current state (or a fresh one), applies fn, and persists. If fn returns an error nothing is written, and the loaded state is returned alongside the error; fn must check before mutating. Caller must hold the user lock.
func (t *Tracker) modify(ctx context.Context, userID string, hints Profile, fn func(s *UserState) error) (*UserState, error) {
	if userID == "" {
		return nil, fmt.Errorf("violation tracker: empty user id")
	}
	now := t.Now().UTC()
	state, err := t.Store.GetUser(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		state = &UserState{
			UserID:    userID,
			CreatedAt: now,
		}
	} else if err != nil {
		return nil, fmt.Errorf("loading user state: %w", err)
	}
	if fn != nil {
		if err := fn(state); err != nil {
			return state, err
		}
	}
	hints.fill(state)
	state.UpdatedAt = now
	if err := t.Store.PutUser(ctx, state); err != nil {
		return nil, fmt.Errorf("persisting user state: %w", err)
	}
	return state, nil
}

// Returns the existing state, or creates a record with zero counters. Profile fields are refreshed from non-empty hints.
func (t *Tracker) EnsureUser(ctx context.Context, userID string, hints Profile) (*UserState, error) {
	unlock := t.lock(userID)
	defer unlock()

	state, err := t.Store.GetUser(ctx, userID)
	if err == nil {
		if !hints.fill(state) {
			return state, nil
		}
		state.UpdatedAt = t.Now().UTC()
		if err := t.Store.PutUser(ctx, state); err != nil {
			return nil, fmt.Errorf("persisting user state: %w", err)
		}
		return state, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("loading user state: %w", err)
	}
	return t.modify(ctx, userID, hints, nil)
}

// Adds one warning, creating the user if needed. The returned state carries the new count.
func (t *Tracker) IncrementWarning(ctx context.Context, userID string, hints Profile) (*UserState, error) {
	unlock := t.lock(userID)
	defer unlock()

	return t.modify(ctx, userID, hints, func(s *UserState) error {
		s.WarningCount++
		return nil
	})
}

// Marks the user muted until now+minutes. Banned users are left as they are, and ErrUserBanned is returned with their current state.
func (t *Tracker) Mute(ctx context.Context, userID string, minutes int) (*UserState, error) {
	unlock := t.lock(userID)
	defer unlock()

	return t.modify(ctx, userID, Profile{}, func(s *UserState) error {
		if s.IsBanned {
			return ErrUserBanned
		}
		expires := t.Now().UTC().Add(time.Duration(minutes) * time.Minute)
		s.IsMuted = true
		s.MuteExpiresAt = &expires
		return nil
	})
}

func (t *Tracker) Unmute(ctx context.Context, userID string) (*UserState, error) {
	unlock := t.lock(userID)
	defer unlock()

	return t.modify(ctx, userID, Profile{}, func(s *UserState) error {
		s.IsMuted = false
		s.MuteExpiresAt = nil
		return nil
	})
}

// Marks the user banned. A ban supersedes any mute, so mute fields are cleared.
func (t *Tracker) Ban(ctx context.Context, userID string) (*UserState, error) {
	unlock := t.lock(userID)
	defer unlock()

	return t.modify(ctx, userID, Profile{}, func(s *UserState) error {
		s.IsBanned = true
		s.IsMuted = false
		s.MuteExpiresAt = nil
		return nil
	})
}

// Clears the ban flag only; warnings and mute state are untouched.
func (t *Tracker) Unban(ctx context.Context, userID string) (*UserState, error) {
	unlock := t.lock(userID)
	defer unlock()

	return t.modify(ctx, userID, Profile{}, func(s *UserState) error {
		s.IsBanned = false
		return nil
	})
}

// Read-only. Unknown users get a zero state which is not persisted.
func (t *Tracker) Get(ctx context.Context, userID string) (*UserState, error) {
	state, err := t.Store.GetUser(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return &UserState{UserID: userID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading user state: %w", err)
	}
	return state, nil
}

// Resolves a username (with or without leading "@") to the stored state.
func (t *Tracker) FindByUsername(ctx context.Context, username string) (*UserState, error) {
	if len(username) > 0 && username[0] == '@' {
		username = username[1:]
	}
	if username == "" {
		return nil, ErrUserNotFound
	}
	return t.Store.FindByUsername(ctx, username)
}
