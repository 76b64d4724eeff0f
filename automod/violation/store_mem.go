package violation

import (
	"context"
	"sort"
	"strings"
	"sync"
)

type MemStore struct {
	mtx   sync.RWMutex
	users map[string]UserState
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		users: make(map[string]UserState),
	}
}

func (s *MemStore) GetUser(ctx context.Context, userID string) (*UserState, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (s *MemStore) PutUser(ctx context.Context, state *UserState) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	s.users[state.UserID] = *state
	return nil
}

func (s *MemStore) FindByUsername(ctx context.Context, username string) (*UserState, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	var found *UserState
	for _, u := range s.users {
		if u.Username != "" && strings.EqualFold(u.Username, username) {
			// most recently updated record wins if a username moved between accounts
			if found == nil || u.UpdatedAt.After(found.UpdatedAt) {
				c := u
				found = &c
			}
		}
	}
	if found == nil {
		return nil, ErrUserNotFound
	}
	return found, nil
}

func (s *MemStore) ListUsers(ctx context.Context, limit, offset int) ([]UserState, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	out := make([]UserState, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	if offset >= len(out) {
		return []UserState{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}
