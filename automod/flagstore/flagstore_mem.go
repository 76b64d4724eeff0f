package flagstore

import (
	"context"
	"slices"
	"sync"
)

type MemFlagStore struct {
	mtx  sync.Mutex
	Data map[string]map[string]bool
}

var _ FlagStore = (*MemFlagStore)(nil)

func NewMemFlagStore() *MemFlagStore {
	return &MemFlagStore{
		Data: make(map[string]map[string]bool),
	}
}

func (s *MemFlagStore) Get(ctx context.Context, key string) ([]string, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	out := []string{}
	for f := range s.Data[key] {
		out = append(out, f)
	}
	slices.Sort(out)
	return out, nil
}

func (s *MemFlagStore) Add(ctx context.Context, key string, flags []string) error {
	if len(flags) == 0 {
		return nil
	}
	s.mtx.Lock()
	defer s.mtx.Unlock()

	set, ok := s.Data[key]
	if !ok {
		set = make(map[string]bool, len(flags))
		s.Data[key] = set
	}
	for _, f := range flags {
		set[f] = true
	}
	return nil
}

func (s *MemFlagStore) Remove(ctx context.Context, key string, flags []string) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	set, ok := s.Data[key]
	if !ok {
		return nil
	}
	for _, f := range flags {
		delete(set, f)
	}
	if len(set) == 0 {
		delete(s.Data, key)
	}
	return nil
}
