package policy

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Persistence for filter terms and group policies.
//
// Filter terms are shared by all groups. Policies are created with DefaultPolicy values on first GetPolicy.
type Store interface {
	// Returns all terms in ascending ID order.
	ListTerms(ctx context.Context) ([]FilterTerm, error)
	GetTerm(ctx context.Context, id uint64) (*FilterTerm, error)
	// Assigns ID and CreatedAt. Returns the stored term.
	CreateTerm(ctx context.Context, term FilterTerm) (*FilterTerm, error)
	UpdateTerm(ctx context.Context, id uint64, update TermUpdate) (*FilterTerm, error)
	DeleteTerm(ctx context.Context, id uint64) error

	GetPolicy(ctx context.Context, groupID string) (*GroupPolicy, error)
	UpdatePolicy(ctx context.Context, groupID string, update PolicyUpdate) (*GroupPolicy, error)
}

type MemStore struct {
	mtx      sync.Mutex
	nextID   uint64
	terms    map[uint64]FilterTerm
	policies map[string]GroupPolicy
	Now      func() time.Time
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		nextID:   1,
		terms:    make(map[uint64]FilterTerm),
		policies: make(map[string]GroupPolicy),
		Now:      time.Now,
	}
}

func (s *MemStore) ListTerms(ctx context.Context) ([]FilterTerm, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	out := make([]FilterTerm, 0, len(s.terms))
	for _, t := range s.terms {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemStore) GetTerm(ctx context.Context, id uint64) (*FilterTerm, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	t, ok := s.terms[id]
	if !ok {
		return nil, ErrTermNotFound
	}
	return &t, nil
}

func (s *MemStore) CreateTerm(ctx context.Context, term FilterTerm) (*FilterTerm, error) {
	if err := term.Validate(); err != nil {
		return nil, err
	}
	s.mtx.Lock()
	defer s.mtx.Unlock()

	term.ID = s.nextID
	term.CreatedAt = s.Now().UTC()
	s.nextID++
	s.terms[term.ID] = term
	return &term, nil
}

func (s *MemStore) UpdateTerm(ctx context.Context, id uint64, update TermUpdate) (*FilterTerm, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	existing, ok := s.terms[id]
	if !ok {
		return nil, ErrTermNotFound
	}
	updated := update.Apply(existing)
	if err := updated.Validate(); err != nil {
		return nil, err
	}
	s.terms[id] = updated
	return &updated, nil
}

func (s *MemStore) DeleteTerm(ctx context.Context, id uint64) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if _, ok := s.terms[id]; !ok {
		return ErrTermNotFound
	}
	delete(s.terms, id)
	return nil
}

func (s *MemStore) GetPolicy(ctx context.Context, groupID string) (*GroupPolicy, error) {
	if groupID == "" {
		return nil, fmt.Errorf("%w: missing group id", ErrInvalidPolicy)
	}
	s.mtx.Lock()
	defer s.mtx.Unlock()

	p, ok := s.policies[groupID]
	if !ok {
		p = DefaultPolicy(groupID)
		s.policies[groupID] = p
	}
	return &p, nil
}

func (s *MemStore) UpdatePolicy(ctx context.Context, groupID string, update PolicyUpdate) (*GroupPolicy, error) {
	if groupID == "" {
		return nil, fmt.Errorf("%w: missing group id", ErrInvalidPolicy)
	}
	s.mtx.Lock()
	defer s.mtx.Unlock()

	p, ok := s.policies[groupID]
	if !ok {
		p = DefaultPolicy(groupID)
	}
	updated := update.Apply(p)
	if err := updated.Validate(); err != nil {
		return nil, err
	}
	s.policies[groupID] = updated
	return &updated, nil
}
