package policy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicy(t *testing.T) {
	assert := assert.New(t)

	p := DefaultPolicy("-100123")
	assert.Equal("-100123", p.GroupID)
	assert.Equal(1440, p.DefaultMuteMinutes)
	assert.Equal(3, p.WarnThreshold)
	assert.Equal(5, p.MuteThreshold)
	assert.Equal(8, p.BanThreshold)
	assert.True(p.DeleteOnFilterMatch)
	assert.True(p.WarnOnFilterMatch)
	assert.True(p.NotifyAdmins)
	assert.Nil(p.WelcomeMessage)
	assert.NoError(p.Validate())
}

func TestPolicyValidate(t *testing.T) {
	assert := assert.New(t)

	zero := 0
	for _, upd := range []PolicyUpdate{
		{DefaultMuteMinutes: &zero},
		{WarnThreshold: &zero},
		{MuteThreshold: &zero},
		{BanThreshold: &zero},
	} {
		p := upd.Apply(DefaultPolicy("g"))
		assert.ErrorIs(p.Validate(), ErrInvalidPolicy)
	}

	// thresholds do not need to be ordered
	two := 2
	p := PolicyUpdate{MuteThreshold: &two}.Apply(DefaultPolicy("g"))
	assert.NoError(p.Validate())
}

func TestMemStoreTerms(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	store := NewMemStore()

	first, err := store.CreateTerm(ctx, NewCustomTerm("spam"))
	require.NoError(t, err)
	second, err := store.CreateTerm(ctx, NewCustomTerm("spam"))
	require.NoError(t, err)
	assert.Equal(uint64(1), first.ID)
	assert.Equal(uint64(2), second.ID)
	assert.False(first.CreatedAt.IsZero())

	terms, err := store.ListTerms(ctx)
	require.NoError(t, err)
	assert.Equal(2, len(terms))
	assert.Equal(first.ID, terms[0].ID)

	_, err = store.CreateTerm(ctx, NewCustomTerm(""))
	assert.ErrorIs(err, ErrInvalidTerm)

	autoBan := true
	updated, err := store.UpdateTerm(ctx, second.ID, TermUpdate{AutoBan: &autoBan})
	require.NoError(t, err)
	assert.True(updated.AutoBan)
	assert.Equal("spam", updated.Term)

	_, err = store.UpdateTerm(ctx, 99, TermUpdate{AutoBan: &autoBan})
	assert.ErrorIs(err, ErrTermNotFound)

	bogus := Category("bogus")
	_, err = store.UpdateTerm(ctx, second.ID, TermUpdate{Category: &bogus})
	assert.ErrorIs(err, ErrInvalidTerm)
	got, err := store.GetTerm(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(CategoryCustom, got.Category)

	assert.NoError(store.DeleteTerm(ctx, first.ID))
	assert.ErrorIs(store.DeleteTerm(ctx, first.ID), ErrTermNotFound)
	terms, err = store.ListTerms(ctx)
	require.NoError(t, err)
	assert.Equal(1, len(terms))
}

func TestMemStorePolicy(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	store := NewMemStore()

	p, err := store.GetPolicy(ctx, "group-a")
	require.NoError(t, err)
	assert.Equal(DefaultPolicy("group-a"), *p)

	ten := 10
	welcome := "hello"
	p, err = store.UpdatePolicy(ctx, "group-a", PolicyUpdate{BanThreshold: &ten, WelcomeMessage: &welcome})
	require.NoError(t, err)
	assert.Equal(10, p.BanThreshold)
	assert.Equal("hello", *p.WelcomeMessage)

	neg := -1
	_, err = store.UpdatePolicy(ctx, "group-a", PolicyUpdate{WarnThreshold: &neg})
	assert.ErrorIs(err, ErrInvalidPolicy)
	p, err = store.GetPolicy(ctx, "group-a")
	require.NoError(t, err)
	assert.Equal(3, p.WarnThreshold)

	empty := ""
	p, err = store.UpdatePolicy(ctx, "group-a", PolicyUpdate{WelcomeMessage: &empty})
	require.NoError(t, err)
	assert.Nil(p.WelcomeMessage)

	// other groups are unaffected
	other, err := store.GetPolicy(ctx, "group-b")
	require.NoError(t, err)
	assert.Equal(8, other.BanThreshold)
}

func TestSeedDefaultTerms(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	store := NewMemStore()

	n, err := SeedDefaultTerms(ctx, store)
	require.NoError(t, err)
	assert.Equal(5, n)

	n, err = SeedDefaultTerms(ctx, store)
	require.NoError(t, err)
	assert.Equal(0, n)

	terms, err := store.ListTerms(ctx)
	require.NoError(t, err)
	assert.Equal("profanity1", terms[0].Term)
	assert.Equal("harassment1", terms[4].Term)
	assert.True(terms[4].AutoBan)
	assert.Equal(4, terms[4].BanAfter)
}

type failingCache[T any] struct{}

func (failingCache[T]) Get(ctx context.Context, key string) (*T, error) {
	return nil, errors.New("cache down")
}

func (failingCache[T]) Set(ctx context.Context, key string, val T) error {
	return errors.New("cache down")
}

func (failingCache[T]) Purge(ctx context.Context, key string) error {
	return errors.New("cache down")
}

func TestCachedStore(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	inner := NewMemStore()
	store := NewCachedStore(inner, NewMemCaches(100, time.Minute), nil)

	p, err := store.GetPolicy(ctx, "g")
	require.NoError(t, err)
	assert.Equal(8, p.BanThreshold)

	// update through the cache purges the entry
	four := 4
	_, err = store.UpdatePolicy(ctx, "g", PolicyUpdate{BanThreshold: &four})
	require.NoError(t, err)
	p, err = store.GetPolicy(ctx, "g")
	require.NoError(t, err)
	assert.Equal(4, p.BanThreshold)

	_, err = store.CreateTerm(ctx, NewCustomTerm("alpha"))
	require.NoError(t, err)
	terms, err := store.ListTerms(ctx)
	require.NoError(t, err)
	assert.Equal(1, len(terms))
	_, err = store.CreateTerm(ctx, NewCustomTerm("beta"))
	require.NoError(t, err)
	terms, err = store.ListTerms(ctx)
	require.NoError(t, err)
	assert.Equal(2, len(terms))

	// cache failures fall through to the underlying store
	broken := NewCachedStore(inner, Caches{Policies: failingCache[GroupPolicy]{}, Terms: failingCache[[]FilterTerm]{}}, nil)
	terms, err = broken.ListTerms(ctx)
	require.NoError(t, err)
	assert.Equal(2, len(terms))
}

func TestCachedStoreRedis(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	inner := NewMemStore()
	store := NewCachedStore(inner, NewRedisCaches(rdb, time.Minute, 0), nil)

	welcome := "Welcome!"
	_, err := store.UpdatePolicy(ctx, "g", PolicyUpdate{WelcomeMessage: &welcome})
	require.NoError(t, err)
	p, err := store.GetPolicy(ctx, "g")
	require.NoError(t, err)
	assert.True(mr.Exists("cache/group-policy/g"))

	// served from redis, with every field intact
	cached, err := store.GetPolicy(ctx, "g")
	require.NoError(t, err)
	assert.Equal(*p, *cached)
	assert.Equal("Welcome!", *cached.WelcomeMessage)

	term := NewCustomTerm("alpha")
	term.AutoBan = true
	term.BanAfter = 2
	_, err = store.CreateTerm(ctx, term)
	require.NoError(t, err)
	terms, err := store.ListTerms(ctx)
	require.NoError(t, err)
	assert.True(mr.Exists("cache/filter-terms/all"))
	terms, err = store.ListTerms(ctx)
	require.NoError(t, err)
	if assert.Equal(1, len(terms)) {
		assert.Equal("alpha", terms[0].Term)
		assert.Equal(CategoryCustom, terms[0].Category)
		assert.True(terms[0].AutoBan)
		assert.Equal(2, terms[0].BanAfter)
	}

	require.NoError(t, store.DeleteTerm(ctx, terms[0].ID))
	assert.False(mr.Exists("cache/filter-terms/all"))
}
