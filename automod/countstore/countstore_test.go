package countstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func testCountStoreBasics(t *testing.T, cs CountStore) {
	assert := assert.New(t)
	ctx := context.Background()

	c, err := cs.GetCount(ctx, "action", "mute", PeriodTotal)
	assert.NoError(err)
	assert.Equal(0, c)
	assert.NoError(cs.Increment(ctx, "action", "mute"))
	assert.NoError(cs.Increment(ctx, "action", "mute"))
	assert.NoError(cs.Increment(ctx, "action", "ban"))

	for _, period := range AllPeriods {
		c, err = cs.GetCount(ctx, "action", "mute", period)
		assert.NoError(err)
		assert.Equal(2, c)
		c, err = cs.GetCount(ctx, "action", "ban", period)
		assert.NoError(err)
		assert.Equal(1, c)
	}

	assert.NoError(cs.IncrementDistinct(ctx, "offender", "warn", "100"))
	assert.NoError(cs.IncrementDistinct(ctx, "offender", "warn", "100"))
	assert.NoError(cs.IncrementDistinct(ctx, "offender", "warn", "200"))
	for _, period := range AllPeriods {
		c, err = cs.GetCountDistinct(ctx, "offender", "warn", period)
		assert.NoError(err)
		assert.Equal(2, c)
	}
}

func TestMemCountStoreBasics(t *testing.T) {
	testCountStoreBasics(t, NewMemCountStore())
}

func TestRedisCountStoreBasics(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	testCountStoreBasics(t, NewRedisCountStore(rdb))

	// day buckets expire, totals do not
	assert.True(t, mr.TTL("count/action/mute/"+time.Now().UTC().Format(time.DateOnly)) > 0)
	assert.Equal(t, time.Duration(0), mr.TTL("count/action/mute"))
}

func TestPeriodRollover(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	cs := NewMemCountStore()
	// a Sunday; the next day starts a new ISO week
	now := time.Date(2024, 6, 9, 23, 0, 0, 0, time.UTC)
	cs.Now = func() time.Time { return now }
	assert.NoError(cs.Increment(ctx, "action", "warn"))

	now = now.Add(2 * time.Hour)
	assert.NoError(cs.Increment(ctx, "action", "warn"))

	c, _ := cs.GetCount(ctx, "action", "warn", PeriodDay)
	assert.Equal(1, c)
	c, _ = cs.GetCount(ctx, "action", "warn", PeriodWeek)
	assert.Equal(1, c)
	c, _ = cs.GetCount(ctx, "action", "warn", PeriodTotal)
	assert.Equal(2, c)
}

func TestMemCountStoreConcurrent(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	cs := NewMemCountStore()

	// writers and readers interleaved; run with -race
	var wg sync.WaitGroup
	fnInc := func(name, val string, times int) {
		defer wg.Done()
		for i := 0; i < times; i++ {
			assert.NoError(cs.Increment(ctx, name, val))
			assert.NoError(cs.IncrementDistinct(ctx, name, name, val))
			time.Sleep(time.Nanosecond)
		}
	}
	fnRead := func(name, val string, times int) {
		defer wg.Done()
		for i := 0; i < times; i++ {
			_, err := cs.GetCount(ctx, name, val, PeriodTotal)
			assert.NoError(err)
			time.Sleep(time.Nanosecond)
		}
	}
	wg.Add(6)
	go fnInc("action", "warn", 10)
	go fnInc("action", "warn", 10)
	go fnRead("action", "warn", 10)
	go fnInc("action", "mute", 6)
	go fnInc("action", "mute", 6)
	go fnRead("action", "mute", 6)
	wg.Wait()

	c, err := cs.GetCount(ctx, "action", "warn", PeriodTotal)
	assert.NoError(err)
	assert.Equal(20, c)
	c, err = cs.GetCount(ctx, "action", "mute", PeriodTotal)
	assert.NoError(err)
	assert.Equal(12, c)

	c, err = cs.GetCountDistinct(ctx, "action", "action", PeriodTotal)
	assert.NoError(err)
	assert.Equal(2, c)
}
