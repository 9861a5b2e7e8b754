package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ykvlv/payment-reminder-bot/internal/cycle"
)

type countingCycle struct {
	mu   sync.Mutex
	runs []time.Time
}

func (c *countingCycle) Run(_ context.Context, now time.Time) cycle.Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runs = append(c.runs, now)
	return cycle.Summary{Evaluated: len(c.runs)}
}

// dayLocker grants each day once, like Redis SETNX.
type dayLocker struct {
	mu    sync.Mutex
	taken map[string]bool
	err   error
}

func (l *dayLocker) TryLock(_ context.Context, day string) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.taken == nil {
		l.taken = map[string]bool{}
	}
	if l.taken[day] {
		return false, nil
	}
	l.taken[day] = true
	return true, nil
}

func TestNew_RejectsInvalidTime(t *testing.T) {
	for _, o := range []Options{{Hour: 24}, {Hour: -1}, {Minute: 60}} {
		_, err := New(&countingCycle{}, zap.NewNop(), o)
		assert.Error(t, err)
	}
}

func TestSpec(t *testing.T) {
	s, err := New(&countingCycle{}, zap.NewNop(), Options{Hour: 10, Minute: 5})
	require.NoError(t, err)
	assert.Equal(t, "5 10 * * *", s.Spec())
}

func TestStart_NextFireInConfiguredZone(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Bishkek")
	require.NoError(t, err)

	s, err := New(&countingCycle{}, zap.NewNop(), Options{Hour: 10, Minute: 0, Location: loc})
	require.NoError(t, err)
	s.Start()
	defer func() { _ = s.Stop(context.Background()) }()

	var next time.Time
	require.Eventually(t, func() bool {
		next = s.Next()
		return !next.IsZero()
	}, time.Second, 5*time.Millisecond)

	local := next.In(loc)
	assert.Equal(t, 10, local.Hour())
	assert.Equal(t, 0, local.Minute())
	assert.True(t, next.After(time.Now()))
	assert.True(t, next.Before(time.Now().Add(24*time.Hour+time.Minute)))
}

func TestRunNow_OncePerDayWithLock(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Bishkek")
	require.NoError(t, err)
	clock := time.Date(2025, time.September, 17, 10, 0, 0, 0, loc)

	cc := &countingCycle{}
	s, err := New(cc, zap.NewNop(), Options{
		Hour: 10, Location: loc, Locker: &dayLocker{},
		Now: func() time.Time { return clock },
	})
	require.NoError(t, err)

	_, ran := s.RunNow(context.Background())
	assert.True(t, ran)
	_, ran = s.RunNow(context.Background())
	assert.False(t, ran, "second instance on the same day is skipped")

	clock = clock.AddDate(0, 0, 1)
	_, ran = s.RunNow(context.Background())
	assert.True(t, ran)
	require.Len(t, cc.runs, 2)
	assert.Equal(t, 18, cc.runs[1].Day())
}

func TestRunNow_LockErrorStillRuns(t *testing.T) {
	cc := &countingCycle{}
	s, err := New(cc, zap.NewNop(), Options{Hour: 10, Locker: &dayLocker{err: errors.New("redis down")}})
	require.NoError(t, err)

	_, ran := s.RunNow(context.Background())
	assert.True(t, ran)
	assert.Len(t, cc.runs, 1)
}

func TestRunNow_DayKeyUsesConfiguredZone(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Bishkek")
	require.NoError(t, err)
	l := &dayLocker{}
	// 20:00 UTC on the 17th is the 18th in Bishkek.
	s, err := New(&countingCycle{}, nil, Options{
		Location: loc, Locker: l,
		Now: func() time.Time { return time.Date(2025, time.September, 17, 20, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	s.RunNow(context.Background())
	assert.True(t, l.taken["2025-09-18"])
}

func TestNopLocker(t *testing.T) {
	ok, err := NopLocker{}.TryLock(context.Background(), "2025-01-01")
	assert.NoError(t, err)
	assert.True(t, ok)
}

func TestStop_Idempotent(t *testing.T) {
	s, err := New(&countingCycle{}, zap.NewNop(), Options{Hour: 3})
	require.NoError(t, err)
	s.Start()
	require.NoError(t, s.Stop(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
}

func TestRedisLocker_ClaimsDayOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	l, err := NewRedisLocker(ctx, "redis://"+mr.Addr(), "host-a")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	ok, err := l.TryLock(ctx, "2025-09-17")
	require.NoError(t, err)
	assert.True(t, ok, "first claim wins")

	ok, err = l.TryLock(ctx, "2025-09-17")
	require.NoError(t, err)
	assert.False(t, ok, "day already claimed")

	key := "payreminder:cycle:2025-09-17"
	require.True(t, mr.Exists(key))
	assert.Equal(t, 23*time.Hour, mr.TTL(key))
	owner, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "host-a", owner)

	ok, err = l.TryLock(ctx, "2025-09-18")
	require.NoError(t, err)
	assert.True(t, ok, "next day is a separate claim")

	mr.FastForward(23*time.Hour + time.Second)
	ok, err = l.TryLock(ctx, "2025-09-17")
	require.NoError(t, err)
	assert.True(t, ok, "claim expires with its TTL")
}

func TestRedisLocker_TwoInstancesRunOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	loc, err := time.LoadLocation("Asia/Bishkek")
	require.NoError(t, err)
	// 20:00 UTC on the 16th is the 17th in Bishkek.
	now := time.Date(2025, time.September, 16, 20, 0, 0, 0, time.UTC)

	var cycles []*countingCycle
	var scheds []*Scheduler
	for _, host := range []string{"host-a", "host-b"} {
		l, err := NewRedisLocker(ctx, "redis://"+mr.Addr(), host)
		require.NoError(t, err)
		t.Cleanup(func() { _ = l.Close() })

		c := &countingCycle{}
		s, err := New(c, zap.NewNop(), Options{
			Hour: 10, Location: loc, Locker: l,
			Now: func() time.Time { return now },
		})
		require.NoError(t, err)
		cycles = append(cycles, c)
		scheds = append(scheds, s)
	}

	_, ranA := scheds[0].RunNow(ctx)
	_, ranB := scheds[1].RunNow(ctx)
	assert.True(t, ranA)
	assert.False(t, ranB)
	assert.Len(t, cycles[0].runs, 1)
	assert.Empty(t, cycles[1].runs)
	assert.True(t, mr.Exists("payreminder:cycle:2025-09-17"), "day key uses the configured zone")
}

func TestNewRedisLocker_Unreachable(t *testing.T) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := NewRedisLocker(ctx, "redis://"+addr, "host-a")
	assert.Error(t, err)

	_, err = NewRedisLocker(ctx, "not a url", "host-a")
	assert.Error(t, err)
}
