package sequence

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type fakeCounter struct {
	values  map[string]int64
	expired map[string]time.Duration
	err     error
}

func (f *fakeCounter) Incr(ctx context.Context, key string) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	f.values[key]++
	return redis.NewIntResult(f.values[key], nil)
}

func (f *fakeCounter) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	f.expired[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func TestNextWithdrawalRef(t *testing.T) {
	fc := &fakeCounter{values: map[string]int64{}, expired: map[string]time.Duration{}}
	g := &RedisGenerator{rdb: fc, now: func() time.Time {
		return time.Date(2025, 10, 19, 10, 0, 0, 0, time.UTC)
	}}

	first, err := g.NextWithdrawalRef(context.Background())
	require.NoError(t, err)
	require.Regexp(t, regexp.MustCompile(`^WD-251019-0001[A-Z2-9]{2}$`), first)

	second, err := g.NextWithdrawalRef(context.Background())
	require.NoError(t, err)
	require.Regexp(t, regexp.MustCompile(`^WD-251019-0002[A-Z2-9]{2}$`), second)

	require.Contains(t, fc.expired, "seq:WD:251019")
	require.Len(t, fc.expired, 1)
}

func TestNextDepositRefError(t *testing.T) {
	g := &RedisGenerator{rdb: &fakeCounter{err: errors.New("redis down")}, now: time.Now}

	_, err := g.NextDepositRef(context.Background())
	require.Error(t, err)
}
