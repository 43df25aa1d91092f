package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	mu       sync.Mutex
	values   map[string]string
	released []string
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.values[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.values[key] = value.(string)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) eval(keys []string, args ...interface{}) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.values[keys[0]] == args[0].(string) {
		delete(f.values, keys[0])
		f.released = append(f.released, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}

func (f *fakeRedis) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	return f.eval(keys, args...)
}

func (f *fakeRedis) EvalSha(ctx context.Context, sha1 string, keys []string, args ...interface{}) *redis.Cmd {
	return f.eval(keys, args...)
}

func (f *fakeRedis) EvalRO(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	return f.eval(keys, args...)
}

func (f *fakeRedis) EvalShaRO(ctx context.Context, sha1 string, keys []string, args ...interface{}) *redis.Cmd {
	return f.eval(keys, args...)
}

func (f *fakeRedis) ScriptExists(ctx context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult([]bool{true}, nil)
}

func (f *fakeRedis) ScriptLoad(ctx context.Context, script string) *redis.StringCmd {
	return redis.NewStringResult("sha", nil)
}

func TestRedisLockerAcquireRelease(t *testing.T) {
	fr := &fakeRedis{values: map[string]string{}}
	l := &RedisLocker{rdb: fr, retry: time.Millisecond, maxWait: 20 * time.Millisecond, newToken: randomToken}

	release, err := l.Acquire(context.Background(), "referral:chain:1", time.Second)
	require.NoError(t, err)

	_, err = l.Acquire(context.Background(), "referral:chain:1", time.Second)
	require.ErrorIs(t, err, ErrNotAcquired)

	release()
	require.Equal(t, []string{"referral:chain:1"}, fr.released)

	release2, err := l.Acquire(context.Background(), "referral:chain:1", time.Second)
	require.NoError(t, err)
	release2()
}

func TestRedisLockerDoesNotReleaseForeignToken(t *testing.T) {
	fr := &fakeRedis{values: map[string]string{}}
	l := &RedisLocker{rdb: fr, retry: time.Millisecond, maxWait: time.Millisecond, newToken: randomToken}

	release, err := l.Acquire(context.Background(), "k", time.Second)
	require.NoError(t, err)

	// the lock expired and someone else took it
	fr.values["k"] = "other"
	release()
	require.Equal(t, "other", fr.values["k"])
}

func TestLocalLockerSerializes(t *testing.T) {
	l := NewLocalLocker()
	var inside, max int32
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(context.Background(), "chain", time.Second)
			require.NoError(t, err)
			n := atomic.AddInt32(&inside, 1)
			if n > atomic.LoadInt32(&max) {
				atomic.StoreInt32(&max, n)
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			release()
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), max)
}

func TestLocalLockerHonoursContext(t *testing.T) {
	l := NewLocalLocker()
	release, err := l.Acquire(context.Background(), "chain", time.Second)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "chain", time.Second)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
