package sequence

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"referralpay/pkg/rediskey"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var Module = fx.Module("sequence",
	fx.Provide(NewRedisGenerator),
)

const (
	PrefixWithdrawal = "WD"
	PrefixDeposit    = "DP"
)

// Generator hands out short human-readable references.
type Generator interface {
	// NextWithdrawalRef is the originator correlation id sent with a disbursement.
	NextWithdrawalRef(ctx context.Context) (string, error)
	// NextDepositRef is the account reference shown on the customer's phone.
	NextDepositRef(ctx context.Context) (string, error)
}

type counter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

type RedisGenerator struct {
	rdb counter
	now func() time.Time
}

type Params struct {
	fx.In

	Redis *redis.Client
}

func NewRedisGenerator(p Params) Generator {
	return &RedisGenerator{
		rdb: p.Redis,
		now: time.Now,
	}
}

func (g *RedisGenerator) NextWithdrawalRef(ctx context.Context) (string, error) {
	return g.nextDailyCode(ctx, PrefixWithdrawal)
}

func (g *RedisGenerator) NextDepositRef(ctx context.Context) (string, error) {
	return g.nextDailyCode(ctx, PrefixDeposit)
}

func (g *RedisGenerator) nextDailyCode(ctx context.Context, prefix string) (string, error) {
	now := g.now().UTC()
	today := now.Format("060102")
	key := rediskey.BuildSequenceKey(prefix, today)

	seq, err := g.rdb.Incr(ctx, key).Result()
	if err != nil {
		return "", fmt.Errorf("next %s sequence: %w", prefix, err)
	}

	if seq == 1 {
		endOfDay := now.Truncate(24 * time.Hour).Add(24 * time.Hour)
		_ = g.rdb.Expire(ctx, key, endOfDay.Sub(now)+time.Hour).Err()
	}

	// base36, padded to at least 4 characters
	encodedSeq := strings.ToUpper(strconv.FormatInt(seq, 36))
	if len(encodedSeq) < 4 {
		encodedSeq = strings.Repeat("0", 4-len(encodedSeq)) + encodedSeq
	}

	randSuffix, err := randomAlphaNumeric(2)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s-%s-%s%s", prefix, today, encodedSeq, randSuffix), nil
}

func randomAlphaNumeric(n int) (string, error) {
	const chars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	b := make([]byte, n)
	for i := range b {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
		if err != nil {
			return "", err
		}
		b[i] = chars[num.Int64()]
	}
	return string(b), nil
}
