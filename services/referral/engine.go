package referral

import (
	"context"
	"errors"
	"fmt"
	"time"

	"referralpay/pkg/config"
	"referralpay/pkg/db/option"
	"referralpay/pkg/lock"
	"referralpay/pkg/logger"
	"referralpay/pkg/rediskey"
	"referralpay/services/ledger"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	defaultTier1Rate = decimal.RequireFromString("0.30")
	defaultTier2Rate = decimal.RequireFromString("0.10")
)

// Result describes what one evaluation paid out.
type Result struct {
	ReferrerID  string
	Tier1Amount decimal.Decimal
	UpstreamID  string
	Tier2Amount decimal.Decimal
}

func (r Result) Paid() bool {
	return r.ReferrerID != ""
}

// Engine qualifies referrals once a referred user's balance reaches the
// initial deposit threshold and credits the bonuses.
type Engine struct {
	store     *ledger.Store
	locker    lock.Locker
	tier1Rate decimal.Decimal
	tier2Rate decimal.Decimal
	lockTTL   time.Duration
}

type EngineParams struct {
	fx.In
	Store  *ledger.Store
	Locker lock.Locker `optional:"true"`
	Config *config.Config
}

func NewEngine(p EngineParams) *Engine {
	e := &Engine{
		store:     p.Store,
		locker:    p.Locker,
		tier1Rate: p.Config.Referral.Tier1Rate,
		tier2Rate: p.Config.Referral.Tier2Rate,
		lockTTL:   p.Config.Referral.LockTTL,
	}
	if e.locker == nil {
		e.locker = lock.NewLocalLocker()
	}
	if !e.tier1Rate.IsPositive() {
		e.tier1Rate = defaultTier1Rate
	}
	if !e.tier2Rate.IsPositive() {
		e.tier2Rate = defaultTier2Rate
	}
	if e.lockTTL <= 0 {
		e.lockTTL = 10 * time.Second
	}
	return e
}

// Evaluate checks the pending tier-1 referral of userID and pays it when
// both sides hold at least the threshold. A successful tier-1 payout also
// tries to pay the referrer's own referrer at tier 2.
func (e *Engine) Evaluate(ctx context.Context, userID string) (Result, error) {
	var result Result

	threshold, err := e.store.Threshold(ctx)
	if err != nil {
		return result, err
	}

	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return result, err
	}
	if user.Balance.LessThan(threshold) {
		return result, nil
	}

	release, err := e.locker.Acquire(ctx, rediskey.BuildReferralChainKey(userID), e.lockTTL)
	if err != nil {
		return result, fmt.Errorf("failed to lock referral chain: %w", err)
	}
	defer release()

	log := logger.FromContext(ctx).With(zap.String("user_id", userID))

	err = e.store.Atomic(ctx, func(tx *gorm.DB) error {
		result = Result{}

		ref, err := e.store.Referrals().WithTrx(tx).FindOne(ctx, nil,
			option.Equal("referred_id", userID),
			option.Equal("referral_tier", ledger.Tier1),
			option.Equal("status", ledger.ReferralPending),
			option.WithLockingUpdate(),
		)
		if err != nil {
			return err
		}
		if ref == nil {
			return nil
		}

		referrer, err := e.store.Users().WithTrx(tx).FindOne(ctx, nil, option.Equal("id", ref.ReferrerID))
		if err != nil {
			return err
		}
		if referrer == nil || referrer.Balance.LessThan(threshold) {
			return nil
		}

		applied, err := e.store.MarkReferralSuccessful(tx, ref.ID)
		if err != nil {
			return err
		}
		if !applied {
			return nil
		}

		amount := threshold.Mul(e.tier1Rate).Round(2)
		if err := e.store.CreditReferralEarnings(tx, referrer.ID, amount); err != nil {
			return err
		}
		result.ReferrerID = referrer.ID
		result.Tier1Amount = amount

		// Tier 2 runs in a savepoint so its failure never undoes tier 1.
		if err := tx.Transaction(func(tx *gorm.DB) error {
			return e.payUpstream(ctx, tx, referrer.ID, userID, threshold, &result)
		}); err != nil {
			log.Warn("[Referral] tier-2 evaluation failed", zap.String("referrer_id", referrer.ID), zap.Error(err))
			result.UpstreamID = ""
			result.Tier2Amount = decimal.Zero
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	if result.Paid() {
		countPayout(ledger.Tier1)
		log.Info("[Referral] tier-1 bonus paid",
			zap.String("referrer_id", result.ReferrerID),
			zap.String("amount", result.Tier1Amount.StringFixed(2)),
		)
	}
	if result.UpstreamID != "" {
		countPayout(ledger.Tier2)
		log.Info("[Referral] tier-2 bonus paid",
			zap.String("upstream_id", result.UpstreamID),
			zap.String("amount", result.Tier2Amount.StringFixed(2)),
		)
	}
	return result, nil
}

// payUpstream credits whoever referred referrerID, provided that referral
// has already qualified and the upstream user holds the threshold.
func (e *Engine) payUpstream(ctx context.Context, tx *gorm.DB, referrerID, userID string, threshold decimal.Decimal, result *Result) error {
	upstreamRef, err := e.store.Referrals().WithTrx(tx).FindOne(ctx, nil,
		option.Equal("referred_id", referrerID),
		option.Equal("referral_tier", ledger.Tier1),
		option.Equal("status", ledger.ReferralSuccessful),
	)
	if err != nil {
		return err
	}
	if upstreamRef == nil || upstreamRef.ReferrerID == userID {
		return nil
	}

	upstream, err := e.store.Users().WithTrx(tx).FindOne(ctx, nil, option.Equal("id", upstreamRef.ReferrerID))
	if err != nil {
		return err
	}
	if upstream == nil {
		return errors.New("upstream referrer not found")
	}
	if upstream.Balance.LessThan(threshold) {
		return nil
	}

	inserted, err := e.store.CreateSuccessfulReferral(tx, upstream.ID, userID, ledger.Tier2)
	if err != nil {
		return err
	}
	if !inserted {
		return nil
	}

	amount := threshold.Mul(e.tier2Rate).Round(2)
	if err := e.store.CreditReferralEarnings(tx, upstream.ID, amount); err != nil {
		return err
	}
	result.UpstreamID = upstream.ID
	result.Tier2Amount = amount
	return nil
}
