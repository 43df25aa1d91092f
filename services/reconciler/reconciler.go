package reconciler

import (
	"context"
	"errors"
	"fmt"

	"referralpay/pkg/logger"
	"referralpay/services/intake"
	"referralpay/services/ledger"
	"referralpay/services/referral"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeNoop      Outcome = "noop"
	OutcomeMalformed Outcome = "malformed"
	OutcomeUnknown   Outcome = "unknown_key"
	OutcomeConflict  Outcome = "conflict"
	OutcomeTransient Outcome = "transient"
)

// Terminal reports whether the record behind this outcome is finished.
func (o Outcome) Terminal() bool {
	return o != OutcomeTransient
}

// ReferralEvaluator is called after a deposit has been credited.
type ReferralEvaluator interface {
	Evaluate(ctx context.Context, userID string) (referral.Result, error)
}

// Reconciler applies provider notifications to the ledger. Every transition
// is conditional on the record still being pending, so replays and late
// notifications settle as no-ops.
type Reconciler struct {
	store     *ledger.Store
	referrals ReferralEvaluator
}

type Params struct {
	fx.In
	Store     *ledger.Store
	Referrals *referral.Engine
}

func New(p Params) *Reconciler {
	return &Reconciler{store: p.Store, referrals: p.Referrals}
}

// Apply runs one notification through the state machine. The error is set
// for every outcome except applied and noop.
func (r *Reconciler) Apply(ctx context.Context, kind intake.Kind, payload []byte) (Outcome, error) {
	var (
		outcome Outcome
		err     error
	)
	switch kind {
	case intake.KindDepositResult:
		outcome, err = r.applyDeposit(ctx, payload)
	case intake.KindDisbursementResult, intake.KindDisbursementTimeout:
		outcome, err = r.applyDisbursement(ctx, kind, payload)
	default:
		outcome, err = OutcomeMalformed, fmt.Errorf("%w: unknown kind %q", ErrMalformed, kind)
	}
	countOutcome(kind, outcome)
	return outcome, err
}

func (r *Reconciler) applyDeposit(ctx context.Context, payload []byte) (Outcome, error) {
	res, err := ParseDeposit(payload)
	if err != nil {
		return OutcomeMalformed, err
	}

	log := logger.FromContext(ctx).With(zap.String("merchant_request_id", res.MerchantRequestID))

	if !res.Succeeded() {
		applied, err := r.store.FailDeposit(ctx, res.MerchantRequestID, res.ResultDesc)
		if err != nil {
			return classify(err)
		}
		if !applied {
			return OutcomeNoop, nil
		}
		log.Info("[Reconciler] deposit failed", zap.Int("result_code", res.ResultCode), zap.String("result_desc", res.ResultDesc))
		return OutcomeApplied, nil
	}

	txn, applied, err := r.store.CompleteDeposit(ctx, res.MerchantRequestID, res.Receipt, res.ResultDesc)
	if err != nil {
		return classify(err)
	}
	if !applied {
		return OutcomeNoop, nil
	}
	log.Info("[Reconciler] deposit credited",
		zap.String("user_id", txn.UserID),
		zap.String("amount", txn.Amount.StringFixed(2)),
	)

	// Referral failures never affect the deposit.
	if _, err := r.referrals.Evaluate(ctx, txn.UserID); err != nil {
		referralFailures.Inc()
		log.Error("[Reconciler] referral evaluation failed", zap.String("user_id", txn.UserID), zap.Error(err))
	}
	return OutcomeApplied, nil
}

func (r *Reconciler) applyDisbursement(ctx context.Context, kind intake.Kind, payload []byte) (Outcome, error) {
	res, err := ParseDisbursement(payload)
	if err != nil {
		return OutcomeMalformed, err
	}

	log := logger.FromContext(ctx).With(
		zap.String("originator_conversation_id", res.OriginatorConversationID),
		zap.String("kind", string(kind)),
	)

	if kind == intake.KindDisbursementResult && res.Succeeded() {
		w, applied, err := r.store.ApproveWithdrawal(ctx, res.OriginatorConversationID, res.TransactionID, res.ResultDesc)
		if err != nil {
			return classify(err)
		}
		if !applied {
			return OutcomeNoop, nil
		}
		log.Info("[Reconciler] withdrawal approved",
			zap.String("withdrawal_id", w.ID),
			zap.String("transaction_id", res.TransactionID),
		)
		return OutcomeApplied, nil
	}

	desc := res.ResultDesc
	if kind == intake.KindDisbursementTimeout && desc == "" {
		desc = "disbursement timed out"
	}
	applied, err := r.store.FailWithdrawal(ctx, res.OriginatorConversationID, desc)
	if err != nil {
		return classify(err)
	}
	if !applied {
		return OutcomeNoop, nil
	}
	log.Info("[Reconciler] withdrawal failed", zap.String("result_desc", desc))
	return OutcomeApplied, nil
}

func classify(err error) (Outcome, error) {
	switch {
	case errors.Is(err, ledger.ErrUnknownCorrelation):
		return OutcomeUnknown, err
	case errors.Is(err, ledger.ErrInsufficientEarnings), errors.Is(err, ledger.ErrUserNotFound):
		return OutcomeConflict, err
	default:
		return OutcomeTransient, err
	}
}
