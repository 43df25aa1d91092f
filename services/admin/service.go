package admin

import (
	"context"
	"errors"

	"referralpay/pkg/db/pagination"
	"referralpay/pkg/errutil"
	"referralpay/pkg/featureflags"
	"referralpay/pkg/logger"
	"referralpay/pkg/sequence"
	"referralpay/services/gateway"
	"referralpay/services/ledger"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ApprovalResult is the outcome of one withdrawal in a bulk approval.
type ApprovalResult struct {
	WithdrawalID string             `json:"withdrawal_id"`
	Withdrawal   *ledger.Withdrawal `json:"withdrawal,omitempty"`
	Error        string             `json:"error,omitempty"`
}

type Service struct {
	store    *ledger.Store
	provider gateway.Provider
	seq      sequence.Generator
	flags    featureflags.FeatureFlag
}

type Params struct {
	fx.In
	Store    *ledger.Store
	Provider gateway.Provider
	Sequence sequence.Generator
	Flags    featureflags.FeatureFlag `optional:"true"`
}

func NewService(p Params) *Service {
	flags := p.Flags
	if flags == nil {
		flags = featureflags.AlwaysOn{}
	}
	return &Service{store: p.Store, provider: p.Provider, seq: p.Sequence, flags: flags}
}

func (s *Service) ListWithdrawals(ctx context.Context, status ledger.WithdrawalStatus, page pagination.Pagination) ([]*ledger.Withdrawal, *pagination.PageInfo, error) {
	switch status {
	case "", ledger.WithdrawalPending, ledger.WithdrawalApproved, ledger.WithdrawalFailed:
	default:
		return nil, nil, errutil.ValidationFailed("unknown withdrawal status", nil,
			errutil.WithDetails(errutil.Detail{Field: "status", Message: string(status)}))
	}
	rows, info, err := s.store.ListWithdrawals(ctx, &ledger.Withdrawal{Status: status}, page)
	if err != nil {
		return nil, nil, errutil.Internal("failed to list withdrawals", err)
	}
	return rows, info, nil
}

func (s *Service) ListUsers(ctx context.Context, page pagination.Pagination) ([]*ledger.User, *pagination.PageInfo, error) {
	rows, info, err := s.store.ListUsers(ctx, page)
	if err != nil {
		return nil, nil, errutil.Internal("failed to list users", err)
	}
	return rows, info, nil
}

func (s *Service) SetInitialDeposit(ctx context.Context, amount decimal.Decimal) error {
	if err := s.store.SetThreshold(ctx, amount); err != nil {
		if errors.Is(err, ledger.ErrInvalidAmount) {
			return errutil.ValidationFailed("amount must be positive", err)
		}
		return errutil.Internal("failed to update initial deposit", err)
	}
	logger.FromContext(ctx).Info("[Admin] initial deposit updated", zap.String("amount", amount.StringFixed(2)))
	return nil
}

// Suspend fails a pending withdrawal that has not been disbursed.
func (s *Service) Suspend(ctx context.Context, withdrawalID string) error {
	if _, err := s.store.GetWithdrawal(ctx, withdrawalID); err != nil {
		if ledger.IsNotFound(err) {
			return errutil.NotFound("withdrawal not found", err)
		}
		return errutil.Internal("failed to load withdrawal", err)
	}
	if err := s.store.SuspendWithdrawal(ctx, withdrawalID); err != nil {
		if errors.Is(err, ledger.ErrStateConflict) {
			return errutil.Conflict("withdrawal is no longer pending or has been sent", err)
		}
		return errutil.Internal("failed to suspend withdrawal", err)
	}
	logger.FromContext(ctx).Info("[Admin] withdrawal suspended", zap.String("withdrawal_id", withdrawalID))
	return nil
}

func (s *Service) disbursementsEnabled(ctx context.Context) error {
	on, err := s.flags.Enabled(ctx, featureflags.DisbursementsEnabled)
	if err != nil {
		return errutil.ServiceUnavailable("failed to evaluate feature flag", err)
	}
	if !on {
		return errutil.ServiceUnavailable("disbursements are disabled", nil)
	}
	return nil
}

// Approve issues the disbursement for a pending withdrawal. The withdrawal
// stays pending until the provider's result callback arrives.
func (s *Service) Approve(ctx context.Context, withdrawalID string) (*ledger.Withdrawal, error) {
	if err := s.disbursementsEnabled(ctx); err != nil {
		return nil, err
	}
	return s.approve(ctx, withdrawalID)
}

func (s *Service) approve(ctx context.Context, withdrawalID string) (*ledger.Withdrawal, error) {
	log := logger.FromContext(ctx).With(zap.String("withdrawal_id", withdrawalID))

	w, err := s.store.GetWithdrawal(ctx, withdrawalID)
	if err != nil {
		if ledger.IsNotFound(err) {
			return nil, errutil.NotFound("withdrawal not found", err)
		}
		return nil, errutil.Internal("failed to load withdrawal", err)
	}
	if w.Status != ledger.WithdrawalPending || w.TransactionID != nil {
		return nil, errutil.Conflict("withdrawal is no longer pending or has been sent", ledger.ErrStateConflict)
	}

	user, err := s.store.GetUser(ctx, w.UserID)
	if err != nil {
		if ledger.IsNotFound(err) {
			return nil, errutil.NotFound("user not found", err)
		}
		return nil, errutil.Internal("failed to load user", err)
	}
	if w.Amount.GreaterThan(user.ReferralEarnings) {
		return nil, errutil.UnprocessableEntity("insufficient referral earnings", ledger.ErrInsufficientEarnings)
	}

	ref, err := s.seq.NextWithdrawalRef(ctx)
	if err != nil {
		return nil, errutil.Internal("failed to allocate originator reference", err)
	}

	w, err = s.store.ReserveDisbursement(ctx, withdrawalID, ref)
	if err != nil {
		if errors.Is(err, ledger.ErrStateConflict) {
			return nil, errutil.Conflict("withdrawal is no longer pending or has been sent", err)
		}
		return nil, errutil.Internal("failed to reserve withdrawal", err)
	}
	log = log.With(zap.String("originator_ref", ref))

	resp, err := s.provider.Disburse(ctx, w.Amount, w.PhoneNumber, ref)
	if err != nil {
		if gateway.IsRejected(err) {
			disbursements.WithLabelValues("rejected").Inc()
			if rerr := s.store.ReleaseDisbursement(ctx, withdrawalID, ref); rerr != nil {
				log.Error("[Admin] failed to release reservation", zap.Error(rerr))
			}
			log.Warn("[Admin] disbursement rejected", zap.Error(err))
			return nil, errutil.BadGateway("disbursement rejected by provider", err)
		}
		// The provider may have accepted it; the result callback settles it.
		disbursements.WithLabelValues("unknown").Inc()
		log.Error("[Admin] disbursement outcome unknown", zap.Error(err))
		return nil, errutil.GatewayTimeout("disbursement outcome unknown, awaiting provider result", err)
	}

	disbursements.WithLabelValues("accepted").Inc()
	if err := s.store.ConfirmDisbursement(ctx, withdrawalID, ref, resp.OriginatorConversationID, resp.ConversationID); err != nil {
		log.Error("[Admin] failed to record provider identifiers",
			zap.String("conversation_id", resp.ConversationID), zap.Error(err))
	}

	log.Info("[Admin] disbursement issued", zap.String("conversation_id", resp.ConversationID))
	confirmed, err := s.store.GetWithdrawal(ctx, withdrawalID)
	if err != nil {
		return w, nil
	}
	return confirmed, nil
}

// ApproveAll approves every pending, unsent withdrawal in order and reports
// each result. One failure does not stop the rest.
func (s *Service) ApproveAll(ctx context.Context) ([]ApprovalResult, error) {
	if err := s.disbursementsEnabled(ctx); err != nil {
		return nil, err
	}

	pending, err := s.store.Withdrawals().Find(ctx, &ledger.Withdrawal{Status: ledger.WithdrawalPending})
	if err != nil {
		return nil, errutil.Internal("failed to list pending withdrawals", err)
	}

	results := make([]ApprovalResult, 0, len(pending))
	for _, p := range pending {
		if p.TransactionID != nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return results, errutil.Timeout("approval interrupted", err)
		}
		res := ApprovalResult{WithdrawalID: p.ID}
		w, err := s.approve(ctx, p.ID)
		if err != nil {
			res.Error = err.Error()
		} else {
			res.Withdrawal = w
		}
		results = append(results, res)
	}
	return results, nil
}
