package payment

import (
	"context"
	"errors"

	"referralpay/pkg/auth"
	"referralpay/pkg/config"
	"referralpay/pkg/db/option"
	"referralpay/pkg/db/pagination"
	"referralpay/pkg/errutil"
	"referralpay/pkg/logger"
	"referralpay/pkg/sequence"
	"referralpay/services/gateway"
	"referralpay/services/ledger"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const depositDescription = "Account deposit"

var defaultMinDeposit = decimal.NewFromInt(50)

type DepositRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	PhoneNumber string          `json:"phone_number"`
}

type WithdrawalRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	PhoneNumber string          `json:"phone_number"`
}

type Service struct {
	store      *ledger.Store
	provider   gateway.Provider
	seq        sequence.Generator
	minDeposit decimal.Decimal
}

type Params struct {
	fx.In
	Store    *ledger.Store
	Provider gateway.Provider
	Sequence sequence.Generator
	Config   *config.Config
}

func NewService(p Params) *Service {
	min := p.Config.Payment.MinDeposit
	if !min.IsPositive() {
		min = defaultMinDeposit
	}
	return &Service{store: p.Store, provider: p.Provider, seq: p.Sequence, minDeposit: min}
}

func principal(ctx context.Context) (auth.Principal, error) {
	p, ok := auth.FromContext(ctx)
	if !ok {
		return auth.Principal{}, errutil.Unauthorized("missing principal", nil)
	}
	return p, nil
}

// Deposit sends a push payment to the user's phone and records the pending
// deposit under the provider's MerchantRequestID.
func (s *Service) Deposit(ctx context.Context, req DepositRequest) (*ledger.Transaction, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}

	if req.Amount.LessThan(s.minDeposit) {
		return nil, errutil.ValidationFailed("amount is below the minimum deposit", nil,
			errutil.WithDetails(errutil.Detail{Field: "amount", Message: "minimum is " + s.minDeposit.String()}))
	}
	if !req.Amount.Equal(req.Amount.Truncate(0)) {
		return nil, errutil.ValidationFailed("amount must be a whole number", gateway.ErrInvalidAmount)
	}
	phone, err := gateway.NormalizePhone(req.PhoneNumber)
	if err != nil {
		return nil, errutil.ValidationFailed("invalid phone number", err,
			errutil.WithDetails(errutil.Detail{Field: "phone_number", Message: err.Error()}))
	}

	ref, err := s.seq.NextDepositRef(ctx)
	if err != nil {
		return nil, errutil.Internal("failed to allocate deposit reference", err)
	}

	log := logger.FromContext(ctx).With(zap.String("user_id", p.UserID), zap.String("reference", ref))

	resp, err := s.provider.Deposit(ctx, req.Amount, phone, ref, depositDescription)
	if err != nil {
		log.Error("[Payment] deposit initiation failed", zap.Error(err))
		return nil, gatewayError("failed to initiate deposit", err)
	}

	txn := &ledger.Transaction{
		UserID:            p.UserID,
		MerchantRequestID: resp.MerchantRequestID,
		CheckoutRequestID: resp.CheckoutRequestID,
		Reference:         ref,
		Amount:            req.Amount,
		PhoneNumber:       phone,
	}
	if err := s.store.CreateTransaction(ctx, txn); err != nil {
		// The push is already on the customer's phone; its callback will be
		// buried as unknown.
		log.Error("[Payment] failed to record deposit",
			zap.String("merchant_request_id", resp.MerchantRequestID), zap.Error(err))
		return nil, errutil.Internal("failed to record deposit", err)
	}

	log.Info("[Payment] deposit initiated", zap.String("merchant_request_id", resp.MerchantRequestID))
	return txn, nil
}

// DepositStatus returns one of the caller's deposits.
func (s *Service) DepositStatus(ctx context.Context, merchantRequestID string) (*ledger.Transaction, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}

	if merchantRequestID == "" {
		return nil, errutil.NotFound("deposit not found", nil)
	}

	txn, err := s.store.Transactions().FindOne(ctx, nil, option.Equal("merchant_request_id", merchantRequestID))
	if err != nil {
		return nil, errutil.Internal("failed to load deposit", err)
	}
	if txn == nil || txn.UserID != p.UserID {
		return nil, errutil.NotFound("deposit not found", nil)
	}
	return txn, nil
}

// RequestWithdrawal records a pending withdrawal for admin review. Nothing
// is sent to the provider here.
func (s *Service) RequestWithdrawal(ctx context.Context, req WithdrawalRequest) (*ledger.Withdrawal, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}

	if !req.Amount.IsPositive() || !req.Amount.Equal(req.Amount.Truncate(0)) {
		return nil, errutil.ValidationFailed("amount must be a positive whole number", nil,
			errutil.WithDetails(errutil.Detail{Field: "amount", Message: "invalid amount"}))
	}
	phone, err := gateway.NormalizePhone(req.PhoneNumber)
	if err != nil {
		return nil, errutil.ValidationFailed("invalid phone number", err,
			errutil.WithDetails(errutil.Detail{Field: "phone_number", Message: err.Error()}))
	}

	w := &ledger.Withdrawal{UserID: p.UserID, Amount: req.Amount, PhoneNumber: phone}
	if err := s.store.CreateWithdrawal(ctx, w); err != nil {
		switch {
		case errors.Is(err, ledger.ErrInsufficientEarnings):
			return nil, errutil.UnprocessableEntity("insufficient referral earnings", err)
		case errors.Is(err, ledger.ErrUserNotFound):
			return nil, errutil.NotFound("user not found", err)
		default:
			return nil, errutil.Internal("failed to record withdrawal", err)
		}
	}

	logger.FromContext(ctx).Info("[Payment] withdrawal requested",
		zap.String("user_id", p.UserID), zap.String("withdrawal_id", w.ID))
	return w, nil
}

func (s *Service) ListWithdrawals(ctx context.Context, page pagination.Pagination) ([]*ledger.Withdrawal, *pagination.PageInfo, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, nil, err
	}
	rows, info, err := s.store.ListWithdrawals(ctx, &ledger.Withdrawal{UserID: p.UserID}, page)
	if err != nil {
		return nil, nil, errutil.Internal("failed to list withdrawals", err)
	}
	return rows, info, nil
}

func gatewayError(msg string, err error) error {
	switch {
	case errors.Is(err, gateway.ErrInvalidPhone), errors.Is(err, gateway.ErrInvalidAmount):
		return errutil.ValidationFailed(msg, err)
	}
	var ge *gateway.GatewayError
	if errors.As(err, &ge) && ge.StatusCode == 0 {
		return errutil.GatewayTimeout(msg, err)
	}
	return errutil.BadGateway(msg, err)
}
