package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"referralpay/pkg/db/option"
	"referralpay/pkg/db/pagination"
	"referralpay/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the transactional persistence layer for balances, deposits,
// withdrawals, referrals and settings.
type Store struct {
	db   *gorm.DB
	node *snowflake.Node

	users        repository.Repository[User]
	transactions repository.Repository[Transaction]
	withdrawals  repository.Repository[Withdrawal]
	referrals    repository.Repository[Referral]
	settings     repository.Repository[Setting]

	txOptions *sql.TxOptions
}

type StoreParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewStore(p StoreParams) *Store {
	return &Store{
		db:           p.DB,
		node:         p.Node,
		users:        repository.ProvideStore[User](p.DB),
		transactions: repository.ProvideStore[Transaction](p.DB),
		withdrawals:  repository.ProvideStore[Withdrawal](p.DB),
		referrals:    repository.ProvideStore[Referral](p.DB),
		settings:     repository.ProvideStore[Setting](p.DB),
		txOptions:    &sql.TxOptions{Isolation: sql.LevelSerializable},
	}
}

func (s *Store) Migrate() error {
	return s.db.AutoMigrate(Models()...)
}

func (s *Store) NewID() string {
	return s.node.Generate().String()
}

// Atomic runs fn in one serializable transaction. Any error rolls back every
// statement fn issued.
func (s *Store) Atomic(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(fn, s.txOptions)
}

func (s *Store) Users() repository.Repository[User]               { return s.users }
func (s *Store) Transactions() repository.Repository[Transaction] { return s.transactions }
func (s *Store) Withdrawals() repository.Repository[Withdrawal]   { return s.withdrawals }
func (s *Store) Referrals() repository.Repository[Referral]       { return s.referrals }

// GetUser returns ErrUserNotFound when id does not exist.
func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	if id == "" {
		return nil, ErrUserNotFound
	}
	u, err := s.users.FindOne(ctx, nil, option.Equal("id", id))
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	return u, nil
}

// GetWithdrawal returns ErrWithdrawalNotFound when id does not exist.
func (s *Store) GetWithdrawal(ctx context.Context, id string) (*Withdrawal, error) {
	if id == "" {
		return nil, ErrWithdrawalNotFound
	}
	w, err := s.withdrawals.FindOne(ctx, nil, option.Equal("id", id))
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, ErrWithdrawalNotFound
	}
	return w, nil
}

// Deposits

func (s *Store) CreateTransaction(ctx context.Context, t *Transaction) error {
	if t.ID == "" {
		t.ID = s.NewID()
	}
	t.Status = TransactionPending
	return s.transactions.Create(ctx, t)
}

// CompleteDeposit marks a pending deposit successful and credits the
// depositor's balance in one unit. applied is false when the deposit had
// already reached a terminal state.
func (s *Store) CompleteDeposit(ctx context.Context, merchantRequestID string, receipt *string, resultDesc string) (txn *Transaction, applied bool, err error) {
	err = s.Atomic(ctx, func(tx *gorm.DB) error {
		txn, err = s.transactions.WithTrx(tx).FindOne(ctx, nil, option.Equal("merchant_request_id", merchantRequestID))
		if err != nil {
			return err
		}
		if txn == nil {
			return ErrUnknownCorrelation
		}

		res := tx.Model(&Transaction{}).
			Where("merchant_request_id = ? AND status = ?", merchantRequestID, TransactionPending).
			Updates(map[string]any{
				"status":         TransactionSuccess,
				"receipt_number": receipt,
				"result_desc":    resultDesc,
				"updated_at":     time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		if err := s.credit(tx, txn.UserID, "balance", txn.Amount); err != nil {
			return err
		}

		applied = true
		txn.Status = TransactionSuccess
		txn.ReceiptNumber = receipt
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return txn, applied, nil
}

// FailDeposit marks a pending deposit failed. No balance changes.
func (s *Store) FailDeposit(ctx context.Context, merchantRequestID, resultDesc string) (applied bool, err error) {
	err = s.Atomic(ctx, func(tx *gorm.DB) error {
		exists, err := s.transactions.WithTrx(tx).Count(ctx, nil, option.Equal("merchant_request_id", merchantRequestID))
		if err != nil {
			return err
		}
		if exists == 0 {
			return ErrUnknownCorrelation
		}

		res := tx.Model(&Transaction{}).
			Where("merchant_request_id = ? AND status = ?", merchantRequestID, TransactionPending).
			Updates(map[string]any{
				"status":      TransactionFailed,
				"result_desc": resultDesc,
				"updated_at":  time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		applied = res.RowsAffected > 0
		return nil
	})
	return applied, err
}

// Withdrawals

// CreateWithdrawal records a pending request after checking it against the
// user's current referral earnings.
func (s *Store) CreateWithdrawal(ctx context.Context, w *Withdrawal) error {
	if !w.Amount.IsPositive() {
		return ErrInvalidAmount
	}

	return s.Atomic(ctx, func(tx *gorm.DB) error {
		u, err := s.users.WithTrx(tx).FindOne(ctx, nil, option.Equal("id", w.UserID), option.WithLockingUpdate())
		if err != nil {
			return err
		}
		if u == nil {
			return ErrUserNotFound
		}
		if w.Amount.GreaterThan(u.ReferralEarnings) {
			return ErrInsufficientEarnings
		}

		if w.ID == "" {
			w.ID = s.NewID()
		}
		w.Status = WithdrawalPending
		w.TransactionID = nil
		return s.withdrawals.WithTrx(tx).Create(ctx, w)
	})
}

// ReserveDisbursement stamps a pending withdrawal with the originator
// correlation id before the provider is called, so a withdrawal can only
// ever be disbursed once.
func (s *Store) ReserveDisbursement(ctx context.Context, withdrawalID, correlationID string) (*Withdrawal, error) {
	var w *Withdrawal
	err := s.Atomic(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&Withdrawal{}).
			Where("id = ? AND status = ? AND transaction_id IS NULL", withdrawalID, WithdrawalPending).
			Updates(map[string]any{"transaction_id": correlationID, "updated_at": time.Now()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrStateConflict
		}

		var err error
		w, err = s.withdrawals.WithTrx(tx).FindOne(ctx, nil, option.Equal("id", withdrawalID))
		return err
	})
	return w, err
}

// ReleaseDisbursement clears a reservation whose provider call failed.
func (s *Store) ReleaseDisbursement(ctx context.Context, withdrawalID, correlationID string) error {
	return s.db.WithContext(ctx).Model(&Withdrawal{}).
		Where("id = ? AND status = ? AND transaction_id = ?", withdrawalID, WithdrawalPending, correlationID).
		Updates(map[string]any{"transaction_id": nil, "updated_at": time.Now()}).Error
}

// ConfirmDisbursement records the identifiers the provider assigned. The
// provider may echo a different originator id than the one reserved.
func (s *Store) ConfirmDisbursement(ctx context.Context, withdrawalID, reserved, originatorID, conversationID string) error {
	updates := map[string]any{"conversation_id": conversationID, "updated_at": time.Now()}
	if originatorID != "" && originatorID != reserved {
		updates["transaction_id"] = originatorID
	}
	return s.db.WithContext(ctx).Model(&Withdrawal{}).
		Where("id = ? AND transaction_id = ?", withdrawalID, reserved).
		Updates(updates).Error
}

// ApproveWithdrawal applies a successful disbursement result: the withdrawal
// becomes approved and the user's referral earnings are debited in one unit.
func (s *Store) ApproveWithdrawal(ctx context.Context, correlationID, providerTxnID, resultDesc string) (w *Withdrawal, applied bool, err error) {
	err = s.Atomic(ctx, func(tx *gorm.DB) error {
		w, err = s.withdrawals.WithTrx(tx).FindOne(ctx, nil, option.Equal("transaction_id", correlationID))
		if err != nil {
			return err
		}
		if w == nil {
			return ErrUnknownCorrelation
		}

		updates := map[string]any{
			"status":      WithdrawalApproved,
			"result_desc": resultDesc,
			"updated_at":  time.Now(),
		}
		if providerTxnID != "" {
			updates["provider_transaction_id"] = providerTxnID
		}
		res := tx.Model(&Withdrawal{}).
			Where("transaction_id = ? AND status = ?", correlationID, WithdrawalPending).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		if err := s.DebitReferralEarnings(tx, w.UserID, w.Amount); err != nil {
			return err
		}

		applied = true
		w.Status = WithdrawalApproved
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return w, applied, nil
}

// FailWithdrawal marks the withdrawal behind correlationID failed.
func (s *Store) FailWithdrawal(ctx context.Context, correlationID, resultDesc string) (applied bool, err error) {
	err = s.Atomic(ctx, func(tx *gorm.DB) error {
		exists, err := s.withdrawals.WithTrx(tx).Count(ctx, nil, option.Equal("transaction_id", correlationID))
		if err != nil {
			return err
		}
		if exists == 0 {
			return ErrUnknownCorrelation
		}

		res := tx.Model(&Withdrawal{}).
			Where("transaction_id = ? AND status = ?", correlationID, WithdrawalPending).
			Updates(map[string]any{
				"status":      WithdrawalFailed,
				"result_desc": resultDesc,
				"updated_at":  time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		applied = res.RowsAffected > 0
		return nil
	})
	return applied, err
}

// SuspendWithdrawal fails a pending withdrawal that has not been sent to the
// provider yet.
func (s *Store) SuspendWithdrawal(ctx context.Context, withdrawalID string) error {
	res := s.db.WithContext(ctx).Model(&Withdrawal{}).
		Where("id = ? AND status = ? AND transaction_id IS NULL", withdrawalID, WithdrawalPending).
		Updates(map[string]any{
			"status":      WithdrawalFailed,
			"result_desc": "suspended by admin",
			"updated_at":  time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStateConflict
	}
	return nil
}

func (s *Store) ListWithdrawals(ctx context.Context, filter *Withdrawal, page pagination.Pagination) ([]*Withdrawal, *pagination.PageInfo, error) {
	page = page.Normalize()
	rows, err := s.withdrawals.Find(ctx, filter, option.ApplyPagination(page))
	if err != nil {
		return nil, nil, err
	}
	rows, info := pagination.Trim(rows, page.Limit, func(w *Withdrawal) pagination.Cursor {
		return pagination.Cursor{CreatedAt: w.CreatedAt, ID: w.ID}
	})
	return rows, info, nil
}

func (s *Store) ListUsers(ctx context.Context, page pagination.Pagination) ([]*User, *pagination.PageInfo, error) {
	page = page.Normalize()
	rows, err := s.users.Find(ctx, &User{}, option.ApplyPagination(page))
	if err != nil {
		return nil, nil, err
	}
	rows, info := pagination.Trim(rows, page.Limit, func(u *User) pagination.Cursor {
		return pagination.Cursor{CreatedAt: u.CreatedAt, ID: u.ID}
	})
	return rows, info, nil
}

// Referrals

// MarkReferralSuccessful transitions a pending referral. It reports false
// when another writer already did.
func (s *Store) MarkReferralSuccessful(tx *gorm.DB, referralID string) (bool, error) {
	res := tx.Model(&Referral{}).
		Where("id = ? AND status = ?", referralID, ReferralPending).
		Updates(map[string]any{"status": ReferralSuccessful, "updated_at": time.Now()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// CreateSuccessfulReferral inserts an already-qualified referral row. It
// reports false when a row for the same pair and tier exists.
func (s *Store) CreateSuccessfulReferral(tx *gorm.DB, referrerID, referredID string, tier int) (bool, error) {
	r := &Referral{
		ID:         s.NewID(),
		ReferrerID: referrerID,
		ReferredID: referredID,
		Tier:       tier,
		Status:     ReferralSuccessful,
	}
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(r)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) CreditReferralEarnings(tx *gorm.DB, userID string, amount decimal.Decimal) error {
	return s.credit(tx, userID, "referral_earnings", amount)
}

func (s *Store) credit(tx *gorm.DB, userID, column string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	res := tx.Model(&User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			column:       gorm.Expr(column+" + ?", amount),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// DebitReferralEarnings never takes earnings below zero; it fails with
// ErrInsufficientEarnings instead.
func (s *Store) DebitReferralEarnings(tx *gorm.DB, userID string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	res := tx.Model(&User{}).
		Where("id = ? AND referral_earnings >= ?", userID, amount).
		Updates(map[string]any{
			"referral_earnings": gorm.Expr("referral_earnings - ?", amount),
			"updated_at":        time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInsufficientEarnings
	}
	return nil
}

// Settings

// Threshold returns the initial deposit amount that qualifies a referral.
func (s *Store) Threshold(ctx context.Context) (decimal.Decimal, error) {
	setting, err := s.settings.FindOne(ctx, nil, option.Equal("name", SettingInitialDeposit))
	if err != nil {
		return decimal.Zero, err
	}
	if setting == nil {
		return decimal.Zero, ErrThresholdNotConfigured
	}
	amount, err := decimal.NewFromString(setting.Value)
	if err != nil || !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrThresholdNotConfigured, setting.Value)
	}
	return amount, nil
}

func (s *Store) SetThreshold(ctx context.Context, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&Setting{Name: SettingInitialDeposit, Value: amount.StringFixed(2), UpdatedAt: time.Now()}).Error
}

// ReferralView is a referral joined with the referred user's name.
type ReferralView struct {
	ReferredID string         `json:"referred_id"`
	Username   string         `json:"username"`
	Status     ReferralStatus `json:"status"`
	CreatedAt  time.Time      `json:"created_at"`
}

// ListReferrals returns the tier-1 referrals made by referrerID, newest first.
func (s *Store) ListReferrals(ctx context.Context, referrerID string) ([]ReferralView, error) {
	var rows []ReferralView
	err := s.db.WithContext(ctx).
		Table("referrals AS r").
		Select("r.referred_id, u.username, r.status, r.created_at").
		Joins("LEFT JOIN users u ON u.id = r.referred_id").
		Where("r.referrer_id = ? AND r.referral_tier = ?", referrerID, Tier1).
		Order("r.created_at DESC").
		Scan(&rows).Error
	return rows, err
}

// IsNotFound reports whether err means the addressed row does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrWithdrawalNotFound) || errors.Is(err, ErrUnknownCorrelation) || errors.Is(err, gorm.ErrRecordNotFound)
}
