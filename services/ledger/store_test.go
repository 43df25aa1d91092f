package ledger

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"referralpay/pkg/db/option"
	"referralpay/pkg/db/pagination"
	"referralpay/pkg/repository"
	"referralpay/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db := testutil.NewTestDB(t, Models()...)
	return NewStore(StoreParams{DB: db, Node: testutil.NewNode(t)})
}

func seedUser(t *testing.T, s *Store, id string, balance, earnings int64) *User {
	t.Helper()
	u := &User{
		ID:               id,
		Username:         "user" + id,
		Email:            "user" + id + "@example.com",
		PasswordHash:     "x",
		Role:             RoleUser,
		Balance:          decimal.NewFromInt(balance),
		ReferralEarnings: decimal.NewFromInt(earnings),
	}
	require.NoError(t, s.Users().Create(context.Background(), u))
	return u
}

func reload(t *testing.T, s *Store, id string) *User {
	t.Helper()
	u, err := s.GetUser(context.Background(), id)
	require.NoError(t, err)
	return u
}

func TestCompleteDepositCreditsOnce(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedUser(t, s, "1", 0, 0)
	require.NoError(t, s.CreateTransaction(ctx, &Transaction{UserID: "1", MerchantRequestID: "m-1", Amount: decimal.NewFromInt(500)}))

	receipt := "QKX123"
	txn, applied, err := s.CompleteDeposit(ctx, "m-1", &receipt, "ok")
	require.NoError(t, err)
	require.True(t, applied)
	require.Equal(t, TransactionSuccess, txn.Status)

	_, applied, err = s.CompleteDeposit(ctx, "m-1", &receipt, "ok")
	require.NoError(t, err)
	require.False(t, applied)

	require.True(t, decimal.NewFromInt(500).Equal(reload(t, s, "1").Balance))

	stored, err := s.Transactions().FindOne(ctx, &Transaction{MerchantRequestID: "m-1"})
	require.NoError(t, err)
	require.Equal(t, "QKX123", *stored.ReceiptNumber)
}

func TestCompleteDepositUnknownKey(t *testing.T) {
	s := newTestStore(t)
	_, _, err := s.CompleteDeposit(context.Background(), "missing", nil, "")
	require.ErrorIs(t, err, ErrUnknownCorrelation)
}

func TestCompleteDepositRollsBackWhenUserMissing(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.CreateTransaction(ctx, &Transaction{UserID: "ghost", MerchantRequestID: "m-2", Amount: decimal.NewFromInt(10)}))

	_, _, err := s.CompleteDeposit(ctx, "m-2", nil, "")
	require.ErrorIs(t, err, ErrUserNotFound)

	stored, err := s.Transactions().FindOne(ctx, &Transaction{MerchantRequestID: "m-2"})
	require.NoError(t, err)
	require.Equal(t, TransactionPending, stored.Status)
}

func TestFailDepositAfterSuccessIsNoop(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedUser(t, s, "1", 0, 0)
	require.NoError(t, s.CreateTransaction(ctx, &Transaction{UserID: "1", MerchantRequestID: "m-3", Amount: decimal.NewFromInt(100)}))

	_, applied, err := s.CompleteDeposit(ctx, "m-3", nil, "")
	require.NoError(t, err)
	require.True(t, applied)

	applied, err = s.FailDeposit(ctx, "m-3", "cancelled")
	require.NoError(t, err)
	require.False(t, applied)

	stored, err := s.Transactions().FindOne(ctx, &Transaction{MerchantRequestID: "m-3"})
	require.NoError(t, err)
	require.Equal(t, TransactionSuccess, stored.Status)
}

func TestCreateWithdrawalRejectsOverdraw(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedUser(t, s, "1", 0, 300)

	err := s.CreateWithdrawal(ctx, &Withdrawal{UserID: "1", Amount: decimal.NewFromInt(301), PhoneNumber: "254700000001"})
	require.ErrorIs(t, err, ErrInsufficientEarnings)

	err = s.CreateWithdrawal(ctx, &Withdrawal{UserID: "1", Amount: decimal.Zero, PhoneNumber: "254700000001"})
	require.ErrorIs(t, err, ErrInvalidAmount)

	w := &Withdrawal{UserID: "1", Amount: decimal.NewFromInt(300), PhoneNumber: "254700000001"}
	require.NoError(t, s.CreateWithdrawal(ctx, w))
	require.Equal(t, WithdrawalPending, w.Status)
}

func TestDisbursementLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedUser(t, s, "1", 0, 300)

	w := &Withdrawal{UserID: "1", Amount: decimal.NewFromInt(200), PhoneNumber: "254700000001"}
	require.NoError(t, s.CreateWithdrawal(ctx, w))

	reserved, err := s.ReserveDisbursement(ctx, w.ID, "WD-1")
	require.NoError(t, err)
	require.Equal(t, "WD-1", *reserved.TransactionID)

	_, err = s.ReserveDisbursement(ctx, w.ID, "WD-2")
	require.ErrorIs(t, err, ErrStateConflict)

	require.NoError(t, s.ConfirmDisbursement(ctx, w.ID, "WD-1", "AG_1", "conv-1"))

	approved, applied, err := s.ApproveWithdrawal(ctx, "AG_1", "RKT1", "done")
	require.NoError(t, err)
	require.True(t, applied)
	require.Equal(t, WithdrawalApproved, approved.Status)
	require.True(t, decimal.NewFromInt(100).Equal(reload(t, s, "1").ReferralEarnings))

	// a late timeout must not revert the approval
	applied, err = s.FailWithdrawal(ctx, "AG_1", "timeout")
	require.NoError(t, err)
	require.False(t, applied)

	_, applied, err = s.ApproveWithdrawal(ctx, "AG_1", "RKT1", "done")
	require.NoError(t, err)
	require.False(t, applied)
	require.True(t, decimal.NewFromInt(100).Equal(reload(t, s, "1").ReferralEarnings))
}

func TestApproveWithdrawalNeverOverdraws(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedUser(t, s, "1", 0, 300)

	w := &Withdrawal{UserID: "1", Amount: decimal.NewFromInt(300), PhoneNumber: "254700000001"}
	require.NoError(t, s.CreateWithdrawal(ctx, w))
	_, err := s.ReserveDisbursement(ctx, w.ID, "WD-1")
	require.NoError(t, err)

	// earnings drained by some other path in the meantime
	require.NoError(t, s.db.Model(&User{}).Where("id = ?", "1").Update("referral_earnings", decimal.NewFromInt(50)).Error)

	_, _, err = s.ApproveWithdrawal(ctx, "WD-1", "RKT", "")
	require.ErrorIs(t, err, ErrInsufficientEarnings)

	stored, err := s.Withdrawals().FindOne(ctx, &Withdrawal{ID: w.ID})
	require.NoError(t, err)
	require.Equal(t, WithdrawalPending, stored.Status)
	require.True(t, decimal.NewFromInt(50).Equal(reload(t, s, "1").ReferralEarnings))
}

func TestReleaseAndSuspend(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedUser(t, s, "1", 0, 300)

	w := &Withdrawal{UserID: "1", Amount: decimal.NewFromInt(100), PhoneNumber: "254700000001"}
	require.NoError(t, s.CreateWithdrawal(ctx, w))

	_, err := s.ReserveDisbursement(ctx, w.ID, "WD-1")
	require.NoError(t, err)
	require.ErrorIs(t, s.SuspendWithdrawal(ctx, w.ID), ErrStateConflict)

	require.NoError(t, s.ReleaseDisbursement(ctx, w.ID, "WD-1"))
	require.NoError(t, s.SuspendWithdrawal(ctx, w.ID))

	stored, err := s.Withdrawals().FindOne(ctx, &Withdrawal{ID: w.ID})
	require.NoError(t, err)
	require.Equal(t, WithdrawalFailed, stored.Status)
	require.Nil(t, stored.TransactionID)
}

func TestFailWithdrawalUnknownKey(t *testing.T) {
	s := newTestStore(t)
	_, err := s.FailWithdrawal(context.Background(), "nope", "")
	require.ErrorIs(t, err, ErrUnknownCorrelation)
}

func TestEmptyKeysMatchNothing(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedUser(t, s, "1", 0, 0)

	_, err := s.GetUser(ctx, "")
	require.ErrorIs(t, err, ErrUserNotFound)

	_, err = s.GetWithdrawal(ctx, "")
	require.ErrorIs(t, err, ErrWithdrawalNotFound)
	require.True(t, IsNotFound(err))

	_, err = s.Users().FindOne(ctx, &User{})
	require.ErrorIs(t, err, repository.ErrUnboundedQuery)

	u, err := s.Users().FindOne(ctx, nil, option.Equal("username", ""))
	require.NoError(t, err)
	require.Nil(t, u)

	_, _, err = s.CompleteDeposit(ctx, "", nil, "")
	require.ErrorIs(t, err, ErrUnknownCorrelation)
}

func TestThreshold(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Threshold(ctx)
	require.ErrorIs(t, err, ErrThresholdNotConfigured)

	require.NoError(t, s.SetThreshold(ctx, decimal.NewFromInt(1000)))
	require.NoError(t, s.SetThreshold(ctx, decimal.NewFromInt(1500)))

	got, err := s.Threshold(ctx)
	require.NoError(t, err)
	require.True(t, decimal.NewFromInt(1500).Equal(got))

	require.ErrorIs(t, s.SetThreshold(ctx, decimal.NewFromInt(-1)), ErrInvalidAmount)
}

func TestReferralPrimitives(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedUser(t, s, "b", 1000, 0)

	ref := &Referral{ID: "r1", ReferrerID: "b", ReferredID: "a", Tier: Tier1, Status: ReferralPending}
	require.NoError(t, s.Referrals().Create(ctx, ref))

	ok, err := s.MarkReferralSuccessful(s.db, "r1")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = s.MarkReferralSuccessful(s.db, "r1")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = s.CreateSuccessfulReferral(s.db, "c", "a", Tier2)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = s.CreateSuccessfulReferral(s.db, "c", "a", Tier2)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.CreditReferralEarnings(s.db, "b", decimal.RequireFromString("300.00")))
	require.True(t, decimal.NewFromInt(300).Equal(reload(t, s, "b").ReferralEarnings))
	require.ErrorIs(t, s.CreditReferralEarnings(s.db, "zzz", decimal.NewFromInt(1)), ErrUserNotFound)
}

func TestListWithdrawalsPaginates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedUser(t, s, "1", 0, 1000)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.CreateWithdrawal(ctx, &Withdrawal{UserID: "1", Amount: decimal.NewFromInt(10), PhoneNumber: "254700000001"}))
	}

	page, info, err := s.ListWithdrawals(ctx, &Withdrawal{Status: WithdrawalPending}, pagination.Pagination{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.True(t, info.HasMore)

	rest, info, err := s.ListWithdrawals(ctx, &Withdrawal{Status: WithdrawalPending}, pagination.Pagination{Limit: 2, Cursor: info.NextCursor})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	require.False(t, info.HasMore)
	require.NotEqual(t, page[0].ID, rest[0].ID)
	require.NotEqual(t, page[1].ID, rest[0].ID)
}

func TestListReferrals(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedUser(t, s, "A", 0, 0)
	seedUser(t, s, "B", 0, 0)
	seedUser(t, s, "C", 0, 0)
	require.NoError(t, s.Referrals().Create(ctx, &Referral{ID: "r1", ReferrerID: "A", ReferredID: "B", Tier: Tier1, Status: ReferralPending}))
	require.NoError(t, s.Referrals().Create(ctx, &Referral{ID: "r2", ReferrerID: "A", ReferredID: "C", Tier: Tier2, Status: ReferralSuccessful}))

	rows, err := s.ListReferrals(ctx, "A")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "userB", rows[0].Username)
	require.Equal(t, ReferralPending, rows[0].Status)
}
