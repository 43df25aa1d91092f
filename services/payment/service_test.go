package payment

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"testing"

	"referralpay/pkg/auth"
	"referralpay/pkg/config"
	"referralpay/pkg/db/pagination"
	"referralpay/pkg/errutil"
	"referralpay/services/gateway"
	"referralpay/services/gateway/mock"
	"referralpay/services/ledger"
	"referralpay/services/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeSequence struct{ n int }

func (f *fakeSequence) NextWithdrawalRef(context.Context) (string, error) {
	f.n++
	return "WD-TEST-" + strconv.Itoa(f.n), nil
}

func (f *fakeSequence) NextDepositRef(context.Context) (string, error) {
	f.n++
	return "DP-TEST-" + strconv.Itoa(f.n), nil
}

type env struct {
	svc      *Service
	store    *ledger.Store
	provider *mock.MockProvider
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := testutil.NewTestDB(t, ledger.Models()...)
	store := ledger.NewStore(ledger.StoreParams{DB: db, Node: testutil.NewNode(t)})
	provider := mock.NewMockProvider(gomock.NewController(t))

	svc := NewService(Params{Store: store, Provider: provider, Sequence: &fakeSequence{}, Config: &config.Config{}})
	require.NoError(t, store.Users().Create(context.Background(), &ledger.User{
		ID:               "1",
		Username:         "alice",
		Email:            "alice@example.com",
		PasswordHash:     "x",
		Role:             ledger.RoleUser,
		ReferralEarnings: decimal.NewFromInt(300),
	}))
	return &env{svc: svc, store: store, provider: provider}
}

func asUser(id string) context.Context {
	return auth.WithPrincipal(context.Background(), auth.Principal{UserID: id, Role: auth.RoleUser})
}

func requireCode(t *testing.T, want errutil.CoreStatus, err error) {
	t.Helper()
	be, ok := errutil.As(err)
	require.True(t, ok, "expected BaseError, got %v", err)
	require.Equal(t, want, be.Code)
}

func TestDepositRecordsPendingTransaction(t *testing.T) {
	e := newEnv(t)
	ctx := asUser("1")

	e.provider.EXPECT().
		Deposit(gomock.Any(), decimal.NewFromInt(1000), "254712345678", "DP-TEST-1", depositDescription).
		Return(&gateway.DepositResponse{MerchantRequestID: "m-1", CheckoutRequestID: "c-1", ResponseCode: "0"}, nil)

	txn, err := e.svc.Deposit(ctx, DepositRequest{Amount: decimal.NewFromInt(1000), PhoneNumber: "0712345678"})
	require.NoError(t, err)
	require.Equal(t, ledger.TransactionPending, txn.Status)

	got, err := e.svc.DepositStatus(ctx, "m-1")
	require.NoError(t, err)
	require.Equal(t, "c-1", got.CheckoutRequestID)
	require.Equal(t, "DP-TEST-1", got.Reference)

	_, err = e.svc.DepositStatus(asUser("2"), "m-1")
	requireCode(t, errutil.StatusNotFound, err)

	// An empty id must not fall through to the caller's first deposit.
	_, err = e.svc.DepositStatus(ctx, "")
	requireCode(t, errutil.StatusNotFound, err)
}

func TestDepositValidation(t *testing.T) {
	e := newEnv(t)
	ctx := asUser("1")

	_, err := e.svc.Deposit(ctx, DepositRequest{Amount: decimal.NewFromInt(49), PhoneNumber: "0712345678"})
	requireCode(t, errutil.StatusValidationFailed, err)

	_, err = e.svc.Deposit(ctx, DepositRequest{Amount: decimal.RequireFromString("50.5"), PhoneNumber: "0712345678"})
	requireCode(t, errutil.StatusValidationFailed, err)

	_, err = e.svc.Deposit(ctx, DepositRequest{Amount: decimal.NewFromInt(100), PhoneNumber: "12345"})
	requireCode(t, errutil.StatusValidationFailed, err)

	_, err = e.svc.Deposit(context.Background(), DepositRequest{Amount: decimal.NewFromInt(100), PhoneNumber: "0712345678"})
	requireCode(t, errutil.StatusUnauthorized, err)
}

func TestDepositGatewayFailureRecordsNothing(t *testing.T) {
	e := newEnv(t)

	e.provider.EXPECT().Deposit(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, &gateway.GatewayError{Op: "stkpush", StatusCode: http.StatusInternalServerError, Err: errors.New("boom")})
	_, err := e.svc.Deposit(asUser("1"), DepositRequest{Amount: decimal.NewFromInt(100), PhoneNumber: "0712345678"})
	requireCode(t, errutil.StatusBadGateway, err)

	e.provider.EXPECT().Deposit(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, &gateway.GatewayError{Op: "stkpush", Err: context.DeadlineExceeded})
	_, err = e.svc.Deposit(asUser("1"), DepositRequest{Amount: decimal.NewFromInt(100), PhoneNumber: "0712345678"})
	requireCode(t, errutil.StatusGatewayTimeout, err)

	n, err := e.store.Transactions().Count(context.Background(), &ledger.Transaction{})
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestRequestWithdrawal(t *testing.T) {
	e := newEnv(t)
	ctx := asUser("1")

	w, err := e.svc.RequestWithdrawal(ctx, WithdrawalRequest{Amount: decimal.NewFromInt(200), PhoneNumber: "+254712345678"})
	require.NoError(t, err)
	require.Equal(t, ledger.WithdrawalPending, w.Status)
	require.Nil(t, w.TransactionID)

	_, err = e.svc.RequestWithdrawal(ctx, WithdrawalRequest{Amount: decimal.NewFromInt(301), PhoneNumber: "0712345678"})
	requireCode(t, errutil.StatusUnprocessableEntity, err)

	_, err = e.svc.RequestWithdrawal(ctx, WithdrawalRequest{Amount: decimal.Zero, PhoneNumber: "0712345678"})
	requireCode(t, errutil.StatusValidationFailed, err)

	rows, _, err := e.svc.ListWithdrawals(ctx, pagination.Pagination{})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	rows, _, err = e.svc.ListWithdrawals(asUser("2"), pagination.Pagination{})
	require.NoError(t, err)
	require.Empty(t, rows)
}
