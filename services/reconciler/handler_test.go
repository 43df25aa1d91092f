package reconciler

import (
	"context"
	"errors"
	"testing"

	"referralpay/services/intake"
	"referralpay/services/ledger"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func (e *env) record(t *testing.T, id string, kind intake.Kind, payload []byte) {
	t.Helper()
	require.NoError(t, e.queue.Insert(context.Background(), &intake.CallbackRecord{ID: id, Kind: kind, Payload: datatypes.JSON(payload)}))
}

func (e *env) status(t *testing.T, id string) intake.RecordStatus {
	t.Helper()
	rec, err := e.queue.Get(context.Background(), id)
	require.NoError(t, err)
	return rec.Status
}

func reconcileTask(t *testing.T, id string) *asynq.Task {
	t.Helper()
	task, err := intake.NewReconcileTask(id)
	require.NoError(t, err)
	return task
}

func TestHandleReconcileTaskDoubleDelivery(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	h := newHandler(e.queue, e.reconciler, 0)
	e.seedUser(t, "U", 0, 0)
	require.NoError(t, e.store.CreateTransaction(ctx, &ledger.Transaction{UserID: "U", MerchantRequestID: "m-1", Amount: decimal.NewFromInt(250)}))

	// The provider delivered the same callback twice.
	e.record(t, "r1", intake.KindDepositResult, stkCallback("m-1", 0, "QK1"))
	e.record(t, "r2", intake.KindDepositResult, stkCallback("m-1", 0, "QK1"))

	require.NoError(t, h.HandleReconcileTask(ctx, reconcileTask(t, "r1")))
	require.NoError(t, h.HandleReconcileTask(ctx, reconcileTask(t, "r1")))
	require.NoError(t, h.HandleReconcileTask(ctx, reconcileTask(t, "r2")))

	require.Equal(t, intake.StatusProcessed, e.status(t, "r1"))
	require.Equal(t, intake.StatusProcessed, e.status(t, "r2"))
	requireAmount(t, 250, e.user(t, "U").Balance)
}

func TestHandleReconcileTaskBuriesUnknownKey(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	h := newHandler(e.queue, e.reconciler, 0)
	e.record(t, "r1", intake.KindDisbursementResult, b2cResult("missing", 0, 0))

	err := h.HandleReconcileTask(ctx, reconcileTask(t, "r1"))
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.Equal(t, intake.StatusDead, e.status(t, "r1"))
}

func TestHandleReconcileTaskBuriesMalformed(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	h := newHandler(e.queue, e.reconciler, 0)
	e.record(t, "r1", intake.KindDepositResult, []byte(`{"unexpected":true}`))

	err := h.HandleReconcileTask(ctx, reconcileTask(t, "r1"))
	require.ErrorIs(t, err, asynq.SkipRetry)

	rec, err := e.queue.Get(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, intake.StatusDead, rec.Status)
	require.NotEmpty(t, rec.LastError)
}

type applierFunc func(ctx context.Context, kind intake.Kind, payload []byte) (Outcome, error)

func (f applierFunc) Apply(ctx context.Context, kind intake.Kind, payload []byte) (Outcome, error) {
	return f(ctx, kind, payload)
}

func TestHandleReconcileTaskReleasesOnTransientError(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	calls := 0
	h := newHandler(e.queue, applierFunc(func(context.Context, intake.Kind, []byte) (Outcome, error) {
		calls++
		if calls == 1 {
			return OutcomeTransient, errors.New("database is locked")
		}
		return OutcomeApplied, nil
	}), 0)
	e.record(t, "r1", intake.KindDepositResult, stkCallback("m-1", 0, ""))

	err := h.HandleReconcileTask(ctx, reconcileTask(t, "r1"))
	require.Error(t, err)
	require.NotErrorIs(t, err, asynq.SkipRetry)

	rec, err := e.queue.Get(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, intake.StatusReceived, rec.Status)
	require.Equal(t, 1, rec.Attempts)

	require.NoError(t, h.HandleReconcileTask(ctx, reconcileTask(t, "r1")))
	require.Equal(t, intake.StatusProcessed, e.status(t, "r1"))
}

func TestHandleReconcileTaskBadPayload(t *testing.T) {
	e := newEnv(t)
	h := newHandler(e.queue, e.reconciler, 0)

	err := h.HandleReconcileTask(context.Background(), asynq.NewTask("callback:reconcile", []byte(`nope`)))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleReconcileTaskMissingRecord(t *testing.T) {
	e := newEnv(t)
	h := newHandler(e.queue, e.reconciler, 0)

	require.NoError(t, h.HandleReconcileTask(context.Background(), reconcileTask(t, "ghost")))
}
