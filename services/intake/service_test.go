package intake

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"referralpay/pkg/taskname"
	"referralpay/services/testutil"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type mockEnqueuer struct {
	enqueueFn func(ctx context.Context, t *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	tasks     []*asynq.Task
}

func (m *mockEnqueuer) Enqueue(ctx context.Context, t *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	m.tasks = append(m.tasks, t)
	if m.enqueueFn != nil {
		return m.enqueueFn(ctx, t, opts...)
	}
	return &asynq.TaskInfo{ID: "task"}, nil
}

func newTestService(t *testing.T, enq *mockEnqueuer) (*Service, *Queue) {
	t.Helper()
	db := testutil.NewTestDB(t, &CallbackRecord{})
	q := NewQueue(QueueParams{DB: db})
	return NewService(ServiceParams{Queue: q, Enqueuer: enq, Node: testutil.NewNode(t)}), q
}

func countRecords(t *testing.T, q *Queue) int64 {
	t.Helper()
	var n int64
	require.NoError(t, q.db.Model(&CallbackRecord{}).Count(&n).Error)
	return n
}

func TestAcceptPersistsAndEnqueues(t *testing.T) {
	enq := &mockEnqueuer{}
	svc, q := newTestService(t, enq)

	raw := []byte(`{"Body":{"stkCallback":{"MerchantRequestID":"m-1","ResultCode":0}}}`)
	id, err := svc.Accept(context.Background(), KindDepositResult, raw)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	rec, err := q.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, StatusReceived, rec.Status)
	require.Equal(t, KindDepositResult, rec.Kind)
	require.JSONEq(t, string(raw), string(rec.Payload))

	require.Len(t, enq.tasks, 1)
	require.Equal(t, taskname.CallbackReconcile, enq.tasks[0].Type())
	var payload ReconcilePayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
	require.Equal(t, id, payload.RecordID)
}

func TestAcceptMalformedWritesNothing(t *testing.T) {
	enq := &mockEnqueuer{}
	svc, q := newTestService(t, enq)

	for _, raw := range []string{``, `not json`, `[1,2]`, `"str"`, `null`, `{"a":`} {
		_, err := svc.Accept(context.Background(), KindDepositResult, []byte(raw))
		require.ErrorIs(t, err, ErrMalformedPayload, raw)
	}

	_, err := svc.Accept(context.Background(), Kind("bogus"), []byte(`{}`))
	require.ErrorIs(t, err, ErrMalformedPayload)

	require.Zero(t, countRecords(t, q))
	require.Empty(t, enq.tasks)
}

func TestAcceptRejectsNUL(t *testing.T) {
	enq := &mockEnqueuer{}
	svc, q := newTestService(t, enq)

	for _, raw := range []string{
		`{"Body":{"stkCallback":{"ResultDesc":"ok\u0000"}}}`,
		`{"Result":{"ResultParameters":{"ResultParameter":[{"Key":"x","Value":"\u0000"}]}}}`,
		`{"bad\u0000key":1}`,
	} {
		_, err := svc.Accept(context.Background(), KindDepositResult, []byte(raw))
		require.ErrorIs(t, err, ErrMalformedPayload, raw)
	}
	require.Zero(t, countRecords(t, q))
	require.Empty(t, enq.tasks)

	// An escaped backslash followed by u0000 is ordinary text.
	_, err := svc.Accept(context.Background(), KindDepositResult, []byte(`{"ResultDesc":"C:\\u0000"}`))
	require.NoError(t, err)
}

func TestAcceptDuplicatesAreKept(t *testing.T) {
	svc, q := newTestService(t, &mockEnqueuer{})

	raw := []byte(`{"Result":{"ResultType":0,"ResultCode":0}}`)
	id1, err := svc.Accept(context.Background(), KindDisbursementResult, raw)
	require.NoError(t, err)
	id2, err := svc.Accept(context.Background(), KindDisbursementResult, raw)
	require.NoError(t, err)

	require.NotEqual(t, id1, id2)
	require.EqualValues(t, 2, countRecords(t, q))
}

func TestAcceptEnqueueFailureStillAcks(t *testing.T) {
	enq := &mockEnqueuer{enqueueFn: func(ctx context.Context, t *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
		return nil, errors.New("redis down")
	}}
	svc, q := newTestService(t, enq)

	id, err := svc.Accept(context.Background(), KindDisbursementTimeout, []byte(`{"Result":{}}`))
	require.NoError(t, err)

	rec, err := q.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, StatusReceived, rec.Status)
}

func TestAcceptPersistenceFailure(t *testing.T) {
	enq := &mockEnqueuer{}
	svc, q := newTestService(t, enq)

	sqlDB, err := q.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	_, err = svc.Accept(context.Background(), KindDepositResult, []byte(`{}`))
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrMalformedPayload)
	require.Empty(t, enq.tasks)
}
