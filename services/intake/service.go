package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"referralpay/pkg/logger"
	"referralpay/pkg/task"
	"referralpay/pkg/taskname"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

var ErrMalformedPayload = errors.New("intake: malformed callback payload")

// ReconcilePayload is the body of a callback:reconcile task.
type ReconcilePayload struct {
	RecordID string `json:"record_id"`
}

func NewReconcileTask(recordID string) (*asynq.Task, error) {
	payload, err := json.Marshal(ReconcilePayload{RecordID: recordID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskname.CallbackReconcile, payload, asynq.Queue(taskname.QueueCritical)), nil
}

type Service struct {
	queue    *Queue
	enqueuer task.Enqueuer
	node     *snowflake.Node
}

type ServiceParams struct {
	fx.In
	Queue    *Queue
	Enqueuer task.Enqueuer
	Node     *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		queue:    p.Queue,
		enqueuer: p.Enqueuer,
		node:     p.Node,
	}
}

// Accept validates and durably records a raw notification, then schedules
// it for reconciliation. A returned id means the record is committed.
func (s *Service) Accept(ctx context.Context, kind Kind, raw []byte) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("%w: unknown kind %q", ErrMalformedPayload, kind)
	}

	var object map[string]any
	if err := json.Unmarshal(raw, &object); err != nil || object == nil {
		return "", ErrMalformedPayload
	}
	// jsonb cannot store NUL; such a payload would fail on every resend.
	if hasNUL(object) {
		return "", fmt.Errorf("%w: NUL character in payload", ErrMalformedPayload)
	}

	rec := &CallbackRecord{
		ID:      s.node.Generate().String(),
		Kind:    kind,
		Payload: datatypes.JSON(raw),
	}
	if err := s.queue.Insert(ctx, rec); err != nil {
		return "", fmt.Errorf("failed to persist callback: %w", err)
	}

	log := logger.FromContext(ctx).With(zap.String("record_id", rec.ID), zap.String("kind", string(kind)))

	t, err := NewReconcileTask(rec.ID)
	if err == nil {
		_, err = s.enqueuer.Enqueue(ctx, t)
	}
	if err != nil {
		// The sweeper picks the record up later.
		log.Warn("[Intake] failed to enqueue reconcile task", zap.Error(err))
		return rec.ID, nil
	}

	log.Info("[Intake] callback accepted")
	return rec.ID, nil
}

func hasNUL(v any) bool {
	switch v := v.(type) {
	case string:
		return strings.ContainsRune(v, 0)
	case map[string]any:
		for k, item := range v {
			if strings.ContainsRune(k, 0) || hasNUL(item) {
				return true
			}
		}
	case []any:
		for _, item := range v {
			if hasNUL(item) {
				return true
			}
		}
	}
	return false
}
