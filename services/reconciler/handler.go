package reconciler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"referralpay/pkg/auth"
	"referralpay/pkg/config"
	"referralpay/pkg/logger"
	"referralpay/services/intake"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

type applier interface {
	Apply(ctx context.Context, kind intake.Kind, payload []byte) (Outcome, error)
}

type Handler struct {
	queue      *intake.Queue
	reconciler applier
	staleAfter time.Duration
}

func NewHandler(queue *intake.Queue, r *Reconciler, cfg *config.Config) *Handler {
	return newHandler(queue, r, cfg.Intake.StaleAfter)
}

func newHandler(queue *intake.Queue, r applier, staleAfter time.Duration) *Handler {
	if staleAfter <= 0 {
		staleAfter = 5 * time.Minute
	}
	return &Handler{queue: queue, reconciler: r, staleAfter: staleAfter}
}

// HandleReconcileTask processes one callback record. Returning an error
// makes asynq retry; wrapping asynq.SkipRetry archives the task instead.
func (h *Handler) HandleReconcileTask(ctx context.Context, t *asynq.Task) error {
	var payload intake.ReconcilePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.RecordID == "" {
		zap.L().Error("[Reconciler] invalid task payload", zap.ByteString("payload", t.Payload()), zap.Error(err))
		return fmt.Errorf("invalid reconcile payload: %w", asynq.SkipRetry)
	}

	ctx = auth.WithPrincipal(ctx, auth.SystemPrincipal)
	log := logger.FromContext(ctx).With(zap.String("record_id", payload.RecordID))

	rec, claimed, err := h.queue.Claim(ctx, payload.RecordID, h.staleAfter)
	if err != nil {
		log.Warn("[Reconciler] failed to claim record", zap.Error(err))
		return err
	}
	if !claimed {
		log.Debug("[Reconciler] record not claimable, skipping")
		return nil
	}

	outcome, applyErr := h.reconciler.Apply(ctx, rec.Kind, rec.Payload)
	log = log.With(zap.String("kind", string(rec.Kind)), zap.String("outcome", string(outcome)))

	switch outcome {
	case OutcomeApplied, OutcomeNoop:
		if err := h.queue.Ack(ctx, rec); err != nil {
			log.Error("[Reconciler] failed to ack record", zap.Error(err))
			return err
		}
		log.Info("[Reconciler] record processed")
		return nil

	case OutcomeTransient:
		if err := h.queue.Release(ctx, rec, applyErr); err != nil {
			log.Error("[Reconciler] failed to release record", zap.Error(err))
		}
		log.Warn("[Reconciler] transient failure, will retry", zap.Error(applyErr))
		return applyErr

	default:
		if err := h.queue.Bury(ctx, rec, applyErr); err != nil {
			log.Error("[Reconciler] failed to bury record", zap.Error(err))
			return err
		}
		log.Error("[Reconciler] record buried", zap.Error(applyErr))
		return fmt.Errorf("%s: %v: %w", outcome, applyErr, asynq.SkipRetry)
	}
}
