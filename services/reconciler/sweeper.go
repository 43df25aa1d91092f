package reconciler

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"referralpay/pkg/config"
	"referralpay/pkg/task"
	"referralpay/services/intake"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const sweepConcurrency = 8

// Sweeper re-enqueues records whose task was lost or whose worker died.
type Sweeper struct {
	queue      *intake.Queue
	enqueuer   task.Enqueuer
	interval   time.Duration
	staleAfter time.Duration
	batch      int
}

func NewSweeper(queue *intake.Queue, enqueuer task.Enqueuer, cfg *config.Config) *Sweeper {
	s := &Sweeper{
		queue:      queue,
		enqueuer:   enqueuer,
		interval:   cfg.Intake.SweepInterval,
		staleAfter: cfg.Intake.StaleAfter,
		batch:      cfg.Intake.SweepBatch,
	}
	if s.interval <= 0 {
		s.interval = time.Minute
	}
	if s.staleAfter <= 0 {
		s.staleAfter = 5 * time.Minute
	}
	if s.batch <= 0 {
		s.batch = 100
	}
	return s
}

func StartSweeper(lc fx.Lifecycle, s *Sweeper) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go s.Run(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func (s *Sweeper) Run(ctx context.Context) {
	zap.L().Info("[Sweeper] started", zap.Duration("interval", s.interval), zap.Duration("stale_after", s.staleAfter))

	for {
		select {
		case <-time.After(s.interval):
			n, err := s.Sweep(ctx)
			if err != nil {
				zap.L().Error("[Sweeper] sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				zap.L().Info("[Sweeper] re-enqueued stale records", zap.Int("count", n))
			}
		case <-ctx.Done():
			zap.L().Warn("[Sweeper] stopped")
			return
		}
	}
}

// Sweep enqueues one batch of stale records and reports how many were
// handed to the queue.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	rows, err := s.queue.Stale(ctx, s.staleAfter, s.batch)
	if err != nil {
		return 0, err
	}

	var enqueued atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)
	for _, rec := range rows {
		rec := rec
		g.Go(func() error {
			t, err := intake.NewReconcileTask(rec.ID)
			if err != nil {
				return err
			}
			_, err = s.enqueuer.Enqueue(gctx, t, asynq.Unique(s.staleAfter))
			if errors.Is(err, asynq.ErrDuplicateTask) {
				return nil
			}
			if err != nil {
				return err
			}
			enqueued.Add(1)
			return nil
		})
	}
	err = g.Wait()

	n := int(enqueued.Load())
	swept.Add(float64(n))
	return n, err
}
