package intake

import (
	"context"
	"errors"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxErrorLength = 1024

// Queue is the durable work queue over callback_records. Every transition is
// a conditional update so concurrent workers never both own a record.
type Queue struct {
	db       *gorm.DB
	archiver Archiver
	now      func() time.Time
}

type QueueParams struct {
	fx.In
	DB       *gorm.DB
	Archiver Archiver `optional:"true"`
}

func NewQueue(p QueueParams) *Queue {
	archiver := p.Archiver
	if archiver == nil {
		archiver = NopArchiver{}
	}
	return &Queue{db: p.DB, archiver: archiver, now: time.Now}
}

func (q *Queue) Migrate() error {
	return q.db.AutoMigrate(&CallbackRecord{})
}

func (q *Queue) Insert(ctx context.Context, rec *CallbackRecord) error {
	rec.Status = StatusReceived
	return q.db.WithContext(ctx).Create(rec).Error
}

// Get returns nil when the record does not exist.
func (q *Queue) Get(ctx context.Context, id string) (*CallbackRecord, error) {
	var rec CallbackRecord
	if err := q.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// Claim moves a record to processing. A record already in processing can be
// taken over once its claim is older than staleAfter. claimed is false when
// the record is owned by someone else or already finished.
func (q *Queue) Claim(ctx context.Context, id string, staleAfter time.Duration) (rec *CallbackRecord, claimed bool, err error) {
	now := q.now()
	res := q.db.WithContext(ctx).Model(&CallbackRecord{}).
		Where("id = ?", id).
		Where("status = ? OR (status = ? AND claimed_at < ?)", StatusReceived, StatusProcessing, now.Add(-staleAfter)).
		Updates(map[string]any{
			"status":     StatusProcessing,
			"claimed_at": now,
			"updated_at": now,
		})
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, false, nil
	}

	rec, err = q.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return rec, rec != nil, nil
}

// Ack finishes a record. The payload is archived first; an archive failure
// is logged and the record is still marked processed.
func (q *Queue) Ack(ctx context.Context, rec *CallbackRecord) error {
	updates := map[string]any{
		"status":     StatusProcessed,
		"updated_at": q.now(),
	}

	key := ArchiveKey(rec)
	if err := q.archiver.Archive(ctx, key, rec.Payload); err != nil {
		zap.L().Warn("[Intake] failed to archive callback", zap.String("id", rec.ID), zap.Error(err))
	} else if _, nop := q.archiver.(NopArchiver); !nop {
		updates["archive_key"] = key
		rec.ArchiveKey = &key
	}

	err := q.db.WithContext(ctx).Model(&CallbackRecord{}).
		Where("id = ? AND status = ?", rec.ID, StatusProcessing).
		Updates(updates).Error
	if err == nil {
		rec.Status = StatusProcessed
	}
	return err
}

// Release hands a record back for another attempt.
func (q *Queue) Release(ctx context.Context, rec *CallbackRecord, cause error) error {
	err := q.db.WithContext(ctx).Model(&CallbackRecord{}).
		Where("id = ? AND status = ?", rec.ID, StatusProcessing).
		Updates(map[string]any{
			"status":     StatusReceived,
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": truncate(cause),
			"claimed_at": nil,
			"updated_at": q.now(),
		}).Error
	if err == nil {
		rec.Status = StatusReceived
	}
	return err
}

// Bury parks a record that can never be applied.
func (q *Queue) Bury(ctx context.Context, rec *CallbackRecord, cause error) error {
	err := q.db.WithContext(ctx).Model(&CallbackRecord{}).
		Where("id = ? AND status = ?", rec.ID, StatusProcessing).
		Updates(map[string]any{
			"status":     StatusDead,
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": truncate(cause),
			"updated_at": q.now(),
		}).Error
	if err == nil {
		rec.Status = StatusDead
	}
	return err
}

// Stale lists records that were received but never picked up, or whose
// claim has expired.
func (q *Queue) Stale(ctx context.Context, olderThan time.Duration, limit int) ([]*CallbackRecord, error) {
	cutoff := q.now().Add(-olderThan)
	var rows []*CallbackRecord
	err := q.db.WithContext(ctx).
		Where("(status = ? AND updated_at < ?) OR (status = ? AND claimed_at < ?)", StatusReceived, cutoff, StatusProcessing, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func truncate(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) > maxErrorLength {
		msg = msg[:maxErrorLength]
	}
	return msg
}
