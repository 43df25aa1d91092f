package intake

import (
	"time"

	"gorm.io/datatypes"
)

type Kind string

const (
	KindDepositResult       Kind = "deposit_result"
	KindDisbursementResult  Kind = "disbursement_result"
	KindDisbursementTimeout Kind = "disbursement_timeout"
)

func (k Kind) Valid() bool {
	switch k {
	case KindDepositResult, KindDisbursementResult, KindDisbursementTimeout:
		return true
	}
	return false
}

type RecordStatus string

const (
	StatusReceived   RecordStatus = "received"
	StatusProcessing RecordStatus = "processing"
	StatusProcessed  RecordStatus = "processed"
	StatusDead       RecordStatus = "dead"
)

// CallbackRecord is a raw provider notification persisted before it is
// acknowledged. Rows move received -> processing -> processed|dead, and
// back to received when processing fails transiently.
type CallbackRecord struct {
	ID         string         `gorm:"column:id;primaryKey" json:"id"`
	Kind       Kind           `gorm:"column:kind;index;not null" json:"kind"`
	Payload    datatypes.JSON `gorm:"column:payload;not null" json:"payload"`
	Status     RecordStatus   `gorm:"column:status;default:'received';index:idx_callback_records_sweep,priority:1;not null" json:"status"`
	Attempts   int            `gorm:"column:attempts;default:0;not null" json:"attempts"`
	ClaimedAt  *time.Time     `gorm:"column:claimed_at" json:"claimed_at,omitempty"`
	LastError  string         `gorm:"column:last_error" json:"last_error,omitempty"`
	ArchiveKey *string        `gorm:"column:archive_key" json:"archive_key,omitempty"`
	CreatedAt  time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"column:updated_at;autoUpdateTime;index:idx_callback_records_sweep,priority:2" json:"updated_at"`
}

// ArchiveKey is the object name a processed record is archived under.
func ArchiveKey(rec *CallbackRecord) string {
	return "callbacks/" + string(rec.Kind) + "/" + rec.CreatedAt.UTC().Format("2006/01/02") + "/" + rec.ID + ".json"
}
