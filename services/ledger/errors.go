package ledger

import "errors"

var (
	ErrUnknownCorrelation     = errors.New("ledger: no record for correlation key")
	ErrInsufficientEarnings   = errors.New("ledger: insufficient referral earnings")
	ErrUserNotFound           = errors.New("ledger: user not found")
	ErrWithdrawalNotFound     = errors.New("ledger: withdrawal not found")
	ErrThresholdNotConfigured = errors.New("ledger: initial deposit threshold not configured")
	ErrStateConflict          = errors.New("ledger: record is not in the expected state")
	ErrInvalidAmount          = errors.New("ledger: amount must be positive")
)
