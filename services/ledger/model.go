package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type User struct {
	ID               string          `gorm:"column:id;primaryKey" json:"id"`
	Username         string          `gorm:"column:username;uniqueIndex;not null" json:"username"`
	Email            string          `gorm:"column:email;uniqueIndex;not null" json:"email"`
	PasswordHash     string          `gorm:"column:password_hash;not null" json:"-"`
	PhoneNumber      string          `gorm:"column:phone_number" json:"phone_number"`
	Role             Role            `gorm:"column:role;default:'user';not null" json:"role"`
	Balance          decimal.Decimal `gorm:"column:balance;type:numeric(15,2);default:0;not null;check:chk_users_balance,balance >= 0" json:"balance"`
	ReferralEarnings decimal.Decimal `gorm:"column:referral_earnings;type:numeric(15,2);default:0;not null;check:chk_users_referral_earnings,referral_earnings >= 0" json:"referral_earnings"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

type TransactionStatus string

const (
	TransactionPending TransactionStatus = "pending"
	TransactionSuccess TransactionStatus = "success"
	TransactionFailed  TransactionStatus = "failed"
)

// Transaction is a deposit initiated through a push payment.
type Transaction struct {
	ID                string            `gorm:"column:id;primaryKey" json:"id"`
	UserID            string            `gorm:"column:user_id;index;not null" json:"user_id"`
	MerchantRequestID string            `gorm:"column:merchant_request_id;uniqueIndex;not null" json:"merchant_request_id"`
	CheckoutRequestID string            `gorm:"column:checkout_request_id;index" json:"checkout_request_id"`
	Reference         string            `gorm:"column:reference" json:"reference"`
	Amount            decimal.Decimal   `gorm:"column:amount;type:numeric(15,2);not null" json:"amount"`
	PhoneNumber       string            `gorm:"column:phone_number" json:"phone_number"`
	Status            TransactionStatus `gorm:"column:status;default:'pending';index;not null" json:"status"`
	ReceiptNumber     *string           `gorm:"column:receipt_number" json:"receipt_number,omitempty"`
	ResultDesc        string            `gorm:"column:result_desc" json:"result_desc,omitempty"`
	CreatedAt         time.Time         `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time         `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

type WithdrawalStatus string

const (
	WithdrawalPending  WithdrawalStatus = "pending"
	WithdrawalApproved WithdrawalStatus = "approved"
	WithdrawalFailed   WithdrawalStatus = "failed"
)

// Withdrawal is a request to disburse referral earnings. TransactionID holds
// the originator correlation id once a disbursement has been issued.
type Withdrawal struct {
	ID                    string           `gorm:"column:id;primaryKey" json:"id"`
	UserID                string           `gorm:"column:user_id;index;not null" json:"user_id"`
	Amount                decimal.Decimal  `gorm:"column:amount;type:numeric(15,2);not null" json:"amount"`
	PhoneNumber           string           `gorm:"column:phone_number;not null" json:"phone_number"`
	Status                WithdrawalStatus `gorm:"column:status;default:'pending';index;not null" json:"status"`
	TransactionID         *string          `gorm:"column:transaction_id;uniqueIndex" json:"transaction_id,omitempty"`
	ConversationID        *string          `gorm:"column:conversation_id" json:"conversation_id,omitempty"`
	ProviderTransactionID *string          `gorm:"column:provider_transaction_id" json:"provider_transaction_id,omitempty"`
	ResultDesc            string           `gorm:"column:result_desc" json:"result_desc,omitempty"`
	CreatedAt             time.Time        `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time        `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

type ReferralStatus string

const (
	ReferralPending    ReferralStatus = "pending"
	ReferralSuccessful ReferralStatus = "successful"
)

const (
	Tier1 = 1
	Tier2 = 2
)

type Referral struct {
	ID         string         `gorm:"column:id;primaryKey" json:"id"`
	ReferrerID string         `gorm:"column:referrer_id;not null;uniqueIndex:idx_referrals_pair" json:"referrer_id"`
	ReferredID string         `gorm:"column:referred_id;not null;index;uniqueIndex:idx_referrals_pair" json:"referred_id"`
	Tier       int            `gorm:"column:referral_tier;not null;uniqueIndex:idx_referrals_pair" json:"referral_tier"`
	Status     ReferralStatus `gorm:"column:status;default:'pending';not null" json:"status"`
	CreatedAt  time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

const SettingInitialDeposit = "initial_deposit"

type Setting struct {
	Name      string    `gorm:"column:name;primaryKey" json:"name"`
	Value     string    `gorm:"column:value;not null" json:"value"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// Models lists every table owned by the ledger.
func Models() []any {
	return []any{&User{}, &Transaction{}, &Withdrawal{}, &Referral{}, &Setting{}}
}
