package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TxTypeSignalPurchase = "SignalPurchase"
	TxTypeSubscription   = "Subscription"
	TxTypePerformanceFee = "PerformanceFee"
	TxTypeDeposit        = "Deposit"
	TxTypeWithdrawal     = "Withdrawal"
)

const (
	TxStatusPending   = "pending"
	TxStatusApproved  = "approved"
	TxStatusCompleted = "completed"
	TxStatusFailed    = "failed"
)

const (
	TxRefSignal       = "Signal"
	TxRefSubscription = "Subscription"
	TxRefExternal     = "External"
)

// Transaction is an immutable ledger entry. Rows are created once and only
// status-mutated afterwards, never deleted.
type Transaction struct {
	ID   uint64 `gorm:"primaryKey;autoIncrement"`
	Type string `gorm:"type:varchar(30);not null;index:idx_tx_payer_type"`

	PayerID string  `gorm:"type:varchar(36);not null;index:idx_tx_payer_type"`
	PayeeID *string `gorm:"type:varchar(36);index"`

	Amount   decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	Currency string          `gorm:"type:varchar(10);not null;default:'USDT'"`

	ReferenceID   *string `gorm:"type:varchar(36)"`
	ReferenceType *string `gorm:"type:varchar(20)"`

	Status string `gorm:"type:varchar(20);not null;default:'pending';index"`

	ApprovedBy  *string    `gorm:"type:varchar(36)"`
	ApprovedAt  *time.Time `gorm:"type:timestamptz"`
	CompletedBy *string    `gorm:"type:varchar(36)"`
	CompletedAt *time.Time `gorm:"type:timestamptz"`

	// TxHash is stored lowercased so the unique index is case-insensitive.
	TxHash *string `gorm:"type:varchar(120);uniqueIndex"`

	PaymentMethod      string `gorm:"type:varchar(20)"`
	Network            string `gorm:"type:varchar(20)"`
	DestinationAddress string `gorm:"type:varchar(120)"`
	ProofImage         string `gorm:"type:text"`
	RejectionReason    string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (Transaction) TableName() string {
	return "transactions"
}
