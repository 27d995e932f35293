package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PurchaseStatusCompleted = "completed"
	PurchaseStatusRefunded  = "refunded"
)

// SignalPurchase is the entitlement record for one buyer on one signal.
// The (signal, buyer) pair is unique: a buyer unlocks a signal at most once,
// whether the signal was free or paid.
type SignalPurchase struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	SignalID   string `gorm:"type:varchar(36);not null;uniqueIndex:idx_purchase_signal_buyer;index"`
	BuyerID    string `gorm:"type:varchar(36);not null;uniqueIndex:idx_purchase_signal_buyer;index"`
	ProviderID string `gorm:"type:varchar(36);not null;index"`

	PricePaid decimal.Decimal `gorm:"type:numeric(20,10);not null;default:0"`
	Currency  string          `gorm:"type:varchar(10);not null;default:'USDT'"`
	Status    string          `gorm:"type:varchar(20);not null;default:'completed'"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (SignalPurchase) TableName() string {
	return "signal_purchases"
}
