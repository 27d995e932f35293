package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// FollowerPlanName is the zero-price subscription created when a user
// follows a provider. Its end date is effectively unbounded.
const FollowerPlanName = "Follower"

// Subscription ties a subscriber to a provider for a period. Historical rows
// accumulate per pair; at most one may be active and unexpired at a time.
type Subscription struct {
	ID           uint64 `gorm:"primaryKey;autoIncrement"`
	SubscriberID string `gorm:"type:varchar(36);not null;index:idx_sub_pair"`
	ProviderID   string `gorm:"type:varchar(36);not null;index:idx_sub_pair"`

	PlanName  string          `gorm:"type:varchar(50);not null"`
	PricePaid decimal.Decimal `gorm:"type:numeric(20,10);not null;default:0"`

	StartsAt  time.Time `gorm:"type:timestamptz;not null"`
	EndsAt    time.Time `gorm:"type:timestamptz;not null;index"`
	IsActive  bool      `gorm:"not null;default:true;index:idx_sub_pair"`
	AutoRenew bool      `gorm:"not null;default:false"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

// Current reports whether the subscription grants access at the given time.
func (s *Subscription) Current(now time.Time) bool {
	return s != nil && s.IsActive && s.EndsAt.After(now)
}
