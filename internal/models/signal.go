package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	DirectionBuy  = "BUY"
	DirectionSell = "SELL"
)

const (
	CategoryCrypto      = "Crypto"
	CategoryForex       = "Forex"
	CategoryStocks      = "Stocks"
	CategoryCommodities = "Commodities"
)

const (
	MonetizationFree         = "Free"
	MonetizationPayPerSignal = "PayPerSignal"
	MonetizationSubscription = "Subscription"
	MonetizationPerformance  = "Performance"
)

const (
	SignalStatusActive  = "active"
	SignalStatusSuccess = "success"
	SignalStatusFailure = "failure"
)

// Signal is a published trade call. Entry/target/stop levels are stored as
// decimal strings so outcome comparisons never go through float rounding.
type Signal struct {
	ID         string `gorm:"type:varchar(36);primaryKey"`
	ProviderID string `gorm:"type:varchar(36);not null;index:idx_signals_provider_category"`

	Pair      string `gorm:"type:varchar(30);not null;index"`
	Category  string `gorm:"type:varchar(20);not null;index:idx_signals_provider_category"`
	Direction string `gorm:"type:varchar(10);not null"`

	EntryZone   string         `gorm:"type:varchar(100);not null"`
	TakeProfits datatypes.JSON `gorm:"type:jsonb;not null"`
	StopLoss    string         `gorm:"type:varchar(50);not null"`
	Confidence  int            `gorm:"not null"`
	Reasoning   string         `gorm:"type:text;not null"`
	TimeWindow  string         `gorm:"type:varchar(100)"`

	Monetization   string              `gorm:"type:varchar(20);not null;default:'Free';index:idx_signals_provider_category"`
	Price          decimal.Decimal     `gorm:"type:numeric(20,10);not null;default:0"`
	RequiredTier   *string             `gorm:"type:varchar(50)"`
	PerformanceFee decimal.Decimal     `gorm:"type:numeric(20,10);not null;default:0"`

	// Status transitions only active->success or active->failure; failure is
	// terminal and sticky.
	Status      string              `gorm:"type:varchar(20);not null;default:'active';index"`
	HitStopLoss bool                `gorm:"not null;default:false"`
	HitTargets  datatypes.JSON      `gorm:"type:jsonb"`
	LastPrice   decimal.NullDecimal `gorm:"type:numeric(20,10)"`

	PurchasedCount int `gorm:"not null;default:0"`

	ValidFrom *time.Time `gorm:"type:timestamptz"`
	ValidTo   *time.Time `gorm:"type:timestamptz"`
	Expired   bool       `gorm:"not null;default:false"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Signal) TableName() string {
	return "signals"
}

// TakeProfitLevels decodes the ordered take-profit list.
func (s *Signal) TakeProfitLevels() ([]string, error) {
	if s == nil || len(s.TakeProfits) == 0 {
		return nil, nil
	}
	var levels []string
	if err := json.Unmarshal(s.TakeProfits, &levels); err != nil {
		return nil, err
	}
	return levels, nil
}

func (s *Signal) SetTakeProfitLevels(levels []string) error {
	raw, err := json.Marshal(levels)
	if err != nil {
		return err
	}
	s.TakeProfits = raw
	return nil
}

// HitTargetIndices decodes the set of take-profit indices already hit,
// in ascending order.
func (s *Signal) HitTargetIndices() ([]int, error) {
	if s == nil || len(s.HitTargets) == 0 {
		return nil, nil
	}
	var hit []int
	if err := json.Unmarshal(s.HitTargets, &hit); err != nil {
		return nil, err
	}
	return hit, nil
}

func (s *Signal) SetHitTargetIndices(hit []int) error {
	raw, err := json.Marshal(hit)
	if err != nil {
		return err
	}
	s.HitTargets = raw
	return nil
}
