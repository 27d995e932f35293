package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	RoleBuyer  = "buyer"
	RoleSeller = "seller"
	RoleAdmin  = "admin"
)

type User struct {
	ID           string `gorm:"type:varchar(36);primaryKey"`
	Email        string `gorm:"type:varchar(255);not null;uniqueIndex"`
	PasswordHash string `gorm:"type:varchar(255);not null"`
	FirstName    string `gorm:"type:varchar(100)"`
	LastName     string `gorm:"type:varchar(100)"`

	Role string `gorm:"type:varchar(20);not null;default:'buyer';index"`

	// WalletBalance is mutated only by the ledger, inside a row lock.
	WalletBalance decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`

	SubscriptionPlans datatypes.JSON  `gorm:"type:jsonb"`
	PerformanceFeePct decimal.Decimal `gorm:"type:numeric(5,2);not null;default:0"`
	Bio               string          `gorm:"type:text"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (User) TableName() string {
	return "users"
}

// SubscriptionPlan is one entry of a seller's subscription_plans jsonb column.
type SubscriptionPlan struct {
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	DurationDays int             `json:"duration_days"`
	Perks        []string        `json:"perks,omitempty"`
}

func (u *User) Plans() ([]SubscriptionPlan, error) {
	if u == nil || len(u.SubscriptionPlans) == 0 {
		return nil, nil
	}
	var plans []SubscriptionPlan
	if err := json.Unmarshal(u.SubscriptionPlans, &plans); err != nil {
		return nil, err
	}
	return plans, nil
}

// FindPlan returns the plan with the given name. Matching is
// case-sensitive.
func (u *User) FindPlan(name string) (*SubscriptionPlan, error) {
	plans, err := u.Plans()
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	for i := range plans {
		if plans[i].Name == name {
			return &plans[i], nil
		}
	}
	return nil, nil
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}
