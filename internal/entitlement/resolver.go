// Package entitlement computes what a requester may see of a signal.
// Resolution is a pure read: it never touches storage and never mutates the
// signal, so batch and single resolution cannot diverge.
package entitlement

import (
	"time"

	"github.com/shopspring/decimal"

	"signalmarket/internal/models"
)

const (
	redactedLevel   = "***"
	reasoningGuest  = "Login to view"
	reasoningLocked = "Unlock to view reasoning"
)

// Requester identifies who is asking. A zero-value Requester is anonymous.
// Purchased and Subscribed are the requester's unlocked signal ids and the
// providers they actively subscribe to, looked up once per request by the
// caller regardless of how many signals are resolved against them.
type Requester struct {
	ID         string
	Purchased  map[string]struct{}
	Subscribed map[string]struct{}
}

func (r Requester) Anonymous() bool {
	return r.ID == ""
}

func (r Requester) hasPurchased(signalID string) bool {
	_, ok := r.Purchased[signalID]
	return ok
}

func (r Requester) subscribesTo(providerID string) bool {
	_, ok := r.Subscribed[providerID]
	return ok
}

// Monetization is the tagged form of a signal's access policy.
type Monetization interface {
	isMonetization()
}

type Free struct{}

type PayPerSignal struct {
	Price decimal.Decimal
}

type SubscriptionGated struct {
	RequiredTier string
}

type PerformanceGated struct {
	Fee decimal.Decimal
}

func (Free) isMonetization()              {}
func (PayPerSignal) isMonetization()      {}
func (SubscriptionGated) isMonetization() {}
func (PerformanceGated) isMonetization()  {}

// MonetizationOf maps the flat persisted shape onto the tagged variant.
// Unknown modes resolve to nil, which always locks.
func MonetizationOf(sig *models.Signal) Monetization {
	switch sig.Monetization {
	case models.MonetizationFree:
		return Free{}
	case models.MonetizationPayPerSignal:
		return PayPerSignal{Price: sig.Price}
	case models.MonetizationSubscription:
		tier := ""
		if sig.RequiredTier != nil {
			tier = *sig.RequiredTier
		}
		return SubscriptionGated{RequiredTier: tier}
	case models.MonetizationPerformance:
		return PerformanceGated{Fee: sig.PerformanceFee}
	default:
		return nil
	}
}

// Projection is the JSON shape returned to clients. Locked projections keep
// the teaser fields and redact the tradable levels.
type Projection struct {
	ID         string `json:"id"`
	ProviderID string `json:"providerId"`
	Pair       string `json:"pair"`
	Category   string `json:"category"`
	Direction  string `json:"direction"`

	Monetization   string          `json:"monetizationType"`
	Price          decimal.Decimal `json:"price"`
	RequiredTier   *string         `json:"requiredTier,omitempty"`
	PerformanceFee decimal.Decimal `json:"performanceFee"`

	EntryZone   string   `json:"entryZone"`
	TakeProfits []string `json:"tpList"`
	StopLoss    string   `json:"stopLoss"`
	Reasoning   string   `json:"reasoning"`

	Confidence int    `json:"confidence"`
	TimeWindow string `json:"timeWindow,omitempty"`

	Status         string `json:"status"`
	HitStopLoss    bool   `json:"hitStopLoss"`
	HitTargets     []int  `json:"hitTargets"`
	PurchasedCount int    `json:"purchasedCount"`

	CurrentPrice *decimal.Decimal `json:"currentPrice,omitempty"`

	IsLocked  bool      `json:"isLocked"`
	CreatedAt time.Time `json:"createdAt"`
}

// Resolve computes the projection for one signal. Decision order, first
// match wins: anonymous, owner, free, purchased, subscribed, performance.
func Resolve(sig *models.Signal, req Requester) Projection {
	if req.Anonymous() {
		return locked(sig, reasoningGuest)
	}
	if req.ID == sig.ProviderID {
		return full(sig)
	}
	switch MonetizationOf(sig).(type) {
	case Free:
		return full(sig)
	case PayPerSignal:
		if req.hasPurchased(sig.ID) {
			return full(sig)
		}
		return locked(sig, reasoningLocked)
	case SubscriptionGated:
		if req.subscribesTo(sig.ProviderID) {
			return full(sig)
		}
		return locked(sig, reasoningLocked)
	case PerformanceGated:
		// Fee collection is deferred; performance signals are visible.
		return full(sig)
	default:
		return locked(sig, reasoningLocked)
	}
}

// ResolveBatch resolves many signals against one requester. It produces
// exactly the decisions Resolve produces, one per signal, in input order.
func ResolveBatch(sigs []models.Signal, req Requester) []Projection {
	out := make([]Projection, 0, len(sigs))
	for i := range sigs {
		out = append(out, Resolve(&sigs[i], req))
	}
	return out
}

func base(sig *models.Signal) Projection {
	return Projection{
		ID:             sig.ID,
		ProviderID:     sig.ProviderID,
		Pair:           sig.Pair,
		Category:       sig.Category,
		Direction:      sig.Direction,
		Monetization:   sig.Monetization,
		Price:          sig.Price,
		RequiredTier:   sig.RequiredTier,
		PerformanceFee: sig.PerformanceFee,
		Confidence:     sig.Confidence,
		TimeWindow:     sig.TimeWindow,
		Status:         sig.Status,
		PurchasedCount: sig.PurchasedCount,
		CreatedAt:      sig.CreatedAt,
	}
}

func full(sig *models.Signal) Projection {
	p := base(sig)
	levels, _ := sig.TakeProfitLevels()
	hit, _ := sig.HitTargetIndices()
	if hit == nil {
		hit = []int{}
	}
	p.EntryZone = sig.EntryZone
	p.TakeProfits = levels
	p.StopLoss = sig.StopLoss
	p.Reasoning = sig.Reasoning
	p.HitStopLoss = sig.HitStopLoss
	p.HitTargets = hit
	p.IsLocked = false
	return p
}

// The per-target hit set and stop-loss flag describe the redacted levels,
// so locked projections carry only the aggregate status.
func locked(sig *models.Signal, reasoning string) Projection {
	p := base(sig)
	p.EntryZone = redactedLevel
	p.TakeProfits = []string{redactedLevel}
	p.StopLoss = redactedLevel
	p.Reasoning = reasoning
	p.HitTargets = []int{}
	p.IsLocked = true
	return p
}
