package entitlement

import (
	"reflect"
	"testing"

	"github.com/shopspring/decimal"

	"signalmarket/internal/models"
)

func testSignal(monetization string) *models.Signal {
	sig := &models.Signal{
		ID:           "sig-1",
		ProviderID:   "provider-1",
		Pair:         "BTC/USDT",
		Category:     models.CategoryCrypto,
		Direction:    models.DirectionBuy,
		EntryZone:    "42000-43000",
		StopLoss:     "41000",
		Confidence:   80,
		Reasoning:    "breakout retest holding",
		Monetization: monetization,
		Price:        decimal.NewFromInt(25),
		Status:       models.SignalStatusActive,
	}
	if err := sig.SetTakeProfitLevels([]string{"44000", "46000"}); err != nil {
		panic(err)
	}
	return sig
}

func buyer(id string) Requester {
	return Requester{ID: id, Purchased: map[string]struct{}{}, Subscribed: map[string]struct{}{}}
}

func TestAnonymousAlwaysLocked(t *testing.T) {
	for _, mode := range []string{
		models.MonetizationFree,
		models.MonetizationPayPerSignal,
		models.MonetizationSubscription,
		models.MonetizationPerformance,
	} {
		p := Resolve(testSignal(mode), Requester{})
		if !p.IsLocked {
			t.Fatalf("%s: anonymous requester must be locked", mode)
		}
		if p.Reasoning != reasoningGuest {
			t.Fatalf("%s: reasoning = %q", mode, p.Reasoning)
		}
	}
}

func TestOwnerSeesEverything(t *testing.T) {
	for _, mode := range []string{
		models.MonetizationPayPerSignal,
		models.MonetizationSubscription,
	} {
		p := Resolve(testSignal(mode), buyer("provider-1"))
		if p.IsLocked {
			t.Fatalf("%s: owner must see the full signal", mode)
		}
		if p.StopLoss != "41000" {
			t.Fatalf("%s: stop loss = %q", mode, p.StopLoss)
		}
	}
}

func TestFreeSignalOpenToAnyAuthenticated(t *testing.T) {
	p := Resolve(testSignal(models.MonetizationFree), buyer("someone-else"))
	if p.IsLocked {
		t.Fatalf("free signal locked for authenticated requester")
	}
	if p.EntryZone != "42000-43000" || p.Reasoning != "breakout retest holding" {
		t.Fatalf("free projection redacted: %+v", p)
	}
}

func TestPayPerSignalRequiresPurchase(t *testing.T) {
	sig := testSignal(models.MonetizationPayPerSignal)

	locked := Resolve(sig, buyer("buyer-1"))
	if !locked.IsLocked {
		t.Fatalf("unpurchased pay-per-signal must be locked")
	}
	if locked.EntryZone != "***" || locked.StopLoss != "***" {
		t.Fatalf("levels not redacted: %+v", locked)
	}
	if !reflect.DeepEqual(locked.TakeProfits, []string{"***"}) {
		t.Fatalf("tp list not redacted: %v", locked.TakeProfits)
	}
	if locked.Reasoning != reasoningLocked {
		t.Fatalf("reasoning = %q", locked.Reasoning)
	}
	// Teaser fields survive redaction.
	if locked.Pair != "BTC/USDT" || locked.Direction != models.DirectionBuy || locked.Confidence != 80 {
		t.Fatalf("teaser fields lost: %+v", locked)
	}
	if !locked.Price.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("price must stay visible on locked projections")
	}

	req := buyer("buyer-1")
	req.Purchased["sig-1"] = struct{}{}
	open := Resolve(sig, req)
	if open.IsLocked {
		t.Fatalf("purchased signal must be unlocked")
	}
	if !reflect.DeepEqual(open.TakeProfits, []string{"44000", "46000"}) {
		t.Fatalf("tp list = %v", open.TakeProfits)
	}
}

func TestSubscriptionGateChecksProvider(t *testing.T) {
	sig := testSignal(models.MonetizationSubscription)

	if p := Resolve(sig, buyer("buyer-1")); !p.IsLocked {
		t.Fatalf("non-subscriber must be locked")
	}

	req := buyer("buyer-1")
	req.Subscribed["provider-1"] = struct{}{}
	if p := Resolve(sig, req); p.IsLocked {
		t.Fatalf("subscriber must see the full signal")
	}

	// A purchase of some other signal does not open a subscription gate.
	req2 := buyer("buyer-1")
	req2.Purchased["sig-1"] = struct{}{}
	if p := Resolve(sig, req2); !p.IsLocked {
		t.Fatalf("purchase must not satisfy a subscription gate")
	}
}

func TestPerformanceSignalsVisible(t *testing.T) {
	p := Resolve(testSignal(models.MonetizationPerformance), buyer("buyer-1"))
	if p.IsLocked {
		t.Fatalf("performance signals are open up front")
	}
}

func TestUnknownMonetizationLocks(t *testing.T) {
	sig := testSignal("Mystery")
	if p := Resolve(sig, buyer("buyer-1")); !p.IsLocked {
		t.Fatalf("unknown monetization must lock")
	}
}

func TestLockedProjectionHidesOutcomeDetail(t *testing.T) {
	sig := testSignal(models.MonetizationPayPerSignal)
	sig.Status = models.SignalStatusFailure
	sig.HitStopLoss = true
	if err := sig.SetHitTargetIndices([]int{0}); err != nil {
		t.Fatalf("set hit targets: %v", err)
	}

	locked := Resolve(sig, buyer("buyer-1"))
	if !locked.IsLocked {
		t.Fatalf("unpurchased pay-per-signal must be locked")
	}
	if locked.Status != models.SignalStatusFailure {
		t.Fatalf("status = %q, aggregate status stays visible", locked.Status)
	}
	if locked.HitStopLoss {
		t.Fatalf("locked projection must not reveal the stop-loss hit")
	}
	if len(locked.HitTargets) != 0 {
		t.Fatalf("locked projection must not reveal hit targets: %v", locked.HitTargets)
	}

	open := Resolve(sig, buyer("provider-1"))
	if !open.HitStopLoss {
		t.Fatalf("full projection must carry the stop-loss hit")
	}
	if !reflect.DeepEqual(open.HitTargets, []int{0}) {
		t.Fatalf("full projection hit targets = %v", open.HitTargets)
	}
}

func TestResolveBatchMatchesSingle(t *testing.T) {
	signals := []models.Signal{
		*testSignal(models.MonetizationFree),
		*testSignal(models.MonetizationPayPerSignal),
		*testSignal(models.MonetizationSubscription),
	}
	signals[1].ID = "sig-2"
	signals[2].ID = "sig-3"

	req := buyer("buyer-1")
	req.Purchased["sig-2"] = struct{}{}

	batch := ResolveBatch(signals, req)
	if len(batch) != len(signals) {
		t.Fatalf("batch size = %d, want %d", len(batch), len(signals))
	}
	for i := range signals {
		single := Resolve(&signals[i], req)
		if !reflect.DeepEqual(batch[i], single) {
			t.Fatalf("signal %d: batch and single resolution diverged\nbatch:  %+v\nsingle: %+v", i, batch[i], single)
		}
	}
}
