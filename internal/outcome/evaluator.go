// Package outcome resolves signal results from observed prices: a crossed
// stop-loss fails the signal, crossed take-profit levels succeed it.
package outcome

import (
	"sort"

	"github.com/shopspring/decimal"

	"signalmarket/internal/models"
)

// Evaluate applies the current price to the signal and reports whether any
// field changed, so callers persist only dirty signals under polling.
//
// Failure is terminal: a failed signal is never re-evaluated. A successful
// signal keeps accepting newly crossed take-profit indices but its status no
// longer moves, in either direction.
func Evaluate(sig *models.Signal, price decimal.Decimal) (bool, error) {
	if sig == nil || price.IsZero() || sig.Status == models.SignalStatusFailure {
		return false, nil
	}

	changed := false

	if sig.Status == models.SignalStatusActive && !sig.HitStopLoss {
		triggered, err := stopLossHit(sig, price)
		if err != nil {
			return false, err
		}
		if triggered {
			sig.HitStopLoss = true
			sig.Status = models.SignalStatusFailure
			changed = true
		}
	}

	// Take-profit levels are only checked while the stop-loss has not fired.
	if !sig.HitStopLoss {
		tpChanged, err := applyTakeProfits(sig, price)
		if err != nil {
			return false, err
		}
		changed = changed || tpChanged
	}

	if !sig.LastPrice.Valid || !sig.LastPrice.Decimal.Equal(price) {
		sig.LastPrice = decimal.NullDecimal{Decimal: price, Valid: true}
		changed = true
	}

	return changed, nil
}

func stopLossHit(sig *models.Signal, price decimal.Decimal) (bool, error) {
	stop, err := decimal.NewFromString(sig.StopLoss)
	if err != nil {
		return false, err
	}
	if sig.Direction == models.DirectionSell {
		return price.GreaterThanOrEqual(stop), nil
	}
	return price.LessThanOrEqual(stop), nil
}

func applyTakeProfits(sig *models.Signal, price decimal.Decimal) (bool, error) {
	levels, err := sig.TakeProfitLevels()
	if err != nil {
		return false, err
	}
	hit, err := sig.HitTargetIndices()
	if err != nil {
		return false, err
	}
	already := make(map[int]struct{}, len(hit))
	for _, i := range hit {
		already[i] = struct{}{}
	}

	changed := false
	for i, raw := range levels {
		if _, ok := already[i]; ok {
			continue
		}
		level, err := decimal.NewFromString(raw)
		if err != nil {
			return false, err
		}
		triggered := price.GreaterThanOrEqual(level)
		if sig.Direction == models.DirectionSell {
			triggered = price.LessThanOrEqual(level)
		}
		if !triggered {
			continue
		}
		hit = append(hit, i)
		if sig.Status == models.SignalStatusActive {
			sig.Status = models.SignalStatusSuccess
		}
		changed = true
	}

	if changed {
		sort.Ints(hit)
		if err := sig.SetHitTargetIndices(hit); err != nil {
			return false, err
		}
	}
	return changed, nil
}
