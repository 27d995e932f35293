package outcome

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"signalmarket/internal/repository"
)

// PriceSource is the slice of the price oracle the poller needs.
type PriceSource interface {
	GetManyPrices(ctx context.Context, pairs []string) map[string]decimal.Decimal
}

// Poller periodically re-evaluates active signals against fresh prices.
// Pairs with no known price this cycle are skipped, never failed.
type Poller struct {
	Repo      repository.Repository
	Prices    PriceSource
	Logger    *zap.Logger
	BatchSize int
}

func (p *Poller) RunOnce(ctx context.Context) error {
	if p == nil || p.Repo == nil || p.Prices == nil {
		return nil
	}
	batch := p.BatchSize
	if batch <= 0 {
		batch = 200
	}
	signals, err := p.Repo.ListActiveSignals(ctx, batch)
	if err != nil || len(signals) == 0 {
		return err
	}

	pairs := make([]string, 0, len(signals))
	seen := map[string]struct{}{}
	for _, sig := range signals {
		if _, ok := seen[sig.Pair]; ok {
			continue
		}
		seen[sig.Pair] = struct{}{}
		pairs = append(pairs, sig.Pair)
	}
	prices := p.Prices.GetManyPrices(ctx, pairs)

	updated := 0
	for i := range signals {
		sig := &signals[i]
		price, ok := prices[sig.Pair]
		if !ok {
			continue
		}
		changed, err := Evaluate(sig, price)
		if err != nil {
			if p.Logger != nil {
				p.Logger.Warn("signal evaluation failed",
					zap.String("signal", sig.ID), zap.Error(err))
			}
			continue
		}
		if !changed {
			continue
		}
		if err := p.Repo.UpdateSignalOutcome(ctx, sig); err != nil {
			return err
		}
		updated++
	}

	if updated > 0 && p.Logger != nil {
		p.Logger.Info("signal outcomes updated", zap.Int("count", updated))
	}
	return nil
}
