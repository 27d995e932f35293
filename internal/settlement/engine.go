// Package settlement orchestrates purchases, subscriptions, deposits and
// withdrawals as single atomic operations against the ledger.
package settlement

import (
	"context"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"signalmarket/internal/apperr"
	"signalmarket/internal/config"
	"signalmarket/internal/ledger"
	"signalmarket/internal/models"
	"signalmarket/internal/repository"
)

// followerPlanYears approximates an unbounded follower subscription.
const followerPlanYears = 100

const defaultPlanDurationDays = 30

type Engine struct {
	Repo     repository.Repository
	Ledger   *ledger.Ledger
	Verifier ChainVerifier
	Wallets  config.WalletConfig
	Logger   *zap.Logger

	// Now is overridable in tests; defaults to time.Now in UTC.
	Now func() time.Time
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}

// UnlockSignal grants the buyer access to a Free or PayPerSignal signal,
// moving funds for the paid case and recording the entitlement either way.
func (e *Engine) UnlockSignal(ctx context.Context, signalID, buyerID string) (*models.SignalPurchase, error) {
	sig, err := e.Repo.GetSignalByID(ctx, signalID)
	if err != nil {
		return nil, err
	}
	if sig == nil {
		return nil, apperr.NotFound("Signal not found")
	}
	if sig.Monetization != models.MonetizationFree && sig.Monetization != models.MonetizationPayPerSignal {
		return nil, apperr.InvalidState("This signal cannot be unlocked via this method")
	}
	if sig.ProviderID == buyerID {
		return nil, apperr.Forbidden("You cannot purchase your own signal")
	}

	buyer, err := e.Repo.GetUserByID(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	if buyer == nil {
		return nil, apperr.NotFound("Buyer not found")
	}
	seller, err := e.Repo.GetUserByID(ctx, sig.ProviderID)
	if err != nil {
		return nil, err
	}
	if seller == nil {
		return nil, apperr.NotFound("Signal provider not found")
	}

	existing, err := e.Repo.GetSignalPurchase(ctx, signalID, buyerID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperr.InvalidState("You have already unlocked this signal")
	}

	pricePaid := decimal.Zero
	if sig.Monetization == models.MonetizationPayPerSignal {
		pricePaid = sig.Price
	}

	purchase := &models.SignalPurchase{
		SignalID:   sig.ID,
		BuyerID:    buyerID,
		ProviderID: sig.ProviderID,
		PricePaid:  pricePaid,
		Currency:   "USDT",
		Status:     models.PurchaseStatusCompleted,
		CreatedAt:  e.now(),
	}

	err = e.Repo.InTx(ctx, func(tx *gorm.DB) error {
		if pricePaid.IsPositive() {
			if err := e.Ledger.Transfer(ctx, tx, buyerID, sig.ProviderID, pricePaid); err != nil {
				return err
			}
			record := &models.Transaction{
				Type:          models.TxTypeSignalPurchase,
				PayerID:       buyerID,
				PayeeID:       &sig.ProviderID,
				Amount:        pricePaid,
				Currency:      "USDT",
				ReferenceID:   &sig.ID,
				ReferenceType: strPtr(models.TxRefSignal),
				Status:        models.TxStatusCompleted,
				CreatedAt:     e.now(),
			}
			if err := e.Ledger.Record(ctx, tx, record); err != nil {
				return err
			}
		}
		if err := e.Repo.InsertSignalPurchaseTx(ctx, tx, purchase); err != nil {
			return err
		}
		return e.Repo.IncrementSignalPurchasesTx(ctx, tx, sig.ID)
	})
	if err != nil {
		return nil, err
	}

	if e.Logger != nil {
		e.Logger.Info("signal unlocked",
			zap.String("signal", sig.ID),
			zap.String("buyer", buyerID),
			zap.String("price", pricePaid.String()))
	}
	return purchase, nil
}

// Subscribe opens a paid subscription to one of the provider's plans.
func (e *Engine) Subscribe(ctx context.Context, providerID, subscriberID, planName string) (*models.Subscription, error) {
	if providerID == subscriberID {
		return nil, apperr.Forbidden("You cannot subscribe to yourself")
	}
	provider, err := e.Repo.GetUserByID(ctx, providerID)
	if err != nil {
		return nil, err
	}
	if provider == nil {
		return nil, apperr.NotFound("Provider not found")
	}
	plan, err := provider.FindPlan(planName)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, apperr.NotFound("Subscription plan not found")
	}
	subscriber, err := e.Repo.GetUserByID(ctx, subscriberID)
	if err != nil {
		return nil, err
	}
	if subscriber == nil {
		return nil, apperr.NotFound("Subscriber not found")
	}

	now := e.now()
	active, err := e.Repo.GetActiveSubscription(ctx, subscriberID, providerID, now)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, apperr.InvalidState("You already have an active subscription with this provider")
	}

	duration := plan.DurationDays
	if duration <= 0 {
		duration = defaultPlanDurationDays
	}
	sub := &models.Subscription{
		SubscriberID: subscriberID,
		ProviderID:   providerID,
		PlanName:     plan.Name,
		PricePaid:    plan.Price,
		StartsAt:     now,
		EndsAt:       now.AddDate(0, 0, duration),
		IsActive:     true,
		CreatedAt:    now,
	}

	err = e.Repo.InTx(ctx, func(tx *gorm.DB) error {
		if plan.Price.IsPositive() {
			if err := e.Ledger.Transfer(ctx, tx, subscriberID, providerID, plan.Price); err != nil {
				return err
			}
		} else if _, err := e.Repo.GetUserForUpdateTx(ctx, tx, subscriberID); err != nil {
			return err
		}
		// Concurrent subscribes serialize on the subscriber row lock (taken
		// by Transfer, or explicitly for a free plan). The unlocked
		// pre-check can race, so it is repeated here.
		dup, err := e.Repo.GetActiveSubscriptionTx(ctx, tx, subscriberID, providerID, now)
		if err != nil {
			return err
		}
		if dup != nil {
			return apperr.InvalidState("You already have an active subscription with this provider")
		}
		if err := e.Repo.InsertSubscriptionTx(ctx, tx, sub); err != nil {
			return err
		}
		refID := strconv.FormatUint(sub.ID, 10)
		record := &models.Transaction{
			Type:          models.TxTypeSubscription,
			PayerID:       subscriberID,
			PayeeID:       &providerID,
			Amount:        plan.Price,
			Currency:      "USDT",
			ReferenceID:   &refID,
			ReferenceType: strPtr(models.TxRefSubscription),
			Status:        models.TxStatusCompleted,
			CreatedAt:     now,
		}
		return e.Ledger.Record(ctx, tx, record)
	})
	if err != nil {
		return nil, err
	}

	if e.Logger != nil {
		e.Logger.Info("subscription opened",
			zap.String("subscriber", subscriberID),
			zap.String("provider", providerID),
			zap.String("plan", plan.Name))
	}
	return sub, nil
}

// Follow opens the zero-price Follower subscription: no monetary leg, an
// effectively unbounded end date.
func (e *Engine) Follow(ctx context.Context, providerID, subscriberID string) (*models.Subscription, error) {
	if providerID == subscriberID {
		return nil, apperr.Forbidden("You cannot follow yourself")
	}
	provider, err := e.Repo.GetUserByID(ctx, providerID)
	if err != nil {
		return nil, err
	}
	if provider == nil {
		return nil, apperr.NotFound("Provider not found")
	}

	now := e.now()
	active, err := e.Repo.GetActiveSubscription(ctx, subscriberID, providerID, now)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, apperr.InvalidState("You are already following or subscribed to this provider")
	}

	sub := &models.Subscription{
		SubscriberID: subscriberID,
		ProviderID:   providerID,
		PlanName:     models.FollowerPlanName,
		PricePaid:    decimal.Zero,
		StartsAt:     now,
		EndsAt:       now.AddDate(followerPlanYears, 0, 0),
		IsActive:     true,
		CreatedAt:    now,
	}
	err = e.Repo.InTx(ctx, func(tx *gorm.DB) error {
		if _, err := e.Repo.GetUserForUpdateTx(ctx, tx, subscriberID); err != nil {
			return err
		}
		// Same race window as Subscribe: repeat the pair check under the
		// subscriber row lock.
		dup, err := e.Repo.GetActiveSubscriptionTx(ctx, tx, subscriberID, providerID, now)
		if err != nil {
			return err
		}
		if dup != nil {
			return apperr.InvalidState("You are already following or subscribed to this provider")
		}
		return e.Repo.InsertSubscriptionTx(ctx, tx, sub)
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func strPtr(v string) *string { return &v }
