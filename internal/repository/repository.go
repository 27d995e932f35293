package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"signalmarket/internal/models"
)

type ListSignalsParams struct {
	Category   *string
	ProviderID *string
	Status     *string
	Limit      int
	Offset     int
	OrderBy    string
	Asc        *bool
}

type ListTransactionsParams struct {
	Type   *string
	Status *string
	Limit  int
	Offset int
}

// Repository is the persistence boundary shared by the entitlement,
// settlement and outcome components. Methods with a Tx suffix run against a
// caller-supplied transaction so a settlement operation can group its
// balance mutation and record inserts into one atomic scope.
type Repository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	// Users & wallets.
	InsertUser(ctx context.Context, item *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	// GetUserForUpdateTx reads the user row with a row lock; every balance
	// read-check-write happens under this lock.
	GetUserForUpdateTx(ctx context.Context, tx *gorm.DB, id string) (*models.User, error)
	UpdateUserBalanceTx(ctx context.Context, tx *gorm.DB, id string, balance decimal.Decimal) error

	// Signals.
	InsertSignal(ctx context.Context, item *models.Signal) error
	GetSignalByID(ctx context.Context, id string) (*models.Signal, error)
	GetSignalForUpdateTx(ctx context.Context, tx *gorm.DB, id string) (*models.Signal, error)
	ListSignals(ctx context.Context, params ListSignalsParams) ([]models.Signal, error)
	ListTrendingSignals(ctx context.Context, limit int) ([]models.Signal, error)
	ListActiveSignals(ctx context.Context, limit int) ([]models.Signal, error)
	UpdateSignal(ctx context.Context, item *models.Signal) error
	// UpdateSignalOutcome persists only the evaluator-owned columns.
	UpdateSignalOutcome(ctx context.Context, item *models.Signal) error
	IncrementSignalPurchasesTx(ctx context.Context, tx *gorm.DB, signalID string) error
	DeleteSignal(ctx context.Context, id string) error

	// Purchases (entitlement records).
	InsertSignalPurchaseTx(ctx context.Context, tx *gorm.DB, item *models.SignalPurchase) error
	GetSignalPurchase(ctx context.Context, signalID, buyerID string) (*models.SignalPurchase, error)
	ListPurchasesByBuyer(ctx context.Context, buyerID string) ([]models.SignalPurchase, error)
	ListPurchasedSignalIDs(ctx context.Context, buyerID string) ([]string, error)

	// Subscriptions.
	InsertSubscriptionTx(ctx context.Context, tx *gorm.DB, item *models.Subscription) error
	GetActiveSubscription(ctx context.Context, subscriberID, providerID string, now time.Time) (*models.Subscription, error)
	// GetActiveSubscriptionTx re-runs the active-pair check inside the
	// caller's transaction, after the subscriber row lock is held.
	GetActiveSubscriptionTx(ctx context.Context, tx *gorm.DB, subscriberID, providerID string, now time.Time) (*models.Subscription, error)
	ListActiveProviderIDs(ctx context.Context, subscriberID string, now time.Time) ([]string, error)
	DeactivateExpiredSubscriptions(ctx context.Context, now time.Time) (int64, error)

	// Transactions (immutable ledger entries; status-mutated only).
	InsertTransactionTx(ctx context.Context, tx *gorm.DB, item *models.Transaction) error
	GetTransactionByID(ctx context.Context, id uint64) (*models.Transaction, error)
	GetTransactionForUpdateTx(ctx context.Context, tx *gorm.DB, id uint64) (*models.Transaction, error)
	SaveTransactionTx(ctx context.Context, tx *gorm.DB, item *models.Transaction) error
	FindTransactionByTxHash(ctx context.Context, hash string) (*models.Transaction, error)
	ListTransactionsForUser(ctx context.Context, userID string, params ListTransactionsParams) ([]models.Transaction, error)
	ListTransactions(ctx context.Context, params ListTransactionsParams) ([]models.Transaction, error)
}
