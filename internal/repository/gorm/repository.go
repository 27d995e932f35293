package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"signalmarket/internal/models"
	"signalmarket/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// scoped returns the tx when one is supplied, falling back to the root
// handle for callers outside a transaction.
func (s *Store) scoped(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db.WithContext(ctx)
}

// --- users ------------------------------------------------------------------

func (s *Store) InsertUser(ctx context.Context, item *models.User) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.User
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.User
	err := s.db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetUserForUpdateTx(ctx context.Context, tx *gorm.DB, id string) (*models.User, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.User
	err := s.scoped(ctx, tx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpdateUserBalanceTx(ctx context.Context, tx *gorm.DB, id string, balance decimal.Decimal) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.scoped(ctx, tx).
		Model(&models.User{}).
		Where("id = ?", id).
		Update("wallet_balance", balance).Error
}

// --- signals ----------------------------------------------------------------

func (s *Store) InsertSignal(ctx context.Context, item *models.Signal) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetSignalByID(ctx context.Context, id string) (*models.Signal, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Signal
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetSignalForUpdateTx(ctx context.Context, tx *gorm.DB, id string) (*models.Signal, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Signal
	err := s.scoped(ctx, tx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListSignals(ctx context.Context, params repository.ListSignalsParams) ([]models.Signal, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Signal{})
	if params.Category != nil && strings.TrimSpace(*params.Category) != "" {
		query = query.Where("category = ?", strings.TrimSpace(*params.Category))
	}
	if params.ProviderID != nil && strings.TrimSpace(*params.ProviderID) != "" {
		query = query.Where("provider_id = ?", strings.TrimSpace(*params.ProviderID))
	}
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at")
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.Signal
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListTrendingSignals(ctx context.Context, limit int) ([]models.Signal, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Signal
	err := s.db.WithContext(ctx).
		Order("purchased_count DESC").
		Limit(normalizeLimit(limit, 5)).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListActiveSignals(ctx context.Context, limit int) ([]models.Signal, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Signal
	err := s.db.WithContext(ctx).
		Where("status = ?", models.SignalStatusActive).
		Where("expired = ?", false).
		Order("created_at ASC").
		Limit(normalizeLimit(limit, 200)).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) UpdateSignal(ctx context.Context, item *models.Signal) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Save(item).Error
}

func (s *Store) UpdateSignalOutcome(ctx context.Context, item *models.Signal) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.Signal{}).
		Where("id = ?", item.ID).
		Updates(map[string]any{
			"status":        item.Status,
			"hit_stop_loss": item.HitStopLoss,
			"hit_targets":   item.HitTargets,
			"last_price":    item.LastPrice,
		}).Error
}

func (s *Store) IncrementSignalPurchasesTx(ctx context.Context, tx *gorm.DB, signalID string) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.scoped(ctx, tx).
		Model(&models.Signal{}).
		Where("id = ?", signalID).
		Update("purchased_count", gorm.Expr("purchased_count + 1")).Error
}

func (s *Store) DeleteSignal(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Signal{}).Error
}

// --- purchases --------------------------------------------------------------

func (s *Store) InsertSignalPurchaseTx(ctx context.Context, tx *gorm.DB, item *models.SignalPurchase) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.scoped(ctx, tx).Create(item).Error
}

func (s *Store) GetSignalPurchase(ctx context.Context, signalID, buyerID string) (*models.SignalPurchase, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.SignalPurchase
	err := s.db.WithContext(ctx).
		Where("signal_id = ? AND buyer_id = ?", signalID, buyerID).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListPurchasesByBuyer(ctx context.Context, buyerID string) ([]models.SignalPurchase, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.SignalPurchase
	err := s.db.WithContext(ctx).
		Where("buyer_id = ?", buyerID).
		Order("created_at DESC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListPurchasedSignalIDs(ctx context.Context, buyerID string) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&models.SignalPurchase{}).
		Where("buyer_id = ?", buyerID).
		Pluck("signal_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// --- subscriptions ----------------------------------------------------------

func (s *Store) InsertSubscriptionTx(ctx context.Context, tx *gorm.DB, item *models.Subscription) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.scoped(ctx, tx).Create(item).Error
}

func (s *Store) GetActiveSubscription(ctx context.Context, subscriberID, providerID string, now time.Time) (*models.Subscription, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Subscription
	err := s.db.WithContext(ctx).
		Where("subscriber_id = ? AND provider_id = ?", subscriberID, providerID).
		Where("is_active = ?", true).
		Where("ends_at > ?", now).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetActiveSubscriptionTx(ctx context.Context, tx *gorm.DB, subscriberID, providerID string, now time.Time) (*models.Subscription, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Subscription
	err := s.scoped(ctx, tx).
		Where("subscriber_id = ? AND provider_id = ?", subscriberID, providerID).
		Where("is_active = ?", true).
		Where("ends_at > ?", now).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListActiveProviderIDs(ctx context.Context, subscriberID string, now time.Time) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Distinct("provider_id").
		Where("subscriber_id = ?", subscriberID).
		Where("is_active = ?", true).
		Where("ends_at > ?", now).
		Pluck("provider_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Store) DeactivateExpiredSubscriptions(ctx context.Context, now time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("is_active = ?", true).
		Where("ends_at <= ?", now).
		Update("is_active", false)
	return res.RowsAffected, res.Error
}

// --- transactions -----------------------------------------------------------

func (s *Store) InsertTransactionTx(ctx context.Context, tx *gorm.DB, item *models.Transaction) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.scoped(ctx, tx).Create(item).Error
}

func (s *Store) GetTransactionByID(ctx context.Context, id uint64) (*models.Transaction, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Transaction
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetTransactionForUpdateTx(ctx context.Context, tx *gorm.DB, id uint64) (*models.Transaction, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Transaction
	err := s.scoped(ctx, tx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) SaveTransactionTx(ctx context.Context, tx *gorm.DB, item *models.Transaction) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.scoped(ctx, tx).Save(item).Error
}

func (s *Store) FindTransactionByTxHash(ctx context.Context, hash string) (*models.Transaction, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	hash = strings.ToLower(strings.TrimSpace(hash))
	if hash == "" {
		return nil, nil
	}
	var item models.Transaction
	err := s.db.WithContext(ctx).Where("tx_hash = ?", hash).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListTransactionsForUser(ctx context.Context, userID string, params repository.ListTransactionsParams) ([]models.Transaction, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("payer_id = ? OR payee_id = ?", userID, userID)
	query = applyTxFilters(query, params)
	var items []models.Transaction
	err := query.
		Order("created_at DESC").
		Limit(normalizeLimit(params.Limit, 20)).
		Offset(normalizeOffset(params.Offset)).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListTransactions(ctx context.Context, params repository.ListTransactionsParams) ([]models.Transaction, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Transaction{})
	query = applyTxFilters(query, params)
	var items []models.Transaction
	err := query.
		Order("created_at DESC").
		Limit(normalizeLimit(params.Limit, 100)).
		Offset(normalizeOffset(params.Offset)).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// --- helpers ----------------------------------------------------------------

func applyTxFilters(query *gorm.DB, params repository.ListTransactionsParams) *gorm.DB {
	if params.Type != nil && strings.TrimSpace(*params.Type) != "" {
		query = query.Where("type = ?", strings.TrimSpace(*params.Type))
	}
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	return query
}

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	col := strings.TrimSpace(orderBy)
	if col == "" {
		col = fallback
	}
	dir := "DESC"
	if asc != nil && *asc {
		dir = "ASC"
	}
	return query.Order(col + " " + dir)
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
