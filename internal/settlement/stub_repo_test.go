package settlement

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"signalmarket/internal/models"
	"signalmarket/internal/repository"
)

// stubRepo is a test-only in-memory implementation of repository.Repository.
// InTx runs the callback with a nil handle (the Tx methods ignore it) and
// restores the pre-transaction state when the callback fails, matching the
// rollback the gorm store provides.
type stubRepo struct {
	users     map[string]*models.User
	signals   map[string]*models.Signal
	purchases map[string]*models.SignalPurchase
	subs      []*models.Subscription
	txs       map[uint64]*models.Transaction

	nextSubID uint64
	nextTxID  uint64
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		users:     map[string]*models.User{},
		signals:   map[string]*models.Signal{},
		purchases: map[string]*models.SignalPurchase{},
		txs:       map[uint64]*models.Transaction{},
	}
}

func purchaseKey(signalID, buyerID string) string { return signalID + "|" + buyerID }

func (s *stubRepo) addUser(id string, balance decimal.Decimal) *models.User {
	u := &models.User{ID: id, Email: id + "@example.com", WalletBalance: balance}
	s.users[id] = u
	return u
}

func (s *stubRepo) addSignal(sig *models.Signal) *models.Signal {
	s.signals[sig.ID] = sig
	return sig
}

func (s *stubRepo) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	snap := s.snapshot()
	if err := fn(nil); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *stubRepo) snapshot() *stubRepo {
	snap := newStubRepo()
	for id, u := range s.users {
		cp := *u
		snap.users[id] = &cp
	}
	for id, sig := range s.signals {
		cp := *sig
		snap.signals[id] = &cp
	}
	for k, p := range s.purchases {
		cp := *p
		snap.purchases[k] = &cp
	}
	for _, sub := range s.subs {
		cp := *sub
		snap.subs = append(snap.subs, &cp)
	}
	for id, t := range s.txs {
		cp := *t
		snap.txs[id] = &cp
	}
	snap.nextSubID = s.nextSubID
	snap.nextTxID = s.nextTxID
	return snap
}

func (s *stubRepo) restore(snap *stubRepo) {
	s.users = snap.users
	s.signals = snap.signals
	s.purchases = snap.purchases
	s.subs = snap.subs
	s.txs = snap.txs
	s.nextSubID = snap.nextSubID
	s.nextTxID = snap.nextTxID
}

func (s *stubRepo) InsertUser(ctx context.Context, item *models.User) error {
	s.users[item.ID] = item
	return nil
}
func (s *stubRepo) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}
func (s *stubRepo) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}
func (s *stubRepo) GetUserForUpdateTx(ctx context.Context, tx *gorm.DB, id string) (*models.User, error) {
	return s.GetUserByID(ctx, id)
}
func (s *stubRepo) UpdateUserBalanceTx(ctx context.Context, tx *gorm.DB, id string, balance decimal.Decimal) error {
	if u, ok := s.users[id]; ok {
		u.WalletBalance = balance
	}
	return nil
}

func (s *stubRepo) InsertSignal(ctx context.Context, item *models.Signal) error {
	s.signals[item.ID] = item
	return nil
}
func (s *stubRepo) GetSignalByID(ctx context.Context, id string) (*models.Signal, error) {
	sig, ok := s.signals[id]
	if !ok {
		return nil, nil
	}
	cp := *sig
	return &cp, nil
}
func (s *stubRepo) GetSignalForUpdateTx(ctx context.Context, tx *gorm.DB, id string) (*models.Signal, error) {
	return s.GetSignalByID(ctx, id)
}
func (s *stubRepo) ListSignals(ctx context.Context, params repository.ListSignalsParams) ([]models.Signal, error) {
	return nil, nil
}
func (s *stubRepo) ListTrendingSignals(ctx context.Context, limit int) ([]models.Signal, error) {
	return nil, nil
}
func (s *stubRepo) ListActiveSignals(ctx context.Context, limit int) ([]models.Signal, error) {
	return nil, nil
}
func (s *stubRepo) UpdateSignal(ctx context.Context, item *models.Signal) error {
	s.signals[item.ID] = item
	return nil
}
func (s *stubRepo) UpdateSignalOutcome(ctx context.Context, item *models.Signal) error {
	s.signals[item.ID] = item
	return nil
}
func (s *stubRepo) IncrementSignalPurchasesTx(ctx context.Context, tx *gorm.DB, signalID string) error {
	if sig, ok := s.signals[signalID]; ok {
		sig.PurchasedCount++
	}
	return nil
}
func (s *stubRepo) DeleteSignal(ctx context.Context, id string) error {
	delete(s.signals, id)
	return nil
}

func (s *stubRepo) InsertSignalPurchaseTx(ctx context.Context, tx *gorm.DB, item *models.SignalPurchase) error {
	s.purchases[purchaseKey(item.SignalID, item.BuyerID)] = item
	return nil
}
func (s *stubRepo) GetSignalPurchase(ctx context.Context, signalID, buyerID string) (*models.SignalPurchase, error) {
	p, ok := s.purchases[purchaseKey(signalID, buyerID)]
	if !ok {
		return nil, nil
	}
	return p, nil
}
func (s *stubRepo) ListPurchasesByBuyer(ctx context.Context, buyerID string) ([]models.SignalPurchase, error) {
	var out []models.SignalPurchase
	for _, p := range s.purchases {
		if p.BuyerID == buyerID {
			out = append(out, *p)
		}
	}
	return out, nil
}
func (s *stubRepo) ListPurchasedSignalIDs(ctx context.Context, buyerID string) ([]string, error) {
	var out []string
	for _, p := range s.purchases {
		if p.BuyerID == buyerID {
			out = append(out, p.SignalID)
		}
	}
	return out, nil
}

func (s *stubRepo) InsertSubscriptionTx(ctx context.Context, tx *gorm.DB, item *models.Subscription) error {
	s.nextSubID++
	item.ID = s.nextSubID
	s.subs = append(s.subs, item)
	return nil
}
func (s *stubRepo) GetActiveSubscription(ctx context.Context, subscriberID, providerID string, now time.Time) (*models.Subscription, error) {
	for _, sub := range s.subs {
		if sub.SubscriberID == subscriberID && sub.ProviderID == providerID && sub.Current(now) {
			return sub, nil
		}
	}
	return nil, nil
}
func (s *stubRepo) GetActiveSubscriptionTx(ctx context.Context, tx *gorm.DB, subscriberID, providerID string, now time.Time) (*models.Subscription, error) {
	return s.GetActiveSubscription(ctx, subscriberID, providerID, now)
}
func (s *stubRepo) ListActiveProviderIDs(ctx context.Context, subscriberID string, now time.Time) ([]string, error) {
	var out []string
	for _, sub := range s.subs {
		if sub.SubscriberID == subscriberID && sub.Current(now) {
			out = append(out, sub.ProviderID)
		}
	}
	return out, nil
}
func (s *stubRepo) DeactivateExpiredSubscriptions(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	for _, sub := range s.subs {
		if sub.IsActive && sub.EndsAt.Before(now) {
			sub.IsActive = false
			n++
		}
	}
	return n, nil
}

func (s *stubRepo) InsertTransactionTx(ctx context.Context, tx *gorm.DB, item *models.Transaction) error {
	s.nextTxID++
	item.ID = s.nextTxID
	s.txs[item.ID] = item
	return nil
}
func (s *stubRepo) GetTransactionByID(ctx context.Context, id uint64) (*models.Transaction, error) {
	t, ok := s.txs[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}
func (s *stubRepo) GetTransactionForUpdateTx(ctx context.Context, tx *gorm.DB, id uint64) (*models.Transaction, error) {
	return s.GetTransactionByID(ctx, id)
}
func (s *stubRepo) SaveTransactionTx(ctx context.Context, tx *gorm.DB, item *models.Transaction) error {
	s.txs[item.ID] = item
	return nil
}
func (s *stubRepo) FindTransactionByTxHash(ctx context.Context, hash string) (*models.Transaction, error) {
	hash = strings.ToLower(hash)
	for _, t := range s.txs {
		if t.TxHash != nil && *t.TxHash == hash {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}
func (s *stubRepo) ListTransactionsForUser(ctx context.Context, userID string, params repository.ListTransactionsParams) ([]models.Transaction, error) {
	var out []models.Transaction
	for _, t := range s.txs {
		if t.PayerID == userID || (t.PayeeID != nil && *t.PayeeID == userID) {
			out = append(out, *t)
		}
	}
	return out, nil
}
func (s *stubRepo) ListTransactions(ctx context.Context, params repository.ListTransactionsParams) ([]models.Transaction, error) {
	var out []models.Transaction
	for _, t := range s.txs {
		out = append(out, *t)
	}
	return out, nil
}
