// Package ledger is the only place wallet balances change. Every mutation is
// a read-check-write under a row lock inside the caller's transaction, so
// two concurrent debits cannot both pass the funds check on a stale balance.
package ledger

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"signalmarket/internal/apperr"
	"signalmarket/internal/models"
	"signalmarket/internal/repository"
)

const (
	msgUserNotFound      = "User not found"
	msgInsufficientFunds = "Insufficient wallet balance"
)

type Ledger struct {
	Repo repository.Repository
}

// Debit removes amount from the user's spendable balance, failing before any
// mutation when the balance does not cover it.
func (l *Ledger) Debit(ctx context.Context, tx *gorm.DB, userID string, amount decimal.Decimal) (*models.User, error) {
	user, err := l.Repo.GetUserForUpdateTx(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.NotFound(msgUserNotFound)
	}
	if user.WalletBalance.LessThan(amount) {
		return nil, apperr.InsufficientFunds(msgInsufficientFunds)
	}
	user.WalletBalance = user.WalletBalance.Sub(amount)
	if err := l.Repo.UpdateUserBalanceTx(ctx, tx, userID, user.WalletBalance); err != nil {
		return nil, err
	}
	return user, nil
}

func (l *Ledger) Credit(ctx context.Context, tx *gorm.DB, userID string, amount decimal.Decimal) (*models.User, error) {
	user, err := l.Repo.GetUserForUpdateTx(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.NotFound(msgUserNotFound)
	}
	user.WalletBalance = user.WalletBalance.Add(amount)
	if err := l.Repo.UpdateUserBalanceTx(ctx, tx, userID, user.WalletBalance); err != nil {
		return nil, err
	}
	return user, nil
}

// Transfer debits from and credits to as one inseparable unit. Row locks are
// taken in id order so two opposing transfers cannot deadlock.
func (l *Ledger) Transfer(ctx context.Context, tx *gorm.DB, fromID, toID string, amount decimal.Decimal) error {
	users := map[string]*models.User{}
	ids := []string{fromID, toID}
	sort.Strings(ids)
	for _, id := range ids {
		user, err := l.Repo.GetUserForUpdateTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if user == nil {
			return apperr.NotFound(msgUserNotFound)
		}
		users[id] = user
	}

	from, to := users[fromID], users[toID]
	if from.WalletBalance.LessThan(amount) {
		return apperr.InsufficientFunds(msgInsufficientFunds)
	}
	from.WalletBalance = from.WalletBalance.Sub(amount)
	to.WalletBalance = to.WalletBalance.Add(amount)

	if err := l.Repo.UpdateUserBalanceTx(ctx, tx, fromID, from.WalletBalance); err != nil {
		return err
	}
	return l.Repo.UpdateUserBalanceTx(ctx, tx, toID, to.WalletBalance)
}

// Record appends an immutable transaction row in the same scope as the
// balance change it documents.
func (l *Ledger) Record(ctx context.Context, tx *gorm.DB, item *models.Transaction) error {
	return l.Repo.InsertTransactionTx(ctx, tx, item)
}
