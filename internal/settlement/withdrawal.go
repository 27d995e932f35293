package settlement

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"signalmarket/internal/apperr"
	"signalmarket/internal/models"
)

// RequestWithdrawal debits the wallet immediately: funds leave the spendable
// balance the moment the request is made, before any admin action. The
// refund on rejection is the only path by which they return.
func (e *Engine) RequestWithdrawal(ctx context.Context, userID string, amount decimal.Decimal, destinationAddress, network string) (*models.Transaction, error) {
	if !amount.IsPositive() {
		return nil, apperr.InvalidState("Invalid amount")
	}
	destinationAddress = strings.TrimSpace(destinationAddress)
	if destinationAddress == "" {
		return nil, apperr.InvalidState("Destination address is required")
	}
	network = strings.TrimSpace(network)
	if network == "" {
		network = "TRC20"
	}

	record := &models.Transaction{
		Type:               models.TxTypeWithdrawal,
		PayerID:            userID,
		Amount:             amount,
		Currency:           "USDT",
		Network:            network,
		DestinationAddress: destinationAddress,
		Status:             models.TxStatusPending,
		CreatedAt:          e.now(),
	}

	err := e.Repo.InTx(ctx, func(tx *gorm.DB) error {
		if _, err := e.Ledger.Debit(ctx, tx, userID, amount); err != nil {
			return err
		}
		return e.Ledger.Record(ctx, tx, record)
	})
	if err != nil {
		return nil, err
	}

	if e.Logger != nil {
		e.Logger.Info("withdrawal requested",
			zap.String("user", userID),
			zap.String("amount", amount.String()))
	}
	return record, nil
}

// ApproveWithdrawal moves pending -> approved. No balance change.
func (e *Engine) ApproveWithdrawal(ctx context.Context, txID uint64, adminID string) (*models.Transaction, error) {
	var record *models.Transaction
	err := e.Repo.InTx(ctx, func(tx *gorm.DB) error {
		item, err := e.lockWithdrawal(ctx, tx, txID)
		if err != nil {
			return err
		}
		if item.Status != models.TxStatusPending {
			return apperr.InvalidState("Transaction is not pending")
		}
		now := e.now()
		item.Status = models.TxStatusApproved
		item.ApprovedBy = &adminID
		item.ApprovedAt = &now
		record = item
		return e.Repo.SaveTransactionTx(ctx, tx, item)
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// CompleteWithdrawal moves approved -> completed, optionally attaching the
// external transaction hash. Terminal.
func (e *Engine) CompleteWithdrawal(ctx context.Context, txID uint64, adminID, txHash string) (*models.Transaction, error) {
	txHash = strings.ToLower(strings.TrimSpace(txHash))
	if txHash != "" {
		dup, err := e.Repo.FindTransactionByTxHash(ctx, txHash)
		if err != nil {
			return nil, err
		}
		if dup != nil && dup.ID != txID {
			return nil, apperr.InvalidState("This transaction hash has already been submitted")
		}
	}

	var record *models.Transaction
	err := e.Repo.InTx(ctx, func(tx *gorm.DB) error {
		item, err := e.lockWithdrawal(ctx, tx, txID)
		if err != nil {
			return err
		}
		if item.Status != models.TxStatusApproved {
			return apperr.InvalidState("Transaction is not in approved state")
		}
		now := e.now()
		item.Status = models.TxStatusCompleted
		item.CompletedBy = &adminID
		item.CompletedAt = &now
		if txHash != "" {
			item.TxHash = &txHash
		}
		record = item
		return e.Repo.SaveTransactionTx(ctx, tx, item)
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// RejectWithdrawal moves pending -> failed and refunds the optimistic debit
// in the same transaction as the status flip. An approved withdrawal can no
// longer be rejected.
func (e *Engine) RejectWithdrawal(ctx context.Context, txID uint64, adminID, reason string) (*models.Transaction, error) {
	if strings.TrimSpace(reason) == "" {
		reason = "Rejected by admin"
	}

	var record *models.Transaction
	err := e.Repo.InTx(ctx, func(tx *gorm.DB) error {
		item, err := e.lockWithdrawal(ctx, tx, txID)
		if err != nil {
			return err
		}
		if item.Status != models.TxStatusPending {
			return apperr.InvalidState("Transaction is not pending")
		}
		if _, err := e.Ledger.Credit(ctx, tx, item.PayerID, item.Amount); err != nil {
			return err
		}
		item.Status = models.TxStatusFailed
		item.RejectionReason = reason
		record = item
		return e.Repo.SaveTransactionTx(ctx, tx, item)
	})
	if err != nil {
		return nil, err
	}

	if e.Logger != nil {
		e.Logger.Info("withdrawal rejected and refunded",
			zap.Uint64("tx", txID), zap.String("admin", adminID))
	}
	return record, nil
}

func (e *Engine) lockWithdrawal(ctx context.Context, tx *gorm.DB, txID uint64) (*models.Transaction, error) {
	item, err := e.Repo.GetTransactionForUpdateTx(ctx, tx, txID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, apperr.NotFound("Transaction not found")
	}
	if item.Type != models.TxTypeWithdrawal {
		return nil, apperr.InvalidState("Not a withdrawal")
	}
	return item, nil
}
