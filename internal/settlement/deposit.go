package settlement

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"signalmarket/internal/apperr"
	"signalmarket/internal/blockchain"
	"signalmarket/internal/models"
)

// ChainVerifier is the advisory on-chain lookup for submitted deposits. Its
// result never transitions transaction state; only admin action does.
type ChainVerifier interface {
	VerifyTRC20(ctx context.Context, txHash string, expectedAmount decimal.Decimal, expectedAddress string) (blockchain.Result, error)
	VerifyERC20(ctx context.Context, txHash string, expectedAmount decimal.Decimal, expectedAddress string) (blockchain.Result, error)
}

// SubmitDeposit records a pending crypto deposit. The hash is stored
// lowercased; resubmitting a hash in any casing is rejected.
func (e *Engine) SubmitDeposit(ctx context.Context, userID string, amount decimal.Decimal, txHash, network, proofImage string) (*models.Transaction, error) {
	if !amount.IsPositive() {
		return nil, apperr.InvalidState("Invalid amount")
	}
	txHash = strings.ToLower(strings.TrimSpace(txHash))
	if txHash == "" {
		return nil, apperr.InvalidState("Transaction hash is required")
	}
	network = strings.TrimSpace(network)
	if network == "" {
		network = "TRC20"
	}

	user, err := e.Repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.NotFound("User not found")
	}

	dup, err := e.Repo.FindTransactionByTxHash(ctx, txHash)
	if err != nil {
		return nil, err
	}
	if dup != nil {
		return nil, apperr.InvalidState("This transaction hash has already been submitted")
	}

	record := &models.Transaction{
		Type:          models.TxTypeDeposit,
		PayerID:       userID,
		Amount:        amount,
		Currency:      "USDT",
		PaymentMethod: "Crypto",
		Network:       network,
		TxHash:        &txHash,
		ProofImage:    proofImage,
		Status:        models.TxStatusPending,
		CreatedAt:     e.now(),
	}
	err = e.Repo.InTx(ctx, func(tx *gorm.DB) error {
		return e.Ledger.Record(ctx, tx, record)
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// ApproveDeposit credits the wallet and completes the transaction in one
// atomic scope.
func (e *Engine) ApproveDeposit(ctx context.Context, txID uint64, adminID string) (*models.Transaction, error) {
	var record *models.Transaction
	err := e.Repo.InTx(ctx, func(tx *gorm.DB) error {
		item, err := e.lockDeposit(ctx, tx, txID)
		if err != nil {
			return err
		}
		if item.Status != models.TxStatusPending {
			return apperr.InvalidState("Transaction is not pending")
		}
		if _, err := e.Ledger.Credit(ctx, tx, item.PayerID, item.Amount); err != nil {
			return err
		}
		now := e.now()
		item.Status = models.TxStatusCompleted
		item.CompletedBy = &adminID
		item.CompletedAt = &now
		record = item
		return e.Repo.SaveTransactionTx(ctx, tx, item)
	})
	if err != nil {
		return nil, err
	}

	if e.Logger != nil {
		e.Logger.Info("deposit approved and wallet credited",
			zap.Uint64("tx", txID), zap.String("admin", adminID))
	}
	return record, nil
}

// RejectDeposit fails the transaction with a reason. The wallet is never
// touched: funds were not credited at submission.
func (e *Engine) RejectDeposit(ctx context.Context, txID uint64, adminID, reason string) (*models.Transaction, error) {
	if strings.TrimSpace(reason) == "" {
		reason = "No reason provided"
	}
	var record *models.Transaction
	err := e.Repo.InTx(ctx, func(tx *gorm.DB) error {
		item, err := e.lockDeposit(ctx, tx, txID)
		if err != nil {
			return err
		}
		if item.Status != models.TxStatusPending {
			return apperr.InvalidState("Transaction is not pending")
		}
		item.Status = models.TxStatusFailed
		item.RejectionReason = reason
		record = item
		return e.Repo.SaveTransactionTx(ctx, tx, item)
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// VerifyDeposit runs the advisory on-chain check for a submitted deposit.
func (e *Engine) VerifyDeposit(ctx context.Context, txID uint64) (blockchain.Result, error) {
	item, err := e.Repo.GetTransactionByID(ctx, txID)
	if err != nil {
		return blockchain.Result{}, err
	}
	if item == nil {
		return blockchain.Result{}, apperr.NotFound("Transaction not found")
	}
	if item.Type != models.TxTypeDeposit {
		return blockchain.Result{}, apperr.InvalidState("Transaction is not a deposit")
	}
	if e.Verifier == nil {
		return blockchain.Result{}, apperr.UpstreamUnavailable("Blockchain verifier not configured", nil)
	}
	hash := ""
	if item.TxHash != nil {
		hash = *item.TxHash
	}

	switch item.Network {
	case "TRC20":
		return e.Verifier.VerifyTRC20(ctx, hash, item.Amount, e.Wallets.TRC20Address)
	case "ERC20":
		return e.Verifier.VerifyERC20(ctx, hash, item.Amount, e.Wallets.ERC20Address)
	default:
		return blockchain.Result{}, apperr.InvalidState("Unsupported network: " + item.Network)
	}
}

func (e *Engine) lockDeposit(ctx context.Context, tx *gorm.DB, txID uint64) (*models.Transaction, error) {
	item, err := e.Repo.GetTransactionForUpdateTx(ctx, tx, txID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, apperr.NotFound("Transaction not found")
	}
	if item.Type != models.TxTypeDeposit {
		return nil, apperr.InvalidState("Transaction is not a deposit")
	}
	return item, nil
}
