package settlement

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"signalmarket/internal/apperr"
	"signalmarket/internal/blockchain"
	"signalmarket/internal/models"
)

func TestWithdrawalLifecycle(t *testing.T) {
	repo := newStubRepo()
	repo.addUser("user-1", decimal.NewFromInt(100))

	engine := newTestEngine(repo)
	ctx := context.Background()

	record, err := engine.RequestWithdrawal(ctx, "user-1", decimal.NewFromInt(40), "TAddr123", "")
	if err != nil {
		t.Fatalf("request withdrawal: %v", err)
	}
	if record.Status != models.TxStatusPending {
		t.Fatalf("status = %s, want pending", record.Status)
	}
	if record.Network != "TRC20" {
		t.Fatalf("network default = %s, want TRC20", record.Network)
	}
	if got := repo.users["user-1"].WalletBalance; !got.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("debit happens at request time, balance = %s, want 60", got)
	}

	approved, err := engine.ApproveWithdrawal(ctx, record.ID, "admin-1")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != models.TxStatusApproved || approved.ApprovedBy == nil || *approved.ApprovedBy != "admin-1" {
		t.Fatalf("approve did not stamp admin: %+v", approved)
	}
	if got := repo.users["user-1"].WalletBalance; !got.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("approve must not touch the wallet, balance = %s", got)
	}

	completed, err := engine.CompleteWithdrawal(ctx, record.ID, "admin-1", "0xABCDEF")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.Status != models.TxStatusCompleted {
		t.Fatalf("status = %s, want completed", completed.Status)
	}
	if completed.TxHash == nil || *completed.TxHash != "0xabcdef" {
		t.Fatalf("hash must be stored lowercased, got %v", completed.TxHash)
	}

	if _, err := engine.CompleteWithdrawal(ctx, record.ID, "admin-1", "0xother"); apperr.KindOf(err) != apperr.KindInvalidState {
		t.Fatalf("completed is terminal, got %v", err)
	}
	if _, err := engine.RejectWithdrawal(ctx, record.ID, "admin-1", "too late"); apperr.KindOf(err) != apperr.KindInvalidState {
		t.Fatalf("completed withdrawals cannot be rejected, got %v", err)
	}
}

func TestCompleteWithdrawalWithoutHash(t *testing.T) {
	repo := newStubRepo()
	repo.addUser("user-1", decimal.NewFromInt(100))

	engine := newTestEngine(repo)
	ctx := context.Background()

	record, err := engine.RequestWithdrawal(ctx, "user-1", decimal.NewFromInt(40), "TAddr123", "")
	if err != nil {
		t.Fatalf("request withdrawal: %v", err)
	}
	if _, err := engine.ApproveWithdrawal(ctx, record.ID, "admin-1"); err != nil {
		t.Fatalf("approve: %v", err)
	}

	completed, err := engine.CompleteWithdrawal(ctx, record.ID, "admin-1", "")
	if err != nil {
		t.Fatalf("complete without hash: %v", err)
	}
	if completed.Status != models.TxStatusCompleted {
		t.Fatalf("status = %s, want completed", completed.Status)
	}
	if completed.TxHash != nil {
		t.Fatalf("no hash was supplied, got %v", *completed.TxHash)
	}
	if completed.CompletedBy == nil || *completed.CompletedBy != "admin-1" {
		t.Fatalf("complete did not stamp admin: %+v", completed)
	}
}

func TestWithdrawalRejectRefunds(t *testing.T) {
	repo := newStubRepo()
	repo.addUser("user-1", decimal.NewFromInt(100))

	engine := newTestEngine(repo)
	ctx := context.Background()

	record, err := engine.RequestWithdrawal(ctx, "user-1", decimal.NewFromInt(40), "TAddr123", "TRC20")
	if err != nil {
		t.Fatalf("request withdrawal: %v", err)
	}
	rejected, err := engine.RejectWithdrawal(ctx, record.ID, "admin-1", "suspicious address")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != models.TxStatusFailed || rejected.RejectionReason != "suspicious address" {
		t.Fatalf("reject state: %+v", rejected)
	}
	if got := repo.users["user-1"].WalletBalance; !got.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("rejection must refund the debit, balance = %s", got)
	}

	if _, err := engine.ApproveWithdrawal(ctx, record.ID, "admin-1"); apperr.KindOf(err) != apperr.KindInvalidState {
		t.Fatalf("failed is terminal, got %v", err)
	}
}

func TestWithdrawalInsufficientFunds(t *testing.T) {
	repo := newStubRepo()
	repo.addUser("user-1", decimal.NewFromInt(10))

	engine := newTestEngine(repo)
	if _, err := engine.RequestWithdrawal(context.Background(), "user-1", decimal.NewFromInt(40), "TAddr123", ""); apperr.KindOf(err) != apperr.KindInsufficientFunds {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if got := repo.users["user-1"].WalletBalance; !got.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("failed request must not debit, balance = %s", got)
	}
	if len(repo.txs) != 0 {
		t.Fatalf("failed request must not write a ledger entry")
	}
}

func TestWithdrawalValidation(t *testing.T) {
	repo := newStubRepo()
	repo.addUser("user-1", decimal.NewFromInt(100))
	engine := newTestEngine(repo)
	ctx := context.Background()

	if _, err := engine.RequestWithdrawal(ctx, "user-1", decimal.Zero, "TAddr123", ""); apperr.KindOf(err) != apperr.KindInvalidState {
		t.Fatalf("zero amount, got %v", err)
	}
	if _, err := engine.RequestWithdrawal(ctx, "user-1", decimal.NewFromInt(5), "  ", ""); apperr.KindOf(err) != apperr.KindInvalidState {
		t.Fatalf("blank destination, got %v", err)
	}
}

func TestDepositDuplicateHashCaseInsensitive(t *testing.T) {
	repo := newStubRepo()
	repo.addUser("user-1", decimal.Zero)
	repo.addUser("user-2", decimal.Zero)

	engine := newTestEngine(repo)
	ctx := context.Background()

	record, err := engine.SubmitDeposit(ctx, "user-1", decimal.NewFromInt(50), "0xAbC123", "TRC20", "")
	if err != nil {
		t.Fatalf("submit deposit: %v", err)
	}
	if record.TxHash == nil || *record.TxHash != "0xabc123" {
		t.Fatalf("hash must be stored lowercased, got %v", record.TxHash)
	}
	if record.Status != models.TxStatusPending {
		t.Fatalf("status = %s, want pending", record.Status)
	}
	if got := repo.users["user-1"].WalletBalance; !got.IsZero() {
		t.Fatalf("submission must not credit the wallet, balance = %s", got)
	}

	if _, err := engine.SubmitDeposit(ctx, "user-2", decimal.NewFromInt(50), "0XABC123", "TRC20", ""); apperr.KindOf(err) != apperr.KindInvalidState {
		t.Fatalf("duplicate hash in other casing must be rejected, got %v", err)
	}
}

func TestApproveDepositCreditsWallet(t *testing.T) {
	repo := newStubRepo()
	repo.addUser("user-1", decimal.NewFromInt(10))

	engine := newTestEngine(repo)
	ctx := context.Background()

	record, err := engine.SubmitDeposit(ctx, "user-1", decimal.NewFromInt(50), "0xhash1", "TRC20", "")
	if err != nil {
		t.Fatalf("submit deposit: %v", err)
	}
	approved, err := engine.ApproveDeposit(ctx, record.ID, "admin-1")
	if err != nil {
		t.Fatalf("approve deposit: %v", err)
	}
	if approved.Status != models.TxStatusCompleted {
		t.Fatalf("status = %s, want completed", approved.Status)
	}
	if got := repo.users["user-1"].WalletBalance; !got.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("balance = %s, want 60", got)
	}

	// Approval is terminal; a second approve must not double-credit.
	if _, err := engine.ApproveDeposit(ctx, record.ID, "admin-1"); apperr.KindOf(err) != apperr.KindInvalidState {
		t.Fatalf("expected invalid state, got %v", err)
	}
	if got := repo.users["user-1"].WalletBalance; !got.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("double approve credited twice, balance = %s", got)
	}
}

func TestRejectDepositLeavesWalletUntouched(t *testing.T) {
	repo := newStubRepo()
	repo.addUser("user-1", decimal.NewFromInt(10))

	engine := newTestEngine(repo)
	ctx := context.Background()

	record, err := engine.SubmitDeposit(ctx, "user-1", decimal.NewFromInt(50), "0xhash2", "ERC20", "")
	if err != nil {
		t.Fatalf("submit deposit: %v", err)
	}
	rejected, err := engine.RejectDeposit(ctx, record.ID, "admin-1", "no matching transfer")
	if err != nil {
		t.Fatalf("reject deposit: %v", err)
	}
	if rejected.Status != models.TxStatusFailed {
		t.Fatalf("status = %s, want failed", rejected.Status)
	}
	if got := repo.users["user-1"].WalletBalance; !got.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("reject must not move funds, balance = %s", got)
	}
}

type stubVerifier struct {
	result blockchain.Result
}

func (v stubVerifier) VerifyTRC20(ctx context.Context, txHash string, expectedAmount decimal.Decimal, expectedAddress string) (blockchain.Result, error) {
	return v.result, nil
}

func (v stubVerifier) VerifyERC20(ctx context.Context, txHash string, expectedAmount decimal.Decimal, expectedAddress string) (blockchain.Result, error) {
	return v.result, nil
}

func TestVerifyDepositIsAdvisory(t *testing.T) {
	repo := newStubRepo()
	repo.addUser("user-1", decimal.Zero)

	engine := newTestEngine(repo)
	engine.Verifier = stubVerifier{result: blockchain.Result{Valid: true}}
	ctx := context.Background()

	record, err := engine.SubmitDeposit(ctx, "user-1", decimal.NewFromInt(50), "0xhash4", "TRC20", "")
	if err != nil {
		t.Fatalf("submit deposit: %v", err)
	}
	result, err := engine.VerifyDeposit(ctx, record.ID)
	if err != nil {
		t.Fatalf("verify deposit: %v", err)
	}
	if !result.Valid {
		t.Fatalf("expected valid result")
	}
	after, err := repo.GetTransactionByID(ctx, record.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if after.Status != models.TxStatusPending {
		t.Fatalf("verification must not change status, got %s", after.Status)
	}
	if got := repo.users["user-1"].WalletBalance; !got.IsZero() {
		t.Fatalf("verification must not credit the wallet, balance = %s", got)
	}
}

func TestVerifyDepositUnsupportedNetwork(t *testing.T) {
	repo := newStubRepo()
	repo.addUser("user-1", decimal.Zero)

	engine := newTestEngine(repo)
	engine.Verifier = stubVerifier{}
	ctx := context.Background()

	record, err := engine.SubmitDeposit(ctx, "user-1", decimal.NewFromInt(50), "0xhash3", "BEP20", "")
	if err != nil {
		t.Fatalf("submit deposit: %v", err)
	}
	if _, err := engine.VerifyDeposit(ctx, record.ID); apperr.KindOf(err) != apperr.KindInvalidState {
		t.Fatalf("expected invalid state for unsupported network, got %v", err)
	}
}
