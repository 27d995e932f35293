package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"signalmarket/internal/auth"
	"signalmarket/internal/models"
	"signalmarket/internal/repository"
	"signalmarket/internal/settlement"
)

type AdminHandler struct {
	Repo   repository.Repository
	Engine *settlement.Engine
	JWT    auth.JWT
	Logger *zap.Logger
}

func (h *AdminHandler) Register(r *gin.Engine) {
	group := r.Group("/api/admin", auth.Required(h.JWT), auth.AdminOnly())
	group.GET("/transactions", h.listTransactions)
	group.POST("/withdrawals/:id/approve", h.approveWithdrawal)
	group.POST("/withdrawals/:id/complete", h.completeWithdrawal)
	group.POST("/withdrawals/:id/reject", h.rejectWithdrawal)
	group.POST("/deposits/:id/approve", h.approveDeposit)
	group.POST("/deposits/:id/reject", h.rejectDeposit)
	group.GET("/deposits/:id/verify", h.verifyDeposit)
}

func txID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		Error(c, http.StatusBadRequest, "invalid transaction id", nil)
		return 0, false
	}
	return id, true
}

func (h *AdminHandler) listTransactions(c *gin.Context) {
	params := repository.ListTransactionsParams{
		Limit:  intQuery(c, "limit", 50),
		Offset: intQuery(c, "offset", 0),
	}
	if v := c.Query("type"); v != "" {
		params.Type = &v
	}
	if v := c.Query("status"); v != "" {
		params.Status = &v
	}
	txs, err := h.Repo.ListTransactions(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusInternalServerError, "server error", nil)
		return
	}
	Ok(c, txs, paginationMeta(params.Limit, params.Offset, int64(len(txs))))
}

func (h *AdminHandler) approveWithdrawal(c *gin.Context) {
	id, ok := txID(c)
	if !ok {
		return
	}
	adminID, _ := auth.UserID(c)
	tx, err := h.Engine.ApproveWithdrawal(c.Request.Context(), id, adminID)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, tx, nil)
}

// The confirmation hash is optional; an operator may record the
// completion before the chain explorer shows the transaction.
type completeWithdrawalRequest struct {
	TxHash string `json:"txHash"`
}

func (h *AdminHandler) completeWithdrawal(c *gin.Context) {
	id, ok := txID(c)
	if !ok {
		return
	}
	var req completeWithdrawalRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			Error(c, http.StatusBadRequest, err.Error(), nil)
			return
		}
	}
	adminID, _ := auth.UserID(c)
	tx, err := h.Engine.CompleteWithdrawal(c.Request.Context(), id, adminID, req.TxHash)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, tx, nil)
}

type rejectRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (h *AdminHandler) rejectWithdrawal(c *gin.Context) {
	id, ok := txID(c)
	if !ok {
		return
	}
	var req rejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	adminID, _ := auth.UserID(c)
	tx, err := h.Engine.RejectWithdrawal(c.Request.Context(), id, adminID, req.Reason)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, tx, nil)
}

func (h *AdminHandler) approveDeposit(c *gin.Context) {
	id, ok := txID(c)
	if !ok {
		return
	}
	adminID, _ := auth.UserID(c)
	tx, err := h.Engine.ApproveDeposit(c.Request.Context(), id, adminID)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, tx, nil)
}

func (h *AdminHandler) rejectDeposit(c *gin.Context) {
	id, ok := txID(c)
	if !ok {
		return
	}
	var req rejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	adminID, _ := auth.UserID(c)
	tx, err := h.Engine.RejectDeposit(c.Request.Context(), id, adminID, req.Reason)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, tx, nil)
}

// verifyDeposit runs the advisory on-chain check without mutating the
// deposit; approval stays a separate explicit action.
func (h *AdminHandler) verifyDeposit(c *gin.Context) {
	id, ok := txID(c)
	if !ok {
		return
	}
	result, err := h.Engine.VerifyDeposit(c.Request.Context(), id)
	if err != nil {
		Fail(c, err)
		return
	}
	status := models.TxStatusPending
	if tx, err := h.Repo.GetTransactionByID(c.Request.Context(), id); err == nil && tx != nil {
		status = tx.Status
	}
	Ok(c, gin.H{
		"valid":  result.Valid,
		"reason": result.Reason,
		"amount": result.Amount,
		"from":   result.From,
		"status": status,
	}, nil)
}
