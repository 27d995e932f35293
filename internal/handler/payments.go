package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"signalmarket/internal/auth"
	"signalmarket/internal/repository"
	"signalmarket/internal/settlement"
)

type PaymentsHandler struct {
	Repo   repository.Repository
	Engine *settlement.Engine
	JWT    auth.JWT
	Logger *zap.Logger
}

func (h *PaymentsHandler) Register(r *gin.Engine) {
	group := r.Group("/api/payments", auth.Required(h.JWT))
	group.POST("/unlock-signal", h.unlockSignal)
	group.POST("/subscribe", h.subscribe)
	group.POST("/follow", h.follow)
	group.POST("/deposit", h.deposit)
	group.POST("/withdraw", h.withdraw)
	group.GET("/history", h.history)
	group.GET("/deposit-info", h.depositInfo)
	group.GET("/balance", h.balance)
}

type unlockSignalRequest struct {
	SignalID string `json:"signalId" binding:"required"`
}

func (h *PaymentsHandler) unlockSignal(c *gin.Context) {
	userID, _ := auth.UserID(c)
	var req unlockSignalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	purchase, err := h.Engine.UnlockSignal(c.Request.Context(), req.SignalID, userID)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, purchase, nil)
}

type subscribeRequest struct {
	ProviderID string `json:"providerId" binding:"required"`
	PlanName   string `json:"planName" binding:"required"`
}

func (h *PaymentsHandler) subscribe(c *gin.Context) {
	userID, _ := auth.UserID(c)
	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	sub, err := h.Engine.Subscribe(c.Request.Context(), req.ProviderID, userID, req.PlanName)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, sub, nil)
}

type followRequest struct {
	ProviderID string `json:"providerId" binding:"required"`
}

func (h *PaymentsHandler) follow(c *gin.Context) {
	userID, _ := auth.UserID(c)
	var req followRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	sub, err := h.Engine.Follow(c.Request.Context(), req.ProviderID, userID)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, sub, nil)
}

type depositRequest struct {
	Amount     decimal.Decimal `json:"amount" binding:"required"`
	TxHash     string          `json:"txHash" binding:"required"`
	Network    string          `json:"network"`
	ProofImage string          `json:"proofImage"`
}

func (h *PaymentsHandler) deposit(c *gin.Context) {
	userID, _ := auth.UserID(c)
	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	tx, err := h.Engine.SubmitDeposit(c.Request.Context(), userID, req.Amount, req.TxHash, req.Network, req.ProofImage)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, tx, nil)
}

type withdrawRequest struct {
	Amount             decimal.Decimal `json:"amount" binding:"required"`
	DestinationAddress string          `json:"destinationAddress" binding:"required"`
	Network            string          `json:"network"`
}

func (h *PaymentsHandler) withdraw(c *gin.Context) {
	userID, _ := auth.UserID(c)
	var req withdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	tx, err := h.Engine.RequestWithdrawal(c.Request.Context(), userID, req.Amount, req.DestinationAddress, req.Network)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, tx, nil)
}

func (h *PaymentsHandler) history(c *gin.Context) {
	userID, _ := auth.UserID(c)
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
	txs, err := h.Repo.ListTransactionsForUser(c.Request.Context(), userID, params)
	if err != nil {
		Error(c, http.StatusInternalServerError, "server error", nil)
		return
	}
	Ok(c, txs, paginationMeta(params.Limit, params.Offset, int64(len(txs))))
}

func (h *PaymentsHandler) depositInfo(c *gin.Context) {
	Ok(c, gin.H{
		"currency": "USDT",
		"networks": []gin.H{
			{"network": "TRC20", "address": h.Engine.Wallets.TRC20Address},
			{"network": "ERC20", "address": h.Engine.Wallets.ERC20Address},
		},
	}, nil)
}

func (h *PaymentsHandler) balance(c *gin.Context) {
	userID, _ := auth.UserID(c)
	user, err := h.Repo.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		Error(c, http.StatusInternalServerError, "server error", nil)
		return
	}
	if user == nil {
		Error(c, http.StatusNotFound, "User not found", nil)
		return
	}
	Ok(c, gin.H{"balance": user.WalletBalance, "currency": "USDT"}, nil)
}
