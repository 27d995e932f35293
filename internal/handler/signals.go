package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"signalmarket/internal/auth"
	"signalmarket/internal/db"
	"signalmarket/internal/entitlement"
	"signalmarket/internal/models"
	"signalmarket/internal/oracle"
	"signalmarket/internal/repository"
)

type SignalsHandler struct {
	Repo   repository.Repository
	Prices *oracle.Client
	JWT    auth.JWT
	Logger *zap.Logger
}

func (h *SignalsHandler) Register(r *gin.Engine) {
	group := r.Group("/api/signals")
	group.GET("", auth.Optional(h.JWT), h.list)
	group.GET("/trending", auth.Optional(h.JWT), h.trending)
	group.GET("/my-purchased", auth.Required(h.JWT), h.myPurchased)
	group.GET("/:id", auth.Optional(h.JWT), h.get)
	group.POST("", auth.Required(h.JWT), h.create)
	group.PUT("/:id", auth.Required(h.JWT), h.update)
	group.DELETE("/:id", auth.Required(h.JWT), h.remove)
}

// requester builds the per-request entitlement context once, no matter how
// many signals the request will resolve.
func (h *SignalsHandler) requester(c *gin.Context) (entitlement.Requester, error) {
	userID, ok := auth.UserID(c)
	if !ok {
		return entitlement.Requester{}, nil
	}
	req := entitlement.Requester{
		ID:         userID,
		Purchased:  map[string]struct{}{},
		Subscribed: map[string]struct{}{},
	}
	purchased, err := h.Repo.ListPurchasedSignalIDs(c.Request.Context(), userID)
	if err != nil {
		return entitlement.Requester{}, err
	}
	for _, id := range purchased {
		req.Purchased[id] = struct{}{}
	}
	providers, err := h.Repo.ListActiveProviderIDs(c.Request.Context(), userID, db.NowUTC())
	if err != nil {
		return entitlement.Requester{}, err
	}
	for _, id := range providers {
		req.Subscribed[id] = struct{}{}
	}
	return req, nil
}

// attachPrices fills CurrentPrice on projections whose pair has a quote.
// Market prices are public, so locked projections get them too.
func (h *SignalsHandler) attachPrices(c *gin.Context, projections []entitlement.Projection) {
	if h.Prices == nil || len(projections) == 0 {
		return
	}
	pairs := make([]string, 0, len(projections))
	for i := range projections {
		pairs = append(pairs, projections[i].Pair)
	}
	quotes := h.Prices.GetManyPrices(c.Request.Context(), pairs)
	for i := range projections {
		if price, ok := quotes[projections[i].Pair]; ok {
			p := price
			projections[i].CurrentPrice = &p
		}
	}
}

func (h *SignalsHandler) list(c *gin.Context) {
	params := repository.ListSignalsParams{
		Limit:  intQuery(c, "limit", 50),
		Offset: intQuery(c, "offset", 0),
	}
	if v := c.Query("category"); v != "" {
		params.Category = &v
	}
	if v := c.Query("providerId"); v != "" {
		params.ProviderID = &v
	}
	if v := c.Query("status"); v != "" {
		params.Status = &v
	}

	signals, err := h.Repo.ListSignals(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusInternalServerError, "server error", nil)
		return
	}
	req, err := h.requester(c)
	if err != nil {
		Error(c, http.StatusInternalServerError, "server error", nil)
		return
	}
	projections := entitlement.ResolveBatch(signals, req)
	h.attachPrices(c, projections)
	Ok(c, projections, paginationMeta(params.Limit, params.Offset, int64(len(projections))))
}

func (h *SignalsHandler) trending(c *gin.Context) {
	limit := intQuery(c, "limit", 10)
	signals, err := h.Repo.ListTrendingSignals(c.Request.Context(), limit)
	if err != nil {
		Error(c, http.StatusInternalServerError, "server error", nil)
		return
	}
	req, err := h.requester(c)
	if err != nil {
		Error(c, http.StatusInternalServerError, "server error", nil)
		return
	}
	projections := entitlement.ResolveBatch(signals, req)
	h.attachPrices(c, projections)
	Ok(c, projections, nil)
}

func (h *SignalsHandler) myPurchased(c *gin.Context) {
	userID, _ := auth.UserID(c)
	purchases, err := h.Repo.ListPurchasesByBuyer(c.Request.Context(), userID)
	if err != nil {
		Error(c, http.StatusInternalServerError, "server error", nil)
		return
	}
	req, err := h.requester(c)
	if err != nil {
		Error(c, http.StatusInternalServerError, "server error", nil)
		return
	}

	signals := make([]models.Signal, 0, len(purchases))
	for i := range purchases {
		sig, err := h.Repo.GetSignalByID(c.Request.Context(), purchases[i].SignalID)
		if err != nil {
			Error(c, http.StatusInternalServerError, "server error", nil)
			return
		}
		if sig != nil {
			signals = append(signals, *sig)
		}
	}
	projections := entitlement.ResolveBatch(signals, req)
	h.attachPrices(c, projections)
	Ok(c, projections, nil)
}

func (h *SignalsHandler) get(c *gin.Context) {
	sig, err := h.Repo.GetSignalByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		Error(c, http.StatusInternalServerError, "server error", nil)
		return
	}
	if sig == nil {
		Error(c, http.StatusNotFound, "Signal not found", nil)
		return
	}
	req, err := h.requester(c)
	if err != nil {
		Error(c, http.StatusInternalServerError, "server error", nil)
		return
	}
	projections := []entitlement.Projection{entitlement.Resolve(sig, req)}
	h.attachPrices(c, projections)
	Ok(c, projections[0], nil)
}

type createSignalRequest struct {
	Pair      string `json:"pair" binding:"required"`
	Category  string `json:"category" binding:"required"`
	Direction string `json:"direction" binding:"required"`

	EntryZone   string   `json:"entryZone" binding:"required"`
	TakeProfits []string `json:"tpList" binding:"required,min=1"`
	StopLoss    string   `json:"stopLoss" binding:"required"`
	Confidence  int      `json:"confidence" binding:"required,min=1,max=100"`
	Reasoning   string   `json:"reasoning" binding:"required"`
	TimeWindow  string   `json:"timeWindow"`

	Monetization   string          `json:"monetizationType" binding:"required"`
	Price          decimal.Decimal `json:"price"`
	RequiredTier   *string         `json:"requiredTier"`
	PerformanceFee decimal.Decimal `json:"performanceFee"`
}

func validCategory(v string) bool {
	switch v {
	case models.CategoryCrypto, models.CategoryForex, models.CategoryStocks, models.CategoryCommodities:
		return true
	}
	return false
}

func validMonetization(v string) bool {
	switch v {
	case models.MonetizationFree, models.MonetizationPayPerSignal,
		models.MonetizationSubscription, models.MonetizationPerformance:
		return true
	}
	return false
}

func (h *SignalsHandler) create(c *gin.Context) {
	userID, _ := auth.UserID(c)
	if auth.Role(c) != models.RoleSeller && auth.Role(c) != models.RoleAdmin {
		Error(c, http.StatusForbidden, "Only sellers can publish signals", nil)
		return
	}

	var req createSignalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	direction := strings.ToUpper(strings.TrimSpace(req.Direction))
	if direction != models.DirectionBuy && direction != models.DirectionSell {
		Error(c, http.StatusBadRequest, "direction must be BUY or SELL", nil)
		return
	}
	if !validCategory(req.Category) {
		Error(c, http.StatusBadRequest, "unknown category", nil)
		return
	}
	if !validMonetization(req.Monetization) {
		Error(c, http.StatusBadRequest, "unknown monetization type", nil)
		return
	}
	if req.Monetization == models.MonetizationPayPerSignal && !req.Price.IsPositive() {
		Error(c, http.StatusBadRequest, "pay-per-signal requires a positive price", nil)
		return
	}
	if req.Monetization == models.MonetizationSubscription &&
		(req.RequiredTier == nil || strings.TrimSpace(*req.RequiredTier) == "") {
		Error(c, http.StatusBadRequest, "subscription signals require a tier", nil)
		return
	}

	sig := &models.Signal{
		ID:             uuid.NewString(),
		ProviderID:     userID,
		Pair:           strings.ToUpper(strings.TrimSpace(req.Pair)),
		Category:       req.Category,
		Direction:      direction,
		EntryZone:      req.EntryZone,
		StopLoss:       req.StopLoss,
		Confidence:     req.Confidence,
		Reasoning:      req.Reasoning,
		TimeWindow:     req.TimeWindow,
		Monetization:   req.Monetization,
		Price:          req.Price,
		RequiredTier:   req.RequiredTier,
		PerformanceFee: req.PerformanceFee,
		Status:         models.SignalStatusActive,
	}
	if err := sig.SetTakeProfitLevels(req.TakeProfits); err != nil {
		Error(c, http.StatusBadRequest, "invalid take-profit list", nil)
		return
	}
	if err := sig.SetHitTargetIndices([]int{}); err != nil {
		Error(c, http.StatusInternalServerError, "server error", nil)
		return
	}
	if err := h.Repo.InsertSignal(c.Request.Context(), sig); err != nil {
		Error(c, http.StatusInternalServerError, "server error", nil)
		return
	}
	Ok(c, entitlement.Resolve(sig, entitlement.Requester{ID: userID}), nil)
}

type updateSignalRequest struct {
	EntryZone   *string   `json:"entryZone"`
	TakeProfits *[]string `json:"tpList"`
	StopLoss    *string   `json:"stopLoss"`
	Confidence  *int      `json:"confidence"`
	Reasoning   *string   `json:"reasoning"`
	TimeWindow  *string   `json:"timeWindow"`
}

func (h *SignalsHandler) update(c *gin.Context) {
	userID, _ := auth.UserID(c)
	sig, err := h.Repo.GetSignalByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		Error(c, http.StatusInternalServerError, "server error", nil)
		return
	}
	if sig == nil {
		Error(c, http.StatusNotFound, "Signal not found", nil)
		return
	}
	if sig.ProviderID != userID {
		Error(c, http.StatusForbidden, "You can only edit your own signals", nil)
		return
	}
	if sig.Status != models.SignalStatusActive {
		Error(c, http.StatusConflict, "Settled signals cannot be edited", nil)
		return
	}

	var req updateSignalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if req.EntryZone != nil {
		sig.EntryZone = *req.EntryZone
	}
	if req.TakeProfits != nil {
		if err := sig.SetTakeProfitLevels(*req.TakeProfits); err != nil {
			Error(c, http.StatusBadRequest, "invalid take-profit list", nil)
			return
		}
	}
	if req.StopLoss != nil {
		sig.StopLoss = *req.StopLoss
	}
	if req.Confidence != nil {
		sig.Confidence = *req.Confidence
	}
	if req.Reasoning != nil {
		sig.Reasoning = *req.Reasoning
	}
	if req.TimeWindow != nil {
		sig.TimeWindow = *req.TimeWindow
	}
	if err := h.Repo.UpdateSignal(c.Request.Context(), sig); err != nil {
		Error(c, http.StatusInternalServerError, "server error", nil)
		return
	}
	Ok(c, entitlement.Resolve(sig, entitlement.Requester{ID: userID}), nil)
}

func (h *SignalsHandler) remove(c *gin.Context) {
	userID, _ := auth.UserID(c)
	sig, err := h.Repo.GetSignalByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		Error(c, http.StatusInternalServerError, "server error", nil)
		return
	}
	if sig == nil {
		Error(c, http.StatusNotFound, "Signal not found", nil)
		return
	}
	if sig.ProviderID != userID && auth.Role(c) != models.RoleAdmin {
		Error(c, http.StatusForbidden, "You can only delete your own signals", nil)
		return
	}
	if sig.PurchasedCount > 0 {
		Error(c, http.StatusConflict, "Purchased signals cannot be deleted", nil)
		return
	}
	if err := h.Repo.DeleteSignal(c.Request.Context(), sig.ID); err != nil {
		Error(c, http.StatusInternalServerError, "server error", nil)
		return
	}
	Ok(c, gin.H{"deleted": sig.ID}, nil)
}
