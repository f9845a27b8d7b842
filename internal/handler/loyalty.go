package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Leganyst/master-booking/internal/calendar"
	"github.com/Leganyst/master-booking/internal/loyalty"
)

type LoyaltyHandler struct {
	ledger *loyalty.Ledger
	logger *zap.Logger
}

func NewLoyaltyHandler(ledger *loyalty.Ledger, logger *zap.Logger) *LoyaltyHandler {
	return &LoyaltyHandler{ledger: ledger, logger: logger}
}

type creditResponse struct {
	ClientID string `json:"client_id"`
	Balance  string `json:"balance"`
}

// GET /v1/clients/:id/credit (сам клиент или админ)
func (h *LoyaltyHandler) Balance(c *gin.Context) {
	clientID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	actor, _ := actorFrom(c)
	if err := calendar.AuthorizeClient(actor, clientID); err != nil {
		writeError(c, h.logger, err)
		return
	}
	balance, err := h.ledger.Balance(c.Request.Context(), clientID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, creditResponse{ClientID: clientID.String(), Balance: balance.StringFixed(2)})
}

// POST /v1/clients/:id/credit (admin)
func (h *LoyaltyHandler) Grant(c *gin.Context) {
	clientID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var in struct {
		Amount string `json:"amount" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	amount, err := decimal.NewFromString(in.Amount)
	if err != nil {
		badRequest(c, "amount must be a decimal number")
		return
	}

	ctx := c.Request.Context()
	if err := h.ledger.Grant(ctx, clientID, amount.Round(2)); err != nil {
		writeError(c, h.logger, err)
		return
	}
	balance, err := h.ledger.Balance(ctx, clientID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	h.logger.Info("credit granted", zap.Stringer("client_id", clientID), zap.String("amount", amount.StringFixed(2)))
	c.JSON(http.StatusOK, creditResponse{ClientID: clientID.String(), Balance: balance.StringFixed(2)})
}
