package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"gameshop/internal/middleware"
	"gameshop/internal/service/ledger"
	"gameshop/internal/service/topup"
	"gameshop/pkg/utils"
)

// TopupSubmitRequest is a user's transfer slip
type TopupSubmitRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	SenderBank     string          `json:"senderBank" binding:"required,max=50"`
	TransactionRef string          `json:"transactionRef" binding:"required,max=64"`
	ProofImage     string          `json:"proofImage" binding:"required"`
}

// AccountHandler serves the caller's wallet
type AccountHandler struct {
	ledgerService ledger.LedgerService
	topupService  topup.TopupService
}

// NewAccountHandler creates an account handler
func NewAccountHandler(ledgerService ledger.LedgerService, topupService topup.TopupService) *AccountHandler {
	return &AccountHandler{ledgerService: ledgerService, topupService: topupService}
}

// Balance returns balances, tiers and recent movements
func (h *AccountHandler) Balance(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		respondError(c, utils.ErrUnauthorized)
		return
	}

	view, err := h.ledgerService.Balance(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, view)
}

// SubmitTopup files a PENDING topup request
func (h *AccountHandler) SubmitTopup(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		respondError(c, utils.ErrUnauthorized)
		return
	}

	var req TopupSubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, utils.BindError(err))
		return
	}

	created, err := h.topupService.Submit(c.Request.Context(), topup.SubmitRequest{
		UserID:         userID,
		Amount:         req.Amount,
		SenderBank:     req.SenderBank,
		TransactionRef: req.TransactionRef,
		ProofImage:     req.ProofImage,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, created)
}
