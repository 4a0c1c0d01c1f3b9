package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"gameshop/internal/middleware"
	"gameshop/internal/service/purchase"
	"gameshop/pkg/utils"
)

// IdempotencyHeader lets a client retry a purchase without a body change
const IdempotencyHeader = "Idempotency-Key"

// CheckoutRequest buys one unit per entry of ProductIDs
type CheckoutRequest struct {
	ProductIDs []uint64 `json:"productIds" binding:"required,min=1"`
	PromoCode  string   `json:"promoCode"`
	RequestID  string   `json:"requestId" binding:"max=64"`
}

// SingleRequest buys one unit of one product
type SingleRequest struct {
	ProductID uint64 `json:"productId" binding:"required,gt=0"`
	PromoCode string `json:"promoCode"`
	RequestID string `json:"requestId" binding:"max=64"`
}

// PurchaseHandler purchase handler
type PurchaseHandler struct {
	purchaseService purchase.PurchaseService
}

// NewPurchaseHandler creates a purchase handler
func NewPurchaseHandler(purchaseService purchase.PurchaseService) *PurchaseHandler {
	return &PurchaseHandler{purchaseService: purchaseService}
}

func requestID(c *gin.Context, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	return c.GetHeader(IdempotencyHeader)
}

// Checkout buys a whole cart or nothing
func (h *PurchaseHandler) Checkout(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		fail(c, utils.ErrUnauthorized)
		return
	}

	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, utils.BindError(err))
		return
	}

	res, err := h.purchaseService.Purchase(c.Request.Context(), purchase.Request{
		UserID:     userID,
		RequestID:  requestID(c, req.RequestID),
		ProductIDs: req.ProductIDs,
		PromoCode:  req.PromoCode,
	})
	if err != nil {
		fail(c, err)
		return
	}

	succeed(c, gin.H{
		"purchasedCount": res.PurchasedCount,
		"totalPrice":     res.TotalPrice,
		"totalPoints":    res.TotalPoints,
		"discountAmount": res.DiscountAmount,
		"rewardPoints":   res.RewardPoints,
		"purchaseNo":     res.PurchaseNo,
		"requestId":      res.RequestID,
		"replayed":       res.Replayed,
		"items":          res.Items,
	})
}

// Purchase buys a single product
func (h *PurchaseHandler) Purchase(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		fail(c, utils.ErrUnauthorized)
		return
	}

	var req SingleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, utils.BindError(err))
		return
	}

	name, err := h.purchaseService.PurchaseOne(c.Request.Context(), userID, requestID(c, req.RequestID), req.ProductID, req.PromoCode)
	if err != nil {
		fail(c, err)
		return
	}

	succeed(c, gin.H{"productName": name})
}

// History lists the caller's purchases with their credentials
func (h *PurchaseHandler) History(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		respondError(c, utils.ErrUnauthorized)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))
	page, size = utils.ValidatePage(page, size)

	results, total, err := h.purchaseService.History(c.Request.Context(), userID, page, size)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessPageResponse(c, results, total, page, size)
}
