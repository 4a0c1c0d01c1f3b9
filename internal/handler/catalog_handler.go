package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"gameshop/internal/service/promo"
	"gameshop/internal/service/stock"
	"gameshop/pkg/utils"
)

// CatalogHandler serves advisory storefront reads
type CatalogHandler struct {
	stockService stock.StockService
	promoService promo.PromoService
}

// NewCatalogHandler creates a catalog handler
func NewCatalogHandler(stockService stock.StockService, promoService promo.PromoService) *CatalogHandler {
	return &CatalogHandler{stockService: stockService, promoService: promoService}
}

// Availability reports how many units a product has left
func (h *CatalogHandler) Availability(c *gin.Context) {
	productID, err := utils.ParseID(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	n, err := h.stockService.Available(c.Request.Context(), productID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"productId": productID,
		"available": n,
	})
}

// QuotePromo previews the discount of a code on a subtotal
func (h *CatalogHandler) QuotePromo(c *gin.Context) {
	code := c.Param("code")
	subtotal, err := decimal.NewFromString(c.Query("subtotal"))
	if err != nil {
		respondError(c, utils.Validationf("subtotal must be a decimal number"))
		return
	}

	quote, err := h.promoService.Quote(c.Request.Context(), code, subtotal)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, quote)
}
