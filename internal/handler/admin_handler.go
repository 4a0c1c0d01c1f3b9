package handler

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"gameshop/internal/middleware"
	"gameshop/internal/model"
	"gameshop/internal/service/stock"
	"gameshop/internal/service/topup"
	"gameshop/pkg/utils"
)

// IngestRequest is a blob of credentials, one per separator
type IngestRequest struct {
	Stock     string `json:"stock" binding:"required"`
	Separator string `json:"separator"`
}

// AdminHandler admin handler
type AdminHandler struct {
	topupService topup.TopupService
	stockService stock.StockService
}

// NewAdminHandler creates an admin handler
func NewAdminHandler(topupService topup.TopupService, stockService stock.StockService) *AdminHandler {
	return &AdminHandler{topupService: topupService, stockService: stockService}
}

// TopupAction approves or rejects a pending topup
func (h *AdminHandler) TopupAction(c *gin.Context) {
	adminID, ok := middleware.GetUserID(c)
	if !ok {
		fail(c, utils.ErrUnauthorized)
		return
	}

	var req topup.ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, utils.BindError(err))
		return
	}

	res, err := h.topupService.Act(c.Request.Context(), adminID, req)
	if err != nil {
		fail(c, err)
		return
	}

	message := "Topup approved"
	if res.Status == model.TopupStatusRejected {
		message = "Topup rejected"
	}
	succeed(c, gin.H{
		"message": message,
		"topup":   res,
	})
}

// ListTopups pages through topups, optionally by status
func (h *AdminHandler) ListTopups(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))
	page, size = utils.ValidatePage(page, size)

	list, total, err := h.topupService.List(c.Request.Context(), strings.ToUpper(c.Query("status")), page, size)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessPageResponse(c, list, total, page, size)
}

// IngestStock appends credentials to a product's pool
func (h *AdminHandler) IngestStock(c *gin.Context) {
	productID, err := utils.ParseID(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, utils.BindError(err))
		return
	}

	res, err := h.stockService.Ingest(c.Request.Context(), productID, req.Stock, req.Separator)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, res)
}
