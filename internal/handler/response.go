package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gameshop/pkg/log"
	"gameshop/pkg/utils"
)

// Storefront endpoints answer with a flat {success, ...} body. Everything
// else uses the utils.Response envelope.

func succeed(c *gin.Context, body gin.H) {
	body["success"] = true
	body["code"] = int(utils.CodeSuccess)
	c.JSON(http.StatusOK, body)
}

func fail(c *gin.Context, err error) {
	code := utils.GetErrorCode(err)
	body := gin.H{
		"success": false,
		"code":    int(code),
		"message": publicMessage(c, code, err),
	}
	if ids := utils.SoldProductIDs(err); len(ids) > 0 {
		body["soldProductIds"] = ids
	}
	c.JSON(utils.HTTPStatus(code), body)
}

func respondError(c *gin.Context, err error) {
	code := utils.GetErrorCode(err)
	utils.Error(c, code, publicMessage(c, code, err))
}

func publicMessage(c *gin.Context, code utils.ResponseCode, err error) string {
	_ = c.Error(err)
	if code == utils.CodeInternalError {
		log.WithContext(c.Request.Context()).WithError(err).Error("Request failed")
		return utils.ErrInternalError.Message
	}
	return utils.GetErrorMessage(err)
}
