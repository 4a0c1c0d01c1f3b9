package utils

import "net/http"

// ResponseCode is the business code carried in every JSON response
type ResponseCode int

const (
	CodeSuccess ResponseCode = 0

	// Generic failures
	CodeInvalidParam  ResponseCode = 1001
	CodeUnauthorized  ResponseCode = 1002
	CodeForbidden     ResponseCode = 1003
	CodeInternalError ResponseCode = 1004
	CodeNotFound      ResponseCode = 1005
	CodeRateLimit     ResponseCode = 1006
	CodeDatabaseError ResponseCode = 1007
	CodeServiceError  ResponseCode = 1008

	// Purchase core
	CodeOutOfStock            ResponseCode = 2001
	CodeInsufficientBalance   ResponseCode = 2002
	CodeInvalidPromoCode      ResponseCode = 2003
	CodePromoExpired          ResponseCode = 2004
	CodePromoLimitReached     ResponseCode = 2005
	CodePromoBelowMinPurchase ResponseCode = 2006
	CodeAlreadyProcessed      ResponseCode = 2007
	CodeConcurrencyConflict   ResponseCode = 2008
)

// HTTPStatus maps a business code to the HTTP status used on the wire
func HTTPStatus(code ResponseCode) int {
	switch code {
	case CodeSuccess:
		return http.StatusOK
	case CodeInvalidParam:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeRateLimit:
		return http.StatusTooManyRequests
	case CodeOutOfStock, CodeAlreadyProcessed:
		return http.StatusConflict
	case CodeInsufficientBalance:
		return http.StatusPaymentRequired
	case CodeInvalidPromoCode, CodePromoExpired, CodePromoLimitReached, CodePromoBelowMinPurchase:
		return http.StatusUnprocessableEntity
	case CodeConcurrencyConflict:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
