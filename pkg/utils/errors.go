package utils

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// AppError application error structure
type AppError struct {
	Code    ResponseCode `json:"code"`
	Message string       `json:"message"`
	Err     error        `json:"-"`
}

// Error implement error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("code: %d, message: %s, error: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("code: %d, message: %s", e.Code, e.Message)
}

// Unwrap implement errors.Unwrap interface
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewError create new application error
func NewError(code ResponseCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// WrapError wraps err so that errors.Is(result, err) still holds
func WrapError(err error, code ResponseCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Predefined errors
var (
	ErrInvalidParam  = NewError(CodeInvalidParam, "invalid parameter")
	ErrUnauthorized  = NewError(CodeUnauthorized, "unauthorized")
	ErrForbidden     = NewError(CodeForbidden, "forbidden")
	ErrNotFound      = NewError(CodeNotFound, "not found")
	ErrRateLimit     = NewError(CodeRateLimit, "rate limit exceeded")
	ErrInternalError = NewError(CodeInternalError, "internal server error")
	ErrDatabaseError = NewError(CodeDatabaseError, "database error")

	ErrUserNotFound    = WrapError(ErrNotFound, CodeNotFound, "user not found")
	ErrProductNotFound = WrapError(ErrNotFound, CodeNotFound, "product not found")
	ErrTopupNotFound   = WrapError(ErrNotFound, CodeNotFound, "topup request not found")

	// Purchase core failures
	ErrValidation            = NewError(CodeInvalidParam, "validation failed")
	ErrOutOfStock            = NewError(CodeOutOfStock, "out of stock")
	ErrInsufficientBalance   = NewError(CodeInsufficientBalance, "insufficient balance")
	ErrInvalidPromoCode      = NewError(CodeInvalidPromoCode, "invalid promo code")
	ErrPromoExpired          = NewError(CodePromoExpired, "promo code expired")
	ErrPromoLimitReached     = NewError(CodePromoLimitReached, "promo code usage limit reached")
	ErrPromoBelowMinPurchase = NewError(CodePromoBelowMinPurchase, "purchase amount below promo minimum")
	ErrAlreadyProcessed      = NewError(CodeAlreadyProcessed, "already processed")
	ErrConcurrencyConflict   = NewError(CodeConcurrencyConflict, "concurrent update detected, please try again")
)

// Validationf returns an ErrValidation with a specific message
func Validationf(format string, args ...interface{}) *AppError {
	return WrapError(ErrValidation, CodeInvalidParam, fmt.Sprintf(format, args...))
}

// OutOfStockError names every product in a cart that could not be allocated
type OutOfStockError struct {
	ProductIDs []uint64
}

func (e *OutOfStockError) Error() string {
	ids := make([]string, len(e.ProductIDs))
	for i, id := range e.ProductIDs {
		ids[i] = strconv.FormatUint(id, 10)
	}
	return fmt.Sprintf("out of stock: products [%s]", strings.Join(ids, ","))
}

// Unwrap lets errors.Is(err, ErrOutOfStock) and GetErrorCode see through
func (e *OutOfStockError) Unwrap() error {
	return ErrOutOfStock
}

// SoldProductIDs extracts the unavailable product ids from err, if any
func SoldProductIDs(err error) []uint64 {
	var oos *OutOfStockError
	if errors.As(err, &oos) {
		return oos.ProductIDs
	}
	return nil
}

// IsAppError returns the first AppError in err's chain
func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetErrorCode get error code
func GetErrorCode(err error) ResponseCode {
	if appErr, ok := IsAppError(err); ok {
		return appErr.Code
	}
	return CodeInternalError
}

// GetErrorMessage get error message
func GetErrorMessage(err error) string {
	if appErr, ok := IsAppError(err); ok {
		return appErr.Message
	}
	return err.Error()
}
