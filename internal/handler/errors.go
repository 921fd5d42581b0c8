package handler

import (
	"errors"
	"net/http"

	"storefront/internal/usecase"
	"storefront/internal/usecase/checkout"

	"github.com/labstack/echo/v4"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

// 注文確定の失敗。code は checkout.Kind。
type CheckoutErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	ProductID int64  `json:"product_id,omitempty"`
	Retryable bool   `json:"retryable"`
}

var checkoutStatus = map[checkout.Kind]int{
	checkout.KindValidation:          http.StatusBadRequest,
	checkout.KindEmptyCart:           http.StatusBadRequest,
	checkout.KindInsufficientStock:   http.StatusConflict,
	checkout.KindTransactionTimeout:  http.StatusServiceUnavailable,
	checkout.KindTransactionConflict: http.StatusServiceUnavailable,
	checkout.KindPersistence:         http.StatusInternalServerError,
}

func writeError(c echo.Context, err error) error {
	if err == nil {
		return nil
	}
	if he, ok := usecase.AsHTTPError(err); ok {
		return c.JSON(he.Status, ErrorResponse{Error: he.Message})
	}
	if ce, ok := checkout.AsError(err); ok {
		return writeCheckoutError(c, ce)
	}

	switch {
	case errors.Is(err, usecase.ErrValidation):
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "VALIDATION_ERROR"})
	case errors.Is(err, usecase.ErrUnauthorized):
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "UNAUTHORIZED"})
	case errors.Is(err, usecase.ErrForbidden):
		return c.JSON(http.StatusForbidden, ErrorResponse{Error: "FORBIDDEN"})
	case errors.Is(err, usecase.ErrConflict):
		return c.JSON(http.StatusConflict, ErrorResponse{Error: "CONFLICT"})
	}

	//500
	return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}

func writeCheckoutError(c echo.Context, ce *checkout.Error) error {
	status, ok := checkoutStatus[ce.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}

	msg := ce.Error()
	if status == http.StatusInternalServerError {
		//DBの中身は返さない
		msg = checkout.ErrPersistence.Error()
	}
	if ce.Retryable() {
		c.Response().Header().Set("Retry-After", "1")
	}

	return c.JSON(status, CheckoutErrorResponse{
		Error:     msg,
		Code:      string(ce.Kind),
		ProductID: ce.ProductID,
		Retryable: ce.Retryable(),
	})
}

//middleware.AuthJWT が c.Set("user_id", int64) した値を取り出す

func getUserIDFromContext(c echo.Context) (int64, bool) {
	v := c.Get("user_id")
	if v == nil {
		return 0, false
	}

	id, ok := v.(int64)
	if !ok {
		return 0, false
	}

	return id, true
}

// page / limit のクエリ（未指定は0でusecase側のデフォルト）
func pageParams(c echo.Context) (int, int, error) {
	var page, limit int
	err := echo.QueryParamsBinder(c).
		Int("page", &page).
		Int("limit", &limit).
		BindError()
	return page, limit, err
}
