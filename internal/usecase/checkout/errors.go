package checkout

import (
	"errors"
	"fmt"
)

// Kind は注文確定の失敗の種類。
type Kind string

const (
	KindValidation          Kind = "validation"
	KindEmptyCart           Kind = "empty_cart"
	KindInsufficientStock   Kind = "insufficient_stock"
	KindTransactionTimeout  Kind = "transaction_timeout"
	KindTransactionConflict Kind = "transaction_conflict"
	KindPersistence         Kind = "persistence"
	KindCartReconciliation  Kind = "cart_reconciliation"
)

// errors.Is で判定するための sentinel
var (
	ErrValidation          = errors.New("validation error")
	ErrEmptyCart           = errors.New("cart is empty")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrTransactionTimeout  = errors.New("transaction timeout")
	ErrTransactionConflict = errors.New("transaction conflict")
	ErrPersistence         = errors.New("persistence error")
	ErrCartReconciliation  = errors.New("cart reconciliation failed")
)

var sentinels = map[Kind]error{
	KindValidation:          ErrValidation,
	KindEmptyCart:           ErrEmptyCart,
	KindInsufficientStock:   ErrInsufficientStock,
	KindTransactionTimeout:  ErrTransactionTimeout,
	KindTransactionConflict: ErrTransactionConflict,
	KindPersistence:         ErrPersistence,
	KindCartReconciliation:  ErrCartReconciliation,
}

// Error は注文確定で返る唯一のエラー型。
// ProductID は KindInsufficientStock のときだけ入る。
type Error struct {
	Kind      Kind
	ProductID int64
	Message   string
	Err       error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = sentinels[e.Kind].Error()
	}
	if e.Kind == KindInsufficientStock {
		msg = fmt.Sprintf("%s: product %d", msg, e.ProductID)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

// Retryable はクライアントが同じ要求を再送してよいか。
func (e *Error) Retryable() bool {
	return e.Kind == KindTransactionTimeout || e.Kind == KindTransactionConflict
}

func validationError(msg string) error {
	return &Error{Kind: KindValidation, Message: msg}
}

func emptyCartError() error {
	return &Error{Kind: KindEmptyCart}
}

func insufficientStockError(productID int64) error {
	return &Error{Kind: KindInsufficientStock, ProductID: productID}
}

// AsError は err から *Error を取り出す。
func AsError(err error) (*Error, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
