package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "PENDING"
	OrderStatusPaid     OrderStatus = "PAID"
	OrderStatusShipped  OrderStatus = "SHIPPED"
	OrderStatusCanceled OrderStatus = "CANCELED"
)

type PaymentMethod string

const (
	PaymentCreditCard     PaymentMethod = "credit_card"
	PaymentDebitCard      PaymentMethod = "debit_card"
	PaymentPayPal         PaymentMethod = "paypal"
	PaymentCashOnDelivery PaymentMethod = "cash_on_delivery"
)

// ParsePaymentMethod は画面の表記（"Cash on Delivery" など）も受け付ける。
func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.NewReplacer(" ", "_", "-", "_").Replace(v)

	switch PaymentMethod(v) {
	case PaymentCreditCard, PaymentDebitCard, PaymentPayPal, PaymentCashOnDelivery:
		return PaymentMethod(v), true
	case "pay_pal":
		return PaymentPayPal, true
	}
	return "", false
}

// 通貨の小数桁
const CurrencyPlaces = 2

// RoundCurrency は合計に対して一度だけ掛ける（明細ごとには丸めない）。
func RoundCurrency(d decimal.Decimal) decimal.Decimal {
	return d.Round(CurrencyPlaces)
}

type Order struct {
	ID              int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID          int64           `gorm:"not null;index" json:"user_id"`
	Status          OrderStatus     `gorm:"type:varchar(20);not null;index" json:"status"`
	TotalAmount     decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total_amount"`
	ShippingAddress string          `gorm:"type:text;not null" json:"shipping_address"`
	PaymentMethod   PaymentMethod   `gorm:"type:varchar(32);not null" json:"payment_method"`
	//二重送信防止キー（任意）
	IdempotencyKey *string `gorm:"type:varchar(255)" json:"-"`
	//確定後のカート削除が済んだか
	CartReconciled bool `gorm:"not null;default:false" json:"-"`
	//DB側の clock_timestamp()（カート補修の基準時刻）
	CreatedAt time.Time `gorm:"autoCreateTime:false;default:clock_timestamp()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}
