package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const maxIdempotencyKeyLen = 255

// OrderDetails は注文者が入力する項目。
type OrderDetails struct {
	ShippingAddress string
	PaymentMethod   model.PaymentMethod
	IdempotencyKey  string
}

// ParseDetails は入力を正規化する。Txを開く前に呼ぶ。
func ParseDetails(address, payment, idempotencyKey string) (OrderDetails, error) {
	addr := strings.TrimSpace(address)
	if addr == "" {
		return OrderDetails{}, validationError("shipping_address is required")
	}
	pm, ok := model.ParsePaymentMethod(payment)
	if !ok {
		return OrderDetails{}, validationError("invalid payment_method")
	}
	key := strings.TrimSpace(idempotencyKey)
	if len(key) > maxIdempotencyKeyLen {
		return OrderDetails{}, validationError("invalid idempotency key")
	}
	return OrderDetails{ShippingAddress: addr, PaymentMethod: pm, IdempotencyKey: key}, nil
}

func (d OrderDetails) validate() error {
	if strings.TrimSpace(d.ShippingAddress) == "" {
		return validationError("shipping_address is required")
	}
	if _, ok := model.ParsePaymentMethod(string(d.PaymentMethod)); !ok {
		return validationError("invalid payment_method")
	}
	return nil
}

// Placement は確定した注文。
type Placement struct {
	OrderID     int64
	TotalAmount decimal.Decimal
}

// Total は明細の合計。丸めは最後に一度だけ。
func Total(lines []ValidatedLine) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.Subtotal())
	}
	return model.RoundCurrency(sum)
}

// OrderMaterializer は注文・明細・在庫減算・イベントを書く。
type OrderMaterializer struct {
	// 空ならoutboxに書かない
	eventsTopic string
}

func NewOrderMaterializer(eventsTopic string) *OrderMaterializer {
	return &OrderMaterializer{eventsTopic: eventsTopic}
}

type orderPlacedLine struct {
	ProductID int64        `json:"product_id"`
	Quantity  int64        `json:"quantity"`
	UnitPrice model.Amount `json:"unit_price"`
}

type orderPlacedPayload struct {
	OrderID       int64               `json:"order_id"`
	UserID        int64               `json:"user_id"`
	TotalAmount   model.Amount        `json:"total_amount"`
	PaymentMethod model.PaymentMethod `json:"payment_method"`
	Lines         []orderPlacedLine   `json:"lines"`
	OccurredAt    time.Time           `json:"occurred_at"`
}

// Materialize は呼び出し側のTxの中で実行する。途中で失敗したらTxごと捨てる前提。
func (m *OrderMaterializer) Materialize(ctx context.Context, repos repo.TxRepos, userID int64, lines []ValidatedLine, d OrderDetails) (Placement, error) {
	if err := d.validate(); err != nil {
		return Placement{}, err
	}
	if len(lines) == 0 {
		return Placement{}, emptyCartError()
	}

	total := Total(lines)
	now := time.Now()

	order := model.Order{
		UserID:          userID,
		Status:          model.OrderStatusPending,
		TotalAmount:     total,
		ShippingAddress: strings.TrimSpace(d.ShippingAddress),
		PaymentMethod:   d.PaymentMethod,
		UpdatedAt:       now,
	}
	if d.IdempotencyKey != "" {
		key := d.IdempotencyKey
		order.IdempotencyKey = &key
	}

	orderID, err := repos.Orders().Create(ctx, order)
	if err != nil {
		return Placement{}, fmt.Errorf("create order: %w", err)
	}

	//スナップショット
	items := make([]model.OrderItem, 0, len(lines))
	for _, l := range lines {
		items = append(items, model.OrderItem{
			ProductID:           l.ProductID,
			ProductNameSnapshot: l.Name,
			UnitPriceSnapshot:   l.UnitPrice,
			Quantity:            l.Quantity,
			CreatedAt:           now,
		})
	}
	if err := repos.OrderItems().CreateBulk(ctx, orderID, items); err != nil {
		return Placement{}, fmt.Errorf("create order items: %w", err)
	}

	//在庫減算（書き込み時点で再チェック）
	for _, l := range lines {
		ok, err := repos.Inventory().DecreaseStockIfEnough(ctx, l.ProductID, l.Quantity)
		if err != nil {
			return Placement{}, fmt.Errorf("decrease stock: %w", err)
		}
		if !ok {
			return Placement{}, insufficientStockError(l.ProductID)
		}
	}

	if m.eventsTopic != "" {
		if err := m.writeEvent(ctx, repos, orderID, userID, total, d.PaymentMethod, lines, now); err != nil {
			return Placement{}, err
		}
	}

	return Placement{OrderID: orderID, TotalAmount: total}, nil
}

func (m *OrderMaterializer) writeEvent(
	ctx context.Context,
	repos repo.TxRepos,
	orderID, userID int64,
	total decimal.Decimal,
	pm model.PaymentMethod,
	lines []ValidatedLine,
	now time.Time,
) error {
	payload := orderPlacedPayload{
		OrderID:       orderID,
		UserID:        userID,
		TotalAmount:   model.NewAmount(total),
		PaymentMethod: pm,
		Lines:         make([]orderPlacedLine, 0, len(lines)),
		OccurredAt:    now.UTC(),
	}
	for _, l := range lines {
		payload.Lines = append(payload.Lines, orderPlacedLine{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: model.NewAmount(l.UnitPrice),
		})
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	ev := model.OutboxEvent{
		EventID:     uuid.NewString(),
		Topic:       m.eventsTopic,
		AggregateID: strconv.FormatInt(orderID, 10),
		EventType:   model.EventOrderPlaced,
		Payload:     string(b),
		CreatedAt:   now,
	}
	if err := repos.Outbox().Insert(ctx, ev); err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}
