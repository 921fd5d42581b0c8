package usecase

import (
	"context"
	"errors"
	"net/http"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"
	"storefront/internal/usecase/checkout"
)

// OrderPlacer は注文確定（checkout.Workflow）。
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, in checkout.Input) (checkout.Result, error)
}

type OrderUsecase struct {
	tx     repo.TransactionManager
	placer OrderPlacer
}

func NewOrderUsecase(tx repo.TransactionManager, placer OrderPlacer) *OrderUsecase {
	return &OrderUsecase{tx: tx, placer: placer}
}

type PlaceOrderInput struct {
	ShippingAddress string
	PaymentMethod   string
	IdempotencyKey  string
}

type PlaceOrderOutput struct {
	OrderID     int64        `json:"order_id"`
	TotalAmount model.Amount `json:"total_amount"`
	CartCleared bool         `json:"cart_cleared"`
	Replayed    bool         `json:"-"`
}

type OrderItemOutput struct {
	ProductID int64        `json:"product_id"`
	Name      string       `json:"name"`
	Price     model.Amount `json:"price"`
	Quantity  int64        `json:"quantity"`
	Subtotal  model.Amount `json:"subtotal"`
}

type OrderOutput struct {
	ID              int64             `json:"id"`
	UserID          int64             `json:"user_id"`
	Status          string            `json:"status"`
	TotalAmount     model.Amount      `json:"total_amount"`
	ShippingAddress string            `json:"shipping_address"`
	PaymentMethod   string            `json:"payment_method"`
	CreatedAt       time.Time         `json:"created_at"`
	Items           []OrderItemOutput `json:"items"`
}

type OrderListOutput struct {
	Items []OrderOutput `json:"items"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

// PlaceOrder のエラーは *checkout.Error のまま返す（handlerで振り分け）。
func (u *OrderUsecase) PlaceOrder(ctx context.Context, userID int64, in PlaceOrderInput) (PlaceOrderOutput, error) {
	if userID <= 0 {
		return PlaceOrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	res, err := u.placer.PlaceOrder(ctx, checkout.Input{
		UserID:          userID,
		ShippingAddress: in.ShippingAddress,
		PaymentMethod:   in.PaymentMethod,
		IdempotencyKey:  in.IdempotencyKey,
	})
	if err != nil {
		return PlaceOrderOutput{}, err
	}

	return PlaceOrderOutput{
		OrderID:     res.OrderID,
		TotalAmount: model.NewAmount(res.TotalAmount),
		CartCleared: res.CartCleared,
		Replayed:    res.Replayed,
	}, nil
}

func (u *OrderUsecase) ListMyOrders(ctx context.Context, userID int64, page int, limit int) (OrderListOutput, error) {
	if userID <= 0 {
		return OrderListOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if page == 0 {
		page = 1
	}
	if limit == 0 {
		limit = defaultPageLimit
	}
	if page < 1 {
		return OrderListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid page")
	}
	if limit < 1 || limit > maxPageLimit {
		return OrderListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}

	out := OrderListOutput{Page: page, Limit: limit}

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, total, err := r.Orders().ListByUserID(ctx, userID, page, limit)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		out.Total = total
		out.Items = make([]OrderOutput, 0, len(orders))
		for _, o := range orders {
			items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			out.Items = append(out.Items, toOrderOutput(o, items))
		}
		return nil
	})
	if err != nil {
		return OrderListOutput{}, asHTTPOr500(err)
	}
	return out, nil
}

func (u *OrderUsecase) GetMyOrderDetail(ctx context.Context, userID int64, orderID int64) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var out OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if o.UserID != userID {
			//他人の注文は「存在しない扱い」にする
			return NewHTTPError(http.StatusNotFound, "not found")
		}

		items, err := r.OrderItems().ListByOrderID(ctx, orderID)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		out = toOrderOutput(o, items)
		return nil
	})
	if err != nil {
		return OrderOutput{}, asHTTPOr500(err)
	}
	return out, nil
}

// Tx自体の失敗（接続断など）は500にそろえる
func asHTTPOr500(err error) error {
	if _, ok := AsHTTPError(err); ok {
		return err
	}
	return NewHTTPError(http.StatusInternalServerError, "db error")
}

func toOrderOutput(o model.Order, items []model.OrderItem) OrderOutput {
	outItems := make([]OrderItemOutput, 0, len(items))
	for _, it := range items {
		outItems = append(outItems, OrderItemOutput{
			ProductID: it.ProductID,
			Name:      it.ProductNameSnapshot,
			Price:     model.NewAmount(it.UnitPriceSnapshot),
			Quantity:  it.Quantity,
			Subtotal:  model.NewAmount(it.Subtotal()),
		})
	}

	return OrderOutput{
		ID:              o.ID,
		UserID:          o.UserID,
		Status:          string(o.Status),
		TotalAmount:     model.NewAmount(o.TotalAmount),
		ShippingAddress: o.ShippingAddress,
		PaymentMethod:   string(o.PaymentMethod),
		CreatedAt:       o.CreatedAt,
		Items:           outItems,
	}
}
