package repository

import (
	"context"

	"storefront/internal/domain/model"
)

type OrderRepository interface {
	Create(ctx context.Context, order model.Order) (int64, error)
	FindByID(ctx context.Context, orderID int64) (model.Order, error)
	ListByUserID(ctx context.Context, userID int64, page int, limit int) ([]model.Order, int64, error)

	//検索（同じキーなら同じ結果を返す）
	FindByIdempotencyKey(ctx context.Context, userID int64, key string) (model.Order, bool, error)

	// カート削除が済んでいない注文（古い順）
	ListUnreconciledByUserID(ctx context.Context, userID int64) ([]model.Order, error)
	MarkCartReconciled(ctx context.Context, orderIDs ...int64) error
}
