package repository

import (
	"context"
	"time"

	"storefront/internal/domain/model"
)

// カートはユーザー×商品で1行。並びは常に id asc（追加順）。
type CartItemRepository interface {
	ListByUserID(ctx context.Context, userID int64) ([]model.CartItem, error)
	// SELECT ... FOR UPDATE（注文確定用）
	LockByUserID(ctx context.Context, userID int64) ([]model.CartItem, error)
	FindByUserAndProduct(ctx context.Context, userID int64, productID int64) (model.CartItem, error)
	// 無ければ作成、あれば数量を置き換える
	UpsertQuantity(ctx context.Context, userID int64, productID int64, qty int64) error
	UpdateQuantity(ctx context.Context, userID int64, productID int64, qty int64) error
	Delete(ctx context.Context, userID int64, productID int64) error
	DeleteAllByUserID(ctx context.Context, userID int64) (int64, error)
	// updated_at <= before の行だけ消す（読み取り時の補修用）
	DeleteStaleByUserID(ctx context.Context, userID int64, before time.Time) (int64, error)
}
