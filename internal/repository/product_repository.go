package repository

import (
	"context"

	"storefront/internal/domain/model"
)

// 商品の永続化（保存・取得）だけを約束。
type ProductRepository interface {
	// 公開中の商品を id asc で返す。categoryID が 0 なら全カテゴリ。
	ListActive(ctx context.Context, categoryID int64, limit int, offset int) ([]model.Product, int64, error)
	// カテゴリ名付き。見つからなければ ErrNotFound
	FindByID(ctx context.Context, id int64) (model.Product, error)
	FindByIDs(ctx context.Context, ids []int64) ([]model.Product, error)
	// id asc の順で行ロックを取る（全体で同じ順序）
	LockByIDs(ctx context.Context, ids []int64) ([]model.Product, error)

	Create(ctx context.Context, p model.Product) (model.Product, error)
}
