package repository

import (
	"context"

	"storefront/internal/domain/model"
)

// カテゴリの取得（APIは読み取りだけ。作成は seed 用）
type CategoryRepository interface {
	// name asc
	List(ctx context.Context) ([]model.Category, error)
	// 見つからなければ ErrNotFound
	FindByID(ctx context.Context, id int64) (model.Category, error)
	// 名前の重複は ErrDuplicate
	Create(ctx context.Context, c model.Category) (model.Category, error)
}
