package repository

import (
	"context"
	"errors"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CartItemGormRepository struct {
	db *gorm.DB
}

// DI
func NewCartItemGormRepository(db *gorm.DB) *CartItemGormRepository {
	return &CartItemGormRepository{db: db}
}

// updated_at はDBの clock_timestamp() で入れる（注文の created_at と同じ時計）
var cartNow = gorm.Expr("clock_timestamp()")

// カート明細を追加順で取得
func (r *CartItemGormRepository) ListByUserID(ctx context.Context, userID int64) ([]model.CartItem, error) {
	var items []model.CartItem
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id asc").
		Find(&items).Error; err != nil {
		return []model.CartItem{}, translateError(err)
	}
	return items, nil
}

// 注文確定中は他のカート更新を待たせる
func (r *CartItemGormRepository) LockByUserID(ctx context.Context, userID int64) ([]model.CartItem, error) {
	var items []model.CartItem
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		Order("id asc").
		Find(&items).Error; err != nil {
		return []model.CartItem{}, translateError(err)
	}
	return items, nil
}

func (r *CartItemGormRepository) FindByUserAndProduct(ctx context.Context, userID int64, productID int64) (model.CartItem, error) {
	var item model.CartItem
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND product_id = ?", userID, productID).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.CartItem{}, repo.ErrNotFound
	}
	if err != nil {
		return model.CartItem{}, translateError(err)
	}
	return item, nil
}

// 同一商品は1行にまとめる（数量は呼び出し側で計算済み）
func (r *CartItemGormRepository) UpsertQuantity(ctx context.Context, userID int64, productID int64, qty int64) error {
	if qty < 1 {
		return errors.New("invalid quantity")
	}

	err := r.db.WithContext(ctx).Exec(`
		INSERT INTO cart_items (user_id, product_id, quantity, created_at, updated_at)
		VALUES (?, ?, ?, clock_timestamp(), clock_timestamp())
		ON CONFLICT (user_id, product_id)
		DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = clock_timestamp()`,
		userID, productID, qty,
	).Error
	return translateError(err)
}

// 明細の数量を更新
func (r *CartItemGormRepository) UpdateQuantity(ctx context.Context, userID int64, productID int64, qty int64) error {
	res := r.db.WithContext(ctx).
		Model(&model.CartItem{}).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Updates(map[string]interface{}{
			"quantity":   qty,
			"updated_at": cartNow,
		})
	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// 明細を削除
func (r *CartItemGormRepository) Delete(ctx context.Context, userID int64, productID int64) error {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Delete(&model.CartItem{})
	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// ユーザーの明細を全削除。消した件数を返す（0件でもエラーにしない）
func (r *CartItemGormRepository) DeleteAllByUserID(ctx context.Context, userID int64) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&model.CartItem{})
	if res.Error != nil {
		return 0, translateError(res.Error)
	}
	return res.RowsAffected, nil
}

func (r *CartItemGormRepository) DeleteStaleByUserID(ctx context.Context, userID int64, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND updated_at <= ?", userID, before).
		Delete(&model.CartItem{})
	if res.Error != nil {
		return 0, translateError(res.Error)
	}
	return res.RowsAffected, nil
}
