package repository

import (
	"context"
	"errors"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProductGormRepository struct {
	db *gorm.DB
}

// DI
func NewProductGormRepository(db *gorm.DB) *ProductGormRepository {
	return &ProductGormRepository{db: db}
}

const withCategoryName = "products.*, categories.name AS category_name"

// 公開商品のみ。並びは id asc で固定。
func (r *ProductGormRepository) ListActive(ctx context.Context, categoryID int64, limit int, offset int) ([]model.Product, int64, error) {
	var products []model.Product
	var total int64

	if err := r.activeQuery(ctx, categoryID).Count(&total).Error; err != nil {
		return []model.Product{}, 0, translateError(err)
	}
	if err := r.activeQuery(ctx, categoryID).
		Select(withCategoryName).
		Joins("LEFT JOIN categories ON categories.id = products.category_id").
		Order("products.id asc").
		Limit(limit).
		Offset(offset).
		Find(&products).Error; err != nil {
		return []model.Product{}, 0, translateError(err)
	}
	return products, total, nil
}

func (r *ProductGormRepository) activeQuery(ctx context.Context, categoryID int64) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&model.Product{}).Where("products.is_active = ?", true)
	if categoryID > 0 {
		q = q.Where("products.category_id = ?", categoryID)
	}
	return q
}

// IDで商品を取得（カテゴリ名付き）
func (r *ProductGormRepository) FindByID(ctx context.Context, id int64) (model.Product, error) {
	var p model.Product
	err := r.db.WithContext(ctx).Model(&model.Product{}).
		Select(withCategoryName).
		Joins("LEFT JOIN categories ON categories.id = products.category_id").
		Where("products.id = ?", id).
		Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Product{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Product{}, translateError(err)
	}
	return p, nil
}

// 非公開も含めて返す（削除済みは含まない）
func (r *ProductGormRepository) FindByIDs(ctx context.Context, ids []int64) ([]model.Product, error) {
	if len(ids) == 0 {
		return []model.Product{}, nil
	}
	var products []model.Product
	if err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("id asc").
		Find(&products).Error; err != nil {
		return []model.Product{}, translateError(err)
	}
	return products, nil
}

// SELECT ... WHERE id IN (...) ORDER BY id FOR UPDATE
// 外部結合の NULL 側はロックできないので categories は結合しない
func (r *ProductGormRepository) LockByIDs(ctx context.Context, ids []int64) ([]model.Product, error) {
	if len(ids) == 0 {
		return []model.Product{}, nil
	}
	var products []model.Product
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).
		Order("id asc").
		Find(&products).Error; err != nil {
		return []model.Product{}, translateError(err)
	}
	return products, nil
}

// 商品の作成
func (r *ProductGormRepository) Create(ctx context.Context, p model.Product) (model.Product, error) {
	if err := r.db.WithContext(ctx).Create(&p).Error; err != nil {
		return model.Product{}, translateError(err)
	}
	return p, nil
}
