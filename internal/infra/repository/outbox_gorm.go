package repository

import (
	"context"
	"time"

	"storefront/internal/domain/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OutboxGormRepository struct {
	db *gorm.DB
}

func NewOutboxGormRepository(db *gorm.DB) *OutboxGormRepository {
	return &OutboxGormRepository{db: db}
}

func (r *OutboxGormRepository) Insert(ctx context.Context, ev model.OutboxEvent) error {
	if err := r.db.WithContext(ctx).Create(&ev).Error; err != nil {
		return translateError(err)
	}
	return nil
}

// FOR UPDATE SKIP LOCKED なのでTxの中で呼ぶこと
func (r *OutboxGormRepository) FetchPending(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	var events []model.OutboxEvent
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("sent_at IS NULL").
		Order("id asc").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return []model.OutboxEvent{}, translateError(err)
	}
	return events, nil
}

func (r *OutboxGormRepository) MarkSent(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Model(&model.OutboxEvent{}).
		Where("id IN ?", ids).
		Update("sent_at", time.Now()).Error
	return translateError(err)
}
