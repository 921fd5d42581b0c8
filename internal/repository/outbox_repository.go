package repository

import (
	"context"

	"storefront/internal/domain/model"
)

type OutboxRepository interface {
	Insert(ctx context.Context, ev model.OutboxEvent) error
	// 未送信を古い順に。他のrelayが掴んでいる行は飛ばす。
	FetchPending(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkSent(ctx context.Context, ids []int64) error
}
