package model

import "time"

const EventOrderPlaced = "order.placed"

// 注文と同じトランザクションで書くイベント。relayがKafkaへ流す。
type OutboxEvent struct {
	ID          int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	EventID     string     `gorm:"type:uuid;not null;uniqueIndex" json:"event_id"`
	Topic       string     `gorm:"type:varchar(255);not null" json:"topic"`
	AggregateID string     `gorm:"type:varchar(64);not null" json:"aggregate_id"`
	EventType   string     `gorm:"type:varchar(64);not null" json:"event_type"`
	Payload     string     `gorm:"type:jsonb;not null" json:"payload"`
	CreatedAt   time.Time  `gorm:"not null" json:"created_at"`
	SentAt      *time.Time `json:"sent_at"`
}
