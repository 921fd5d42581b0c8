package model

import "time"

// カートの明細（1ユーザー×1商品で1行）
// 価格は持たない。注文確定時に商品から読む。
type CartItem struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64     `gorm:"not null;uniqueIndex:uq_cart_items_user_product" json:"user_id"`
	ProductID int64     `gorm:"not null;uniqueIndex:uq_cart_items_user_product" json:"product_id"`
	Quantity  int64     `gorm:"not null" json:"quantity"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}
