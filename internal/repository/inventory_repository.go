package repository

import "context"

type InventoryRepository interface {
	// 在庫が足りるときだけ減算。足りなければ false。
	DecreaseStockIfEnough(ctx context.Context, productID int64, qty int64) (bool, error)
}
