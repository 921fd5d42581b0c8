package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	repo "storefront/internal/repository"

	"gorm.io/gorm"
)

type txReposGorm struct {
	orders     repo.OrderRepository
	orderItems repo.OrderItemRepository
	cartItems  repo.CartItemRepository
	inventory  repo.InventoryRepository
	products   repo.ProductRepository
	outbox     repo.OutboxRepository
}

func (r *txReposGorm) Orders() repo.OrderRepository         { return r.orders }
func (r *txReposGorm) OrderItems() repo.OrderItemRepository { return r.orderItems }
func (r *txReposGorm) CartItems() repo.CartItemRepository   { return r.cartItems }
func (r *txReposGorm) Inventory() repo.InventoryRepository  { return r.inventory }
func (r *txReposGorm) Products() repo.ProductRepository     { return r.products }
func (r *txReposGorm) Outbox() repo.OutboxRepository        { return r.outbox }

type TxManagerGorm struct {
	db *gorm.DB
}

func NewTxManagerGorm(db *gorm.DB) *TxManagerGorm {
	return &TxManagerGorm{db: db}
}

// WithinTx は ctx に期限があれば、その残り時間を
// statement_timeout / lock_timeout としてこのTxだけに設定する。
func (tm *TxManagerGorm) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	err := tm.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := applyLocalTimeouts(ctx, tx); err != nil {
			return err
		}

		//repoはtxを持ったDBで作り直す
		r := &txReposGorm{
			orders:     NewOrderGormRepository(tx),
			orderItems: NewOrderItemGormRepository(tx),
			cartItems:  NewCartItemGormRepository(tx),
			inventory:  NewInventoryGormRepository(tx),
			products:   NewProductGormRepository(tx),
			outbox:     NewOutboxGormRepository(tx),
		}
		return fn(r)
	})
	return translateError(err)
}

func applyLocalTimeouts(ctx context.Context, tx *gorm.DB) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		return nil
	}
	remaining := time.Until(deadline).Milliseconds()
	if remaining <= 0 {
		return fmt.Errorf("%w: deadline already passed", repo.ErrTxTimeout)
	}

	// set_config(..., true) はトランザクション内だけ有効
	ms := strconv.FormatInt(remaining, 10)
	return tx.Exec(
		"SELECT set_config('statement_timeout', ?, true), set_config('lock_timeout', ?, true)",
		ms, ms,
	).Error
}
