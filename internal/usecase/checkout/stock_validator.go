package checkout

import (
	"context"
	"fmt"
	"sort"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/shopspring/decimal"
)

// ValidatedLine は在庫確認済みの1明細と、その時点の価格。
type ValidatedLine struct {
	ProductID int64
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int64
}

// Subtotal は丸めない小計。
func (l ValidatedLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(l.Quantity))
}

// StockValidator はカートと在庫を突き合わせる。
// 読んだカート行と商品行はTxの終わりまでロックされたまま。
type StockValidator struct{}

func NewStockValidator() *StockValidator {
	return &StockValidator{}
}

// Validate はカート行 → 商品行（id asc）の順でロックする。
// この順序はどの注文でも同じなので、注文同士でデッドロックしない。
func (v *StockValidator) Validate(ctx context.Context, repos repo.TxRepos, userID int64) ([]ValidatedLine, error) {
	cart, err := repos.CartItems().LockByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("lock cart: %w", err)
	}
	cart, err = v.dropPurchased(ctx, repos, userID, cart)
	if err != nil {
		return nil, err
	}
	if len(cart) == 0 {
		return nil, emptyCartError()
	}

	products, err := repos.Products().LockByIDs(ctx, productIDs(cart))
	if err != nil {
		return nil, fmt.Errorf("lock products: %w", err)
	}
	byID := make(map[int64]model.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	lines := make([]ValidatedLine, 0, len(cart))
	for _, it := range cart {
		p, ok := byID[it.ProductID]
		if !ok || !p.IsActive {
			// 非公開・削除済みの商品は注文に含めない
			continue
		}
		if it.Quantity > p.Stock {
			return nil, insufficientStockError(p.ID)
		}
		lines = append(lines, ValidatedLine{
			ProductID: p.ID,
			Name:      p.Name,
			UnitPrice: p.Price,
			Quantity:  it.Quantity,
		})
	}
	if len(lines) == 0 {
		return nil, emptyCartError()
	}
	return lines, nil
}

// dropPurchased はカートを空にできなかった注文が残っていれば、その注文で買った行を
// ここで消して、残りの行だけを返す。カート行のロックを持った状態で呼ぶこと。
// 消した行と補修済みの印は、この注文のTxと一緒にcommitされる。
func (v *StockValidator) dropPurchased(ctx context.Context, repos repo.TxRepos, userID int64, cart []model.CartItem) ([]model.CartItem, error) {
	orders, err := repos.Orders().ListUnreconciledByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list unreconciled orders: %w", err)
	}
	if len(orders) == 0 {
		return cart, nil
	}

	cutoff, ids := staleCutoff(orders)
	if _, err := settleStale(ctx, repos, userID, cutoff, ids); err != nil {
		return nil, fmt.Errorf("settle purchased cart lines: %w", err)
	}

	kept := make([]model.CartItem, 0, len(cart))
	for _, it := range cart {
		if it.UpdatedAt.After(cutoff) {
			kept = append(kept, it)
		}
	}
	return kept, nil
}

// 重複なし・昇順
func productIDs(items []model.CartItem) []int64 {
	seen := make(map[int64]struct{}, len(items))
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		if _, ok := seen[it.ProductID]; ok {
			continue
		}
		seen[it.ProductID] = struct{}{}
		ids = append(ids, it.ProductID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
