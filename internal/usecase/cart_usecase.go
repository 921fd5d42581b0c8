package usecase

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/shopspring/decimal"
)

// 注文確定後に消し損ねたカートを直す
type CartRepairer interface {
	Repair(ctx context.Context, userID int64) error
}

// カート明細のキャッシュ（Redis）。nilなら使わない。
// 価格と在庫は載せず、表示のたびにDBから読む。
type CartCache interface {
	Get(ctx context.Context, userID int64, dst any) error
	// Invalidate のたびに増える世代
	Version(ctx context.Context, userID int64) (int64, error)
	// 世代が変わっていたら保存しない
	SetIfVersion(ctx context.Context, userID int64, version int64, v any) error
	Invalidate(ctx context.Context, userID int64) error
}

// CartLine はキャッシュに載せるカート明細。
type CartLine struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

// CartUsecase は /cart の業務ロジックです。
type CartUsecase struct {
	cartItemRepo repo.CartItemRepository
	productRepo  repo.ProductRepository
	repairer     CartRepairer
	cache        CartCache
	logger       *slog.Logger
}

func NewCartUsecase(
	cartItemRepo repo.CartItemRepository,
	productRepo repo.ProductRepository,
	repairer CartRepairer,
	cache CartCache,
	logger *slog.Logger,
) *CartUsecase {
	if logger == nil {
		logger = slog.Default()
	}
	return &CartUsecase{
		cartItemRepo: cartItemRepo,
		productRepo:  productRepo,
		repairer:     repairer,
		cache:        cache,
		logger:       logger,
	}
}

// price は現在の商品価格（注文確定時もこの価格を使う）
type CartItemResponse struct {
	ProductID int64        `json:"product_id"`
	Name      string       `json:"name"`
	Price     model.Amount `json:"price"`
	Quantity  int64        `json:"quantity"`
	Stock     int64        `json:"stock"`
	Subtotal  model.Amount `json:"subtotal"`
}

type CartResponse struct {
	Items       []CartItemResponse `json:"items"`
	TotalAmount model.Amount       `json:"total_amount"`
	ItemCount   int                `json:"item_count"`
}

type AddCartInput struct {
	ProductID int64
	Quantity  int64
}

type UpdateCartItemInput struct {
	Quantity int64
}

// GetCart はカート取得（公開中の商品だけ）。
func (u *CartUsecase) GetCart(ctx context.Context, userID int64) (CartResponse, error) {
	if userID <= 0 {
		return CartResponse{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	u.repair(ctx, userID)

	lines, err := u.cachedLines(ctx, userID)
	if err != nil {
		return CartResponse{}, err
	}
	return u.render(ctx, lines)
}

// AddToCart はカートに追加（同一商品は数量加算、在庫を超えない）。
func (u *CartUsecase) AddToCart(ctx context.Context, userID int64, in AddCartInput) (CartResponse, error) {
	if userID <= 0 {
		return CartResponse{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if in.ProductID <= 0 {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid product_id")
	}
	if in.Quantity < 1 {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid quantity")
	}
	u.repair(ctx, userID)

	// 商品チェック（公開のみ）
	p, err := u.activeProduct(ctx, in.ProductID)
	if err != nil {
		return CartResponse{}, err
	}

	var existingQty int64
	it, err := u.cartItemRepo.FindByUserAndProduct(ctx, userID, in.ProductID)
	switch {
	case err == nil:
		existingQty = it.Quantity
	case errors.Is(err, repo.ErrNotFound):
	default:
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	newQty := existingQty + in.Quantity
	if newQty > p.Stock {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "insufficient stock")
	}

	if err := u.cartItemRepo.UpsertQuantity(ctx, userID, in.ProductID, newQty); err != nil {
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return u.afterWrite(ctx, userID)
}

// 数量変更（在庫チェックあり）。
func (u *CartUsecase) UpdateCartItem(ctx context.Context, userID int64, productID int64, in UpdateCartItemInput) (CartResponse, error) {
	if userID <= 0 {
		return CartResponse{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if productID <= 0 {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid product id")
	}
	if in.Quantity < 1 {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid quantity")
	}
	u.repair(ctx, userID)

	p, err := u.activeProduct(ctx, productID)
	if err != nil {
		return CartResponse{}, err
	}
	if in.Quantity > p.Stock {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "insufficient stock")
	}

	if err := u.cartItemRepo.UpdateQuantity(ctx, userID, productID, in.Quantity); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return CartResponse{}, NewHTTPError(http.StatusNotFound, "cart item not found")
		}
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return u.afterWrite(ctx, userID)
}

// 明細削除
func (u *CartUsecase) RemoveCartItem(ctx context.Context, userID int64, productID int64) (CartResponse, error) {
	if userID <= 0 {
		return CartResponse{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if productID <= 0 {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid product id")
	}

	if err := u.cartItemRepo.Delete(ctx, userID, productID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return CartResponse{}, NewHTTPError(http.StatusNotFound, "cart item not found")
		}
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return u.afterWrite(ctx, userID)
}

// カートを空にする
func (u *CartUsecase) ClearCart(ctx context.Context, userID int64) (CartResponse, error) {
	if userID <= 0 {
		return CartResponse{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if _, err := u.cartItemRepo.DeleteAllByUserID(ctx, userID); err != nil {
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return u.afterWrite(ctx, userID)
}

// 補修に失敗してもカート操作は止めない（次の読み取りでまた試す）
func (u *CartUsecase) repair(ctx context.Context, userID int64) {
	if u.repairer == nil {
		return
	}
	if err := u.repairer.Repair(ctx, userID); err != nil {
		u.logger.WarnContext(ctx, "cart repair failed", slog.Int64("user_id", userID), slog.String("error", err.Error()))
	}
}

func (u *CartUsecase) activeProduct(ctx context.Context, productID int64) (model.Product, error) {
	p, err := u.productRepo.FindByID(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Product{}, NewHTTPError(http.StatusNotFound, "product not found")
	}
	if err != nil {
		return model.Product{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if !p.IsActive {
		return model.Product{}, NewHTTPError(http.StatusNotFound, "product not found")
	}
	return p, nil
}

func (u *CartUsecase) afterWrite(ctx context.Context, userID int64) (CartResponse, error) {
	if u.cache != nil {
		if err := u.cache.Invalidate(ctx, userID); err != nil {
			u.logger.WarnContext(ctx, "cart cache invalidate failed", slog.Int64("user_id", userID), slog.String("error", err.Error()))
		}
	}
	lines, err := u.loadLines(ctx, userID)
	if err != nil {
		return CartResponse{}, err
	}
	return u.render(ctx, lines)
}

// キャッシュに無ければDBから読んで載せる。
// 読んでいる間に書き込みがあった（世代が進んだ）ら載せない。
func (u *CartUsecase) cachedLines(ctx context.Context, userID int64) ([]CartLine, error) {
	if u.cache == nil {
		return u.loadLines(ctx, userID)
	}
	var cached []CartLine
	if err := u.cache.Get(ctx, userID, &cached); err == nil {
		return cached, nil
	}

	version, verErr := u.cache.Version(ctx, userID)
	lines, err := u.loadLines(ctx, userID)
	if err != nil {
		return nil, err
	}
	if verErr != nil {
		u.logger.WarnContext(ctx, "cart cache version failed", slog.Int64("user_id", userID), slog.String("error", verErr.Error()))
		return lines, nil
	}
	if err := u.cache.SetIfVersion(ctx, userID, version, lines); err != nil {
		u.logger.DebugContext(ctx, "cart cache not stored", slog.Int64("user_id", userID), slog.String("error", err.Error()))
	}
	return lines, nil
}

func (u *CartUsecase) loadLines(ctx context.Context, userID int64) ([]CartLine, error) {
	items, err := u.cartItemRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	lines := make([]CartLine, 0, len(items))
	for _, it := range items {
		lines = append(lines, CartLine{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return lines, nil
}

// 明細に今の商品（価格・在庫・公開状態）を合わせてCartResponseを作る。
func (u *CartUsecase) render(ctx context.Context, items []CartLine) (CartResponse, error) {
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	products, err := u.productRepo.FindByIDs(ctx, ids)
	if err != nil {
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	byID := make(map[int64]model.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	respItems := make([]CartItemResponse, 0, len(items))
	total := decimal.Zero
	for _, it := range items {
		p, ok := byID[it.ProductID]
		if !ok || !p.IsActive {
			continue
		}
		sub := p.Price.Mul(decimal.NewFromInt(it.Quantity))
		respItems = append(respItems, CartItemResponse{
			ProductID: it.ProductID,
			Name:      p.Name,
			Price:     model.NewAmount(p.Price),
			Quantity:  it.Quantity,
			Stock:     p.Stock,
			Subtotal:  model.NewAmount(sub),
		})
		total = total.Add(sub)
	}

	return CartResponse{
		Items:       respItems,
		TotalAmount: model.NewAmount(model.RoundCurrency(total)),
		ItemCount:   len(respItems),
	}, nil
}
