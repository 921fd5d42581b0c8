package usecase_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"
	"storefront/internal/usecase"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var errMiss = errors.New("cache miss")

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newCartUC(items *CartItemRepoMock, products *ProductRepoMock, repairer *RepairerMock, cache usecase.CartCache) *usecase.CartUsecase {
	return usecase.NewCartUsecase(items, products, repairer, cache, quietLogger())
}

func apple(stock int64) model.Product {
	return model.Product{ID: 1, Name: "Apple", Price: decimal.RequireFromString("3.00"), Stock: stock, IsActive: true}
}

// =====================
// GetCart
// =====================

func TestCartUsecase_GetCart_BuildsTotalsFromActiveProducts(t *testing.T) {
	ctx := context.Background()
	items := new(CartItemRepoMock)
	products := new(ProductRepoMock)
	repairer := new(RepairerMock)

	repairer.On("Repair", mock.Anything, int64(1)).Return(nil)
	items.On("ListByUserID", mock.Anything, int64(1)).Return([]model.CartItem{
		{ID: 10, UserID: 1, ProductID: 1, Quantity: 2},
		{ID: 11, UserID: 1, ProductID: 2, Quantity: 1},
	}, nil)
	products.On("FindByIDs", mock.Anything, []int64{1, 2}).Return([]model.Product{
		apple(10),
		{ID: 2, Name: "Hidden", Price: decimal.RequireFromString("9.00"), Stock: 5, IsActive: false},
	}, nil)

	out, err := newCartUC(items, products, repairer, nil).GetCart(ctx, 1)
	require.NoError(t, err)
	require.Len(t, out.Items, 1)
	assert.Equal(t, 1, out.ItemCount)
	assert.Equal(t, "6.00", out.TotalAmount.StringFixed(2))
	assert.Equal(t, "6.00", out.Items[0].Subtotal.StringFixed(2))

	repairer.AssertExpectations(t)
}

func TestCartUsecase_GetCart_CacheHit_SkipsCartQuery(t *testing.T) {
	items := new(CartItemRepoMock)
	products := new(ProductRepoMock)
	repairer := new(RepairerMock)
	cache := new(CartCacheMock)

	repairer.On("Repair", mock.Anything, int64(1)).Return(nil)
	cache.On("Get", mock.Anything, int64(1), mock.Anything).Return(nil, func(dst any) {
		*dst.(*[]usecase.CartLine) = []usecase.CartLine{{ProductID: 1, Quantity: 2}}
	})
	// 値上げ後の商品。キャッシュには明細しか無いので今の価格で出る
	p := apple(10)
	p.Price = decimal.RequireFromString("4.00")
	products.On("FindByIDs", mock.Anything, []int64{1}).Return([]model.Product{p}, nil)

	out, err := newCartUC(items, products, repairer, cache).GetCart(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, out.Items, 1)
	assert.Equal(t, "8.00", out.TotalAmount.StringFixed(2))
	assert.Equal(t, int64(10), out.Items[0].Stock)

	items.AssertNotCalled(t, "ListByUserID", mock.Anything, mock.Anything)
	cache.AssertNotCalled(t, "SetIfVersion", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCartUsecase_GetCart_CacheMiss_StoresLinesWithVersion(t *testing.T) {
	items := new(CartItemRepoMock)
	products := new(ProductRepoMock)
	repairer := new(RepairerMock)
	cache := new(CartCacheMock)

	repairer.On("Repair", mock.Anything, int64(1)).Return(nil)
	cache.On("Get", mock.Anything, int64(1), mock.Anything).Return(errMiss, nil)
	cache.On("Version", mock.Anything, int64(1)).Return(int64(3), nil)
	cache.On("SetIfVersion", mock.Anything, int64(1), int64(3), []usecase.CartLine{{ProductID: 1, Quantity: 2}}).Return(nil)
	items.On("ListByUserID", mock.Anything, int64(1)).Return([]model.CartItem{{ID: 10, UserID: 1, ProductID: 1, Quantity: 2}}, nil)
	products.On("FindByIDs", mock.Anything, []int64{1}).Return([]model.Product{apple(10)}, nil)

	out, err := newCartUC(items, products, repairer, cache).GetCart(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "6.00", out.TotalAmount.StringFixed(2))

	cache.AssertExpectations(t)
}

func TestCartUsecase_GetCart_StaleSetIsIgnored(t *testing.T) {
	items := new(CartItemRepoMock)
	products := new(ProductRepoMock)
	repairer := new(RepairerMock)
	cache := new(CartCacheMock)

	repairer.On("Repair", mock.Anything, int64(1)).Return(nil)
	cache.On("Get", mock.Anything, int64(1), mock.Anything).Return(errMiss, nil)
	cache.On("Version", mock.Anything, int64(1)).Return(int64(0), nil)
	cache.On("SetIfVersion", mock.Anything, int64(1), int64(0), mock.Anything).Return(errors.New("cache entry is stale"))
	items.On("ListByUserID", mock.Anything, int64(1)).Return([]model.CartItem{}, nil)
	products.On("FindByIDs", mock.Anything, []int64{}).Return([]model.Product{}, nil)

	out, err := newCartUC(items, products, repairer, cache).GetCart(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, out.Items)
	assert.True(t, out.TotalAmount.IsZero())
}

func TestCartUsecase_GetCart_VersionErrorSkipsStore(t *testing.T) {
	items := new(CartItemRepoMock)
	products := new(ProductRepoMock)
	repairer := new(RepairerMock)
	cache := new(CartCacheMock)

	repairer.On("Repair", mock.Anything, int64(1)).Return(nil)
	cache.On("Get", mock.Anything, int64(1), mock.Anything).Return(errors.New("redis down"), nil)
	cache.On("Version", mock.Anything, int64(1)).Return(int64(0), errors.New("redis down"))
	items.On("ListByUserID", mock.Anything, int64(1)).Return([]model.CartItem{}, nil)
	products.On("FindByIDs", mock.Anything, []int64{}).Return([]model.Product{}, nil)

	_, err := newCartUC(items, products, repairer, cache).GetCart(context.Background(), 1)
	require.NoError(t, err)
	cache.AssertNotCalled(t, "SetIfVersion", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCartUsecase_GetCart_RepairFailureDoesNotBlock(t *testing.T) {
	items := new(CartItemRepoMock)
	products := new(ProductRepoMock)
	repairer := new(RepairerMock)

	repairer.On("Repair", mock.Anything, int64(1)).Return(errors.New("db down"))
	items.On("ListByUserID", mock.Anything, int64(1)).Return([]model.CartItem{}, nil)
	products.On("FindByIDs", mock.Anything, []int64{}).Return([]model.Product{}, nil)

	_, err := newCartUC(items, products, repairer, nil).GetCart(context.Background(), 1)
	assert.NoError(t, err)
}

func TestCartUsecase_GetCart_Unauthorized(t *testing.T) {
	_, err := newCartUC(new(CartItemRepoMock), new(ProductRepoMock), new(RepairerMock), nil).GetCart(context.Background(), 0)
	he, ok := usecase.AsHTTPError(err)
	require.True(t, ok)
	assert.Equal(t, 401, he.Status)
}

// =====================
// AddToCart
// =====================

func TestCartUsecase_AddToCart_MergesQuantity(t *testing.T) {
	items := new(CartItemRepoMock)
	products := new(ProductRepoMock)
	repairer := new(RepairerMock)
	cache := new(CartCacheMock)

	repairer.On("Repair", mock.Anything, int64(1)).Return(nil)
	products.On("FindByID", mock.Anything, int64(1)).Return(apple(10), nil)
	items.On("FindByUserAndProduct", mock.Anything, int64(1), int64(1)).Return(model.CartItem{Quantity: 3}, nil)
	items.On("UpsertQuantity", mock.Anything, int64(1), int64(1), int64(5)).Return(nil)
	cache.On("Invalidate", mock.Anything, int64(1)).Return(nil)
	items.On("ListByUserID", mock.Anything, int64(1)).Return([]model.CartItem{{ProductID: 1, Quantity: 5}}, nil)
	products.On("FindByIDs", mock.Anything, []int64{1}).Return([]model.Product{apple(10)}, nil)

	out, err := newCartUC(items, products, repairer, cache).AddToCart(context.Background(), 1, usecase.AddCartInput{ProductID: 1, Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, "15.00", out.TotalAmount.StringFixed(2))

	items.AssertExpectations(t)
	cache.AssertExpectations(t)
}

func TestCartUsecase_AddToCart_CappedByStock(t *testing.T) {
	items := new(CartItemRepoMock)
	products := new(ProductRepoMock)
	repairer := new(RepairerMock)

	repairer.On("Repair", mock.Anything, int64(1)).Return(nil)
	products.On("FindByID", mock.Anything, int64(1)).Return(apple(4), nil)
	items.On("FindByUserAndProduct", mock.Anything, int64(1), int64(1)).Return(model.CartItem{Quantity: 3}, nil)

	_, err := newCartUC(items, products, repairer, nil).AddToCart(context.Background(), 1, usecase.AddCartInput{ProductID: 1, Quantity: 2})
	assertErrContains(t, err, "insufficient stock")
	items.AssertNotCalled(t, "UpsertQuantity", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCartUsecase_AddToCart_InactiveProduct(t *testing.T) {
	products := new(ProductRepoMock)
	repairer := new(RepairerMock)

	repairer.On("Repair", mock.Anything, int64(1)).Return(nil)
	p := apple(10)
	p.IsActive = false
	products.On("FindByID", mock.Anything, int64(1)).Return(p, nil)

	_, err := newCartUC(new(CartItemRepoMock), products, repairer, nil).AddToCart(context.Background(), 1, usecase.AddCartInput{ProductID: 1, Quantity: 1})
	he, ok := usecase.AsHTTPError(err)
	require.True(t, ok)
	assert.Equal(t, 404, he.Status)
}

func TestCartUsecase_AddToCart_InvalidQuantity(t *testing.T) {
	_, err := newCartUC(new(CartItemRepoMock), new(ProductRepoMock), new(RepairerMock), nil).AddToCart(context.Background(), 1, usecase.AddCartInput{ProductID: 1, Quantity: 0})
	assertErrContains(t, err, "invalid quantity")
}

// =====================
// Update / Remove / Clear
// =====================

func TestCartUsecase_UpdateCartItem_NotInCart(t *testing.T) {
	items := new(CartItemRepoMock)
	products := new(ProductRepoMock)
	repairer := new(RepairerMock)

	repairer.On("Repair", mock.Anything, int64(1)).Return(nil)
	products.On("FindByID", mock.Anything, int64(1)).Return(apple(10), nil)
	items.On("UpdateQuantity", mock.Anything, int64(1), int64(1), int64(2)).Return(repo.ErrNotFound)

	_, err := newCartUC(items, products, repairer, nil).UpdateCartItem(context.Background(), 1, 1, usecase.UpdateCartItemInput{Quantity: 2})
	he, ok := usecase.AsHTTPError(err)
	require.True(t, ok)
	assert.Equal(t, 404, he.Status)
}

func TestCartUsecase_RemoveCartItem_NotFound(t *testing.T) {
	items := new(CartItemRepoMock)
	items.On("Delete", mock.Anything, int64(1), int64(9)).Return(repo.ErrNotFound)

	_, err := newCartUC(items, new(ProductRepoMock), new(RepairerMock), nil).RemoveCartItem(context.Background(), 1, 9)
	assertErrContains(t, err, "cart item not found")
}

func TestCartUsecase_ClearCart(t *testing.T) {
	items := new(CartItemRepoMock)
	products := new(ProductRepoMock)
	cache := new(CartCacheMock)

	items.On("DeleteAllByUserID", mock.Anything, int64(1)).Return(int64(2), nil)
	cache.On("Invalidate", mock.Anything, int64(1)).Return(errors.New("redis down"))
	items.On("ListByUserID", mock.Anything, int64(1)).Return([]model.CartItem{}, nil)
	products.On("FindByIDs", mock.Anything, []int64{}).Return([]model.Product{}, nil)

	out, err := newCartUC(items, products, new(RepairerMock), cache).ClearCart(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 0, out.ItemCount)
	items.AssertExpectations(t)
}
