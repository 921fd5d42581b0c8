package usecase_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"
	"storefront/internal/usecase/checkout"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// =====================
// Repository mocks
// =====================

type ProductRepoMock struct{ mock.Mock }

func (m *ProductRepoMock) ListActive(ctx context.Context, categoryID int64, limit int, offset int) ([]model.Product, int64, error) {
	args := m.Called(ctx, categoryID, limit, offset)
	items, _ := args.Get(0).([]model.Product)
	return items, args.Get(1).(int64), args.Error(2)
}

func (m *ProductRepoMock) FindByID(ctx context.Context, id int64) (model.Product, error) {
	args := m.Called(ctx, id)
	p, _ := args.Get(0).(model.Product)
	return p, args.Error(1)
}

func (m *ProductRepoMock) FindByIDs(ctx context.Context, ids []int64) ([]model.Product, error) {
	args := m.Called(ctx, ids)
	items, _ := args.Get(0).([]model.Product)
	return items, args.Error(1)
}

func (m *ProductRepoMock) LockByIDs(ctx context.Context, ids []int64) ([]model.Product, error) {
	panic("not used in usecase tests")
}

func (m *ProductRepoMock) Create(ctx context.Context, p model.Product) (model.Product, error) {
	args := m.Called(ctx, p)
	created, _ := args.Get(0).(model.Product)
	return created, args.Error(1)
}

type CartItemRepoMock struct{ mock.Mock }

func (m *CartItemRepoMock) ListByUserID(ctx context.Context, userID int64) ([]model.CartItem, error) {
	args := m.Called(ctx, userID)
	items, _ := args.Get(0).([]model.CartItem)
	return items, args.Error(1)
}

func (m *CartItemRepoMock) LockByUserID(ctx context.Context, userID int64) ([]model.CartItem, error) {
	panic("not used in usecase tests")
}

func (m *CartItemRepoMock) FindByUserAndProduct(ctx context.Context, userID int64, productID int64) (model.CartItem, error) {
	args := m.Called(ctx, userID, productID)
	it, _ := args.Get(0).(model.CartItem)
	return it, args.Error(1)
}

func (m *CartItemRepoMock) UpsertQuantity(ctx context.Context, userID int64, productID int64, qty int64) error {
	args := m.Called(ctx, userID, productID, qty)
	return args.Error(0)
}

func (m *CartItemRepoMock) UpdateQuantity(ctx context.Context, userID int64, productID int64, qty int64) error {
	args := m.Called(ctx, userID, productID, qty)
	return args.Error(0)
}

func (m *CartItemRepoMock) Delete(ctx context.Context, userID int64, productID int64) error {
	args := m.Called(ctx, userID, productID)
	return args.Error(0)
}

func (m *CartItemRepoMock) DeleteAllByUserID(ctx context.Context, userID int64) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *CartItemRepoMock) DeleteStaleByUserID(ctx context.Context, userID int64, before time.Time) (int64, error) {
	panic("not used in usecase tests")
}

type OrderRepoMock struct{ mock.Mock }

func (m *OrderRepoMock) Create(ctx context.Context, order model.Order) (int64, error) {
	panic("not used in usecase tests")
}

func (m *OrderRepoMock) FindByID(ctx context.Context, orderID int64) (model.Order, error) {
	args := m.Called(ctx, orderID)
	o, _ := args.Get(0).(model.Order)
	return o, args.Error(1)
}

func (m *OrderRepoMock) ListByUserID(ctx context.Context, userID int64, page int, limit int) ([]model.Order, int64, error) {
	args := m.Called(ctx, userID, page, limit)
	items, _ := args.Get(0).([]model.Order)
	return items, args.Get(1).(int64), args.Error(2)
}

func (m *OrderRepoMock) FindByIdempotencyKey(ctx context.Context, userID int64, key string) (model.Order, bool, error) {
	panic("not used in usecase tests")
}

func (m *OrderRepoMock) ListUnreconciledByUserID(ctx context.Context, userID int64) ([]model.Order, error) {
	panic("not used in usecase tests")
}

func (m *OrderRepoMock) MarkCartReconciled(ctx context.Context, orderIDs ...int64) error {
	panic("not used in usecase tests")
}

type OrderItemRepoMock struct{ mock.Mock }

func (m *OrderItemRepoMock) CreateBulk(ctx context.Context, orderID int64, items []model.OrderItem) error {
	panic("not used in usecase tests")
}

func (m *OrderItemRepoMock) ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	args := m.Called(ctx, orderID)
	items, _ := args.Get(0).([]model.OrderItem)
	return items, args.Error(1)
}

type CategoryRepoMock struct{ mock.Mock }

func (m *CategoryRepoMock) List(ctx context.Context) ([]model.Category, error) {
	args := m.Called(ctx)
	items, _ := args.Get(0).([]model.Category)
	return items, args.Error(1)
}

func (m *CategoryRepoMock) FindByID(ctx context.Context, id int64) (model.Category, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(model.Category), args.Error(1)
}

func (m *CategoryRepoMock) Create(ctx context.Context, c model.Category) (model.Category, error) {
	args := m.Called(ctx, c)
	return args.Get(0).(model.Category), args.Error(1)
}

type UserRepoMock struct{ mock.Mock }

func (m *UserRepoMock) Create(ctx context.Context, user *model.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *UserRepoMock) FindByID(ctx context.Context, id int64) (*model.User, error) {
	args := m.Called(ctx, id)
	u, _ := args.Get(0).(*model.User)
	return u, args.Error(1)
}

func (m *UserRepoMock) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	args := m.Called(ctx, email)
	u, _ := args.Get(0).(*model.User)
	return u, args.Error(1)
}

// =====================
// TxManager / TxRepos mocks
// =====================

// TxManagerMock は WithinTx の中で渡す repos を固定して unit テストを回す
type TxManagerMock struct {
	mock.Mock
	Repos repo.TxRepos
}

func (m *TxManagerMock) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	m.Called(ctx)
	return fn(m.Repos)
}

type TxReposMock struct {
	orders     repo.OrderRepository
	orderItems repo.OrderItemRepository
}

func (r *TxReposMock) Orders() repo.OrderRepository         { return r.orders }
func (r *TxReposMock) OrderItems() repo.OrderItemRepository { return r.orderItems }
func (r *TxReposMock) CartItems() repo.CartItemRepository   { return nil }
func (r *TxReposMock) Inventory() repo.InventoryRepository  { return nil }
func (r *TxReposMock) Products() repo.ProductRepository     { return nil }
func (r *TxReposMock) Outbox() repo.OutboxRepository        { return nil }

// =====================
// collaborators
// =====================

type RepairerMock struct{ mock.Mock }

func (m *RepairerMock) Repair(ctx context.Context, userID int64) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

type CartCacheMock struct{ mock.Mock }

func (m *CartCacheMock) Get(ctx context.Context, userID int64, dst any) error {
	args := m.Called(ctx, userID, dst)
	if fill, ok := args.Get(1).(func(any)); ok && args.Error(0) == nil {
		fill(dst)
	}
	return args.Error(0)
}

func (m *CartCacheMock) Version(ctx context.Context, userID int64) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *CartCacheMock) SetIfVersion(ctx context.Context, userID int64, version int64, v any) error {
	args := m.Called(ctx, userID, version, v)
	return args.Error(0)
}

func (m *CartCacheMock) Invalidate(ctx context.Context, userID int64) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

type PlacerMock struct{ mock.Mock }

func (m *PlacerMock) PlaceOrder(ctx context.Context, in checkout.Input) (checkout.Result, error) {
	args := m.Called(ctx, in)
	res, _ := args.Get(0).(checkout.Result)
	return res, args.Error(1)
}

// =====================
// Helper
// =====================

func assertErrContains(t *testing.T, err error, wantSubstr string) {
	t.Helper()
	if assert.Error(t, err) {
		assert.True(t, strings.Contains(err.Error(), wantSubstr), "err=%q want contains %q", err.Error(), wantSubstr)
	}
}
