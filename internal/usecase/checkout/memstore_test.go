package checkout_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"
)

// =====================
// in-memory TransactionManager
// =====================

// memStore はTxを1本ずつ直列に実行し、fnがerrorを返したら状態を巻き戻す。
type memStore struct {
	mu sync.Mutex

	products map[int64]model.Product
	cart     []model.CartItem
	orders   []model.Order
	items    []model.OrderItem
	outbox   []model.OutboxEvent

	nextID int64
	tick   int64

	// "CartItems.DeleteAllByUserID" のような名前で失敗を差し込む
	fail map[string]error
	// WithinTx の呼び出し回数
	txCalls int
}

var baseTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newMemStore() *memStore {
	return &memStore{products: map[int64]model.Product{}, fail: map[string]error{}}
}

func (s *memStore) now() time.Time {
	s.tick++
	return baseTime.Add(time.Duration(s.tick) * time.Second)
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memStore) addProduct(id int64, name string, price string, stock int64, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[id] = model.Product{ID: id, Name: name, Price: mustDec(price), Stock: stock, IsActive: active}
}

func (s *memStore) addToCart(userID, productID, qty int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.cart {
		if s.cart[i].UserID == userID && s.cart[i].ProductID == productID {
			s.cart[i].Quantity = qty
			s.cart[i].UpdatedAt = s.now()
			return
		}
	}
	now := s.now()
	s.cart = append(s.cart, model.CartItem{ID: s.id(), UserID: userID, ProductID: productID, Quantity: qty, CreatedAt: now, UpdatedAt: now})
}

func (s *memStore) stock(productID int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[productID].Stock
}

func (s *memStore) cartOf(userID int64) []model.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.CartItem{}
	for _, it := range s.cart {
		if it.UserID == userID {
			out = append(out, it)
		}
	}
	return out
}

func (s *memStore) allOrders() []model.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Order{}, s.orders...)
}

func (s *memStore) itemsOf(orderID int64) []model.OrderItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.OrderItem{}
	for _, it := range s.items {
		if it.OrderID == orderID {
			out = append(out, it)
		}
	}
	return out
}

func (s *memStore) events() []model.OutboxEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.OutboxEvent{}, s.outbox...)
}

func (s *memStore) setFail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, op)
		return
	}
	s.fail[op] = err
}

type memSnapshot struct {
	products map[int64]model.Product
	cart     []model.CartItem
	orders   []model.Order
	items    []model.OrderItem
	outbox   []model.OutboxEvent
	nextID   int64
}

func (s *memStore) snapshot() memSnapshot {
	ps := make(map[int64]model.Product, len(s.products))
	for k, v := range s.products {
		ps[k] = v
	}
	return memSnapshot{
		products: ps,
		cart:     append([]model.CartItem{}, s.cart...),
		orders:   append([]model.Order{}, s.orders...),
		items:    append([]model.OrderItem{}, s.items...),
		outbox:   append([]model.OutboxEvent{}, s.outbox...),
		nextID:   s.nextID,
	}
}

func (s *memStore) restore(sn memSnapshot) {
	s.products, s.cart, s.orders, s.items, s.outbox, s.nextID = sn.products, sn.cart, sn.orders, sn.items, sn.outbox, sn.nextID
}

func (s *memStore) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txCalls++

	if err := ctx.Err(); err != nil {
		return err
	}
	sn := s.snapshot()
	if err := fn(memRepos{s}); err != nil {
		s.restore(sn)
		return err
	}
	return nil
}

func (s *memStore) injected(op string) error {
	return s.fail[op]
}

// =====================
// TxRepos（mu を持った状態で呼ばれる）
// =====================

type memRepos struct{ s *memStore }

func (r memRepos) Orders() repo.OrderRepository         { return memOrders(r) }
func (r memRepos) OrderItems() repo.OrderItemRepository { return memOrderItems(r) }
func (r memRepos) CartItems() repo.CartItemRepository   { return memCart(r) }
func (r memRepos) Inventory() repo.InventoryRepository  { return memInventory(r) }
func (r memRepos) Products() repo.ProductRepository     { return memProducts(r) }
func (r memRepos) Outbox() repo.OutboxRepository        { return memOutbox(r) }

type memOrders struct{ s *memStore }

func (r memOrders) Create(_ context.Context, o model.Order) (int64, error) {
	if err := r.s.injected("Orders.Create"); err != nil {
		return 0, err
	}
	if o.IdempotencyKey != nil {
		for _, ex := range r.s.orders {
			if ex.UserID == o.UserID && ex.IdempotencyKey != nil && *ex.IdempotencyKey == *o.IdempotencyKey {
				return 0, repo.ErrDuplicate
			}
		}
	}
	o.ID = r.s.id()
	o.CreatedAt = r.s.now()
	r.s.orders = append(r.s.orders, o)
	return o.ID, nil
}

func (r memOrders) FindByID(_ context.Context, id int64) (model.Order, error) {
	for _, o := range r.s.orders {
		if o.ID == id {
			return o, nil
		}
	}
	return model.Order{}, repo.ErrNotFound
}

func (r memOrders) ListByUserID(_ context.Context, userID int64, page int, limit int) ([]model.Order, int64, error) {
	out := []model.Order{}
	for i := len(r.s.orders) - 1; i >= 0; i-- {
		if r.s.orders[i].UserID == userID {
			out = append(out, r.s.orders[i])
		}
	}
	total := int64(len(out))
	start := (page - 1) * limit
	if start >= len(out) {
		return []model.Order{}, total, nil
	}
	end := start + limit
	if end > len(out) {
		end = len(out)
	}
	return out[start:end], total, nil
}

func (r memOrders) FindByIdempotencyKey(_ context.Context, userID int64, key string) (model.Order, bool, error) {
	for _, o := range r.s.orders {
		if o.UserID == userID && o.IdempotencyKey != nil && *o.IdempotencyKey == key {
			return o, true, nil
		}
	}
	return model.Order{}, false, nil
}

func (r memOrders) ListUnreconciledByUserID(_ context.Context, userID int64) ([]model.Order, error) {
	out := []model.Order{}
	for _, o := range r.s.orders {
		if o.UserID == userID && !o.CartReconciled {
			out = append(out, o)
		}
	}
	return out, nil
}

func (r memOrders) MarkCartReconciled(_ context.Context, ids ...int64) error {
	if err := r.s.injected("Orders.MarkCartReconciled"); err != nil {
		return err
	}
	for i := range r.s.orders {
		for _, id := range ids {
			if r.s.orders[i].ID == id {
				r.s.orders[i].CartReconciled = true
			}
		}
	}
	return nil
}

type memOrderItems struct{ s *memStore }

func (r memOrderItems) CreateBulk(_ context.Context, orderID int64, items []model.OrderItem) error {
	if err := r.s.injected("OrderItems.CreateBulk"); err != nil {
		return err
	}
	for _, it := range items {
		it.ID = r.s.id()
		it.OrderID = orderID
		r.s.items = append(r.s.items, it)
	}
	return nil
}

func (r memOrderItems) ListByOrderID(_ context.Context, orderID int64) ([]model.OrderItem, error) {
	out := []model.OrderItem{}
	for _, it := range r.s.items {
		if it.OrderID == orderID {
			out = append(out, it)
		}
	}
	return out, nil
}

type memCart struct{ s *memStore }

func (r memCart) ListByUserID(_ context.Context, userID int64) ([]model.CartItem, error) {
	out := []model.CartItem{}
	for _, it := range r.s.cart {
		if it.UserID == userID {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memCart) LockByUserID(ctx context.Context, userID int64) ([]model.CartItem, error) {
	if err := r.s.injected("CartItems.LockByUserID"); err != nil {
		return nil, err
	}
	return r.ListByUserID(ctx, userID)
}

func (r memCart) FindByUserAndProduct(_ context.Context, userID int64, productID int64) (model.CartItem, error) {
	for _, it := range r.s.cart {
		if it.UserID == userID && it.ProductID == productID {
			return it, nil
		}
	}
	return model.CartItem{}, repo.ErrNotFound
}

func (r memCart) UpsertQuantity(_ context.Context, userID int64, productID int64, qty int64) error {
	for i := range r.s.cart {
		if r.s.cart[i].UserID == userID && r.s.cart[i].ProductID == productID {
			r.s.cart[i].Quantity = qty
			r.s.cart[i].UpdatedAt = r.s.now()
			return nil
		}
	}
	now := r.s.now()
	r.s.cart = append(r.s.cart, model.CartItem{ID: r.s.id(), UserID: userID, ProductID: productID, Quantity: qty, CreatedAt: now, UpdatedAt: now})
	return nil
}

func (r memCart) UpdateQuantity(_ context.Context, userID int64, productID int64, qty int64) error {
	for i := range r.s.cart {
		if r.s.cart[i].UserID == userID && r.s.cart[i].ProductID == productID {
			r.s.cart[i].Quantity = qty
			r.s.cart[i].UpdatedAt = r.s.now()
			return nil
		}
	}
	return repo.ErrNotFound
}

func (r memCart) Delete(_ context.Context, userID int64, productID int64) error {
	n := r.deleteWhere(func(it model.CartItem) bool { return it.UserID == userID && it.ProductID == productID })
	if n == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r memCart) DeleteAllByUserID(_ context.Context, userID int64) (int64, error) {
	if err := r.s.injected("CartItems.DeleteAllByUserID"); err != nil {
		return 0, err
	}
	return r.deleteWhere(func(it model.CartItem) bool { return it.UserID == userID }), nil
}

func (r memCart) DeleteStaleByUserID(_ context.Context, userID int64, before time.Time) (int64, error) {
	return r.deleteWhere(func(it model.CartItem) bool {
		return it.UserID == userID && !it.UpdatedAt.After(before)
	}), nil
}

func (r memCart) deleteWhere(match func(model.CartItem) bool) int64 {
	kept := r.s.cart[:0:0]
	var n int64
	for _, it := range r.s.cart {
		if match(it) {
			n++
			continue
		}
		kept = append(kept, it)
	}
	r.s.cart = kept
	return n
}

type memInventory struct{ s *memStore }

func (r memInventory) DecreaseStockIfEnough(_ context.Context, productID int64, qty int64) (bool, error) {
	p, ok := r.s.products[productID]
	if !ok || p.Stock < qty {
		return false, nil
	}
	p.Stock -= qty
	r.s.products[productID] = p
	return true, nil
}

type memProducts struct{ s *memStore }

func (r memProducts) ListActive(_ context.Context, categoryID int64, limit int, offset int) ([]model.Product, int64, error) {
	all := []model.Product{}
	for _, p := range r.s.products {
		if !p.IsActive {
			continue
		}
		if categoryID == 0 || (p.CategoryID != nil && *p.CategoryID == categoryID) {
			all = append(all, p)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	total := int64(len(all))
	if offset >= len(all) {
		return []model.Product{}, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (r memProducts) FindByID(_ context.Context, id int64) (model.Product, error) {
	p, ok := r.s.products[id]
	if !ok {
		return model.Product{}, repo.ErrNotFound
	}
	return p, nil
}

func (r memProducts) FindByIDs(_ context.Context, ids []int64) ([]model.Product, error) {
	out := []model.Product{}
	for _, id := range ids {
		if p, ok := r.s.products[id]; ok {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memProducts) LockByIDs(ctx context.Context, ids []int64) ([]model.Product, error) {
	return r.FindByIDs(ctx, ids)
}

func (r memProducts) Create(_ context.Context, p model.Product) (model.Product, error) {
	p.ID = r.s.id()
	r.s.products[p.ID] = p
	return p, nil
}

type memOutbox struct{ s *memStore }

func (r memOutbox) Insert(_ context.Context, ev model.OutboxEvent) error {
	ev.ID = r.s.id()
	r.s.outbox = append(r.s.outbox, ev)
	return nil
}

func (r memOutbox) FetchPending(_ context.Context, limit int) ([]model.OutboxEvent, error) {
	out := []model.OutboxEvent{}
	for _, ev := range r.s.outbox {
		if ev.SentAt == nil && len(out) < limit {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (r memOutbox) MarkSent(_ context.Context, ids []int64) error {
	now := r.s.now()
	for i := range r.s.outbox {
		for _, id := range ids {
			if r.s.outbox[i].ID == id {
				r.s.outbox[i].SentAt = &now
			}
		}
	}
	return nil
}
