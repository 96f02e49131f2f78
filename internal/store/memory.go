package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"bridal-order-service/internal/models"
)

// MemoryStore is an in-process Database for local runs and tests. RunInTx
// holds the store mutex for the whole transaction and works on a copy of the
// data, so a failed transaction leaves nothing behind and concurrent
// transactions serialize the way row locks would.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
	now   func() time.Time
}

type memState struct {
	orders   map[int64]models.Order
	products map[int64]models.Product
	payments map[int64]models.Payment
	events   map[string]models.ProcessedEvent

	nextOrderID   int64
	nextItemID    int64
	nextPaymentID int64
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: &memState{
			orders:   make(map[int64]models.Order),
			products: make(map[int64]models.Product),
			payments: make(map[int64]models.Payment),
			events:   make(map[string]models.ProcessedEvent),
		},
		now: time.Now,
	}
}

// PutProduct inserts or replaces a catalog product.
func (m *MemoryStore) PutProduct(p models.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = m.now()
	}
	m.state.products[p.ID] = p
}

// PutOrder inserts or replaces an order with its items, keeping the given IDs.
func (m *MemoryStore) PutOrder(o models.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = now
	}
	items := make([]models.OrderItem, len(o.Items))
	for i, item := range o.Items {
		item.OrderID = o.ID
		if item.ID == 0 {
			m.state.nextItemID++
			item.ID = m.state.nextItemID
		}
		items[i] = item
	}
	o.Items = items
	m.state.orders[o.ID] = o
	if o.ID > m.state.nextOrderID {
		m.state.nextOrderID = o.ID
	}
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }

// RunInTx runs fn against a private copy that replaces the live data only if
// fn succeeds.
func (m *MemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	if err := fn(ctx, &memTx{state: work, now: m.now}); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *MemoryStore) view() *memTx {
	return &memTx{state: m.state, now: m.now}
}

func (m *MemoryStore) CreateOrder(ctx context.Context, order *models.Order) error {
	return m.RunInTx(ctx, func(ctx context.Context, repos Repositories) error {
		return repos.CreateOrder(ctx, order)
	})
}

func (m *MemoryStore) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().GetOrderByID(ctx, id)
}

func (m *MemoryStore) LockOrder(ctx context.Context, id int64) (*models.Order, error) {
	return m.GetOrderByID(ctx, id)
}

func (m *MemoryStore) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().GetOrderByIdempotencyKey(ctx, key)
}

func (m *MemoryStore) UpdateOrderStatus(ctx context.Context, id int64, status models.OrderStatus) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().UpdateOrderStatus(ctx, id, status)
}

func (m *MemoryStore) ListOrders(ctx context.Context, filter OrderFilter) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().ListOrders(ctx, filter)
}

func (m *MemoryStore) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().GetProductsByIDs(ctx, ids)
}

func (m *MemoryStore) ListProducts(ctx context.Context) ([]models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().ListProducts(ctx)
}

func (m *MemoryStore) DecrementStock(ctx context.Context, productID int64, quantity int) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().DecrementStock(ctx, productID, quantity)
}

func (m *MemoryStore) IncrementStock(ctx context.Context, productID int64, quantity int) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().IncrementStock(ctx, productID, quantity)
}

func (m *MemoryStore) UpdateProductStatus(ctx context.Context, productID int64, status models.ProductStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().UpdateProductStatus(ctx, productID, status)
}

func (m *MemoryStore) CreatePayment(ctx context.Context, payment *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().CreatePayment(ctx, payment)
}

func (m *MemoryStore) GetPaymentByProviderRef(ctx context.Context, ref string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().GetPaymentByProviderRef(ctx, ref)
}

func (m *MemoryStore) UpdatePaymentStatus(ctx context.Context, paymentID int64, status models.PaymentStatus, providerTxID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().UpdatePaymentStatus(ctx, paymentID, status, providerTxID)
}

func (m *MemoryStore) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().IsEventProcessed(ctx, eventID)
}

func (m *MemoryStore) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().MarkEventProcessed(ctx, eventID, eventType)
}

// memTx operates on a memState without locking; the caller owns the lock.
type memTx struct {
	state *memState
	now   func() time.Time
}

func (t *memTx) CreateOrder(_ context.Context, order *models.Order) error {
	if order.IdempotencyKey != nil {
		for _, existing := range t.state.orders {
			if existing.IdempotencyKey != nil && *existing.IdempotencyKey == *order.IdempotencyKey {
				return fmt.Errorf("failed to insert order: duplicate idempotency key %q", *order.IdempotencyKey)
			}
		}
	}
	for _, item := range order.Items {
		if _, ok := t.state.products[item.ProductID]; !ok {
			return fmt.Errorf("failed to insert order item: %w: product %d", ErrNotFound, item.ProductID)
		}
	}

	now := t.now()
	t.state.nextOrderID++
	order.ID = t.state.nextOrderID
	order.CreatedAt = now
	order.UpdatedAt = now
	for i := range order.Items {
		t.state.nextItemID++
		order.Items[i].ID = t.state.nextItemID
		order.Items[i].OrderID = order.ID
	}
	t.state.orders[order.ID] = copyOrder(*order)
	return nil
}

func (t *memTx) GetOrderByID(_ context.Context, id int64) (*models.Order, error) {
	o, ok := t.state.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: order %d", ErrNotFound, id)
	}
	out := copyOrder(o)
	return &out, nil
}

func (t *memTx) LockOrder(ctx context.Context, id int64) (*models.Order, error) {
	return t.GetOrderByID(ctx, id)
}

func (t *memTx) GetOrderByIdempotencyKey(_ context.Context, key string) (*models.Order, error) {
	for _, o := range t.state.orders {
		if o.IdempotencyKey != nil && *o.IdempotencyKey == key {
			out := copyOrder(o)
			return &out, nil
		}
	}
	return nil, nil
}

func (t *memTx) UpdateOrderStatus(_ context.Context, id int64, status models.OrderStatus) (*models.Order, error) {
	o, ok := t.state.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: order %d", ErrNotFound, id)
	}
	o.Status = status
	o.UpdatedAt = t.now()
	t.state.orders[id] = o
	out := copyOrder(o)
	return &out, nil
}

func (t *memTx) ListOrders(_ context.Context, filter OrderFilter) ([]models.Order, error) {
	var out []models.Order
	for _, o := range t.state.orders {
		if filter.Status != nil && o.Status != *filter.Status {
			continue
		}
		if filter.UserID != nil && o.UserID != *filter.UserID {
			continue
		}
		out = append(out, copyOrder(o))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})

	if filter.Offset >= len(out) {
		return []models.Order{}, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (t *memTx) GetProductsByIDs(_ context.Context, ids []int64) ([]models.Product, error) {
	out := make([]models.Product, 0, len(ids))
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if p, ok := t.state.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (t *memTx) ListProducts(_ context.Context) ([]models.Product, error) {
	out := make([]models.Product, 0, len(t.state.products))
	for _, p := range t.state.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) DecrementStock(ctx context.Context, productID int64, quantity int) (*models.Product, error) {
	return t.adjustStock(productID, -quantity)
}

func (t *memTx) IncrementStock(ctx context.Context, productID int64, quantity int) (*models.Product, error) {
	return t.adjustStock(productID, quantity)
}

func (t *memTx) adjustStock(productID int64, delta int) (*models.Product, error) {
	p, ok := t.state.products[productID]
	if !ok {
		return nil, fmt.Errorf("%w: product %d", ErrNotFound, productID)
	}
	p.StockQuantity += delta
	p.StockVersion++
	p.UpdatedAt = t.now()
	t.state.products[productID] = p
	return &p, nil
}

func (t *memTx) UpdateProductStatus(_ context.Context, productID int64, status models.ProductStatus) error {
	p, ok := t.state.products[productID]
	if !ok {
		return fmt.Errorf("%w: product %d", ErrNotFound, productID)
	}
	p.Status = status
	p.UpdatedAt = t.now()
	t.state.products[productID] = p
	return nil
}

func (t *memTx) CreatePayment(_ context.Context, payment *models.Payment) error {
	for _, existing := range t.state.payments {
		if existing.ProviderOrderRef == payment.ProviderOrderRef || existing.RequestID == payment.RequestID {
			return fmt.Errorf("failed to insert payment: duplicate reference %q", payment.ProviderOrderRef)
		}
	}
	now := t.now()
	t.state.nextPaymentID++
	payment.ID = t.state.nextPaymentID
	payment.CreatedAt = now
	payment.UpdatedAt = now
	t.state.payments[payment.ID] = *payment
	return nil
}

func (t *memTx) GetPaymentByProviderRef(_ context.Context, ref string) (*models.Payment, error) {
	for _, p := range t.state.payments {
		if p.ProviderOrderRef == ref {
			out := p
			return &out, nil
		}
	}
	return nil, fmt.Errorf("%w: payment %s", ErrNotFound, ref)
}

func (t *memTx) UpdatePaymentStatus(_ context.Context, paymentID int64, status models.PaymentStatus, providerTxID string) error {
	p, ok := t.state.payments[paymentID]
	if !ok {
		return fmt.Errorf("%w: payment %d", ErrNotFound, paymentID)
	}
	p.Status = status
	p.ProviderTxID = providerTxID
	p.UpdatedAt = t.now()
	t.state.payments[paymentID] = p
	return nil
}

func (t *memTx) IsEventProcessed(_ context.Context, eventID string) (bool, error) {
	_, ok := t.state.events[eventID]
	return ok, nil
}

func (t *memTx) MarkEventProcessed(_ context.Context, eventID, eventType string) error {
	if _, ok := t.state.events[eventID]; ok {
		return nil
	}
	t.state.events[eventID] = models.ProcessedEvent{EventID: eventID, EventType: eventType, ProcessedAt: t.now()}
	return nil
}

func (s *memState) clone() *memState {
	out := &memState{
		orders:        make(map[int64]models.Order, len(s.orders)),
		products:      make(map[int64]models.Product, len(s.products)),
		payments:      make(map[int64]models.Payment, len(s.payments)),
		events:        make(map[string]models.ProcessedEvent, len(s.events)),
		nextOrderID:   s.nextOrderID,
		nextItemID:    s.nextItemID,
		nextPaymentID: s.nextPaymentID,
	}
	for k, v := range s.orders {
		out.orders[k] = copyOrder(v)
	}
	for k, v := range s.products {
		out.products[k] = v
	}
	for k, v := range s.payments {
		out.payments[k] = v
	}
	for k, v := range s.events {
		out.events[k] = v
	}
	return out
}

func copyOrder(o models.Order) models.Order {
	if o.Items != nil {
		items := make([]models.OrderItem, len(o.Items))
		copy(items, o.Items)
		o.Items = items
	}
	if o.IdempotencyKey != nil {
		key := *o.IdempotencyKey
		o.IdempotencyKey = &key
	}
	return o
}

var (
	_ Database = (*MemoryStore)(nil)
	_ Database = (*Store)(nil)
)
