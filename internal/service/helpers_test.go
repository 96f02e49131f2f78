package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"bridal-order-service/internal/models"
	"bridal-order-service/internal/momo"
	"bridal-order-service/internal/store"
)

const testThreshold = 5

type recordingPublisher struct {
	mu       sync.Mutex
	created  []*models.OrderCreatedEvent
	changed  []*models.OrderStatusChangedEvent
	adjusted []*models.InventoryAdjustedEvent
	paid     []*models.PaymentConfirmedEvent
	err      error
}

func (p *recordingPublisher) PublishOrderCreated(_ context.Context, e *models.OrderCreatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, e)
	return p.err
}

func (p *recordingPublisher) PublishOrderStatusChanged(_ context.Context, e *models.OrderStatusChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changed = append(p.changed, e)
	return p.err
}

func (p *recordingPublisher) PublishInventoryAdjusted(_ context.Context, e *models.InventoryAdjustedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.adjusted = append(p.adjusted, e)
	return p.err
}

func (p *recordingPublisher) PublishPaymentConfirmed(_ context.Context, e *models.PaymentConfirmedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paid = append(p.paid, e)
	return p.err
}

// failingStore fails the Nth DecrementStock made inside a transaction.
type failingStore struct {
	*store.MemoryStore
	failOn int
	calls  int
}

var errDiskFull = errors.New("disk full")

func (f *failingStore) RunInTx(ctx context.Context, fn func(ctx context.Context, repos store.Repositories) error) error {
	return f.MemoryStore.RunInTx(ctx, func(ctx context.Context, repos store.Repositories) error {
		return fn(ctx, &failingRepos{Repositories: repos, parent: f})
	})
}

type failingRepos struct {
	store.Repositories
	parent *failingStore
}

func (r *failingRepos) DecrementStock(ctx context.Context, productID int64, quantity int) (*models.Product, error) {
	r.parent.calls++
	if r.parent.calls == r.parent.failOn {
		return nil, errDiskFull
	}
	return r.Repositories.DecrementStock(ctx, productID, quantity)
}

type fakeGateway struct {
	*momo.Client
	mu        sync.Mutex
	requests  []momo.PaymentRequest
	createErr error
}

func newFakeGateway() *fakeGateway {
	client, err := momo.NewClient(momo.Config{
		Endpoint:    "http://momo.invalid",
		PartnerCode: "MOMOTEST",
		AccessKey:   "access",
		SecretKey:   "secret",
	})
	if err != nil {
		panic(err)
	}
	return &fakeGateway{Client: client}
}

func (g *fakeGateway) CreatePayment(_ context.Context, req momo.PaymentRequest) (*momo.CreateResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.createErr != nil {
		return nil, g.createErr
	}
	return &momo.CreateResponse{
		OrderID:    req.OrderRef,
		RequestID:  req.RequestID,
		Amount:     req.Amount,
		ResultCode: momo.ResultSuccess,
		PayURL:     "https://test-payment.momo.vn/pay/" + req.OrderRef,
	}, nil
}

// signedIPN builds a callback for ref as MoMo would sign it.
func (g *fakeGateway) signedIPN(ref string, amount int64, resultCode int) momo.IPNPayload {
	p := momo.IPNPayload{
		PartnerCode:  "MOMOTEST",
		OrderID:      ref,
		RequestID:    "req-" + ref,
		Amount:       amount,
		OrderInfo:    "Thanh toán đơn hàng",
		OrderType:    "momo_wallet",
		TransID:      2588659987,
		ResultCode:   resultCode,
		Message:      "Successful.",
		PayType:      "qr",
		ResponseTime: 1700000001000,
	}
	p.Signature = g.SignIPN(p)
	return p
}

type memoryDeduper struct {
	mu   sync.Mutex
	keys map[string]bool
}

func newMemoryDeduper() *memoryDeduper {
	return &memoryDeduper{keys: make(map[string]bool)}
}

func (d *memoryDeduper) CheckIdempotencyKey(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.keys[key], nil
}

func (d *memoryDeduper) SetIdempotencyKey(_ context.Context, key string, _ interface{}, _ time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keys[key] = true
	return nil
}

func productStock(t *testing.T, db store.Database, id int64) models.Product {
	t.Helper()
	products, err := db.GetProductsByIDs(context.Background(), []int64{id})
	if err != nil || len(products) != 1 {
		t.Fatalf("product %d: %v", id, err)
	}
	return products[0]
}
