package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"bridal-order-service/internal/models"
	"bridal-order-service/internal/momo"
	"bridal-order-service/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type paymentFixture struct {
	db      *store.MemoryStore
	events  *recordingPublisher
	gateway *fakeGateway
	dedupe  *memoryDeduper
	svc     *PaymentService
}

func newPaymentFixture(t *testing.T) *paymentFixture {
	t.Helper()
	db := store.NewMemoryStore()
	db.PutProduct(models.Product{ID: 5, StockQuantity: 10})
	db.PutOrder(models.Order{
		ID:     42,
		UserID: 1,
		Status: models.OrderStatusPending,
		Total:  1000000,
		Items:  []models.OrderItem{{ProductID: 5, Quantity: 2, Price: 500000}},
	})

	events := &recordingPublisher{}
	gateway := newFakeGateway()
	dedupe := newMemoryDeduper()
	reconciler := NewReconciler(db, NewInventoryAdjuster(testThreshold), events)
	svc := NewPaymentService(db, reconciler, gateway, dedupe, events, time.Hour)
	svc.now = func() time.Time { return time.UnixMilli(1700000000000) }

	return &paymentFixture{db: db, events: events, gateway: gateway, dedupe: dedupe, svc: svc}
}

func (f *paymentFixture) start(t *testing.T) *StartPaymentResponse {
	t.Helper()
	resp, err := f.svc.StartPayment(context.Background(), 42)
	require.NoError(t, err)
	return resp
}

func (f *paymentFixture) orderStatus(t *testing.T) models.OrderStatus {
	t.Helper()
	order, err := f.db.GetOrderByID(context.Background(), 42)
	require.NoError(t, err)
	return order.Status
}

func (f *paymentFixture) payment(t *testing.T, ref string) *models.Payment {
	t.Helper()
	payment, err := f.db.GetPaymentByProviderRef(context.Background(), ref)
	require.NoError(t, err)
	return payment
}

func TestStartPayment(t *testing.T) {
	f := newPaymentFixture(t)

	resp := f.start(t)
	assert.Equal(t, "42-1700000000000", resp.ProviderOrderRef)
	assert.Equal(t, int64(1000000), resp.Amount)
	assert.Equal(t, "https://test-payment.momo.vn/pay/42-1700000000000", resp.PayURL)

	require.Len(t, f.gateway.requests, 1)
	req := f.gateway.requests[0]
	assert.Equal(t, "Thanh toán đơn hàng #42", req.OrderInfo)
	assert.Equal(t, int64(1000000), req.Amount)
	assert.NotEmpty(t, req.RequestID)

	payment := f.payment(t, resp.ProviderOrderRef)
	assert.Equal(t, models.PaymentStatusPending, payment.Status)
	assert.Equal(t, models.PaymentProviderMoMo, payment.Provider)
	assert.Equal(t, req.RequestID, payment.RequestID)
}

func TestStartPaymentGatewayFailure(t *testing.T) {
	f := newPaymentFixture(t)
	f.gateway.createErr = &momo.Error{ResultCode: 99, Message: "system error"}

	_, err := f.svc.StartPayment(context.Background(), 42)
	require.ErrorIs(t, err, ErrGatewayUnavailable)
	var gwErr *momo.Error
	assert.True(t, errors.As(err, &gwErr))

	assert.Equal(t, models.OrderStatusPending, f.orderStatus(t))
	assert.Equal(t, models.PaymentStatusFailed, f.payment(t, "42-1700000000000").Status)
}

func TestStartPaymentRequiresPendingOrder(t *testing.T) {
	f := newPaymentFixture(t)
	f.db.PutOrder(models.Order{ID: 43, Status: models.OrderStatusShipped, Total: 1})

	_, err := f.svc.StartPayment(context.Background(), 43)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.StartPayment(context.Background(), 404)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, f.gateway.requests)
}

func TestPaymentsDisabledWithoutGateway(t *testing.T) {
	db := store.NewMemoryStore()
	svc := NewPaymentService(db, NewReconciler(db, NewInventoryAdjuster(testThreshold), nil), nil, nil, nil, time.Hour)

	assert.False(t, svc.Enabled())
	_, err := svc.StartPayment(context.Background(), 1)
	assert.ErrorIs(t, err, ErrPaymentsDisabled)
	_, err = svc.HandleIPN(context.Background(), momo.IPNPayload{})
	assert.ErrorIs(t, err, ErrPaymentsDisabled)
}

func TestHandleIPNSuccess(t *testing.T) {
	f := newPaymentFixture(t)
	resp := f.start(t)

	outcome, err := f.svc.HandleIPN(context.Background(), f.gateway.signedIPN(resp.ProviderOrderRef, 1000000, 0))
	require.NoError(t, err)
	assert.Equal(t, IPNOutcomeProcessed, outcome)

	assert.Equal(t, models.OrderStatusProcessing, f.orderStatus(t))
	payment := f.payment(t, resp.ProviderOrderRef)
	assert.Equal(t, models.PaymentStatusSuccess, payment.Status)
	assert.Equal(t, "2588659987", payment.ProviderTxID)

	require.Len(t, f.events.paid, 1)
	assert.Equal(t, int64(42), f.events.paid[0].OrderID)
	require.Len(t, f.events.changed, 1)
	assert.Equal(t, models.OrderStatusProcessing, f.events.changed[0].To)
	assert.Equal(t, 10, productStock(t, f.db, 5).StockQuantity)
}

func TestHandleIPNReplayIsIdempotent(t *testing.T) {
	for _, withCache := range []bool{true, false} {
		name := "with cache"
		if !withCache {
			name = "without cache"
		}
		t.Run(name, func(t *testing.T) {
			f := newPaymentFixture(t)
			if !withCache {
				f.svc.dedupe = nil
			}
			resp := f.start(t)
			payload := f.gateway.signedIPN(resp.ProviderOrderRef, 1000000, 0)

			_, err := f.svc.HandleIPN(context.Background(), payload)
			require.NoError(t, err)

			outcome, err := f.svc.HandleIPN(context.Background(), payload)
			assert.ErrorIs(t, err, ErrDuplicateCallback)
			assert.Equal(t, IPNOutcomeDuplicate, outcome)

			assert.Equal(t, models.OrderStatusProcessing, f.orderStatus(t))
			assert.Len(t, f.events.changed, 1, "exactly one transition applied")
			assert.Len(t, f.events.paid, 1)
			assert.Equal(t, 10, productStock(t, f.db, 5).StockQuantity)
		})
	}
}

func TestHandleIPNAmountTamper(t *testing.T) {
	f := newPaymentFixture(t)
	resp := f.start(t)

	// Correctly signed, but for a different amount than the order total.
	outcome, err := f.svc.HandleIPN(context.Background(), f.gateway.signedIPN(resp.ProviderOrderRef, 1000, 0))
	assert.ErrorIs(t, err, ErrAmountMismatch)
	assert.Equal(t, IPNOutcomeRejected, outcome)

	assert.Equal(t, models.OrderStatusPending, f.orderStatus(t))
	assert.Equal(t, models.PaymentStatusPending, f.payment(t, resp.ProviderOrderRef).Status)
	assert.Empty(t, f.events.changed)
}

func TestHandleIPNSignatureMismatch(t *testing.T) {
	f := newPaymentFixture(t)
	resp := f.start(t)

	payload := f.gateway.signedIPN(resp.ProviderOrderRef, 1000000, 0)
	payload.Amount = 1 // changed after signing

	outcome, err := f.svc.HandleIPN(context.Background(), payload)
	assert.ErrorIs(t, err, ErrSignatureMismatch)
	assert.Equal(t, IPNOutcomeRejected, outcome)
	assert.Equal(t, models.OrderStatusPending, f.orderStatus(t))
	assert.Empty(t, f.dedupe.keys, "rejected callbacks are not remembered")
}

func TestHandleIPNUnsuccessfulPayment(t *testing.T) {
	f := newPaymentFixture(t)
	resp := f.start(t)

	outcome, err := f.svc.HandleIPN(context.Background(), f.gateway.signedIPN(resp.ProviderOrderRef, 1000000, 1006))
	require.NoError(t, err)
	assert.Equal(t, IPNOutcomePaymentFailed, outcome)

	assert.Equal(t, models.OrderStatusPending, f.orderStatus(t))
	assert.Equal(t, models.PaymentStatusFailed, f.payment(t, resp.ProviderOrderRef).Status)
	assert.Empty(t, f.events.paid)
}

func TestHandleIPNUnknownOrder(t *testing.T) {
	f := newPaymentFixture(t)

	_, err := f.svc.HandleIPN(context.Background(), f.gateway.signedIPN("999-1700000000000", 1000000, 0))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.HandleIPN(context.Background(), f.gateway.signedIPN("not-an-order", 1000000, 0))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestHandleIPNForCancelledOrder(t *testing.T) {
	f := newPaymentFixture(t)
	resp := f.start(t)

	_, err := f.svc.reconciler.Transition(context.Background(), 42, models.OrderStatusCancelled)
	require.NoError(t, err)

	outcome, err := f.svc.HandleIPN(context.Background(), f.gateway.signedIPN(resp.ProviderOrderRef, 1000000, 0))
	assert.ErrorIs(t, err, ErrDuplicateCallback)
	assert.Equal(t, IPNOutcomeDuplicate, outcome)

	assert.Equal(t, models.OrderStatusCancelled, f.orderStatus(t))
	assert.Equal(t, models.PaymentStatusSuccess, f.payment(t, resp.ProviderOrderRef).Status,
		"captured money stays recorded against the attempt")
}
