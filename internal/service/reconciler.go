package service

import (
	"context"
	"fmt"
	"time"

	"bridal-order-service/internal/models"
	"bridal-order-service/internal/store"
	"bridal-order-service/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// EventPublisher delivers domain events after their transaction commits.
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
	PublishInventoryAdjusted(ctx context.Context, event *models.InventoryAdjustedEvent) error
	PublishPaymentConfirmed(ctx context.Context, event *models.PaymentConfirmedEvent) error
}

// Reconciler is the only writer of order status and product stock. Admin
// actions, returns and payment callbacks all go through Transition.
type Reconciler struct {
	uow       store.UnitOfWork
	inventory *InventoryAdjuster
	events    EventPublisher
	logger    *zap.Logger
}

// NewReconciler creates a reconciler. events may be nil.
func NewReconciler(uow store.UnitOfWork, inventory *InventoryAdjuster, events EventPublisher) *Reconciler {
	return &Reconciler{
		uow:       uow,
		inventory: inventory,
		events:    events,
		logger:    util.GetLogger(),
	}
}

// transition is a committed status change and the stock it moved.
type transition struct {
	order *models.Order
	from  models.OrderStatus
	kind  string
	stock []models.ProductStock
}

// Transition moves an order to requested. The status write and every stock
// adjustment commit together or not at all; on failure the order keeps its
// previous status.
func (r *Reconciler) Transition(ctx context.Context, orderID int64, requested models.OrderStatus) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "Reconciler.Transition",
		attribute.Int64("order.id", orderID),
		attribute.String("order.requested_status", string(requested)))
	defer span.End()

	var result *transition
	err := r.uow.RunInTx(ctx, func(ctx context.Context, repos store.Repositories) error {
		t, err := r.transitionTx(ctx, repos, orderID, requested)
		if err != nil {
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		err = classifyTxError(err)
		util.RecordError(span, err)
		util.OrderTransitionsRejected.WithLabelValues(rejectionReason(err)).Inc()
		r.logger.Warn("Order transition rejected",
			zap.Int64("order_id", orderID),
			zap.String("requested", string(requested)),
			zap.Error(err))
		return nil, err
	}

	r.committed(ctx, result)
	return result.order, nil
}

// transitionTx runs the transition against repos inside the caller's
// transaction. The order row stays locked until that transaction ends, so a
// concurrent transition on the same order sees this one's result.
func (r *Reconciler) transitionTx(ctx context.Context, repos store.Repositories, orderID int64, requested models.OrderStatus) (*transition, error) {
	if !requested.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, requested)
	}

	order, err := repos.LockOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if !CanTransition(order.Status, requested) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, requested)
	}
	if requested == models.OrderStatusReturned && order.Status != models.OrderStatusDelivered {
		return nil, fmt.Errorf("%w: order %d is %s", ErrNotReturnable, orderID, order.Status)
	}

	updated, err := repos.UpdateOrderStatus(ctx, orderID, requested)
	if err != nil {
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}
	updated.Items = order.Items

	t := &transition{order: updated, from: order.Status}
	switch requested {
	case models.OrderStatusDelivered:
		t.kind = models.AdjustmentDelivery
		t.stock, err = r.inventory.ApplyDelivery(ctx, repos, order.Items)
	case models.OrderStatusReturned:
		t.kind = models.AdjustmentReturn
		t.stock, err = r.inventory.ApplyReturn(ctx, repos, order.Items)
	}
	if err != nil {
		return nil, err
	}

	return t, nil
}

// committed records metrics and publishes events for a transition whose
// transaction has committed. Publish failures are logged and never undo it.
func (r *Reconciler) committed(ctx context.Context, t *transition) {
	util.OrderTransitionsTotal.WithLabelValues(string(t.from), string(t.order.Status)).Inc()
	if t.kind != "" {
		util.InventoryAdjustmentsTotal.WithLabelValues(t.kind).Add(float64(len(t.stock)))
	}

	r.logger.Info("Order transitioned",
		zap.Int64("order_id", t.order.ID),
		zap.String("from", string(t.from)),
		zap.String("to", string(t.order.Status)),
		zap.Int("products_adjusted", len(t.stock)))

	if r.events == nil {
		return
	}

	now := time.Now()
	changed := &models.OrderStatusChangedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderStatusChanged,
			Timestamp: now,
		},
		OrderID: t.order.ID,
		From:    t.from,
		To:      t.order.Status,
	}
	if err := r.events.PublishOrderStatusChanged(ctx, changed); err != nil {
		r.logger.Error("Failed to publish OrderStatusChanged event",
			zap.Int64("order_id", t.order.ID), zap.Error(err))
	}

	if len(t.stock) == 0 {
		return
	}
	adjusted := &models.InventoryAdjustedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeInventoryAdjusted,
			Timestamp: now,
		},
		OrderID:  t.order.ID,
		Kind:     t.kind,
		Products: t.stock,
	}
	if err := r.events.PublishInventoryAdjusted(ctx, adjusted); err != nil {
		r.logger.Error("Failed to publish InventoryAdjusted event",
			zap.Int64("order_id", t.order.ID), zap.Error(err))
	}
}
