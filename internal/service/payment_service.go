package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bridal-order-service/internal/models"
	"bridal-order-service/internal/momo"
	"bridal-order-service/internal/store"
	"bridal-order-service/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// PaymentGateway is the MoMo surface the payment flow needs.
type PaymentGateway interface {
	CreatePayment(ctx context.Context, req momo.PaymentRequest) (*momo.CreateResponse, error)
	VerifyIPN(p momo.IPNPayload) error
}

// CallbackDeduper remembers callbacks that were already applied.
type CallbackDeduper interface {
	CheckIdempotencyKey(ctx context.Context, key string) (bool, error)
	SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// IPNOutcome describes what an accepted callback did.
type IPNOutcome string

const (
	IPNOutcomeProcessed     IPNOutcome = "PROCESSED"
	IPNOutcomePaymentFailed IPNOutcome = "PAYMENT_FAILED"
	IPNOutcomeDuplicate     IPNOutcome = "DUPLICATE"
	IPNOutcomeRejected      IPNOutcome = "REJECTED"
)

// PaymentService starts MoMo payments and applies their callbacks
type PaymentService struct {
	db         store.Database
	reconciler *Reconciler
	gateway    PaymentGateway
	dedupe     CallbackDeduper
	events     EventPublisher
	dedupeTTL  time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

// NewPaymentService creates a new payment service. gateway nil disables
// payments; dedupe and events may be nil.
func NewPaymentService(
	db store.Database,
	reconciler *Reconciler,
	gateway PaymentGateway,
	dedupe CallbackDeduper,
	events EventPublisher,
	dedupeTTL time.Duration,
) *PaymentService {
	return &PaymentService{
		db:         db,
		reconciler: reconciler,
		gateway:    gateway,
		dedupe:     dedupe,
		events:     events,
		dedupeTTL:  dedupeTTL,
		now:        time.Now,
		logger:     util.GetLogger(),
	}
}

// Enabled reports whether a gateway is configured.
func (ps *PaymentService) Enabled() bool {
	return ps.gateway != nil
}

// StartPaymentResponse is what the payer needs to complete payment
type StartPaymentResponse struct {
	OrderID          int64  `json:"order_id"`
	PaymentID        int64  `json:"payment_id"`
	ProviderOrderRef string `json:"provider_order_ref"`
	Amount           int64  `json:"amount"`
	PayURL           string `json:"pay_url"`
	Deeplink         string `json:"deeplink,omitempty"`
	QRCodeURL        string `json:"qr_code_url,omitempty"`
	ResultCode       int    `json:"result_code"`
}

// StartPayment opens a MoMo payment for a PENDING order. Every attempt gets
// its own gateway order reference. A gateway failure leaves the order PENDING.
func (ps *PaymentService) StartPayment(ctx context.Context, orderID int64) (*StartPaymentResponse, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.StartPayment", attribute.Int64("order.id", orderID))
	defer span.End()

	if ps.gateway == nil {
		return nil, ErrPaymentsDisabled
	}

	order, err := ps.db.GetOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: order %d", ErrNotFound, orderID)
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if order.Status != models.OrderStatusPending {
		return nil, fmt.Errorf("%w: order %d is %s, payment requires %s",
			ErrInvalidTransition, orderID, order.Status, models.OrderStatusPending)
	}

	payment := &models.Payment{
		OrderID:          order.ID,
		Provider:         models.PaymentProviderMoMo,
		RequestID:        uuid.New().String(),
		ProviderOrderRef: momo.OrderRef(order.ID, ps.now().UnixMilli()),
		Status:           models.PaymentStatusPending,
		Amount:           order.Total,
	}
	if err := ps.db.CreatePayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	ps.logger.Info("Starting MoMo payment",
		zap.Int64("order_id", order.ID),
		zap.String("momo_order_id", payment.ProviderOrderRef),
		zap.Int64("amount", payment.Amount))

	resp, err := ps.gateway.CreatePayment(ctx, momo.PaymentRequest{
		OrderRef:  payment.ProviderOrderRef,
		RequestID: payment.RequestID,
		Amount:    payment.Amount,
		OrderInfo: fmt.Sprintf("Thanh toán đơn hàng #%d", order.ID),
	})
	if err != nil {
		util.RecordError(span, err)
		util.PaymentRequestsTotal.WithLabelValues("failure").Inc()
		if updateErr := ps.db.UpdatePaymentStatus(ctx, payment.ID, models.PaymentStatusFailed, ""); updateErr != nil {
			ps.logger.Error("Failed to mark payment failed",
				zap.Int64("payment_id", payment.ID), zap.Error(updateErr))
		}
		return nil, fmt.Errorf("%w: %w", ErrGatewayUnavailable, err)
	}

	util.PaymentRequestsTotal.WithLabelValues("success").Inc()

	return &StartPaymentResponse{
		OrderID:          order.ID,
		PaymentID:        payment.ID,
		ProviderOrderRef: payment.ProviderOrderRef,
		Amount:           payment.Amount,
		PayURL:           resp.PayURL,
		Deeplink:         resp.Deeplink,
		QRCodeURL:        resp.QRCodeURL,
		ResultCode:       resp.ResultCode,
	}, nil
}

// HandleIPN applies a MoMo payment notification. A callback that was already
// applied returns ErrDuplicateCallback, which callers acknowledge like success.
// Signature and amount failures are rejected before anything is written.
func (ps *PaymentService) HandleIPN(ctx context.Context, p momo.IPNPayload) (IPNOutcome, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.HandleIPN",
		attribute.String("momo.order_id", p.OrderID),
		attribute.Int64("momo.trans_id", p.TransID),
		attribute.Int("momo.result_code", p.ResultCode))
	defer span.End()

	if ps.gateway == nil {
		return IPNOutcomeRejected, ErrPaymentsDisabled
	}

	if err := ps.gateway.VerifyIPN(p); err != nil {
		util.RecordError(span, err)
		util.PaymentCallbacksTotal.WithLabelValues("signature_mismatch").Inc()
		ps.logger.Warn("Rejected MoMo callback",
			zap.String("event", "security.signature_mismatch"),
			zap.String("momo_order_id", p.OrderID),
			zap.String("request_id", p.RequestID))
		return IPNOutcomeRejected, err
	}

	dedupeKey := fmt.Sprintf("momo:ipn:%s:%d", p.OrderID, p.TransID)
	if ps.seen(ctx, dedupeKey) {
		util.PaymentCallbacksTotal.WithLabelValues("duplicate").Inc()
		return IPNOutcomeDuplicate, fmt.Errorf("%w: %s", ErrDuplicateCallback, dedupeKey)
	}

	orderID, err := momo.ParseOrderRef(p.OrderID)
	if err != nil {
		util.PaymentCallbacksTotal.WithLabelValues("invalid").Inc()
		return IPNOutcomeRejected, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	var (
		outcome IPNOutcome
		applied *transition
	)
	err = ps.db.RunInTx(ctx, func(ctx context.Context, repos store.Repositories) error {
		outcome, applied = "", nil

		order, err := repos.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if p.Amount != order.Total {
			return fmt.Errorf("%w: callback %d, order %d total %d", ErrAmountMismatch, p.Amount, order.ID, order.Total)
		}

		payment, err := repos.GetPaymentByProviderRef(ctx, p.OrderID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("failed to get payment: %w", err)
		}
		if payment != nil && payment.Status == models.PaymentStatusSuccess {
			outcome = IPNOutcomeDuplicate
			return nil
		}

		txID := fmt.Sprintf("%d", p.TransID)
		if !p.Succeeded() {
			outcome = IPNOutcomePaymentFailed
			if payment != nil && payment.Status == models.PaymentStatusPending {
				return repos.UpdatePaymentStatus(ctx, payment.ID, models.PaymentStatusFailed, txID)
			}
			return nil
		}

		t, err := ps.reconciler.transitionTx(ctx, repos, orderID, models.OrderStatusProcessing)
		switch {
		case errors.Is(err, ErrInvalidTransition):
			// Already past PENDING; the money is still recorded against the attempt.
			outcome = IPNOutcomeDuplicate
			if order.Status == models.OrderStatusCancelled {
				ps.logger.Warn("Payment received for cancelled order",
					zap.Int64("order_id", order.ID),
					zap.String("trans_id", txID))
			}
		case err != nil:
			return err
		default:
			outcome = IPNOutcomeProcessed
			applied = t
		}

		if payment == nil {
			ps.logger.Warn("No payment attempt recorded for callback",
				zap.String("momo_order_id", p.OrderID))
			return nil
		}
		return repos.UpdatePaymentStatus(ctx, payment.ID, models.PaymentStatusSuccess, txID)
	})
	if err != nil {
		err = classifyTxError(err)
		util.RecordError(span, err)
		switch {
		case errors.Is(err, ErrAmountMismatch):
			util.PaymentCallbacksTotal.WithLabelValues("amount_mismatch").Inc()
			ps.logger.Warn("Rejected MoMo callback",
				zap.String("event", "security.amount_mismatch"),
				zap.Int64("order_id", orderID),
				zap.Int64("amount", p.Amount))
		case errors.Is(err, ErrNotFound):
			util.PaymentCallbacksTotal.WithLabelValues("not_found").Inc()
		default:
			util.PaymentCallbacksTotal.WithLabelValues("error").Inc()
			ps.logger.Error("Failed to apply MoMo callback",
				zap.Int64("order_id", orderID), zap.Error(err))
		}
		return IPNOutcomeRejected, err
	}

	ps.remember(ctx, dedupeKey)
	util.PaymentCallbacksTotal.WithLabelValues(string(outcome)).Inc()

	switch outcome {
	case IPNOutcomeDuplicate:
		return outcome, fmt.Errorf("%w: order %d", ErrDuplicateCallback, orderID)
	case IPNOutcomeProcessed:
		ps.reconciler.committed(ctx, applied)
		ps.publishConfirmed(ctx, orderID, p)
	case IPNOutcomePaymentFailed:
		ps.logger.Info("MoMo reported unsuccessful payment",
			zap.Int64("order_id", orderID),
			zap.Int("result_code", p.ResultCode),
			zap.String("message", p.Message))
	}
	return outcome, nil
}

// seen reports whether key was recorded. Cache errors fall through to the
// transactional checks.
func (ps *PaymentService) seen(ctx context.Context, key string) bool {
	if ps.dedupe == nil {
		return false
	}
	ok, err := ps.dedupe.CheckIdempotencyKey(ctx, key)
	if err != nil {
		ps.logger.Warn("Callback dedupe lookup failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return ok
}

func (ps *PaymentService) remember(ctx context.Context, key string) {
	if ps.dedupe == nil {
		return
	}
	if err := ps.dedupe.SetIdempotencyKey(ctx, key, ps.now().Unix(), ps.dedupeTTL); err != nil {
		ps.logger.Warn("Failed to record callback", zap.String("key", key), zap.Error(err))
	}
}

func (ps *PaymentService) publishConfirmed(ctx context.Context, orderID int64, p momo.IPNPayload) {
	if ps.events == nil {
		return
	}
	event := &models.PaymentConfirmedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypePaymentConfirmed,
			Timestamp: ps.now(),
		},
		OrderID: orderID,
		Amount:  p.Amount,
		TxID:    fmt.Sprintf("%d", p.TransID),
	}
	if err := ps.events.PublishPaymentConfirmed(ctx, event); err != nil {
		ps.logger.Error("Failed to publish PaymentConfirmed event", zap.Error(err))
	}
}
