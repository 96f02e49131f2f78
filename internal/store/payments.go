package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"bridal-order-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// CreatePayment creates a new payment record
func (s *Store) CreatePayment(ctx context.Context, payment *models.Payment) error {
	query := `
		INSERT INTO payments (order_id, provider, request_id, provider_order_ref, status, provider_tx_id, amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`

	row := s.q.QueryRowxContext(ctx, query,
		payment.OrderID, payment.Provider, payment.RequestID, payment.ProviderOrderRef,
		payment.Status, payment.ProviderTxID, payment.Amount)
	if err := row.Scan(&payment.ID, &payment.CreatedAt, &payment.UpdatedAt); err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

// GetPaymentByProviderRef retrieves the payment attempt the gateway knows as ref
func (s *Store) GetPaymentByProviderRef(ctx context.Context, ref string) (*models.Payment, error) {
	var payment models.Payment
	err := sqlx.GetContext(ctx, s.q, &payment,
		"SELECT * FROM payments WHERE provider_order_ref = $1", ref)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: payment %s", ErrNotFound, ref)
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// UpdatePaymentStatus updates payment status
func (s *Store) UpdatePaymentStatus(ctx context.Context, paymentID int64, status models.PaymentStatus, providerTxID string) error {
	_, err := s.q.ExecContext(ctx,
		"UPDATE payments SET status = $1, provider_tx_id = $2, updated_at = NOW() WHERE id = $3",
		status, providerTxID, paymentID)
	return err
}
