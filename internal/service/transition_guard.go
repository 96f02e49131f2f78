package service

import "bridal-order-service/internal/models"

// NextStatuses lists the statuses an order may move to from current.
// CANCELLED and RETURNED are terminal.
func NextStatuses(current models.OrderStatus) []models.OrderStatus {
	switch current {
	case models.OrderStatusPending:
		return []models.OrderStatus{models.OrderStatusProcessing, models.OrderStatusCancelled}
	case models.OrderStatusProcessing:
		return []models.OrderStatus{models.OrderStatusShipped, models.OrderStatusCancelled}
	case models.OrderStatusShipped:
		return []models.OrderStatus{models.OrderStatusDelivered, models.OrderStatusCancelled}
	case models.OrderStatusDelivered:
		return []models.OrderStatus{models.OrderStatusReturned}
	case models.OrderStatusCancelled, models.OrderStatusReturned:
		return nil
	default:
		return nil
	}
}

// CanTransition reports whether an order in current may move to requested.
func CanTransition(current, requested models.OrderStatus) bool {
	for _, next := range NextStatuses(current) {
		if next == requested {
			return true
		}
	}
	return false
}
