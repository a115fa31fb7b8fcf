// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for payment orders
// and their frozen purchase batches.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/aroraks/milkman-backend/internal/domain"
)

// CreatePaymentOrder inserts the order together with its batch association
// rows. GORM writes the many2many join table in the same statement scope, so
// callers wanting atomicity pass a transaction-bound handle.
func CreatePaymentOrder(ctx context.Context, db *gorm.DB, o *domain.PaymentOrder) error {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(o).Error
}

// GetPaymentOrder fetches an order with its purchase batch preloaded, or
// ErrNotFound.
func GetPaymentOrder(ctx context.Context, db *gorm.DB, id string) (*domain.PaymentOrder, error) {
	var o domain.PaymentOrder
	err := db.WithContext(ctx).
		Preload("Purchases").
		Where("id = ?", id).
		First(&o).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

// TransitionOrderStatus updates an order's status only when it currently has
// the expected one, returning whether this call won the transition. The CAS
// form is what guarantees at-most-one successful verification when two
// Verify calls race.
func TransitionOrderStatus(ctx context.Context, db *gorm.DB, id, from, to string) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.PaymentOrder{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// SetOrderPaymentRef records the gateway payment reference returned by the
// checkout callback.
func SetOrderPaymentRef(ctx context.Context, db *gorm.DB, id, paymentRef string) error {
	return db.WithContext(ctx).
		Model(&domain.PaymentOrder{}).
		Where("id = ?", id).
		Update("gateway_payment_ref", paymentRef).Error
}

// ListOrdersForMilkman returns a seller's payment orders, newest first.
func ListOrdersForMilkman(ctx context.Context, db *gorm.DB, milkmanID string) ([]domain.PaymentOrder, error) {
	var out []domain.PaymentOrder
	err := db.WithContext(ctx).
		Where("milkman_id = ?", milkmanID).
		Order("created_at desc").
		Find(&out).Error
	return out, err
}

// ListOrdersForCustomer returns a customer's payment orders, newest first.
func ListOrdersForCustomer(ctx context.Context, db *gorm.DB, customerID string) ([]domain.PaymentOrder, error) {
	var out []domain.PaymentOrder
	err := db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at desc").
		Find(&out).Error
	return out, err
}

// ListOpenOrdersClaiming returns the non-failed orders that reference any of
// the given purchases. Used by order creation to decide whether a claimed
// batch can be superseded.
func ListOpenOrdersClaiming(ctx context.Context, db *gorm.DB, purchaseIDs []string) ([]domain.PaymentOrder, error) {
	var out []domain.PaymentOrder
	err := db.WithContext(ctx).
		Distinct("payment_orders.*").
		Joins("JOIN payment_order_purchases pop ON pop.payment_order_id = payment_orders.id").
		Where("pop.purchase_id IN ? AND payment_orders.status <> ?", purchaseIDs, domain.OrderStatusFailed).
		Find(&out).Error
	return out, err
}
