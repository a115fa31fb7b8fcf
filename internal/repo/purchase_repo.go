// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the purchase
// ledger.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition. Due-date derivation, classification and
// aggregation rules live in services.LedgerService.
//
// Error semantics:
//   - When a row is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors the raw gorm error is propagated.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/aroraks/milkman-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist. It aliases
// gorm.ErrRecordNotFound for convenience and consistency across the service
// layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreatePurchase inserts a fully derived purchase row. The caller (ledger
// service) is responsible for snapshots and derived fields; this function
// only persists.
func CreatePurchase(ctx context.Context, db *gorm.DB, p *domain.Purchase) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(p).Error
}

// ListPurchases returns all purchases of a customer, newest delivery first.
func ListPurchases(ctx context.Context, db *gorm.DB, customerID string) ([]domain.Purchase, error) {
	var out []domain.Purchase
	err := db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("date desc, created_at desc").
		Find(&out).Error
	return out, err
}

// ListUnpaidByCustomer returns the customer's unpaid purchases, oldest first
// (settlement batches are naturally built oldest-debt-first).
func ListUnpaidByCustomer(ctx context.Context, db *gorm.DB, customerID string) ([]domain.Purchase, error) {
	var out []domain.Purchase
	err := db.WithContext(ctx).
		Where("customer_id = ? AND is_paid = ?", customerID, false).
		Order("date asc").
		Find(&out).Error
	return out, err
}

// ListUnpaidByMilkman returns every unpaid purchase across all of a seller's
// customers. Used by the read-time overdue/running classification.
func ListUnpaidByMilkman(ctx context.Context, db *gorm.DB, milkmanID string) ([]domain.Purchase, error) {
	var out []domain.Purchase
	err := db.WithContext(ctx).
		Where("milkman_id = ? AND is_paid = ?", milkmanID, false).
		Order("date asc").
		Find(&out).Error
	return out, err
}

// GetPurchasesByIDs loads the given purchases, constrained to one
// customer/seller pair. Missing ids simply produce a shorter result; the
// caller compares lengths to detect bad batches.
func GetPurchasesByIDs(ctx context.Context, db *gorm.DB, ids []string, customerID, milkmanID string) ([]domain.Purchase, error) {
	var out []domain.Purchase
	err := db.WithContext(ctx).
		Where("id IN ? AND customer_id = ? AND milkman_id = ?", ids, customerID, milkmanID).
		Find(&out).Error
	return out, err
}

// MarkPurchasesPaid flips is_paid false→true for the given ids and returns
// how many rows actually transitioned. The WHERE clause makes the update a
// compare-and-swap: already-paid rows are untouched, so re-marking is a
// no-op rather than an error and concurrent settlements cannot double-apply.
func MarkPurchasesPaid(ctx context.Context, db *gorm.DB, ids []string) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Purchase{}).
		Where("id IN ? AND is_paid = ?", ids, false).
		Update("is_paid", true)
	return res.RowsAffected, res.Error
}

// CountPurchasesInOpenOrders reports how many of the given purchases are
// already referenced by a payment order that is not failed. A non-zero count
// means the batch overlaps a settlement attempt that may still verify.
func CountPurchasesInOpenOrders(ctx context.Context, db *gorm.DB, ids []string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Table("payment_order_purchases AS pop").
		Joins("JOIN payment_orders po ON po.id = pop.payment_order_id").
		Where("pop.purchase_id IN ? AND po.status <> ?", ids, domain.OrderStatusFailed).
		Count(&n).Error
	return n, err
}

// GetPurchase fetches a single purchase by id, or ErrNotFound.
func GetPurchase(ctx context.Context, db *gorm.DB, id string) (*domain.Purchase, error) {
	var p domain.Purchase
	err := db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}
