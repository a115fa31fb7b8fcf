// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for seller and
// customer profiles, including referral-code resolution and the per-tenant
// gateway credential record.
package repo

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/aroraks/milkman-backend/internal/domain"
)

// GetMilkman fetches a seller by id, or ErrNotFound.
func GetMilkman(ctx context.Context, db *gorm.DB, id string) (*domain.Milkman, error) {
	var m domain.Milkman
	err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// GetMilkmanByReferralCode resolves a human-shareable referral code to the
// seller that issued it, or ErrNotFound for an unknown code.
func GetMilkmanByReferralCode(ctx context.Context, db *gorm.DB, code string) (*domain.Milkman, error) {
	var m domain.Milkman
	err := db.WithContext(ctx).Where("referral_code = ?", code).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// GetCustomer fetches a buyer by id, or ErrNotFound.
func GetCustomer(ctx context.Context, db *gorm.DB, id string) (*domain.Customer, error) {
	var c domain.Customer
	err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// ListCustomersOfMilkman returns the seller's customers ordered by name.
func ListCustomersOfMilkman(ctx context.Context, db *gorm.DB, milkmanID string) ([]domain.Customer, error) {
	var out []domain.Customer
	err := db.WithContext(ctx).
		Where("milkman_id = ?", milkmanID).
		Order("name asc").
		Find(&out).Error
	return out, err
}

// UpdateMilkmanPrice sets the seller's currently configured price per litre.
// Existing purchases keep their snapshots.
func UpdateMilkmanPrice(ctx context.Context, db *gorm.DB, milkmanID string, price decimal.Decimal) error {
	res := db.WithContext(ctx).
		Model(&domain.Milkman{}).
		Where("id = ?", milkmanID).
		Update("price_per_litre", price)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateMilkmanPaymentDetails stores the seller's gateway credentials and
// out-of-band payment contacts. Empty strings clear a field.
func UpdateMilkmanPaymentDetails(ctx context.Context, db *gorm.DB, milkmanID string, fields map[string]interface{}) error {
	res := db.WithContext(ctx).
		Model(&domain.Milkman{}).
		Where("id = ?", milkmanID).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
