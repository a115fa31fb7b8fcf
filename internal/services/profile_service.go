// Package services – ProfileService
//
// This file implements seller profile maintenance: the configured price per
// litre (the value the ledger snapshots on each delivery) and the per-tenant
// payment details, i.e. the seller's own gateway key pair plus out-of-band
// contacts (UPI id, wallet number) shown to customers of sellers without
// gateway credentials.
package services

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/aroraks/milkman-backend/internal/domain"
	"github.com/aroraks/milkman-backend/internal/repo"
)

// ProfileService maintains seller profile fields.
type ProfileService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
}

// NewProfileService constructs a ProfileService.
func NewProfileService(db *gorm.DB) *ProfileService {
	return &ProfileService{DB: db}
}

// Get returns the seller's profile.
func (s *ProfileService) Get(ctx context.Context, milkmanID string) (*domain.Milkman, error) {
	m, err := repo.GetMilkman(ctx, s.DB, milkmanID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrMilkmanNotFound
		}
		return nil, err
	}
	return m, nil
}

// SetPrice updates the seller's configured price per litre. Only future
// deliveries see the new value; recorded purchases keep their snapshots.
func (s *ProfileService) SetPrice(ctx context.Context, milkmanID string, price decimal.Decimal) error {
	if price.Sign() <= 0 {
		return ErrInvalidPrice
	}
	if err := repo.UpdateMilkmanPrice(ctx, s.DB, milkmanID, price); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrMilkmanNotFound
		}
		return err
	}
	return nil
}

// PaymentDetails carries the seller's gateway credentials and out-of-band
// payment contacts. Nil fields are left unchanged; whitespace-only values
// clear the stored field.
type PaymentDetails struct {
	GatewayKeyID     *string
	GatewayKeySecret *string
	UPIID            *string
	Paytm            *string
	Gpay             *string
	PhonePe          *string
}

// SavePaymentDetails persists the provided payment detail fields.
func (s *ProfileService) SavePaymentDetails(ctx context.Context, milkmanID string, d PaymentDetails) error {
	fields := map[string]interface{}{}
	put := func(col string, v *string) {
		if v != nil {
			fields[col] = strings.TrimSpace(*v)
		}
	}
	put("gateway_key_id", d.GatewayKeyID)
	put("gateway_key_secret", d.GatewayKeySecret)
	put("upi_id", d.UPIID)
	put("paytm_contact", d.Paytm)
	put("gpay_contact", d.Gpay)
	put("phone_pe_contact", d.PhonePe)
	if len(fields) == 0 {
		return nil
	}
	if err := repo.UpdateMilkmanPaymentDetails(ctx, s.DB, milkmanID, fields); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrMilkmanNotFound
		}
		return err
	}
	return nil
}
