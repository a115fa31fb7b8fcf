// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// customer→seller community-request mailbox.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aroraks/milkman-backend/internal/domain"
)

// CreateCommunityRequest inserts a mailbox entry addressed to the seller.
func CreateCommunityRequest(ctx context.Context, db *gorm.DB, customerID, milkmanID, title, message string) (*domain.CommunityRequest, error) {
	r := &domain.CommunityRequest{
		ID:         uuid.NewString(),
		CustomerID: customerID,
		MilkmanID:  milkmanID,
		Title:      title,
		Message:    message,
		CreatedAt:  time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(r).Error; err != nil {
		return nil, err
	}
	return r, nil
}

// ListRequestsForMilkman returns the seller's mailbox, newest first.
func ListRequestsForMilkman(ctx context.Context, db *gorm.DB, milkmanID string) ([]domain.CommunityRequest, error) {
	var out []domain.CommunityRequest
	err := db.WithContext(ctx).
		Where("milkman_id = ?", milkmanID).
		Order("created_at desc").
		Find(&out).Error
	return out, err
}

// GetCommunityRequest fetches a request by id scoped to its recipient, or
// ErrNotFound (also for requests addressed to a different seller).
func GetCommunityRequest(ctx context.Context, db *gorm.DB, id, milkmanID string) (*domain.CommunityRequest, error) {
	var r domain.CommunityRequest
	err := db.WithContext(ctx).
		Where("id = ? AND milkman_id = ?", id, milkmanID).
		First(&r).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// MarkRequestRead flips is_read to true for a request owned by the given
// recipient. The one-way transition makes repeated calls no-ops.
func MarkRequestRead(ctx context.Context, db *gorm.DB, id, milkmanID string) error {
	res := db.WithContext(ctx).
		Model(&domain.CommunityRequest{}).
		Where("id = ? AND milkman_id = ?", id, milkmanID).
		Update("is_read", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Distinguish "unknown/foreign request" from "already read".
		if _, err := GetCommunityRequest(ctx, db, id, milkmanID); err != nil {
			return ErrNotFound
		}
	}
	return nil
}
