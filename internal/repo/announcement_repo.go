// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// announcement feed, including the single-slot live-location upsert.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aroraks/milkman-backend/internal/domain"
)

// CreateAnnouncement appends a general feed entry for the seller.
func CreateAnnouncement(ctx context.Context, db *gorm.DB, milkmanID, title, message string) (*domain.Announcement, error) {
	a := &domain.Announcement{
		ID:        uuid.NewString(),
		MilkmanID: milkmanID,
		Kind:      domain.AnnouncementKindGeneral,
		Title:     title,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(a).Error; err != nil {
		return nil, err
	}
	return a, nil
}

// UpsertLiveLocation writes the seller's single live-location slot: the
// existing row (keyed by milkman_id + kind) is updated in place, bumping
// UpdatedAt; when absent a new slot is created. Runs in a transaction so two
// racing updates cannot create two slots.
func UpsertLiveLocation(ctx context.Context, db *gorm.DB, milkmanID, message string) (*domain.Announcement, error) {
	var out *domain.Announcement
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var a domain.Announcement
		err := tx.Where("milkman_id = ? AND kind = ?", milkmanID, domain.AnnouncementKindLiveLocation).
			First(&a).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			a = domain.Announcement{
				ID:        uuid.NewString(),
				MilkmanID: milkmanID,
				Kind:      domain.AnnouncementKindLiveLocation,
				Title:     domain.LiveLocationTitle,
				Message:   message,
				CreatedAt: time.Now().UTC(),
			}
			if err := tx.Create(&a).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			// Last write wins; out-of-order updates simply overwrite.
			res := tx.Model(&domain.Announcement{}).
				Where("id = ?", a.ID).
				Updates(map[string]interface{}{
					"message":    message,
					"updated_at": time.Now().UTC(),
				})
			if res.Error != nil {
				return res.Error
			}
			a.Message = message
		}
		out = &a
		return nil
	})
	return out, err
}

// DeleteLiveLocation removes the seller's live-location slot. Deleting an
// absent slot is a no-op.
func DeleteLiveLocation(ctx context.Context, db *gorm.DB, milkmanID string) error {
	return db.WithContext(ctx).
		Where("milkman_id = ? AND kind = ?", milkmanID, domain.AnnouncementKindLiveLocation).
		Delete(&domain.Announcement{}).Error
}

// GetLiveLocation returns the seller's live slot, or ErrNotFound when the
// seller is not currently live.
func GetLiveLocation(ctx context.Context, db *gorm.DB, milkmanID string) (*domain.Announcement, error) {
	var a domain.Announcement
	err := db.WithContext(ctx).
		Where("milkman_id = ? AND kind = ?", milkmanID, domain.AnnouncementKindLiveLocation).
		First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// ListAnnouncements returns a seller's feed (live slot included), newest
// first by creation time.
func ListAnnouncements(ctx context.Context, db *gorm.DB, milkmanID string) ([]domain.Announcement, error) {
	var out []domain.Announcement
	err := db.WithContext(ctx).
		Where("milkman_id = ?", milkmanID).
		Order("created_at desc").
		Find(&out).Error
	return out, err
}

// AnnouncementsStats returns the row count and latest update time for a
// seller's feed. Handlers use it to build a weak ETag so polling customers
// get 304s while nothing changed.
func AnnouncementsStats(ctx context.Context, db *gorm.DB, milkmanID string) (int64, *time.Time, error) {
	var count int64
	if err := db.WithContext(ctx).
		Model(&domain.Announcement{}).
		Where("milkman_id = ?", milkmanID).
		Count(&count).Error; err != nil {
		return 0, nil, err
	}
	var maxTS *time.Time
	row := db.WithContext(ctx).
		Model(&domain.Announcement{}).
		Where("milkman_id = ?", milkmanID).
		Select("MAX(updated_at)").
		Row()
	if row != nil {
		var ts time.Time
		if err := row.Scan(&ts); err == nil && !ts.IsZero() {
			maxTS = &ts
		}
	}
	return count, maxTS, nil
}
