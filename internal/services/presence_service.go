// Package services – PresenceService
//
// This file implements live-presence propagation: a seller's device location
// stream is converted into the single live-location announcement that
// customers poll. Presence is advisory and best-effort — each update is
// dispatched independently, publish failures are swallowed (the next update
// self-heals), and out-of-order updates simply overwrite (last write wins).
// The announcement itself is the presence signal: a seller is "live" exactly
// while the slot exists.
package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/aroraks/milkman-backend/internal/domain"
	"github.com/aroraks/milkman-backend/internal/repo"
)

// LocationSample is one device reading.
type LocationSample struct {
	Latitude  float64
	Longitude float64
}

// LocationSource is the device boundary: a continuous, cancellable stream of
// coordinate samples behind a user-permission gate. Watch returns
// ErrLocationPermission when access is refused (reported once, non-fatal);
// the returned channel closes when ctx is cancelled.
type LocationSource interface {
	Watch(ctx context.Context) (<-chan LocationSample, error)
}

// PresenceService owns the seller's live-location slot.
type PresenceService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
}

// NewPresenceService constructs a PresenceService.
func NewPresenceService(db *gorm.DB) *PresenceService {
	return &PresenceService{DB: db}
}

// Publish upserts the seller's live-location slot with a maps link derived
// from the coordinates. The slot keeps its identity across updates;
// UpdatedAt carries the staleness signal shown to customers.
func (s *PresenceService) Publish(ctx context.Context, milkmanID string, lat, lng float64) (*domain.Announcement, error) {
	return repo.UpsertLiveLocation(ctx, s.DB, milkmanID, MapsURL(lat, lng))
}

// Stop removes the live slot, ending presence. Idempotent.
func (s *PresenceService) Stop(ctx context.Context, milkmanID string) error {
	return repo.DeleteLiveLocation(ctx, s.DB, milkmanID)
}

// IsLive reports whether the seller currently has a live slot and, when
// live, the time of the latest update.
func (s *PresenceService) IsLive(ctx context.Context, milkmanID string) (bool, time.Time, error) {
	a, err := repo.GetLiveLocation(ctx, s.DB, milkmanID)
	if err != nil {
		if err == repo.ErrNotFound {
			return false, time.Time{}, nil
		}
		return false, time.Time{}, err
	}
	ts := a.UpdatedAt
	if ts.IsZero() {
		ts = a.CreatedAt
	}
	return true, ts, nil
}

// MapsURL renders coordinates as the maps link embedded in the live slot's
// message. Customers open exactly this first URL of the message.
func MapsURL(lat, lng float64) string {
	return fmt.Sprintf("https://www.google.com/maps?q=%f,%f", lat, lng)
}

// Tracker runs the per-seller idle→tracking→idle presence state machine over
// a LocationSource. It is safe for concurrent use.
type Tracker struct {
	Presence  *PresenceService
	MilkmanID string
	Source    LocationSource

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Start subscribes to the location source and begins forwarding samples to
// the live slot. It returns ErrAlreadyTracking when tracking is active and
// ErrLocationPermission (unwrapped from the source, reported once) when the
// permission gate refuses; in both cases the state stays as it was.
func (t *Tracker) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return ErrAlreadyTracking
	}

	ctx, cancel := context.WithCancel(ctx)
	samples, err := t.Source.Watch(ctx)
	if err != nil {
		cancel()
		return err
	}

	done := make(chan struct{})
	t.cancel = cancel
	t.done = done

	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case sample, ok := <-samples:
				if !ok {
					return
				}
				// Best-effort: a failed publish self-heals on the next sample.
				if _, err := t.Presence.Publish(ctx, t.MilkmanID, sample.Latitude, sample.Longitude); err != nil {
					log.Debug().Err(err).Str("milkman_id", t.MilkmanID).Msg("live location publish failed")
				}
			}
		}
	}()
	return nil
}

// Stop cancels the device subscription, waits for the forwarding loop to
// drain, and removes the live slot. Stopping an idle tracker is a no-op.
func (t *Tracker) Stop(ctx context.Context) error {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return t.Presence.Stop(ctx, t.MilkmanID)
}

// Tracking reports whether the tracker is in the tracking state.
func (t *Tracker) Tracking() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}
