// Package services – FeedService
//
// This file implements the announcement feed and the community-request
// mailbox. Announcements are an append-only channel from a seller to their
// customers (the live-location slot shares it, see PresenceService); community
// requests flow the other way, addressed through the seller's referral code.
package services

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"gorm.io/gorm"

	"github.com/aroraks/milkman-backend/internal/domain"
	"github.com/aroraks/milkman-backend/internal/repo"
)

// FeedService provides the announcement feed and the request mailbox.
type FeedService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB

	// TitleMaxLen caps stored titles by rune length; 0 uses the default.
	TitleMaxLen int
}

// NewFeedService constructs a FeedService with default title handling.
func NewFeedService(db *gorm.DB) *FeedService {
	return &FeedService{DB: db, TitleMaxLen: 255}
}

// Post appends a freeform announcement for the seller. Titles are trimmed
// and clipped; there is no dedup — the only overwrite rule in the feed is
// the live-location slot, which Post never touches (kind=general).
func (s *FeedService) Post(ctx context.Context, milkmanID, title, message string) (*domain.Announcement, error) {
	title = normalizeTitle(title)
	if title == "" {
		return nil, ErrEmptyTitle
	}
	if strings.TrimSpace(message) == "" {
		return nil, ErrEmptyMessage
	}
	return repo.CreateAnnouncement(ctx, s.DB, milkmanID, s.clip(title), message)
}

// ListForCustomer returns the announcements visible to a customer: their
// own seller's feed, newest first.
func (s *FeedService) ListForCustomer(ctx context.Context, customerID string) ([]domain.Announcement, error) {
	cust, err := repo.GetCustomer(ctx, s.DB, customerID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrCustomerNotFound
		}
		return nil, err
	}
	return repo.ListAnnouncements(ctx, s.DB, cust.MilkmanID)
}

// ListForMilkman returns the seller's own feed, newest first.
func (s *FeedService) ListForMilkman(ctx context.Context, milkmanID string) ([]domain.Announcement, error) {
	return repo.ListAnnouncements(ctx, s.DB, milkmanID)
}

// Send creates a community request from the customer to the seller resolved
// from the referral code. An unknown code is rejected; the message body is
// stored opaque.
func (s *FeedService) Send(ctx context.Context, customerID, code, title, message string) (*domain.CommunityRequest, error) {
	title = normalizeTitle(title)
	if title == "" {
		return nil, ErrEmptyTitle
	}
	if strings.TrimSpace(message) == "" {
		return nil, ErrEmptyMessage
	}
	seller, err := repo.GetMilkmanByReferralCode(ctx, s.DB, strings.TrimSpace(code))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUnknownReferralCode
		}
		return nil, err
	}
	return repo.CreateCommunityRequest(ctx, s.DB, customerID, seller.ID, s.clip(title), message)
}

// Requests returns the seller's mailbox, newest first.
func (s *FeedService) Requests(ctx context.Context, milkmanID string) ([]domain.CommunityRequest, error) {
	return repo.ListRequestsForMilkman(ctx, s.DB, milkmanID)
}

// MarkRead flips a request to read on behalf of its recipient. One-way and
// idempotent: re-reading is a no-op; a request addressed to someone else is
// not found.
func (s *FeedService) MarkRead(ctx context.Context, milkmanID, requestID string) error {
	if err := repo.MarkRequestRead(ctx, s.DB, requestID, milkmanID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrRequestNotFound
		}
		return err
	}
	return nil
}

// FirstURL extracts the first well-formed URL substring of a message, the
// one actionable link for presence display. The rest of the message is
// opaque content and is never parsed further.
func FirstURL(message string) string {
	return urlRE.FindString(message)
}

// urlRE matches http(s) URLs up to the first whitespace.
var urlRE = regexp.MustCompile(`https?://[^\s]+`)

// clip truncates a title to the configured maximum rune length.
func (s *FeedService) clip(title string) string {
	max := s.TitleMaxLen
	if max <= 0 {
		max = 255
	}
	r := []rune(title)
	if len(r) > max {
		return string(r[:max])
	}
	return title
}

// normalizeTitle trims whitespace and collapses runs of it to one space.
func normalizeTitle(s string) string {
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
}

// whitespaceRE collapses consecutive whitespace to a single space.
var whitespaceRE = regexp.MustCompile(`\s+`)
