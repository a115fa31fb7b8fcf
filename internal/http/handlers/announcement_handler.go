// Announcement and presence HTTP handlers.
//
// This file exposes REST endpoints for the announcement feed and the seller's
// live-location slot:
//   - POST   /announcements                   (seller posts to the feed)
//   - GET    /announcements/my-announcements  (feed for the caller's role)
//   - POST   /milkman/track                   (publish live coordinates)
//   - DELETE /milkman/track                   (stop broadcasting)
//
// The feed list supports weak ETags so polling dashboards get 304s while
// nothing changed. Each returned announcement carries a derived `link` field,
// the first URL of the message (the maps link for the live slot).
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/aroraks/milkman-backend/internal/domain"
	"github.com/aroraks/milkman-backend/internal/http/middleware"
	"github.com/aroraks/milkman-backend/internal/repo"
	"github.com/aroraks/milkman-backend/internal/services"
	"github.com/aroraks/milkman-backend/internal/utils"
)

//
// DTOs
//

// PostAnnouncementRequest is the JSON payload for posting to the feed.
type PostAnnouncementRequest struct {
	// Title of the announcement (1–255 chars after trimming).
	Title string `json:"title" binding:"required" example:"Holiday schedule"`
	// Message body; URLs inside are surfaced via the derived link field.
	Message string `json:"message" binding:"required" example:"No delivery on Jan 26."`
}

// TrackRequest is the JSON payload for publishing live coordinates.
type TrackRequest struct {
	Latitude  float64 `json:"latitude" example:"12.9716"`
	Longitude float64 `json:"longitude" example:"77.5946"`
}

// AnnouncementView is an announcement plus its derived first-URL link.
type AnnouncementView struct {
	domain.Announcement
	// Link is the first URL found in the message, if any.
	Link string `json:"link,omitempty"`
}

// FeedResponse wraps the feed with the seller's presence state.
type FeedResponse struct {
	Announcements []AnnouncementView `json:"announcements"`
	// Live reports whether the seller currently broadcasts a location.
	Live bool `json:"live"`
	// LiveUpdatedAt is the last location update time when live.
	LiveUpdatedAt *time.Time `json:"live_updated_at,omitempty"`
}

// feedDB exposes the DB handle when the feed service is the concrete
// implementation. Used for best-effort ETag stats.
func (h *Handlers) feedDB() *gorm.DB {
	if svc, ok := h.feedSvc.(*services.FeedService); ok {
		return svc.DB
	}
	return nil
}

// toViews maps announcements to their transport shape with derived links.
func toViews(items []domain.Announcement) []AnnouncementView {
	out := make([]AnnouncementView, 0, len(items))
	for _, a := range items {
		out = append(out, AnnouncementView{
			Announcement: a,
			Link:         services.FirstURL(a.Message),
		})
	}
	return out
}

//
// Handlers
//

// PostAnnouncement godoc
// @ID          postAnnouncement
// @Summary     Post an announcement
// @Description Appends a freeform announcement to the calling seller's feed.
// @Tags        Announcements
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID    header  string  false "User ID (demo header)"  example(milk123)
// @Param       X-User-Role  header  string  false "Role (demo header)"     example(milkman)
// @Param       body         body    handlers.PostAnnouncementRequest  true  "Announcement payload"
//
// @Success     201  {object}  domain.Announcement
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /announcements [post]
func (h *Handlers) PostAnnouncement(c *gin.Context) {
	var req PostAnnouncementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "title and message required")
		return
	}

	a, err := h.feedSvc.Post(c.Request.Context(), userID(c), req.Title, req.Message)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmptyTitle), errors.Is(err, services.ErrEmptyMessage):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusCreated, a)
}

// MyAnnouncements godoc
// @ID          myAnnouncements
// @Summary     List the feed for the caller
// @Description Returns the feed the caller can see: their own feed for sellers, their seller's feed for customers. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Announcements
// @Produce     json
//
// @Param       X-User-ID      header  string  false "User ID (demo header)"
// @Param       X-User-Role    header  string  false "Role (demo header)"
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       limit          query   int     false "Max announcements returned"  minimum(1) maximum(200) default(50)
//
// @Success     200  {object}  handlers.FeedResponse
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string "Not Modified"
// @Failure     404  {object}  handlers.ErrorResponse  "Customer not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /announcements/my-announcements [get]
func (h *Handlers) MyAnnouncements(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)
	isSeller := middleware.RoleFromCtx(c) == middleware.RoleMilkman

	// Resolve whose feed the caller sees.
	sellerID := uid
	db := h.feedDB()
	if !isSeller && db != nil {
		if cust, err := repo.GetCustomer(ctx, db, uid); err == nil {
			sellerID = cust.MilkmanID
		}
	}

	// ETag pre-check (best effort).
	if db != nil {
		count, maxTS, err := repo.AnnouncementsStats(ctx, db, sellerID)
		if err == nil {
			// Nanosecond precision: two live-location updates inside the
			// same second must not collapse to one ETag.
			var ts int64
			if maxTS != nil {
				ts = maxTS.UnixNano()
			}
			etag := fmt.Sprintf(`W/"feed:%s:%d:%d"`, sellerID, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	var items []domain.Announcement
	var err error
	if isSeller {
		items, err = h.feedSvc.ListForMilkman(ctx, uid)
	} else {
		items, err = h.feedSvc.ListForCustomer(ctx, uid)
	}
	if err != nil {
		if errors.Is(err, services.ErrCustomerNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	// Bound the payload for polling clients; the feed is newest first.
	limit := utils.AtoiDefault(c.Query("limit"), 50)
	if limit < 1 {
		limit = 1
	}
	if limit > 200 {
		limit = 200
	}
	if len(items) > limit {
		items = items[:limit]
	}

	resp := FeedResponse{Announcements: toViews(items)}
	if live, ts, err := h.presenceSvc.IsLive(ctx, sellerID); err == nil && live {
		resp.Live = true
		resp.LiveUpdatedAt = &ts
	}
	ok(c, http.StatusOK, resp)
}

// Track godoc
// @ID          trackLocation
// @Summary     Publish live location
// @Description Upserts the calling seller's single live-location slot with a maps link for the given coordinates. Last write wins.
// @Tags        Presence
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID    header  string  false "User ID (demo header)"  example(milk123)
// @Param       X-User-Role  header  string  false "Role (demo header)"     example(milkman)
// @Param       body         body    handlers.TrackRequest  true  "Coordinates"
//
// @Success     200  {object}  domain.Announcement
// @Failure     400  {object}  handlers.ErrorResponse  "Bad coordinates"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /milkman/track [post]
func (h *Handlers) Track(c *gin.Context) {
	var req TrackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if req.Latitude < -90 || req.Latitude > 90 || req.Longitude < -180 || req.Longitude > 180 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "coordinates out of range")
		return
	}

	a, err := h.presenceSvc.Publish(c.Request.Context(), userID(c), req.Latitude, req.Longitude)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, a)
}

// Untrack godoc
// @ID          untrackLocation
// @Summary     Stop broadcasting location
// @Description Removes the calling seller's live-location slot. Stopping when not live is a no-op.
// @Tags        Presence
// @Produce     json
//
// @Param       X-User-ID    header  string  false "User ID (demo header)"  example(milk123)
// @Param       X-User-Role  header  string  false "Role (demo header)"     example(milkman)
//
// @Success     204  {string}  string "No Content"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /milkman/track [delete]
func (h *Handlers) Untrack(c *gin.Context) {
	if err := h.presenceSvc.Stop(c.Request.Context(), userID(c)); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	noContent(c)
}
