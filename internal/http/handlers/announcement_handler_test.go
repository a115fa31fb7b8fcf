package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/aroraks/milkman-backend/internal/http/middleware"
	"github.com/aroraks/milkman-backend/internal/services"
)

func feedHandlers(t *testing.T) (*Handlers, *services.FeedService, *services.PresenceService, string, string) {
	t.Helper()
	db := newHandlerDB(t)
	m, cust := seedHandlerPair(t, db, "40")
	feed := services.NewFeedService(db)
	presence := services.NewPresenceService(db)
	h := New(stubLedger{}, stubSettlement{}, presence, feed, stubProfile{})
	return h, feed, presence, m.ID, cust.ID
}

func TestPostAnnouncement_BadRequest_And_Success(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, _, _, sellerID, _ := feedHandlers(t)
	r := gin.New()
	r.POST("/announcements", h.PostAnnouncement)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/announcements", bytes.NewBufferString(`{"title":"x"}`))
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing message -> %d", w.Code)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/announcements", bytes.NewBufferString(`{"title":"Holiday","message":"No delivery."}`))
	req.Header.Set("X-User-ID", sellerID)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("post -> %d body=%s", w.Code, w.Body.String())
	}
}

func TestMyAnnouncements_ETag304_CustomerResolution_Live(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, feed, presence, sellerID, custID := feedHandlers(t)

	if _, err := feed.Post(context.Background(), sellerID, "Holiday", "No delivery."); err != nil {
		t.Fatalf("seed post: %v", err)
	}
	if _, err := presence.Publish(context.Background(), sellerID, 12.97, 77.59); err != nil {
		t.Fatalf("seed presence: %v", err)
	}

	r := gin.New()
	r.GET("/announcements/my-announcements", middleware.Auth(""), h.MyAnnouncements)

	// Customer sees their seller's feed, presence included.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/announcements/my-announcements", nil)
	req.Header.Set("X-User-ID", custID)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("list -> %d body=%s", w.Code, w.Body.String())
	}
	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatal("missing ETag header")
	}

	var resp FeedResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	// The live slot and the general post are both in the feed; the live slot
	// carries the maps link.
	if len(resp.Announcements) != 2 || !resp.Live || resp.LiveUpdatedAt == nil {
		t.Fatalf("unexpected feed: %+v", resp)
	}
	var foundLink bool
	for _, a := range resp.Announcements {
		if a.Link != "" {
			foundLink = true
		}
	}
	if !foundLink {
		t.Fatal("live slot link missing")
	}

	// 304 path.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/announcements/my-announcements", nil)
	req.Header.Set("X-User-ID", custID)
	req.Header.Set("If-None-Match", etag)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotModified {
		t.Fatalf("etag match -> %d, want 304", w.Code)
	}

	// Posting again invalidates the ETag.
	if _, err := feed.Post(context.Background(), sellerID, "Price change", "From Monday."); err != nil {
		t.Fatalf("second post: %v", err)
	}
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/announcements/my-announcements", nil)
	req.Header.Set("X-User-ID", custID)
	req.Header.Set("If-None-Match", etag)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("stale etag -> %d, want 200", w.Code)
	}
}

func TestMyAnnouncements_ETagChangesOnRapidLocationUpdates(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, _, presence, sellerID, custID := feedHandlers(t)

	r := gin.New()
	r.GET("/announcements/my-announcements", middleware.Auth(""), h.MyAnnouncements)

	get := func(inm string) (*httptest.ResponseRecorder, string) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/announcements/my-announcements", nil)
		req.Header.Set("X-User-ID", custID)
		if inm != "" {
			req.Header.Set("If-None-Match", inm)
		}
		r.ServeHTTP(w, req)
		return w, w.Header().Get("ETag")
	}

	if _, err := presence.Publish(context.Background(), sellerID, 12.97, 77.59); err != nil {
		t.Fatalf("publish: %v", err)
	}
	w, etag1 := get("")
	if w.Code != http.StatusOK || etag1 == "" {
		t.Fatalf("first list -> %d etag=%q", w.Code, etag1)
	}

	// A second update lands within the same wall-clock second and reuses the
	// slot row, so the count is unchanged; only the timestamp moves. The poll
	// must still see fresh data, not a 304.
	if _, err := presence.Publish(context.Background(), sellerID, 12.98, 77.60); err != nil {
		t.Fatalf("second publish: %v", err)
	}
	w, etag2 := get(etag1)
	if w.Code != http.StatusOK {
		t.Fatalf("rapid update -> %d, want 200", w.Code)
	}
	if etag2 == etag1 {
		t.Fatalf("ETag did not move: %q", etag2)
	}
}

func TestMyAnnouncements_SellerView_And_LimitClamp(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, feed, _, sellerID, _ := feedHandlers(t)

	for i := 0; i < 3; i++ {
		if _, err := feed.Post(context.Background(), sellerID, fmt.Sprintf("post %d", i), "body"); err != nil {
			t.Fatalf("seed post: %v", err)
		}
	}

	r := gin.New()
	r.GET("/announcements/my-announcements", middleware.Auth(""), h.MyAnnouncements)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/announcements/my-announcements?limit=2", nil)
	req.Header.Set("X-User-ID", sellerID)
	req.Header.Set("X-User-Role", middleware.RoleMilkman)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("seller list -> %d", w.Code)
	}
	var resp FeedResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(resp.Announcements) != 2 {
		t.Fatalf("limit not applied: %d items", len(resp.Announcements))
	}
}

func TestTrack_Validation_And_Untrack(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, _, presence, sellerID, _ := feedHandlers(t)

	r := gin.New()
	r.POST("/milkman/track", h.Track)
	r.DELETE("/milkman/track", h.Untrack)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/milkman/track", bytes.NewBufferString(`{"latitude":91,"longitude":0}`))
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("out-of-range -> %d", w.Code)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/milkman/track", bytes.NewBufferString(`{"latitude":12.97,"longitude":77.59}`))
	req.Header.Set("X-User-ID", sellerID)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("track -> %d body=%s", w.Code, w.Body.String())
	}
	if live, _, _ := presence.IsLive(context.Background(), sellerID); !live {
		t.Fatal("seller should be live after track")
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodDelete, "/milkman/track", nil)
	req.Header.Set("X-User-ID", sellerID)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("untrack -> %d", w.Code)
	}
	if live, _, _ := presence.IsLive(context.Background(), sellerID); live {
		t.Fatal("seller should be idle after untrack")
	}
}
