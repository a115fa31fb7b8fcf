// Purchase ledger HTTP handlers.
//
// This file exposes REST endpoints for the purchase ledger:
//   - POST /purchases                    (customer records a delivery)
//   - GET  /purchases/my-purchases       (customer ledger + unpaid total)
//   - GET  /purchases/milkman-customers  (seller rollup per customer)
//   - GET  /purchases/classify           (overdue/running split)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses. The caller's identity and role
// come from upstream middleware; handlers never re-authenticate.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/aroraks/milkman-backend/internal/domain"
	"github.com/aroraks/milkman-backend/internal/services"
)

//
// Service contracts (context-aware)
//

// LedgerService defines purchase ledger operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type LedgerService interface {
	// Record validates and persists one delivery for the customer.
	Record(ctx context.Context, customerID string, litres decimal.Decimal, date time.Time, frequencyDays int) (*domain.Purchase, error)
	// Aggregate returns the customer's purchases and unpaid total.
	Aggregate(ctx context.Context, customerID string) (*services.Aggregation, error)
	// Classify splits a seller's unpaid purchases into overdue and running.
	Classify(ctx context.Context, milkmanID string, asOf time.Time) (*services.Classification, error)
	// CustomersWithBalances returns the seller rollup per customer.
	CustomersWithBalances(ctx context.Context, milkmanID string) ([]services.CustomerBalance, error)
}

// SettlementService defines the two-phase payment handshake consumed by the
// payment endpoints.
type SettlementService interface {
	// CreateOrder freezes a batch of unpaid purchases into a payment order.
	CreateOrder(ctx context.Context, customerID, milkmanID string, purchaseIDs []string) (*services.OrderResult, error)
	// Verify validates a checkout callback and settles the batch.
	Verify(ctx context.Context, orderID, gatewayPaymentRef, gatewayOrderRef, signature string) (*services.VerifyResult, error)
	// History returns the party's payment orders, newest first.
	History(ctx context.Context, userID string, asSeller bool) ([]domain.PaymentOrder, error)
}

// PresenceService defines the seller live-location slot operations.
type PresenceService interface {
	// Publish upserts the live slot with the given coordinates.
	Publish(ctx context.Context, milkmanID string, lat, lng float64) (*domain.Announcement, error)
	// Stop removes the live slot.
	Stop(ctx context.Context, milkmanID string) error
	// IsLive reports the live slot's presence and last update time.
	IsLive(ctx context.Context, milkmanID string) (bool, time.Time, error)
}

// FeedService defines the announcement feed and community mailbox operations.
type FeedService interface {
	// Post appends a general announcement for the seller.
	Post(ctx context.Context, milkmanID, title, message string) (*domain.Announcement, error)
	// ListForCustomer returns the customer's seller feed, newest first.
	ListForCustomer(ctx context.Context, customerID string) ([]domain.Announcement, error)
	// ListForMilkman returns the seller's own feed, newest first.
	ListForMilkman(ctx context.Context, milkmanID string) ([]domain.Announcement, error)
	// Send creates a community request addressed via referral code.
	Send(ctx context.Context, customerID, code, title, message string) (*domain.CommunityRequest, error)
	// Requests returns the seller's mailbox, newest first.
	Requests(ctx context.Context, milkmanID string) ([]domain.CommunityRequest, error)
	// MarkRead flips a request to read for its recipient.
	MarkRead(ctx context.Context, milkmanID, requestID string) error
}

// ProfileService defines seller profile maintenance operations.
type ProfileService interface {
	// Get returns the seller's profile.
	Get(ctx context.Context, milkmanID string) (*domain.Milkman, error)
	// SetPrice updates the configured price per litre.
	SetPrice(ctx context.Context, milkmanID string, price decimal.Decimal) error
	// SavePaymentDetails persists gateway credentials and payment contacts.
	SavePaymentDetails(ctx context.Context, milkmanID string, d services.PaymentDetails) error
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for the ledger, settlement, presence, feed,
// and profile surfaces. It depends on abstract service interfaces to keep
// transport concerns separate from business logic.
type Handlers struct {
	ledgerSvc   LedgerService
	setSvc      SettlementService
	presenceSvc PresenceService
	feedSvc     FeedService
	profileSvc  ProfileService

	// IdempotencyTTL bounds replay detection for settlement POSTs.
	IdempotencyTTL time.Duration
}

// New constructs and returns a Handlers instance bound to the given services.
func New(ledger LedgerService, set SettlementService, presence PresenceService, feed FeedService, profile ProfileService) *Handlers {
	return &Handlers{
		ledgerSvc:      ledger,
		setSvc:         set,
		presenceSvc:    presence,
		feedSvc:        feed,
		profileSvc:     profile,
		IdempotencyTTL: 24 * time.Hour,
	}
}

// userID extracts the authenticated user id from Gin context (set by upstream
// middleware). If absent, it falls back to "X-User-ID" header (tests use it),
// and finally to "demo-user". It never touches c.Request if it's nil.
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return "demo-user"
}

//
// DTOs
//

// RecordPurchaseRequest is the JSON payload for recording a delivery.
type RecordPurchaseRequest struct {
	// Litres delivered; accepts JSON number or numeric string.
	Litres decimal.Decimal `json:"litres" example:"5"`
	// Date of delivery (RFC 3339 date, optional; defaults to today).
	Date string `json:"date,omitempty" example:"2024-01-01"`
	// FrequencyDays is the billing cycle length (15 or 30).
	FrequencyDays int `json:"frequency_days" example:"30"`
}

//
// Handlers
//

// RecordPurchase godoc
// @ID          recordPurchase
// @Summary     Record a delivery
// @Description Records one milk delivery for the calling customer, snapshotting the seller's current price.
// @Tags        Purchases
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(cust123)
// @Param       body       body    handlers.RecordPurchaseRequest  true  "Delivery payload"
//
// @Success     201  {object}  domain.Purchase
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Customer not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Seller has no price configured"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /purchases [post]
func (h *Handlers) RecordPurchase(c *gin.Context) {
	var req RecordPurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	var date time.Time
	if s := strings.TrimSpace(req.Date); s != "" {
		var err error
		date, err = time.Parse("2006-01-02", s)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "date must be YYYY-MM-DD")
			return
		}
	}

	p, err := h.ledgerSvc.Record(c.Request.Context(), userID(c), req.Litres, date, req.FrequencyDays)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidLitres), errors.Is(err, services.ErrInvalidFrequency):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		case errors.Is(err, services.ErrCustomerNotFound), errors.Is(err, services.ErrMilkmanNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
		case errors.Is(err, services.ErrNoPriceConfigured):
			fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusCreated, p)
}

// MyPurchases godoc
// @ID          myPurchases
// @Summary     List own purchases with unpaid total
// @Description Returns the calling customer's ledger, newest delivery first, plus the outstanding sum.
// @Tags        Purchases
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(cust123)
//
// @Success     200  {object}  services.Aggregation
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /purchases/my-purchases [get]
func (h *Handlers) MyPurchases(c *gin.Context) {
	agg, err := h.ledgerSvc.Aggregate(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, agg)
}

// MilkmanCustomers godoc
// @ID          milkmanCustomers
// @Summary     Per-customer balance rollup
// @Description Returns every customer of the calling seller with their purchases and outstanding total.
// @Tags        Purchases
// @Produce     json
//
// @Param       X-User-ID    header  string  false "User ID (demo header)"   example(milk123)
// @Param       X-User-Role  header  string  false "Role (demo header)"      example(milkman)
//
// @Success     200  {array}   services.CustomerBalance
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /purchases/milkman-customers [get]
func (h *Handlers) MilkmanCustomers(c *gin.Context) {
	out, err := h.ledgerSvc.CustomersWithBalances(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, out)
}

// ClassifyPurchases godoc
// @ID          classifyPurchases
// @Summary     Split unpaid purchases into overdue and running
// @Description Classifies the calling seller's unpaid purchases by due date relative to as_of (default: today). A purchase due exactly on as_of is still running.
// @Tags        Purchases
// @Produce     json
//
// @Param       X-User-ID    header  string  false "User ID (demo header)"   example(milk123)
// @Param       X-User-Role  header  string  false "Role (demo header)"      example(milkman)
// @Param       as_of        query   string  false "Reference date (YYYY-MM-DD)" example(2024-02-01)
//
// @Success     200  {object}  services.Classification
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /purchases/classify [get]
func (h *Handlers) ClassifyPurchases(c *gin.Context) {
	asOf := time.Now().UTC()
	if s := strings.TrimSpace(c.Query("as_of")); s != "" {
		var err error
		asOf, err = time.Parse("2006-01-02", s)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "as_of must be YYYY-MM-DD")
			return
		}
	}

	cls, err := h.ledgerSvc.Classify(c.Request.Context(), userID(c), asOf)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, cls)
}
