// Settlement HTTP handlers.
//
// This file exposes REST endpoints for the two-phase payment handshake:
//   - POST /payments/orders  (freeze a batch into a payment order)
//   - POST /payments/verify  (validate the checkout callback, settle batch)
//
// Order creation honors the Idempotency-Key header: a retried POST with the
// same key returns the originally created order instead of freezing a second
// one. Replay detection is best effort and requires a concrete settlement
// service (for DB access); without it the endpoint still behaves correctly,
// it just cannot dedupe retries.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/aroraks/milkman-backend/internal/http/middleware"
	"github.com/aroraks/milkman-backend/internal/repo"
	"github.com/aroraks/milkman-backend/internal/services"
)

//
// DTOs
//

// CreateOrderRequest is the JSON payload for creating a payment order.
// Either party opens settlement: a customer names the seller via milkman_id,
// a seller names the payer via customer_id. The caller always supplies their
// own side implicitly.
type CreateOrderRequest struct {
	// MilkmanID identifies the seller being paid (customer-initiated orders).
	MilkmanID string `json:"milkman_id,omitempty" example:"milk123"`
	// CustomerID identifies the payer (seller-initiated orders).
	CustomerID string `json:"customer_id,omitempty" example:"cust123"`
	// PurchaseIDs is the batch of unpaid purchases to settle.
	PurchaseIDs []string `json:"purchase_ids" binding:"required" example:"a1,b2"`
}

// VerifyPaymentRequest is the JSON payload for the checkout callback.
type VerifyPaymentRequest struct {
	// PaymentID is our payment order id returned by CreateOrder.
	PaymentID string `json:"payment_id" binding:"required"`
	// GatewayOrderRef is the gateway's order reference.
	GatewayOrderRef string `json:"gateway_order_ref" binding:"required"`
	// GatewayPaymentRef is the gateway's payment reference.
	GatewayPaymentRef string `json:"gateway_payment_ref" binding:"required"`
	// Signature is the gateway's HMAC over order|payment refs.
	Signature string `json:"signature" binding:"required"`
}

// settlementDB exposes the DB handle when the settlement service is the
// concrete implementation. Used for best-effort idempotency persistence.
func (h *Handlers) settlementDB() *gorm.DB {
	if svc, ok := h.setSvc.(*services.SettlementService); ok {
		return svc.DB
	}
	return nil
}

//
// Handlers
//

// CreateOrder godoc
// @ID          createPaymentOrder
// @Summary     Create a payment order
// @Description Freezes a batch of unpaid purchases into a payment order and registers it with the seller's gateway account. Customers name the seller via milkman_id; sellers name the payer via customer_id. Honors Idempotency-Key for safe retries.
// @Tags        Payments
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  false "User ID (demo header)"  example(cust123)
// @Param       Idempotency-Key  header  string  false "Retry deduplication key"
// @Param       body             body    handlers.CreateOrderRequest  true  "Order payload"
//
// @Success     201  {object}  services.OrderResult
// @Success     200  {object}  services.OrderResult  "Idempotent replay"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Seller not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Batch already claimed"
// @Failure     502  {object}  handlers.ErrorResponse  "Gateway unavailable"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /payments/orders [post]
func (h *Handlers) CreateOrder(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)

	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	// Resolve the customer/seller pair from the caller's role: the caller is
	// always one side, the body names the other.
	custID, milkID := req.CustomerID, req.MilkmanID
	if middleware.RoleFromCtx(c) == middleware.RoleMilkman {
		milkID = uid
		if custID == "" {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "customer_id required")
			return
		}
	} else {
		custID = uid
		if milkID == "" {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "milkman_id required")
			return
		}
	}

	// Idempotent replay: return the order created by the first attempt.
	key, hasKey := middleware.GetIdempotencyKey(c)
	db := h.settlementDB()
	if hasKey && db != nil {
		if rec, err := repo.GetIdempotency(ctx, db, uid, key, time.Now().UTC()); err == nil {
			order, err := repo.GetPaymentOrder(ctx, db, rec.PaymentOrderID)
			if err == nil {
				res := &services.OrderResult{
					OrderID:    order.ID,
					Amount:     order.Amount,
					Currency:   order.Currency,
					GatewayRef: order.GatewayOrderRef,
				}
				if order.GatewayOrderRef != "" {
					if seller, err := repo.GetMilkman(ctx, db, order.MilkmanID); err == nil {
						res.KeyID = seller.GatewayKeyID
					}
				}
				ok(c, http.StatusOK, res)
				return
			}
		}
	}

	res, err := h.setSvc.CreateOrder(ctx, custID, milkID, req.PurchaseIDs)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmptyBatch), errors.Is(err, services.ErrBadBatch):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		case errors.Is(err, services.ErrMilkmanNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
		case errors.Is(err, services.ErrBatchClaimed):
			fail(c, http.StatusConflict, ErrCodeBatchClaimed, err.Error())
		case errors.Is(err, services.ErrGatewayUnavailable):
			fail(c, http.StatusBadGateway, ErrCodeGatewayUnavailable, services.ErrGatewayUnavailable.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		}
		return
	}

	// Record the key so a retry replays this order. Duplicate inserts mean a
	// concurrent retry won; both map to the same order either way.
	if hasKey && db != nil {
		if _, err := repo.CreateIdempotency(ctx, db, uid, key, res.OrderID, http.StatusCreated, h.IdempotencyTTL); err != nil && !errors.Is(err, repo.ErrDuplicate) {
			middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotency record not stored")
		}
	}

	ok(c, http.StatusCreated, res)
}

// PaymentHistory godoc
// @ID          paymentHistory
// @Summary     List payment orders for the caller
// @Description Returns the caller's payment orders, newest first: orders they pay as a customer, orders collecting for them as a seller.
// @Tags        Payments
// @Produce     json
//
// @Param       X-User-ID    header  string  false "User ID (demo header)"  example(cust123)
// @Param       X-User-Role  header  string  false "Role (demo header)"     example(customer)
//
// @Success     200  {array}   domain.PaymentOrder
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /payments/history [get]
func (h *Handlers) PaymentHistory(c *gin.Context) {
	asSeller := middleware.RoleFromCtx(c) == middleware.RoleMilkman
	out, err := h.setSvc.History(c.Request.Context(), userID(c), asSeller)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, out)
}

// VerifyPayment godoc
// @ID          verifyPayment
// @Summary     Verify a checkout callback
// @Description Validates the gateway references and signature for a payment order and, on success, marks the order verified and its batch paid atomically.
// @Tags        Payments
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(cust123)
// @Param       body       body    handlers.VerifyPaymentRequest  true  "Callback payload"
//
// @Success     200  {object}  services.VerifyResult
// @Failure     400  {object}  handlers.ErrorResponse  "Verification mismatch"
// @Failure     404  {object}  handlers.ErrorResponse  "Order not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Order already failed"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /payments/verify [post]
func (h *Handlers) VerifyPayment(c *gin.Context) {
	var req VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	res, err := h.setSvc.Verify(c.Request.Context(), req.PaymentID, req.GatewayPaymentRef, req.GatewayOrderRef, req.Signature)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrOrderNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
		case errors.Is(err, services.ErrVerificationMismatch):
			middleware.CountVerifyOutcome("mismatch")
			fail(c, http.StatusBadRequest, ErrCodeVerifyFailed, err.Error())
		case errors.Is(err, services.ErrOrderFailed):
			middleware.CountVerifyOutcome("failed")
			fail(c, http.StatusConflict, ErrCodeOrderFailed, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}

	if res.AlreadyVerified {
		middleware.CountVerifyOutcome("replay")
	} else {
		middleware.CountVerifyOutcome("verified")
	}
	ok(c, http.StatusOK, res)
}
