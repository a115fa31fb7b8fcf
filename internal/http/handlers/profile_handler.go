// Seller profile HTTP handlers.
//
// This file exposes REST endpoints for seller profile maintenance:
//   - GET  /milkman/profile          (the seller's own record)
//   - POST /milkman/payment-details  (gateway credentials and contacts)
//   - PUT  /milkman/price            (configured price per litre)
//
// Gateway credentials are write-only over HTTP: they are accepted here and
// never serialized back out (the domain model strips them from JSON).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/aroraks/milkman-backend/internal/services"
)

// PaymentDetailsRequest is the JSON payload for saving payment details.
// Omitted fields are left unchanged; empty strings clear the stored value.
type PaymentDetailsRequest struct {
	GatewayKeyID     *string `json:"gateway_key_id,omitempty"`
	GatewayKeySecret *string `json:"gateway_key_secret,omitempty"`
	UPIID            *string `json:"upi_id,omitempty"`
	Paytm            *string `json:"paytm,omitempty"`
	Gpay             *string `json:"gpay,omitempty"`
	PhonePe          *string `json:"phonepe,omitempty"`
}

// UpdatePriceRequest is the JSON payload for configuring the price per litre.
type UpdatePriceRequest struct {
	// PricePerLitre accepts a JSON number or numeric string.
	PricePerLitre decimal.Decimal `json:"price_per_litre" example:"40"`
}

// MyProfile godoc
// @ID          myProfile
// @Summary     Get the seller's own profile
// @Description Returns the calling seller's record: price, referral code, and payment contacts. Gateway credentials are never serialized.
// @Tags        Profile
// @Produce     json
//
// @Param       X-User-ID    header  string  false "User ID (demo header)"  example(milk123)
// @Param       X-User-Role  header  string  false "Role (demo header)"     example(milkman)
//
// @Success     200  {object}  domain.Milkman
// @Failure     404  {object}  handlers.ErrorResponse  "Seller not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /milkman/profile [get]
func (h *Handlers) MyProfile(c *gin.Context) {
	m, err := h.profileSvc.Get(c.Request.Context(), userID(c))
	if err != nil {
		if errors.Is(err, services.ErrMilkmanNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, m)
}

// SavePaymentDetails godoc
// @ID          savePaymentDetails
// @Summary     Save payment details
// @Description Stores the calling seller's gateway key pair and out-of-band payment contacts. Omitted fields are unchanged.
// @Tags        Profile
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID    header  string  false "User ID (demo header)"  example(milk123)
// @Param       X-User-Role  header  string  false "Role (demo header)"     example(milkman)
// @Param       body         body    handlers.PaymentDetailsRequest  true  "Payment details"
//
// @Success     204  {string}  string "No Content"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Seller not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /milkman/payment-details [post]
func (h *Handlers) SavePaymentDetails(c *gin.Context) {
	var req PaymentDetailsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	err := h.profileSvc.SavePaymentDetails(c.Request.Context(), userID(c), services.PaymentDetails{
		GatewayKeyID:     req.GatewayKeyID,
		GatewayKeySecret: req.GatewayKeySecret,
		UPIID:            req.UPIID,
		Paytm:            req.Paytm,
		Gpay:             req.Gpay,
		PhonePe:          req.PhonePe,
	})
	if err != nil {
		if errors.Is(err, services.ErrMilkmanNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	noContent(c)
}

// UpdatePrice godoc
// @ID          updatePrice
// @Summary     Configure price per litre
// @Description Updates the calling seller's price per litre. Existing purchases keep their snapshots.
// @Tags        Profile
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID    header  string  false "User ID (demo header)"  example(milk123)
// @Param       X-User-Role  header  string  false "Role (demo header)"     example(milkman)
// @Param       body         body    handlers.UpdatePriceRequest  true  "New price"
//
// @Success     204  {string}  string "No Content"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Seller not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /milkman/price [put]
func (h *Handlers) UpdatePrice(c *gin.Context) {
	var req UpdatePriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	if err := h.profileSvc.SetPrice(c.Request.Context(), userID(c), req.PricePerLitre); err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidPrice):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		case errors.Is(err, services.ErrMilkmanNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	noContent(c)
}
