// Community request HTTP handlers.
//
// This file exposes REST endpoints for the customer-to-seller mailbox:
//   - POST /community/request            (customer sends a request)
//   - GET  /community/requests           (seller mailbox, newest first)
//   - PUT  /community/requests/:id/read  (seller marks a request read)
//
// Requests address the seller through their referral code, so a customer can
// write to any seller whose code they hold, not only their own.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aroraks/milkman-backend/internal/services"
)

// SendRequestRequest is the JSON payload for sending a community request.
type SendRequestRequest struct {
	// ReferralCode identifies the addressed seller.
	ReferralCode string `json:"referral_code" binding:"required" example:"MILK-7F2A"`
	// Title of the request (1–255 chars after trimming).
	Title string `json:"title" binding:"required" example:"Extra litre tomorrow"`
	// Message body, stored opaque.
	Message string `json:"message" binding:"required"`
}

// SendRequest godoc
// @ID          sendCommunityRequest
// @Summary     Send a community request
// @Description Creates a request from the calling customer to the seller resolved from the referral code.
// @Tags        Community
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(cust123)
// @Param       body       body    handlers.SendRequestRequest  true  "Request payload"
//
// @Success     201  {object}  domain.CommunityRequest
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown referral code"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /community/request [post]
func (h *Handlers) SendRequest(c *gin.Context) {
	var req SendRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "referral_code, title and message required")
		return
	}

	r, err := h.feedSvc.Send(c.Request.Context(), userID(c), req.ReferralCode, req.Title, req.Message)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmptyTitle), errors.Is(err, services.ErrEmptyMessage):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		case errors.Is(err, services.ErrUnknownReferralCode):
			fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusCreated, r)
}

// ListRequests godoc
// @ID          listCommunityRequests
// @Summary     List the seller's mailbox
// @Description Returns the calling seller's community requests, newest first, with read flags.
// @Tags        Community
// @Produce     json
//
// @Param       X-User-ID    header  string  false "User ID (demo header)"  example(milk123)
// @Param       X-User-Role  header  string  false "Role (demo header)"     example(milkman)
//
// @Success     200  {array}   domain.CommunityRequest
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /community/requests [get]
func (h *Handlers) ListRequests(c *gin.Context) {
	out, err := h.feedSvc.Requests(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, out)
}

// MarkRequestRead godoc
// @ID          markRequestRead
// @Summary     Mark a request as read
// @Description Flips a community request addressed to the calling seller to read. Idempotent; re-reading is a no-op.
// @Tags        Community
// @Produce     json
//
// @Param       X-User-ID    header  string  false "User ID (demo header)"     example(milk123)
// @Param       X-User-Role  header  string  false "Role (demo header)"        example(milkman)
// @Param       id           path    string  true  "Request ID (UUID)"          format(uuid)
//
// @Success     204  {string}  string "No Content"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Request not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /community/requests/{id}/read [put]
func (h *Handlers) MarkRequestRead(c *gin.Context) {
	reqID := c.Param("id")
	if _, err := uuid.Parse(reqID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "request id must be a UUID")
		return
	}

	if err := h.feedSvc.MarkRead(c.Request.Context(), userID(c), reqID); err != nil {
		if errors.Is(err, services.ErrRequestNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	noContent(c)
}
