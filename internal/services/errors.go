// Package services defines the business logic for the purchase ledger,
// settlement coordination, presence broadcasting, and the announcement feed.
// This file centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer; translation
// into user-facing messages or HTTP status codes is performed at the handler
// layer. Each failure is attributable to a specific step (validation vs
// creation vs verification) so callers never surface a generic failure.
package services

import "errors"

// Ledger errors.
var (
	// ErrInvalidLitres is returned when a purchase is recorded with a
	// non-positive litres value.
	ErrInvalidLitres = errors.New("litres must be positive")

	// ErrInvalidFrequency is returned when the billing cycle length is not
	// one of the allowed values (15 or 30 days).
	ErrInvalidFrequency = errors.New("frequency must be 15 or 30 days")

	// ErrNoPriceConfigured is returned when the seller has not configured a
	// price per litre yet, so no snapshot can be taken.
	ErrNoPriceConfigured = errors.New("milkman has no price configured")

	// ErrCustomerNotFound indicates the customer does not exist.
	ErrCustomerNotFound = errors.New("customer not found")

	// ErrMilkmanNotFound indicates the seller does not exist.
	ErrMilkmanNotFound = errors.New("milkman not found")

	// ErrInvalidPrice is returned when a seller configures a non-positive
	// price per litre.
	ErrInvalidPrice = errors.New("price must be positive")
)

// Settlement errors.
var (
	// ErrEmptyBatch is returned when CreateOrder is called without any
	// purchase ids.
	ErrEmptyBatch = errors.New("purchase batch is empty")

	// ErrBadBatch is returned when a referenced purchase does not exist, is
	// already paid, or is not owned by the stated customer/seller pair.
	ErrBadBatch = errors.New("batch contains paid, foreign or unknown purchases")

	// ErrBatchClaimed is returned when a purchase in the batch is already
	// referenced by another order that has not failed.
	ErrBatchClaimed = errors.New("purchase already claimed by another payment order")

	// ErrGatewayUnavailable wraps an upstream order-creation failure. It is
	// surfaced to the caller and never retried internally.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// ErrOrderNotFound indicates the payment order does not exist.
	ErrOrderNotFound = errors.New("payment order not found")

	// ErrVerificationMismatch is returned when the gateway references or the
	// signature do not match the stored order. Terminal for that attempt.
	ErrVerificationMismatch = errors.New("payment verification mismatch")

	// ErrOrderFailed is returned when verifying an order that was already
	// marked failed.
	ErrOrderFailed = errors.New("payment order already failed")
)

// Presence errors.
var (
	// ErrLocationPermission is reported once when the device location source
	// refuses access; tracking stays idle.
	ErrLocationPermission = errors.New("location permission denied")

	// ErrAlreadyTracking is returned when Start is called on a tracker that
	// is already in the tracking state.
	ErrAlreadyTracking = errors.New("already tracking")
)

// Feed errors.
var (
	// ErrEmptyTitle is returned when an announcement or request has no title.
	ErrEmptyTitle = errors.New("title is empty")

	// ErrEmptyMessage is returned when an announcement or request has no body.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrUnknownReferralCode is returned when a community request addresses a
	// referral code no seller issued.
	ErrUnknownReferralCode = errors.New("unknown referral code")

	// ErrRequestNotFound indicates the community request does not exist or is
	// not addressed to the caller.
	ErrRequestNotFound = errors.New("community request not found")
)
