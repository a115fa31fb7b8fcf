// Package services – SettlementService
//
// This file implements the settlement coordinator: it freezes a batch of
// unpaid purchases into a payment order, obtains a gateway order reference
// under the seller's own credentials, and later verifies the checkout
// callback, atomically flipping the batch to paid. CreateOrder and Verify are
// two independent idempotent phases correlated only by the stored order id;
// a human checkout step of arbitrary length sits between them, so no lock is
// held across the handshake and "created but never verified" is a valid
// terminal state.
package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/aroraks/milkman-backend/internal/domain"
	"github.com/aroraks/milkman-backend/internal/gateway"
	"github.com/aroraks/milkman-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// SettlementService coordinates the two-phase payment handshake between the
// ledger and the external gateway.
type SettlementService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Gateway creates orders with the external collaborator.
	Gateway gateway.Client
	// Currency is stamped onto every order (single-currency deployment).
	Currency string
}

// NewSettlementService constructs a SettlementService.
func NewSettlementService(db *gorm.DB, gw gateway.Client, currency string) *SettlementService {
	if currency == "" {
		currency = "INR"
	}
	return &SettlementService{DB: db, Gateway: gw, Currency: currency}
}

// OrderResult is what CreateOrder hands back to the checkout UI. GatewayRef
// and KeyID are empty in degraded mode (seller without gateway credentials):
// the order then records the obligation and awaits out-of-band payment.
type OrderResult struct {
	OrderID    string          `json:"payment_id"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	GatewayRef string          `json:"gateway_order_ref,omitempty"`
	KeyID      string          `json:"key_id,omitempty"`
}

// VerifyResult reports the outcome of a verification attempt.
type VerifyResult struct {
	Verified bool `json:"verified"`
	// AlreadyVerified marks an idempotent replay of a completed verification.
	AlreadyVerified bool `json:"already_verified,omitempty"`
}

// CreateOrder freezes a batch of unpaid purchases into a new payment order.
//
// Validation:
//   - the batch must be non-empty;
//   - every purchase must exist, be unpaid, and belong to the stated
//     customer/seller pair;
//   - no purchase may already be referenced by another non-failed order
//     (this is what rejects the overlapping-settlement race at creation).
//
// The order amount is the batch sum at this instant and is immutable
// afterwards. Gateway failures surface as ErrGatewayUnavailable with no
// partial state; retrying is the caller's decision. A ref-less created order
// for the same pair (recorded while the seller had no gateway credentials)
// is superseded, not a blocker: it is marked failed and the new order takes
// over the batch. Orders that hold a gateway reference keep their claim.
func (s *SettlementService) CreateOrder(ctx context.Context, customerID, milkmanID string, purchaseIDs []string) (*OrderResult, error) {
	tr := otel.Tracer("services/SettlementService")
	ctx, span := tr.Start(ctx, "CreateOrder",
		trace.WithAttributes(
			attribute.String("customer.id", customerID),
			attribute.String("milkman.id", milkmanID),
			attribute.Int("batch.size", len(purchaseIDs)),
		),
	)
	defer span.End()

	if len(purchaseIDs) == 0 {
		return nil, ErrEmptyBatch
	}

	seller, err := repo.GetMilkman(ctx, s.DB, milkmanID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrMilkmanNotFound
		}
		return nil, err
	}

	batch, err := repo.GetPurchasesByIDs(ctx, s.DB, purchaseIDs, customerID, milkmanID)
	if err != nil {
		return nil, err
	}
	if len(batch) != len(purchaseIDs) {
		return nil, ErrBadBatch
	}
	amount := decimal.Zero
	for _, p := range batch {
		if p.IsPaid {
			return nil, ErrBadBatch
		}
		amount = amount.Add(p.TotalAmount)
	}

	claimed, err := repo.CountPurchasesInOpenOrders(ctx, s.DB, purchaseIDs)
	if err != nil {
		return nil, err
	}
	if claimed > 0 {
		if err := s.supersedeStaleOrders(ctx, customerID, milkmanID, purchaseIDs); err != nil {
			return nil, err
		}
		// Recount: anything still claimed was not supersedable.
		claimed, err = repo.CountPurchasesInOpenOrders(ctx, s.DB, purchaseIDs)
		if err != nil {
			return nil, err
		}
		if claimed > 0 {
			return nil, ErrBatchClaimed
		}
	}

	order := &domain.PaymentOrder{
		ID:         uuid.NewString(),
		CustomerID: customerID,
		MilkmanID:  milkmanID,
		Amount:     amount,
		Currency:   s.Currency,
		Status:     domain.OrderStatusCreated,
		Purchases:  batch,
	}

	// Degraded-gateway policy: without tenant credentials the order is still
	// recorded (status=created, no gateway ref) and the ledger stays unpaid
	// until a later out-of-band verification.
	if seller.HasGatewayCredentials() {
		gwOrder, err := s.Gateway.CreateOrder(ctx, seller.GatewayKeyID, seller.GatewayKeySecret, amount, s.Currency, order.ID)
		if err != nil {
			return nil, errors.Join(ErrGatewayUnavailable, err)
		}
		order.GatewayOrderRef = gwOrder.Ref
	}

	if err := repo.CreatePaymentOrder(ctx, s.DB, order); err != nil {
		return nil, err
	}

	res := &OrderResult{
		OrderID:  order.ID,
		Amount:   order.Amount,
		Currency: order.Currency,
	}
	if order.GatewayOrderRef != "" {
		res.GatewayRef = order.GatewayOrderRef
		res.KeyID = seller.GatewayKeyID
	}
	return res, nil
}

// supersedeStaleOrders fails the ref-less created orders holding purchases of
// the given pair so a fresh order can claim them. An order with a gateway
// reference has a checkout in flight and is left alone, as is any order for a
// different pair; the caller's recount then rejects the batch. The transition
// is the same status CAS Verify uses, so racing a concurrent verification is
// safe: whichever side moves the status first wins.
func (s *SettlementService) supersedeStaleOrders(ctx context.Context, customerID, milkmanID string, purchaseIDs []string) error {
	open, err := repo.ListOpenOrdersClaiming(ctx, s.DB, purchaseIDs)
	if err != nil {
		return err
	}
	for _, o := range open {
		if o.Status != domain.OrderStatusCreated || o.GatewayOrderRef != "" ||
			o.CustomerID != customerID || o.MilkmanID != milkmanID {
			continue
		}
		if _, err := repo.TransitionOrderStatus(ctx, s.DB, o.ID, domain.OrderStatusCreated, domain.OrderStatusFailed); err != nil {
			return err
		}
	}
	return nil
}

// History returns one party's payment orders, newest first. Sellers see the
// orders collecting for them, customers the orders they pay.
func (s *SettlementService) History(ctx context.Context, userID string, asSeller bool) ([]domain.PaymentOrder, error) {
	if asSeller {
		return repo.ListOrdersForMilkman(ctx, s.DB, userID)
	}
	return repo.ListOrdersForCustomer(ctx, s.DB, userID)
}

// Verify validates the checkout callback against the stored order and, on
// success, marks the order verified and the batch paid in one transaction —
// both or neither; a verified order with an unpaid ledger is the one
// unacceptable failure mode.
//
// Idempotence: verifying an already-verified order is a no-op that reports
// the verified outcome. When two Verify calls race, the status CAS lets
// exactly one apply the ledger mutation; the loser observes the result.
// Reference or signature mismatches mark the order failed and leave the
// ledger untouched; a human must re-attempt payment.
func (s *SettlementService) Verify(ctx context.Context, orderID, gatewayPaymentRef, gatewayOrderRef, signature string) (*VerifyResult, error) {
	tr := otel.Tracer("services/SettlementService")
	ctx, span := tr.Start(ctx, "Verify",
		trace.WithAttributes(attribute.String("order.id", orderID)),
	)
	defer span.End()

	order, err := repo.GetPaymentOrder(ctx, s.DB, orderID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	switch order.Status {
	case domain.OrderStatusVerified:
		return &VerifyResult{Verified: true, AlreadyVerified: true}, nil
	case domain.OrderStatusFailed:
		return nil, ErrOrderFailed
	}

	seller, err := repo.GetMilkman(ctx, s.DB, order.MilkmanID)
	if err != nil {
		return nil, err
	}

	// The cryptographic check uses the seller's own secret; references must
	// correlate with the stored order.
	if order.GatewayOrderRef == "" ||
		gatewayOrderRef != order.GatewayOrderRef ||
		!gateway.VerifySignature(seller.GatewayKeySecret, gatewayOrderRef, gatewayPaymentRef, signature) {
		if _, err := repo.TransitionOrderStatus(ctx, s.DB, order.ID, domain.OrderStatusCreated, domain.OrderStatusFailed); err != nil {
			return nil, err
		}
		return nil, ErrVerificationMismatch
	}

	ids := make([]string, 0, len(order.Purchases))
	for _, p := range order.Purchases {
		ids = append(ids, p.ID)
	}

	var won bool
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		won, err = repo.TransitionOrderStatus(ctx, tx, order.ID, domain.OrderStatusCreated, domain.OrderStatusVerified)
		if err != nil {
			return err
		}
		if !won {
			// A concurrent Verify completed first; the batch is already
			// handled (or the order failed meanwhile). Nothing to apply.
			return nil
		}
		if err := repo.SetOrderPaymentRef(ctx, tx, order.ID, gatewayPaymentRef); err != nil {
			return err
		}
		if _, err := repo.MarkPurchasesPaid(ctx, tx, ids); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !won {
		// Re-read to report the settled outcome of the winning call.
		cur, err := repo.GetPaymentOrder(ctx, s.DB, orderID)
		if err != nil {
			return nil, err
		}
		if cur.Status == domain.OrderStatusVerified {
			return &VerifyResult{Verified: true, AlreadyVerified: true}, nil
		}
		return nil, ErrOrderFailed
	}
	return &VerifyResult{Verified: true}, nil
}
