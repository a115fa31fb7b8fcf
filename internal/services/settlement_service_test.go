package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aroraks/milkman-backend/internal/domain"
	"github.com/aroraks/milkman-backend/internal/gateway"
	"github.com/aroraks/milkman-backend/internal/repo"
)

// ----- Fake gateway -----

type fakeGateway struct {
	calls   int
	lastKey string
	lastAmt int64
	err     error
}

func (g *fakeGateway) CreateOrder(ctx context.Context, keyID, keySecret string, amount decimal.Decimal, currency, receipt string) (*gateway.Order, error) {
	g.calls++
	g.lastKey = keyID
	g.lastAmt = amount.Mul(decimal.NewFromInt(100)).IntPart()
	if g.err != nil {
		return nil, g.err
	}
	return &gateway.Order{Ref: "order_" + uuid.NewString()[:8], Amount: g.lastAmt, Currency: currency, Receipt: receipt}, nil
}

func signFor(secret, orderRef, paymentRef string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderRef + "|" + paymentRef))
	return hex.EncodeToString(mac.Sum(nil))
}

// seedSettlement creates a seller with gateway credentials, a customer, and
// n unpaid purchases of 40 each. Returns the purchase ids.
func seedSettlement(t *testing.T, svc *SettlementService, n int) (*domain.Milkman, *domain.Customer, []string) {
	t.Helper()
	db := svc.DB
	m := seedMilkman(t, db, "40")
	if err := db.Model(&domain.Milkman{}).Where("id = ?", m.ID).Updates(map[string]interface{}{
		"gateway_key_id":     "rzp_test_key",
		"gateway_key_secret": "rzp_test_secret",
	}).Error; err != nil {
		t.Fatalf("set credentials: %v", err)
	}
	m.GatewayKeyID, m.GatewayKeySecret = "rzp_test_key", "rzp_test_secret"

	c := seedCustomer(t, db, m.ID)
	ledger := NewLedgerService(db)
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		p, err := ledger.Record(context.Background(), c.ID, mustDec(t, "1"), day(t, "2024-01-01").AddDate(0, 0, i), 30)
		if err != nil {
			t.Fatalf("Record: %v", err)
		}
		ids = append(ids, p.ID)
	}
	return m, c, ids
}

// ----- CreateOrder -----

func TestCreateOrder_FreezesBatch(t *testing.T) {
	db := newTestDB(t)
	gw := &fakeGateway{}
	svc := NewSettlementService(db, gw, "INR")
	m, c, ids := seedSettlement(t, svc, 3)

	res, err := svc.CreateOrder(context.Background(), c.ID, m.ID, ids)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if !res.Amount.Equal(mustDec(t, "120")) {
		t.Fatalf("amount = %s, want 120", res.Amount)
	}
	if res.Currency != "INR" || res.GatewayRef == "" || res.KeyID != "rzp_test_key" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if gw.calls != 1 || gw.lastAmt != 12000 {
		t.Fatalf("gateway calls=%d amount=%d, want 1/12000 (minor units)", gw.calls, gw.lastAmt)
	}

	order, err := repo.GetPaymentOrder(context.Background(), db, res.OrderID)
	if err != nil {
		t.Fatalf("GetPaymentOrder: %v", err)
	}
	if order.Status != domain.OrderStatusCreated || len(order.Purchases) != 3 {
		t.Fatalf("order status=%s purchases=%d", order.Status, len(order.Purchases))
	}
}

func TestCreateOrder_Validation(t *testing.T) {
	db := newTestDB(t)
	svc := NewSettlementService(db, &fakeGateway{}, "INR")
	m, c, ids := seedSettlement(t, svc, 2)
	ctx := context.Background()

	if _, err := svc.CreateOrder(ctx, c.ID, m.ID, nil); !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("empty batch: got %v, want ErrEmptyBatch", err)
	}
	if _, err := svc.CreateOrder(ctx, c.ID, m.ID, append(ids, "ghost")); !errors.Is(err, ErrBadBatch) {
		t.Fatalf("unknown purchase: got %v, want ErrBadBatch", err)
	}
	if _, err := svc.CreateOrder(ctx, c.ID, "nope", ids); !errors.Is(err, ErrMilkmanNotFound) {
		t.Fatalf("unknown seller: got %v, want ErrMilkmanNotFound", err)
	}

	if _, err := repo.MarkPurchasesPaid(ctx, db, ids[:1]); err != nil {
		t.Fatalf("MarkPurchasesPaid: %v", err)
	}
	if _, err := svc.CreateOrder(ctx, c.ID, m.ID, ids); !errors.Is(err, ErrBadBatch) {
		t.Fatalf("paid purchase: got %v, want ErrBadBatch", err)
	}
}

func TestCreateOrder_RejectsOverlappingBatch(t *testing.T) {
	db := newTestDB(t)
	svc := NewSettlementService(db, &fakeGateway{}, "INR")
	m, c, ids := seedSettlement(t, svc, 3)
	ctx := context.Background()

	if _, err := svc.CreateOrder(ctx, c.ID, m.ID, ids[:2]); err != nil {
		t.Fatalf("first order: %v", err)
	}
	// ids[1] is claimed by the open order above.
	if _, err := svc.CreateOrder(ctx, c.ID, m.ID, ids[1:]); !errors.Is(err, ErrBatchClaimed) {
		t.Fatalf("overlap: got %v, want ErrBatchClaimed", err)
	}
	// Disjoint remainder is fine.
	if _, err := svc.CreateOrder(ctx, c.ID, m.ID, ids[2:]); err != nil {
		t.Fatalf("disjoint order: %v", err)
	}
}

func TestCreateOrder_SupersedesStaleDegradedOrder(t *testing.T) {
	db := newTestDB(t)
	gw := &fakeGateway{}
	svc := NewSettlementService(db, gw, "INR")
	ctx := context.Background()

	// Seller starts without credentials: the first order is degraded.
	m := seedMilkman(t, db, "40")
	c := seedCustomer(t, db, m.ID)
	p, err := NewLedgerService(db).Record(ctx, c.ID, mustDec(t, "3"), day(t, "2024-01-01"), 30)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	stale, err := svc.CreateOrder(ctx, c.ID, m.ID, []string{p.ID})
	if err != nil {
		t.Fatalf("degraded CreateOrder: %v", err)
	}

	// Credentials arrive; a fresh order for the same batch supersedes the
	// ref-less one instead of deadlocking on the claim.
	if err := db.Model(&domain.Milkman{}).Where("id = ?", m.ID).Updates(map[string]interface{}{
		"gateway_key_id":     "rzp_test_key",
		"gateway_key_secret": "rzp_test_secret",
	}).Error; err != nil {
		t.Fatalf("set credentials: %v", err)
	}
	fresh, err := svc.CreateOrder(ctx, c.ID, m.ID, []string{p.ID})
	if err != nil {
		t.Fatalf("superseding CreateOrder: %v", err)
	}
	if fresh.GatewayRef == "" || fresh.OrderID == stale.OrderID {
		t.Fatalf("expected a new gateway-backed order, got %+v", fresh)
	}

	old, err := repo.GetPaymentOrder(ctx, db, stale.OrderID)
	if err != nil {
		t.Fatalf("GetPaymentOrder: %v", err)
	}
	if old.Status != domain.OrderStatusFailed {
		t.Fatalf("stale order status = %s, want failed", old.Status)
	}

	// An order holding a gateway reference keeps its claim.
	if _, err := svc.CreateOrder(ctx, c.ID, m.ID, []string{p.ID}); !errors.Is(err, ErrBatchClaimed) {
		t.Fatalf("ref-bearing order: got %v, want ErrBatchClaimed", err)
	}
}

func TestCreateOrder_DegradedOrderOfOtherPairIsNotSuperseded(t *testing.T) {
	db := newTestDB(t)
	svc := NewSettlementService(db, &fakeGateway{}, "INR")
	ctx := context.Background()

	m := seedMilkman(t, db, "40")
	c := seedCustomer(t, db, m.ID)
	other := seedCustomer(t, db, m.ID)
	p, err := NewLedgerService(db).Record(ctx, c.ID, mustDec(t, "1"), day(t, "2024-01-01"), 30)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if _, err := svc.CreateOrder(ctx, c.ID, m.ID, []string{p.ID}); err != nil {
		t.Fatalf("degraded CreateOrder: %v", err)
	}

	// A different customer cannot steal the claim; the batch check fails
	// before superseding is even considered, and the stale order survives.
	if _, err := svc.CreateOrder(ctx, other.ID, m.ID, []string{p.ID}); !errors.Is(err, ErrBadBatch) {
		t.Fatalf("foreign pair: got %v, want ErrBadBatch", err)
	}
}

func TestCreateOrder_DegradedWithoutCredentials(t *testing.T) {
	db := newTestDB(t)
	gw := &fakeGateway{}
	svc := NewSettlementService(db, gw, "INR")

	m := seedMilkman(t, db, "40")
	c := seedCustomer(t, db, m.ID)
	p, err := NewLedgerService(db).Record(context.Background(), c.ID, mustDec(t, "2"), day(t, "2024-01-01"), 30)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	res, err := svc.CreateOrder(context.Background(), c.ID, m.ID, []string{p.ID})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if gw.calls != 0 {
		t.Fatalf("gateway called %d times in degraded mode", gw.calls)
	}
	if res.GatewayRef != "" || res.KeyID != "" {
		t.Fatalf("degraded result must omit gateway fields: %+v", res)
	}
	order, err := repo.GetPaymentOrder(context.Background(), db, res.OrderID)
	if err != nil {
		t.Fatalf("GetPaymentOrder: %v", err)
	}
	if order.Status != domain.OrderStatusCreated {
		t.Fatalf("status = %s, want created", order.Status)
	}
}

func TestCreateOrder_GatewayDownLeavesNoState(t *testing.T) {
	db := newTestDB(t)
	gw := &fakeGateway{err: errors.New("connect refused")}
	svc := NewSettlementService(db, gw, "INR")
	m, c, ids := seedSettlement(t, svc, 1)

	_, err := svc.CreateOrder(context.Background(), c.ID, m.ID, ids)
	if !errors.Is(err, ErrGatewayUnavailable) {
		t.Fatalf("got %v, want ErrGatewayUnavailable", err)
	}

	var count int64
	if err := db.Model(&domain.PaymentOrder{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("orders = %d, want 0 after gateway failure", count)
	}
}

// ----- Verify -----

func TestVerify_SettlesBatchAtomically(t *testing.T) {
	db := newTestDB(t)
	svc := NewSettlementService(db, &fakeGateway{}, "INR")
	m, c, ids := seedSettlement(t, svc, 2)
	ctx := context.Background()

	res, err := svc.CreateOrder(ctx, c.ID, m.ID, ids)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	payRef := "pay_abc"
	sig := signFor("rzp_test_secret", res.GatewayRef, payRef)
	out, err := svc.Verify(ctx, res.OrderID, payRef, res.GatewayRef, sig)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !out.Verified || out.AlreadyVerified {
		t.Fatalf("unexpected result: %+v", out)
	}

	order, err := repo.GetPaymentOrder(ctx, db, res.OrderID)
	if err != nil {
		t.Fatalf("GetPaymentOrder: %v", err)
	}
	if order.Status != domain.OrderStatusVerified || order.GatewayPaymentRef != payRef {
		t.Fatalf("order = %+v", order)
	}
	for _, p := range order.Purchases {
		if !p.IsPaid {
			t.Fatalf("purchase %s still unpaid after verification", p.ID)
		}
	}
}

func TestVerify_ReplayIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	svc := NewSettlementService(db, &fakeGateway{}, "INR")
	m, c, ids := seedSettlement(t, svc, 1)
	ctx := context.Background()

	res, err := svc.CreateOrder(ctx, c.ID, m.ID, ids)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	sig := signFor("rzp_test_secret", res.GatewayRef, "pay_1")
	if _, err := svc.Verify(ctx, res.OrderID, "pay_1", res.GatewayRef, sig); err != nil {
		t.Fatalf("first Verify: %v", err)
	}

	out, err := svc.Verify(ctx, res.OrderID, "pay_1", res.GatewayRef, sig)
	if err != nil {
		t.Fatalf("replay Verify: %v", err)
	}
	if !out.Verified || !out.AlreadyVerified {
		t.Fatalf("replay result: %+v", out)
	}
}

func TestVerify_SignatureMismatchFailsOrder(t *testing.T) {
	db := newTestDB(t)
	svc := NewSettlementService(db, &fakeGateway{}, "INR")
	m, c, ids := seedSettlement(t, svc, 1)
	ctx := context.Background()

	res, err := svc.CreateOrder(ctx, c.ID, m.ID, ids)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	if _, err := svc.Verify(ctx, res.OrderID, "pay_1", res.GatewayRef, "deadbeef"); !errors.Is(err, ErrVerificationMismatch) {
		t.Fatalf("got %v, want ErrVerificationMismatch", err)
	}

	order, err := repo.GetPaymentOrder(ctx, db, res.OrderID)
	if err != nil {
		t.Fatalf("GetPaymentOrder: %v", err)
	}
	if order.Status != domain.OrderStatusFailed {
		t.Fatalf("status = %s, want failed", order.Status)
	}
	for _, p := range order.Purchases {
		if p.IsPaid {
			t.Fatalf("purchase %s paid despite failed verification", p.ID)
		}
	}

	// A failed order cannot be verified later, even with a good signature.
	sig := signFor("rzp_test_secret", res.GatewayRef, "pay_1")
	if _, err := svc.Verify(ctx, res.OrderID, "pay_1", res.GatewayRef, sig); !errors.Is(err, ErrOrderFailed) {
		t.Fatalf("got %v, want ErrOrderFailed", err)
	}
}

func TestVerify_WrongOrderRefFailsOrder(t *testing.T) {
	db := newTestDB(t)
	svc := NewSettlementService(db, &fakeGateway{}, "INR")
	m, c, ids := seedSettlement(t, svc, 1)
	ctx := context.Background()

	res, err := svc.CreateOrder(ctx, c.ID, m.ID, ids)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	sig := signFor("rzp_test_secret", "order_other", "pay_1")
	if _, err := svc.Verify(ctx, res.OrderID, "pay_1", "order_other", sig); !errors.Is(err, ErrVerificationMismatch) {
		t.Fatalf("got %v, want ErrVerificationMismatch", err)
	}
}

func TestVerify_UnknownOrder(t *testing.T) {
	db := newTestDB(t)
	svc := NewSettlementService(db, &fakeGateway{}, "INR")

	if _, err := svc.Verify(context.Background(), uuid.NewString(), "p", "o", "s"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("got %v, want ErrOrderNotFound", err)
	}
}
