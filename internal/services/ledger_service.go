// Package services – LedgerService
//
// This file implements the purchase ledger: recording deliveries with a
// price snapshot and derived due date, aggregating a customer's unpaid total,
// and the read-time overdue/running classification. The ledger is append-only;
// the only mutation is the one-way paid flip, and that is reserved for the
// settlement workflow (never exposed as a direct user action).
package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/aroraks/milkman-backend/internal/domain"
	"github.com/aroraks/milkman-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// LedgerService owns purchase records and their derived money/date fields.
type LedgerService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
}

// NewLedgerService constructs a LedgerService.
func NewLedgerService(db *gorm.DB) *LedgerService {
	return &LedgerService{DB: db}
}

// Aggregation is a customer's ledger view: all purchases plus the unpaid sum.
type Aggregation struct {
	Purchases   []domain.Purchase `json:"purchases"`
	TotalUnpaid decimal.Decimal   `json:"total_unpaid"`
}

// Classification splits a seller's unpaid purchases by due date relative to
// a reference day. It is computed on every read and never stored: the split
// depends on the wall clock, and a persisted status would drift.
type Classification struct {
	Overdue []domain.Purchase `json:"overdue"`
	Running []domain.Purchase `json:"running"`
}

// CustomerBalance is one row of the seller-side rollup: a customer with
// their purchases and outstanding total.
type CustomerBalance struct {
	Customer    domain.Customer   `json:"customer"`
	Purchases   []domain.Purchase `json:"purchases"`
	TotalUnpaid decimal.Decimal   `json:"total_unpaid"`
}

// Record validates and persists one delivery for the customer.
//
// Rules:
//   - litres must be strictly positive.
//   - frequencyDays must be one of domain.AllowedFrequencies.
//   - a zero date defaults to today (UTC); time-of-day is stripped.
//   - the seller's currently configured price is snapshotted; TotalAmount and
//     DueDate are derived here once and never recomputed later.
func (s *LedgerService) Record(ctx context.Context, customerID string, litres decimal.Decimal, date time.Time, frequencyDays int) (*domain.Purchase, error) {
	if litres.Sign() <= 0 {
		return nil, ErrInvalidLitres
	}
	if !allowedFrequency(frequencyDays) {
		return nil, ErrInvalidFrequency
	}

	cust, err := repo.GetCustomer(ctx, s.DB, customerID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrCustomerNotFound
		}
		return nil, err
	}
	seller, err := repo.GetMilkman(ctx, s.DB, cust.MilkmanID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrMilkmanNotFound
		}
		return nil, err
	}
	if seller.PricePerLitre.Sign() <= 0 {
		return nil, ErrNoPriceConfigured
	}

	if date.IsZero() {
		date = time.Now().UTC()
	}
	date = startOfDay(date)

	p := &domain.Purchase{
		ID:            uuid.NewString(),
		CustomerID:    cust.ID,
		MilkmanID:     seller.ID,
		Litres:        litres,
		PricePerLitre: seller.PricePerLitre,
		TotalAmount:   litres.Mul(seller.PricePerLitre).Round(2),
		Date:          date,
		FrequencyDays: frequencyDays,
		DueDate:       date.AddDate(0, 0, frequencyDays),
		IsPaid:        false,
	}
	if err := repo.CreatePurchase(ctx, s.DB, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Aggregate returns the customer's purchases (newest delivery first) and the
// sum of TotalAmount over the unpaid ones. Pure read.
func (s *LedgerService) Aggregate(ctx context.Context, customerID string) (*Aggregation, error) {
	purchases, err := repo.ListPurchases(ctx, s.DB, customerID)
	if err != nil {
		return nil, err
	}
	total := decimal.Zero
	for _, p := range purchases {
		if !p.IsPaid {
			total = total.Add(p.TotalAmount)
		}
	}
	return &Aggregation{Purchases: purchases, TotalUnpaid: total}, nil
}

// Classify splits every unpaid purchase across the seller's customers into
// overdue and running, relative to the start of asOf's day. The due date
// falls back to the delivery date when unset. A purchase due exactly on asOf
// is still running; only strictly-before is overdue.
func (s *LedgerService) Classify(ctx context.Context, milkmanID string, asOf time.Time) (*Classification, error) {
	tr := otel.Tracer("services/LedgerService")
	ctx, span := tr.Start(ctx, "Classify",
		trace.WithAttributes(attribute.String("milkman.id", milkmanID)),
	)
	defer span.End()

	unpaid, err := repo.ListUnpaidByMilkman(ctx, s.DB, milkmanID)
	if err != nil {
		return nil, err
	}

	cutoff := startOfDay(asOf)
	out := &Classification{
		Overdue: []domain.Purchase{},
		Running: []domain.Purchase{},
	}
	for _, p := range unpaid {
		due := p.DueDate
		if due.IsZero() {
			due = p.Date
		}
		if startOfDay(due).Before(cutoff) {
			out.Overdue = append(out.Overdue, p)
		} else {
			out.Running = append(out.Running, p)
		}
	}
	return out, nil
}

// CustomersWithBalances builds the seller-side rollup used by the payment
// dashboard: every customer with their purchases and outstanding total.
func (s *LedgerService) CustomersWithBalances(ctx context.Context, milkmanID string) ([]CustomerBalance, error) {
	customers, err := repo.ListCustomersOfMilkman(ctx, s.DB, milkmanID)
	if err != nil {
		return nil, err
	}
	out := make([]CustomerBalance, 0, len(customers))
	for _, c := range customers {
		agg, err := s.Aggregate(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, CustomerBalance{
			Customer:    c,
			Purchases:   agg.Purchases,
			TotalUnpaid: agg.TotalUnpaid,
		})
	}
	return out, nil
}

// MarkPaid flips the given purchases to paid. The underlying update only
// transitions rows that are still unpaid, so re-marking is a no-op rather
// than an error. Reserved for the settlement coordinator, which calls it
// inside its verification transaction.
func (s *LedgerService) MarkPaid(ctx context.Context, tx *gorm.DB, purchaseIDs []string) error {
	if tx == nil {
		tx = s.DB
	}
	_, err := repo.MarkPurchasesPaid(ctx, tx, purchaseIDs)
	return err
}

// allowedFrequency reports whether days is a permitted billing cycle length.
func allowedFrequency(days int) bool {
	for _, d := range domain.AllowedFrequencies {
		if d == days {
			return true
		}
	}
	return false
}

// startOfDay strips the time-of-day in UTC.
func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
