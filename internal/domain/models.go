// Package domain defines the persistence models for the milk-delivery billing
// core: sellers (milkmen), their customers, the purchase ledger, payment
// orders, announcements, and community requests. These types are mapped with
// GORM and shared across the repository and service layers.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PaymentOrder status values. A payment order is created once, and either
// verified exactly once or marked failed; there are no other transitions.
const (
	OrderStatusCreated  = "created"
	OrderStatusVerified = "verified"
	OrderStatusFailed   = "failed"
)

// Announcement kinds. The live-location slot is identified by kind, not by
// its title, so a seller's freeform announcement titled "Live Location"
// cannot collide with the presence signal.
const (
	AnnouncementKindGeneral      = "general"
	AnnouncementKindLiveLocation = "live-location"
)

// LiveLocationTitle is the display title carried by the live-location slot.
const LiveLocationTitle = "Live Location"

// AllowedFrequencies are the billing cycle lengths (days) a purchase may use.
var AllowedFrequencies = []int{15, 30}

// Milkman is a seller tenant. Gateway credentials are attached here because
// every seller brings their own gateway account; they must never live in
// session or global state. The UPI/wallet fields are out-of-band payment
// contacts shown to customers when no gateway is configured.
type Milkman struct {
	ID            string          `json:"id"              gorm:"type:char(36);primaryKey"`
	Name          string          `json:"name"            gorm:"type:varchar(128);not null"`
	Phone         string          `json:"phone"           gorm:"type:varchar(32)"`
	PricePerLitre decimal.Decimal `json:"price_per_litre" gorm:"type:decimal(12,2);not null;default:0"`
	ReferralCode  string          `json:"referral_code"   gorm:"type:varchar(32);uniqueIndex"`

	GatewayKeyID     string `json:"-" gorm:"type:varchar(128)"`
	GatewayKeySecret string `json:"-" gorm:"type:varchar(128)"`

	UPIID          string `json:"upi_id,omitempty"  gorm:"column:upi_id;type:varchar(128)"`
	PaytmContact   string `json:"paytm,omitempty"   gorm:"type:varchar(128)"`
	GpayContact    string `json:"gpay,omitempty"    gorm:"type:varchar(128)"`
	PhonePeContact string `json:"phonepe,omitempty" gorm:"type:varchar(128)"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Milkman.
func (Milkman) TableName() string { return "milkmen" }

// HasGatewayCredentials reports whether the seller configured a gateway key
// pair. Without it, settlement runs in degraded (out-of-band) mode.
func (m Milkman) HasGatewayCredentials() bool {
	return m.GatewayKeyID != "" && m.GatewayKeySecret != ""
}

// Customer is a buyer linked to exactly one milkman, resolved from the
// seller's referral code at signup.
type Customer struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	Name      string    `json:"name"       gorm:"type:varchar(128);not null"`
	Phone     string    `json:"phone"      gorm:"type:varchar(32)"`
	MilkmanID string    `json:"milkman_id" gorm:"type:char(36);not null;index:idx_milkman_customers"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Milkman Milkman `json:"-" gorm:"foreignKey:MilkmanID;references:ID"`
}

// TableName returns the database table name for Customer.
func (Customer) TableName() string { return "customers" }

// Purchase is one recorded milk delivery. The price per litre is a snapshot
// taken at creation time; TotalAmount and DueDate are derived once and never
// recomputed. IsPaid transitions false→true exactly once and is only flipped
// by the settlement workflow. Rows are never deleted (append-only ledger).
//
// Fields:
//   - Litres / PricePerLitre / TotalAmount: fixed-point decimals.
//   - Date: calendar date of delivery (time-of-day is not significant).
//   - FrequencyDays: billing cycle length, one of AllowedFrequencies.
//   - DueDate: Date + FrequencyDays days.
type Purchase struct {
	ID            string          `json:"id"              gorm:"type:char(36);primaryKey"`
	CustomerID    string          `json:"customer_id"     gorm:"type:char(36);not null;index:idx_customer_purchases"`
	MilkmanID     string          `json:"milkman_id"      gorm:"type:char(36);not null;index:idx_milkman_purchases"`
	Litres        decimal.Decimal `json:"litres"          gorm:"type:decimal(12,3);not null"`
	PricePerLitre decimal.Decimal `json:"price_per_litre" gorm:"type:decimal(12,2);not null"`
	TotalAmount   decimal.Decimal `json:"total_amount"    gorm:"type:decimal(14,2);not null"`
	Date          time.Time       `json:"date"            gorm:"not null"`
	FrequencyDays int             `json:"frequency"       gorm:"not null;check:frequency_days IN (15,30)"`
	DueDate       time.Time       `json:"due_date"`
	IsPaid        bool            `json:"is_paid"         gorm:"not null;default:false;index"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`

	Customer Customer `json:"-" gorm:"foreignKey:CustomerID;references:ID"`
	Milkman  Milkman  `json:"-" gorm:"foreignKey:MilkmanID;references:ID"`
}

// TableName returns the database table name for Purchase.
func (Purchase) TableName() string { return "purchases" }

// PaymentOrder batches unpaid purchases of one customer/seller pair into a
// single settlement attempt. Amount is the sum of the batch at creation time
// and is immutable afterwards, even if a purchase row were mutated elsewhere.
// GatewayOrderRef is empty when the seller has no gateway credentials
// (degraded mode: the order records the obligation and awaits out-of-band
// payment and a later manual verification).
type PaymentOrder struct {
	ID                string          `json:"id"          gorm:"type:char(36);primaryKey"`
	CustomerID        string          `json:"customer_id" gorm:"type:char(36);not null;index"`
	MilkmanID         string          `json:"milkman_id"  gorm:"type:char(36);not null;index"`
	Amount            decimal.Decimal `json:"amount"      gorm:"type:decimal(14,2);not null"`
	Currency          string          `json:"currency"    gorm:"type:varchar(8);not null"`
	GatewayOrderRef   string          `json:"gateway_order_ref,omitempty"   gorm:"type:varchar(128);index"`
	GatewayPaymentRef string          `json:"gateway_payment_ref,omitempty" gorm:"type:varchar(128)"`
	Status            string          `json:"status" gorm:"type:varchar(16);not null;default:'created';check:status IN ('created','verified','failed')"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`

	// Purchases is the frozen batch this order settles.
	Purchases []Purchase `json:"purchases,omitempty" gorm:"many2many:payment_order_purchases"`
}

// TableName returns the database table name for PaymentOrder.
func (PaymentOrder) TableName() string { return "payment_orders" }

// Announcement is an append-only feed entry published by a seller and read by
// that seller's customers. The single live-location slot per seller is the
// row with Kind = AnnouncementKindLiveLocation; location updates overwrite
// that row in place (same identity, UpdatedAt bumped) instead of accumulating
// history. Soft deletion retains superseded slots for audit.
type Announcement struct {
	ID        string         `json:"id"         gorm:"type:char(36);primaryKey"`
	MilkmanID string         `json:"milkman_id" gorm:"type:char(36);not null;index:idx_milkman_announcements"`
	Kind      string         `json:"kind"       gorm:"type:varchar(16);not null;default:'general';index"`
	Title     string         `json:"title"      gorm:"type:varchar(255);not null"`
	Message   string         `json:"message"    gorm:"type:text;not null"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// TableName returns the database table name for Announcement.
func (Announcement) TableName() string { return "announcements" }

// CommunityRequest is a customer→seller message addressed via the seller's
// referral code. IsRead flips false→true once, only by the recipient.
type CommunityRequest struct {
	ID         string    `json:"id"          gorm:"type:char(36);primaryKey"`
	CustomerID string    `json:"customer_id" gorm:"type:char(36);not null;index"`
	MilkmanID  string    `json:"milkman_id"  gorm:"type:char(36);not null;index:idx_milkman_requests"`
	Title      string    `json:"title"       gorm:"type:varchar(255);not null"`
	Message    string    `json:"message"     gorm:"type:text;not null"`
	IsRead     bool      `json:"is_read"     gorm:"not null;default:false"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	Customer Customer `json:"-" gorm:"foreignKey:CustomerID;references:ID"`
	Milkman  Milkman  `json:"-" gorm:"foreignKey:MilkmanID;references:ID"`
}

// TableName returns the database table name for CommunityRequest.
func (CommunityRequest) TableName() string { return "community_requests" }
