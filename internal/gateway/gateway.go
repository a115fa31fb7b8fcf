// Package gateway talks to the external payment gateway. The gateway is an
// opaque collaborator: this package only creates orders against its REST API
// and checks callback signatures using its published HMAC scheme. Every
// seller brings their own key pair, so credentials are arguments, never
// package state.
package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

// Order is the gateway's view of a created payment order.
type Order struct {
	Ref      string `json:"id"`
	Amount   int64  `json:"amount"` // minor units
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

// Client creates orders with the external gateway. Implementations must be
// safe for concurrent use; the settlement coordinator injects a fake in tests.
type Client interface {
	// CreateOrder registers an order for the given major-unit amount under
	// the seller's credentials and returns the gateway order reference.
	CreateOrder(ctx context.Context, keyID, keySecret string, amount decimal.Decimal, currency, receipt string) (*Order, error)
}

type restClient struct {
	baseURL string
	http    *resty.Client
}

// NewClient returns a Client bound to the gateway's base URL
// (e.g. "https://api.razorpay.com/v1").
func NewClient(baseURL string) Client {
	return &restClient{
		baseURL: baseURL,
		http:    resty.New(),
	}
}

// CreateOrder POSTs to the gateway's orders endpoint. Amounts are converted
// to minor units (paise for INR) as the gateway requires.
func (c *restClient) CreateOrder(ctx context.Context, keyID, keySecret string, amount decimal.Decimal, currency, receipt string) (*Order, error) {
	body := map[string]interface{}{
		"amount":   amount.Mul(decimal.NewFromInt(100)).IntPart(),
		"currency": currency,
		"receipt":  receipt,
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBasicAuth(keyID, keySecret).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(c.baseURL + "/orders")
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode() {
	case http.StatusOK, http.StatusCreated:
		var order Order
		if err := json.Unmarshal(resp.Body(), &order); err != nil {
			return nil, err
		}
		return &order, nil
	default:
		return nil, fmt.Errorf("gateway order request status: %d", resp.StatusCode())
	}
}

// VerifySignature checks a checkout callback signature using the gateway's
// published scheme: hex(HMAC-SHA256(orderRef + "|" + paymentRef)) keyed with
// the seller's secret. Comparison is constant-time.
func VerifySignature(keySecret, orderRef, paymentRef, signature string) bool {
	if keySecret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(keySecret))
	mac.Write([]byte(orderRef + "|" + paymentRef))
	expected := hex.EncodeToString(mac.Sum(nil))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}
