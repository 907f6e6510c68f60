package payment

import (
	"context"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// ChargeRequest is a settlement request for one payment session
type ChargeRequest struct {
	PaymentID   string
	Amount      string // decimal string in minor units
	Currency    string
	CardNumber  string // sanitized, digits only
	CardBrand   string
	Description string
}

// ChargeResult is the gateway's decision
type ChargeResult struct {
	Approved      bool
	TransactionID string
	DeclineReason string
}

// Gateway defines the interface for settling card payments
type Gateway interface {
	// Charge settles the request. A declined charge is reported through
	// ChargeResult, not an error. Errors mean the outcome is unknown.
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)

	// GetName returns the name of the gateway implementation
	GetName() string
}

// Fingerprint returns a stable, non-reversible identifier for a card number
func Fingerprint(cardNumber string) string {
	sum := blake2b.Sum256([]byte(cardNumber))
	return hex.EncodeToString(sum[:])
}
