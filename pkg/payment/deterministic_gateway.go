package payment

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DeclineReasonSentinel is returned for the all-zero card number
const DeclineReasonSentinel = "card declined by issuer"

// DeterministicGateway approves every well-formed card except the all-zero
// number. Latency simulates a slow gateway.
type DeterministicGateway struct {
	Latency time.Duration
}

// NewDeterministicGateway creates a gateway that answers after latency
func NewDeterministicGateway(latency time.Duration) *DeterministicGateway {
	return &DeterministicGateway{Latency: latency}
}

// Charge implements Gateway
func (g *DeterministicGateway) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	if g.Latency > 0 {
		timer := time.NewTimer(g.Latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ChargeResult{}, ctx.Err()
		}
	}

	if req.CardNumber == "" || strings.Trim(req.CardNumber, "0") == "" {
		return ChargeResult{Approved: false, DeclineReason: DeclineReasonSentinel}, nil
	}

	return ChargeResult{
		Approved:      true,
		TransactionID: "TXN-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12]),
	}, nil
}

// GetName implements Gateway
func (g *DeterministicGateway) GetName() string {
	return "deterministic"
}
