// Package payment is the boundary to the payment provider. The only
// implementation is simulated: charges always succeed and produce a
// reference plus a raw provider payload, the same shape a real gateway
// client would return.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrChargeDeclined marks a charge the provider rejected.
var ErrChargeDeclined = errors.New("charge declined")

// Receipt is the provider's answer to a charge.
type Receipt struct {
	Reference  string
	Succeeded  bool
	RawPayload string
}

// Gateway charges a user. Implementations must not mutate application
// state; the caller records the receipt inside its own transaction.
type Gateway interface {
	Charge(ctx context.Context, userID, amountCents int64, description string) (*Receipt, error)
}

type Config struct {
	Method string
}

// SimulatedGateway fabricates successful charges.
type SimulatedGateway struct {
	cfg Config
}

func NewSimulatedGateway(cfg Config) *SimulatedGateway {
	if cfg.Method == "" {
		cfg.Method = "card"
	}
	return &SimulatedGateway{cfg: cfg}
}

func (g *SimulatedGateway) Charge(ctx context.Context, userID, amountCents int64, description string) (*Receipt, error) {
	payload, err := json.Marshal(map[string]any{
		"status":       "success",
		"method":       g.cfg.Method,
		"amount_cents": amountCents,
		"description":  description,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	ref := fmt.Sprintf("SIM_%s_%s", time.Now().UTC().Format("20060102150405"), uuid.NewString())
	return &Receipt{
		Reference:  ref,
		Succeeded:  true,
		RawPayload: string(payload),
	}, nil
}
