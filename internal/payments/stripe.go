package payments

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// StripeLogger defines the logging contract for Stripe operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripeRefundAPI interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

// StripeConfig configures the Stripe refund gateway.
type StripeConfig struct {
	APIKey    string
	AccountID string
	Backends  *stripe.Backends
	Logger    StripeLogger
	refunds   stripeRefundAPI
}

// StripeGateway issues refunds through the Stripe Refunds API.
type StripeGateway struct {
	refunds stripeRefundAPI
	account string
	logger  StripeLogger
}

var _ RefundGateway = (*StripeGateway)(nil)

// NewStripeGateway constructs a Stripe-backed RefundGateway.
func NewStripeGateway(cfg StripeConfig) (*StripeGateway, error) {
	refunds := cfg.refunds
	if refunds == nil {
		apiKey := strings.TrimSpace(cfg.APIKey)
		if apiKey == "" {
			return nil, errors.New("stripe: api key is required")
		}
		refunds = client.New(apiKey, cfg.Backends).Refunds
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &StripeGateway{
		refunds: refunds,
		account: strings.TrimSpace(cfg.AccountID),
		logger:  logger,
	}, nil
}

// Refund creates a refund for the payment intent in req.
func (g *StripeGateway) Refund(ctx context.Context, req RefundRequest) (RefundResult, error) {
	if g == nil {
		return RefundResult{}, errors.New("stripe: gateway is nil")
	}
	intentID := strings.TrimSpace(req.IntentID)
	if intentID == "" {
		return RefundResult{}, errors.New("stripe: payment intent id is required")
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(intentID),
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if g.account != "" {
		params.SetStripeAccount(g.account)
	}
	if req.Amount != nil {
		params.Amount = stripe.Int64(*req.Amount)
	}
	if reason := mapStripeRefundReason(req.Reason); reason != "" {
		params.Reason = stripe.String(reason)
	}
	if len(req.Metadata) > 0 {
		params.Metadata = maps.Clone(req.Metadata)
	}

	refund, err := g.refunds.New(params)
	if err != nil {
		g.logger(ctx, "payments.stripe.refund.failed", map[string]any{
			"paymentIntent": intentID,
			"error":         err.Error(),
		})
		return RefundResult{}, fmt.Errorf("stripe: refund payment intent: %w", err)
	}

	if refund == nil {
		return RefundResult{}, errors.New("stripe: empty refund response")
	}
	result := RefundResult{
		Provider: "stripe",
		RefundID: refund.ID,
		IntentID: intentID,
		Status:   stripeRefundStatus(refund.Status),
		Amount:   refund.Amount,
	}
	g.logger(ctx, "payments.stripe.intent.refunded", map[string]any{
		"paymentIntent": intentID,
		"refundId":      result.RefundID,
		"status":        string(result.Status),
	})
	return result, nil
}

func stripeRefundStatus(status stripe.RefundStatus) RefundStatus {
	switch status {
	case stripe.RefundStatusSucceeded:
		return RefundSucceeded
	case stripe.RefundStatusFailed, stripe.RefundStatusCanceled:
		return RefundFailed
	default:
		return RefundPending
	}
}

// mapStripeRefundReason keeps only the reasons Stripe accepts; free text is dropped.
func mapStripeRefundReason(reason string) string {
	switch strings.ToLower(strings.TrimSpace(reason)) {
	case string(stripe.RefundReasonDuplicate):
		return string(stripe.RefundReasonDuplicate)
	case string(stripe.RefundReasonFraudulent):
		return string(stripe.RefundReasonFraudulent)
	case string(stripe.RefundReasonRequestedByCustomer), "customer_request", "changed_mind":
		return string(stripe.RefundReasonRequestedByCustomer)
	default:
		return ""
	}
}
