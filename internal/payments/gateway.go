package payments

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
)

// RefundStatus is the provider-neutral state of a refund.
type RefundStatus string

const (
	RefundPending   RefundStatus = "pending"
	RefundSucceeded RefundStatus = "succeeded"
	RefundFailed    RefundStatus = "failed"
)

// ErrUnsupportedProvider is returned when no gateway is registered for the requested provider.
var ErrUnsupportedProvider = errors.New("payments: unsupported provider")

// RefundRequest describes a refund against a captured payment intent.
type RefundRequest struct {
	Provider string
	IntentID string
	// Amount refunds the full intent when nil.
	Amount         *int64
	Reason         string
	IdempotencyKey string
	Metadata       map[string]string
}

// RefundResult is the provider's answer to a refund request.
type RefundResult struct {
	Provider string
	RefundID string
	IntentID string
	Status   RefundStatus
	Amount   int64
}

// RefundGateway executes refunds with a payment provider.
type RefundGateway interface {
	Refund(ctx context.Context, req RefundRequest) (RefundResult, error)
}

// Router dispatches refunds to the gateway registered for the request's provider.
type Router struct {
	gateways        map[string]RefundGateway
	defaultProvider string
}

var _ RefundGateway = (*Router)(nil)

// NewRouter registers gateways by provider name. Stripe becomes the default when present.
func NewRouter(gateways map[string]RefundGateway) (*Router, error) {
	if len(gateways) == 0 {
		return nil, errors.New("payments: at least one gateway is required")
	}
	registered := make(map[string]RefundGateway, len(gateways))
	for name, gateway := range gateways {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" || gateway == nil {
			return nil, fmt.Errorf("payments: invalid gateway registration for key %q", name)
		}
		registered[key] = gateway
	}
	r := &Router{gateways: registered}
	if _, ok := registered["stripe"]; ok {
		r.defaultProvider = "stripe"
	}
	return r, nil
}

// Refund forwards req to the matching gateway.
func (r *Router) Refund(ctx context.Context, req RefundRequest) (RefundResult, error) {
	if r == nil {
		return RefundResult{}, errors.New("payments: router is nil")
	}
	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	if provider == "" {
		provider = r.defaultProvider
	}
	gateway, ok := r.gateways[provider]
	if !ok {
		return RefundResult{}, fmt.Errorf("%w: %q", ErrUnsupportedProvider, req.Provider)
	}
	req.Metadata = maps.Clone(req.Metadata)
	result, err := gateway.Refund(ctx, req)
	if err != nil {
		return RefundResult{}, err
	}
	if result.Provider == "" {
		result.Provider = provider
	}
	return result, nil
}
