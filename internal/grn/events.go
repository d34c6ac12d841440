package grn

import (
	"context"
	"time"
)

// GRNCreatedEvent announces a committed receipt to downstream consumers.
type GRNCreatedEvent struct {
	GRNID         int64     `json:"grn_id"`
	Number        string    `json:"number"`
	Type          Type      `json:"type"`
	Status        Status    `json:"status"`
	POID          *int64    `json:"purchase_order_id,omitempty"`
	AcceptedUnits int64     `json:"accepted_units"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// IntegrationHandler receives receipt events after commit. Implementations
// must tolerate at-least-once delivery.
type IntegrationHandler interface {
	GRNCreated(ctx context.Context, event GRNCreatedEvent) error
}

// IntegrationHandlers fans an event out to several handlers in order.
type IntegrationHandlers []IntegrationHandler

func (hs IntegrationHandlers) GRNCreated(ctx context.Context, event GRNCreatedEvent) error {
	for _, h := range hs {
		if h == nil {
			continue
		}
		if err := h.GRNCreated(ctx, event); err != nil {
			return err
		}
	}
	return nil
}
