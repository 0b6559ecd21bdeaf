package feed

import (
	"context"

	"github.com/shopspring/decimal"

	"credit-automation/internal/domain"
	"credit-automation/internal/trigger"
)

// WSClient defines the streaming interface of the automation node.
type WSClient interface {
	// SubscribeReadings streams updates for one trigger kind and subject.
	SubscribeReadings(ctx context.Context, filter ReadingFilter) (<-chan Reading, error)

	// Close closes the WebSocket connection.
	Close() error
}

// ReadingFilter selects the readings a subscription receives.
type ReadingFilter struct {
	Kind    domain.TriggerKind
	Subject trigger.Subject
}

// Reading is one pushed value.
type Reading struct {
	Kind      domain.TriggerKind
	Subject   trigger.Subject
	Value     decimal.Decimal
	Timestamp int64 // unix seconds at the node
}
