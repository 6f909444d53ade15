package messagesvc

import (
	"context"

	"github.com/google/uuid"

	"github.com/rzbill/courier/internal/envelope"
	"github.com/rzbill/courier/internal/subscriptions"
)

// SubscribeSink is implemented by transports to receive streamed envelopes.
type SubscribeSink interface {
	Send(envelope.StoredEnvelope) error
	Context() context.Context
	Flush() error
}

// SubscribeOptions tunes a subscription.
type SubscribeOptions struct {
	// Filter is an optional CEL expression evaluated per envelope. When
	// empty, every envelope is delivered.
	Filter string
	// Limit stops a streamed subscription after this many deliveries.
	// 0 streams until the subscription ends.
	Limit int
}

// ServiceStats summarizes the instance for health and admin endpoints.
type ServiceStats struct {
	Instance      uuid.UUID           `json:"instance"`
	Topics        int                 `json:"topics"`
	Subscriptions subscriptions.Stats `json:"subscriptions"`
}
