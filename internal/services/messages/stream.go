package messagesvc

import (
	"context"

	"github.com/rzbill/courier/internal/envelope"
	"github.com/rzbill/courier/internal/subscriptions"
	"github.com/rzbill/courier/pkg/id"
)

// Stream is a live subscription with its optional filter applied.
type Stream struct {
	sub    *subscriptions.Subscription
	filter celFilter
	stop   func() bool
}

// ID returns the subscription id.
func (st *Stream) ID() id.ID { return st.sub.ID() }

// Next blocks for the next envelope that passes the filter. After the
// subscription ends, queued envelopes drain first and then the terminal
// error is returned.
func (st *Stream) Next(ctx context.Context) (envelope.StoredEnvelope, error) {
	for {
		e, err := st.sub.Next(ctx)
		if err != nil {
			return e, err
		}
		if st.filter.Eval(e) {
			return e, nil
		}
	}
}

// State returns the subscription lifecycle state.
func (st *Stream) State() subscriptions.State { return st.sub.State() }

// Err returns the terminal error, if any.
func (st *Stream) Err() error { return st.sub.Err() }

// Done is closed once the subscription reaches a terminal state.
func (st *Stream) Done() <-chan struct{} { return st.sub.Done() }

// Close ends the subscription as closed by the client.
func (st *Stream) Close() {
	st.stop()
	st.sub.Close()
}
