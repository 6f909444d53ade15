package subscriptions

import (
	"context"
	"fmt"
	"sync"

	"github.com/rzbill/courier/internal/envelope"
	"github.com/rzbill/courier/pkg/id"
)

// State is the lifecycle state of a Subscription.
type State int32

const (
	StateRegistered State = iota
	StateStreaming
	StateClosedByClient
	StateClosedByServer
	StateClosedOnError
)

func (s State) String() string {
	switch s {
	case StateRegistered:
		return "registered"
	case StateStreaming:
		return "streaming"
	case StateClosedByClient:
		return "closed_by_client"
	case StateClosedByServer:
		return "closed_by_server"
	case StateClosedOnError:
		return "closed_on_error"
	}
	return "unknown"
}

// Terminal reports whether s is one of the closed states.
func (s State) Terminal() bool { return s >= StateClosedByClient }

// Filter selects what a subscription receives: either every topic (All) or
// the listed ones.
type Filter struct {
	All    bool
	Topics []string
}

// Subscription is a live, order-preserving feed of envelopes appended after
// registration. Consume with Next or C; release with Close.
type Subscription struct {
	id     id.ID
	filter Filter
	regSeq uint64
	ch     chan envelope.StoredEnvelope
	reg    *Registry

	mu     sync.Mutex
	state  State
	err    error
	closed bool
	done   chan struct{}
}

// ID identifies the subscription in logs and stats.
func (s *Subscription) ID() id.ID { return s.id }

// Filter returns the subscription's topic filter.
func (s *Subscription) Filter() Filter { return s.filter }

// C exposes the outbound queue and marks the subscription streaming. The
// channel is closed when the subscription ends; Err then explains why.
func (s *Subscription) C() <-chan envelope.StoredEnvelope {
	s.markStreaming()
	return s.ch
}

// Done is closed once the subscription has reached a terminal state and left
// the registry.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Next blocks for the next envelope. Envelopes already queued are still
// returned after a server-side close; afterwards Next returns Err().
func (s *Subscription) Next(ctx context.Context) (envelope.StoredEnvelope, error) {
	s.markStreaming()
	select {
	case e, ok := <-s.ch:
		if !ok {
			return envelope.StoredEnvelope{}, s.Err()
		}
		return e, nil
	case <-ctx.Done():
		return envelope.StoredEnvelope{}, ctx.Err()
	}
}

// State returns the current lifecycle state.
func (s *Subscription) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns why the subscription ended, or nil while it is live.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close ends the subscription on behalf of the client. Idempotent.
func (s *Subscription) Close() {
	s.closeWith(StateClosedByClient, envelope.ErrSubscriptionClosed)
}

func (s *Subscription) markStreaming() {
	s.mu.Lock()
	if s.state == StateRegistered {
		s.state = StateStreaming
	}
	s.mu.Unlock()
}

// offer enqueues e without blocking. It reports false when the queue is full.
func (s *Subscription) offer(e envelope.StoredEnvelope) (delivered, full bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, false
	}
	select {
	case s.ch <- e:
		return true, false
	default:
		return false, true
	}
}

// closeWith moves the subscription to a terminal state, closes its queue and
// removes it from the registry. Only the first call has any effect.
func (s *Subscription) closeWith(state State, err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.state = state
	s.err = err
	close(s.ch)
	s.mu.Unlock()

	if s.reg != nil {
		s.reg.remove(s, state, err)
	}
	close(s.done)
}

func (s *Subscription) String() string {
	if s.filter.All {
		return fmt.Sprintf("sub(%s all)", s.id)
	}
	return fmt.Sprintf("sub(%s topics=%d)", s.id, len(s.filter.Topics))
}
