// Package subscriptions is Courier's subscription registry and dispatch
// engine.
//
// A Registry indexes live subscriptions by topic plus a firehose set. It is
// installed as the store's AppendObserver; every committed range is queued
// without blocking and a single dispatcher goroutine delivers ranges in
// sequence order, offering each envelope to the matching subscriptions'
// bounded queues. A subscription whose queue is full is closed with
// envelope.ErrBackpressureExceeded instead of slowing anyone else down.
//
// Registration reads the sequencer high-water mark while holding the
// registry lock, which makes it linearizable with appends: a subscription
// sees every envelope sequenced after that point and none before it.
package subscriptions
