package store

import (
	"bytes"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/rzbill/courier/internal/envelope"
	pebblestore "github.com/rzbill/courier/internal/storage/pebble"
)

// Span restricts a scan to part of a topic's (timestamp, seq) order.
// Nil bounds are open.
type Span struct {
	After      *envelope.Cursor
	AtOrAfter  *envelope.Cursor
	Before     *envelope.Cursor
	AtOrBefore *envelope.Cursor
}

func (sp Span) bounds(topic string) (lower, upper []byte) {
	lower, upper = keyTopicPrefix(topic), keyTopicEnd(topic)
	raise := func(k []byte) {
		if bytes.Compare(k, lower) > 0 {
			lower = k
		}
	}
	drop := func(k []byte) {
		if bytes.Compare(k, upper) < 0 {
			upper = k
		}
	}
	if c := sp.AtOrAfter; c != nil {
		raise(keyEntry(topic, c.TimestampNs, c.Seq))
	}
	if c := sp.After; c != nil {
		raise(keySuccessor(keyEntry(topic, c.TimestampNs, c.Seq)))
	}
	if c := sp.Before; c != nil {
		drop(keyEntry(topic, c.TimestampNs, c.Seq))
	}
	if c := sp.AtOrBefore; c != nil {
		drop(keySuccessor(keyEntry(topic, c.TimestampNs, c.Seq)))
	}
	return lower, upper
}

// Live returns a Reader over the current state of the store.
func (s *Store) Live() pebblestore.Reader { return s.db }

// Snapshot returns a frozen Reader. Callers must Close it.
func (s *Store) Snapshot() *pebblestore.Snapshot { return s.db.NewSnapshot() }

// Scan walks topic within span in (timestamp, seq) order, or the reverse
// when desc is set, returning at most limit envelopes (0 = no cap).
func (s *Store) Scan(r pebblestore.Reader, topic string, span Span, desc bool, limit int) ([]envelope.StoredEnvelope, error) {
	lower, upper := span.bounds(topic)
	if bytes.Compare(lower, upper) >= 0 {
		return nil, nil
	}
	iter, err := r.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", envelope.ErrStorageFailure, err)
	}

	var out []envelope.StoredEnvelope
	valid, step := iter.First, iter.Next
	if desc {
		valid, step = iter.Last, iter.Prev
	}
	for ok := valid(); ok && (limit == 0 || len(out) < limit); ok = step() {
		ts, seq, _ := parseEntrySuffix(iter.Key())
		rec, okRec := decodeRecord(iter.Value())
		if !okRec || rec.TimestampNs != ts || rec.Seq != seq {
			_ = iter.Close()
			return nil, fmt.Errorf("%w: corrupt record in %q at (%d,%d)", envelope.ErrStorageFailure, topic, ts, seq)
		}
		out = append(out, envelope.StoredEnvelope{
			Envelope: envelope.Envelope{Topic: topic, TimestampNs: ts, Message: rec.Payload},
			Seq:      seq,
		})
	}
	if err := iter.Error(); err != nil {
		_ = iter.Close()
		return nil, fmt.Errorf("%w: %w", envelope.ErrStorageFailure, err)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("%w: %w", envelope.ErrStorageFailure, err)
	}
	return out, nil
}

// ReadRange resumes strictly after `after` in the requested direction,
// returning at most limit envelopes. A nil cursor starts at the beginning
// (ascending) or the end (descending).
func (s *Store) ReadRange(r pebblestore.Reader, topic string, after *envelope.Cursor, dir envelope.Direction, limit int) ([]envelope.StoredEnvelope, error) {
	var span Span
	if dir.Descending() {
		span.Before = after
	} else {
		span.After = after
	}
	return s.Scan(r, topic, span, dir.Descending(), limit)
}
