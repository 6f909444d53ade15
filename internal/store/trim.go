package store

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/rzbill/courier/internal/envelope"
	logpkg "github.com/rzbill/courier/pkg/log"
)

// TrimOptions tunes retention deletes.
type TrimOptions struct {
	// BatchLimit caps keys per committed batch. Default 1024.
	BatchLimit int
	// Throttle sleeps between batches.
	Throttle time.Duration
}

// TrimOlderThan deletes, in every topic, the envelopes whose timestamp is
// below cutoffNs. Because entries are ordered by timestamp this is always a
// head of the topic. Returns the number of envelopes deleted.
func (s *Store) TrimOlderThan(ctx context.Context, cutoffNs uint64, opts TrimOptions) (int, error) {
	topics, err := s.Topics()
	if err != nil {
		return 0, err
	}
	total := 0
	for _, t := range topics {
		if t.Count == 0 || t.MinTimestampNs >= cutoffNs {
			continue
		}
		n, err := s.trimTopic(ctx, t.Topic, cutoffNs, opts)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (s *Store) trimTopic(ctx context.Context, topic string, cutoffNs uint64, opts TrimOptions) (int, error) {
	if opts.BatchLimit <= 0 {
		opts.BatchLimit = 1024
	}
	unlock := s.lockTopics([]string{topic})
	defer unlock()

	meta, err := s.topicMeta(topic)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", envelope.ErrStorageFailure, err)
	}

	lower := keyTopicPrefix(topic)
	upper := keyEntry(topic, cutoffNs, 0)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", envelope.ErrStorageFailure, err)
	}
	defer iter.Close()

	deleted := 0
	var newest envelope.Cursor
	for ok := iter.First(); ok; {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		b := s.db.NewBatch()
		n := 0
		next := meta
		for ok && n < opts.BatchLimit {
			ts, seq, _ := parseEntrySuffix(iter.Key())
			if rec, okRec := decodeRecord(iter.Value()); okRec {
				next.Bytes -= min(next.Bytes, uint64(len(rec.Payload)))
			}
			if err := b.Delete(iter.Key(), nil); err != nil {
				b.Close()
				return deleted, fmt.Errorf("%w: %w", envelope.ErrStorageFailure, err)
			}
			next.Count--
			newest = envelope.Cursor{TimestampNs: ts, Seq: seq}
			n++
			ok = iter.Next()
		}
		if ok {
			next.MinTimestampNs, _, _ = parseEntrySuffix(iter.Key())
		} else if err := s.oldestFrom(topic, upper, &next); err != nil {
			b.Close()
			return deleted, err
		}
		if err := setTopicMeta(b, topic, next); err != nil {
			b.Close()
			return deleted, fmt.Errorf("%w: %w", envelope.ErrStorageFailure, err)
		}
		if err := s.db.CommitBatch(ctx, b); err != nil {
			b.Close()
			return deleted, fmt.Errorf("%w: %w", envelope.ErrStorageFailure, err)
		}
		b.Close()
		meta = next
		s.metaMu.Lock()
		s.metas[topic] = meta
		s.metaMu.Unlock()
		deleted += n
		s.archiver.EmitTrimRange(topic, n, newest)
		if ok && opts.Throttle > 0 {
			time.Sleep(opts.Throttle)
		}
	}
	if err := iter.Error(); err != nil {
		return deleted, fmt.Errorf("%w: %w", envelope.ErrStorageFailure, err)
	}
	if deleted > 0 {
		// Reclaim the tombstones left by the deleted head.
		if err := s.db.CompactRange(lower, upper); err != nil {
			s.logger.Warn("store.trim compaction failed", logpkg.Str("topic", topic), logpkg.Err(err))
		}
		s.logger.Debug("store.trim", logpkg.Str("topic", topic), logpkg.Int("deleted", deleted),
			logpkg.Uint64("remaining", meta.Count))
	}
	return deleted, nil
}

// oldestFrom sets m's timestamp bounds from the first entry at or after from.
func (s *Store) oldestFrom(topic string, from []byte, m *TopicMeta) error {
	if m.Count == 0 {
		m.MinTimestampNs, m.MaxTimestampNs = 0, 0
		return nil
	}
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: from, UpperBound: keyTopicEnd(topic)})
	if err != nil {
		return fmt.Errorf("%w: %w", envelope.ErrStorageFailure, err)
	}
	defer iter.Close()
	if iter.First() {
		if ts, _, ok := parseEntrySuffix(iter.Key()); ok {
			m.MinTimestampNs = ts
		}
	}
	return iter.Error()
}
