package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/rzbill/courier/internal/envelope"
	pebblestore "github.com/rzbill/courier/internal/storage/pebble"
)

// TopicMeta is the per-topic summary kept next to the entries and updated
// in the same batch as every append.
type TopicMeta struct {
	Count          uint64 `json:"count"`
	Bytes          uint64 `json:"bytes"`
	LastSeq        uint64 `json:"lastSeq"`
	MinTimestampNs uint64 `json:"minTimestampNs"`
	MaxTimestampNs uint64 `json:"maxTimestampNs"`
}

// TopicInfo is a named TopicMeta.
type TopicInfo struct {
	Topic string `json:"topic"`
	TopicMeta
}

func (m *TopicMeta) observe(e envelope.StoredEnvelope) {
	if m.Count == 0 || e.TimestampNs < m.MinTimestampNs {
		m.MinTimestampNs = e.TimestampNs
	}
	if m.Count == 0 || e.TimestampNs > m.MaxTimestampNs {
		m.MaxTimestampNs = e.TimestampNs
	}
	m.Count++
	m.Bytes += uint64(len(e.Message))
	if e.Seq > m.LastSeq {
		m.LastSeq = e.Seq
	}
}

// topicMeta returns the cached meta for topic, loading it on first use.
// Callers hold the topic lock.
func (s *Store) topicMeta(topic string) (TopicMeta, error) {
	s.metaMu.RLock()
	m, ok := s.metas[topic]
	s.metaMu.RUnlock()
	if ok {
		return m, nil
	}
	m, _, err := readTopicMeta(s.db, topic)
	if err != nil {
		return TopicMeta{}, err
	}
	s.metaMu.Lock()
	s.metas[topic] = m
	s.metaMu.Unlock()
	return m, nil
}

func readTopicMeta(r pebblestore.Reader, topic string) (TopicMeta, bool, error) {
	raw, err := r.Get(keyTopicMeta(topic))
	if errors.Is(err, pebble.ErrNotFound) {
		return TopicMeta{}, false, nil
	}
	if err != nil {
		return TopicMeta{}, false, err
	}
	var m TopicMeta
	if err := json.Unmarshal(raw, &m); err != nil {
		return TopicMeta{}, false, fmt.Errorf("decode topic meta %q: %w", topic, err)
	}
	return m, true, nil
}

func setTopicMeta(b *pebble.Batch, topic string, m TopicMeta) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return b.Set(keyTopicMeta(topic), raw, nil)
}

// TopicStats returns the summary for topic; ok is false for unknown topics.
func (s *Store) TopicStats(topic string) (TopicMeta, bool, error) {
	s.metaMu.RLock()
	m, cached := s.metas[topic]
	s.metaMu.RUnlock()
	if cached && m.LastSeq > 0 {
		return m, true, nil
	}
	m, ok, err := readTopicMeta(s.db, topic)
	if err != nil {
		return TopicMeta{}, false, fmt.Errorf("%w: %w", envelope.ErrStorageFailure, err)
	}
	return m, ok, nil
}

// Topics lists every topic that has ever been appended to, in name order.
func (s *Store) Topics() ([]TopicInfo, error) {
	upper := append([]byte(nil), topicMetaPrefix...)
	upper[len(upper)-1]++
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: topicMetaPrefix, UpperBound: upper})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", envelope.ErrStorageFailure, err)
	}
	defer iter.Close()

	var out []TopicInfo
	for ok := iter.First(); ok; ok = iter.Next() {
		var m TopicMeta
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			return nil, fmt.Errorf("%w: decode topic meta: %w", envelope.ErrStorageFailure, err)
		}
		out = append(out, TopicInfo{Topic: string(iter.Key()[len(topicMetaPrefix):]), TopicMeta: m})
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", envelope.ErrStorageFailure, err)
	}
	return out, nil
}
