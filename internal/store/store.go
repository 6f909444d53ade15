package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"

	"github.com/rzbill/courier/internal/envelope"
	pebblestore "github.com/rzbill/courier/internal/storage/pebble"
	logpkg "github.com/rzbill/courier/pkg/log"
)

// AppendObserver learns about every committed sequence range. It is called
// while the range's topic locks are held, so per-topic calls arrive in
// append order.
type AppendObserver interface {
	Appended(first, last uint64, envs []envelope.StoredEnvelope)
}

// Options configures a Store.
type Options struct {
	Archiver ArchiverHook
	Logger   logpkg.Logger
}

// Store is the durable, topic-partitioned envelope store and its index.
type Store struct {
	db       *pebblestore.DB
	instance uuid.UUID
	archiver ArchiverHook
	logger   logpkg.Logger

	// seqMu is held from sequence assignment through commit, so a failed
	// commit hands its range to the next Append and ids stay gap-free.
	seqMu   sync.Mutex
	lastSeq atomic.Uint64

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	metaMu sync.RWMutex
	metas  map[string]TopicMeta

	obsMu    sync.RWMutex
	observer AppendObserver
}

// Open loads (or creates) the instance identity and recovers the sequencer
// from topic metadata.
func Open(db *pebblestore.DB, opts Options) (*Store, error) {
	if db == nil {
		return nil, errors.New("store: nil db")
	}
	s := &Store{
		db:       db,
		archiver: opts.Archiver,
		logger:   opts.Logger,
		locks:    make(map[string]*sync.Mutex),
		metas:    make(map[string]TopicMeta),
	}
	if s.archiver == nil {
		s.archiver = noopArchiver{}
	}
	if s.logger == nil {
		s.logger = logpkg.GetDefaultLogger()
	}
	s.logger = s.logger.WithComponent("store")

	raw, err := db.Get(keyInstance)
	switch {
	case err == nil && len(raw) == len(s.instance):
		copy(s.instance[:], raw)
	case err == nil || errors.Is(err, pebble.ErrNotFound):
		s.instance = uuid.New()
		if err := db.Set(keyInstance, s.instance[:]); err != nil {
			return nil, fmt.Errorf("store: persist instance id: %w", err)
		}
	default:
		return nil, fmt.Errorf("store: load instance id: %w", err)
	}

	topics, err := s.Topics()
	if err != nil {
		return nil, err
	}
	var last uint64
	for _, t := range topics {
		last = max(last, t.LastSeq)
	}
	s.lastSeq.Store(last)
	s.logger.Debug("store.open", logpkg.Str("instance", s.instance.String()),
		logpkg.Int("topics", len(topics)), logpkg.Uint64("last_seq", last))
	return s, nil
}

// Instance returns the store's identity, embedded in every cursor.
func (s *Store) Instance() uuid.UUID { return s.instance }

// SetObserver installs the append observer. Set it before the first Append.
func (s *Store) SetObserver(o AppendObserver) {
	s.obsMu.Lock()
	s.observer = o
	s.obsMu.Unlock()
}

// LastSeq returns the sequencer high-water mark: every id at or below it
// belongs to a committed envelope.
func (s *Store) LastSeq() uint64 { return s.lastSeq.Load() }

func (s *Store) topicLock(topic string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	mu, ok := s.locks[topic]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[topic] = mu
	}
	return mu
}

// lockTopics locks topics (sorted, distinct) and returns the unlock func.
func (s *Store) lockTopics(topics []string) func() {
	held := make([]*sync.Mutex, len(topics))
	for i, t := range topics {
		held[i] = s.topicLock(t)
		held[i].Lock()
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

func distinctTopics(envs []envelope.Envelope) []string {
	seen := make(map[string]struct{}, len(envs))
	out := make([]string, 0, len(envs))
	for _, e := range envs {
		if _, ok := seen[e.Topic]; ok {
			continue
		}
		seen[e.Topic] = struct{}{}
		out = append(out, e.Topic)
	}
	sort.Strings(out)
	return out
}

func (s *Store) notify(first, last uint64, envs []envelope.StoredEnvelope) {
	s.obsMu.RLock()
	o := s.observer
	s.obsMu.RUnlock()
	if o != nil {
		o.Appended(first, last, envs)
	}
}

// Append persists envs as one atomic batch, assigning sequence ids in input
// order. Either every envelope becomes visible to readers or none does.
// Appends touching the same topic serialize; disjoint topics run in parallel.
func (s *Store) Append(ctx context.Context, envs []envelope.Envelope) ([]envelope.StoredEnvelope, error) {
	if len(envs) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", envelope.ErrUnavailable, err)
	}

	topics := distinctTopics(envs)
	unlock := s.lockTopics(topics)
	defer unlock()

	metas := make(map[string]TopicMeta, len(topics))
	for _, t := range topics {
		m, err := s.topicMeta(t)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", envelope.ErrStorageFailure, err)
		}
		metas[t] = m
	}

	s.seqMu.Lock()
	first := s.lastSeq.Load() + 1
	last := first + uint64(len(envs)) - 1
	stored := make([]envelope.StoredEnvelope, len(envs))

	b := s.db.NewBatch()
	defer b.Close()
	err := func() error {
		for i, e := range envs {
			se := envelope.StoredEnvelope{
				Envelope: envelope.Envelope{
					Topic:       e.Topic,
					TimestampNs: e.TimestampNs,
					Message:     append([]byte(nil), e.Message...),
				},
				Seq: first + uint64(i),
			}
			stored[i] = se
			if err := b.Set(keyEntry(e.Topic, e.TimestampNs, se.Seq), encodeRecord(e.TimestampNs, se.Seq, e.Message), nil); err != nil {
				return err
			}
			m := metas[e.Topic]
			m.observe(se)
			metas[e.Topic] = m
		}
		for _, t := range topics {
			if err := setTopicMeta(b, t, metas[t]); err != nil {
				return err
			}
		}
		return s.db.CommitBatch(ctx, b)
	}()
	if err == nil {
		s.lastSeq.Store(last)
	}
	s.seqMu.Unlock()
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", envelope.ErrUnavailable, err)
		}
		s.logger.Error("store.append failed", logpkg.Err(err), logpkg.Int("envelopes", len(envs)))
		return nil, fmt.Errorf("%w: %w", envelope.ErrStorageFailure, err)
	}

	s.metaMu.Lock()
	for t, m := range metas {
		s.metas[t] = m
	}
	s.metaMu.Unlock()

	s.notify(first, last, stored)
	return stored, nil
}
