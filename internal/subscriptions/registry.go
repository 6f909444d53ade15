package subscriptions

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rzbill/courier/internal/envelope"
	"github.com/rzbill/courier/pkg/id"
	logpkg "github.com/rzbill/courier/pkg/log"
)

// DefaultBuffer is the per-subscription queue capacity.
const DefaultBuffer = 1024

// Observer receives lifecycle and delivery counts. Optional.
type Observer interface {
	Opened(all bool)
	Closed(all bool, state State, err error)
	Delivered(n int)
}

type noopObserver struct{}

func (noopObserver) Opened(bool)               {}
func (noopObserver) Closed(bool, State, error) {}
func (noopObserver) Delivered(int)             {}

// Options configures a Registry.
type Options struct {
	// HighWater returns the store's sequencer high-water mark. A new
	// subscription receives exactly the envelopes with a greater sequence.
	HighWater func() uint64
	// Buffer is the per-subscription queue capacity.
	Buffer   int
	Logger   logpkg.Logger
	Observer Observer
}

// Registry tracks live subscriptions and fans appended envelopes out to them.
// It implements store.AppendObserver.
type Registry struct {
	highWater func() uint64
	buffer    int
	logger    logpkg.Logger
	observer  Observer
	ids       *id.Generator

	mu      sync.RWMutex
	byTopic map[string]map[id.ID]*Subscription
	all     map[id.ID]*Subscription
	closed  bool

	d *dispatcher
}

// NewRegistry creates a Registry and starts its dispatcher. The dispatcher
// expects the next appended range to start right after HighWater().
func NewRegistry(opts Options) (*Registry, error) {
	if opts.HighWater == nil {
		return nil, errors.New("subscriptions: HighWater is required")
	}
	r := &Registry{
		highWater: opts.HighWater,
		buffer:    opts.Buffer,
		logger:    opts.Logger,
		observer:  opts.Observer,
		ids:       id.NewGenerator(),
		byTopic:   make(map[string]map[id.ID]*Subscription),
		all:       make(map[id.ID]*Subscription),
	}
	if r.buffer <= 0 {
		r.buffer = DefaultBuffer
	}
	if r.logger == nil {
		r.logger = logpkg.GetDefaultLogger()
	}
	r.logger = r.logger.WithComponent("subscriptions")
	if r.observer == nil {
		r.observer = noopObserver{}
	}
	r.d = newDispatcher(r, opts.HighWater()+1)
	go r.d.run()
	return r, nil
}

// Register creates a subscription for filter. Topics are deduplicated; an
// All filter ignores them.
func (r *Registry) Register(filter Filter) (*Subscription, error) {
	if !filter.All {
		filter.Topics = dedupe(filter.Topics)
		if len(filter.Topics) == 0 {
			return nil, fmt.Errorf("%w: no topics", envelope.ErrInvalidArgument)
		}
	} else {
		filter.Topics = nil
	}
	s := &Subscription{
		id:     r.ids.Next(),
		filter: filter,
		ch:     make(chan envelope.StoredEnvelope, r.buffer),
		reg:    r,
		state:  StateRegistered,
		done:   make(chan struct{}),
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: registry is shut down", envelope.ErrUnavailable)
	}
	if filter.All {
		r.all[s.id] = s
	} else {
		for _, t := range filter.Topics {
			set, ok := r.byTopic[t]
			if !ok {
				set = make(map[id.ID]*Subscription)
				r.byTopic[t] = set
			}
			set[s.id] = s
		}
	}
	// Read under the write lock: the dispatcher cannot be mid-delivery, so
	// every range at or below regSeq was either delivered before insertion
	// or will be skipped, and every later range is delivered.
	s.regSeq = r.highWater()
	r.mu.Unlock()

	r.observer.Opened(filter.All)
	r.logger.Debug("subscriptions.register", logpkg.Str("id", s.id.String()),
		logpkg.Bool("all", filter.All), logpkg.Int("topics", len(filter.Topics)), logpkg.Uint64("reg_seq", s.regSeq))
	return s, nil
}

// remove drops s from the index. Called once by Subscription.closeWith.
func (r *Registry) remove(s *Subscription, state State, err error) {
	r.mu.Lock()
	if s.filter.All {
		delete(r.all, s.id)
	} else {
		for _, t := range s.filter.Topics {
			if set, ok := r.byTopic[t]; ok {
				delete(set, s.id)
				if len(set) == 0 {
					delete(r.byTopic, t)
				}
			}
		}
	}
	r.mu.Unlock()

	r.observer.Closed(s.filter.All, state, err)
	if errors.Is(err, envelope.ErrBackpressureExceeded) {
		r.logger.Warn("subscriptions.dropped", logpkg.Str("id", s.id.String()), logpkg.Err(err))
		return
	}
	r.logger.Debug("subscriptions.closed", logpkg.Str("id", s.id.String()), logpkg.Str("state", state.String()),
		logpkg.Dur("lifetime", time.Since(s.id.Time())))
}

// Appended implements store.AppendObserver.
func (r *Registry) Appended(first, last uint64, envs []envelope.StoredEnvelope) {
	r.d.enqueue(batch{first: first, last: last, envs: envs})
}

// Shutdown stops dispatch and closes every live subscription with
// StateClosedByServer. Further registrations fail with ErrUnavailable.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	live := make([]*Subscription, 0, len(r.all))
	for _, s := range r.all {
		live = append(live, s)
	}
	for _, set := range r.byTopic {
		for _, s := range set {
			live = append(live, s)
		}
	}
	r.mu.Unlock()

	r.d.stop()
	for _, s := range live {
		s.closeWith(StateClosedByServer, fmt.Errorf("%w: server shutting down", envelope.ErrUnavailable))
	}
}

// Stats is a point-in-time count of live subscriptions.
type Stats struct {
	Firehose int            `json:"firehose"`
	Topics   map[string]int `json:"topics"`
}

// Stats returns live subscription counts per topic and for the firehose.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st := Stats{Firehose: len(r.all), Topics: make(map[string]int, len(r.byTopic))}
	for t, set := range r.byTopic {
		st.Topics[t] = len(set)
	}
	return st
}

// deliver fans one committed range out. Subscriptions whose queue is full
// are closed after the registry lock is released.
func (r *Registry) deliver(envs []envelope.StoredEnvelope) {
	var overflow []*Subscription
	delivered := 0

	r.mu.RLock()
	for _, e := range envs {
		for _, s := range r.byTopic[e.Topic] {
			if ok, full := r.offerTo(s, e); ok {
				delivered++
			} else if full {
				overflow = append(overflow, s)
			}
		}
		for _, s := range r.all {
			if ok, full := r.offerTo(s, e); ok {
				delivered++
			} else if full {
				overflow = append(overflow, s)
			}
		}
	}
	r.mu.RUnlock()

	if delivered > 0 {
		r.observer.Delivered(delivered)
	}
	for _, s := range overflow {
		s.closeWith(StateClosedOnError, fmt.Errorf("%w: queue of %d full", envelope.ErrBackpressureExceeded, r.buffer))
	}
}

func (r *Registry) offerTo(s *Subscription, e envelope.StoredEnvelope) (bool, bool) {
	if e.Seq <= s.regSeq {
		return false, false
	}
	return s.offer(e)
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := append([]string(nil), in...)
	sort.Strings(out)
	j := 0
	for i := range out {
		if i == 0 || out[i] != out[j-1] {
			out[j] = out[i]
			j++
		}
	}
	return out[:j]
}
