package messagesvc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rzbill/courier/internal/envelope"
	"github.com/rzbill/courier/internal/metrics"
	"github.com/rzbill/courier/internal/query"
	"github.com/rzbill/courier/internal/runtime"
	"github.com/rzbill/courier/internal/store"
	"github.com/rzbill/courier/internal/subscriptions"
	logpkg "github.com/rzbill/courier/pkg/log"
)

// flushEvery forces a sink flush after this many unflushed sends.
const flushEvery = 64

// Options tunes a Service. Zero values fall back to the runtime config.
type Options struct {
	Logger logpkg.Logger
	// FlushWindow coalesces stream flushes for up to this window.
	FlushWindow time.Duration
	// StreamBuffer is the writer queue between a subscription and its sink.
	StreamBuffer int
	// Now overrides the clock used by retention.
	Now func() time.Time
}

// Service is the MessageApi core: it validates requests and routes them to
// the envelope store, the query engine and the subscription registry.
//
// Tunables (config file or COURIER_* env):
//   - subscriberFlushMs: when >0, the stream writer coalesces sends for up
//     to the window before flushing.
//   - subscriberBuffer: queue capacity of each subscription and its writer.
//   - retentionAgeMs / retentionIntervalMs: background trimming of old
//     envelopes; disabled when the age is 0.
type Service struct {
	rt       *runtime.Runtime
	st       *store.Store
	engine   *query.Engine
	registry *subscriptions.Registry
	metrics  *metrics.Metrics
	limits   envelope.Limits
	logger   logpkg.Logger

	flushWindow time.Duration
	subBufLen   int

	retentionAge      time.Duration
	retentionInterval time.Duration
	now               func() time.Time

	closeOnce sync.Once
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New returns a Service over rt and starts the retention loop when enabled.
func New(rt *runtime.Runtime, opts Options) (*Service, error) {
	cfg := rt.Config()
	limits, err := cfg.Limits()
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.GetDefaultLogger()
	}
	s := &Service{
		rt:                rt,
		st:                rt.Store(),
		engine:            rt.Engine(),
		registry:          rt.Registry(),
		metrics:           rt.Metrics(),
		limits:            limits,
		logger:            logger.WithComponent("messages"),
		flushWindow:       opts.FlushWindow,
		subBufLen:         opts.StreamBuffer,
		retentionAge:      cfg.RetentionAge(),
		retentionInterval: cfg.RetentionInterval(),
		now:               opts.Now,
	}
	if s.flushWindow == 0 {
		s.flushWindow = cfg.SubscriberFlushWindow()
	}
	if s.subBufLen <= 0 {
		s.subBufLen = cfg.SubscriberBuffer
	}
	if s.subBufLen <= 0 {
		s.subBufLen = subscriptions.DefaultBuffer
	}
	if s.now == nil {
		s.now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	if s.retentionAge > 0 {
		s.wg.Add(1)
		go s.retentionLoop(ctx)
	}
	return s, nil
}

// Limits returns the request limits in force.
func (s *Service) Limits() envelope.Limits { return s.limits }

// Publish validates and durably appends envs as one atomic batch. On return
// every envelope is visible to Query and has been handed to the dispatcher.
func (s *Service) Publish(ctx context.Context, envs []envelope.Envelope) ([]envelope.StoredEnvelope, error) {
	if err := s.limits.ValidateEnvelopes(envs); err != nil {
		return nil, err
	}
	stored, err := s.st.Append(ctx, envs)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.ObservePublish(len(stored))
	}
	s.logger.Debug("messages.publish", logpkg.Int("envelopes", len(stored)),
		logpkg.Uint64("first_seq", stored[0].Seq), logpkg.Uint64("last_seq", stored[len(stored)-1].Seq))
	return stored, nil
}

// Subscribe opens a live subscription to topics. Only envelopes published
// after it returns are delivered. The subscription ends when ctx is done or
// the returned Stream is closed.
func (s *Service) Subscribe(ctx context.Context, topics []string, opts SubscribeOptions) (*Stream, error) {
	if err := s.limits.ValidateTopics(topics); err != nil {
		return nil, err
	}
	return s.open(ctx, subscriptions.Filter{Topics: topics}, opts)
}

// SubscribeAll opens a firehose subscription across every topic.
func (s *Service) SubscribeAll(ctx context.Context, opts SubscribeOptions) (*Stream, error) {
	return s.open(ctx, subscriptions.Filter{All: true}, opts)
}

func (s *Service) open(ctx context.Context, f subscriptions.Filter, opts SubscribeOptions) (*Stream, error) {
	filter, err := newCELFilter(opts.Filter)
	if err != nil {
		return nil, err
	}
	sub, err := s.registry.Register(f)
	if err != nil {
		return nil, err
	}
	return &Stream{sub: sub, filter: filter, stop: context.AfterFunc(ctx, sub.Close)}, nil
}

// StreamSubscribe subscribes and forwards envelopes to sink until the
// subscription ends, sink fails, ctx is done or opts.Limit is reached.
// A per-subscriber writer decouples a slow transport from the dispatcher.
func (s *Service) StreamSubscribe(ctx context.Context, topics []string, all bool, opts SubscribeOptions, sink SubscribeSink) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var stream *Stream
	var err error
	if all {
		stream, err = s.SubscribeAll(ctx, opts)
	} else {
		stream, err = s.Subscribe(ctx, topics, opts)
	}
	if err != nil {
		return err
	}
	defer stream.Close()

	outCh := make(chan envelope.StoredEnvelope, s.subBufLen)
	var sendErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		pending := 0
		var ticker *time.Timer
		if s.flushWindow > 0 {
			ticker = time.NewTimer(s.flushWindow)
			defer ticker.Stop()
		}
		flush := func() {
			if pending > 0 {
				if err := sink.Flush(); err != nil && sendErr == nil {
					sendErr = err
					cancel()
				}
				pending = 0
			}
		}
		for {
			select {
			case e, ok := <-outCh:
				if !ok {
					flush()
					return
				}
				if sendErr != nil {
					continue
				}
				if err := sink.Send(e); err != nil {
					sendErr = err
					cancel()
					continue
				}
				pending++
				if s.flushWindow == 0 || pending >= flushEvery {
					flush()
					if ticker != nil {
						if !ticker.Stop() {
							select {
							case <-ticker.C:
							default:
							}
						}
						ticker.Reset(s.flushWindow)
					}
				}
			case <-sink.Context().Done():
				return
			case <-func() <-chan time.Time {
				if ticker != nil {
					return ticker.C
				}
				return nil
			}():
				flush()
				ticker.Reset(s.flushWindow)
			}
		}
	}()

	s.logger.Debug("messages.subscribe", logpkg.Str("id", stream.ID().String()),
		logpkg.Bool("all", all), logpkg.Int("topics", len(topics)))
	loopErr := func() error {
		delivered := 0
		for {
			e, err := stream.Next(ctx)
			if err != nil {
				return err
			}
			select {
			case outCh <- e:
			case <-ctx.Done():
				return ctx.Err()
			}
			delivered++
			if opts.Limit > 0 && delivered >= opts.Limit {
				return nil
			}
		}
	}()
	close(outCh)
	wg.Wait()

	switch {
	case sendErr != nil:
		return sendErr
	case loopErr == nil:
		return nil
	case errors.Is(loopErr, envelope.ErrSubscriptionClosed), errors.Is(loopErr, context.Canceled), errors.Is(loopErr, context.DeadlineExceeded):
		// caller went away or closed the stream
		return nil
	default:
		s.logger.Debug("messages.subscribe ended", logpkg.Str("id", stream.ID().String()), logpkg.Err(loopErr))
		return loopErr
	}
}

// Query reads one page of a topic.
func (s *Service) Query(ctx context.Context, spec envelope.QuerySpec) (envelope.QueryResult, error) {
	res, err := s.engine.Query(ctx, spec)
	if s.metrics != nil {
		s.metrics.ObserveQuery("query", err)
	}
	return res, err
}

// BatchQuery evaluates specs against one consistent snapshot. Per-spec
// failures are reported in the matching BatchResult.
func (s *Service) BatchQuery(ctx context.Context, specs []envelope.QuerySpec) ([]envelope.BatchResult, error) {
	res, err := s.engine.BatchQuery(ctx, specs)
	if s.metrics != nil {
		s.metrics.ObserveQuery("batch", err)
	}
	return res, err
}

// Topics lists every topic with its metadata.
func (s *Service) Topics(ctx context.Context) ([]store.TopicInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", envelope.ErrUnavailable, err)
	}
	return s.st.Topics()
}

// TopicStats returns a topic's metadata. An unknown topic yields zero counts.
func (s *Service) TopicStats(ctx context.Context, topic string) (store.TopicInfo, error) {
	if err := s.limits.ValidateTopic(topic); err != nil {
		return store.TopicInfo{}, err
	}
	if err := ctx.Err(); err != nil {
		return store.TopicInfo{}, fmt.Errorf("%w: %w", envelope.ErrUnavailable, err)
	}
	m, _, err := s.st.TopicStats(topic)
	if err != nil {
		return store.TopicInfo{}, err
	}
	return store.TopicInfo{Topic: topic, TopicMeta: m}, nil
}

// Stats summarizes the instance.
func (s *Service) Stats(ctx context.Context) (ServiceStats, error) {
	topics, err := s.Topics(ctx)
	if err != nil {
		return ServiceStats{}, err
	}
	return ServiceStats{
		Instance:      s.st.Instance(),
		Topics:        len(topics),
		Subscriptions: s.registry.Stats(),
	}, nil
}

// CheckHealth reports whether storage is usable.
func (s *Service) CheckHealth(ctx context.Context) error {
	if err := s.rt.CheckHealth(ctx); err != nil {
		return fmt.Errorf("%w: %w", envelope.ErrUnavailable, err)
	}
	return nil
}

// RunRetention trims envelopes older than the retention age once. It is a
// no-op when retention is disabled.
func (s *Service) RunRetention(ctx context.Context) (int, error) {
	if s.retentionAge <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-s.retentionAge).UnixNano()
	if cutoff <= 0 {
		return 0, nil
	}
	start := time.Now()
	n, err := s.st.TrimOlderThan(ctx, uint64(cutoff), store.TrimOptions{})
	if err != nil {
		s.logger.Warn("retention.trim failed", logpkg.Err(err), logpkg.Int("deleted", n))
		return n, err
	}
	if n > 0 {
		s.logger.Info("retention.trim", logpkg.Int("deleted", n), logpkg.Dur("took", time.Since(start)))
	}
	return n, nil
}

func (s *Service) retentionLoop(ctx context.Context) {
	defer s.wg.Done()
	t := time.NewTicker(s.retentionInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_, _ = s.RunRetention(ctx)
		}
	}
}

// Close stops background work. Live subscriptions end when the runtime
// closes.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.wg.Wait()
	})
	return nil
}
