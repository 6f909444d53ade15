// Package query serves topic-scoped, cursor-paginated history reads and
// batches of them evaluated against one store snapshot.
package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rzbill/courier/internal/envelope"
	pebblestore "github.com/rzbill/courier/internal/storage/pebble"
	"github.com/rzbill/courier/internal/store"
	logpkg "github.com/rzbill/courier/pkg/log"
)

// DefaultBatchConcurrency bounds parallel spec evaluation inside a BatchQuery.
const DefaultBatchConcurrency = 8

// Options configures an Engine.
type Options struct {
	Limits           envelope.Limits
	BatchConcurrency int
	Logger           logpkg.Logger
}

// Engine is the query engine over a Store.
type Engine struct {
	st     *store.Store
	limits envelope.Limits
	conc   int
	logger logpkg.Logger
}

// New creates an Engine.
func New(st *store.Store, opts Options) *Engine {
	e := &Engine{st: st, limits: opts.Limits.Normalize(), conc: opts.BatchConcurrency, logger: opts.Logger}
	if e.conc <= 0 {
		e.conc = DefaultBatchConcurrency
	}
	if e.logger == nil {
		e.logger = logpkg.GetDefaultLogger()
	}
	e.logger = e.logger.WithComponent("query")
	return e
}

// Query runs one spec against the live store.
func (e *Engine) Query(ctx context.Context, spec envelope.QuerySpec) (envelope.QueryResult, error) {
	if err := e.limits.ValidateSpec(spec); err != nil {
		return envelope.QueryResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return envelope.QueryResult{}, fmt.Errorf("%w: %w", envelope.ErrUnavailable, err)
	}
	start := time.Now()
	var r pebblestore.Reader = e.st.Live()
	if spec.Merged() {
		snap := e.st.Snapshot()
		defer snap.Close()
		r = snap
	}
	res, err := e.exec(r, spec)
	if err != nil {
		return envelope.QueryResult{}, err
	}
	e.logger.Debug("messages.query", logpkg.Str("topic", strings.Join(spec.TopicList(), ",")), logpkg.Int("n", len(res.Envelopes)),
		logpkg.Bool("more", res.NextCursor != nil), logpkg.Dur("dur_ms", time.Since(start)))
	return res, nil
}

// BatchQuery runs every spec against one snapshot and reports one result or
// one error per spec, in request order. Only an empty or oversized batch
// fails the request as a whole.
func (e *Engine) BatchQuery(ctx context.Context, specs []envelope.QuerySpec) ([]envelope.BatchResult, error) {
	if err := e.limits.ValidateBatchSize(len(specs)); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", envelope.ErrUnavailable, err)
	}

	snap := e.st.Snapshot()
	defer snap.Close()

	results := make([]envelope.BatchResult, len(specs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.conc)
	for i := range specs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return fmt.Errorf("%w: %w", envelope.ErrUnavailable, err)
			}
			if err := e.limits.ValidateSpec(specs[i]); err != nil {
				results[i].Err = err
				return nil
			}
			res, err := e.exec(snap, specs[i])
			results[i] = envelope.BatchResult{Result: res, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// exec runs a validated spec against r.
func (e *Engine) exec(r pebblestore.Reader, spec envelope.QuerySpec) (envelope.QueryResult, error) {
	if spec.Merged() {
		return e.runMerged(r, spec)
	}
	if len(spec.Topics) == 1 {
		spec.Topic, spec.Topics = spec.Topics[0], nil
	}
	return e.run(r, spec)
}

// run resolves a validated single-topic spec against r. It reads one envelope past the
// page to decide whether a next cursor is needed.
func (e *Engine) run(r pebblestore.Reader, spec envelope.QuerySpec) (envelope.QueryResult, error) {
	span, err := e.span(spec)
	if err != nil {
		return envelope.QueryResult{}, err
	}
	limit := int(e.limits.ClampLimit(spec.Limit))
	envs, err := e.st.Scan(r, spec.Topic, span, spec.Direction.Descending(), limit+1)
	if err != nil {
		return envelope.QueryResult{}, err
	}
	var res envelope.QueryResult
	if len(envs) > limit {
		envs = envs[:limit]
		res.NextCursor = e.st.EncodeCursor(spec.Topic, envs[limit-1].Cursor())
	}
	res.Envelopes = envs
	return res, nil
}

// span maps cursors and time bounds onto a store span. Cursors are relative
// to the walk: StartCursor was already seen and EndCursor is never reached.
func (e *Engine) span(spec envelope.QuerySpec) (store.Span, error) {
	var sp store.Span
	if spec.StartTimeNs != 0 {
		sp.AtOrAfter = &envelope.Cursor{TimestampNs: spec.StartTimeNs}
	}
	if spec.EndTimeNs != 0 {
		sp.AtOrBefore = &envelope.Cursor{TimestampNs: spec.EndTimeNs, Seq: ^uint64(0)}
	}
	desc := spec.Direction.Descending()
	if len(spec.StartCursor) > 0 {
		c, err := e.st.DecodeCursor(spec.Topic, spec.StartCursor)
		if err != nil {
			return store.Span{}, err
		}
		if desc {
			sp.Before = &c
		} else {
			sp.After = &c
		}
	}
	if len(spec.EndCursor) > 0 {
		c, err := e.st.DecodeCursor(spec.Topic, spec.EndCursor)
		if err != nil {
			return store.Span{}, err
		}
		if desc {
			sp.After = &c
		} else {
			sp.Before = &c
		}
	}
	return sp, nil
}
