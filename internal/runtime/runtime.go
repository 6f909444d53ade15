package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	cfgpkg "github.com/rzbill/courier/internal/config"
	"github.com/rzbill/courier/internal/metrics"
	"github.com/rzbill/courier/internal/query"
	pebblestore "github.com/rzbill/courier/internal/storage/pebble"
	"github.com/rzbill/courier/internal/store"
	"github.com/rzbill/courier/internal/subscriptions"
	logpkg "github.com/rzbill/courier/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	DataDir       string
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	Config        cfgpkg.Config
	Logger        logpkg.Logger
	// Metrics, when set, receives storage, subscription and retention
	// observations.
	Metrics *metrics.Metrics
}

// Runtime wires storage, the envelope store, the query engine and the
// subscription registry for a single-node instance.
type Runtime struct {
	db       *pebblestore.DB
	store    *store.Store
	engine   *query.Engine
	registry *subscriptions.Registry
	metrics  *metrics.Metrics
	config   cfgpkg.Config
	logger   logpkg.Logger
}

// Open initializes the underlying storage and returns a Runtime.
func Open(opts Options) (*Runtime, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.GetDefaultLogger()
	}
	limits, err := opts.Config.Limits()
	if err != nil {
		return nil, err
	}

	dbOpts := pebblestore.Options{
		DataDir:       opts.DataDir,
		Fsync:         opts.Fsync,
		FsyncInterval: opts.FsyncInterval,
		Logger:        logger,
	}
	storeOpts := store.Options{Logger: logger}
	subOpts := subscriptions.Options{Buffer: opts.Config.SubscriberBuffer, Logger: logger}
	if opts.Metrics != nil {
		dbOpts.Metrics = opts.Metrics
		storeOpts.Archiver = opts.Metrics
		subOpts.Observer = opts.Metrics
	}

	db, err := pebblestore.Open(dbOpts)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(db, storeOpts)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	subOpts.HighWater = st.LastSeq
	reg, err := subscriptions.NewRegistry(subOpts)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	st.SetObserver(reg)

	rt := &Runtime{
		db:       db,
		store:    st,
		registry: reg,
		metrics:  opts.Metrics,
		config:   opts.Config,
		logger:   logger.WithComponent("runtime"),
		engine: query.New(st, query.Options{
			Limits:           limits,
			BatchConcurrency: opts.Config.BatchQueryConcurrency,
			Logger:           logger,
		}),
	}
	rt.logger.Info("runtime.open", logpkg.Str("data_dir", opts.DataDir),
		logpkg.Str("instance", st.Instance().String()), logpkg.Uint64("last_seq", st.LastSeq()))
	return rt, nil
}

// Close ends every live subscription and closes storage.
func (r *Runtime) Close() error {
	if r.db == nil {
		return nil
	}
	r.registry.Shutdown()
	r.store.SetObserver(nil)
	err := r.db.Close()
	r.db = nil
	return err
}

// CheckHealth verifies storage is open and readable.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.db == nil {
		return errors.New("db not open")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	it, err := r.db.NewIter(nil)
	if err != nil {
		return fmt.Errorf("health: %w", err)
	}
	return it.Close()
}

// Store returns the envelope store.
func (r *Runtime) Store() *store.Store { return r.store }

// Engine returns the query engine.
func (r *Runtime) Engine() *query.Engine { return r.engine }

// Registry returns the subscription registry.
func (r *Runtime) Registry() *subscriptions.Registry { return r.registry }

// Metrics returns the metrics sink, or nil when none was configured.
func (r *Runtime) Metrics() *metrics.Metrics { return r.metrics }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }
