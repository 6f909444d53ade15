package serverrun

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	cfgpkg "github.com/rzbill/courier/internal/config"
	"github.com/rzbill/courier/internal/metrics"
	"github.com/rzbill/courier/internal/runtime"
	grpcserver "github.com/rzbill/courier/internal/server/grpc"
	httpserver "github.com/rzbill/courier/internal/server/http"
	messagesvc "github.com/rzbill/courier/internal/services/messages"
	pebblestore "github.com/rzbill/courier/internal/storage/pebble"
	logpkg "github.com/rzbill/courier/pkg/log"
)

type Options struct {
	DataDir       string
	GRPCAddr      string
	HTTPAddr      string
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	Config        cfgpkg.Config

	// Ready, when set, receives the bound addresses once both listeners are
	// open. Useful with ":0" addresses.
	Ready func(grpcAddr, httpAddr net.Addr)
}

// LoadConfig reads path (JSON or YAML, empty for defaults) and overlays
// COURIER_* environment variables.
func LoadConfig(path string) (cfgpkg.Config, error) {
	cfg, err := cfgpkg.Load(path)
	if err != nil {
		return cfgpkg.Config{}, err
	}
	cfgpkg.FromEnv(&cfg)
	return cfg, cfg.Validate()
}

// Run starts gRPC and HTTP servers and blocks until ctx is cancelled or a
// server fails.
func Run(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.DataDir == "" {
		opts.DataDir = cfgpkg.DefaultDataDir()
	}

	procLogger, err := logpkg.ApplyConfig(&opts.Config.Log)
	if err != nil {
		return fmt.Errorf("log config: %w", err)
	}
	// Pebble logs through the standard library logger.
	logpkg.RedirectStdLog(procLogger)

	m := metrics.New()
	rt, err := runtime.Open(runtime.Options{
		DataDir:       filepath.Join(opts.DataDir, "store"),
		Fsync:         opts.Fsync,
		FsyncInterval: opts.FsyncInterval,
		Config:        opts.Config,
		Logger:        procLogger,
		Metrics:       m,
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	svc, err := messagesvc.New(rt, messagesvc.Options{Logger: procLogger})
	if err != nil {
		return err
	}
	defer svc.Close()

	gl, err := net.Listen("tcp", opts.GRPCAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	hl, err := net.Listen("tcp", opts.HTTPAddr)
	if err != nil {
		_ = gl.Close()
		return fmt.Errorf("http listen: %w", err)
	}

	procLogger.Info("courier.start",
		logpkg.Str("grpc", gl.Addr().String()),
		logpkg.Str("http", hl.Addr().String()),
		logpkg.Str("data_dir", opts.DataDir),
		logpkg.Str("instance", rt.Store().Instance().String()),
		logpkg.Int("sub_buf", opts.Config.SubscriberBuffer),
		logpkg.Int("sub_flush_ms", opts.Config.SubscriberFlushMs),
		logpkg.Int64("retention_age_ms", opts.Config.RetentionAgeMs),
	)
	if opts.Ready != nil {
		opts.Ready(gl.Addr(), hl.Addr())
	}

	gsrv := grpcserver.New(svc, procLogger)
	hsrv := httpserver.New(svc, m, procLogger)

	g, gctx := errgroup.WithContext(sctx)
	g.Go(func() error {
		if err := gsrv.Serve(gctx, gl); err != nil {
			return fmt.Errorf("grpc: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		// End live subscriptions so graceful stops do not wait on them.
		<-gctx.Done()
		rt.Registry().Shutdown()
		return nil
	})
	g.Go(func() error {
		if err := hsrv.Serve(gctx, hl); err != nil {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	err = g.Wait()
	procLogger.Info("courier.stop", logpkg.Err(err))
	return err
}
