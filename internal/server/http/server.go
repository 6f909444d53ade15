package httpserver

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/rzbill/courier/internal/metrics"
	"github.com/rzbill/courier/internal/server/http/controllers"
	messagesvc "github.com/rzbill/courier/internal/services/messages"
	logpkg "github.com/rzbill/courier/pkg/log"
)

const requestIDHeader = "X-Request-ID"

type Server struct {
	svc    *messagesvc.Service
	srv    *http.Server
	lis    net.Listener
	logger logpkg.Logger
}

// New builds the HTTP server. When m is non-nil its registry is served at
// /metrics.
func New(svc *messagesvc.Service, m *metrics.Metrics, logger logpkg.Logger) *Server {
	if logger == nil {
		logger = logpkg.GetDefaultLogger()
	}
	mux := http.NewServeMux()
	s := &Server{svc: svc, logger: logger.WithComponent("http")}
	controllers.NewControllerRegistry(svc).RegisterAllRoutes(mux)
	if m != nil {
		mux.Handle("/metrics", m.Handler())
	}
	s.srv = &http.Server{
		Handler:           cors(s.requestLog(mux)),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          logpkg.ToStdLogger(s.logger, logpkg.WarnLevel),
	}
	return s
}

// Handler returns the root handler, for embedding and tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}

// Serve serves on l until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	s.lis = l
	// Request contexts end with ctx so open SSE streams unblock Shutdown.
	s.srv.BaseContext = func(net.Listener) context.Context { return ctx }
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) Close() {
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response code and keeps SSE flushing working.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// requestLog tags each request with an id and logs its outcome.
func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := logpkg.ContextWithRequestID(r.Context(), id)
		ctx = logpkg.ContextWithOperation(ctx, r.Method+" "+r.URL.Path)

		rec := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(ctx))
		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		l := s.logger.WithContext(ctx)
		fields := []logpkg.Field{logpkg.Int("status", status), logpkg.Dur("took", time.Since(start))}
		if status >= http.StatusInternalServerError {
			l.Warn("http.request failed", fields...)
			return
		}
		l.Debug("http.request", fields...)
	})
}
