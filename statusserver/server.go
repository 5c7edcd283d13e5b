// Package statusserver exposes the loader's status indicator, loop counters,
// Prometheus metrics and health checks over HTTP.
package statusserver

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-boot/hook"
	"github.com/wippyai/wasm-boot/loader"
	"github.com/wippyai/wasm-boot/status"
)

const shutdownTimeout = 5 * time.Second

var (
	errNoHook       = stderrors.New("no hook published")
	errModuleFailed = stderrors.New("module failed to load")
)

// Source is what the server reports on. *loader.Loader implements it.
type Source interface {
	Status() *status.Indicator
	Slot() *hook.Slot
	Stats() loader.Stats
}

// Options configures the handler.
type Options struct {
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer

	// AllowedOrigins for CORS. Empty allows any origin.
	AllowedOrigins []string

	// MaxGoroutines fails the liveness check above this count. 0 disables it.
	MaxGoroutines int
}

// Response is the body of GET /status.
type Response struct {
	Key         string    `json:"key"`
	Phase       string    `json:"phase"`
	Text        string    `json:"text"`
	Color       string    `json:"color"`
	Error       string    `json:"error,omitempty"`
	At          time.Time `json:"at"`
	Hook        string    `json:"hook,omitempty"`
	Frames      uint64    `json:"frames"`
	Invocations uint64    `json:"invocations"`
	Skipped     uint64    `json:"skipped"`
	FPS         float64   `json:"fps"`
}

// NewMux builds the router: /status, /metrics, /live and /ready.
func NewMux(src Source, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		MaxAge:         300,
	}))

	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, snapshot(src))
	})

	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	health := healthcheck.NewHandler()
	if opts.MaxGoroutines > 0 {
		health.AddLivenessCheck("goroutines", healthcheck.GoroutineCountCheck(opts.MaxGoroutines))
	}
	health.AddReadinessCheck("module", func() error {
		if src.Status().Current().Phase == status.PhaseError {
			return errModuleFailed
		}
		return nil
	})
	health.AddReadinessCheck("hook", func() error {
		if !src.Slot().Published() {
			return errNoHook
		}
		return nil
	})
	r.Handle("/live", health)
	r.Handle("/ready", health)

	return r
}

func snapshot(src Source) Response {
	st := src.Status().Current()
	stats := src.Stats()
	resp := Response{
		Key:         src.Status().Key(),
		Phase:       st.Phase.String(),
		Text:        st.Text,
		Color:       st.Color,
		At:          st.At,
		Hook:        stats.Hook,
		Frames:      stats.Frames,
		Invocations: stats.Invocations,
		Skipped:     stats.Skipped,
		FPS:         stats.FPS,
	}
	if st.Err != nil {
		resp.Error = st.Err.Error()
	}
	return resp
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		Logger().Warn("failed to encode response", zap.Error(err))
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		Logger().Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)))
	})
}

// Serve listens on addr and serves h until ctx is done, then shuts down
// gracefully. It returns nil after a clean shutdown.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return serveListener(ctx, ln, h)
}

func serveListener(ctx context.Context, ln net.Listener, h http.Handler) error {
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	Logger().Info("status server listening", zap.String("addr", ln.Addr().String()))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
