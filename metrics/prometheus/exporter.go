package prometheus

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	defaultReadHeaderTimeout = 10 * time.Second
	shutdownTimeout          = 5 * time.Second
)

// Exporter serves the realtime metrics over HTTP.
type Exporter struct {
	addr     string
	registry *prometheus.Registry

	mu     sync.Mutex
	server *http.Server
}

// ExporterOption configures an Exporter.
type ExporterOption func(*exporterConfig)

type exporterConfig struct {
	registry *prometheus.Registry
	runtime  bool
}

// WithRegistry registers the realtime metrics on reg instead of a fresh registry.
func WithRegistry(reg *prometheus.Registry) ExporterOption {
	return func(c *exporterConfig) { c.registry = reg }
}

// WithoutRuntimeMetrics skips the Go runtime and process collectors.
func WithoutRuntimeMetrics() ExporterOption {
	return func(c *exporterConfig) { c.runtime = false }
}

// NewExporter creates an exporter for addr. The realtime collectors are
// registered on its registry; registering them twice on one registry fails.
func NewExporter(addr string, opts ...ExporterOption) (*Exporter, error) {
	cfg := exporterConfig{registry: prometheus.NewRegistry(), runtime: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	for _, c := range allMetrics {
		if err := cfg.registry.Register(c); err != nil {
			return nil, err
		}
	}
	if cfg.runtime {
		cfg.registry.MustRegister(collectors.NewGoCollector())
		cfg.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	return &Exporter{addr: addr, registry: cfg.registry}, nil
}

// Registry returns the underlying registry.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Handler returns the /metrics handler, for mounting on an existing server.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Serve listens on the exporter address until ctx is done. It returns nil
// after a graceful shutdown.
func (e *Exporter) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", e.addr)
	if err != nil {
		return err
	}
	return e.serve(ctx, ln)
}

func (e *Exporter) serve(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
	}
	e.mu.Lock()
	if e.server != nil {
		e.mu.Unlock()
		_ = ln.Close()
		return errors.New("exporter already serving")
	}
	e.server = srv
	e.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	})
	defer stop()

	err := srv.Serve(ln)
	e.mu.Lock()
	e.server = nil
	e.mu.Unlock()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
