package vigil

import (
	"context"
	"net/http"
	"time"

	"github.com/loykin/vigil/internal/announce"
	cfg "github.com/loykin/vigil/internal/config"
	"github.com/loykin/vigil/internal/env"
	"github.com/loykin/vigil/internal/history"
	"github.com/loykin/vigil/internal/metrics"
	"github.com/loykin/vigil/internal/monitor"
	"github.com/loykin/vigil/internal/notify"
	"github.com/loykin/vigil/internal/portguard"
	iapi "github.com/loykin/vigil/internal/server"
	itls "github.com/loykin/vigil/internal/tls"
	"github.com/loykin/vigil/internal/watchdog"
	"github.com/prometheus/client_golang/prometheus"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Spec = monitor.Spec

type Status = monitor.Status

type Policy = monitor.Policy

type Config = cfg.Config

type ServerConfig = cfg.ServerConfig

type NotifyConfig = notify.Config

type AnnounceConfig = announce.Config

type HistorySink = history.Sink

type HistoryEvent = history.Event

type PortGuard = portguard.Guard

// DefaultPolicy returns the stock supervision timings.
func DefaultPolicy() Policy { return monitor.DefaultPolicy() }

// Watchdog is a thin facade over internal/watchdog.Watchdog.
// It provides a stable public API for embedding.

type Watchdog struct{ inner *watchdog.Watchdog }

// New returns a watchdog with the given policy; zero fields fall back to the
// stock defaults.
func New(policy Policy) *Watchdog { return &Watchdog{inner: watchdog.New(policy)} }

func (w *Watchdog) Register(s Spec) error { return w.inner.Register(s) }

// SetGlobalEnv records KEY=VALUE pairs merged into every service's
// environment at start time.
func (w *Watchdog) SetGlobalEnv(kvs []string) {
	t := env.New()
	t.SetAll(kvs)
	w.inner.SetGlobalEnv(t)
}

// SetNotifier configures the lifecycle webhook sink.
func (w *Watchdog) SetNotifier(c NotifyConfig) { w.inner.SetNotifier(notify.New(c)) }

// SetHistorySinks configures external audit sinks for lifecycle events.
func (w *Watchdog) SetHistorySinks(sinks ...HistorySink) { w.inner.SetHistorySinks(sinks...) }

// SetPortGuard replaces the stale-process cleanup run before each start.
func (w *Watchdog) SetPortGuard(g PortGuard) { w.inner.SetGuard(g) }

// NoopPortGuard opts out of port reconciliation entirely.
func NoopPortGuard() PortGuard { return portguard.Noop{} }

// Run blocks supervising all registered services until ctx is cancelled and
// every child process has been stopped.
func (w *Watchdog) Run(ctx context.Context) error { return w.inner.Run(ctx) }

// Shutdown cancels supervision and waits for all services to stop.
func (w *Watchdog) Shutdown() { w.inner.Shutdown() }

func (w *Watchdog) Status(name string) (Status, error) { return w.inner.Status(name) }

func (w *Watchdog) StatusAll() []Status { return w.inner.StatusAll() }

// LoadConfig reads and validates a watchdog TOML configuration file.
func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

// NewFromConfig builds a fully wired watchdog from a loaded configuration:
// policy, global environment, notifier, history sinks and all services.
func NewFromConfig(c *Config) (*Watchdog, error) {
	w := New(c.Policy)
	table, err := c.EnvTable()
	if err != nil {
		return nil, err
	}
	w.inner.SetGlobalEnv(table)
	if c.Notify != nil {
		w.inner.SetNotifier(notify.New(*c.Notify))
	}
	sinks, err := c.History.BuildSinks()
	if err != nil {
		return nil, err
	}
	if len(sinks) > 0 {
		w.inner.SetHistorySinks(sinks...)
	}
	for _, s := range c.Services {
		if err := w.Register(s); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// NewHTTPServer starts an HTTP server exposing the read-only status API for
// the given watchdog.
func NewHTTPServer(addr, basePath string, w *Watchdog) (*http.Server, error) {
	return iapi.NewServer(addr, basePath, w.inner)
}

// NewServerFromConfig builds the status API server from the [server] config
// section, honoring its TLS settings. When mountMetrics is set, Prometheus
// metrics are served at /metrics on the same listener.
func NewServerFromConfig(sc ServerConfig, mountMetrics bool, w *Watchdog) (*http.Server, error) {
	tconf, err := itls.Setup(sc.TLS)
	if err != nil {
		return nil, err
	}
	if mountMetrics {
		return iapi.NewServerWithMetrics(sc.Listen, sc.BasePath, tconf, w.inner)
	}
	if tconf != nil {
		return iapi.NewServerTLS(sc.Listen, sc.BasePath, tconf, w.inner)
	}
	return iapi.NewServer(sc.Listen, sc.BasePath, w.inner)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the default registry.
// It returns any immediate listen error; otherwise it runs the server in the caller goroutine.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
