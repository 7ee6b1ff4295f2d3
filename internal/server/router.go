package server

import (
	"crypto/tls"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loykin/vigil/internal/metrics"
	"github.com/loykin/vigil/internal/watchdog"
)

// Router provides the embeddable read-only status API of the watchdog.
// Endpoints:
//
//	GET {basePath}/status        all service snapshots
//	GET {basePath}/status?name=  one snapshot; unknown names return 400
//	GET {basePath}/healthz       the watchdog's own liveness
//	GET /metrics                 Prometheus metrics, when mounted
//
// The API never mutates supervision state. Services are started and stopped
// by the watchdog itself; the daemon is stopped with signals.
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	dog      *watchdog.Watchdog
	basePath string
	metrics  bool
}

// NewRouter constructs a Router with a configurable basePath.
// Example basePath: "/api" results in /api/status and /api/healthz.
func NewRouter(dog *watchdog.Watchdog, basePath string) *Router {
	return &Router{dog: dog, basePath: sanitizeBase(basePath)}
}

// MountMetrics additionally serves Prometheus metrics at /metrics on the
// same listener, for deployments without a dedicated metrics address.
func (r *Router) MountMetrics() { r.metrics = true }

// Handler returns an http.Handler powered by gin that can be mounted in any
// server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.GET("/healthz", r.handleHealthz)
	if r.metrics {
		g.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
// The caller shuts it down via http.Server's Close or Shutdown.
func NewServer(addr, basePath string, dog *watchdog.Watchdog) (*http.Server, error) {
	return serve(addr, basePath, nil, dog, false)
}

// NewServerTLS is NewServer over TLS. tlsConf comes from the internal tls
// package and must be non-nil.
func NewServerTLS(addr, basePath string, tlsConf *tls.Config, dog *watchdog.Watchdog) (*http.Server, error) {
	return serve(addr, basePath, tlsConf, dog, false)
}

// NewServerWithMetrics is NewServer with /metrics mounted on the same
// listener.
func NewServerWithMetrics(addr, basePath string, tlsConf *tls.Config, dog *watchdog.Watchdog) (*http.Server, error) {
	return serve(addr, basePath, tlsConf, dog, true)
}

func serve(addr, basePath string, tlsConf *tls.Config, dog *watchdog.Watchdog, withMetrics bool) (*http.Server, error) {
	r := NewRouter(dog, basePath)
	if withMetrics {
		r.MountMetrics()
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		TLSConfig:         tlsConf,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	if tlsConf != nil {
		go func() { _ = server.ListenAndServeTLS("", "") }()
	} else {
		go func() { _ = server.ListenAndServe() }()
	}
	return server, nil
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

func (r *Router) handleStatus(c *gin.Context) {
	if name := c.Query("name"); name != "" {
		st, err := r.dog.Status(name)
		if err != nil {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
			return
		}
		writeJSON(c, http.StatusOK, st)
		return
	}
	writeJSON(c, http.StatusOK, r.dog.StatusAll())
}

func (r *Router) handleHealthz(c *gin.Context) {
	writeJSON(c, http.StatusOK, okResp{OK: true})
}
