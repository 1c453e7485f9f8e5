package server

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loykin/procreaper/internal/metrics"
	"github.com/loykin/procreaper/internal/report"
)

// StatusSource provides the last completed reaper cycle.
type StatusSource interface {
	Snapshot() report.Snapshot
}

// Router provides embeddable read-only HTTP handlers for a running reaper.
// Endpoints:
//
//	GET {basePath}/status   last scan, kills, running flag and next wake
//	GET {basePath}/metrics  Prometheus exposition
//	GET {basePath}/healthz  liveness
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	status   StatusSource
	basePath string
}

// NewRouter constructs a new Router with configurable basePath.
func NewRouter(status StatusSource, basePath string) *Router {
	return &Router{status: status, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.GET("/healthz", r.handleHealth)
	group.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
// The listener is bound before returning so address errors surface here;
// srv.Addr holds the bound address. A non-nil tlsCfg serves HTTPS.
// Stop it with Shutdown.
func NewServer(addr, basePath string, status StatusSource, tlsCfg *tls.Config) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	if tlsCfg != nil {
		ln = tls.NewListener(ln, tlsCfg)
	}
	r := NewRouter(status, basePath)
	server := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		TLSConfig:         tlsCfg,
	}
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("status server stopped", "addr", server.Addr, "error", err)
		}
	}()
	return server, nil
}

// Shutdown stops srv, waiting at most timeout for in-flight requests.
func Shutdown(srv *http.Server, timeout time.Duration) error {
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Shutdown(ctx)
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

func (r *Router) handleStatus(c *gin.Context) {
	if r.status == nil {
		writeJSON(c, http.StatusServiceUnavailable, errorResp{Error: "status not available"})
		return
	}
	writeJSON(c, http.StatusOK, r.status.Snapshot())
}

func (r *Router) handleHealth(c *gin.Context) {
	writeJSON(c, http.StatusOK, okResp{OK: true})
}
