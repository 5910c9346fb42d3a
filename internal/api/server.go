// Package api serves the operator HTTP API: host and subdomain queries,
// manual moves and refreshes, health endpoints and Prometheus metrics.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/apimachinery/pkg/util/sets"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	ctrlmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"

	"github.com/yuriy-kovalchuk/dyndns-switch/internal/dns"
	"github.com/yuriy-kovalchuk/dyndns-switch/internal/failover"
	"github.com/yuriy-kovalchuk/dyndns-switch/internal/health"
)

const shutdownTimeout = 10 * time.Second

// Controller is the part of the failover controller the API drives.
type Controller interface {
	Status() failover.Status
	Hosts() []health.Host
	SubdomainsOfHost(identity string) ([]dns.Subdomain, error)
	SubdomainsOnHost(address string) []dns.Subdomain
	MoveSubdomains(ctx context.Context, from, to string, names sets.Set[string]) error
	Refresh(ctx context.Context) error
	Ready() bool
}

// Options configures the router.
type Options struct {
	// AllowedOrigins enables CORS for browser clients from these origins.
	AllowedOrigins []string
}

type server struct {
	ctl Controller
	log logr.Logger
}

// NewRouter returns the HTTP handler of the operator API.
func NewRouter(log logr.Logger, ctl Controller, opts Options) *gin.Engine {
	s := &server{ctl: ctl, log: log}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))
	if len(opts.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins: opts.AllowedOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
			MaxAge:       time.Hour,
		}))
	}

	v1 := router.Group("/api/v1")
	{
		v1.GET("/status", s.getStatus)
		v1.GET("/hosts", s.listHosts)
		v1.GET("/hosts/:identity/subdomains", s.listHostSubdomains)
		v1.GET("/subdomains", s.listSubdomains)
		v1.POST("/moves", s.createMove)
		v1.POST("/refresh", s.refresh)
	}

	mountHealth(router, "/healthz", &healthz.Handler{Checks: map[string]healthz.Checker{
		"ping": healthz.Ping,
	}})
	mountHealth(router, "/readyz", &healthz.Handler{Checks: map[string]healthz.Checker{
		"subdomains": s.subdomainsLoaded,
	}})

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(ctrlmetrics.Registry, promhttp.HandlerOpts{})))
	return router
}

// mountHealth serves h at prefix and its individual checks below it.
func mountHealth(router *gin.Engine, prefix string, h http.Handler) {
	handler := gin.WrapH(http.StripPrefix(prefix, h))
	router.GET(prefix, handler)
	router.GET(prefix+"/*check", handler)
}

func (s *server) subdomainsLoaded(_ *http.Request) error {
	if !s.ctl.Ready() {
		return errors.New("no successful subdomain refresh yet")
	}
	return nil
}

func requestLogger(log logr.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		kv := []interface{}{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"took", time.Since(start),
		}
		if c.Request.Method == http.MethodGet {
			log.V(1).Info("request served", kv...)
			return
		}
		log.Info("request served", kv...)
	}
}

// Serve runs an HTTP server for handler on addr until ctx is done, then shuts
// it down gracefully.
func Serve(ctx context.Context, log logr.Logger, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting operator API", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api: serve %s: %w", addr, err)
	case <-ctx.Done():
	}

	log.Info("shutting down operator API")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api: shutdown: %w", err)
	}
	return nil
}
