package adminhttp

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chatcore/chatserver/internal/logging"
)

// NewServer builds the admin HTTP surface: liveness/readiness probes and a
// Prometheus scrape endpoint, wrapped with recovery and correlation id
// middleware exactly like the reference admin router, minus any feature
// this server doesn't have dependencies for.
func NewServer(addr string, ready func() bool) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(CorrelationID())

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowAllOrigins = true
	router.Use(cors.New(corsCfg))

	handler := NewHandler(ready)
	router.GET("/health/live", handler.Liveness)
	router.GET("/health/ready", handler.Readiness)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return &http.Server{
		Addr:    addr,
		Handler: router,
	}
}

// Run starts srv and blocks until ctx is cancelled, then shuts it down
// within shutdownWait.
func Run(ctx context.Context, srv *http.Server, shutdownWait time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		logging.Info(ctx, "admin http surface starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWait)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
