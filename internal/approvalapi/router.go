// Package approvalapi exposes the approval store over HTTP so an operator
// can list, approve, and reject requests from a browser or script.
//
// Middleware order: RequestID, Logger, Recovery, body limit, Metrics,
// rate limiter, gzip, CORS, then bearer auth on /api when a JWT secret is
// configured.
package approvalapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/nhle/inbox-triage/internal/model"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 64 << 10

// NewRouter builds the gin engine for cfg.
func NewRouter(cfg model.APIConfig, h *Handlers, log zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.HandleMethodNotAllowed = true

	r.Use(RequestID())
	r.Use(Logger(log))
	r.Use(Recovery(log))
	r.Use(limitBody(maxBodyBytes))
	r.Use(Metrics())

	if cfg.RateRPS > 0 {
		r.Use(NewRateLimiter(cfg.RateRPS, cfg.RateBurst).Handler())
	}

	r.Use(gzip.Gzip(gzip.DefaultCompression))
	r.Use(cors.New(corsConfig(cfg.CORSOrigins)))

	r.NoRoute(func(c *gin.Context) {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		fail(c, http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	if cfg.JWTSecret != "" {
		api.Use(Auth([]byte(cfg.JWTSecret)))
	}
	{
		api.GET("/pending", h.ListPending)
		api.GET("/requests/:id", h.GetRequest)
		api.GET("/requests/:id/events", h.ListEvents)

		api.POST("/approve/:id", h.Approve)
		api.POST("/approve", h.ApproveBody)
		api.POST("/reject/:id", h.Reject)
		api.POST("/reject", h.RejectBody)
	}

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{requestIDHeader, "Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// Serve runs handler on addr until ctx is cancelled, then shuts down
// with a grace period.
func Serve(ctx context.Context, addr string, handler http.Handler, log zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("approval API listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info().Msg("approval API stopped")
	return nil
}
