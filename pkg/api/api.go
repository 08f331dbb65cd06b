package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/telekom/auditlog/pkg/apiresponses"
	"github.com/telekom/auditlog/pkg/config"
	"github.com/telekom/auditlog/pkg/metrics"
	"github.com/telekom/auditlog/pkg/ratelimit"
	"github.com/telekom/auditlog/pkg/requestmeta"
)

const shutdownTimeout = 10 * time.Second

type APIController interface {
	BasePath() string
	Register(rg *gin.RouterGroup) error
	Handlers() []gin.HandlerFunc
}

type Server struct {
	gin     *gin.Engine
	config  config.Server
	log     *zap.Logger
	limiter *ratelimit.Limiter
}

func NewServer(log *zap.Logger, cfg config.Server, debug bool) (*Server, error) {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(
		ginzap.Ginzap(log, time.RFC3339, true),
		ginzap.RecoveryWithZap(log, true),
	)
	if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, err
	}

	if len(cfg.AllowedOrigins) > 0 {
		engine.Use(
			cors.New(cors.Config{
				AllowOrigins: cfg.AllowedOrigins,
				AllowMethods: []string{"GET", "POST", "OPTIONS"},
				AllowHeaders: []string{"Origin", "Authorization", "Content-Type"},
				MaxAge:       12 * time.Hour,
			}),
		)
	}

	engine.Use(requestmeta.Middleware(requestmeta.Config{UserKeys: cfg.UserKeys}, log))

	engine.NoRoute(func(c *gin.Context) {
		apiresponses.RespondNotFoundSimple(c, "route not found")
	})
	engine.GET("healthz", func(c *gin.Context) {
		apiresponses.RespondOK(c, gin.H{"status": "ok"})
	})
	engine.GET("metrics", gin.WrapH(metrics.MetricsHandler()))

	s := &Server{
		gin:    engine,
		config: cfg,
		log:    log.Named("server"),
	}
	if cfg.RateLimit.Enabled {
		rlCfg := ratelimit.DefaultIngestConfig()
		rlCfg.Rate = cfg.RateLimit.Rate
		rlCfg.Burst = cfg.RateLimit.Burst
		s.limiter = ratelimit.New(rlCfg, cfg.UserKeys...)
	}
	return s, nil
}

// Close stops background work of the server's middleware.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Stop()
	}
}

// Handler returns the underlying http.Handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.gin
}

func (s *Server) RegisterAll(controllers []APIController) error {
	var handlers []gin.HandlerFunc
	if s.limiter != nil {
		handlers = append(handlers, s.limiter.Middleware())
	}
	r := s.gin.Group("api", handlers...)
	for _, c := range controllers {
		if err := c.Register(r.Group(c.BasePath(), c.Handlers()...)); err != nil {
			return err
		}
	}
	return nil
}

// Listen serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Listen(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.ListenAddress,
		Handler:           otelhttp.NewHandler(s.gin, "auditlog"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Starting ingest server", zap.String("address", s.config.ListenAddress),
			zap.Bool("tls", s.config.TLSCertFile != ""))
		var err error
		if s.config.TLSCertFile != "" && s.config.TLSKeyFile != "" {
			err = srv.ListenAndServeTLS(s.config.TLSCertFile, s.config.TLSKeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.log.Info("Shutting down ingest server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
