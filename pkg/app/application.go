package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	healthhandler "medislot/internal/health/handler"
	"medislot/pkg/config"
	"medislot/pkg/metrics"
	"medislot/pkg/middleware"

	"github.com/go-chi/cors"
	"github.com/julienschmidt/httprouter"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const authPathPrefix = "/api/auth"

// Routes is implemented by every domain handler mounted under /api.
type Routes interface {
	RegisterRoutes(router *httprouter.Router)
}

type Application struct {
	cfg              *config.Config
	server           *http.Server
	idempotencyStore middleware.IdempotencyStore
	authRateLimiter  *middleware.KeyedRateLimiter
	metrics          *metrics.Metrics
	healthHandler    http.Handler
	appHandler       http.Handler
	closers          []func() error
}

// NewApplication creates the collectors up front when metrics are enabled, so
// services can be instrumented before SetApp.
func NewApplication(cfg *config.Config) *Application {
	a := &Application{cfg: cfg}
	if cfg.MetricsEnabled {
		a.metrics = metrics.New("medislot")
	}
	return a
}

// Metrics returns nil when metrics are disabled.
func (a *Application) Metrics() *metrics.Metrics {
	return a.metrics
}

// OnShutdown registers fn to run after the server has stopped accepting requests.
func (a *Application) OnShutdown(fn func() error) {
	a.closers = append(a.closers, fn)
}

func (a *Application) SetApp(routes ...Routes) {
	a.setHealthHandler()
	a.setAppHandler(routes)
	a.setAppServer()
}

// Handler returns the fully wrapped root handler.
func (a *Application) Handler() http.Handler {
	return a.server.Handler
}

func (a *Application) setHealthHandler() {
	checks := map[string]healthhandler.Check{}
	if a.cfg.Client.Mongo != nil {
		checks["mongo"] = func(ctx context.Context) error {
			return a.cfg.Client.Mongo.Ping(ctx, readpref.Primary())
		}
	}
	if a.cfg.Client.Redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return a.cfg.Client.Redis.Ping(ctx).Err()
		}
	}

	healthRouter := httprouter.New()
	healthhandler.NewHealthHandler(checks, a.cfg.Log).RegisterRoutes(healthRouter)
	if a.metrics != nil {
		healthRouter.Handler(http.MethodGet, "/metrics", a.metrics.Handler())
	}

	var handler http.Handler = healthRouter
	handler = middleware.RequestLogging(a.cfg.Log)(handler)
	handler = middleware.Recovery(a.cfg.Log)(handler)
	a.healthHandler = handler
	a.cfg.Log.Info("Health endpoints configured with minimal middleware (Recovery + Logging only)")
}

func (a *Application) setAppHandler(routes []Routes) {
	appRouter := httprouter.New()
	for _, r := range routes {
		r.RegisterRoutes(appRouter)
	}

	if a.cfg.Client.Redis != nil {
		a.idempotencyStore = middleware.NewRedisIdempotencyStore(a.cfg.Client.Redis, a.cfg.IdempotencyTTL, a.cfg.Log)
		a.cfg.Log.Info("Idempotency keys stored in Redis")
	} else {
		a.idempotencyStore = middleware.NewInMemoryIdempotencyStore(a.cfg.IdempotencyTTL)
	}
	a.authRateLimiter = middleware.NewKeyedRateLimiter(
		a.cfg.AuthRateLimitRequests,
		a.cfg.AuthRateLimitWindow,
		nil,
		a.cfg.Log,
	)

	var handler http.Handler = appRouter
	handler = middleware.Idempotency(a.idempotencyStore, middleware.DefaultIdempotencyHeader, middleware.CredentialScope(a.cfg.CookieName))(handler)
	handler = middleware.RequestTimeout(a.cfg.RequestTimeout)(handler)
	handler = middleware.ForPathPrefix(authPathPrefix, middleware.RateLimit(a.authRateLimiter))(handler)
	handler = middleware.ForPathPrefix("/api", middleware.IPRateLimit(a.cfg.RateLimitRequests, a.cfg.RateLimitWindow, a.cfg.Log))(handler)
	handler = middleware.ContentTypeValidation(a.cfg.Log)(handler)
	handler = middleware.MaxRequestSize(int64(a.cfg.MaxRequestSize))(handler)
	handler = cors.Handler(cors.Options{
		AllowedOrigins:   []string{a.cfg.ClientURL},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", middleware.DefaultIdempotencyHeader, middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader, middleware.ReplayedHeader, "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	})(handler)
	if a.metrics != nil {
		handler = middleware.Metrics(a.metrics)(handler)
	}
	handler = middleware.RequestLogging(a.cfg.Log)(handler)
	handler = middleware.Recovery(a.cfg.Log)(handler)
	a.appHandler = handler
	a.cfg.Log.Info("Application endpoints configured with full security middleware stack",
		"client_url", a.cfg.ClientURL,
	)
}

func (a *Application) setAppServer() {
	mux := http.NewServeMux()
	mux.Handle("/health", a.healthHandler)
	mux.Handle("/ready", a.healthHandler)
	if a.metrics != nil {
		mux.Handle("/metrics", a.healthHandler)
	}
	mux.Handle("/", a.appHandler)

	a.server = &http.Server{
		Addr:         ":" + a.cfg.Port,
		Handler:      mux,
		ReadTimeout:  a.cfg.ReadTimeout,
		WriteTimeout: a.cfg.WriteTimeout,
		IdleTimeout:  a.cfg.IdleTimeout,
	}

	a.cfg.Log.Info("HTTP server configured", "port", a.cfg.Port)
}

func (a *Application) Run() {
	serverErrors := make(chan error, 1)

	go func() {
		a.cfg.Log.Info("Starting HTTP server", "address", a.server.Addr)
		serverErrors <- a.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			a.cfg.Log.Fatal("HTTP server failed", "error", err)
		}

	case sig := <-shutdown:
		a.cfg.Log.Info("Shutdown signal received", "signal", sig)
		a.gracefulShutdown()
	}
}

func (a *Application) gracefulShutdown() {
	a.cfg.Log.Info("Starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		a.cfg.Log.Error("Server shutdown failed", "error", err)
		if err := a.server.Close(); err != nil {
			a.cfg.Log.Error("Could not stop server gracefully", "error", err)
		}
	}

	a.cfg.Log.Info("Stopping background workers...")
	a.idempotencyStore.Stop()
	a.authRateLimiter.Stop()
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			a.cfg.Log.Error("Failed to release resource", "error", err)
		}
	}
	a.cfg.Log.Info("Background workers stopped")

	a.cfg.GracefulShutdown()
	a.cfg.Log.Info("Server stopped gracefully")
}
