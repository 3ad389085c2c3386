package application

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/eugenenazirov/digitsum/internal/api"
	"github.com/eugenenazirov/digitsum/internal/config"
	"github.com/eugenenazirov/digitsum/internal/digitsum"
	"github.com/eugenenazirov/digitsum/internal/metrics"
	"github.com/eugenenazirov/digitsum/internal/session"
	"github.com/eugenenazirov/digitsum/internal/tracing"
)

// App encapsulates the application dependencies and HTTP server.
type App struct {
	sessions   session.Store
	calculator digitsum.Calculator
	metrics    *metrics.Recorder
	handler    *api.Handler
	router     http.Handler
	logger     *zap.Logger
	server     *http.Server
}

// New initializes the application with all dependencies from the provided configuration.
func New(cfg config.Config, logger *zap.Logger) (*App, error) {
	store := session.NewMemoryStore(cfg.SessionCapacity)
	calc := digitsum.New()
	recorder := metrics.New()

	handler := api.NewHandler(calc, store,
		api.WithMetrics(recorder),
		api.WithTracer(tracing.Tracer()),
		api.WithHandlerLogger(logger),
		api.WithMaxBodyBytes(cfg.MaxBodyBytes),
	)
	router := api.NewRouter(handler, logger,
		api.WithLogging(cfg.EnableRequestLogging),
		api.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
	)

	return &App{
		sessions:   store,
		calculator: calc,
		metrics:    recorder,
		handler:    handler,
		router:     router,
		logger:     logger,
		server:     NewServer(cfg, router),
	}, nil
}

// NewServer creates and configures an HTTP server from the provided configuration.
func NewServer(cfg config.Config, handler http.Handler) *http.Server {
	addr := cfg.Port
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

// Start starts the HTTP server in a goroutine and logs the listening address.
func (a *App) Start() error {
	go func() {
		a.logger.Info("server listening", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Fatal("server error", zap.Error(err))
		}
	}()
	return nil
}

// Server returns the HTTP server instance for shutdown handling.
func (a *App) Server() *http.Server {
	return a.server
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler {
	return a.router
}
