// ABOUTME: Server wires storage, sync, and the app shell behind an HTTP API
// ABOUTME: Manages listener startup, graceful shutdown, and component teardown

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/2389/spinwheel/internal/app"
	"github.com/2389/spinwheel/internal/config"
	"github.com/2389/spinwheel/internal/history"
	"github.com/2389/spinwheel/internal/notify"
	"github.com/2389/spinwheel/internal/persisted"
	"github.com/2389/spinwheel/internal/settings"
	"github.com/2389/spinwheel/internal/store"
)

const maxBodyBytes = 1 << 20

// Server serves one App over HTTP.
type Server struct {
	config     *config.Config
	store      store.Storage
	bus        *notify.Broadcaster
	relay      *notify.NATSRelay
	app        *app.App
	stopSync   func()
	metrics    *prometheus.Registry
	upgrader   websocket.Upgrader
	handler    http.Handler
	httpServer *http.Server
	logger     *slog.Logger
}

// initStore opens the storage area named by cfg.
func initStore(cfg *config.Config) (*store.SQLiteStore, error) {
	s, err := store.NewSQLiteStore(cfg.Storage.Path, cfg.Storage.Origin)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// initRelay starts the NATS relay when the nats sync backend is configured.
func initRelay(ctx context.Context, cfg *config.Config, bus *notify.Broadcaster, logger *slog.Logger) (*notify.NATSRelay, error) {
	if cfg.Sync.Backend != config.SyncNATS {
		return nil, nil
	}
	relay, err := notify.NewNATSRelay(ctx, bus, notify.RelayConfig{
		URL:           cfg.Sync.NATSURL,
		Subject:       cfg.Sync.Subject,
		Origin:        cfg.Storage.Origin,
		ReconnectWait: cfg.Sync.ReconnectWait,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("starting nats relay: %w", err)
	}
	return relay, nil
}

// New creates a Server from cfg: it opens storage, starts sync, and builds
// the app shell and HTTP routes.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	bus := notify.NewBroadcaster(logger)

	relay, err := initRelay(ctx, cfg, bus, logger)
	if err != nil {
		bus.Close()
		_ = s.Close()
		return nil, err
	}
	cleanup := func() {
		if relay != nil {
			_ = relay.Close()
		}
		bus.Close()
		_ = s.Close()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	cellMetrics, err := persisted.NewMetrics(reg)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("registering metrics: %w", err)
	}
	if err := registerSubscriberGauges(reg, bus); err != nil {
		cleanup()
		return nil, fmt.Errorf("registering metrics: %w", err)
	}

	shell, err := app.New(ctx, app.Deps{
		Storage: s,
		Bus:     bus,
		Metrics: cellMetrics,
		Logger:  logger,
	})
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("creating app: %w", err)
	}

	srv := &Server{
		config:   cfg,
		store:    s,
		bus:      bus,
		relay:    relay,
		app:      shell,
		stopSync: shell.Start(context.WithoutCancel(ctx)),
		metrics:  reg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger.With("component", "server"),
	}

	shell.Settings().OnSync(func(st settings.AppSettings) {
		srv.logger.Info("settings synced from another context",
			"selection_type", st.SelectionType,
			"dark_mode", st.IsDarkMode)
	})
	shell.History().OnSync(func(entries []history.Entry) {
		srv.logger.Info("history synced from another context", "entries", len(entries))
	})

	mux := http.NewServeMux()
	srv.registerRoutes(mux)

	srv.handler = newCORS(cfg.Server.AllowedOrigins).Handler(mux)
	srv.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           srv.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	srv.logger.Info("server initialized",
		"origin", cfg.Storage.Origin,
		"context_id", shell.ContextID(),
		"sync_backend", cfg.Sync.Backend)
	return srv, nil
}

// registerSubscriberGauges exports the live subscription count for each
// persisted key and for the wildcard used by relays and websocket clients.
func registerSubscriberGauges(reg prometheus.Registerer, bus *notify.Broadcaster) error {
	for _, key := range []string{settings.StorageKey, history.StorageKey, notify.AllKeys} {
		g := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "spinwheel_event_subscribers",
			Help:        "Active storage event subscriptions by key.",
			ConstLabels: prometheus.Labels{"key": key},
		}, func() float64 {
			return float64(bus.SubscriberCount(key))
		})
		if err := reg.Register(g); err != nil {
			return err
		}
	}
	return nil
}

func newCORS(allowed []string) *cors.Cors {
	if len(allowed) == 0 {
		allowed = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
		},
		AllowedOrigins: allowed,
		AllowedHeaders: []string{"*"},
	})
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("GET /api/participants", s.handleListParticipants)
	mux.HandleFunc("POST /api/participants", s.handleAddParticipant)
	mux.HandleFunc("POST /api/participants/bulk", s.handleAddParticipants)
	mux.HandleFunc("PUT /api/participants", s.handleReplaceParticipants)
	mux.HandleFunc("DELETE /api/participants", s.handleClearParticipants)
	mux.HandleFunc("DELETE /api/participants/{id}", s.handleRemoveParticipant)

	mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	mux.HandleFunc("PUT /api/settings/selection-type", s.handleSetSelectionType)
	mux.HandleFunc("POST /api/settings/exclude-previous-winners/toggle", s.handleToggleExclude)
	mux.HandleFunc("PUT /api/settings/animation-duration", s.handleSetAnimationDuration)
	mux.HandleFunc("POST /api/settings/dark-mode/toggle", s.handleToggleDarkMode)

	mux.HandleFunc("GET /api/history", s.handleListHistory)
	mux.HandleFunc("DELETE /api/history", s.handleClearHistory)
	mux.HandleFunc("DELETE /api/history/{id}", s.handleRemoveHistory)
	mux.HandleFunc("GET /api/history/winners", s.handlePreviousWinners)
	mux.HandleFunc("GET /api/history/export", s.handleExportHistory)

	mux.HandleFunc("POST /api/spin", s.handleSpin)

	mux.HandleFunc("GET /api/events", s.handleEvents)

	if s.config.Metrics.Enabled {
		mux.Handle("GET "+s.config.Metrics.Path, promhttp.HandlerFor(s.metrics, promhttp.HandlerOpts{}))
	}
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// App returns the shell the server operates on.
func (s *Server) App() *app.App {
	return s.app
}

func (s *Server) startServer(ln net.Listener) chan error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

func (s *Server) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		s.logger.Error("server error", "error", err)
		return err
	}
}

// Run starts the HTTP server and blocks until ctx is cancelled or the server
// fails, then shuts everything down.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting server", "http_addr", s.config.Server.HTTPAddr)

	ln, err := net.Listen("tcp", s.config.Server.HTTPAddr)
	if err != nil {
		_ = s.gracefulShutdown()
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	errCh := s.startServer(ln)
	serverErr := s.waitForShutdownSignal(ctx, errCh)

	shutdownErr := s.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

func (s *Server) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}

func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops the HTTP server, sync, and storage.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", s.httpServer.Shutdown(ctx))

	s.stopSync()
	errs = appendCloseError(errs, "app close", s.app.Close())

	if s.relay != nil {
		errs = appendCloseError(errs, "nats relay close", s.relay.Close())
	}
	s.bus.Close()

	errs = appendCloseError(errs, "store close", s.store.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
