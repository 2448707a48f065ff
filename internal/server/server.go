// Package server wires the settlement engine behind an HTTP API.
//
// The engine core (store, fees, lifecycle, orchestrator, netting, admin)
// never imports this package: the server is a replaceable wrapper that
// translates HTTP to engine entry points and streams the audit log.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/swiftremit/swiftremit/internal/admin"
	"github.com/swiftremit/swiftremit/internal/config"
	"github.com/swiftremit/swiftremit/internal/event"
	"github.com/swiftremit/swiftremit/internal/idgen"
	"github.com/swiftremit/swiftremit/internal/ledgertime"
	"github.com/swiftremit/swiftremit/internal/logging"
	"github.com/swiftremit/swiftremit/internal/metrics"
	"github.com/swiftremit/swiftremit/internal/ratelimit"
	"github.com/swiftremit/swiftremit/internal/realtime"
	"github.com/swiftremit/swiftremit/internal/reconciliation"
	"github.com/swiftremit/swiftremit/internal/remit"
	"github.com/swiftremit/swiftremit/internal/roles"
	"github.com/swiftremit/swiftremit/internal/store"
	"github.com/swiftremit/swiftremit/internal/token"
	"github.com/swiftremit/swiftremit/internal/traces"
	"github.com/swiftremit/swiftremit/internal/validation"
)

// Server hosts the HTTP API over the settlement engine.
type Server struct {
	cfg    *config.Config
	logger *slog.Logger
	router *gin.Engine

	db       *sql.DB
	memStore *store.MemoryStore // non-nil in demo mode, for TTL sweeps
	pgStore  *store.PostgresStore
	engine   store.Transactional
	tok      token.Token
	clock    *ledgertime.System
	custody  common.Address

	hub       *realtime.Hub
	memLog    *event.MemoryLog
	pgLog     *event.PostgresLog
	remits    *remit.Service
	admins    *admin.Service
	reconcile *reconciliation.Service
	limiter  *ratelimit.Limiter
	httpSrv  *http.Server
	shutdown func(context.Context) error // tracer teardown
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithToken overrides the settlement token (useful for tests).
func WithToken(tok token.Token) Option {
	return func(s *Server) { s.tok = tok }
}

// New creates a server from configuration.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:   cfg,
		clock: ledgertime.NewSystem(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.New(cfg.LogLevel, "text")
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	tracerShutdown, err := traces.Init(context.Background(), cfg.OTLPEndpoint, s.logger)
	if err != nil {
		return nil, fmt.Errorf("initializing tracing: %w", err)
	}
	s.shutdown = tracerShutdown

	// Storage: Postgres when configured, in-memory otherwise.
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
		db.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
		db.SetConnMaxIdleTime(cfg.DBConnMaxIdleTime)
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		s.db = db
		s.pgStore = store.NewPostgresStore(db, s.clock)
		s.engine = s.pgStore
		s.pgLog = event.NewPostgresLog(db)
		s.logger.Info("using postgres storage")
	} else {
		s.memStore = store.NewMemoryStore(s.clock)
		s.engine = s.memStore
		s.memLog = event.NewMemoryLog()
		s.logger.Info("using in-memory storage (demo mode)")
	}

	// Token: on-chain adapter when a key is configured, in-memory otherwise.
	if s.tok == nil {
		if cfg.DemoMode() {
			mem := token.NewMemory()
			s.tok = mem
			s.custody = common.HexToAddress(cfg.CustodyAddress)
		} else {
			erc20, err := token.NewERC20(token.ERC20Config{
				RPCURL:     cfg.RPCURL,
				PrivateKey: cfg.PrivateKey,
				ChainID:    cfg.ChainID,
				Contract:   cfg.TokenContract,
			})
			if err != nil {
				return nil, fmt.Errorf("creating token adapter: %w", err)
			}
			s.tok = erc20
			s.custody = erc20.Custody()
		}
	} else {
		s.custody = common.HexToAddress(cfg.CustodyAddress)
	}

	s.hub = realtime.NewHub(s.logger)
	var sink event.Sink
	if s.pgLog != nil {
		sink = event.MultiSink{s.pgLog, s.hub}
	} else {
		sink = event.MultiSink{s.memLog, s.hub}
	}

	// The host verifies principal authentication upstream of the engine;
	// the demo wrapper accepts the declared caller as authenticated.
	auth := roles.AllowAll{}

	s.remits = remit.NewService(s.engine, s.tok, s.clock, auth, sink, s.custody)
	s.admins = admin.NewService(s.engine, s.tok, s.clock, auth, sink, s.custody)

	var counter reconciliation.EventCounter = s.memLog
	if s.pgLog != nil {
		counter = s.pgLog
	}
	s.reconcile = reconciliation.NewService(counter, s.remits, s.tok, s.custody)

	s.limiter = ratelimit.New(ratelimit.Config{
		RequestsPerMinute: cfg.RateLimitRPM,
		BurstSize:         cfg.RateLimitRPM / 6,
		CleanupInterval:   time.Minute,
	})

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		s.logger.Error("panic recovered", "panic", recovered, "path", c.Request.URL.Path)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Internal server error",
		})
	}))
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
	s.router.Use(metrics.Middleware())
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))
	s.router.Use(s.limiter.Middleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = newRequestID()
		}
		c.Header("X-Request-ID", requestID)
		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", c.Writer.Header().Get("X-Request-ID"),
		)
	}
}

// adminSecretMiddleware guards the admin group when a secret is configured.
func (s *Server) adminSecretMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.AdminSecret != "" && c.GetHeader("X-Admin-Secret") != s.cfg.AdminSecret {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "unauthorized",
				"message": "Invalid admin secret",
			})
			return
		}
		c.Next()
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "alive"})
	})
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	s.router.GET("/ws", func(c *gin.Context) {
		s.hub.HandleWebSocket(c.Writer, c.Request)
	})

	v1 := s.router.Group("/v1")
	remit.NewHandler(s.remits).RegisterRoutes(v1)
	v1.GET("/events", s.eventsHandler)
	v1.GET("/stats", s.statsHandler)
	v1.GET("/reconcile", s.reconcileHandler)

	adminGroup := s.router.Group("/admin", s.adminSecretMiddleware())
	admin.NewHandler(s.admins).RegisterRoutes(adminGroup)
}

func (s *Server) healthHandler(c *gin.Context) {
	status := gin.H{
		"status":  "ok",
		"storage": "memory",
	}
	if s.db != nil {
		status["storage"] = "postgres"
		if err := s.db.Ping(); err != nil {
			status["status"] = "degraded"
			status["database"] = err.Error()
		}
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) readinessHandler(c *gin.Context) {
	if s.db != nil {
		if err := s.db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// eventsHandler serves GET /v1/events?topic=settle.complete&limit=100
func (s *Server) eventsHandler(c *gin.Context) {
	parts := strings.SplitN(c.Query("topic"), ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_topic",
			"message": "topic must be of the form \"prefix.suffix\"",
		})
		return
	}
	topic := event.Topic{parts[0], parts[1]}

	var (
		records []*event.Envelope
		err     error
	)
	if s.pgLog != nil {
		records, err = s.pgLog.ByTopic(c.Request.Context(), topic, 100)
	} else {
		records = s.memLog.ByTopic(topic)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": records, "count": len(records)})
}

func (s *Server) statsHandler(c *gin.Context) {
	ctx := c.Request.Context()
	counter, err := s.remits.SettlementCounter(ctx)
	if err != nil {
		validation.RespondError(c, err)
		return
	}
	accrued, err := s.remits.AccumulatedFees(ctx)
	if err != nil {
		validation.RespondError(c, err)
		return
	}
	paused, err := s.admins.Paused(ctx)
	if err != nil {
		validation.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"settlementCounter": counter,
		"accumulatedFees":   accrued.String(),
		"paused":            paused,
		"realtime":          s.hub.Stats(),
	})
}

// reconcileHandler serves GET /v1/reconcile
func (s *Server) reconcileHandler(c *gin.Context) {
	result, err := s.reconcile.Run(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}
	status := http.StatusOK
	if !result.Healthy {
		status = http.StatusConflict
	}
	c.JSON(status, result)
}

// Run starts the server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.hub.Run(ctx)
	go s.sweepLoop(ctx)
	if s.db != nil {
		go metrics.StartDBStatsCollector(ctx, s.db, 15*time.Second)
	}

	s.bootstrapDemo(ctx)

	s.httpSrv = &http.Server{
		Addr:         ":" + s.cfg.Port,
		Handler:      s.router,
		ReadTimeout:  s.cfg.HTTPReadTimeout,
		WriteTimeout: s.cfg.HTTPWriteTimeout,
		IdleTimeout:  s.cfg.HTTPIdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "port", s.cfg.Port)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		s.logger.Info("shutting down", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("shutting down", "reason", "context cancelled")
	}

	return s.Shutdown()
}

// bootstrapDemo initializes the engine at startup in demo mode so the API
// is usable out of the box. A configured deployment initializes via the
// admin API instead.
func (s *Server) bootstrapDemo(ctx context.Context) {
	if !s.cfg.DemoMode() || s.cfg.AdminAddress == "" {
		return
	}
	adminAddr, ok := validation.ParseAddress(s.cfg.AdminAddress)
	if !ok {
		s.logger.Warn("ADMIN_ADDRESS is not a valid address, skipping bootstrap")
		return
	}
	err := s.admins.Initialize(ctx, admin.InitializeRequest{
		Admin:          adminAddr,
		TokenAddress:   s.cfg.TokenContract,
		FeeBps:         s.cfg.FeeBps,
		ProtocolFeeBps: s.cfg.ProtocolFeeBps,
	})
	if err != nil {
		// Already initialized on a durable store is the normal case.
		s.logger.Info("bootstrap initialize skipped", "reason", err)
		return
	}
	s.logger.Info("engine initialized", "admin", s.cfg.AdminAddress)
}

// sweepLoop periodically drops lapsed temporary records.
func (s *Server) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.memStore != nil {
				if n := s.memStore.Sweep(); n > 0 {
					s.logger.Debug("swept temporary records", "count", n)
				}
			}
			if s.pgStore != nil {
				if n, err := s.pgStore.Sweep(ctx); err != nil {
					s.logger.Warn("sweep failed", "error", err)
				} else if n > 0 {
					s.logger.Debug("swept temporary records", "count", n)
				}
			}
		}
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var firstErr error
	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			firstErr = err
		}
	}
	s.limiter.Stop()
	if s.shutdown != nil {
		if err := s.shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func newRequestID() string {
	return idgen.WithPrefix("req_")
}
