// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/mbd888/quotecore/internal/admin"
	"github.com/mbd888/quotecore/internal/cache"
	"github.com/mbd888/quotecore/internal/catalog"
	"github.com/mbd888/quotecore/internal/config"
	"github.com/mbd888/quotecore/internal/factors"
	"github.com/mbd888/quotecore/internal/finishing"
	"github.com/mbd888/quotecore/internal/geometry"
	"github.com/mbd888/quotecore/internal/health"
	"github.com/mbd888/quotecore/internal/logging"
	"github.com/mbd888/quotecore/internal/material"
	"github.com/mbd888/quotecore/internal/metrics"
	"github.com/mbd888/quotecore/internal/pricing"
	"github.com/mbd888/quotecore/internal/quotes"
	"github.com/mbd888/quotecore/internal/ratelimit"
	"github.com/mbd888/quotecore/internal/riskmodel"
	"github.com/mbd888/quotecore/internal/security"
	"github.com/mbd888/quotecore/internal/tax"
	"github.com/mbd888/quotecore/internal/validation"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg           *config.Config
	engine        *pricing.Engine
	quotes        quotes.Store
	materials     *material.Resolver
	catalog       *catalog.Repository
	catalogStore  catalog.Store
	materialStore material.Store
	health        *health.Registry
	rateLimiter   *ratelimit.Limiter
	db            *sql.DB // nil if using in-memory
	router        *gin.Engine
	httpSrv       *http.Server
	logger        *slog.Logger
	cancelRunCtx  context.CancelFunc // cancels background goroutines started in Run

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithEngine sets a custom pricing engine (for testing)
func WithEngine(e *pricing.Engine) Option {
	return func(s *Server) {
		s.engine = e
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
		health: health.NewRegistry(),
	}

	// Apply options first (may set engine/logger)
	for _, opt := range opts {
		opt(s)
	}

	var (
		catalogStore catalog.Store
		matStore     material.Store
		riskStore    riskmodel.Store
	)

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		// Test connection
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		catalogStore = catalog.NewPostgresStore(db)
		matStore = material.NewPostgresStore(db)
		riskStore = riskmodel.NewPostgresStore(db)
		s.quotes = quotes.NewPostgresStore(db)
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		s.health.Register("database", func(ctx context.Context) health.Status {
			if err := db.PingContext(ctx); err != nil {
				return health.Status{Name: "database", Healthy: false, Detail: err.Error()}
			}
			return health.Status{Name: "database", Healthy: true}
		})
	} else {
		catalogStore = catalog.NewMemoryStore()
		matStore = material.NewMemoryStore()
		riskStore = riskmodel.NewMemoryStore()
		s.quotes = quotes.NewMemoryStore()
		s.logger.Info("using in-memory storage (data will not persist)")
	}

	// Cost-book repository, with Redis as a distributed cache tier when configured
	repoOpts := []catalog.RepositoryOption{}
	if cfg.RedisURL != "" {
		rc, err := cache.NewRedis(cfg.RedisURL)
		if err != nil {
			s.logger.Warn("redis unavailable, falling back to local cache", "error", err)
		} else {
			repoOpts = append(repoOpts, catalog.WithDistributedCache(rc))
			s.logger.Info("distributed catalog cache enabled")

			s.health.Register("redis", func(ctx context.Context) health.Status {
				if err := rc.Ping(ctx); err != nil {
					return health.Status{Name: "redis", Healthy: false, Detail: err.Error()}
				}
				return health.Status{Name: "redis", Healthy: true}
			})
		}
	}
	if cfg.CatalogVersion > 0 {
		repoOpts = append(repoOpts, catalog.WithVersionOverride(cfg.CatalogVersion))
		s.logger.Info("catalog version pinned", "version", cfg.CatalogVersion)
	}
	s.catalog = catalog.NewRepository(catalogStore, s.logger, repoOpts...)
	s.catalogStore = catalogStore
	s.materialStore = matStore

	s.materials = material.NewResolver(matStore, s.logger)
	riskLoader := riskmodel.NewLoader(riskStore, s.logger)

	// Finishing: remote estimator when configured, static rate table otherwise
	var finClient finishing.Client
	if cfg.FinishingURL != "" && s.upstreamURLOK("finishing", cfg.FinishingURL) {
		finClient = finishing.NewHTTPClient(cfg.FinishingURL, 5*time.Second)
		s.logger.Info("finishing estimator enabled", "url", cfg.FinishingURL)
	} else {
		finClient = &finishing.StaticClient{}
	}

	// Geometry: remote analyzer when configured; nil degrades to estimates
	var geomAnalyzer geometry.Analyzer
	if cfg.GeometryURL != "" && s.upstreamURLOK("geometry", cfg.GeometryURL) {
		geomAnalyzer = geometry.NewHTTPAnalyzer(cfg.GeometryURL, 5*time.Second)
		s.logger.Info("geometry analyzer enabled", "url", cfg.GeometryURL)
	}

	// Tax: Stripe Tax when keyed, zero-tax otherwise
	var taxCalc tax.Calculator
	if cfg.StripeAPIKey != "" {
		taxCalc = tax.NewStripeCalculator(cfg.StripeAPIKey)
		s.logger.Info("stripe tax enabled")
	} else {
		taxCalc = tax.ZeroCalculator{}
	}

	if s.engine == nil {
		registry := factors.NewRegistry(cfg.OrchestratorVersion, s.logger)
		factors.RegisterBaseline(registry, finClient)

		runCfg := factors.DefaultRunConfig()
		runCfg.OverheadRate = cfg.OverheadRate
		runCfg.InspectionRatePerMin = cfg.InspectionRate

		s.engine = pricing.NewEngine(
			registry,
			s.catalog,
			s.materials,
			riskLoader,
			geomAnalyzer,
			taxCalc,
			s.logger,
		).WithRunConfig(runCfg).WithLegacyConfig(pricing.LegacyConfig{
			LowThreshold:  cfg.LegacyLowThreshold,
			HighThreshold: cfg.LegacyHighThreshold,
			LowMargin:     cfg.LegacyLowMargin,
			MidMargin:     cfg.LegacyMidMargin,
			HighMargin:    cfg.LegacyHighMargin,
		})
		s.logger.Info("pricing engine ready", "orchestrator", cfg.OrchestratorVersion)
	}

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// upstreamURLOK screens configured upstream service URLs before a client is
// built for them. Private and loopback addresses are allowed in development.
func (s *Server) upstreamURLOK(name, rawURL string) bool {
	if s.cfg.IsDevelopment() {
		return true
	}
	if err := security.ValidateEndpointURL(rawURL); err != nil {
		s.logger.Warn("upstream URL rejected", "service", name, "error", err)
		return false
	}
	return true
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS (allow all origins for demo - restrict in production)
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	s.rateLimiter = ratelimit.New(ratelimit.DefaultConfig())
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		// Add to context
		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		// Set response header
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// API info
	s.router.GET("/api", s.infoHandler)

	// V1 API group
	v1 := s.router.Group("/v1")

	// Pricing
	v1.POST("/pricing/calculate", s.calculateHandler)
	v1.GET("/pricing/records/:id", s.getPricingRecordHandler)
	v1.GET("/quotes/:quoteId/pricing", s.listQuotePricingHandler)

	// Tolerance parse preview (no pricing side effects)
	v1.POST("/tolerances/parse", s.parseTolerancesHandler)

	// Reference data
	v1.GET("/materials/:code", validation.MaterialParamMiddleware(), s.getMaterialHandler)
	v1.GET("/catalog/version", s.catalogVersionHandler)

	// Admin routes for publishing cost-book rows and materials
	if s.cfg.AdminSecret != "" {
		adminGroup := v1.Group("")
		adminGroup.Use(admin.SecretMiddleware(s.cfg.AdminSecret))
		admin.NewHandler(s.catalogStore, s.materialStore).RegisterRoutes(adminGroup)
	}
}

// -----------------------------------------------------------------------------
// Health handlers
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp string            `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy, statuses := s.health.CheckAll(ctx)

	checks := make(map[string]string, len(statuses))
	for _, st := range statuses {
		if st.Healthy {
			checks[st.Name] = "healthy"
		} else {
			checks[st.Name] = "unhealthy"
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   s.cfg.OrchestratorVersion,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "quotecore",
		"description": "Manufacturing quote pricing engine",
		"version":     s.cfg.OrchestratorVersion,
		"currency":    "USD",
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Sample DB pool stats into Prometheus gauges
	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	time.Sleep(5 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	// Close database connection pool
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
