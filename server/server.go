// Package server owns the application components and their lifecycle.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"github.com/cbattlegear/azure-data-chat/api"
	"github.com/cbattlegear/azure-data-chat/approaches"
	"github.com/cbattlegear/azure-data-chat/auth"
	"github.com/cbattlegear/azure-data-chat/config"
	"github.com/cbattlegear/azure-data-chat/datasource"
	"github.com/cbattlegear/azure-data-chat/log"
	"github.com/cbattlegear/azure-data-chat/metrics"
	"github.com/cbattlegear/azure-data-chat/scheduler"
	"github.com/cbattlegear/azure-data-chat/tokencache"
	"github.com/cbattlegear/azure-data-chat/vendors"
)

// Server owns and coordinates all application components
type Server struct {
	cfg *config.Config

	// Components (owned by server)
	metrics    *metrics.Metrics
	data       *datasource.Client
	tokenStore *tokencache.Store
	authHelper *auth.Helper
	provider   *vendors.OpenAIProvider
	chat       *approaches.ChatReadRetrieveRead
	jobs       *scheduler.Scheduler

	// HTTP
	router *gin.Engine
	http   *http.Server
}

// New creates a new server with all components initialized. The context
// bounds startup work such as OIDC discovery; it is not retained.
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	s := &Server{
		cfg:     cfg,
		metrics: metrics.New(),
	}

	// 1. Connect to the database the pipeline retrieves from
	log.Info().Msg("initializing database connection")
	data, err := datasource.Open(ctx, datasource.Config{
		ConnectionString: cfg.DatabaseConnectionString,
		MaxRows:          cfg.MaxQueryRows,
		QueryTimeout:     cfg.QueryTimeout,
		SchemaTTL:        cfg.SchemaCacheTTL,
	}, s.metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	s.data = data

	// 2. Open the token claims cache when one is configured
	if cfg.TokenCachePath != "" {
		log.Info().Str("path", cfg.TokenCachePath).Msg("opening token cache")
		store, err := tokencache.Open(cfg.TokenCachePath)
		if err != nil {
			s.data.Close()
			return nil, fmt.Errorf("failed to open token cache: %w", err)
		}
		s.tokenStore = store
	}

	// 3. Set up authentication
	log.Info().Bool("enabled", cfg.UseAuthentication).Msg("initializing authentication")
	helper, err := auth.NewHelper(ctx, cfg, s.tokenStore)
	if err != nil {
		s.closeStores()
		return nil, fmt.Errorf("failed to initialize authentication: %w", err)
	}
	s.authHelper = helper

	// 4. Create the model provider
	log.Info().Str("host", cfg.OpenAIHost).Msg("initializing model provider")
	provider, err := vendors.NewOpenAIProvider(cfg)
	if err != nil {
		s.closeStores()
		return nil, fmt.Errorf("failed to initialize model provider: %w", err)
	}
	s.provider = provider

	// 5. Assemble the chat pipeline
	s.chat = approaches.NewChatReadRetrieveRead(provider, data, s.metrics)

	// 6. Register maintenance jobs
	if err := s.setupJobs(); err != nil {
		s.closeStores()
		return nil, err
	}

	// 7. Setup HTTP router
	s.setupRouter()

	log.Info().Msg("server initialized successfully")
	return s, nil
}

// setupJobs registers the periodic maintenance work.
func (s *Server) setupJobs() error {
	s.jobs = scheduler.New()

	// Keep the schema snapshot warm so chat requests rarely refresh inline.
	refreshSpec := fmt.Sprintf("@every %s", s.cfg.SchemaCacheTTL)
	err := s.jobs.Add(scheduler.Job{
		Name: "schema-refresh",
		Spec: refreshSpec,
		Run: func() error {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			return s.data.RefreshSchema(ctx)
		},
	})
	if err != nil {
		return fmt.Errorf("failed to register schema refresh job: %w", err)
	}

	if s.tokenStore != nil {
		err := s.jobs.Add(scheduler.Job{
			Name: "token-cache-prune",
			Spec: "@every 1h",
			Run: func() error {
				pruned, err := s.tokenStore.Prune(time.Now())
				if pruned > 0 {
					log.Info().Int64("pruned", pruned).Msg("expired cached tokens removed")
				}
				return err
			},
		})
		if err != nil {
			return fmt.Errorf("failed to register token cache prune job: %w", err)
		}
	}

	return nil
}

// setupRouter creates and configures the Gin router
func (s *Server) setupRouter() {
	if s.cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()

	// Middleware
	s.router.Use(gin.Recovery())
	s.router.Use(api.RequestID())
	s.router.Use(log.GinLogger())
	s.router.Use(s.metrics.GinMiddleware())

	if s.cfg.AllowedOrigin != "" {
		s.router.Use(api.CORS(s.cfg.AllowedOrigin))
	}

	// Gzip compression. The chat stream flushes line by line and must not
	// be buffered; the metrics handler negotiates its own encoding.
	s.router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{
		"/chat",
		"/metrics",
	})))

	// Trust proxy headers
	s.router.SetTrustedProxies(nil)

	// Ignore .well-known requests
	s.router.GET("/.well-known/*path", func(c *gin.Context) {
		c.Status(http.StatusNotFound)
	})

	handlers := api.NewHandlers(s.cfg, s.chat, s.authHelper, s.metrics)
	handlers.Register(s.router)
}

// Start starts the maintenance jobs and the HTTP server (blocks)
func (s *Server) Start() error {
	s.jobs.Start()

	s.http = &http.Server{
		Addr:     s.cfg.Addr(),
		Handler:  s.router,
		ErrorLog: log.StdErrorLogger(), // Route Go's internal HTTP errors through zerolog
	}

	log.Info().
		Str("addr", s.http.Addr).
		Bool("production", s.cfg.IsProduction()).
		Msg("HTTP server starting")

	return s.http.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down server")

	// 1. Stop scheduled jobs and wait for running ones
	if s.jobs != nil {
		s.jobs.Stop()
	}

	// 2. Shutdown HTTP server (stop accepting new requests, wait for existing ones)
	if s.http != nil {
		if err := s.http.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("http server shutdown error")
		}
	}

	// 3. Close stores last
	err := s.closeStores()

	log.Info().Msg("server shutdown complete")
	return err
}

// closeStores closes the token cache and the database connection.
func (s *Server) closeStores() error {
	var firstErr error

	if s.tokenStore != nil {
		if err := s.tokenStore.Close(); err != nil {
			log.Error().Err(err).Msg("token cache close error")
			firstErr = err
		}
	}
	if s.data != nil {
		if err := s.data.Close(); err != nil {
			log.Error().Err(err).Msg("database close error")
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}

// Router returns the configured Gin router.
func (s *Server) Router() *gin.Engine { return s.router }
