// Package server assembles the trip planner from its configuration.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	backend "github.com/redis/go-redis/v9"

	_ "github.com/txn2/trip-planner/internal/apidocs" // register swagger docs
	"github.com/txn2/trip-planner/pkg/api"
	"github.com/txn2/trip-planner/pkg/collect"
	"github.com/txn2/trip-planner/pkg/config"
	"github.com/txn2/trip-planner/pkg/credential"
	"github.com/txn2/trip-planner/pkg/database/migrate"
	"github.com/txn2/trip-planner/pkg/health"
	"github.com/txn2/trip-planner/pkg/metrics"
	"github.com/txn2/trip-planner/pkg/planner"
	"github.com/txn2/trip-planner/pkg/revocation"
	revocationpg "github.com/txn2/trip-planner/pkg/revocation/postgres"
	revocationredis "github.com/txn2/trip-planner/pkg/revocation/redis"
	"github.com/txn2/trip-planner/pkg/search"
	"github.com/txn2/trip-planner/pkg/session"
	sessionpg "github.com/txn2/trip-planner/pkg/session/postgres"
	"github.com/txn2/trip-planner/pkg/sweeper"
	"github.com/txn2/trip-planner/pkg/user"
	userpg "github.com/txn2/trip-planner/pkg/user/postgres"
)

// Version is set at build time.
var Version = "dev"

// Closer is implemented by resources that must be released on shutdown.
type Closer interface {
	Close() error
}

// Server holds every component of a running trip planner.
type Server struct {
	cfg *config.Config

	db    *sql.DB
	redis backend.UniversalClient

	Registry    *prometheus.Registry
	Metrics     *metrics.Metrics
	Health      *health.Checker
	Revocations revocation.Store
	Sessions    session.Store
	Users       user.Store
	Credentials *credential.Manager
	Planner     *planner.Service
	Search      search.Provider
	Sweeper     *sweeper.Sweeper
	Handler     http.Handler
}

// New builds a server from cfg. Storage is PostgreSQL when a DSN is
// configured and in-memory otherwise.
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		cfg:      cfg,
		Registry: prometheus.NewRegistry(),
		Health:   health.NewChecker(),
	}
	s.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	s.Metrics = metrics.New(s.Registry)

	if err := s.connect(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	if err := s.build(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// OpenDatabase opens and pings the configured PostgreSQL database.
func OpenDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database.dsn is not configured")
	}
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return db, nil
}

func (s *Server) connect(ctx context.Context) error {
	if s.cfg.Database.DSN != "" {
		db, err := OpenDatabase(ctx, s.cfg.Database)
		if err != nil {
			return err
		}
		s.db = db
		s.Health.AddCheck("database", db.PingContext)

		if s.cfg.Database.AutoMigrate {
			if err := migrate.Run(db); err != nil {
				return err
			}
		}
	}

	if s.cfg.Redis.Address != "" {
		s.redis = backend.NewUniversalClient(&backend.UniversalOptions{
			Addrs:    []string{s.cfg.Redis.Address},
			Password: s.cfg.Redis.Password,
			DB:       s.cfg.Redis.DB,
		})
		if err := s.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		s.Health.AddCheck("redis", func(ctx context.Context) error {
			return s.redis.Ping(ctx).Err()
		})
	}
	return nil
}

func (s *Server) build() error {
	sessCfg := session.Config{
		Window:          s.cfg.Session.Window,
		DefaultCurrency: s.cfg.Session.DefaultCurrency,
	}
	if s.db != nil {
		s.Sessions = sessionpg.New(s.db, sessCfg)
		s.Users = userpg.New(s.db)
	} else {
		slog.Warn("no database configured, sessions and users are kept in memory")
		s.Sessions = session.NewMemoryStore(sessCfg)
		s.Users = user.NewMemoryStore()
	}

	switch s.cfg.Auth.Revocation {
	case config.BackendPostgres:
		s.Revocations = revocationpg.New(s.db)
	case config.BackendRedis:
		s.Revocations = revocationredis.New(s.redis)
	default:
		s.Revocations = revocation.NewMemoryStore()
	}

	creds, err := credential.NewManager(credential.Config{
		Issuer:     s.cfg.Auth.Issuer,
		SigningKey: []byte(s.cfg.Auth.SigningKey),
		AccessTTL:  s.cfg.Auth.AccessTTL,
		RefreshTTL: s.cfg.Auth.RefreshTTL,
	}, s.Revocations, credential.WithMetrics(s.Metrics))
	if err != nil {
		return fmt.Errorf("creating credential manager: %w", err)
	}
	s.Credentials = creds

	extractor, err := s.extractor()
	if err != nil {
		return err
	}
	loop := collect.NewLoop(extractor,
		collect.WithTimeout(s.cfg.Extraction.Timeout),
		collect.WithMetrics(s.Metrics),
	)
	s.Planner = planner.New(s.Sessions, s.Users, loop)

	if s.Search, err = s.searchProvider(); err != nil {
		return err
	}

	s.Sweeper = sweeper.New(sweeper.Config{
		Interval: s.cfg.Sweeper.Interval,
		Timeout:  s.cfg.Sweeper.Timeout,
	}, s.Metrics,
		sweeper.Target{Name: "revocations", Store: s.Revocations},
		sweeper.Target{Name: "sessions", Store: s.Sessions},
	)

	handler, err := api.NewHandler(api.Deps{
		Credentials: s.Credentials,
		Users:       s.Users,
		Sessions:    s.Sessions,
		Planner:     s.Planner,
		Search:      s.Search,
		Health:      s.Health,
		Gatherer:    s.Registry,
	})
	if err != nil {
		return err
	}
	s.Handler = handler
	return nil
}

// extractor returns the configured extractor. Without an endpoint the loop
// only prompts for missing fields and clients fill memory through patches.
func (s *Server) extractor() (collect.Extractor, error) {
	if s.cfg.Extraction.Endpoint == "" {
		slog.Warn("no extraction endpoint configured, messages will only prompt for missing fields")
		return collect.ExtractorFunc(func(context.Context, session.Memory, string) (*collect.Extraction, error) {
			return &collect.Extraction{}, nil
		}), nil
	}
	ext, err := collect.NewHTTPExtractor(collect.HTTPExtractorConfig{
		Endpoint: s.cfg.Extraction.Endpoint,
		APIKey:   s.cfg.Extraction.APIKey,
		Timeout:  s.cfg.Extraction.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("creating extractor: %w", err)
	}
	return ext, nil
}

func (s *Server) searchProvider() (search.Provider, error) {
	if s.cfg.Search.SerpAPIKey == "" {
		return nil, nil
	}
	client, err := search.NewSerpAPIClient(search.SerpAPIConfig{
		APIKey:     s.cfg.Search.SerpAPIKey,
		BaseURL:    s.cfg.Search.BaseURL,
		MaxResults: s.cfg.Search.MaxResults,
		Timeout:    s.cfg.Search.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("creating search client: %w", err)
	}

	var cache search.Cache
	switch s.cfg.Cache.Backend {
	case config.BackendRedis:
		cache = search.NewRedisCache(s.redis)
	case config.BackendMemory:
		cache = search.NewMemoryCache()
	default:
		return client, nil
	}
	return search.NewCachedProvider(client, cache, search.CacheConfig{TTL: s.cfg.Cache.TTL}, s.Metrics), nil
}

// Run serves HTTP and sweeps expired state until ctx is cancelled, then
// drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Server.Address,
		Handler:      s.Handler,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	if !s.cfg.Sweeper.Disabled {
		s.Sweeper.Start()
	}

	serverErrors := make(chan error, 1)
	go func() {
		slog.Info("trip planner listening", "address", srv.Addr, "version", Version)
		serverErrors <- srv.ListenAndServe()
	}()
	s.Health.SetReady()

	select {
	case err := <-serverErrors:
		s.Health.SetDraining()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving http: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down", "timeout", s.cfg.Server.ShutdownTimeout)
	s.Health.SetDraining()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		_ = srv.Close()
		return fmt.Errorf("graceful shutdown did not complete: %w", err)
	}
	return nil
}

// Close stops the sweeper and releases connections.
func (s *Server) Close() error {
	var errs []error
	if s.Sweeper != nil {
		closeResource(&errs, s.Sweeper)
	}
	if s.redis != nil {
		closeResource(&errs, s.redis)
	}
	if s.db != nil {
		closeResource(&errs, s.db)
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing server: %v", errs)
	}
	return nil
}

func closeResource(errs *[]error, closer Closer) {
	if err := closer.Close(); err != nil {
		*errs = append(*errs, err)
	}
}
