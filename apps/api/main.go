package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	authhandler "github.com/storeline-hq/storeline-core/domains/auth/be/handler"
	authrepo "github.com/storeline-hq/storeline-core/domains/auth/be/repo"
	authservice "github.com/storeline-hq/storeline-core/domains/auth/be/service"
	tenantshandler "github.com/storeline-hq/storeline-core/domains/tenants/be/handler"
	tenantsrepo "github.com/storeline-hq/storeline-core/domains/tenants/be/repo"
	tenantsservice "github.com/storeline-hq/storeline-core/domains/tenants/be/service"
	usershandler "github.com/storeline-hq/storeline-core/domains/users/be/handler"
	usersrepo "github.com/storeline-hq/storeline-core/domains/users/be/repo"
	usersservice "github.com/storeline-hq/storeline-core/domains/users/be/service"
	platformauth "github.com/storeline-hq/storeline-core/platform/go/auth"
	"github.com/storeline-hq/storeline-core/platform/go/authz"
	platformlogging "github.com/storeline-hq/storeline-core/platform/go/logging"
	platformmiddleware "github.com/storeline-hq/storeline-core/platform/go/middleware"
	"github.com/storeline-hq/storeline-core/platform/go/persistence"
	"github.com/storeline-hq/storeline-core/platform/go/tenant"
)

type config struct {
	Port            string        `env:"PORT" envDefault:"3000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`

	MasterDatabaseURL string `env:"MASTER_DATABASE_URL,required"`
	TenantURLTemplate string `env:"TENANT_DATABASE_URL_TEMPLATE,required"` // expands {server} and {database}

	MaxPoolSize     int32         `env:"MAX_POOL_SIZE" envDefault:"10"`
	MinPoolSize     int32         `env:"MIN_POOL_SIZE" envDefault:"0"`
	ConnectTimeout  time.Duration `env:"CONNECT_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
	IdleTimeout     time.Duration `env:"POOL_IDLE_TIMEOUT" envDefault:"10m"`
	CleanupInterval time.Duration `env:"CACHE_CLEANUP_INTERVAL" envDefault:"1m"`
	InitRetries     int           `env:"INIT_RETRY_ATTEMPTS" envDefault:"3"`
	InitRetryDelay  time.Duration `env:"INIT_RETRY_DELAY" envDefault:"2s"`

	TenantCacheMaxAge time.Duration `env:"TENANT_CACHE_MAX_AGE" envDefault:"5m"`

	PermCacheEnabled bool          `env:"PERMISSION_CACHE_ENABLED" envDefault:"true"`
	PermCacheTTL     time.Duration `env:"PERMISSION_CACHE_TTL" envDefault:"5m"`
	PermCacheMaxSize int           `env:"PERMISSION_CACHE_MAX_SIZE" envDefault:"10000"`

	TokenSecret string        `env:"TOKEN_SECRET,required"`
	TokenTTL    time.Duration `env:"TOKEN_TTL" envDefault:"12h"`
}

func main() {
	ctx := context.Background()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "api-server",
		Level:     cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	masterPool, err := persistence.NewPool(ctx, persistence.PoolConfig{
		ConnString:     cfg.MasterDatabaseURL,
		MaxConns:       cfg.MaxPoolSize,
		MinConns:       cfg.MinPoolSize,
		ConnectTimeout: cfg.ConnectTimeout,
	})
	if err != nil {
		logger.Fatal("init master pool", zap.Error(err))
	}

	tenantStore, err := persistence.NewTenantStore(masterPool)
	if err != nil {
		logger.Fatal("init tenant store", zap.Error(err))
	}
	directory := tenant.NewDirectory(tenantStore, cfg.TenantCacheMaxAge)

	router := persistence.NewRouter(persistence.RouterConfig{
		MasterURL:         cfg.MasterDatabaseURL,
		TenantURLTemplate: cfg.TenantURLTemplate,
		MaxPoolSize:       cfg.MaxPoolSize,
		MinPoolSize:       cfg.MinPoolSize,
		ConnectTimeout:    cfg.ConnectTimeout,
		RequestTimeout:    cfg.RequestTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		CleanupInterval:   cfg.CleanupInterval,
		InitRetryAttempts: cfg.InitRetries,
		InitRetryDelay:    cfg.InitRetryDelay,
	}, directory, logger, persistence.WithMasterPool(masterPool))
	if err := router.Initialize(ctx); err != nil {
		logger.Fatal("init connection router", zap.Error(err))
	}
	defer router.Close()

	permissionCache := authz.NewCache(authz.CacheConfig{
		Enabled: cfg.PermCacheEnabled,
		TTL:     cfg.PermCacheTTL,
		MaxSize: cfg.PermCacheMaxSize,
	})
	resolver := authz.NewResolver(router, permissionCache, logger)

	verifier, err := platformauth.NewTokenVerifier(cfg.TokenSecret)
	if err != nil {
		logger.Fatal("init token verifier", zap.Error(err))
	}
	issuer, err := platformauth.NewTokenIssuer(cfg.TokenSecret, cfg.TokenTTL)
	if err != nil {
		logger.Fatal("init token issuer", zap.Error(err))
	}

	gateway := platformauth.NewGateway(verifier, router, directory, logger)

	guard := authservice.New(authrepo.NewPostgresRepository(router), issuer, logger)
	authHTTPHandler := authhandler.New(guard, resolver, logger)

	tenantsSvc := tenantsservice.New(tenantsrepo.NewPostgresRepository(tenantStore), router, resolver, logger)
	tenantsHTTPHandler := tenantshandler.New(tenantsSvc, logger)

	usersSvc := usersservice.New(usersrepo.NewPostgresRepository(router), resolver, logger)
	usersHTTPHandler := usershandler.New(usersSvc, logger)

	rootRouter := chi.NewRouter()

	rootRouter.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Timeout(cfg.RequestTimeout),
		platformmiddleware.DefaultCORS(),
	)

	rootRouter.Use(platformlogging.RequestLogger(logger))

	rootRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rootRouter.Post("/auth/login", authHTTPHandler.Login)

	apiRouter := chi.NewRouter()
	apiRouter.Use(gateway.Middleware())
	apiRouter.Use(platformmiddleware.RequestTrace)
	apiRouter.Use(platformauth.RequireStoreScope())

	apiRouter.Post("/auth/logout", authHTTPHandler.Logout)
	apiRouter.Get("/auth/me", authHTTPHandler.Me)
	apiRouter.Post("/auth/permissions", authHTTPHandler.Permissions)

	tenantsHTTPHandler.Mount(apiRouter)
	usersHTTPHandler.Mount(apiRouter)

	rootRouter.Mount("/api/v1", apiRouter)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      rootRouter,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting api server", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
