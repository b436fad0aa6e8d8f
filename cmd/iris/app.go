package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/iris/config"
	"github.com/Ramsey-B/iris/internal/repositories/contact"
	"github.com/Ramsey-B/iris/pkg/database"
	"github.com/Ramsey-B/iris/pkg/events"
	"github.com/Ramsey-B/iris/pkg/graph"
	"github.com/Ramsey-B/iris/pkg/identity"
	"github.com/Ramsey-B/iris/pkg/inject"
	"github.com/Ramsey-B/iris/pkg/kafka"
	"github.com/Ramsey-B/iris/pkg/locking"
	"github.com/Ramsey-B/iris/pkg/metrics"
	"github.com/Ramsey-B/iris/pkg/middleware"
	"github.com/Ramsey-B/iris/pkg/redis"
	contactroutes "github.com/Ramsey-B/iris/pkg/routes/contact"
	"github.com/Ramsey-B/iris/pkg/routes/health"
	"github.com/Ramsey-B/iris/pkg/routes/identify"
	"github.com/Ramsey-B/iris/pkg/startup"
	"github.com/Ramsey-B/iris/pkg/tracing"
	"github.com/Ramsey-B/iris/pkg/tracing/exporters"
)

// app holds the process-wide collaborators. Fields are filled in by startup dependencies.
type app struct {
	cfg     *config.Config
	logger  ectologger.Logger
	startup *startup.Startup

	server *http.Server
	health *health.Checker

	db       *database.DatabaseInstance
	redis    *redis.Client
	producer *kafka.Producer
	graph    *graph.Client
}

func newApp(cfg *config.Config, logger ectologger.Logger) *app {
	a := &app{
		cfg:     cfg,
		logger:  logger,
		startup: startup.NewStartup(logger, cfg.StartupMaxAttempts),
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			ReadTimeout:       time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second,
			WriteTimeout:      time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second,
			IdleTimeout:       time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second,
			ReadHeaderTimeout: time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second,
			MaxHeaderBytes:    cfg.MaxHeaderBytes,
		},
	}
	a.registerDependencies()
	return a
}

func (a *app) registerDependencies() {
	cfg := a.cfg
	upstream := []string{"tracing"}

	var shutdownTracing func(context.Context) error
	a.startup.AddDependency(&startup.Dependency{
		Name: "tracing",
		StartFunc: func(ctx context.Context) (err error) {
			shutdownTracing, err = tracing.NewProvider(ctx, tracing.ProviderConfig{
				ServiceName: cfg.AppName,
				Exporter:    cfg.TracingExporter,
				OTLP: exporters.OTLPConfig{
					Endpoint: cfg.OTLPEndpoint,
					Protocol: cfg.OTLPProtocol,
					Insecure: cfg.OTLPInsecure,
				},
			})
			return err
		},
		StopFunc: func(ctx context.Context) error {
			if shutdownTracing == nil {
				return nil
			}
			return shutdownTracing(ctx)
		},
	})

	if cfg.StoreDriver == config.StoreDriverPostgres {
		a.startup.AddDependency(&startup.Dependency{
			Name: "database",
			StartFunc: func(ctx context.Context) (err error) {
				a.db, err = database.Connect(ctx, connectionConfig(cfg), a.logger)
				return err
			},
			StopFunc: func(context.Context) error {
				if a.db == nil {
					return nil
				}
				return a.db.Close()
			},
		})
		a.startup.AddDependency(&startup.Dependency{
			Name:     "migrations",
			Upstream: []string{"database"},
			StartFunc: func(context.Context) error {
				migrations := database.NewMigrationService(a.logger, migrationConfig(cfg))
				return migrations.MigratePostgres(a.db, cfg.DatabaseName)
			},
		})
		upstream = append(upstream, "migrations")
	}

	if cfg.RedisEnabled {
		a.startup.AddDependency(&startup.Dependency{
			Name: "redis",
			StartFunc: func(ctx context.Context) (err error) {
				a.redis, err = redis.NewClient(ctx, redis.Config{
					Host:     cfg.RedisHost,
					Port:     cfg.RedisPort,
					Password: cfg.RedisPassword,
					DB:       cfg.RedisDB,
				}, a.logger)
				return err
			},
			StopFunc: func(context.Context) error {
				if a.redis == nil {
					return nil
				}
				return a.redis.Close()
			},
		})
		upstream = append(upstream, "redis")
	}

	if cfg.KafkaEnabled {
		a.startup.AddDependency(&startup.Dependency{
			Name: "kafka",
			StartFunc: func(context.Context) error {
				a.producer = kafka.NewProducer(kafka.ProducerConfig{
					Brokers:      cfg.KafkaBrokers,
					Topic:        cfg.KafkaOutputTopic,
					BatchSize:    cfg.KafkaBatchSize,
					BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
					RequiredAcks: cfg.KafkaRequiredAcks,
					Compression:  cfg.KafkaCompression,
				}, a.logger)
				return nil
			},
			StopFunc: func(context.Context) error {
				if a.producer == nil {
					return nil
				}
				return a.producer.Close()
			},
		})
		upstream = append(upstream, "kafka")
	}

	if cfg.GraphEnabled {
		a.startup.AddDependency(&startup.Dependency{
			Name: "graph",
			StartFunc: func(ctx context.Context) error {
				client, err := graph.NewClient(graph.Config{
					Host:     cfg.GraphDBHost,
					Port:     cfg.GraphDBPort,
					Username: cfg.GraphDBUser,
					Password: cfg.GraphDBPassword,
				}, a.logger)
				if err != nil {
					return err
				}
				if err := client.VerifyConnectivity(ctx); err != nil {
					_ = client.Close(ctx)
					return fmt.Errorf("graph database unreachable: %w", err)
				}
				a.graph = client
				return nil
			},
			StopFunc: func(ctx context.Context) error {
				if a.graph == nil {
					return nil
				}
				return a.graph.Close(ctx)
			},
		})
		upstream = append(upstream, "graph")
	}

	a.startup.AddDependency(&startup.Dependency{
		Name:     "api",
		Upstream: upstream,
		StartFunc: func(ctx context.Context) error {
			handler, err := a.buildAPI(ctx)
			if err != nil {
				return err
			}
			a.server.Handler = handler
			return nil
		},
	})
}

// buildAPI assembles the engine and a fresh echo instance, so a failed attempt can simply be rerun.
func (a *app) buildAPI(ctx context.Context) (*echo.Echo, error) {
	cfg := a.cfg

	var store identity.Store
	if a.db != nil {
		store = contact.NewRepository(a.db, a.logger)
	} else {
		a.logger.WithContext(ctx).Warn("using the in-memory contact store, data is lost on restart")
		store = contact.NewMemoryRepository()
	}

	opts := []identity.Option{
		identity.WithLocker(a.locker()),
		identity.WithMaxAttempts(cfg.IdentifyMaxAttempts),
		identity.WithMaxWalkDepth(cfg.MaxWalkDepth),
	}
	if cfg.MetricsEnabled {
		opts = append(opts, identity.WithObserver(metrics.Observer{}))
	}
	if a.producer != nil {
		opts = append(opts, identity.WithObserver(events.NewEmitter(a.producer, a.logger)))
	}
	if a.graph != nil {
		opts = append(opts, identity.WithObserver(graph.NewClusterService(a.graph, a.logger)))
	}
	engine := identity.NewEngine(store, a.logger, opts...)

	container, err := inject.NewContainer(cfg.AppName, a.logger, engine)
	if err != nil {
		return nil, err
	}

	checks := map[string]health.Pinger{}
	if a.db != nil {
		checks["database"] = health.PingerFunc(a.db.PingContext)
	}
	if a.redis != nil {
		checks["redis"] = a.redis
	}
	if a.graph != nil {
		checks["graph"] = health.PingerFunc(a.graph.VerifyConnectivity)
	}
	a.health = health.NewChecker(cfg.Version, checks)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(a.logger)
	e.Use(otelecho.Middleware(cfg.AppName))
	if cfg.MetricsEnabled {
		e.Use(metrics.Middleware())
	}
	e.Use(middleware.Context())
	e.Use(middleware.Container(container.GetContainerID()))
	e.Use(middleware.Logger(a.logger))
	e.Use(echomw.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization, echo.HeaderXRequestID},
	}))
	e.Use(middleware.JSONOnly())
	if cfg.RateLimitEnabled {
		limit := middleware.RateLimitConfig{
			Max:    cfg.RateLimitMax,
			Window: cfg.RateLimitWindow,
			Skip:   skipOperational,
		}
		var rateStore echomw.RateLimiterStore = middleware.NewMemoryRateLimitStore(limit)
		if a.redis != nil {
			rateStore = middleware.NewRedisRateLimitStore(a.redis, limit, a.logger)
		}
		e.Use(middleware.RateLimit(rateStore, limit))
	}

	if cfg.MetricsEnabled {
		e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	}
	a.health.Register(e.Group("/api/health"))

	api := e.Group("/api")
	if cfg.AuthEnabled {
		verifier, err := middleware.NewOIDCVerifier(ctx, cfg.AuthIssuerURL, cfg.AuthClientID)
		if err != nil {
			return nil, fmt.Errorf("failed to discover oidc issuer: %w", err)
		}
		api.Use(middleware.Authentication(a.logger, verifier))
	}
	identify.Register(api)
	contactroutes.Register(api.Group("/contacts"))

	return e, nil
}

func (a *app) locker() locking.Locker {
	switch a.cfg.LockStrategy {
	case config.LockStrategyAdvisory:
		return locking.NewAdvisoryLocker(a.db, a.logger)
	case config.LockStrategyRedis:
		return locking.NewRedisLocker(a.redis, a.cfg.LockTTL, a.cfg.LockWait, a.logger)
	default:
		return locking.NoopLocker{}
	}
}

func skipOperational(c echo.Context) bool {
	path := c.Request().URL.Path
	return path == "/metrics" || strings.HasPrefix(path, "/api/health")
}

func connectionConfig(cfg *config.Config) database.ConnectionConfig {
	return database.ConnectionConfig{
		Host:            cfg.DatabaseHost,
		Port:            cfg.DatabasePort,
		User:            cfg.DatabaseUserName,
		Password:        cfg.DatabasePassword,
		Name:            cfg.DatabaseName,
		SSLMode:         cfg.DatabaseSSLMode,
		MaxOpenConns:    cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: cfg.DatabaseConnMaxLifetime,
	}
}

func migrationConfig(cfg *config.Config) database.MigrationConfig {
	return database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             cfg.DatabaseMigrationVersion,
		Force:               cfg.DatabaseMigrationForce,
		AutoRollback:        cfg.DatabaseMigrationAutoRollback,
	}
}
