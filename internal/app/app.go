package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	mongoadapter "github.com/Abdurahmanit/GroupProject/saved-service/internal/adapter/mongo"
	natsadapter "github.com/Abdurahmanit/GroupProject/saved-service/internal/adapter/nats"
	redisadapter "github.com/Abdurahmanit/GroupProject/saved-service/internal/adapter/redis"
	"github.com/Abdurahmanit/GroupProject/saved-service/internal/app/config"
	"github.com/Abdurahmanit/GroupProject/saved-service/internal/identity"
	"github.com/Abdurahmanit/GroupProject/saved-service/internal/platform/logger"
	"github.com/Abdurahmanit/GroupProject/saved-service/internal/platform/metrics"
	"github.com/Abdurahmanit/GroupProject/saved-service/internal/platform/tracer"
	grpcserver "github.com/Abdurahmanit/GroupProject/saved-service/internal/port/grpc"
	httpserver "github.com/Abdurahmanit/GroupProject/saved-service/internal/port/http"
	"github.com/Abdurahmanit/GroupProject/saved-service/internal/repository"
	"github.com/Abdurahmanit/GroupProject/saved-service/internal/service"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"
)

type App struct {
	cfg *config.Config
	log logger.Logger

	httpServer    *httpserver.Server
	grpcServer    *grpcserver.Server
	metricsServer *metrics.Server

	session     *identity.Session
	store       *service.SavedStore
	stopHealth  func()
	revocations *natsadapter.SessionSubscriber

	tp          *sdktrace.TracerProvider
	natsConn    *nats.Conn
	mongoClient *mongo.Client
	redisClient *redis.Client
}

func New(cfg *config.Config) (*App, error) {
	ctx := context.Background()

	appLogger, err := logger.NewZapLogger(logger.ZapLoggerConfig{
		Level:      cfg.Logger.Level,
		Encoding:   cfg.Logger.Encoding,
		TimeFormat: cfg.Logger.TimeFormat,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	appLogger.Info("Logger initialized")
	appLogger.Infof("Configuration loaded: Env=%s, HTTP Port: %s, GRPC Port: %s, Metadata backend: %s",
		cfg.Env, cfg.HTTPServer.Port, cfg.GRPCServer.Port, cfg.Metadata.Backend)

	a := &App{cfg: cfg, log: appLogger}
	a.tp = tracer.InitTracer(cfg.AppName, cfg.Tracing.Endpoint, appLogger)

	repo, err := a.initMetadataRepository(ctx)
	if err != nil {
		a.closeClients(ctx)
		return nil, err
	}

	metricsManager := metrics.NewMetricsManager("saved_service")

	storeOpts := []service.Option{
		service.WithMetrics(metricsManager),
		service.WithTimeouts(cfg.Store.LoadTimeout, cfg.Store.WriteTimeout),
	}
	if cfg.NATS.Enabled {
		nc, err := natsadapter.NewConnection(cfg.NATS, appLogger)
		if err != nil {
			a.closeClients(ctx)
			return nil, fmt.Errorf("failed to initialize NATS: %w", err)
		}
		a.natsConn = nc
		publisher, err := natsadapter.NewSyncPublisher(nc, appLogger)
		if err != nil {
			a.closeClients(ctx)
			return nil, err
		}
		storeOpts = append(storeOpts, service.WithEventPublisher(publisher))
	} else {
		appLogger.Info("NATS is disabled, sync events will not be published")
	}

	a.session = identity.NewSession(identity.NewHMACVerifier(cfg.Auth.JWTSecret), repo, appLogger)
	a.store = service.NewSavedStore(a.session, appLogger, storeOpts...)
	a.store.Bind(ctx)
	a.session.MarkLoaded()

	if a.natsConn != nil {
		a.revocations = natsadapter.NewSessionSubscriber(a.session, appLogger)
		if err := a.revocations.Start(a.natsConn); err != nil {
			a.closeClients(ctx)
			return nil, err
		}
	}

	catalog := service.NewCatalog(appLogger, cfg.Catalog.SearchDelay)
	handler := httpserver.NewHandler(a.session, a.store, catalog, appLogger)
	stream := httpserver.NewStreamHandler(a.store, appLogger)
	router := httpserver.NewRouter(handler, stream, appLogger, metricsManager)
	a.httpServer = httpserver.NewServer(cfg.HTTPServer, router, appLogger)

	a.grpcServer = grpcserver.NewServer(cfg.GRPCServer, appLogger)
	a.stopHealth = grpcserver.WatchStore(a.store, a.grpcServer.Health())

	if cfg.Metrics.Port != "" {
		a.metricsServer = metrics.NewServer(cfg.Metrics.Port, metricsManager.Registry, appLogger)
	} else {
		appLogger.Info("Prometheus metrics server not started (METRICS_PORT not set).")
	}

	appLogger.Info("Application components initialized")
	return a, nil
}

func (a *App) initMetadataRepository(ctx context.Context) (repository.MetadataRepository, error) {
	var repo repository.MetadataRepository
	switch a.cfg.Metadata.Backend {
	case config.BackendMongo:
		a.log.Info("Initializing MongoDB client...")
		client, err := mongoadapter.NewClient(ctx, a.cfg.MongoDB)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize MongoDB client: %w", err)
		}
		a.mongoClient = client
		repo = mongoadapter.NewMetadataRepository(client.Database(a.cfg.MongoDB.Database), a.cfg.MongoDB.Collection, a.cfg.Metadata.MaxBytes)
		a.log.Info("MongoDB metadata repository initialized")
	default:
		a.log.Info("Initializing Redis client...")
		client, err := redisadapter.NewClient(ctx, a.cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Redis client: %w", err)
		}
		a.redisClient = client
		repo = redisadapter.NewMetadataRepository(client, a.cfg.Metadata.MaxBytes)
		a.log.Info("Redis metadata repository initialized")
	}
	return repository.WithTimeout(repo, a.cfg.Metadata.Timeout), nil
}

// Run serves until SIGINT/SIGTERM or until one of the servers fails, then
// shuts everything down.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(a.httpServer.Run)
	g.Go(a.grpcServer.Start)
	if a.metricsServer != nil {
		g.Go(a.metricsServer.Run)
	}
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("Shutting down application...")
		return a.shutdown()
	})

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.log.Errorf("Application stopped with error: %v", err)
		return err
	}
	a.log.Info("Application shut down successfully")
	return nil
}

func (a *App) shutdown() error {
	timeout := a.cfg.HTTPServer.TimeoutGraceful
	if a.cfg.GRPCServer.TimeoutGraceful > timeout {
		timeout = a.cfg.GRPCServer.TimeoutGraceful
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout+5*time.Second)
	defer cancel()

	var errs []error
	if err := a.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := a.grpcServer.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("grpc shutdown: %w", err))
	}
	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics shutdown: %w", err))
		}
	}

	if a.stopHealth != nil {
		a.stopHealth()
	}
	if a.revocations != nil {
		a.revocations.Stop()
	}
	a.store.Close()
	a.session.Close()

	if err := a.tp.Shutdown(ctx); err != nil {
		a.log.Errorf("Failed to shutdown tracer provider: %v", err)
	}
	a.closeClients(ctx)
	_ = a.log.Sync()
	return errors.Join(errs...)
}

func (a *App) closeClients(ctx context.Context) {
	if a.natsConn != nil {
		natsadapter.Close(a.natsConn, a.log)
		a.natsConn = nil
	}
	if a.mongoClient != nil {
		if err := a.mongoClient.Disconnect(ctx); err != nil {
			a.log.Errorf("Error disconnecting from MongoDB: %v", err)
		} else {
			a.log.Info("MongoDB connection closed successfully")
		}
		a.mongoClient = nil
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Errorf("Error closing Redis client: %v", err)
		} else {
			a.log.Info("Redis client closed successfully")
		}
		a.redisClient = nil
	}
}
