package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"salonbook/backend/internal/config"
	"salonbook/backend/internal/domain"
	"salonbook/backend/internal/lock"
	"salonbook/backend/internal/notify"
	"salonbook/backend/internal/notify/kafka"
	"salonbook/backend/internal/service/appointments"
	"salonbook/backend/internal/service/availability"
	"salonbook/backend/internal/service/blackouts"
	"salonbook/backend/internal/service/reservations"
	"salonbook/backend/internal/store"
	"salonbook/backend/internal/store/memory"
	"salonbook/backend/internal/store/mongo"
	"salonbook/backend/internal/store/postgres"
	"salonbook/backend/internal/telemetry"
	"salonbook/backend/internal/transport"
	grpcTransport "salonbook/backend/internal/transport/grpc"
	"salonbook/backend/internal/transport/httpapi"
)

const serviceName = "salon-server"

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).With(
		slog.String("service", serviceName),
	)
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)})).With(
		slog.String("service", serviceName),
	)
	slog.SetDefault(log)

	os.Exit(run(log, cfg))
}

// run wires the server from cfg and blocks until a signal or a server
// failure. It returns the process exit code.
func run(log *slog.Logger, cfg config.Config) int {
	log.Info("starting",
		slog.String("grpc_addr", cfg.GRPCAddr()),
		slog.String("http_addr", cfg.HTTPAddr),
		slog.String("store", cfg.StoreDriver),
		slog.String("timezone", cfg.Timezone),
		slog.String("log_level", cfg.LogLevel),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:     cfg.OTelEnabled,
		ServiceName: serviceName,
		Endpoint:    cfg.OTelEndpoint,
		SampleRatio: cfg.OTelSampleRatio,
	})
	if err != nil {
		log.Error("telemetry setup failed", slog.Any("err", err))
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			log.Warn("telemetry shutdown failed", slog.Any("err", err))
		}
	}()

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Error("timezone load failed", slog.Any("err", err), slog.String("timezone", cfg.Timezone))
		return 1
	}
	cal := domain.NewCalendar(loc)

	repo, closeStore, err := openStore(ctx, log, cfg)
	if err != nil {
		return 1
	}
	defer closeStore()

	locker, closeLocker := newLocker(log, cfg)
	defer closeLocker()

	notifier, closeNotifier, err := newNotifier(log, cfg)
	if err != nil {
		log.Error("notifier setup failed", slog.Any("err", err))
		return 1
	}
	defer closeNotifier()
	events := notify.NewDispatcher(notifier, cfg.NotifyTimeout, log)

	resolver := availability.NewResolver(repo, cal)
	coord := reservations.NewCoordinator(repo, resolver, locker,
		reservations.WithCalendar(cal),
		reservations.WithInitialStatus(domain.AppointmentStatus(cfg.InitialStatus)),
		reservations.WithEvents(events),
		reservations.WithLogger(log),
	)
	apptSvc := appointments.NewService(repo, coord, locker, cal, events, log)
	blackoutSvc := blackouts.NewService(repo, cal, log)

	svc := transport.Services{
		Availability: resolver,
		Reservations: coord,
		Appointments: apptSvc,
		Blackouts:    blackoutSvc,
	}

	pruneCtx, stopPruner := context.WithCancel(context.Background())
	pruneDone := make(chan struct{})
	go func() {
		defer close(pruneDone)
		blackouts.NewPruner(blackoutSvc, cfg.PruneInterval, log).Run(pruneCtx)
	}()

	grpcServer := gogrpc.NewServer(
		gogrpc.StatsHandler(otelgrpc.NewServerHandler()),
		gogrpc.ChainUnaryInterceptor(
			grpcTransport.RecoveryInterceptor(log),
			grpcTransport.RequestTimeoutInterceptor(cfg.GRPCRequestTimeout),
		),
	)
	grpcTransport.RegisterSchedulingServiceServer(grpcServer, grpcTransport.NewSchedulingServer(svc, log))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(grpcTransport.ServiceName, healthpb.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", cfg.GRPCAddr())
	if err != nil {
		log.Error("grpc listen failed", slog.Any("err", err), slog.String("grpc_addr", cfg.GRPCAddr()))
		return 1
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           otelhttp.NewHandler(httpapi.NewHandler(svc, log).Routes(), "salon-http"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- grpcServer.Serve(lis)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	log.Info("servers started", slog.String("grpc_addr", cfg.GRPCAddr()), slog.String("http_addr", cfg.HTTPAddr))

	exitCode := 0
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, gogrpc.ErrServerStopped) {
			log.Error("server stopped with error", slog.Any("err", err))
			exitCode = 1
		}
	}

	healthServer.Shutdown()
	shutdownHTTP(log, httpServer, cfg.ShutdownTimeout)
	shutdown(log, grpcServer, cfg.ShutdownTimeout)

	stopPruner()
	<-pruneDone
	events.Wait()

	return exitCode
}

// openStore returns the repository selected by cfg.StoreDriver and a func
// that releases it.
func openStore(ctx context.Context, log *slog.Logger, cfg config.Config) (store.Repository, func(), error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
		db, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.PoolConfig{
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxLifetime: cfg.DBConnMaxLifetime,
			ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
		})
		if err != nil {
			args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.DatabaseURL)...)
			log.Error("database connection failed", args...)
			return nil, nil, err
		}
		return postgres.NewRepo(db), func() {
			if err := postgres.Close(db); err != nil {
				log.Warn("database close failed", slog.Any("err", err))
			}
		}, nil

	case config.StoreMongo:
		log.Info("connecting to mongo", databaseLogArgs(cfg.MongoURI)...)
		client, err := mongo.Connect(ctx, cfg.MongoURI)
		if err != nil {
			args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.MongoURI)...)
			log.Error("mongo connection failed", args...)
			return nil, nil, err
		}
		closeFn := func() {
			dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := client.Disconnect(dctx); err != nil {
				log.Warn("mongo disconnect failed", slog.Any("err", err))
			}
		}
		s := mongo.New(client.Database(cfg.MongoDatabase))
		if err := s.EnsureIndexes(ctx); err != nil {
			log.Error("mongo index setup failed", slog.Any("err", err), slog.String("database", cfg.MongoDatabase))
			closeFn()
			return nil, nil, err
		}
		return s, closeFn, nil

	default:
		log.Warn("using in-memory store; data is lost on restart")
		return memory.New(), func() {}, nil
	}
}

// newLocker uses Redis when an address is configured so that several
// replicas serialize on the same slot keys.
func newLocker(log *slog.Logger, cfg config.Config) (lock.Locker, func()) {
	if cfg.RedisAddr == "" {
		return lock.NewKeyed(), func() {}
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	log.Info("using redis slot locks", slog.String("redis_addr", cfg.RedisAddr), slog.Duration("ttl", cfg.LockTTL))
	return lock.NewRedis(rdb, "salon:lock", cfg.LockTTL, lock.WithLogger(log)), func() {
		if err := rdb.Close(); err != nil {
			log.Warn("redis close failed", slog.Any("err", err))
		}
	}
}

func newNotifier(log *slog.Logger, cfg config.Config) (notify.Notifier, func(), error) {
	if cfg.KafkaBrokers == "" {
		return notify.NewLog(log), func() {}, nil
	}
	pub, err := kafka.NewPublisher(kafka.Config{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.KafkaTopic,
		Source:  serviceName,
	})
	if err != nil {
		return nil, nil, err
	}
	log.Info("publishing appointment events", slog.String("topic", cfg.KafkaTopic))
	return pub, func() {
		if err := pub.Close(); err != nil {
			log.Warn("kafka publisher close failed", slog.Any("err", err))
		}
	}, nil
}

func shutdown(log *slog.Logger, s *gogrpc.Server, timeout time.Duration) {
	log.Info("shutting down grpc server", slog.Duration("timeout", timeout))

	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		log.Info("grpc server stopped")
	case <-timer.C:
		log.Warn("grpc graceful shutdown timed out; forcing stop")
		s.Stop()
	}
}

func shutdownHTTP(log *slog.Logger, s *http.Server, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		log.Warn("http graceful shutdown failed; closing", slog.Any("err", err))
		_ = s.Close()
		return
	}
	log.Info("http server stopped")
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// databaseLogArgs describes a connection URL without its credentials.
func databaseLogArgs(databaseURL string) []any {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return []any{slog.String("db_url", "invalid")}
	}
	name := strings.TrimPrefix(u.Path, "/")
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "default"
	}
	if host == "" {
		host = "unknown"
	}
	if name == "" {
		name = "unknown"
	}
	return []any{
		slog.String("db_host", host),
		slog.String("db_port", port),
		slog.String("db_name", name),
	}
}
