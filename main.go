package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"session-service/config"
	"session-service/internal/broadcast"
	"session-service/internal/directory"
	"session-service/internal/handlers"
	"session-service/internal/identity"
	"session-service/internal/middleware"
	"session-service/internal/repository"
	"session-service/internal/service"
	ws "session-service/internal/websocket"
	"session-service/pkg/cache"
	"session-service/pkg/database"
	"session-service/pkg/logger"
	"session-service/pkg/messaging"
	"session-service/pkg/telemetry"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.Log.Mode, cfg.Log.File)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("configuration loaded", "store", cfg.DB.Driver, "http_port", cfg.Server.HTTPPort)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer := telemetry.InitTracer(ctx, cfg.Telemetry, log)

	checks := map[string]handlers.Check{}

	var store service.SessionStore
	switch cfg.DB.Driver {
	case "memory":
		store = repository.NewMemorySessionRepository()
		log.Warn("using in-memory session store, sessions are lost on restart")
	default:
		pgClient, err := database.NewPostgresClient(&cfg.DB)
		if err != nil {
			log.Fatal("failed to connect to PostgreSQL", "error", err)
		}
		defer pgClient.Close()
		log.Info("connected to PostgreSQL")

		initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err = pgClient.InitSchema(initCtx)
		cancel()
		if err != nil {
			log.Fatal("failed to initialize PostgreSQL schema", "error", err)
		}

		store = repository.NewSessionRepository(pgClient.GetDB())
		checks["postgres"] = pgClient.Ping
	}

	signals := broadcast.NewHub(log, cfg.Engine.SubscriberBufferSize)

	if cfg.Redis.Enabled {
		redisClient, err := cache.NewRedisClient(&cfg.Redis)
		if err != nil {
			log.Warn("failed to connect to Redis, signals stay node-local", "error", err)
		} else {
			defer redisClient.Close()
			signals.SetRelay(cache.NewSignalRelay(redisClient, cfg.Redis.Channel, log))
			if err := signals.StartRelay(ctx); err != nil {
				log.Warn("failed to start signal relay", "error", err)
			} else {
				log.Info("signal relay started", "channel", cfg.Redis.Channel, "node_id", signals.NodeID())
			}
			checks["redis"] = redisClient.Ping
		}
	}

	var events service.EventPublisher
	if cfg.RabbitMQ.Enabled {
		rabbitClient, err := messaging.NewRabbitMQClient(&cfg.RabbitMQ)
		if err != nil {
			log.Warn("failed to connect to RabbitMQ, lifecycle events are not published", "error", err)
		} else {
			defer rabbitClient.Close()
			events = messaging.NewLifecyclePublisher(rabbitClient, cfg.RabbitMQ.Queue)
			log.Info("connected to RabbitMQ", "queue", cfg.RabbitMQ.Queue)
		}
	}

	dir := directory.New(store)
	sessions := service.NewSessionService(
		store,
		dir,
		signals,
		identity.NewResolver(cfg.Engine.FingerprintSecret),
		events,
		log,
		service.Options{
			SignalBufferSize: cfg.Engine.SignalBufferSize,
			JoinCodeLength:   cfg.Engine.JoinCodeLength,
		},
	)
	if err := sessions.RebuildDirectory(ctx); err != nil {
		log.Fatal("failed to rebuild session directory", "error", err)
	}

	hub := ws.NewHub(log)
	go hub.Run(ctx)

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(otelgin.Middleware(cfg.Telemetry.ServiceName))
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	router.Use(middleware.ErrorHandler(log))
	router.Use(middleware.RequestLogger(log))

	handlers.Routes{
		Sessions:     handlers.NewSessionHandler(sessions),
		Participants: handlers.NewParticipantHandler(sessions),
		WebSocket:    handlers.NewWebSocketHandler(hub, sessions, cfg, log),
		Health:       handlers.NewHealthHandler(checks),
		JWTSecret:    cfg.JWT.Secret,
	}.Register(router)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("HTTP server starting", "port", cfg.Server.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("failed to start HTTP server", "error", err)
		}
	}()

	lis, err := net.Listen("tcp", ":"+cfg.Server.GRPCPort)
	if err != nil {
		log.Fatal("failed to listen", "port", cfg.Server.GRPCPort, "error", err)
	}
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	go func() {
		log.Info("gRPC health server starting", "port", cfg.Server.GRPCPort)
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatal("failed to serve gRPC", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	healthServer.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown failed", "error", err)
	}
	grpcServer.GracefulStop()
	if err := shutdownTracer(shutdownCtx); err != nil {
		log.Error("tracer shutdown failed", "error", err)
	}

	log.Info("session service stopped")
}
