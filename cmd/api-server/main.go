package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"gigmarket/db"
	"gigmarket/db/migrations"
	"gigmarket/internal/blob"
	"gigmarket/internal/config"
	"gigmarket/internal/handlers"
	"gigmarket/internal/identity"
	"gigmarket/internal/notify"
	"gigmarket/internal/service"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

func main() {
	logger := log.New(os.Stdout, "[gigmarket] ", log.LstdFlags|log.Lmicroseconds)

	cfg := config.Load(logger)
	if err := cfg.Validate(); err != nil {
		logger.Fatal(err)
	}

	dbConn, err := sqlx.Connect("postgres", cfg.PostgresConn)
	if err != nil {
		logger.Fatalf("Cannot connect to DB: %v", err)
	}
	defer dbConn.Close()

	if err := migrations.Run(dbConn.DB); err != nil {
		logger.Fatalf("Migrations failed: %v", err)
	}

	store := db.NewStorage(dbConn)

	var cache identity.Cache
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Fatalf("Cannot connect to redis: %v", err)
		}
		cache = identity.NewRedisCache(rdb, cfg.ActorCacheTTL)
	} else {
		logger.Println("REDIS_ADDR is not set: token revocation and actor cache are disabled")
	}

	var notifier notify.Dispatcher = notify.LogDispatcher{Logger: logger}
	if len(cfg.KafkaBrokers) > 0 {
		kd := notify.NewKafkaDispatcher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kd.Close()
		notifier = kd
	}

	opts := []service.Option{service.WithWebURL(cfg.WebURL)}
	if cfg.MinioEndpoint != "" {
		blobs, err := blob.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL, cfg.MinioBucket)
		if err != nil {
			logger.Fatalf("Cannot connect to object storage: %v", err)
		}
		opts = append(opts, service.WithBlobStore(blobs))
	} else {
		logger.Println("MINIO_ENDPOINT is not set: file uploads are disabled")
	}

	svc := service.New(store, notifier, logger, opts...)
	h := handlers.NewHandler(svc, logger, cfg.MaxBodyBytes)
	auth := identity.NewAuthenticator([]byte(cfg.JWTSecret), store, cache, logger)

	srv := &http.Server{
		Addr:    cfg.ServerAddress,
		Handler: newRouter(h, auth.Middleware, auth.Logout),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Printf("Starting server on %s", cfg.ServerAddress)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Println("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("Graceful shutdown failed: %v", err)
	}
	if err := svc.Close(shutdownCtx); err != nil {
		logger.Printf("Pending notifications were not sent: %v", err)
	}
}
