package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lostfound-sync/internal/config"
	"github.com/lostfound-sync/internal/infrastructure/dynamo"
	jwtinfra "github.com/lostfound-sync/internal/infrastructure/jwt"
	"github.com/lostfound-sync/internal/infrastructure/postgres"
	"github.com/lostfound-sync/internal/infrastructure/realtime"
	s3infra "github.com/lostfound-sync/internal/infrastructure/s3"
	"github.com/lostfound-sync/internal/infrastructure/streams"
	"github.com/lostfound-sync/internal/infrastructure/supabase"
	transporthttp "github.com/lostfound-sync/internal/transport/http"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	var deps *transporthttp.Deps
	switch cfg.Backend {
	case config.BackendAWS:
		deps = awsDeps(ctx, cfg)
	case config.BackendSupabase:
		deps = supabaseDeps(cfg)
	default:
		log.Fatalf("unknown BACKEND %q", cfg.Backend)
	}

	// JWT provider (optional: without it every screen mount is rejected).
	if p, err := jwtinfra.NewProvider(cfg.JWTSecret); err == nil {
		deps.JWTProvider = p
	} else {
		log.Printf("WARN: JWT provider not available: %v", err)
	}

	router := transporthttp.NewRouter(ctx, cfg, deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s (env=%s, backend=%s)", cfg.AppPort, cfg.AppEnv, cfg.Backend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	log.Println("Server stopped")
}

// awsDeps wires DynamoDB for fetch and mutate, DynamoDB Streams for the change feed and S3 for
// image references.
func awsDeps(ctx context.Context, cfg *config.Config) *transporthttp.Deps {
	awsCfg, err := dynamo.LoadAWSConfig(ctx, cfg)
	if err != nil {
		log.Fatalf("aws config: %v", err)
	}

	// Bootstrap DynamoDB tables (creates them with streams enabled if they don't exist).
	dynamoClient := dynamo.NewClient(awsCfg, cfg)
	dynamo.Bootstrap(ctx, dynamoClient, cfg.DynamoTables)
	store := dynamo.NewStore(dynamoClient, cfg.DynamoTables)

	return &transporthttp.Deps{
		Notifications: store,
		Items:         store,
		Health:        store,
		Feed: streams.NewTransport(
			dynamoClient,
			streams.NewClient(awsCfg, cfg),
			streams.Tables(cfg.DynamoTables),
			cfg.StreamPoll,
		),
		Images: s3infra.NewImageResolver(s3infra.NewClient(awsCfg, cfg), cfg.S3BucketName, cfg.ImageURLTTL),
	}
}

// supabaseDeps wires the managed Postgres for fetch and mutate, Realtime for the change feed and
// Storage for image references.
func supabaseDeps(cfg *config.Config) *transporthttp.Deps {
	db, err := postgres.Open(cfg.DatabaseURL, cfg.AppEnv == "development")
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	if cfg.AppEnv == "development" {
		if err := postgres.Migrate(db); err != nil {
			log.Fatalf("migrate: %v", err)
		}
	}
	store := postgres.NewStore(db)

	rt, err := realtime.NewTransport(cfg.SupabaseURL, cfg.SupabaseKey)
	if err != nil {
		log.Fatalf("realtime: %v", err)
	}

	return &transporthttp.Deps{
		Notifications: store,
		Items:         store,
		Health:        store,
		Feed:          rt,
		Images:        supabase.NewImageResolver(cfg.SupabaseURL, cfg.SupabaseKey, cfg.SupabaseBucket),
	}
}
