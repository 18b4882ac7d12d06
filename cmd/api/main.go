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

	"github.com/gradpath-api/internal/config"
	"github.com/gradpath-api/internal/infrastructure/dynamo"
	googleinfra "github.com/gradpath-api/internal/infrastructure/google"
	jwtinfra "github.com/gradpath-api/internal/infrastructure/jwt"
	redisinfra "github.com/gradpath-api/internal/infrastructure/redis"
	s3infra "github.com/gradpath-api/internal/infrastructure/s3"
	"github.com/gradpath-api/internal/infrastructure/smtp"
	"github.com/gradpath-api/internal/infrastructure/sns"
	"github.com/gradpath-api/internal/metrics"
	transporthttp "github.com/gradpath-api/internal/transport/http"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()

	collector := metrics.NewCollector(prometheus.NewRegistry())

	// Bootstrap the users table (created if it doesn't exist).
	dynamoClient := dynamo.NewClient(cfg)
	dynamo.Bootstrap(context.Background(), dynamoClient, cfg.UsersTable)

	jwtProvider, err := jwtinfra.NewProvider(cfg)
	if err != nil {
		log.Fatalf("JWT provider: %v", err)
	}

	// Auth snapshot cache. Redis being down only costs cache hits.
	authCache := redisinfra.NewAuthCache(redisinfra.NewClient(cfg.RedisAddr, cfg.RedisPassword), cfg.AuthCacheTTL, collector)

	s3Client := s3infra.NewClient(cfg)
	imageStore := s3infra.NewStore(s3Client, cfg.S3BucketName)

	// Verification notifications go to an SNS topic when one is
	// configured, otherwise straight out over SMTP.
	var notifier transporthttp.Notifier
	if cfg.SNSTopicARN != "" {
		publisher, err := sns.NewPublisher(cfg)
		if err != nil {
			log.Fatalf("SNS publisher: %v", err)
		}
		notifier = publisher
	} else {
		notifier = smtp.NewMailer(cfg)
	}

	deps := &transporthttp.Deps{
		UserRepo:       dynamo.NewUserRepo(dynamoClient, cfg.UsersTable),
		AuthCache:      authCache,
		ImageStore:     imageStore,
		Notifier:       notifier,
		GoogleVerifier: googleinfra.NewVerifier(cfg.GoogleClientID),
		JWTProvider:    jwtProvider,
		Metrics:        collector,
	}

	router := transporthttp.NewRouter(cfg, deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s (env=%s)", cfg.AppPort, cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	log.Println("Server stopped")
}
