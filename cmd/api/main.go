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

	"github.com/go-signup-api/internal/application/machine"
	"github.com/go-signup-api/internal/application/notification"
	"github.com/go-signup-api/internal/application/otp"
	"github.com/go-signup-api/internal/application/registration"
	"github.com/go-signup-api/internal/config"
	"github.com/go-signup-api/internal/domain"
	"github.com/go-signup-api/internal/infrastructure/dynamo"
	redisstore "github.com/go-signup-api/internal/infrastructure/redis"
	s3infra "github.com/go-signup-api/internal/infrastructure/s3"
	"github.com/go-signup-api/internal/infrastructure/smtp"
	"github.com/go-signup-api/internal/infrastructure/sns"
	"github.com/go-signup-api/internal/queue"
	"github.com/go-signup-api/internal/ratelimit"
	transporthttp "github.com/go-signup-api/internal/transport/http"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()

	// Ephemeral store: temp users, OTPs, rate limits, machine ids, job queue.
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	store := redisstore.NewClientWith(rdb, cfg.RedisTimeout)
	if err := store.Ping(context.Background()); err != nil {
		log.Fatalf("redis unreachable: %v", err)
	}

	// Permanent user storage (creates the table on first run).
	dynamoClient := dynamo.NewClient(cfg)
	dynamo.Bootstrap(context.Background(), dynamoClient, cfg.UsersTable)
	userRepo := dynamo.NewUserRepo(dynamoClient, cfg.UsersTable)

	// Delivery providers.
	s3Client := s3infra.NewClient(cfg)
	attachments := s3infra.NewStore(s3Client, cfg.S3BucketName)
	mailer := smtp.NewMailer(cfg)

	var smsSender notification.SMSProvider
	if sender, err := sns.NewSender(cfg); err == nil {
		smsSender = sender
	} else {
		log.Printf("WARN: SNS sender not available: %v", err)
	}

	dispatcher := notification.NewDispatcher(notification.DispatcherDeps{
		Email:       mailer,
		SMS:         smsSender,
		Attachments: attachments,
	})

	// Delivery path: queued with retry/backoff when enabled, otherwise a
	// detached synchronous send.
	var (
		sink     notification.Sink
		jobQueue *queue.Queue
		worker   *queue.Worker
	)
	if cfg.Queue.Enabled {
		jobQueue = queue.New(rdb)
		sink = notification.NewQueueSink(jobQueue)
		worker = queue.NewWorker(jobQueue, func(ctx context.Context, p domain.NotificationPayload) error {
			res := dispatcher.Send(ctx, p)
			if !res.Success {
				return fmt.Errorf("%s delivery failed: %s", p.Channel, res.Err)
			}
			return nil
		}, cfg.Queue)
		worker.Start(context.Background())
	} else {
		sink = notification.NewSyncSink(dispatcher)
	}

	otpSvc := otp.NewService(store, cfg.Auth.OTPLength, cfg.Auth.OTPTTL)
	machineSvc := machine.NewService(store, cfg.Auth.MachineIDTTL)
	registrationSvc := registration.NewService(registration.ServiceDeps{
		Store:      store,
		OTP:        otpSvc,
		Users:      userRepo,
		Sink:       sink,
		Dispatcher: dispatcher,
		Auth:       cfg.Auth,
	})

	deps := &transporthttp.Deps{
		Store:        store,
		Registration: registrationSvc,
		Machines:     machineSvc,
		Limiter:      ratelimit.NewLimiter(store),
		Queue:        jobQueue,
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
	if worker != nil {
		worker.Stop()
	}
	_ = store.Close()
	log.Println("Server stopped")
}
