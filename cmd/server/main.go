package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/stripe/stripe-go/v82"

	"github.com/digkill/veocreator/internal/admin"
	"github.com/digkill/veocreator/internal/api"
	"github.com/digkill/veocreator/internal/auth"
	"github.com/digkill/veocreator/internal/cache"
	"github.com/digkill/veocreator/internal/config"
	"github.com/digkill/veocreator/internal/database"
	"github.com/digkill/veocreator/internal/entitlement"
	"github.com/digkill/veocreator/internal/gemini"
	"github.com/digkill/veocreator/internal/ledger"
	"github.com/digkill/veocreator/internal/lock"
	"github.com/digkill/veocreator/internal/repository"
	"github.com/digkill/veocreator/internal/service"
	"github.com/digkill/veocreator/internal/storage"
	"github.com/digkill/veocreator/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New(cfg.LogLevel)

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("database connect: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("database migrate: %v", err)
	}

	var (
		locker    lock.Locker = lock.NewLocalLocker()
		holds     ledger.HoldStore
		snapshots service.SnapshotCache
	)
	if cfg.RedisEnabled() {
		rdb, err := database.ConnectRedis(ctx, cfg)
		if err != nil {
			log.Fatalf("redis connect: %v", err)
		}
		defer rdb.Close()
		locker = lock.NewRedisLocker(rdb, cfg.LockTTL)
		// A hold must outlive the dispatch and the commit that follows it.
		holds = ledger.NewRedisHolds(rdb, cfg.DispatchTimeout+time.Minute)
		snapshots = cache.NewUserCache(rdb, cfg.CacheTTL)
		logr.Info("redis enabled", "addr", cfg.RedisAddr)
	} else {
		logr.Warn("redis disabled, user locks and reservations are process-local")
	}

	var archiver gemini.Archiver
	if cfg.S3Enabled() {
		uploader, err := storage.NewUploader(storage.Config{
			Endpoint:      cfg.S3Endpoint,
			Region:        cfg.S3Region,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			Bucket:        cfg.S3Bucket,
			PublicBaseURL: cfg.S3PublicBaseURL,
			UsePathStyle:  cfg.S3UsePathStyle,
			Prefix:        cfg.S3Prefix,
		})
		if err != nil {
			log.Fatalf("storage uploader: %v", err)
		}
		archiver = uploader
	}

	var dispatcher gemini.Dispatcher
	switch cfg.Dispatcher {
	case config.DispatcherSimulator:
		dispatcher = gemini.NewSimulator(cfg.SimulatedFastDelay, cfg.SimulatedQualityDelay)
		logr.Warn("using simulated video dispatcher")
	default:
		dispatcher = gemini.NewClient(cfg, archiver, logr)
	}

	stripe.Key = cfg.StripeSecretKey

	userRepo := repository.NewUserRepository(db)
	generationRepo := repository.NewGenerationRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)

	policy := entitlement.Policy{
		PaymentRequired:  cfg.PaymentRequired,
		FastVideoCost:    cfg.FastVideoCost,
		QualityVideoCost: cfg.QualityVideoCost,
	}
	usage := ledger.New(userRepo, locker, policy, logr)
	if holds != nil {
		usage.WithHolds(holds)
	}

	userService := service.NewUserService(userRepo, snapshots, logr)
	generationService := service.NewGenerationService(logr, usage, dispatcher, generationRepo, snapshots, cfg.DispatchTimeout)
	subscriptionService := service.NewSubscriptionService(cfg, userRepo, paymentRepo, locker, userService, logr)
	paymentService := service.NewPaymentService(cfg, subscriptionService, logr)

	adminServer := admin.NewServer(cfg.AdminListenAddr, cfg.AdminUsername, cfg.AdminPassword, logr, userService, subscriptionService)
	go func() {
		if err := adminServer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logr.Error("admin server stopped", "err", err)
		}
	}()

	apiServer := api.NewServer(cfg, logr, auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer), userService, generationService, paymentService)
	if err := apiServer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("api server stopped", "err", err)
	}
}
