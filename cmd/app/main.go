package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Domenick1991/spabooking/api"
	"github.com/Domenick1991/spabooking/config"
	"github.com/Domenick1991/spabooking/internal/bootstrap"
	"github.com/Domenick1991/spabooking/internal/cache"
	"github.com/Domenick1991/spabooking/internal/kafka"
	"github.com/Domenick1991/spabooking/internal/lock"
	"github.com/Domenick1991/spabooking/internal/logger"
	"github.com/Domenick1991/spabooking/internal/service/availability"
	"github.com/Domenick1991/spabooking/internal/service/booking"
	"github.com/Domenick1991/spabooking/internal/service/checkout"
	"github.com/Domenick1991/spabooking/internal/service/ledger"
	"github.com/Domenick1991/spabooking/internal/service/membership"
	"github.com/Domenick1991/spabooking/internal/service/refund"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	zl, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer zl.Sync()

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	decimal.MarshalJSONWithoutQuotes = true

	discountRate, err := decimal.NewFromString(cfg.Pricing.DiscountRate)
	if err != nil {
		zl.Fatal("invalid discount rate", zap.String("value", cfg.Pricing.DiscountRate), zap.Error(err))
	}
	penaltyRate, err := decimal.NewFromString(cfg.Pricing.PenaltyRate)
	if err != nil {
		zl.Fatal("invalid penalty rate", zap.String("value", cfg.Pricing.PenaltyRate), zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, closeStores, err := bootstrap.OpenStores(ctx, cfg.Database)
	if err != nil {
		zl.Fatal("open stores", zap.Error(err))
	}
	defer closeStores()

	var (
		locker            lock.Locker = lock.NewKeyedMutex()
		availabilityCache availability.Cache
	)
	if redisClient := connectRedis(ctx, cfg, zl); redisClient != nil {
		defer redisClient.Close()
		if cfg.Booking.LockDriver == config.LockRedis {
			locker = lock.NewRedisLocker(redisClient, cfg.Booking.LockTTL(), cfg.Booking.LockWait())
		}
		ttl := cfg.Booking.CacheTTL()
		if ttl <= 0 {
			ttl = availability.DefaultCacheTTL
		}
		availabilityCache = cache.NewRedisCache(redisClient, ttl)
	}

	bookingOpts := []booking.BookingServiceOption{booking.WithLogger(zl.Named("booking"))}
	ledgerOpts := []ledger.Option{ledger.WithLogger(zl.Named("ledger"))}
	if len(cfg.Kafka.Brokers) > 0 {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, zl.Named("kafka"))
		defer producer.Close()
		if err := producer.CheckConnection(ctx); err != nil {
			zl.Warn("kafka is not reachable, events will be retried per publish", zap.Error(err))
		}
		bookingOpts = append(bookingOpts,
			booking.WithProducer(producer, cfg.Kafka.BookingEventsTopic),
			booking.WithNotificationsTopic(cfg.Kafka.NotificationsTopic),
			booking.WithPublishRetries(cfg.Kafka.PublishRetries),
		)
		ledgerOpts = append(ledgerOpts,
			ledger.WithProducer(producer, cfg.Kafka.LedgerEventsTopic),
			ledger.WithPublishRetries(cfg.Kafka.PublishRetries),
		)
	}

	index := availability.NewIndex(stores.Bookings, availability.NewStaticSlotCatalog(cfg.Booking.DefaultSlots), availabilityCache, zl.Named("availability"))
	bookingService := booking.NewBookingService(stores.Bookings, index, locker, bookingOpts...)
	ledgerService := ledger.NewService(stores.Ledger, locker, ledgerOpts...)
	membershipService := membership.NewService(stores.Memberships, discountRate, cfg.Pricing.MembershipMonths, membership.WithLogger(zl.Named("membership")))
	refundService := refund.NewService(bookingService, membershipService, ledgerService, refund.NewCalculator(penaltyRate), refund.WithLogger(zl.Named("refund")))
	checkoutService := checkout.NewService(bookingService, membershipService, ledgerService, zl.Named("checkout"))

	if cfg.Ledger.SeedDemo {
		if _, err := ledgerService.Seed(ctx, ledger.DemoIdentities(), cfg.Ledger.PinHashCost); err != nil {
			zl.Fatal("seed ledger", zap.Error(err))
		}
	}

	router := api.NewRouter(
		api.RouterConfig{RateLimitPerMinute: cfg.HTTP.RateLimitPerMinute, RateLimitBurst: cfg.HTTP.RateLimitBurst},
		zl,
		api.NewBookingHandler(bookingService, refundService, checkoutService),
		api.NewPaymentHandler(ledgerService, cfg.Ledger.PinHashCost),
		api.NewMembershipHandler(membershipService),
	)

	zl.Info("starting spabooking api",
		zap.String("storage", cfg.Database.Driver),
		zap.String("lock", cfg.Booking.LockDriver),
		zap.Bool("availability_cache", availabilityCache != nil),
	)
	if err := bootstrap.Run(ctx, cfg, router, zl); err != nil {
		zl.Fatal("server error", zap.Error(err))
	}
}

// connectRedis returns nil when redis is not configured or not reachable
// and nothing requires it.
func connectRedis(ctx context.Context, cfg *config.Config, zl *zap.Logger) *redis.Client {
	if cfg.Redis.Addr == "" {
		if cfg.Booking.LockDriver == config.LockRedis {
			zl.Fatal("redis lock driver needs redis.addr")
		}
		return nil
	}
	client := lock.NewRedisClient(cfg.Redis)
	if err := client.Ping(ctx).Err(); err != nil {
		if cfg.Booking.LockDriver == config.LockRedis {
			zl.Fatal("connect redis", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		zl.Warn("redis is not reachable, availability cache disabled", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		_ = client.Close()
		return nil
	}
	return client
}
