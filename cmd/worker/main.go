package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Domenick1991/spabooking/config"
	"github.com/Domenick1991/spabooking/internal/bootstrap"
	"github.com/Domenick1991/spabooking/internal/email"
	"github.com/Domenick1991/spabooking/internal/kafka"
	"github.com/Domenick1991/spabooking/internal/logger"
	"github.com/Domenick1991/spabooking/internal/service/membership"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, closeStores, err := bootstrap.OpenStores(ctx, cfg.Database)
	if err != nil {
		zl.Fatal("open stores", zap.Error(err))
	}
	defer closeStores()

	discountRate, err := decimal.NewFromString(cfg.Pricing.DiscountRate)
	if err != nil {
		zl.Fatal("invalid discount rate", zap.String("value", cfg.Pricing.DiscountRate), zap.Error(err))
	}
	memberships := membership.NewService(stores.Memberships, discountRate, cfg.Pricing.MembershipMonths,
		membership.WithLogger(zl.Named("membership")))
	sender := email.NewSender(zl.Named("email"))

	g, gctx := errgroup.WithContext(ctx)

	if len(cfg.Kafka.Brokers) > 0 {
		for _, topic := range []string{cfg.Kafka.NotificationsTopic, cfg.Kafka.LedgerEventsTopic} {
			if topic == "" {
				continue
			}
			consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, topic)
			defer consumer.Close()

			topic := topic
			g.Go(func() error {
				zl.Info("consuming notifications", zap.String("topic", topic))
				return consumer.Consume(gctx, sender.Handle)
			})
		}
	} else {
		zl.Warn("no kafka brokers configured, notifications are disabled")
	}

	g.Go(func() error {
		sweep := time.Duration(cfg.Worker.MembershipSweepMinutes) * time.Minute
		if sweep <= 0 {
			sweep = time.Hour
		}
		ticker := time.NewTicker(sweep)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				expired, err := memberships.ExpireStale(gctx)
				if err != nil {
					zl.Error("expire memberships", zap.Error(err))
					continue
				}
				if len(expired) > 0 {
					zl.Info("expired memberships", zap.Int("count", len(expired)))
				}
			case <-gctx.Done():
				return nil
			}
		}
	})

	zl.Info("worker started", zap.String("storage", cfg.Database.Driver))
	if err := g.Wait(); err != nil {
		zl.Error("worker stopped", zap.Error(err))
		return
	}
	zl.Info("worker shut down")
}
