package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Sparta-CareNest/carenest-backend/pkg/config"
	"github.com/Sparta-CareNest/carenest-backend/pkg/db"
	"github.com/Sparta-CareNest/carenest-backend/pkg/mq"
	"github.com/Sparta-CareNest/carenest-backend/pkg/obs"
	"github.com/Sparta-CareNest/carenest-backend/services/settlement-service/internal/consumer"
	"github.com/Sparta-CareNest/carenest-backend/services/settlement-service/internal/repository"
	"github.com/Sparta-CareNest/carenest-backend/services/settlement-service/internal/service"
)

func main() {
	_ = godotenv.Load(".env")

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With(slog.String("service", "settlement"))
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("load config", slog.String("err", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := obs.InitTracer(ctx, "settlement-service")
	if err != nil {
		log.Error("init tracer", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	gdb, err := db.Open(cfg.PGSettlementDSN)
	if err != nil {
		log.Error("open database", slog.String("err", err.Error()))
		os.Exit(1)
	}
	repo := repository.NewSettlementRepo(gdb)
	if err := repo.Migrate(); err != nil {
		log.Error("migrate", slog.String("err", err.Error()))
		os.Exit(1)
	}

	pub, err := mq.NewPublisher(cfg.Saga, log)
	if err != nil {
		log.Error("connect publisher", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer pub.Close()

	svc := service.NewSettlementService(repo, pub, log)

	cons, err := mq.NewConsumer(cfg.Saga, "settlement.reservation.q", consumer.Topics, consumer.Handler(svc, log), log)
	if err != nil {
		log.Error("connect consumer", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer cons.Close()

	go settleLoop(ctx, svc, cfg.SettleInterval, log)

	log.Info("settlement participant started",
		slog.Any("topics", consumer.Topics),
		slog.Duration("settle_interval", cfg.SettleInterval))

	if err := cons.Run(ctx); err != nil {
		log.Error("consumer stopped", slog.String("err", err.Error()))
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

// settleLoop periodically rolls open accruals into settlements.
func settleLoop(ctx context.Context, svc *service.SettlementService, every time.Duration, log *slog.Logger) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := svc.SettleDue(ctx); err != nil {
				log.Error("settlement run failed", slog.String("err", err.Error()))
			}
		}
	}
}
