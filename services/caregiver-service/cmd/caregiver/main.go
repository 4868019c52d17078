package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/Sparta-CareNest/carenest-backend/pkg/config"
	"github.com/Sparta-CareNest/carenest-backend/pkg/db"
	"github.com/Sparta-CareNest/carenest-backend/pkg/mq"
	"github.com/Sparta-CareNest/carenest-backend/pkg/obs"
	"github.com/Sparta-CareNest/carenest-backend/services/caregiver-service/internal/consumer"
	"github.com/Sparta-CareNest/carenest-backend/services/caregiver-service/internal/repository"
	"github.com/Sparta-CareNest/carenest-backend/services/caregiver-service/internal/service"
)

func main() {
	_ = godotenv.Load(".env")

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With(slog.String("service", "caregiver"))
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("load config", slog.String("err", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := obs.InitTracer(ctx, "caregiver-service")
	if err != nil {
		log.Error("init tracer", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	gdb, err := db.Open(cfg.PGCaregiverDSN)
	if err != nil {
		log.Error("open database", slog.String("err", err.Error()))
		os.Exit(1)
	}
	repo := repository.NewApprovalRepo(gdb)
	if err := repo.Migrate(); err != nil {
		log.Error("migrate", slog.String("err", err.Error()))
		os.Exit(1)
	}

	svc := service.NewApprovalService(repo, log)

	cons, err := mq.NewConsumer(cfg.Saga, "caregiver.approval.q", consumer.Topics, consumer.Handler(svc, log), log)
	if err != nil {
		log.Error("connect consumer", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer cons.Close()

	log.Info("caregiver participant started",
		slog.Any("topics", consumer.Topics),
		slog.Int("concurrency", cfg.Concurrency))

	if err := cons.Run(ctx); err != nil {
		log.Error("consumer stopped", slog.String("err", err.Error()))
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
