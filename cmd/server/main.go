package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ecocycle/rvm-loyalty/internal/auth"
	"github.com/ecocycle/rvm-loyalty/internal/config"
	"github.com/ecocycle/rvm-loyalty/internal/logger"
	"github.com/ecocycle/rvm-loyalty/internal/model"
	"github.com/ecocycle/rvm-loyalty/internal/repo"
	"github.com/ecocycle/rvm-loyalty/internal/service"
	httptransport "github.com/ecocycle/rvm-loyalty/internal/transport/http"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/segmentio/kafka-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	// 1. env + config
	_ = godotenv.Load()
	cfg, err := config.Load("internal/config/config.yaml")
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	// 2. init logger
	log, err := logger.NewLogger()
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	// 3. postgres
	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}
	if err := gdb.AutoMigrate(
		&model.User{}, &model.Material{}, &model.Machine{},
		&model.Wallet{}, &model.Transaction{}, &model.Activity{},
		&model.OutboxEvent{},
	); err != nil {
		log.Fatalf("auto-migrate: %v", err)
	}

	// 4. redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("redis ping: %v", err)
	}

	// 5. kafka writer
	kw := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Kafka.Brokers...),
		Topic:    cfg.Kafka.Topic,
		Balancer: &kafka.LeastBytes{},
	}

	// 6. repo & services
	repository := repo.NewRepository(gdb, rdb, kw, log)
	ledger := service.NewLedgerService(repository, log)
	svcs := httptransport.Services{
		Users:    service.NewUserService(repository, ledger, log),
		Ledger:   ledger,
		Deposits: service.NewDepositService(repository, ledger, log),
		Catalog:  service.NewCatalogService(repository, log),
		Machines: service.NewMachineService(repository, log),
	}

	// 7. gin router
	jwtMgr := auth.NewManager(cfg.Auth.Secret, time.Duration(cfg.Auth.TokenTTLHours)*time.Hour)
	router := httptransport.NewRouter(svcs, jwtMgr, cfg.RateLimit, log)

	// 8. serve
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Infof("rvm-loyalty server listening on %s", addr)
	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatalf("listen: %v", err)
	}
}
