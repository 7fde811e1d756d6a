package main

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	bhttp "github.com/radieske/bet-settlement-platform/internal/bet-service/http"
	kpub "github.com/radieske/bet-settlement-platform/internal/bet-service/producer"
	"github.com/radieske/bet-settlement-platform/internal/bet-service/service"
	"github.com/radieske/bet-settlement-platform/internal/ledger"
	"github.com/radieske/bet-settlement-platform/internal/notifier"
	"github.com/radieske/bet-settlement-platform/internal/presence"
	"github.com/radieske/bet-settlement-platform/internal/results"
	"github.com/radieske/bet-settlement-platform/internal/scheduler"
	"github.com/radieske/bet-settlement-platform/internal/settlement"
	sproducer "github.com/radieske/bet-settlement-platform/internal/settlement/producer"
	"github.com/radieske/bet-settlement-platform/internal/settlequeue"
	"github.com/radieske/bet-settlement-platform/internal/shared/cache"
	"github.com/radieske/bet-settlement-platform/internal/shared/config"
	"github.com/radieske/bet-settlement-platform/internal/shared/db"
	"github.com/radieske/bet-settlement-platform/internal/shared/kafka"
	"github.com/radieske/bet-settlement-platform/internal/shared/logger"
	"github.com/radieske/bet-settlement-platform/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Postgres
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("pg", zap.Error(err))
	}
	defer pg.Close()

	// Redis
	rdb, err := cache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	// Kafka writers (bet_placed + bet_settled pro override de admin)
	placedWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicBetPlaced)
	defer placedWriter.Close()
	settledWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicBetSettled)
	defer settledWriter.Close()

	// deps
	repository := ledger.NewPostgres(pg)
	alerts := notifier.New(log, rdb, cfg.NotifChannel, cfg.LiveUpdateChannel)
	oddsCli := results.NewClient(log, cfg.OddsAPIURL, cfg.OddsAPIKey, rdb, cfg.OddsCacheTTL)

	// o override de admin reexecuta a agregação do pai inline
	rec := &settlement.Reconciler{
		Log:    log,
		Ledger: repository,
		Alerts: alerts,
		Events: sproducer.NewKafkaPublisher(settledWriter, nil),
	}

	svc := &service.Service{
		Log:           log,
		Repo:          repository,
		Sched:         scheduler.NewRedis(rdb),
		Queue:         settlequeue.NewRedis(rdb),
		Presence:      presence.NewRedis(rdb),
		Odds:          oddsCli,
		Alerts:        alerts,
		Events:        kpub.NewKafkaPublisher(placedWriter),
		Rec:           rec,
		CommissionPct: cfg.BetCommissionPct,
	}

	// metrics/health
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		if err := pg.PingContext(ctx); err != nil {
			return err
		}
		return rdb.Ping(ctx).Err()
	})
	defer metricsSrv.Close()
	log.Info("metrics/health", zap.String("addr", ":"+cfg.MetricsPort))

	// HTTP público
	api := bhttp.NewServer(log, svc)
	apiSrv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler: api.Router(),
	}

	log.Info("bet-service listening", zap.String("addr", apiSrv.Addr))
	if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("api", zap.Error(err))
	}
}
