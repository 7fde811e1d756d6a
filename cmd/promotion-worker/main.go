package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/radieske/bet-settlement-platform/internal/ledger"
	"github.com/radieske/bet-settlement-platform/internal/notifier"
	"github.com/radieske/bet-settlement-platform/internal/promotion"
	"github.com/radieske/bet-settlement-platform/internal/scheduler"
	"github.com/radieske/bet-settlement-platform/internal/settlequeue"
	"github.com/radieske/bet-settlement-platform/internal/shared/cache"
	"github.com/radieske/bet-settlement-platform/internal/shared/config"
	"github.com/radieske/bet-settlement-platform/internal/shared/db"
	"github.com/radieske/bet-settlement-platform/internal/shared/logger"
	"github.com/radieske/bet-settlement-platform/internal/shared/metrics"
)

var (
	promotedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "promotion_legs_promoted_total",
		Help: "Legs movidos do conjunto de espera para a fila de liquidação",
	})
	errorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "promotion_errors_total",
		Help: "Erros durante a promoção de legs",
	})
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("pg", zap.Error(err))
	}
	defer pg.Close()

	rdb, err := cache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		if err := pg.PingContext(ctx); err != nil {
			return err
		}
		return rdb.Ping(ctx).Err()
	})
	defer metricsSrv.Close()
	log.Info("metrics/health", zap.String("addr", ":"+cfg.MetricsPort))

	worker := &promotion.Worker{
		Log:        log,
		Sched:      scheduler.NewRedis(rdb),
		Queue:      settlequeue.NewRedis(rdb),
		Ledger:     ledger.NewPostgres(pg),
		Live:       notifier.New(log, rdb, cfg.NotifChannel, cfg.LiveUpdateChannel),
		OnPromoted: promotedTotal.Inc,
		OnError:    errorsTotal.Inc,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	worker.Run(ctx, cfg.SweepInterval)
}
