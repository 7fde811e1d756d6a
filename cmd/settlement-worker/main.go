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
	"github.com/radieske/bet-settlement-platform/internal/results"
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

var (
	sweepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_sweeps_total",
		Help: "Varreduras completas da fila de liquidação",
	})
	legsSettledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_legs_settled_total",
		Help: "Legs avaliados com resultado terminal, por resultado",
	}, []string{"result"})
	betsSettledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_bets_settled_total",
		Help: "Apostas pai liquidadas, por status final",
	}, []string{"status"})
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_errors_total",
		Help: "Erros de liquidação, por estágio",
	}, []string{"stage"})
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

	settledWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicBetSettled)
	defer settledWriter.Close()
	dlqWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicSettlementDLQ)
	defer dlqWriter.Close()

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		if err := pg.PingContext(ctx); err != nil {
			return err
		}
		return rdb.Ping(ctx).Err()
	})
	defer metricsSrv.Close()
	log.Info("metrics/health", zap.String("addr", ":"+cfg.MetricsPort))

	repository := ledger.NewPostgres(pg)
	alerts := notifier.New(log, rdb, cfg.NotifChannel, cfg.LiveUpdateChannel)
	publisher := sproducer.NewKafkaPublisher(settledWriter, dlqWriter)

	rec := &settlement.Reconciler{
		Log:    log,
		Ledger: repository,
		Alerts: alerts,
		Events: publisher,
		OnPayout: func(status string) {
			betsSettledTotal.WithLabelValues(status).Inc()
		},
	}
	proc := &settlement.Processor{
		Log:        log,
		Ledger:     repository,
		Queue:      settlequeue.NewRedis(rdb),
		Results:    results.NewClient(log, cfg.OddsAPIURL, cfg.OddsAPIKey, rdb, cfg.OddsCacheTTL),
		Rec:        rec,
		Alerts:     alerts,
		DLQ:        publisher,
		WindowDays: cfg.ScoreWindowDays,
		OnSweep:    sweepsTotal.Inc,
		OnSettled: func(result string) {
			legsSettledTotal.WithLabelValues(result).Inc()
		},
		OnError: func(stage string) {
			errorsTotal.WithLabelValues(stage).Inc()
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	proc.Run(ctx, cfg.SweepInterval)
}
