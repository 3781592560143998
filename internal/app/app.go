package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/ecom/internal/health"
	"github.com/vladislavdragonenkov/ecom/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/ecom/internal/metrics"
	"github.com/vladislavdragonenkov/ecom/internal/service/checkout"
	"github.com/vladislavdragonenkov/ecom/internal/service/couponledger"
	"github.com/vladislavdragonenkov/ecom/internal/service/inventory"
	"github.com/vladislavdragonenkov/ecom/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/ecom/internal/service/outbox"
	"github.com/vladislavdragonenkov/ecom/internal/service/payment"
	"github.com/vladislavdragonenkov/ecom/internal/service/pricing"
	"github.com/vladislavdragonenkov/ecom/internal/transport/httpapi"
	"github.com/vladislavdragonenkov/ecom/internal/version"
)

const shutdownTimeout = 5 * time.Second

// Run собирает зависимости и поднимает сервис: HTTP API, сервер метрик
// и (при настроенном Kafka) outbox worker. Блокируется до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := buildDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close(logger)

	engineMetrics := metrics.NewEngineMetrics()

	evaluator := pricing.NewEvaluator(deps.products, deps.coupons, deps.usage, cfg.Pricing,
		log.WithField("component", "pricing"))
	invLedger := inventory.NewLedger(deps.products, log.WithField("component", "inventory"))
	couponLedger := couponledger.NewLedger(deps.coupons, deps.usage, log.WithField("component", "coupon-ledger"))
	lifecycleSvc := lifecycle.NewService(deps.orders, invLedger, couponLedger, deps.outbox,
		engineMetrics, log.WithField("component", "lifecycle"))

	// NOTE: mock-шлюз для разработки; в продакшене сюда подставляется
	// клиент реального платёжного провайдера.
	gateway := payment.NewMockGateway()

	checkoutSvc := checkout.NewService(evaluator, invLedger, deps.orders, couponLedger,
		lifecycleSvc, gateway, deps.outbox, engineMetrics, log.WithField("component", "checkout"))
	reconciler := payment.NewReconciler(deps.orders, lifecycleSvc, deps.callbacks,
		engineMetrics, log.WithField("component", "payment-reconciler"))

	// Kafka + outbox worker (опционально): без брокера события копятся
	// в outbox и сервис продолжает работать.
	var kafkaProducer *kafka.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers)
		if err != nil {
			logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		} else {
			kafkaProducer = producer
			logger.WithField("brokers", cfg.KafkaBrokers).Info("kafka producer initialized")

			topic := cfg.KafkaTopic
			if topic == "" {
				topic = kafka.TopicOrderEvents
			}
			worker := outbox.NewWorker(
				deps.outbox,
				kafka.NewOutboxPublisher(producer, topic),
				outbox.WithDLQPublisher(kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetterQueue)),
				outbox.WithPollInterval(cfg.OutboxPollInterval),
				outbox.WithBatchSize(cfg.OutboxBatchSize),
				outbox.WithLogger(log.WithField("component", "outbox-worker")),
			)
			go worker.Run(ctx)
		}
	}

	appVersion, _, _ := version.Info()
	healthHandler := healthcheck.NewHandler(appVersion)
	if deps.pg != nil {
		pg := deps.pg
		healthHandler.RegisterChecker("postgres", healthcheck.NewSimpleChecker("postgres", func() error {
			return pg.Ping(context.Background())
		}))
	}
	if deps.redis != nil {
		rdb := deps.redis
		healthHandler.RegisterChecker("redis", healthcheck.NewSimpleChecker("redis", func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return rdb.Ping(pingCtx).Err()
		}))
	}

	router := httpapi.NewRouter(
		httpapi.NewOrdersHandler(checkoutSvc, lifecycleSvc, log.WithField("component", "http-orders")),
		httpapi.NewWebhookHandler(reconciler, log.WithField("component", "http-webhook")),
		healthHandler,
	)

	apiSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}
	metricsSrv := startMetricsServer(cfg.MetricsAddr, logger, healthHandler)

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP API слушает %s", cfg.HTTPAddr)
		errCh <- apiSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем HTTP сервер")
		shutdownHTTP(apiSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		closeKafka(kafkaProducer, logger)
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(metricsSrv, logger)
		closeKafka(kafkaProducer, logger)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus.
func startMetricsServer(addr string, logger *log.Entry, healthHandler http.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()
	return srv
}

func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("http server shutdown failed")
	}
}

func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}
	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}
