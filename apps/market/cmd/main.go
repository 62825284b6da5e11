package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"nftmarket/apps/market/internal/api"
	"nftmarket/apps/market/internal/assets"
	"nftmarket/apps/market/internal/chain"
	"nftmarket/apps/market/internal/config"
	"nftmarket/apps/market/internal/encoder"
	"nftmarket/apps/market/internal/event_publisher"
	"nftmarket/apps/market/internal/matcher"
	"nftmarket/apps/market/internal/metrics"
	"nftmarket/apps/market/internal/query"
	"nftmarket/apps/market/internal/repository"
	"nftmarket/apps/market/internal/verifier"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer logger.Sync()

	cfg := config.NewConfig()

	logger.Info("Starting application with configuration",
		zap.String("rpc_url", cfg.RpcURL),
		zap.String("kafka_broker", cfg.KafkaBroker),
		zap.String("kafka_topic", cfg.KafkaTopic),
		zap.Int("api_port", cfg.APIPort),
		zap.String("exchange", cfg.ExchangeAddress.Hex()),
		zap.String("proxy_registry", cfg.ProxyRegistryAddress.Hex()),
		zap.String("payment_token", cfg.PaymentTokenAddress.Hex()),
		zap.Duration("chain_call_timeout", cfg.ChainCallTimeout),
		zap.Uint64("chain_max_retries", cfg.ChainMaxRetries),
		zap.Bool("enforce_allowance_check", cfg.EnforceAllowanceCheck),
	)

	db, err := sql.Open("postgres", cfg.DbURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := repository.InitMigration(cfg.DbURL); err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	chainClient, err := chain.NewClient(cfg.RpcURL, chain.Options{
		Exchange:      cfg.ExchangeAddress,
		ProxyRegistry: cfg.ProxyRegistryAddress,
		CallTimeout:   cfg.ChainCallTimeout,
		MaxRetries:    cfg.ChainMaxRetries,
		RetryInterval: cfg.ChainRetryInterval,
	}, logger, m)
	if err != nil {
		logger.Fatal("Failed to create chain client", zap.Error(err))
	}
	defer chainClient.Close()

	orderRepository := repository.NewOrderRepository(db, logger)
	outboxRepository := repository.NewOutboxRepository(db, logger)
	payments := assets.NewPaymentRegistry(cfg.PaymentTokenAddress)

	orderEncoder := encoder.NewEncoder(orderRepository, payments, cfg.ExchangeAddress, logger, m)
	orderVerifier := verifier.NewVerifier(orderRepository, chainClient, payments, verifier.Options{
		EnforceAllowanceCheck: cfg.EnforceAllowanceCheck,
	}, logger, m)
	orderMatcher := matcher.NewMatcher(orderRepository, orderEncoder, logger)
	queryService := query.NewService(orderRepository, chainClient, logger)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	if cfg.KafkaBroker != "" {
		eventPublisher, err := event_publisher.NewEventPublisher(cfg.KafkaBroker, cfg.KafkaTopic, cfg.PublishInterval, logger, outboxRepository, m)
		if err != nil {
			logger.Fatal("Failed to create event publisher", zap.Error(err))
		}
		defer eventPublisher.Close()

		go eventPublisher.StartPublishing(ctx)
	} else {
		logger.Warn("KAFKA_BROKER not set, order events stay in the outbox")
	}

	apiServer := api.NewServer(cfg.APIPort,
		api.NewOrderHandler(orderEncoder, orderVerifier, orderMatcher, queryService, payments, logger),
		api.NewAccountHandler(chainClient, payments, logger),
		api.NewInfoHandler(cfg.ExchangeAddress, cfg.ProxyRegistryAddress, payments, cfg.EnforceAllowanceCheck, logger),
		registry, logger)
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Fatal("API server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	logger.Info("Received shutdown signal, starting graceful shutdown...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := apiServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error shutting down API server", zap.Error(err))
	}

	logger.Info("Application shutdown complete")
}
