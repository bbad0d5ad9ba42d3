package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/useristn/Toy-Store-Web-sub000/internal/cart"
	"github.com/useristn/Toy-Store-Web-sub000/internal/checkout"
	"github.com/useristn/Toy-Store-Web-sub000/internal/config"
	"github.com/useristn/Toy-Store-Web-sub000/internal/db"
	"github.com/useristn/Toy-Store-Web-sub000/internal/events"
	"github.com/useristn/Toy-Store-Web-sub000/internal/httpapi"
	"github.com/useristn/Toy-Store-Web-sub000/internal/metrics"
	"github.com/useristn/Toy-Store-Web-sub000/internal/order"
	"github.com/useristn/Toy-Store-Web-sub000/internal/reconcile"
	"github.com/useristn/Toy-Store-Web-sub000/internal/redisx"
	"github.com/useristn/Toy-Store-Web-sub000/internal/stock"
	"github.com/useristn/Toy-Store-Web-sub000/internal/vnpay"
	"github.com/useristn/Toy-Store-Web-sub000/internal/voucher"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- DB ---
	pool, err := db.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	if cfg.RunMigrations {
		if err := db.RunMigrations(cfg.PostgresDSN, logger); err != nil {
			logger.Fatal("db migrate", zap.Error(err))
		}
	}

	// --- AMQP ---
	rabbitConn := events.MustDialRabbit(cfg.RabbitURL)
	defer rabbitConn.Close()

	publisher, err := events.NewPublisher(rabbitConn)
	if err != nil {
		logger.Fatal("amqp publisher", zap.Error(err))
	}
	defer publisher.Close()

	// --- Redis ---
	cache := redisx.NewStatusCache(redisx.New(cfg.RedisAddr))

	// --- wiring ---
	orderRepo := order.NewPostgresRepository(pool)
	cartRepo := cart.NewPostgresRepository()
	ledger := stock.NewLedger()
	voucherEngine := voucher.NewEngine(pool)

	gateway := vnpay.NewClient(vnpay.Config{
		TmnCode:    cfg.VNPTmnCode,
		HashSecret: cfg.VNPHashSecret,
		PayURL:     cfg.VNPPayURL,
		ReturnURL:  cfg.VNPReturnURL,
	})

	checkoutSvc := checkout.NewService(pool, orderRepo, cartRepo, ledger, voucherEngine, publisher, logger)
	reconciler := reconcile.NewHandler(pool, orderRepo, ledger, voucherEngine, gateway, publisher, logger)
	returns := reconcile.NewReturnFormatter(gateway)

	m := metrics.New(cfg.ServiceName)

	h := httpapi.NewHandler(checkoutSvc, orderRepo, voucherEngine, reconciler, returns, gateway, cache, m, logger)
	router := httpapi.NewRouter(h)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// --- graceful shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}
