package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shop-service/config"
	"shop-service/handlers"
	"shop-service/internal/auth"
	"shop-service/internal/cart"
	"shop-service/internal/consul"
	"shop-service/internal/grpcapi"
	"shop-service/internal/orders"
	"shop-service/internal/payments"
	"shop-service/internal/products"
	"shop-service/internal/stores/kafka"
	"shop-service/internal/stores/postgres"
	"shop-service/internal/users"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func main() {
	setupSlog()
	if err := startApp(); err != nil {
		slog.Error("application stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func startApp() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Postgres
	db, err := postgres.OpenDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := postgres.Migrate(db); err != nil {
		return err
	}
	slog.Info("database ready")

	// Redis
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPass})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}

	keys, err := auth.LoadKeys(cfg.PrivateKeyPath, cfg.PublicKeyPath)
	if err != nil {
		return err
	}

	orderStore, err := orders.NewConf(db)
	if err != nil {
		return err
	}
	builder, err := orders.NewBuilder(orderStore, cfg.TaxRate)
	if err != nil {
		return err
	}
	productStore, err := products.NewConf(db)
	if err != nil {
		return err
	}
	catalog, err := products.NewCatalog(productStore, products.NewRedisCache(rdb))
	if err != nil {
		return err
	}
	carts, err := cart.NewService(rdb, catalog)
	if err != nil {
		return err
	}
	userStore, err := users.NewConf(db)
	if err != nil {
		return err
	}

	deps := handlers.Deps{
		Keys:       keys,
		Builder:    builder,
		Orders:     orderStore,
		Catalog:    catalog,
		Categories: productStore,
		Carts:      carts,
		Users:      userStore,
	}

	// Kafka is optional; without brokers no events are published.
	var publisher payments.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		k, err := kafka.NewConf(cfg.KafkaBrokers)
		if err != nil {
			return err
		}
		defer k.Close()
		publisher = k
		deps.Publisher = k
	}

	if cfg.StripeKey != "" {
		gw, err := payments.NewStripeGateway(payments.StripeConfig{
			SecretKey:  cfg.StripeKey,
			SuccessURL: cfg.PaymentSuccessURL,
			CancelURL:  cfg.PaymentCancelURL,
			Currency:   cfg.PaymentCurrency,
		})
		if err != nil {
			return err
		}
		deps.Gateway = gw
	} else {
		slog.Warn("STRIPE_TEST_KEY not set, checkout is disabled")
	}
	if cfg.StripeWebhookSecret != "" {
		processor, err := payments.NewProcessor(orderStore, publisher, cfg.StripeWebhookSecret)
		if err != nil {
			return err
		}
		deps.Webhooks = processor
	} else {
		slog.Warn("STRIPE_WEBHOOK_SECRET not set, payment webhooks are disabled")
	}

	router, err := handlers.API(cfg.EndpointPrefix, deps)
	if err != nil {
		return err
	}
	api := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  8 * time.Second,
		WriteTimeout: 800 * time.Second,
		IdleTimeout:  800 * time.Second,
	}

	grpcServer := grpcapi.NewServer(orderStore)
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		return fmt.Errorf("failed to listen on grpc port: %w", err)
	}

	if cfg.ConsulAddr != "" {
		client, err := consul.NewClient(cfg.ConsulAddr)
		if err != nil {
			return err
		}
		deregister, err := consul.RegisterService(client, consul.Registration{
			ServiceName: cfg.ServiceName,
			Host:        cfg.ServiceHost,
			Port:        cfg.Port,
			Tags:        []string{"shop", "orders"},
		})
		if err != nil {
			return err
		}
		defer func() {
			if err := deregister(); err != nil {
				slog.Error("consul deregister failed", slog.String("error", err.Error()))
			}
		}()
	}

	serverErrors := make(chan error, 2)
	go func() {
		slog.Info("api listening", slog.String("addr", api.Addr))
		serverErrors <- api.ListenAndServe()
	}()
	go func() {
		slog.Info("grpc listening", slog.String("addr", lis.Addr().String()))
		serverErrors <- grpcServer.Serve(lis)
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			grpcServer.Stop()
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		slog.Info("shutdown started")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	grpcServer.GracefulStop()
	if err := api.Shutdown(shutdownCtx); err != nil {
		_ = api.Close()
		return fmt.Errorf("could not stop server gracefully: %w", err)
	}
	slog.Info("shutdown complete")
	return nil
}

func setupSlog() {
	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: true,
		Level:     slog.LevelInfo,
	})
	slog.SetDefault(slog.New(logHandler))
}
