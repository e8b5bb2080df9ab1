package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/YelzhanWeb/tableorders/internal/adapter/firestore"
	"github.com/YelzhanWeb/tableorders/internal/adapter/logger"
	"github.com/YelzhanWeb/tableorders/internal/adapter/memory"
	"github.com/YelzhanWeb/tableorders/internal/adapter/postgres"
	"github.com/YelzhanWeb/tableorders/internal/adapter/rabbitmq"
	"github.com/YelzhanWeb/tableorders/internal/adapter/sqlite"
	"github.com/YelzhanWeb/tableorders/internal/app/cache"
	"github.com/YelzhanWeb/tableorders/internal/app/cart"
	"github.com/YelzhanWeb/tableorders/internal/app/order"
	"github.com/YelzhanWeb/tableorders/internal/app/resilience"
	"github.com/YelzhanWeb/tableorders/internal/config"
	"github.com/YelzhanWeb/tableorders/internal/interfaces"

	amqpAdapter "github.com/YelzhanWeb/tableorders/internal/adapter/amqp"
	httpAdapter "github.com/YelzhanWeb/tableorders/internal/adapter/http"
)

func main() {
	// Parse command-line flags
	mode := flag.String("mode", "", "Service mode: order-service, notification-subscriber, migrate")
	configPath := flag.String("config", "config.yaml", "Path to the yaml config")
	port := flag.Int("port", 0, "HTTP port, overrides the config")
	flag.Parse()

	if *mode == "" {
		log.Fatal("--mode flag is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port != 0 {
		cfg.HTTP.Port = *port
	}

	lgr := logger.New(*mode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch *mode {
	case "order-service":
		err = runOrderService(ctx, cfg, lgr)
	case "notification-subscriber":
		err = runNotificationSubscriber(ctx, cfg, lgr)
	case "migrate":
		err = postgres.Migrate(cfg.Database, lgr)
	default:
		log.Fatalf("Invalid mode: %s", *mode)
	}

	if err != nil {
		lgr.Error("service_failed", "Service stopped with error", "runtime", nil, err)
		os.Exit(1)
	}
}

// orderBackend is the durable store plus whatever it must release on exit.
type orderBackend struct {
	store   interfaces.OrderStore
	history interfaces.StatusHistoryReader
	close   func()
}

func openStore(ctx context.Context, cfg *config.Config, lgr logger.Logger) (*orderBackend, error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		db, err := postgres.Connect(ctx, cfg.Database, lgr)
		if err != nil {
			return nil, err
		}
		lgr.Info("db_connected", "Connected to PostgreSQL database", "startup", map[string]interface{}{
			"host": cfg.Database.Host,
			"db":   cfg.Database.Database,
		})
		store := postgres.NewOrderStore(db, lgr)
		return &orderBackend{store: store, history: store, close: func() {
			store.Close()
			db.Close()
		}}, nil

	case config.DriverFirestore:
		client, err := firestore.Connect(ctx, cfg.Store.FirestoreProject)
		if err != nil {
			return nil, err
		}
		lgr.Info("firestore_connected", "Connected to Firestore", "startup", map[string]interface{}{
			"project": cfg.Store.FirestoreProject,
		})
		store := firestore.NewOrderStore(client, lgr)
		return &orderBackend{store: store, history: store, close: func() { client.Close() }}, nil

	default:
		lgr.Warn("memory_store", "Orders are kept in process memory only", "startup", nil)
		return &orderBackend{store: memory.NewOrderStore(), close: func() {}}, nil
	}
}

func runOrderService(ctx context.Context, cfg *config.Config, lgr logger.Logger) error {
	// 1. Durable store behind retries
	backend, err := openStore(ctx, cfg, lgr)
	if err != nil {
		return fmt.Errorf("failed to open order store: %w", err)
	}
	defer backend.close()

	store := resilience.NewStore(backend.store, resilience.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
	}, lgr)

	// 2. Local medium for the order cache and carts
	kv, err := sqlite.Open(ctx, cfg.Cache.Path)
	if err != nil {
		return fmt.Errorf("failed to open local cache: %w", err)
	}
	defer kv.Close()

	// 3. Broker, optional
	var (
		events    interfaces.EventPublisher
		inventory interfaces.InventoryDeductor
	)
	if cfg.RabbitMQ.Host != "" {
		mqConn, err := rabbitmq.Connect(cfg.RabbitMQ, lgr)
		if err != nil {
			return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
		defer mqConn.Close()

		lgr.Info("rabbitmq_connected", "Connected to RabbitMQ", "startup", map[string]interface{}{
			"host": cfg.RabbitMQ.Host,
		})
		publisher := rabbitmq.NewPublisher(mqConn)
		events, inventory = publisher, publisher
	}

	// 4. Services and HTTP
	carts := cart.NewManager(kv, lgr)
	orderService := order.NewService(store, cache.New(kv, cfg.Cache.TTL, lgr), carts, inventory, events, lgr)
	defer orderService.Dispose()

	router := httpAdapter.NewRouter(
		httpAdapter.NewOrderHandler(orderService, backend.history, cfg.Orders.DefaultTaxRate, lgr),
		httpAdapter.NewCartHandler(carts),
		httpAdapter.NewLiveHandler(orderService, lgr),
		lgr,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	lgr.Info("service_started", fmt.Sprintf("Order Service started on port %d", cfg.HTTP.Port), "startup", map[string]interface{}{
		"port":         cfg.HTTP.Port,
		"store_driver": cfg.Store.Driver,
		"cache_ttl":    cfg.Cache.TTL.String(),
	})

	// Graceful shutdown
	go func() {
		<-ctx.Done()

		lgr.Info("shutdown_initiated", "Shutting down Order Service", "shutdown", nil)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			lgr.Error("shutdown_error", "Error during shutdown", "shutdown", nil, err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func runNotificationSubscriber(ctx context.Context, cfg *config.Config, lgr logger.Logger) error {
	mqConn, err := rabbitmq.Connect(cfg.RabbitMQ, lgr)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	defer mqConn.Close()

	consumer := rabbitmq.NewConsumer(mqConn, lgr)
	handler := amqpAdapter.NewNotificationHandler(lgr, os.Stdout)

	lgr.Info("service_started", "Notification Subscriber started", "startup", map[string]interface{}{
		"exchange": rabbitmq.OrderEventsExchange,
	})

	err = consumer.ConsumeOrderEvents(ctx, handler.HandleOrderEvent)
	lgr.Info("graceful_shutdown", "Shutting down Notification Subscriber", "shutdown", nil)
	if ctx.Err() != nil {
		return nil
	}
	return err
}
