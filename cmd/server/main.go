/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the court booking server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load config from the environment (.env honored), then flags
  2. Open the store (sqlite, postgres or memory)
  3. Pick the publisher (Kafka when brokers are set, log otherwise)
  4. Pick the idempotency store (Redis when addressed, memory otherwise)
  5. Build the booking service, router and completion scheduler
  6. Serve until SIGINT/SIGTERM

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides HTTP_ADDR)
  -db      SQLite database path (overrides SQLITE_PATH)
           Use ":memory:" for in-memory database
  -store   sqlite | postgres | memory (overrides STORE_DRIVER)
  -seed    Load a demo scenario on startup, e.g. -seed=club-evening

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the scheduler, flush the publisher
  4. Close store and Redis connections

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/warp/court-engine/api"
	"github.com/warp/court-engine/booking"
	"github.com/warp/court-engine/booking/store"
	"github.com/warp/court-engine/config"
	"github.com/warp/court-engine/idempotency"
	"github.com/warp/court-engine/metrics"
	"github.com/warp/court-engine/notify"
	"github.com/warp/court-engine/store/postgres"
	"github.com/warp/court-engine/store/sqlite"
)

func main() {
	cfg := config.Load()

	// Flags
	port := flag.Int("port", 0, "HTTP server port (overrides HTTP_ADDR)")
	dbPath := flag.String("db", cfg.SQLitePath, "SQLite database path")
	driver := flag.String("store", cfg.StoreDriver, "Store driver: sqlite, postgres or memory")
	seed := flag.String("seed", "", "Demo scenario to load on startup")
	flag.Parse()

	if *port != 0 {
		cfg.HTTPAddr = fmt.Sprintf(":%d", *port)
	}
	cfg.SQLitePath = *dbPath
	cfg.StoreDriver = *driver

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Store
	st, ping, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer closeStore()

	// Publisher
	var pub booking.Publisher = notify.LogPublisher{}
	var kafkaPub *notify.KafkaPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPub = notify.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.ServiceName, 1024)
		kafkaPub.Start()
		pub = kafkaPub
		log.Printf("Publishing calendar changes to kafka topic %s", cfg.KafkaTopic)
	}

	// Idempotency
	var idem idempotency.Store = idempotency.NewMemoryStore(cfg.IdempotencyTTL)
	if cfg.RedisAddr != "" {
		rdb := idempotency.NewRedisClient(cfg.RedisAddr)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("Failed to reach redis at %s: %v", cfg.RedisAddr, err)
		}
		idem = idempotency.NewRedisStore(rdb, cfg.IdempotencyTTL)
	}

	svc := booking.NewService(st,
		booking.WithPublisher(pub),
		booking.WithObserver(metrics.Observer{}),
		booking.WithRefundRate(cfg.RefundRate),
		booking.WithMaxOccurrences(cfg.MaxSeriesOccurrences),
	)

	if *seed != "" {
		if err := api.LoadScenario(ctx, svc, st, *seed, time.Now()); err != nil {
			log.Fatalf("Failed to load scenario %q: %v", *seed, err)
		}
		log.Printf("Loaded scenario %s", *seed)
	}

	handler := api.NewHandler(svc, st, idem)
	handler.Ping = ping
	router := api.NewRouter(handler, cfg.CORSOrigins)

	scheduler := api.NewCompletionScheduler(svc)
	scheduler.CheckInterval = cfg.CompletionInterval
	scheduler.Start()

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("Server starting on %s (store=%s)", cfg.HTTPAddr, cfg.StoreDriver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Printf("Server error: %v", err)
	}

	scheduler.Stop()
	if kafkaPub != nil {
		kafkaPub.Close()
		kafkaPub.WaitClosed()
	}
	log.Println("Server stopped")
}

// openStore returns the configured store with its health check and closer.
func openStore(ctx context.Context, cfg config.Config) (booking.Store, func(context.Context) error, func(), error) {
	switch cfg.StoreDriver {
	case "memory":
		return store.NewMemory(), nil, func() {}, nil
	case "postgres":
		pool, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		pg, err := postgres.New(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		return pg, pg.Ping, pg.Close, nil
	case "sqlite", "":
		sq, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		return sq, sq.Ping, func() { sq.Close() }, nil
	}
	return nil, nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}
