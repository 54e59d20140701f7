package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"campusbooking/internal/audit"
	"campusbooking/internal/booking"
	"campusbooking/internal/httpapi"
	"campusbooking/internal/notify"
	"campusbooking/internal/resource"
	"campusbooking/pkg/cache"
	"campusbooking/pkg/config"
	"campusbooking/pkg/db"
	"campusbooking/pkg/logging"
	"campusbooking/pkg/mq"
	"campusbooking/pkg/obs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}

	log, logCloser := logging.New(cfg.Log)
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := obs.InitTracer(ctx, cfg.OTel, cfg.AppEnv)
	if err != nil {
		log.Fatalf("tracing: %v", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracer(sctx)
	}()

	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		rdb, err = cache.Open(ctx, cfg.Redis.URL)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer rdb.Close()
	}

	opts := booking.Options{
		MaxAttempts: cfg.Admission.MaxAttempts,
		BaseBackoff: cfg.Admission.BaseBackoff,
		Log:         log,
	}

	if cfg.Rabbit.URL != "" {
		pub, err := mq.NewPublisher(cfg.Rabbit.URL, cfg.Rabbit.BookingExchange)
		if err != nil {
			log.Fatalf("rabbitmq: %v", err)
		}
		defer pub.Close()
		opts.Notifier = notify.BrokerNotifier{Pub: pub}
	}

	var (
		store   booking.Store
		catalog resource.Catalog
	)
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		mem := booking.NewMemStore()
		for _, res := range resource.Sample() {
			mem.PutResource(res)
		}
		store, catalog = mem, mem.Catalog()
		opts.Auditor = audit.LogRecorder{Log: log}
		log.Warn("using in-memory booking store; data is lost on restart")
	default:
		conn, err := db.Open(ctx, cfg)
		if err != nil {
			log.Fatalf("db open: %v", err)
		}
		defer conn.Close()

		if cfg.MigrationsPath != "" {
			if err := db.Migrate(cfg.MigrationsPath, cfg); err != nil {
				log.Fatalf("migrate: %v", err)
			}
		}
		store = booking.NewPostgresStore(conn, cfg.Admission.LockTimeout)
		catalog = resource.NewRepository(conn)
		opts.Auditor = audit.NewRepository(conn)
	}
	if rdb != nil {
		catalog = &resource.CachedCatalog{Next: catalog, Redis: rdb, TTL: cfg.Redis.ResourceTTL, Log: log}
	}

	router, err := httpapi.NewRouter(httpapi.Dependencies{
		Cfg:      cfg,
		Log:      log,
		Bookings: booking.NewService(store, opts),
		Catalog:  catalog,
		Redis:    rdb,
	})
	if err != nil {
		log.Fatalf("router: %v", err)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithFields(logrus.Fields{"addr": cfg.HTTPAddr, "store": cfg.StoreDriver}).Info("http listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http serve: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
}
