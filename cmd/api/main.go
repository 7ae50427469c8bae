package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"pmsgw/internal/api"
	"pmsgw/internal/bus"
	"pmsgw/internal/config"
	"pmsgw/internal/logger"
	"pmsgw/internal/model"
	"pmsgw/internal/pms"
	"pmsgw/internal/pms/cloudbeds"
	"pmsgw/internal/pms/mews"
	"pmsgw/internal/secrets"
	"pmsgw/internal/store"
	"pmsgw/internal/syncer"
)

const migrationsDir = "db/migrations"

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer log.Sync() //nolint:errcheck

	if cfg.MasterKey == "" {
		log.Fatal("PMS_MASTER_KEY is required")
	}
	box, err := secrets.NewFromBase64(cfg.MasterKey)
	if err != nil {
		log.Fatal("master key invalid", zap.Error(err))
	}

	var st store.Store
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			log.Fatal("postgres connect failed", zap.Error(err))
		}
		defer pg.Close()
		if err := pg.MigrateDir(migrationsDir); err != nil {
			log.Fatal("migrations failed", zap.Error(err))
		}
		st = pg
		log.Info("using postgres store")
	} else {
		st = store.NewMemory()
		log.Warn("DATABASE_URL not set, using in-memory store")
	}

	var b bus.Bus
	if cfg.RedisURL != "" {
		rb, err := bus.NewRedis(cfg.RedisURL, log)
		if err != nil {
			log.Fatal("redis connect failed", zap.Error(err))
		}
		b = rb
		log.Info("using redis event bus")
	} else {
		b = bus.NewMemory()
		log.Info("using in-memory event bus")
	}

	reg := pms.NewRegistry()
	reg.Register(model.VendorCloudbeds, cloudbeds.New)
	reg.Register(model.VendorMews, mews.New)

	sy := syncer.New(st, b, reg, box, cfg.SyncInterval, log)
	sy.Start()
	defer sy.Stop()

	srv := api.NewServer(st, b, box, reg, sy, cfg.Webhooks, log)
	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.ListenAddr))
		errCh <- httpSrv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		log.Fatal("server exited", zap.Error(err))
	case sig := <-stop:
		log.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Error("shutdown incomplete", zap.Error(err))
	}
}
