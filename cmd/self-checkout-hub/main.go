// Package main boots the self-checkout hub: the event channel, the checkout
// engine, the detection intake and the live feed.
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

	"github.com/fairyhunter13/self-checkout-simulator/internal/catalog"
	"github.com/fairyhunter13/self-checkout-simulator/internal/checkout"
	"github.com/fairyhunter13/self-checkout-simulator/internal/config"
	"github.com/fairyhunter13/self-checkout-simulator/internal/detect"
	"github.com/fairyhunter13/self-checkout-simulator/internal/feed"
	httpapi "github.com/fairyhunter13/self-checkout-simulator/internal/http"
	"github.com/fairyhunter13/self-checkout-simulator/internal/hub"
	"github.com/fairyhunter13/self-checkout-simulator/internal/ledger"
	"github.com/fairyhunter13/self-checkout-simulator/internal/obs"
	"github.com/fairyhunter13/self-checkout-simulator/internal/queue"
)

func openLedger(ctx context.Context, dsn string) ledger.Ledger {
	if dsn == "" {
		obs.Logger.Info("ledger_memory")
		return ledger.NewMemory()
	}
	pg, err := ledger.OpenPostgres(ctx, dsn)
	if err != nil {
		obs.Logger.Error("ledger_connect_failed", "error", err.Error())
		return ledger.Disconnected{}
	}
	obs.Logger.Info("ledger_postgres")
	return pg
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	obs.InitLoggerLevel(cfg.LogLevel)
	obs.Logger.Info("service_starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cat, err := catalog.Open(cfg.ProductsPath)
	if err != nil {
		obs.Logger.Error("catalog_open_failed", "path", cfg.ProductsPath, "error", err.Error())
		os.Exit(1)
	}
	if cat.Len() == 0 {
		if err := cat.Seed(catalog.DefaultSeed); err != nil {
			obs.Logger.Warn("catalog_seed_failed", "error", err.Error())
		}
	}

	led := openLedger(ctx, cfg.LedgerDSN)
	defer led.Close()

	settings := detect.NewSettings(cfg.DetectionConfigPath)
	if _, err := settings.Load(); err != nil && !errors.Is(err, detect.ErrNoSavedConfig) {
		obs.Logger.Warn("detection_config_load_failed", "path", cfg.DetectionConfigPath, "error", err.Error())
	}

	eng := checkout.New(checkout.Options{
		FrameWidth:       cfg.FrameWidth,
		FrameHeight:      cfg.FrameHeight,
		HistoryThrottle:  cfg.HistoryThrottle,
		CameraStaleAfter: cfg.CameraStaleAfter,
	}, cat, led, settings)

	bus := feed.NewBus()
	eng.AttachFeed(bus)

	h := hub.New(eng, hub.Settings{
		SendBuffer:     cfg.SessionSendBuffer,
		PingInterval:   cfg.WSPingInterval,
		WriteTimeout:   cfg.WSWriteTimeout,
		AllowedOrigins: cfg.CORSOrigins,
	})
	eng.Attach(h)

	q := queue.New(128)
	mgr := queue.NewManager(cfg, q, eng)
	mgr.Start(ctx)

	go eng.Run(ctx)

	app := httpapi.NewApp(cfg, eng, cat, mgr, h, bus)
	mux := httpapi.NewRouter(app)

	// No WriteTimeout: /video_feed and /socket hold the response open.
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		obs.Logger.Info("http_listen", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			obs.Logger.Error("http_server_error", "error", err)
			os.Exit(1)
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	s := <-sigc
	obs.Logger.Info("shutdown_signal", "signal", s.String())

	app.StartShutdown()
	obs.Logger.Info("shutdown_drain_begin", "backlog_size", mgr.BacklogSize(), "worker_count", mgr.WorkerCount())

	ctxDrain, cancelDrain := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelDrain()
	if drained := mgr.DrainUntil(ctxDrain); !drained {
		obs.Logger.Warn("shutdown_drain_timeout")
	} else {
		obs.Logger.Info("shutdown_drain_complete")
	}

	h.Close()
	bus.Close()

	ctxSrv, cancelSrv := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelSrv()
	if err := srv.Shutdown(ctxSrv); err != nil {
		obs.Logger.Error("http_shutdown_error", "error", err)
	}
	cancel()
	mgr.Stop()
	obs.Logger.Info("service_stopped")
}
