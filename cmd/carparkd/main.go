package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/joho/godotenv"

	"carpark-vacancy-backend/config"
	"carpark-vacancy-backend/internal/aggregate"
	"carpark-vacancy-backend/internal/api"
	"carpark-vacancy-backend/internal/dashboard"
	"carpark-vacancy-backend/internal/db"
	"carpark-vacancy-backend/internal/export"
	"carpark-vacancy-backend/internal/poller"
	"carpark-vacancy-backend/internal/store"
)

func main() {
	logger := log.New(os.Stdout, "carparkd ", log.LstdFlags)

	mode := flag.String("mode", "serve", "run mode: serve, ingest, aggregate, dashboard, export, refresh-registry")
	date := flag.String("date", "", "capture date (YYYY-MM-DD) for -mode aggregate; defaults to today")
	from := flag.String("from", "", "start date (YYYY-MM-DD) for -mode export")
	to := flag.String("to", "", "end date (YYYY-MM-DD) for -mode export")
	out := flag.String("out", "", "output file for -mode dashboard / export (default stdout)")
	hours := flag.Int("hours", 24, "time series window in hours for -mode dashboard")
	flag.Parse()

	// .env first, so CONFIG_PATH itself can come from it.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Printf("warning: could not load .env: %v", err)
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	appStore := store.NewGormStore(gormDB)

	pollerSvc, err := poller.NewService(cfg, appStore)
	if err != nil {
		logger.Fatalf("failed to initialize poller: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	switch *mode {
	case "serve":
		runServe(ctx, logger, cfg, appStore, pollerSvc)
	case "ingest":
		pollerSvc.StartWorkers(ctx)
		if err := pollerSvc.PollOnce(ctx); err != nil {
			logger.Fatalf("ingestion failed: %v", err)
		}
	case "aggregate":
		day := *date
		if day == "" {
			day = time.Now().In(pollerSvc.Location()).Format("2006-01-02")
		}
		svc := aggregate.NewService(appStore, pollerSvc.Location())
		n, err := svc.AggregateDate(ctx, day)
		if err != nil {
			logger.Fatalf("aggregation failed: %v", err)
		}
		logger.Printf("wrote %d hourly aggregates for %s", n, day)
	case "dashboard":
		if err := runDashboard(ctx, appStore, pollerSvc.Location(), *hours, *out); err != nil {
			logger.Fatalf("dashboard build failed: %v", err)
		}
	case "export":
		if *from == "" || *to == "" {
			logger.Fatalf("-mode export requires -from and -to")
		}
		if err := runExport(ctx, appStore, *from, *to, *out); err != nil {
			logger.Fatalf("export failed: %v", err)
		}
	case "refresh-registry":
		if err := pollerSvc.RefreshRegistry(ctx); err != nil {
			logger.Fatalf("registry refresh failed: %v", err)
		}
		logger.Println("registry refreshed")
	default:
		logger.Fatalf("unknown mode %q", *mode)
	}
}

func runServe(ctx context.Context, logger *log.Logger, cfg *config.Config, appStore store.Store, pollerSvc *poller.Service) {
	if cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "" {
		logger.Fatalf("VAPID keys must be configured. Please generate them and add them to your config file.")
	}

	webpushOptions := webpush.Options{
		VAPIDPublicKey:  cfg.Push.PublicKey,
		VAPIDPrivateKey: cfg.Push.PrivateKey,
		Subscriber:      cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
	}

	go pollerSvc.Run(ctx)

	router := api.NewRouter(appStore, &webpushOptions, &cfg.Server, pollerSvc.Location())
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}

func runDashboard(ctx context.Context, appStore store.Store, loc *time.Location, hours int, out string) error {
	snaps, err := appStore.AllSnapshots(ctx)
	if err != nil {
		return err
	}
	carparks, err := appStore.Carparks(ctx)
	if err != nil {
		return err
	}

	seriesFrom := time.Now().In(loc).Add(-time.Duration(hours) * time.Hour)
	view := dashboard.Build(snaps, carparks, seriesFrom)

	w := os.Stdout
	if out != "" {
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	return json.NewEncoder(w).Encode(view)
}

func runExport(ctx context.Context, appStore store.Store, from, to, out string) error {
	w := os.Stdout
	if out != "" {
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	n, err := export.Range(ctx, w, appStore, from, to)
	if err != nil {
		return err
	}
	log.Printf("exported %d snapshots", n)
	return nil
}
