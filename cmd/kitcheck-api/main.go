package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/PabloGalante/kitcheck/internal/adapters/detector"
	httpadapter "github.com/PabloGalante/kitcheck/internal/adapters/http"
	badgerstore "github.com/PabloGalante/kitcheck/internal/adapters/storage/badger"
	firestorestore "github.com/PabloGalante/kitcheck/internal/adapters/storage/firestore"
	memstore "github.com/PabloGalante/kitcheck/internal/adapters/storage/memory"
	pgstore "github.com/PabloGalante/kitcheck/internal/adapters/storage/postgres"
	sqlitestore "github.com/PabloGalante/kitcheck/internal/adapters/storage/sqlite"
	"github.com/PabloGalante/kitcheck/internal/app/detection"
	"github.com/PabloGalante/kitcheck/internal/app/events"
	"github.com/PabloGalante/kitcheck/internal/app/journal"
	"github.com/PabloGalante/kitcheck/internal/app/lending"
	"github.com/PabloGalante/kitcheck/internal/catalog"
	"github.com/PabloGalante/kitcheck/internal/config"
	"github.com/PabloGalante/kitcheck/internal/domain"
	"github.com/PabloGalante/kitcheck/internal/observability"
)

func main() {
	ctx := context.Background()
	logger := observability.WithFields("service", "kitcheck-api")

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	level, err := observability.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Warn("invalid log level, using info", "error", err)
	}
	observability.SetLevel(level)

	// Catalog
	cat, err := loadCatalog(cfg.Catalog)
	if err != nil {
		logger.Error("failed to load catalog", "error", err)
		os.Exit(1)
	}
	logger.Info("catalog loaded", "classes", cat.Len())

	// Detector
	det, checks, err := newDetector(ctx, cfg, cat)
	if err != nil {
		logger.Error("failed to initialize detector", "backend", cfg.Detector.Backend, "error", err)
		os.Exit(1)
	}
	logger.Info("detector ready", "backend", cfg.Detector.Backend, "detector", det.Name())

	// Storage
	sessionStore, eventStore, closeStore, err := newStores(ctx, cfg)
	if err != nil {
		logger.Error("failed to initialize storage", "backend", cfg.Storage.Backend, "error", err)
		os.Exit(1)
	}
	defer closeStore()
	logger.Info("storage ready", "backend", cfg.Storage.Backend)

	// Services
	adapter := detection.NewAdapter(det, cat, detection.Config{
		Timeout:       cfg.Detector.Timeout,
		MinConfidence: cfg.Detector.MinConfidence,
	})
	svc := lending.NewService(
		sessionStore,
		adapter,
		events.NewDefaultDispatcher(eventStore),
		journal.NewService(eventStore),
		lending.Config{
			DefaultThreshold:  cfg.DefaultThreshold,
			AllowPartialIssue: cfg.AllowPartialIssue,
		},
	)

	// HTTP server
	handler := httpadapter.NewServer(svc, httpadapter.Options{
		APIKey: cfg.APIKey,
		Backends: map[string]string{
			"mode":     string(cfg.Mode),
			"store":    cfg.Storage.Backend,
			"detector": cfg.Detector.Backend,
		},
		Checks: checks,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.Detector.Timeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("kitcheck API listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

func loadCatalog(cfg config.CatalogConfig) (*catalog.Catalog, error) {
	switch {
	case cfg.File != "":
		return catalog.Load(cfg.File)
	case len(cfg.Classes) > 0:
		return catalog.New(cfg.Classes, nil)
	default:
		return catalog.Default(), nil
	}
}

// namedDetector is a detector that can identify itself in logs.
type namedDetector interface {
	domain.Detector
	Name() string
}

func newDetector(ctx context.Context, cfg *config.Config, cat *catalog.Catalog) (namedDetector, map[string]httpadapter.HealthCheck, error) {
	switch cfg.Detector.Backend {
	case "http":
		d := detector.NewHTTPDetector(cfg.Detector.URL, &http.Client{})
		return d, map[string]httpadapter.HealthCheck{"detector": d.CheckHealth}, nil
	case "gemini":
		d, err := detector.NewGeminiDetector(ctx, detector.GeminiConfig{
			Project:  cfg.GCPProjectID,
			Location: cfg.GCPLocation,
			Model:    cfg.Detector.Model,
			Classes:  cat.Classes(),
		})
		if err != nil {
			return nil, nil, err
		}
		return d, nil, nil
	case "mock":
		return detector.NewMock(), nil, nil
	}
	return nil, nil, fmt.Errorf("unknown detector backend %q", cfg.Detector.Backend)
}

// newStores opens the configured backend. Every backend implements both
// store interfaces with one value.
func newStores(ctx context.Context, cfg *config.Config) (domain.SessionStore, domain.EventStore, func(), error) {
	noop := func() {}

	switch cfg.Storage.Backend {
	case "sqlite":
		s, err := sqlitestore.Open(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, noop, err
		}
		return s, s, func() { s.Close() }, nil

	case "postgres":
		s, err := pgstore.Open(cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, nil, noop, err
		}
		return s, s, func() { s.Close() }, nil

	case "badger":
		s, err := badgerstore.Open(cfg.Storage.BadgerPath)
		if err != nil {
			return nil, nil, noop, err
		}
		return s, s, func() { s.Close() }, nil

	case "firestore":
		s, err := firestorestore.NewStore(ctx, cfg.GCPProjectID)
		if err != nil {
			return nil, nil, noop, err
		}
		return s, s, func() { s.Close() }, nil

	case "memory":
		return memstore.NewSessionStore(), memstore.NewEventStore(), noop, nil
	}
	return nil, nil, noop, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
}
