package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"statforge"
	"statforge/internal/config"
	servernet "statforge/internal/net"
	"statforge/internal/net/ws"
	"statforge/logging"
	loggingSinks "statforge/logging/sinks"
)

// Run wires the full server process: configuration, the logging router,
// the stat store, and the HTTP surface. It blocks until the context is
// cancelled or the listener fails.
func Run(ctx context.Context) error {
	stdLogger := log.Default()

	cfg, err := config.Load(os.Getenv("STATFORGE_CONFIG"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if raw := os.Getenv("STATFORGE_LISTEN_ADDR"); raw != "" {
		cfg.ListenAddr = raw
	}
	if raw := os.Getenv("STATFORGE_LOG_SINKS"); raw != "" {
		cfg.Logging.Sinks = strings.Split(raw, ",")
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid STATFORGE_LOG_SINKS=%q: %w", raw, err)
		}
	}

	logConfig := logging.DefaultConfig()
	logConfig.EnabledSinks = cfg.Logging.Sinks
	logConfig.BufferSize = cfg.Logging.BufferSize
	logConfig.MinimumSeverity = logging.ParseSeverity(cfg.Logging.MinimumSeverity)

	logConfig.JSON.FilePath = cfg.Logging.JSONFilePath
	logConfig.JSON.FlushInterval = cfg.JSONFlushInterval()

	sinks := map[string]logging.Sink{
		"console": loggingSinks.NewConsoleSink(os.Stdout, logConfig.Console),
	}
	if logConfig.HasSink("json") {
		file, err := os.OpenFile(logConfig.JSON.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open json log file: %w", err)
		}
		defer file.Close()
		sinks["json"] = loggingSinks.NewJSONSink(file, logConfig.JSON.FlushInterval)
	}

	router, err := logging.NewRouter(logConfig, logging.SystemClock{}, stdLogger, sinks)
	if err != nil {
		return fmt.Errorf("failed to construct logging router: %w", err)
	}
	defer func() {
		if cerr := router.Close(context.Background()); cerr != nil {
			stdLogger.Printf("failed to close logging router: %v", cerr)
		}
	}()

	registry := ws.NewRegistry(stdLogger)
	store := statforge.NewStore(statforge.StoreConfig{
		Publisher:    router,
		OnSync:       registry.Publish,
		NotifyBuffer: cfg.Store.NotifyBuffer,
	})
	defer store.Close()

	wsHandler := ws.NewHandler(store, registry, ws.HandlerConfig{
		Logger:       stdLogger,
		WriteQueue:   cfg.Replication.WriteQueue,
		ReadLimit:    int64(cfg.Replication.ReadLimitBytes),
		PingInterval: cfg.PingInterval(),
	})

	handler := servernet.NewHTTPHandler(store, wsHandler, servernet.HTTPHandlerConfig{
		Logger: stdLogger,
	})

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: handler}
	stdLogger.Printf("server listening on %s", srv.Addr)

	errs := make(chan error, 1)
	go func() {
		errs <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown failed: %w", err)
		}
		return nil
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	}
}
