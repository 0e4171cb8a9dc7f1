package main

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/AngelCh415/perfmerge/internal/config"
	"github.com/AngelCh415/perfmerge/internal/httpx"
	"github.com/AngelCh415/perfmerge/internal/ingest"
	"github.com/AngelCh415/perfmerge/internal/metrics"
	"github.com/AngelCh415/perfmerge/internal/pipeline"
	"github.com/AngelCh415/perfmerge/internal/store"
	"github.com/AngelCh415/perfmerge/internal/utils"
)

func main() {
	cfg, err := config.Load(os.Getenv("PERFMERGE_CONFIG"))
	if err != nil {
		slog.Error("config", slog.String("err", err.Error()))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	// backoff exponencial + jitter
	backoff := utils.NewBackoff(200*time.Millisecond, 4).WithJitter(100 * time.Millisecond)
	loader := ingest.NewLoader(ingest.NewHTTPClient(cfg.HTTPTimeout), logger, backoff)
	st := store.NewMemoryStore()
	col := metrics.NewCollectors()

	var sink pipeline.Persister
	if cfg.Sink.Driver != "" {
		s, err := store.OpenSQL(cfg.Sink.Driver, cfg.Sink.DSN, backoff)
		if err != nil {
			logger.Error("open sink", slog.String("driver", cfg.Sink.Driver), slog.String("err", err.Error()))
			os.Exit(1)
		}
		defer s.Close()
		sink = s
	}

	p := pipeline.New(loader, st, sink, col, logger, cfg)
	r := httpx.NewRouter(logger, p, metrics.NewService(st), col)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("starting server", slog.String("port", cfg.Port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", slog.String("err", err.Error()))
		os.Exit(1)
	}
}
