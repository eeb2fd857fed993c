// CLAUDE:SUMMARY sturgeond entrypoint: config, stores, worker and HTTP server with graceful shutdown.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/time/rate"
	_ "modernc.org/sqlite"

	"github.com/Haroldtrapier/sturgeon-ai-sub000/analyzer"
	"github.com/Haroldtrapier/sturgeon-ai-sub000/blobstore"
	"github.com/Haroldtrapier/sturgeon-ai-sub000/config"
	"github.com/Haroldtrapier/sturgeon-ai-sub000/dbopen"
	"github.com/Haroldtrapier/sturgeon-ai-sub000/httpapi"
	"github.com/Haroldtrapier/sturgeon-ai-sub000/jobstore"
	"github.com/Haroldtrapier/sturgeon-ai-sub000/mcptools"
	"github.com/Haroldtrapier/sturgeon-ai-sub000/shield"
	"github.com/Haroldtrapier/sturgeon-ai-sub000/worker"
)

func main() {
	cfgPath := flag.String("config", "", "path to YAML config (defaults apply when empty)")
	mcpMode := flag.Bool("mcp", false, "serve MCP over stdio instead of HTTP")
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(log)

	cfg := config.DefaultConfig()
	if *cfgPath != "" {
		var err error
		cfg, err = config.Load(*cfgPath)
		if err != nil {
			log.Error("config load failed", "error", err)
			os.Exit(1)
		}
	}

	db, err := dbopen.Open(cfg.DBPath,
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(jobstore.Schema),
	)
	if err != nil {
		log.Error("database open failed", "error", err, "path", cfg.DBPath)
		os.Exit(1)
	}
	defer db.Close()

	blobs, err := blobstore.New(cfg.BlobsDir)
	if err != nil {
		log.Error("blob store init failed", "error", err, "dir", cfg.BlobsDir)
		os.Exit(1)
	}
	jobs := jobstore.NewStore(db)

	providers := make([]analyzer.Provider, 0, len(cfg.Analyzer.Providers))
	for _, p := range cfg.Analyzer.Providers {
		providers = append(providers,
			analyzer.NewOpenAIProvider(p.Name, p.BaseURL, p.APIKey, p.Model, nil))
	}
	if len(providers) == 0 {
		log.Warn("no analyzer providers configured; every job will fail analysis")
	}
	an := analyzer.New(providers, analyzer.Options{
		Timeout:  cfg.Analyzer.Timeout(),
		MaxInput: cfg.Analyzer.MaxInputChars,
		Limiter:  rate.NewLimiter(rate.Limit(cfg.Analyzer.RatePerSec), cfg.Analyzer.RateBurst),
		Logger:   log,
	})

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w := worker.New(jobs, blobs, an, worker.Options{
		PollInterval: cfg.Worker.PollInterval(),
		BatchSize:    cfg.Worker.BatchSize,
		ErrorBackoff: cfg.Worker.ErrorBackoff(),
		InfraRetries: cfg.Worker.InfraRetries,
		Logger:       log,
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.Run(ctx)
	}()

	if *mcpMode {
		mcpSrv := mcptools.NewServer(jobs, blobs, cfg.MaxFileBytes())
		log.Info("serving MCP over stdio")
		if err := mcpSrv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("mcp server failed", "error", err)
		}
		stop()
		wg.Wait()
		return
	}

	api := httpapi.NewServer(jobs, blobs, httpapi.Options{
		MaxBytes:      cfg.MaxFileBytes(),
		StaleAfterMin: cfg.Worker.StaleAfterMin,
		RateLimit:     shield.Limit{MaxRequests: cfg.RateLimitPerMin, Window: time.Minute},
		Logger:        log,
	})
	defer api.Close()
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		grace := time.Duration(cfg.Worker.ShutdownGraceMS) * time.Millisecond
		shutCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			log.Warn("http shutdown", "error", err)
		}
	}()

	log.Info("sturgeond listening", "addr", cfg.Listen)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("serve failed", "error", err)
		os.Exit(1)
	}

	// HTTP is down; wait for the worker to finish its in-flight job.
	wg.Wait()
	log.Info("sturgeond stopped")
}
