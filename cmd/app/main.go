package main

import (
    "context"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/joho/godotenv"
    "github.com/rs/zerolog/log"

    "github.com/local/layoutengine/internal/api"
    cfgpkg "github.com/local/layoutengine/internal/config"
    logpkg "github.com/local/layoutengine/internal/logger"
    "github.com/local/layoutengine/internal/metrics"
    "github.com/local/layoutengine/internal/queue"
    "github.com/local/layoutengine/internal/storage"
    "github.com/local/layoutengine/internal/store"
    "github.com/local/layoutengine/internal/worker"
)

func main() {
    _ = godotenv.Load()
    cfg := cfgpkg.FromEnv()

    // Init logging
    _ = logpkg.Init(logpkg.Options{
        Level:        cfg.Logging.Level,
        Pretty:       cfg.Logging.Pretty,
        File:         cfg.Logging.File,
        MaxSizeMB:    cfg.Logging.MaxSizeMB,
        MaxBackups:   cfg.Logging.MaxBackups,
        MaxAgeDays:   cfg.Logging.MaxAgeDays,
        Compress:     cfg.Logging.Compress,
        SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
        AxiomAPIKey:  cfg.Axiom.APIKey,
        AxiomOrgID:   cfg.Axiom.OrgID,
        AxiomDataset: cfg.Axiom.Dataset,
        AxiomFlush:   cfg.Axiom.FlushInterval,
    })
    defer logpkg.Close()

    metrics.Init()

    // Queue
    rq, err := queue.NewRedisQueue(cfg.Queue.RedisURL, cfg.Queue.Stream, cfg.Queue.Group, cfg.Queue.PollInterval)
    if err != nil {
        log.Fatal().Err(err).Msg("failed to connect to redis")
    }
    defer rq.Close()

    // Status store
    rs, err := store.NewRedisStatus(cfg.Store.RedisURL)
    if err != nil {
        log.Fatal().Err(err).Msg("failed to init redis status store")
    }
    defer rs.Close()

    // Result store
    results, err := store.NewResultStore(cfg.Store.RedisURL, cfg.Store.ResultTTL)
    if err != nil {
        log.Fatal().Err(err).Msg("failed to init result store")
    }
    defer results.Close()

    // Object storage
    ctx := context.Background()
    s3c, err := storage.New(ctx, cfg.Storage.Region, cfg.Storage.InputBucket, cfg.Storage.OutputBucket)
    if err != nil {
        log.Fatal().Err(err).Msg("failed to init s3 client")
    }

    // HTTP API
    a := api.New(rq, rs, results)
    mux := http.NewServeMux()
    a.RegisterRoutes(mux)

    depthCtx, cancelDepths := context.WithCancel(ctx)
    defer cancelDepths()
    go a.PollQueueDepths(depthCtx, 5*time.Second)

    // Reconstruction workers (optional; disable to run API-only instances)
    runWorkers := os.Getenv("RUN_WORKERS")
    if runWorkers == "" || runWorkers == "1" || runWorkers == "true" {
        pool := worker.New(cfg, rq, s3c, s3c, results, rs)
        pool.Start()
        defer pool.Stop(context.Background())
    }

    port := os.Getenv("PORT")
    if port == "" { port = "8080" }
    srv := &http.Server{Addr: ":" + port, Handler: mux}

    go func() {
        log.Info().Msgf("HTTP server listening on :%s", port)
        if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
            log.Fatal().Err(err).Msg("http server error")
        }
    }()

    // Graceful shutdown
    stop := make(chan os.Signal, 1)
    signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
    <-stop
    shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()
    _ = srv.Shutdown(shutdownCtx)
    log.Info().Msg("shutdown complete")
}
