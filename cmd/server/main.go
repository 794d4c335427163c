package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"schemasync/internal/api"
	"schemasync/internal/config"
	"schemasync/internal/dsl"
	"schemasync/internal/engine"
	"schemasync/internal/metrics"
	"schemasync/internal/pg"
	"schemasync/internal/sqlite"
	"schemasync/internal/watch"
)

func main() {
	if err := run(); err != nil {
		slog.Error("schemasync stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load("config.json", os.Args[1:])
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	level, _ := cfg.Level()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := engine.NewRegistry().
		Register(pg.Kind, pg.New(logger)).
		Register(sqlite.Kind, sqlite.New(logger))

	db, err := open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open %s: %w", cfg.Backend, err)
	}
	defer db.Close()

	docs, err := dsl.LoadAll(cfg.SchemaDir)
	if err != nil {
		return fmt.Errorf("load schema files: %w", err)
	}
	for _, issue := range dsl.Lint(docs) {
		logger.Warn("schema lint", "issue", issue.String())
	}
	logger.Info("schema files loaded", "dir", cfg.SchemaDir, "files", len(docs))

	srv := &api.Server{
		Storage:     api.NewStorage(cfg.SchemaDir, docs),
		Registry:    registry,
		Kind:        cfg.Backend,
		DB:          db,
		Logger:      logger,
		Metrics:     metrics.New(),
		Timeout:     cfg.ExtractTimeout,
		BaseContext: ctx,
	}

	if cfg.AutoSync {
		if _, err := srv.StartSync("startup"); err != nil {
			return err
		}
	}

	if cfg.Watch {
		w := watch.New(cfg.SchemaDir, func(context.Context) {
			issues, err := srv.Reload("")
			if err != nil {
				logger.Error("reload failed", "error", err)
				return
			}
			if len(issues) > 0 {
				for _, issue := range issues {
					logger.Warn("schema lint", "issue", issue.String())
				}
				return
			}
			if _, err := srv.QueueSync("watch"); err != nil {
				logger.Warn("sync not started", "error", err)
			}
		}, watch.WithLogger(logger), watch.WithFilter(dsl.IsSchemaFile))
		go func() {
			if err := w.Run(ctx); err != nil {
				logger.Error("watcher stopped", "error", err)
			}
		}()
	}

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(srv),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdown)
	}()

	logger.Info("schemasync listening", "port", cfg.Port, "backend", cfg.Backend)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func open(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	switch cfg.Backend {
	case pg.Kind:
		return pg.Open(ctx, cfg.DBURL, cfg.ExtractTimeout)
	case sqlite.Kind:
		return sqlite.Open(ctx, cfg.DBURL, cfg.ExtractTimeout)
	}
	return nil, fmt.Errorf("unknown db type: %q", cfg.Backend)
}
