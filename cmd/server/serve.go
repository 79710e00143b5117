package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rpggio/clusterbench/internal/clustering"
	"github.com/rpggio/clusterbench/internal/config"
	"github.com/rpggio/clusterbench/internal/domain/activity"
	"github.com/rpggio/clusterbench/internal/domain/project"
	"github.com/rpggio/clusterbench/internal/filestore"
	"github.com/rpggio/clusterbench/internal/mcp"
	"github.com/rpggio/clusterbench/internal/observability"
	"github.com/rpggio/clusterbench/internal/runner"
	"github.com/rpggio/clusterbench/internal/sqlite"
	"github.com/rpggio/clusterbench/internal/transport"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

func runServe(cmd *cobra.Command, flags serveFlags) error {
	cfg, err := config.LoadFile(flags.configPath)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if flags.host != "" {
		cfg.Server.Host = flags.host
	}
	if flags.port != 0 {
		cfg.Server.Port = flags.port
	}

	logWriter := io.Writer(os.Stdout)
	if cfg.Log.Path != "" {
		fileWriter, err := newLogFileWriter(cfg.Log.Path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "log file error: %v\n", err)
		} else {
			defer fileWriter.Close()
			logWriter = fileWriter
		}
	}
	level := new(slog.LevelVar)
	level.Set(parseLogLevel(cfg.Log.Level))
	logger := newLogger(logWriter, cfg.Log.JSON, level)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := filestore.New(cfg.Data.Dir, logger)
	if err != nil {
		return fmt.Errorf("open data dir: %w", err)
	}

	db, err := sqlite.New(filepath.Join(cfg.Data.Dir, "history.db"))
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer db.Close()
	if err := db.RunMigrations(); err != nil {
		return fmt.Errorf("migrate history: %w", err)
	}

	activitySvc := activity.NewService(sqlite.NewActivityRepository(db), logger)
	taskRunner := runner.New(clustering.NewBuiltin(), runner.Options{Workers: cfg.Runner.Workers}, logger)
	projectSvc := project.NewService(store, taskRunner, activitySvc, logger)
	taskRunner.Start(ctx, projectSvc)

	recovered, err := projectSvc.RecoverInterrupted(ctx)
	if err != nil {
		logger.Error("failed to recover interrupted tasks", "error", err)
	} else if len(recovered) > 0 {
		logger.Warn("recovered interrupted tasks", "projects", recovered)
	}

	shutdownTracing, err := observability.SetupTracing(cfg.Trace.Exporter, version, os.Stdout, logger)
	if err != nil {
		return err
	}

	opts := transport.Options{
		Logger: logger,
		Ready: func(ctx context.Context) error {
			if _, err := os.Stat(cfg.Data.Dir); err != nil {
				return err
			}
			return db.PingContext(ctx)
		},
	}
	if cfg.MCP.Enabled {
		opts.MCP = mcp.NewHTTPHandler(mcp.NewServer(mcp.Config{
			Projects: projectSvc,
			Version:  version,
			Logger:   logger,
		}))
	}

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           transport.NewServer(projectSvc, opts),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", "addr", addr, "data_dir", cfg.Data.Dir, "version", version, "mcp", cfg.MCP.Enabled)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	if flags.reload && cfg.Path != "" {
		g.Go(func() error {
			return watchConfig(gctx, cfg.Path, level, logger)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
		if err := taskRunner.Shutdown(shutdownCtx); err != nil {
			logger.Error("runner shutdown error", "error", err)
		}
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Error("tracing shutdown error", "error", err)
		}
		return nil
	})

	return g.Wait()
}

// watchConfig re-reads the config file on change and applies its log level.
// The directory is watched so editors that replace the file are seen too.
func watchConfig(ctx context.Context, path string, level *slog.LevelVar, logger *slog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch config dir: %w", err)
	}
	logger.Info("watching config", "path", abs)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			reloadLogLevel(abs, level, logger)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watcher error", "error", err)
		}
	}
}

func reloadLogLevel(path string, level *slog.LevelVar, logger *slog.Logger) {
	cfg, err := config.LoadFile(path)
	if err != nil {
		logger.Warn("ignoring invalid config", "path", path, "error", err)
		return
	}
	next := parseLogLevel(cfg.Log.Level)
	if next == level.Level() {
		return
	}
	level.Set(next)
	logger.Info("log level changed", "level", next.String())
}
