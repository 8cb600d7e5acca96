package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/kvgate-go/internal/commands"
	"github.com/yndnr/kvgate-go/internal/core/admission"
	"github.com/yndnr/kvgate-go/internal/core/auth"
	"github.com/yndnr/kvgate-go/internal/core/command"
	"github.com/yndnr/kvgate-go/internal/core/guard"
	"github.com/yndnr/kvgate-go/internal/core/monitor"
	"github.com/yndnr/kvgate-go/internal/infra/buildinfo"
	"github.com/yndnr/kvgate-go/internal/infra/confloader"
	"github.com/yndnr/kvgate-go/internal/infra/shutdown"
	"github.com/yndnr/kvgate-go/internal/server/config"
	"github.com/yndnr/kvgate-go/internal/server/redisserver"
	"github.com/yndnr/kvgate-go/internal/storage"
	"github.com/yndnr/kvgate-go/internal/storage/memory"
	"github.com/yndnr/kvgate-go/internal/storage/wal"
	"github.com/yndnr/kvgate-go/internal/telemetry/logger"
	"github.com/yndnr/kvgate-go/internal/telemetry/metric"
)

const shutdownTimeout = 30 * time.Second

func serveAction(c *cli.Context) error {
	configFile := c.String("config")

	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.Init(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	log.Info("starting kvgate-server",
		"version", buildinfo.Version,
		"config", configFile,
		"settings", config.Sanitize(cfg))

	srv, err := newServer(c.Context, cfg, log)
	if err != nil {
		return err
	}
	if configFile != "" {
		if err := srv.watchConfig(configFile); err != nil {
			log.Warn("config hot reload disabled", "error", err)
		}
	}

	log.Info("server started")
	if err := srv.shutdown.Wait(c.Context); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}
	log.Info("server stopped gracefully")
	return nil
}

// loadConfig layers the file and KVGATE_ environment over the defaults.
func loadConfig(configFile string) (*config.ServerConfig, error) {
	cfg := config.Default()

	opts := []confloader.Option{}
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}
	if err := confloader.NewLoader(opts...).Load(cfg); err != nil {
		return nil, err
	}
	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// server holds the running components.
type server struct {
	live     *config.Live
	verifier atomic.Pointer[auth.Verifier]
	shutdown *shutdown.Handler
	redis    *redisserver.Server
	log      *slog.Logger
}

func newServer(ctx context.Context, cfg *config.ServerConfig, log *slog.Logger) (*server, error) {
	s := &server{
		live:     config.NewLive(cfg),
		shutdown: shutdown.NewHandler(shutdownTimeout),
		log:      log,
	}

	v, err := auth.NewVerifier(cfg.Auth.RequirePass, cfg.Auth.UserPass)
	if err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}
	s.verifier.Store(v)
	s.live.OnChange(s.applyReload)

	metrics := metric.NewRegistry()

	store, err := openStore(cfg, log, metrics)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	metrics.MustRegister(metric.NewKeyspaceCollector(func() int64 {
		n, _ := store.Len(context.Background())
		return n
	}))

	engine, err := initStorage(cfg, store, log, metrics)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}
	// Registered first so it runs last.
	s.shutdown.OnShutdown(func(context.Context) error {
		log.Info("closing storage engine")
		return engine.Close()
	})

	gate := guard.NewLogGate(engine.Log())
	gate.OnAppend(metrics.RecordWALAppend)
	g := guard.New(nil, gate)
	mon := monitor.NewRegistry(metrics.IncMonitorDropped)

	registry := command.NewRegistry()
	err = commands.Register(ctx, registry, commands.Deps{
		Store:     store,
		Guard:     g,
		Monitor:   mon,
		Verifier:  s.verifier.Load,
		Snapshots: engine,
		Shutdown:  s.shutdown.Trigger,
		Logger:    log,
	})
	if err != nil {
		_ = engine.Close()
		return nil, fmt.Errorf("register commands: %w", err)
	}
	s.shutdown.OnShutdown(func(ctx context.Context) error {
		registry.Close(ctx)
		return nil
	})

	pipeline := admission.New(admission.Deps{
		Registry: registry,
		Guard:    g,
		Monitor:  mon,
		Settings: s.settings,
		Metrics:  metrics,
		Logger:   log,
	})

	stats, err := engine.Recover(ctx, pipeline.Replay)
	if err != nil {
		s.runHooks()
		return nil, fmt.Errorf("storage recovery: %w", err)
	}
	log.Info("storage recovered",
		"snapshot", stats.SnapshotID,
		"applied", stats.Applied,
		"failed", stats.Failed)

	redis := redisserver.New(redisserver.Config{
		Addr:            cfg.Server.Redis.Addr,
		ReadTimeout:     cfg.Server.Redis.ReadTimeout,
		WriteTimeout:    cfg.Server.Redis.WriteTimeout,
		IdleTimeout:     cfg.Server.Redis.IdleTimeout,
		RateLimit:       cfg.Server.Redis.RateLimit,
		MaxOutputBuffer: cfg.Server.Redis.MaxOutputBuffer,
	}, redisserver.Deps{
		Pipeline:     pipeline,
		InitialState: func() auth.State { return s.verifier.Load().InitialState() },
		Metrics:      metrics,
		Logger:       log,
	})
	if err := redis.Start(ctx); err != nil {
		s.runHooks()
		return nil, fmt.Errorf("start redis server: %w", err)
	}
	s.redis = redis
	s.shutdown.OnShutdown(func(ctx context.Context) error {
		log.Info("shutting down redis server")
		return redis.Shutdown(ctx)
	})

	if addr := cfg.Server.Metrics.Addr; addr != "" {
		s.startMetrics(addr, metrics)
	}
	return s, nil
}

// runHooks unwinds a partially started server.
func (s *server) runHooks() {
	s.shutdown.Trigger()
	_ = s.shutdown.Wait(context.Background())
}

func (s *server) startMetrics(addr string, metrics *metric.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		s.log.Info("metrics server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("metrics server error", "error", err)
		}
	}()
	s.shutdown.OnShutdown(func(ctx context.Context) error {
		return httpServer.Shutdown(ctx)
	})
}

// settings is read by the pipeline for every command.
func (s *server) settings() admission.Settings {
	cfg := s.live.Load()
	return admission.Settings{
		ReadOnly:         cfg.Engine.ReadOnly,
		SlowlogThreshold: cfg.Engine.SlowlogThreshold(),
		Blacklist:        cfg.Auth.UserBlacklist,
		AdvertisedHost:   cfg.Server.Redis.Host,
	}
}

func (s *server) watchConfig(path string) error {
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(s.log))
	if err != nil {
		return err
	}
	if err := w.Watch(path); err != nil {
		_ = w.Stop()
		return err
	}
	w.OnChange(func(string) { s.reload(path) })
	w.StartAsync()
	s.shutdown.OnShutdown(func(context.Context) error { return w.Stop() })
	return nil
}

func (s *server) reload(path string) {
	next, err := loadConfig(path)
	if err != nil {
		s.log.Error("config reload failed", "path", path, "error", err)
		return
	}
	ignored, err := s.live.Reload(next)
	if err != nil {
		s.log.Error("config reload rejected", "path", path, "error", err)
		return
	}
	if len(ignored) > 0 {
		s.log.Warn("config changes need a restart", "sections", ignored)
	}
	s.log.Info("config reloaded", "path", path)
}

// applyReload runs after Live swaps its snapshot.
func (s *server) applyReload(old, cur *config.ServerConfig) {
	if cur.Log.Level != old.Log.Level {
		if err := logger.SetLevel(cur.Log.Level); err != nil {
			s.log.Error("log level not changed", "error", err)
		}
	}
	if cur.Auth.RequirePass != old.Auth.RequirePass || cur.Auth.UserPass != old.Auth.UserPass {
		v, err := auth.NewVerifier(cur.Auth.RequirePass, cur.Auth.UserPass)
		if err != nil {
			s.log.Error("passwords not changed", "error", err)
			return
		}
		s.verifier.Store(v)
		s.log.Info("passwords updated")
	}
}

// openStore builds the keyspace selected by storage.engine.
func openStore(cfg *config.ServerConfig, log *slog.Logger, metrics *metric.Registry) (storage.Store, error) {
	switch cfg.Storage.Engine {
	case config.EngineBadger:
		bc := storage.DefaultBadgerConfig()
		if cfg.Storage.Badger.GCInterval > 0 {
			bc.GCInterval = cfg.Storage.Badger.GCInterval
		}
		if cfg.Storage.Badger.CacheSize > 0 {
			bc.CacheSize = cfg.Storage.Badger.CacheSize
		}
		bs, err := storage.NewBadgerStore(filepath.Join(cfg.Storage.DataDir, "badger"), bc, log)
		if err != nil {
			return nil, err
		}
		return bs.RegisterMetrics(metrics.Prometheus()), nil
	default:
		return memory.New(), nil
	}
}

// initStorage wires the WAL and snapshots around store.
func initStorage(cfg *config.ServerConfig, store storage.Store, log *slog.Logger, metrics *metric.Registry) (*storage.Engine, error) {
	sc := storage.DefaultConfig(cfg.Storage.DataDir)
	sc.Logger = log
	sc.Metrics = metrics
	sc.WAL.SyncMode = wal.SyncMode(cfg.Storage.WALSyncMode)
	if cfg.Storage.WALSyncInterval > 0 {
		sc.WAL.SyncInterval = cfg.Storage.WALSyncInterval
	}
	sc.Snapshot.RetentionCount = cfg.Storage.SnapshotKeep
	return storage.New(sc, store)
}
