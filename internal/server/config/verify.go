package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
)

// Verify validates the configuration. It creates storage.data_dir when it
// does not exist.
func Verify(cfg *ServerConfig) error {
	if err := verifyServer(&cfg.Server); err != nil {
		return err
	}
	if err := verifyAuth(&cfg.Auth); err != nil {
		return err
	}
	if err := verifyStorage(&cfg.Storage); err != nil {
		return err
	}
	return verifyLog(&cfg.Log)
}

func verifyServer(cfg *ServerSection) error {
	if err := verifyAddr("server.redis.addr", cfg.Redis.Addr); err != nil {
		return err
	}
	if cfg.Metrics.Addr != "" {
		if err := verifyAddr("server.metrics.addr", cfg.Metrics.Addr); err != nil {
			return err
		}
		if cfg.Metrics.Addr == cfg.Redis.Addr {
			return fmt.Errorf("server.metrics.addr conflicts with server.redis.addr: %s", cfg.Metrics.Addr)
		}
	}
	if cfg.Redis.RateLimit < 0 {
		return errors.New("server.redis.rate_limit must not be negative")
	}
	if cfg.Redis.MaxOutputBuffer < 0 {
		return errors.New("server.redis.max_output_buffer must not be negative")
	}
	if cfg.Redis.ReadTimeout < 0 || cfg.Redis.WriteTimeout < 0 || cfg.Redis.IdleTimeout < 0 {
		return errors.New("server.redis timeouts must not be negative")
	}
	return nil
}

func verifyAddr(key, addr string) error {
	if addr == "" {
		return fmt.Errorf("%s is required", key)
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

func verifyAuth(cfg *AuthSection) error {
	if cfg.UserPass != "" && cfg.UserPass == cfg.RequirePass {
		return errors.New("auth.userpass must differ from auth.requirepass")
	}
	for _, name := range cfg.UserBlacklist {
		if strings.TrimSpace(name) == "" {
			return errors.New("auth.user_blacklist contains an empty command name")
		}
	}
	return nil
}

func verifyStorage(cfg *StorageSection) error {
	switch cfg.Engine {
	case EngineMemory, EngineBadger:
	default:
		return fmt.Errorf("storage.engine must be %q or %q, got %q", EngineMemory, EngineBadger, cfg.Engine)
	}
	switch cfg.WALSyncMode {
	case WALSyncModeSync, WALSyncModeBatch:
	default:
		return fmt.Errorf("storage.wal_sync_mode must be %q or %q, got %q", WALSyncModeSync, WALSyncModeBatch, cfg.WALSyncMode)
	}
	if cfg.WALSyncMode == WALSyncModeBatch && cfg.WALSyncInterval <= 0 {
		return errors.New("storage.wal_sync_interval must be positive in batch mode")
	}

	if cfg.DataDir == "" {
		return errors.New("storage.data_dir is required")
	}
	if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
		return errors.New("cannot create data directory: " + err.Error())
	}

	if cfg.SnapshotKeep < 1 {
		return errors.New("storage.snapshot_keep must be at least 1")
	}
	return nil
}

func verifyLog(cfg *LogSection) error {
	switch strings.ToLower(cfg.Format) {
	case "json", "text", "":
	default:
		return fmt.Errorf("log.format must be json or text, got %q", cfg.Format)
	}
	switch strings.ToLower(cfg.Level) {
	case "debug", "info", "warn", "warning", "error", "":
	default:
		return fmt.Errorf("log.level %q is not valid", cfg.Level)
	}
	return nil
}
