package config

import "time"

// Default configuration values.
const (
	DefaultRedisAddr       = "127.0.0.1:9221"
	DefaultRedisHost       = "127.0.0.1"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 5 * time.Minute
	DefaultMaxOutputBuffer = 128 << 20
	DefaultMetricsAddr     = "127.0.0.1:9222"

	DefaultSlowlogSlowerThan = 10000

	EngineMemory = "memory"
	EngineBadger = "badger"

	WALSyncModeSync  = "sync"
	WALSyncModeBatch = "batch"

	DefaultEngine          = EngineMemory
	DefaultDataDir         = "/var/lib/kvgate"
	DefaultWALSyncMode     = WALSyncModeSync
	DefaultWALSyncInterval = 100 * time.Millisecond
	DefaultSnapshotKeep    = 3
	DefaultBadgerGC        = 10 * time.Minute
	DefaultBadgerCache     = 64 << 20

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			Redis: RedisConfig{
				Addr:            DefaultRedisAddr,
				Host:            DefaultRedisHost,
				ReadTimeout:     DefaultReadTimeout,
				WriteTimeout:    DefaultWriteTimeout,
				IdleTimeout:     DefaultIdleTimeout,
				MaxOutputBuffer: DefaultMaxOutputBuffer,
			},
			Metrics: MetricsConfig{
				Addr: DefaultMetricsAddr,
			},
		},
		Engine: EngineSection{
			SlowlogSlowerThan: DefaultSlowlogSlowerThan,
		},
		Storage: StorageSection{
			Engine:          DefaultEngine,
			DataDir:         DefaultDataDir,
			WALSyncMode:     DefaultWALSyncMode,
			WALSyncInterval: DefaultWALSyncInterval,
			SnapshotKeep:    DefaultSnapshotKeep,
			Badger: BadgerConfig{
				GCInterval: DefaultBadgerGC,
				CacheSize:  DefaultBadgerCache,
			},
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
